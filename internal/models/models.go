package models

import (
	"errors"
	"time"
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	UserName string `json:"userName" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthUser is the public view of a user returned after register/login.
type AuthUser struct {
	ID           string    `json:"_id"`
	UserName     string    `json:"userName"`
	Email        string    `json:"email"`
	ProfileImage string    `json:"profileImage"`
	CreatedAt    time.Time `json:"createdAt"`
}

type AuthResponse struct {
	Token string   `json:"token"`
	User  AuthUser `json:"user"`
}

// CreateBookRequest carries the image as a base64 data URI.
// Rating is a pointer so that an absent rating can be told apart from zero.
type CreateBookRequest struct {
	Title   string `json:"title" validate:"required"`
	Caption string `json:"caption" validate:"required"`
	Image   string `json:"image" validate:"required"`
	Rating  *int   `json:"rating" validate:"required,min=1,max=5"`
}

type Book struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Caption   string    `json:"caption"`
	Image     string    `json:"image"`
	Rating    int       `json:"rating"`
	UserID    string    `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
}

// BookOwner is the slice of the owner embedded into feed entries.
type BookOwner struct {
	ID           string `json:"_id"`
	UserName     string `json:"userName"`
	ProfileImage string `json:"profileImage"`
}

// FeedBook is a Book with its owner resolved. The User field shadows
// Book.UserID in the JSON output.
type FeedBook struct {
	Book
	User BookOwner `json:"user"`
}

type BookPage struct {
	Books       []FeedBook `json:"books"`
	CurrentPage int        `json:"currentPage"`
	TotalBooks  int64      `json:"totalBooks"`
	TotalPages  int64      `json:"totalPages"`
}

type CreateBookResponse struct {
	Message string `json:"message"`
	Book    *Book  `json:"book"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type InternalStatsResponse struct {
	Users int64 `json:"users"`
	Books int64 `json:"books"`
}

const (
	StorageTypeUnknown = iota
	StorageTypeMongo
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)

const (
	MediaHostCloudinary = "cloudinary"
	MediaHostS3         = "s3"
	MediaHostMemory     = "memory"
)

var (
	ErrDuplicateEmail    = errors.New("a user with this email already exists")
	ErrDuplicateUserName = errors.New("a user with this user name already exists")
)
