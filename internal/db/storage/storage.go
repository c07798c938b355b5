// Package storage declares the persistence contract shared by every backend
// (MongoDB, PostgreSQL, JSON file, memory).
package storage

import (
	"context"

	"github.com/patric-chuzhbe/bookshelf/internal/models"
	"github.com/patric-chuzhbe/bookshelf/internal/user"
)

type Storage interface {
	// CreateUser persists usr and returns the new id. A taken email or user
	// name yields models.ErrDuplicateEmail or models.ErrDuplicateUserName.
	CreateUser(ctx context.Context, usr *user.User) (string, error)

	// GetUserByID returns a user with an empty ID when nothing matches.
	GetUserByID(ctx context.Context, userID string) (*user.User, error)

	FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error)

	FindUserByUserName(ctx context.Context, userName string) (*user.User, bool, error)

	// GetUsersByIDs skips ids that do not exist.
	GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]*user.User, error)

	GetNumberOfUsers(ctx context.Context) (int64, error)

	// InsertBook assigns ID and CreatedAt to book.
	InsertBook(ctx context.Context, book *models.Book) error

	// GetBooksPage returns books newest first.
	GetBooksPage(ctx context.Context, skip, limit int) ([]models.Book, error)

	CountBooks(ctx context.Context) (int64, error)

	// GetBooksByOwner returns the owner's books newest first.
	GetBooksByOwner(ctx context.Context, userID string) ([]models.Book, error)

	FindBookByID(ctx context.Context, bookID string) (*models.Book, bool, error)

	// DeleteBook reports whether a record was removed.
	DeleteBook(ctx context.Context, bookID string) (bool, error)

	Ping(ctx context.Context) error

	Close() error
}
