// Package user defines the user model used throughout the application,
// particularly for authentication and book ownership.
package user

import "time"

// User represents a registered reader.
// Email and UserName are unique across the whole store.
type User struct {
	// ID is the store-assigned identifier (a UUID or a Mongo ObjectID in hex form).
	ID string `json:"_id"`

	Email string `json:"email"`

	UserName string `json:"userName"`

	// PasswordHash is the bcrypt hash of the password. It is never serialized.
	PasswordHash string `json:"-"`

	ProfileImage string `json:"profileImage"`

	CreatedAt time.Time `json:"createdAt"`
}

// Exists reports whether the user was actually found in the store.
// Stores return a User with an empty ID when the lookup misses.
func (u *User) Exists() bool {
	return u != nil && u.ID != ""
}
