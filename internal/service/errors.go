package service

import "errors"

// ValidationError carries a message that is safe to show to the caller verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

var (
	ErrEmailTaken         = errors.New("email already exists")
	ErrUserNameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrBookNotFound       = errors.New("book not found")
	ErrForbidden          = errors.New("book belongs to another user")
	ErrMediaUpload        = errors.New("image upload failed")
	ErrMediaCleanup       = errors.New("hosted image could not be removed")
)

const (
	msgAllFieldsRequired = "All fields are required"
	msgPasswordTooShort  = "Password must be at least 8 characters long"
	msgUserNameTooShort  = "Username must be at least 3 characters long"
	msgInvalidEmail      = "Invalid email address"
	msgInvalidRating     = "Rating must be between 1 and 5"
	msgInvalidImage      = "Image must be a base64 encoded data URI"
	msgInvalidPage       = "page must be a positive integer"
	msgInvalidLimit      = "limit must be a positive integer"
)
