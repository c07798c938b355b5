package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/patric-chuzhbe/bookshelf/internal/auth"
	"github.com/patric-chuzhbe/bookshelf/internal/logger"
	"github.com/patric-chuzhbe/bookshelf/internal/models"
	"github.com/patric-chuzhbe/bookshelf/internal/user"
)

const avatarBaseURL = "https://api.dicebear.com/9.x/big-ears/svg?seed="

// bcrypt ignores everything past 72 bytes.
const maxPasswordBytes = 72

// AvatarURL returns the generated profile picture for a user name.
func AvatarURL(userName string) string {
	return avatarBaseURL + url.QueryEscape(userName)
}

// Register creates an account and returns a session token for it.
func (s *Service) Register(ctx context.Context, request models.RegisterRequest) (*models.AuthResponse, error) {
	request.Email = normalizeEmail(request.Email)
	request.UserName = strings.TrimSpace(request.UserName)

	if err := s.validateRegistration(request); err != nil {
		return nil, err
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	_, found, err := s.db.FindUserByEmail(storeCtx, request.Email)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/users.go/Register(): error while `s.db.FindUserByEmail()` calling: %w", err)
	}
	if found {
		return nil, ErrEmailTaken
	}

	_, found, err = s.db.FindUserByUserName(storeCtx, request.UserName)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/users.go/Register(): error while `s.db.FindUserByUserName()` calling: %w", err)
	}
	if found {
		return nil, ErrUserNameTaken
	}

	passwordHash, err := auth.HashPassword(request.Password)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/users.go/Register(): error while `auth.HashPassword()` calling: %w", err)
	}

	usr := &user.User{
		Email:        request.Email,
		UserName:     request.UserName,
		PasswordHash: passwordHash,
		ProfileImage: AvatarURL(request.UserName),
	}

	// The lookups above race with concurrent registrations; the store's
	// unique constraints are the final word.
	_, err = s.db.CreateUser(storeCtx, usr)
	switch {
	case errors.Is(err, models.ErrDuplicateEmail):
		return nil, ErrEmailTaken
	case errors.Is(err, models.ErrDuplicateUserName):
		return nil, ErrUserNameTaken
	case err != nil:
		return nil, fmt.Errorf("in internal/service/users.go/Register(): error while `s.db.CreateUser()` calling: %w", err)
	}

	s.recorder.UserRegistered()
	logger.Log.Infow("user registered", "user_id", usr.ID)

	return s.authResponse(usr)
}

// Login verifies the credentials and returns a fresh session token.
func (s *Service) Login(ctx context.Context, request models.LoginRequest) (*models.AuthResponse, error) {
	request.Email = normalizeEmail(request.Email)

	if err := s.validate.Struct(request); err != nil {
		return nil, newValidationError(msgAllFieldsRequired)
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	usr, found, err := s.db.FindUserByEmail(storeCtx, request.Email)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/users.go/Login(): error while `s.db.FindUserByEmail()` calling: %w", err)
	}
	if !found {
		return nil, ErrInvalidCredentials
	}

	if err := auth.ComparePassword(usr.PasswordHash, request.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.authResponse(usr)
}

func (s *Service) authResponse(usr *user.User) (*models.AuthResponse, error) {
	token, err := s.tokens.IssueToken(usr.ID)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/users.go/authResponse(): error while `s.tokens.IssueToken()` calling: %w", err)
	}

	return &models.AuthResponse{
		Token: token,
		User: models.AuthUser{
			ID:           usr.ID,
			UserName:     usr.UserName,
			Email:        usr.Email,
			ProfileImage: usr.ProfileImage,
			CreatedAt:    usr.CreatedAt,
		},
	}, nil
}

// validateRegistration reports the first failing rule in the order:
// presence, password length, user name length, email format.
func (s *Service) validateRegistration(request models.RegisterRequest) error {
	err := s.validate.Struct(request)
	if err == nil {
		if len(request.Password) > maxPasswordBytes {
			return newValidationError(fmt.Sprintf("Password must be at most %d characters long", maxPasswordBytes))
		}
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	failed := map[string]bool{}
	for _, fieldErr := range validationErrors {
		if fieldErr.Tag() == "required" {
			return newValidationError(msgAllFieldsRequired)
		}
		failed[fieldErr.Field()] = true
	}

	switch {
	case failed["Password"]:
		return newValidationError(msgPasswordTooShort)
	case failed["UserName"]:
		return newValidationError(msgUserNameTooShort)
	default:
		return newValidationError(msgInvalidEmail)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
