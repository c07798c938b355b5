// Package auth provides the access guard and the token half of the credential
// service: it mints and verifies HS256 session tokens and resolves the bearer
// token of an HTTP request to a stored user.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bookshelf/internal/logger"
	"github.com/patric-chuzhbe/bookshelf/internal/models"
	"github.com/patric-chuzhbe/bookshelf/internal/user"
)

type userKeeper interface {
	GetUserByID(ctx context.Context, userID string) (*user.User, error)
}

// Auth issues session tokens and guards protected routes.
type Auth struct {
	// db is the interface to the user data storage.
	db userKeeper

	// signingKey is the key used to sign JWTs.
	signingKey []byte

	// tokenTTL is how long a freshly issued token stays valid.
	tokenTTL time.Duration
}

// Claims represents the JWT claims used by the system.
// It embeds standard JWT claims and adds the subject user identifier.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// UserKey is the context key under which the authenticated *user.User is stored.
const UserKey ContextKey = "user"

var (
	// ErrMissingToken is returned when the request carries no bearer token.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidTokenOrJwtParsing is returned for malformed, forged or expired tokens.
	ErrInvalidTokenOrJwtParsing = errors.New("invalid token")

	// ErrUserNotFound is returned when a valid token names a user that no longer exists.
	ErrUserNotFound = errors.New("token subject not found")
)

const unauthorizedMessage = "Unauthorized"

// New creates a new Auth with the given user data access layer,
// JWT signing secret and token lifetime.
func New(
	db userKeeper,
	signingKey []byte,
	tokenTTL time.Duration,
) *Auth {
	return &Auth{
		db:         db,
		signingKey: signingKey,
		tokenTTL:   tokenTTL,
	}
}

// AuthenticateUser is an HTTP middleware that resolves the bearer token of the
// request to a stored user and puts that user into the request context.
// Missing, invalid or expired tokens and vanished users all yield 401.
func (a *Auth) AuthenticateUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		usr, err := a.resolveUser(request)
		switch {
		case err == nil:
		case errors.Is(err, ErrMissingToken),
			errors.Is(err, ErrInvalidTokenOrJwtParsing),
			errors.Is(err, ErrUserNotFound):
			logger.Log.Debugln("Rejecting request in the `a.AuthenticateUser()`: ", zap.Error(err))
			writeMessage(response, http.StatusUnauthorized, unauthorizedMessage)
			return
		default:
			logger.Log.Errorln("Error calling the `a.resolveUser()`: ", zap.Error(err))
			writeMessage(response, http.StatusInternalServerError, "Internal server error")
			return
		}

		logger.Annotate(request.Context(), "user_id", usr.ID)
		ctx := context.WithValue(request.Context(), UserKey, usr)
		h.ServeHTTP(response, request.WithContext(ctx))
	}

	return http.HandlerFunc(middleware)
}

// UserFromContext returns the user stored by AuthenticateUser.
func UserFromContext(ctx context.Context) (*user.User, bool) {
	usr, ok := ctx.Value(UserKey).(*user.User)
	if !ok || !usr.Exists() {
		return nil, false
	}

	return usr, true
}

// IssueToken mints a token for the given user that expires after the configured TTL.
func (a *Auth) IssueToken(userID string) (string, error) {
	now := time.Now()

	return a.BuildJWTString(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
		UserID: userID,
	})
}

// BuildJWTString signs the claims with HS256.
func (a *Auth) BuildJWTString(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, *claims)

	tokenString, err := token.SignedString(a.signingKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetUserIDFromToken verifies signature, algorithm and expiry and returns the subject.
func (a *Auth) GetUserIDFromToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.signingKey, nil
		},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTokenOrJwtParsing, err)
	}
	if !token.Valid || claims.UserID == "" {
		return "", ErrInvalidTokenOrJwtParsing
	}
	if claims.ExpiresAt == nil {
		return "", fmt.Errorf("%w: token has no expiry", ErrInvalidTokenOrJwtParsing)
	}

	return claims.UserID, nil
}

func (a *Auth) resolveUser(request *http.Request) (*user.User, error) {
	tokenString, err := bearerToken(request.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}

	userID, err := a.GetUserIDFromToken(tokenString)
	if err != nil {
		return nil, err
	}

	usr, err := a.db.GetUserByID(request.Context(), userID)
	if err != nil {
		return nil, fmt.Errorf("in internal/auth/auth.go/resolveUser(): error while `a.db.GetUserByID()` calling: %w", err)
	}
	if !usr.Exists() {
		return nil, ErrUserNotFound
	}

	return usr, nil
}

func bearerToken(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMissingToken
	}

	return parts[1], nil
}

func writeMessage(response http.ResponseWriter, status int, message string) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	_ = json.NewEncoder(response).Encode(models.MessageResponse{Message: message})
}
