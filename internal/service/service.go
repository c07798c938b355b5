// Package service holds the business rules of the bookshelf: registration
// and login, and the book feed (create, list, list by owner, delete).
package service

import (
	"context"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/patric-chuzhbe/bookshelf/internal/mediahost"
	"github.com/patric-chuzhbe/bookshelf/internal/models"
	"github.com/patric-chuzhbe/bookshelf/internal/user"
)

type userKeeper interface {
	CreateUser(ctx context.Context, usr *user.User) (string, error)

	FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error)

	FindUserByUserName(ctx context.Context, userName string) (*user.User, bool, error)

	GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]*user.User, error)

	GetNumberOfUsers(ctx context.Context) (int64, error)
}

type bookKeeper interface {
	InsertBook(ctx context.Context, book *models.Book) error

	GetBooksPage(ctx context.Context, skip, limit int) ([]models.Book, error)

	CountBooks(ctx context.Context) (int64, error)

	GetBooksByOwner(ctx context.Context, userID string) ([]models.Book, error)

	FindBookByID(ctx context.Context, bookID string) (*models.Book, bool, error)

	DeleteBook(ctx context.Context, bookID string) (bool, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storage interface {
	userKeeper
	bookKeeper
	pinger
}

type tokenIssuer interface {
	IssueToken(userID string) (string, error)
}

type mediaHost interface {
	Upload(ctx context.Context, img *mediahost.Image) (string, error)

	Destroy(ctx context.Context, imageURL string) error

	Owns(imageURL string) bool
}

type eventRecorder interface {
	UserRegistered()
	BookCreated()
	BookDeleted()
	MediaFailure(operation string)
}

type noopRecorder struct{}

func (noopRecorder) UserRegistered()       {}
func (noopRecorder) BookCreated()          {}
func (noopRecorder) BookDeleted()          {}
func (noopRecorder) MediaFailure(_ string) {}

type Service struct {
	db           storage
	media        mediaHost
	tokens       tokenIssuer
	recorder     eventRecorder
	validate     *validator.Validate
	storeTimeout time.Duration
	mediaTimeout time.Duration
}

type initOptions struct {
	recorder     eventRecorder
	storeTimeout time.Duration
	mediaTimeout time.Duration
}

type InitOption func(*initOptions)

// WithRecorder plugs in a metrics sink for domain events.
func WithRecorder(recorder eventRecorder) InitOption {
	return func(options *initOptions) {
		options.recorder = recorder
	}
}

// WithStoreTimeout bounds every storage call made by the service.
func WithStoreTimeout(timeout time.Duration) InitOption {
	return func(options *initOptions) {
		options.storeTimeout = timeout
	}
}

// WithMediaTimeout bounds every media host call made by the service.
func WithMediaTimeout(timeout time.Duration) InitOption {
	return func(options *initOptions) {
		options.mediaTimeout = timeout
	}
}

func New(
	db storage,
	media mediaHost,
	tokens tokenIssuer,
	optionsProto ...InitOption,
) *Service {
	options := &initOptions{
		recorder:     noopRecorder{},
		storeTimeout: 10 * time.Second,
		mediaTimeout: 30 * time.Second,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	return &Service{
		db:           db,
		media:        media,
		tokens:       tokens,
		recorder:     options.recorder,
		validate:     validator.New(),
		storeTimeout: options.storeTimeout,
		mediaTimeout: options.mediaTimeout,
	}
}

// Ping checks that the storage answers.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	return s.db.Ping(ctx)
}

// Stats returns the number of users and books.
func (s *Service) Stats(ctx context.Context) (*models.InternalStatsResponse, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	users, err := s.db.GetNumberOfUsers(ctx)
	if err != nil {
		return nil, err
	}

	books, err := s.db.CountBooks(ctx)
	if err != nil {
		return nil, err
	}

	return &models.InternalStatsResponse{Users: users, Books: books}, nil
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Service) mediaContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.mediaTimeout)
}
