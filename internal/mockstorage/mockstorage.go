// Package mockstorage provides testify-based mock implementations
// of the storage and media host interfaces used by the service and router packages.
// It is used for unit testing failure paths that the in-memory backends cannot produce.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/bookshelf/internal/mediahost"
	"github.com/patric-chuzhbe/bookshelf/internal/models"
	"github.com/patric-chuzhbe/bookshelf/internal/user"
)

// StorageMock is a testify mock that implements storage.Storage.
type StorageMock struct {
	mock.Mock

	// OnGetNumberOfUsers is an optional function field that can be assigned
	// to define custom mock behavior for GetNumberOfUsers in tests.
	//
	// If set, GetNumberOfUsers will delegate to this function instead of
	// using testify's generic mock handler.
	OnGetNumberOfUsers func(ctx context.Context) (int64, error)

	// OnCountBooks is an optional function field that can be used
	// to customize the return values of CountBooks in tests.
	//
	// If non-nil, the mock implementation will call this function directly.
	OnCountBooks func(ctx context.Context) (int64, error)
}

// Ping mocks the pinger interface to simulate a health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks closing the storage and releasing resources.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// CreateUser mocks user creation and returns a generated ID.
func (m *StorageMock) CreateUser(ctx context.Context, usr *user.User) (string, error) {
	args := m.Called(ctx, usr)
	return args.String(0), args.Error(1)
}

// GetUserByID mocks fetching a user by their ID.
func (m *StorageMock) GetUserByID(ctx context.Context, userID string) (*user.User, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *StorageMock) FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error) {
	args := m.Called(ctx, email)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Bool(1), args.Error(2)
}

func (m *StorageMock) FindUserByUserName(ctx context.Context, userName string) (*user.User, bool, error) {
	args := m.Called(ctx, userName)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Bool(1), args.Error(2)
}

func (m *StorageMock) GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]*user.User, error) {
	args := m.Called(ctx, userIDs)
	users, _ := args.Get(0).(map[string]*user.User)
	return users, args.Error(1)
}

// GetNumberOfUsers returns the number of users as defined by the mock.
//
// If OnGetNumberOfUsers is non-nil, it will be called to produce the result.
// Otherwise, the method returns 0 and no error by default.
func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	if m.OnGetNumberOfUsers != nil {
		return m.OnGetNumberOfUsers(ctx)
	}
	return 0, nil
}

// InsertBook mocks persisting a book. Use Run() to fill in ID/CreatedAt.
func (m *StorageMock) InsertBook(ctx context.Context, book *models.Book) error {
	args := m.Called(ctx, book)
	return args.Error(0)
}

func (m *StorageMock) GetBooksPage(ctx context.Context, skip, limit int) ([]models.Book, error) {
	args := m.Called(ctx, skip, limit)
	books, _ := args.Get(0).([]models.Book)
	return books, args.Error(1)
}

// CountBooks returns the number of books as defined by the mock.
//
// If OnCountBooks is defined, the method will call it and return
// its result. Otherwise, it defaults to returning 0 and no error.
func (m *StorageMock) CountBooks(ctx context.Context) (int64, error) {
	if m.OnCountBooks != nil {
		return m.OnCountBooks(ctx)
	}
	return 0, nil
}

func (m *StorageMock) GetBooksByOwner(ctx context.Context, userID string) ([]models.Book, error) {
	args := m.Called(ctx, userID)
	books, _ := args.Get(0).([]models.Book)
	return books, args.Error(1)
}

func (m *StorageMock) FindBookByID(ctx context.Context, bookID string) (*models.Book, bool, error) {
	args := m.Called(ctx, bookID)
	book, _ := args.Get(0).(*models.Book)
	return book, args.Bool(1), args.Error(2)
}

func (m *StorageMock) DeleteBook(ctx context.Context, bookID string) (bool, error) {
	args := m.Called(ctx, bookID)
	return args.Bool(0), args.Error(1)
}

// MediaHostMock is a testify mock of an image host.
type MediaHostMock struct {
	mock.Mock
}

func (m *MediaHostMock) Upload(ctx context.Context, img *mediahost.Image) (string, error) {
	args := m.Called(ctx, img)
	return args.String(0), args.Error(1)
}

func (m *MediaHostMock) Destroy(ctx context.Context, imageURL string) error {
	args := m.Called(ctx, imageURL)
	return args.Error(0)
}

func (m *MediaHostMock) Owns(imageURL string) bool {
	args := m.Called(imageURL)
	return args.Bool(0)
}
