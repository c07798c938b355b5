package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patric-chuzhbe/bookshelf/internal/models"
	"github.com/patric-chuzhbe/bookshelf/internal/user"
)

type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	lastAt   time.Time
	Cache    CacheStruct
}

type CacheStruct struct {
	Users map[string]*UserRecord
	Books map[string]*BookRecord
}

// UserRecord is the persisted form of a user. Unlike user.User it keeps the
// password hash when marshaled.
type UserRecord struct {
	ID           string
	Email        string
	UserName     string
	PasswordHash string
	ProfileImage string
	CreatedAt    time.Time
}

type BookRecord struct {
	ID        string
	Title     string
	Caption   string
	Image     string
	Rating    int
	UserID    string
	CreatedAt time.Time
}

func NewCache() CacheStruct {
	return CacheStruct{
		Users: map[string]*UserRecord{},
		Books: map[string]*BookRecord{},
	}
}

func initDBFile(fileName string) error {
	return writeToJSONFile(fileName, NewCache())
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %s", err)
	}

	file, err2 := os.OpenFile(fileName, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
	if err2 != nil {
		return fmt.Errorf("error opening file: %s", err2)
	}
	defer file.Close()

	_, err = file.Write(jsonData)
	if err != nil {
		return fmt.Errorf("error writing to file: %s", err)
	}

	return nil
}

func parseJSONFile(fileName string, cacheMap *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	err = decoder.Decode(cacheMap)
	if err != nil {
		return err
	}

	if cacheMap.Users == nil {
		cacheMap.Users = map[string]*UserRecord{}
	}
	if cacheMap.Books == nil {
		cacheMap.Books = map[string]*BookRecord{}
	}

	return nil
}

// New opens (or creates) the JSON database file. The whole data set is kept
// in memory and written back by Close.
func New(fileName string) (*JSONDB, error) {
	simpleJSONDB := &JSONDB{
		fileName: fileName,
		Cache:    NewCache(),
	}

	err := parseJSONFile(simpleJSONDB.fileName, &simpleJSONDB.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		err := initDBFile(fileName)
		if err != nil {
			return nil, err
		}
		err = parseJSONFile(simpleJSONDB.fileName, &simpleJSONDB.Cache)
		if err != nil {
			return nil, err
		}
	}

	return simpleJSONDB, nil
}

// NewInMemory returns a database that is never written to disk.
func NewInMemory() *JSONDB {
	return &JSONDB{Cache: NewCache()}
}

func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

func (db *JSONDB) Close() error {
	if db.fileName == "" {
		return nil
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	err := writeToJSONFile(db.fileName, db.Cache)
	if err != nil {
		return err
	}

	return nil
}

func (db *JSONDB) CreateUser(ctx context.Context, usr *user.User) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, existing := range db.Cache.Users {
		if existing.Email == usr.Email {
			return "", models.ErrDuplicateEmail
		}
		if existing.UserName == usr.UserName {
			return "", models.ErrDuplicateUserName
		}
	}

	record := &UserRecord{
		ID:           uuid.NewString(),
		Email:        usr.Email,
		UserName:     usr.UserName,
		PasswordHash: usr.PasswordHash,
		ProfileImage: usr.ProfileImage,
		CreatedAt:    time.Now().UTC(),
	}
	db.Cache.Users[record.ID] = record

	usr.ID = record.ID
	usr.CreatedAt = record.CreatedAt

	return record.ID, nil
}

func (db *JSONDB) GetUserByID(ctx context.Context, userID string) (*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	record, ok := db.Cache.Users[userID]
	if !ok {
		return &user.User{ID: ""}, nil
	}

	return record.toUser(), nil
}

func (db *JSONDB) FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error) {
	return db.findUser(func(record *UserRecord) bool { return record.Email == email })
}

func (db *JSONDB) FindUserByUserName(ctx context.Context, userName string) (*user.User, bool, error) {
	return db.findUser(func(record *UserRecord) bool { return record.UserName == userName })
}

func (db *JSONDB) findUser(match func(*UserRecord) bool) (*user.User, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, record := range db.Cache.Users {
		if match(record) {
			return record.toUser(), true, nil
		}
	}

	return nil, false, nil
}

func (db *JSONDB) GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make(map[string]*user.User, len(userIDs))
	for _, userID := range userIDs {
		if record, ok := db.Cache.Users[userID]; ok {
			result[userID] = record.toUser()
		}
	}

	return result, nil
}

func (db *JSONDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Users)), nil
}

func (db *JSONDB) InsertBook(ctx context.Context, book *models.Book) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.Cache.Users[book.UserID]; !ok {
		return fmt.Errorf("in internal/db/jsondb/jsondb.go/InsertBook(): owner %q does not exist", book.UserID)
	}

	record := &BookRecord{
		ID:        uuid.NewString(),
		Title:     book.Title,
		Caption:   book.Caption,
		Image:     book.Image,
		Rating:    book.Rating,
		UserID:    book.UserID,
		CreatedAt: db.nextCreatedAt(),
	}
	db.Cache.Books[record.ID] = record

	book.ID = record.ID
	book.CreatedAt = record.CreatedAt

	return nil
}

// nextCreatedAt keeps insertion order visible even on coarse clocks.
func (db *JSONDB) nextCreatedAt() time.Time {
	now := time.Now().UTC()
	if !now.After(db.lastAt) {
		now = db.lastAt.Add(time.Microsecond)
	}
	db.lastAt = now

	return now
}

func (db *JSONDB) GetBooksPage(ctx context.Context, skip, limit int) ([]models.Book, error) {
	books := db.sortedBooks(func(*BookRecord) bool { return true })

	if skip < 0 {
		skip = 0
	}
	if skip >= len(books) {
		return []models.Book{}, nil
	}
	end := len(books)
	if limit < end-skip {
		end = skip + limit
	}

	return books[skip:end], nil
}

func (db *JSONDB) CountBooks(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Books)), nil
}

func (db *JSONDB) GetBooksByOwner(ctx context.Context, userID string) ([]models.Book, error) {
	return db.sortedBooks(func(record *BookRecord) bool { return record.UserID == userID }), nil
}

func (db *JSONDB) sortedBooks(match func(*BookRecord) bool) []models.Book {
	db.mu.RLock()
	result := make([]models.Book, 0, len(db.Cache.Books))
	for _, record := range db.Cache.Books {
		if match(record) {
			result = append(result, record.toBook())
		}
	}
	db.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return result
}

func (db *JSONDB) FindBookByID(ctx context.Context, bookID string) (*models.Book, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	record, ok := db.Cache.Books[bookID]
	if !ok {
		return nil, false, nil
	}
	book := record.toBook()

	return &book, true, nil
}

func (db *JSONDB) DeleteBook(ctx context.Context, bookID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.Cache.Books[bookID]; !ok {
		return false, nil
	}
	delete(db.Cache.Books, bookID)

	return true, nil
}

func (record *UserRecord) toUser() *user.User {
	return &user.User{
		ID:           record.ID,
		Email:        record.Email,
		UserName:     record.UserName,
		PasswordHash: record.PasswordHash,
		ProfileImage: record.ProfileImage,
		CreatedAt:    record.CreatedAt,
	}
}

func (record *BookRecord) toBook() models.Book {
	return models.Book{
		ID:        record.ID,
		Title:     record.Title,
		Caption:   record.Caption,
		Image:     record.Image,
		Rating:    record.Rating,
		UserID:    record.UserID,
		CreatedAt: record.CreatedAt,
	}
}
