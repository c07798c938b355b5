// Package mongodb stores users and books in MongoDB, using the same collection
// and field layout as the existing production data (users, books; camelCase
// fields; ObjectID keys).
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/patric-chuzhbe/bookshelf/internal/logger"
	"github.com/patric-chuzhbe/bookshelf/internal/models"
	"github.com/patric-chuzhbe/bookshelf/internal/user"
)

const (
	usersCollection = "users"
	booksCollection = "books"

	emailIndex    = "email_unique"
	userNameIndex = "userName_unique"
)

type MongoDB struct {
	client            *mongo.Client
	users             *mongo.Collection
	books             *mongo.Collection
	connectionTimeout time.Duration
}

type userDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Email        string             `bson:"email"`
	UserName     string             `bson:"userName"`
	Password     string             `bson:"password"`
	ProfileImage string             `bson:"profileImage"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

type bookDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Title     string             `bson:"title"`
	Caption   string             `bson:"caption"`
	Image     string             `bson:"image"`
	Rating    int                `bson:"rating"`
	User      primitive.ObjectID `bson:"user"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

// New connects to MongoDB, verifies the connection and makes sure the
// unique and ordering indexes exist.
func New(
	ctx context.Context,
	uri string,
	databaseName string,
	connectionTimeout time.Duration,
) (*MongoDB, error) {
	connectCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("in internal/db/mongodb/mongodb.go/New(): error while `mongo.Connect()` calling: %w", err)
	}

	result := newWithDatabase(client.Database(databaseName), connectionTimeout)

	if err := result.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("in internal/db/mongodb/mongodb.go/New(): error while `result.Ping()` calling: %w", err)
	}

	if err := result.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("in internal/db/mongodb/mongodb.go/New(): error while `result.ensureIndexes()` calling: %w", err)
	}

	logger.Log.Infow("connected to MongoDB", "database", databaseName)

	return result, nil
}

func newWithDatabase(database *mongo.Database, connectionTimeout time.Duration) *MongoDB {
	return &MongoDB{
		client:            database.Client(),
		users:             database.Collection(usersCollection),
		books:             database.Collection(booksCollection),
		connectionTimeout: connectionTimeout,
	}
}

func (db *MongoDB) ensureIndexes(ctx context.Context) error {
	_, err := db.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndex),
		},
		{
			Keys:    bson.D{{Key: "userName", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(userNameIndex),
		},
	})
	if err != nil {
		return err
	}

	_, err = db.books.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
	})

	return err
}

func (db *MongoDB) CreateUser(ctx context.Context, usr *user.User) (string, error) {
	now := nowMillis()
	doc := userDocument{
		ID:           primitive.NewObjectID(),
		Email:        usr.Email,
		UserName:     usr.UserName,
		Password:     usr.PasswordHash,
		ProfileImage: usr.ProfileImage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := db.users.InsertOne(ctx, doc)
	if err != nil {
		return "", mapDuplicateKey(err)
	}

	usr.ID = doc.ID.Hex()
	usr.CreatedAt = now

	return usr.ID, nil
}

// GetUserByID returns a user with an empty ID when nothing matches,
// including ids that are not valid ObjectIDs.
func (db *MongoDB) GetUserByID(ctx context.Context, userID string) (*user.User, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return &user.User{ID: ""}, nil
	}

	usr, found, err := db.findUser(ctx, bson.D{{Key: "_id", Value: objectID}})
	if err != nil {
		return &user.User{ID: ""}, err
	}
	if !found {
		return &user.User{ID: ""}, nil
	}

	return usr, nil
}

func (db *MongoDB) FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error) {
	return db.findUser(ctx, bson.D{{Key: "email", Value: email}})
}

func (db *MongoDB) FindUserByUserName(ctx context.Context, userName string) (*user.User, bool, error) {
	return db.findUser(ctx, bson.D{{Key: "userName", Value: userName}})
}

func (db *MongoDB) findUser(ctx context.Context, filter bson.D) (*user.User, bool, error) {
	var doc userDocument
	err := db.users.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return doc.toUser(), true, nil
}

func (db *MongoDB) GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]*user.User, error) {
	result := make(map[string]*user.User, len(userIDs))

	objectIDs := make([]primitive.ObjectID, 0, len(userIDs))
	for _, userID := range userIDs {
		objectID, err := primitive.ObjectIDFromHex(userID)
		if err != nil {
			continue
		}
		objectIDs = append(objectIDs, objectID)
	}
	if len(objectIDs) == 0 {
		return result, nil
	}

	cursor, err := db.users.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: objectIDs}}}})
	if err != nil {
		return nil, err
	}

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	for _, doc := range docs {
		usr := doc.toUser()
		result[usr.ID] = usr
	}

	return result, nil
}

func (db *MongoDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return db.users.CountDocuments(ctx, bson.D{})
}

func (db *MongoDB) InsertBook(ctx context.Context, book *models.Book) error {
	owner, err := primitive.ObjectIDFromHex(book.UserID)
	if err != nil {
		return fmt.Errorf("in internal/db/mongodb/mongodb.go/InsertBook(): invalid owner id %q: %w", book.UserID, err)
	}

	now := nowMillis()
	doc := bookDocument{
		ID:        primitive.NewObjectID(),
		Title:     book.Title,
		Caption:   book.Caption,
		Image:     book.Image,
		Rating:    book.Rating,
		User:      owner,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := db.books.InsertOne(ctx, doc); err != nil {
		return err
	}

	book.ID = doc.ID.Hex()
	book.CreatedAt = now

	return nil
}

func (db *MongoDB) GetBooksPage(ctx context.Context, skip, limit int) ([]models.Book, error) {
	findOptions := options.Find().
		SetSort(newestFirst()).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	return db.findBooks(ctx, bson.D{}, findOptions)
}

func (db *MongoDB) CountBooks(ctx context.Context) (int64, error) {
	return db.books.CountDocuments(ctx, bson.D{})
}

func (db *MongoDB) GetBooksByOwner(ctx context.Context, userID string) ([]models.Book, error) {
	owner, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return []models.Book{}, nil
	}

	return db.findBooks(ctx, bson.D{{Key: "user", Value: owner}}, options.Find().SetSort(newestFirst()))
}

func (db *MongoDB) findBooks(ctx context.Context, filter bson.D, findOptions *options.FindOptions) ([]models.Book, error) {
	cursor, err := db.books.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}

	var docs []bookDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	result := make([]models.Book, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toBook())
	}

	return result, nil
}

func (db *MongoDB) FindBookByID(ctx context.Context, bookID string) (*models.Book, bool, error) {
	objectID, err := primitive.ObjectIDFromHex(bookID)
	if err != nil {
		return nil, false, nil
	}

	var doc bookDocument
	err = db.books.FindOne(ctx, bson.D{{Key: "_id", Value: objectID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, err
	}

	book := doc.toBook()

	return &book, true, nil
}

func (db *MongoDB) DeleteBook(ctx context.Context, bookID string) (bool, error) {
	objectID, err := primitive.ObjectIDFromHex(bookID)
	if err != nil {
		return false, nil
	}

	result, err := db.books.DeleteOne(ctx, bson.D{{Key: "_id", Value: objectID}})
	if err != nil {
		return false, err
	}

	return result.DeletedCount > 0, nil
}

func (db *MongoDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.client.Ping(ctxWithTimeout, nil)
}

func (db *MongoDB) Close() error {
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), db.connectionTimeout)
	defer cancel()

	return db.client.Disconnect(ctxWithTimeout)
}

func (doc userDocument) toUser() *user.User {
	return &user.User{
		ID:           doc.ID.Hex(),
		Email:        doc.Email,
		UserName:     doc.UserName,
		PasswordHash: doc.Password,
		ProfileImage: doc.ProfileImage,
		CreatedAt:    doc.CreatedAt,
	}
}

func (doc bookDocument) toBook() models.Book {
	return models.Book{
		ID:        doc.ID.Hex(),
		Title:     doc.Title,
		Caption:   doc.Caption,
		Image:     doc.Image,
		Rating:    doc.Rating,
		UserID:    doc.User.Hex(),
		CreatedAt: doc.CreatedAt,
	}
}

func newestFirst() bson.D {
	return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
}

// BSON dates carry millisecond precision.
func nowMillis() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func mapDuplicateKey(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}

	message := err.Error()
	switch {
	case strings.Contains(message, userNameIndex):
		return fmt.Errorf("%w: %v", models.ErrDuplicateUserName, err)
	case strings.Contains(message, emailIndex):
		return fmt.Errorf("%w: %v", models.ErrDuplicateEmail, err)
	}

	return err
}
