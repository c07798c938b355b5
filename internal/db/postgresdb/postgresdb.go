// Package postgresdb provides a PostgreSQL-based implementation of the storage interface
// for persisting users and their book recommendations.
// The schema is managed by goose migrations applied on startup.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/bookshelf/internal/models"
	"github.com/patric-chuzhbe/bookshelf/internal/user"
)

// PostgresDB is a PostgreSQL-backed implementation of the bookshelf storage.
// It handles all persistence operations via a PostgreSQL database connection.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type initOptions struct {
	DBPreReset bool
}

const (
	uniqueViolationCode = "23505"

	emailConstraint    = "users_email_key"
	userNameConstraint = "users_user_name_key"
)

const userColumns = `id, email, user_name, password_hash, profile_image, created_at`

const bookColumns = `id, title, caption, image, rating, user_id, created_at`

// New establishes a connection to the PostgreSQL database,
// runs schema migrations, and returns a configured PostgresDB instance.
// Optionally accepts initialization options, such as WithDBPreReset.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if err := result.Ping(ctx); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `result.Ping()` calling: %w",
				err,
			)
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil,
				fmt.Errorf(
					"in internal/db/postgresdb/postgresdb.go/New(): error while `result.resetDB()` calling: %w",
					err,
				)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.SetDialect()` calling: %w",
				err,
			)
	}

	if err := goose.UpContext(ctx, result.database, migrationsDir); err != nil {
		return nil,
			fmt.Errorf(
				"in internal/db/postgresdb/postgresdb.go/New(): error while `goose.UpContext()` calling: %w",
				err,
			)
	}

	return result, nil
}

// CreateUser inserts a new user record into the database.
// Returns the created user ID; unique violations are mapped to the
// models.ErrDuplicateEmail / models.ErrDuplicateUserName sentinels.
func (db *PostgresDB) CreateUser(ctx context.Context, usr *user.User) (string, error) {
	row := db.database.QueryRowContext(
		ctx,
		`
			INSERT INTO users (email, user_name, password_hash, profile_image)
				VALUES ($1, $2, $3, $4)
				RETURNING id, created_at
		`,
		usr.Email,
		usr.UserName,
		usr.PasswordHash,
		usr.ProfileImage,
	)

	var userIDFromDB string
	var createdAt time.Time
	err := row.Scan(&userIDFromDB, &createdAt)
	if err != nil {
		return "", mapUniqueViolation(err)
	}

	usr.ID = userIDFromDB
	usr.CreatedAt = createdAt

	return userIDFromDB, nil
}

// GetUserByID fetches a user by their UUID from the database.
// If the user does not exist, it returns a user with an empty ID field.
func (db *PostgresDB) GetUserByID(ctx context.Context, userID string) (*user.User, error) {
	if !isUUID(userID) {
		return &user.User{ID: ""}, nil
	}

	usr, found, err := db.findUser(ctx, `id = $1`, userID)
	if err != nil {
		return &user.User{ID: ""}, err
	}
	if !found {
		return &user.User{ID: ""}, nil
	}

	return usr, nil
}

// FindUserByEmail looks a user up by the unique email.
func (db *PostgresDB) FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error) {
	return db.findUser(ctx, `email = $1`, email)
}

// FindUserByUserName looks a user up by the unique user name.
func (db *PostgresDB) FindUserByUserName(ctx context.Context, userName string) (*user.User, bool, error) {
	return db.findUser(ctx, `user_name = $1`, userName)
}

func (db *PostgresDB) findUser(ctx context.Context, condition string, arg any) (*user.User, bool, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT `+userColumns+` FROM users WHERE `+condition,
		arg,
	)

	usr := &user.User{}
	err := row.Scan(&usr.ID, &usr.Email, &usr.UserName, &usr.PasswordHash, &usr.ProfileImage, &usr.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return usr, true, nil
}

// GetUsersByIDs resolves a batch of owners in one round trip.
func (db *PostgresDB) GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]*user.User, error) {
	result := make(map[string]*user.User, len(userIDs))

	validIDs := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		if isUUID(userID) {
			validIDs = append(validIDs, userID)
		}
	}
	if len(validIDs) == 0 {
		return result, nil
	}

	rows, err := db.database.QueryContext(
		ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`,
		pq.Array(validIDs),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		usr := &user.User{}
		err = rows.Scan(&usr.ID, &usr.Email, &usr.UserName, &usr.PasswordHash, &usr.ProfileImage, &usr.CreatedAt)
		if err != nil {
			return nil, err
		}
		result[usr.ID] = usr
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetNumberOfUsers returns the total count of registered users.
func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM users`)
}

// InsertBook stores a book and fills in the generated id and creation time.
func (db *PostgresDB) InsertBook(ctx context.Context, book *models.Book) error {
	row := db.database.QueryRowContext(
		ctx,
		`
			INSERT INTO books (title, caption, image, rating, user_id)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id, created_at
		`,
		book.Title,
		book.Caption,
		book.Image,
		book.Rating,
		book.UserID,
	)

	err := row.Scan(&book.ID, &book.CreatedAt)
	if err != nil {
		return err
	}

	return nil
}

// GetBooksPage returns one page of books, newest first.
func (db *PostgresDB) GetBooksPage(ctx context.Context, skip, limit int) ([]models.Book, error) {
	return db.queryBooks(
		ctx,
		`SELECT `+bookColumns+` FROM books ORDER BY created_at DESC, id DESC OFFSET $1 LIMIT $2`,
		skip,
		limit,
	)
}

// CountBooks returns the number of stored books.
func (db *PostgresDB) CountBooks(ctx context.Context) (int64, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM books`)
}

// GetBooksByOwner returns every book of one user, newest first.
func (db *PostgresDB) GetBooksByOwner(ctx context.Context, userID string) ([]models.Book, error) {
	if !isUUID(userID) {
		return []models.Book{}, nil
	}

	return db.queryBooks(
		ctx,
		`SELECT `+bookColumns+` FROM books WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
}

// FindBookByID looks a book up by id.
func (db *PostgresDB) FindBookByID(ctx context.Context, bookID string) (*models.Book, bool, error) {
	if !isUUID(bookID) {
		return nil, false, nil
	}

	row := db.database.QueryRowContext(
		ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = $1`,
		bookID,
	)

	book := &models.Book{}
	err := row.Scan(&book.ID, &book.Title, &book.Caption, &book.Image, &book.Rating, &book.UserID, &book.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return book, true, nil
}

// DeleteBook removes a book and reports whether a row was actually deleted.
func (db *PostgresDB) DeleteBook(ctx context.Context, bookID string) (bool, error) {
	if !isUUID(bookID) {
		return false, nil
	}

	result, err := db.database.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, bookID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (db *PostgresDB) queryBooks(ctx context.Context, query string, args ...any) ([]models.Book, error) {
	rows, err := db.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.Book{}
	for rows.Next() {
		var book models.Book
		err = rows.Scan(&book.ID, &book.Title, &book.Caption, &book.Image, &book.Rating, &book.UserID, &book.CreatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, book)
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (db *PostgresDB) count(ctx context.Context, query string) (int64, error) {
	var total int64
	err := db.database.QueryRowContext(ctx, query).Scan(&total)
	if err != nil {
		return 0, err
	}

	return total, nil
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables or disables resetting the database schema before migration.
// It can be used for test setups or development purposes.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection and releases any associated resources.
func (db *PostgresDB) Close() error {
	err := db.database.Close()
	if err != nil {
		return err
	}

	return nil
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return err
	}

	switch pgErr.ConstraintName {
	case emailConstraint:
		return fmt.Errorf("%w: %v", models.ErrDuplicateEmail, err)
	case userNameConstraint:
		return fmt.Errorf("%w: %v", models.ErrDuplicateUserName, err)
	}

	return err
}

func isUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
