package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/bookshelf/internal/logger"
	"github.com/patric-chuzhbe/bookshelf/internal/mediahost"
	"github.com/patric-chuzhbe/bookshelf/internal/models"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// CreateBook validates the request, hosts the cover image and stores the book.
// Nothing is uploaded when validation fails. When the upload succeeds but the
// insert does not, the hosted image is left behind and logged.
func (s *Service) CreateBook(ctx context.Context, ownerID string, request models.CreateBookRequest) (*models.Book, error) {
	request.Title = strings.TrimSpace(request.Title)
	request.Caption = strings.TrimSpace(request.Caption)
	request.Image = strings.TrimSpace(request.Image)

	if err := s.validateBook(request); err != nil {
		return nil, err
	}

	img, err := mediahost.ParseDataURI(request.Image)
	if err != nil {
		return nil, newValidationError(msgInvalidImage)
	}

	mediaCtx, cancelMedia := s.mediaContext(ctx)
	defer cancelMedia()

	imageURL, err := s.media.Upload(mediaCtx, img)
	if err != nil {
		s.recorder.MediaFailure("upload")
		return nil, fmt.Errorf("%w: %v", ErrMediaUpload, err)
	}

	book := &models.Book{
		Title:   request.Title,
		Caption: request.Caption,
		Image:   imageURL,
		Rating:  *request.Rating,
		UserID:  ownerID,
	}

	storeCtx, cancelStore := s.storeContext(ctx)
	defer cancelStore()

	if err := s.db.InsertBook(storeCtx, book); err != nil {
		logger.Log.Warnw("book was not stored, its image is orphaned", "image", imageURL, "user_id", ownerID)
		return nil, fmt.Errorf("in internal/service/books.go/CreateBook(): error while `s.db.InsertBook()` calling: %w", err)
	}

	s.recorder.BookCreated()

	return book, nil
}

// ParsePagination turns raw query values into a page and a limit.
// Empty values fall back to the defaults; anything that is not a positive
// integer is a validation error.
func ParsePagination(pageRaw, limitRaw string) (int, int, error) {
	page, err := parsePositive(pageRaw, DefaultPage)
	if err != nil {
		return 0, 0, newValidationError(msgInvalidPage)
	}

	limit, err := parsePositive(limitRaw, DefaultLimit)
	if err != nil {
		return 0, 0, newValidationError(msgInvalidLimit)
	}

	return page, limit, nil
}

func parsePositive(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if value < 1 {
		return 0, strconv.ErrRange
	}

	return value, nil
}

// ListBooks returns one page of the feed, newest first, with owners embedded.
func (s *Service) ListBooks(ctx context.Context, page, limit int) (*models.BookPage, error) {
	if page < 1 {
		return nil, newValidationError(msgInvalidPage)
	}
	if limit < 1 {
		return nil, newValidationError(msgInvalidLimit)
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	total, err := s.db.CountBooks(storeCtx)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/books.go/ListBooks(): error while `s.db.CountBooks()` calling: %w", err)
	}

	result := &models.BookPage{
		Books:       []models.FeedBook{},
		CurrentPage: page,
		TotalBooks:  total,
		TotalPages:  totalPages(total, limit),
	}
	// (page-1)*limit may overflow, so the page is checked first.
	if int64(page-1) >= result.TotalPages {
		return result, nil
	}

	books, err := s.db.GetBooksPage(storeCtx, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/books.go/ListBooks(): error while `s.db.GetBooksPage()` calling: %w", err)
	}

	result.Books, err = s.embedOwners(storeCtx, books)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func totalPages(total int64, limit int) int64 {
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}

	return pages
}

func (s *Service) embedOwners(ctx context.Context, books []models.Book) ([]models.FeedBook, error) {
	feed := make([]models.FeedBook, 0, len(books))
	if len(books) == 0 {
		return feed, nil
	}

	ownerIDs := funk.UniqString(funk.Map(books, func(book models.Book) string {
		return book.UserID
	}).([]string))

	owners, err := s.db.GetUsersByIDs(ctx, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/books.go/embedOwners(): error while `s.db.GetUsersByIDs()` calling: %w", err)
	}

	for _, book := range books {
		owner := models.BookOwner{ID: book.UserID}
		if usr, ok := owners[book.UserID]; ok {
			owner.UserName = usr.UserName
			owner.ProfileImage = usr.ProfileImage
		} else {
			logger.Log.Warnw("book owner is missing", "book_id", book.ID, "user_id", book.UserID)
		}
		feed = append(feed, models.FeedBook{Book: book, User: owner})
	}

	return feed, nil
}

// ListBooksByOwner returns all books of one user, newest first.
func (s *Service) ListBooksByOwner(ctx context.Context, ownerID string) ([]models.Book, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	books, err := s.db.GetBooksByOwner(storeCtx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/books.go/ListBooksByOwner(): error while `s.db.GetBooksByOwner()` calling: %w", err)
	}
	if books == nil {
		books = []models.Book{}
	}

	return books, nil
}

// DeleteBook removes a book owned by requesterID. The hosted image is
// destroyed first; if that fails the record is kept.
func (s *Service) DeleteBook(ctx context.Context, bookID, requesterID string) error {
	findCtx, cancelFind := s.storeContext(ctx)
	defer cancelFind()

	book, found, err := s.db.FindBookByID(findCtx, bookID)
	if err != nil {
		return fmt.Errorf("in internal/service/books.go/DeleteBook(): error while `s.db.FindBookByID()` calling: %w", err)
	}
	if !found {
		return ErrBookNotFound
	}
	if book.UserID != requesterID {
		return ErrForbidden
	}

	if s.media.Owns(book.Image) {
		mediaCtx, cancelMedia := s.mediaContext(ctx)
		err := s.media.Destroy(mediaCtx, book.Image)
		cancelMedia()
		if err != nil {
			s.recorder.MediaFailure("destroy")
			return fmt.Errorf("%w: %v", ErrMediaCleanup, err)
		}
	} else {
		logger.Log.Infow("image is not managed by the current media host, skipping cleanup", "book_id", book.ID, "image", book.Image)
	}

	deleteCtx, cancelDelete := s.storeContext(ctx)
	defer cancelDelete()

	deleted, err := s.db.DeleteBook(deleteCtx, bookID)
	if err != nil {
		return fmt.Errorf("in internal/service/books.go/DeleteBook(): error while `s.db.DeleteBook()` calling: %w", err)
	}
	if !deleted {
		return ErrBookNotFound
	}

	s.recorder.BookDeleted()

	return nil
}

func (s *Service) validateBook(request models.CreateBookRequest) error {
	err := s.validate.Struct(request)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	for _, fieldErr := range validationErrors {
		if fieldErr.Tag() == "required" {
			return newValidationError(msgAllFieldsRequired)
		}
	}

	return newValidationError(msgInvalidRating)
}
