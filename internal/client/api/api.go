// Package api is the HTTP client of the bookshelf API used by bookshelfctl.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/patric-chuzhbe/bookshelf/internal/models"
)

// ErrUnauthorized means the token was rejected and the session is stale.
var ErrUnauthorized = errors.New("session expired, please log in again")

// Error is a non-2xx answer carrying the server's message.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("server answered %d: %s", e.Status, e.Message)
}

type Client struct {
	http  *resty.Client
	token string
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// SetToken makes every following request carry the bearer token.
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) Register(ctx context.Context, request models.RegisterRequest) (*models.AuthResponse, error) {
	var result models.AuthResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&result).
		SetError(&models.MessageResponse{}).
		Post("/api/auth/register")
	if err := checkResponse(resp, err, false); err != nil {
		return nil, err
	}

	return &result, nil
}

// Login returns the session for the credentials. Wrong credentials come
// back as *Error with status 401, not as ErrUnauthorized.
func (c *Client) Login(ctx context.Context, request models.LoginRequest) (*models.AuthResponse, error) {
	var result models.AuthResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&result).
		SetError(&models.MessageResponse{}).
		Post("/api/auth/login")
	if err := checkResponse(resp, err, false); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Client) Feed(ctx context.Context, page, limit int) (*models.BookPage, error) {
	var result models.BookPage
	resp, err := c.authorized(ctx).
		SetQueryParam("page", strconv.Itoa(page)).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&result).
		Get("/api/books")
	if err := checkResponse(resp, err, true); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Client) Mine(ctx context.Context) ([]models.Book, error) {
	var result []models.Book
	resp, err := c.authorized(ctx).
		SetResult(&result).
		Get("/api/books/mine")
	if err := checkResponse(resp, err, true); err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) CreateBook(ctx context.Context, request models.CreateBookRequest) (*models.Book, error) {
	var result models.CreateBookResponse
	resp, err := c.authorized(ctx).
		SetBody(request).
		SetResult(&result).
		Post("/api/books")
	if err := checkResponse(resp, err, true); err != nil {
		return nil, err
	}

	return result.Book, nil
}

func (c *Client) DeleteBook(ctx context.Context, bookID string) error {
	resp, err := c.authorized(ctx).
		SetPathParam("id", bookID).
		Delete("/api/books/{id}")

	return checkResponse(resp, err, true)
}

func (c *Client) authorized(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(c.token).
		SetError(&models.MessageResponse{})
}

func checkResponse(resp *resty.Response, err error, bearer bool) error {
	if err != nil {
		return fmt.Errorf("in internal/client/api/api.go/checkResponse(): error while `resty` request: %w", err)
	}
	if !resp.IsError() {
		return nil
	}

	if bearer && resp.StatusCode() == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	message := resp.Status()
	if body, ok := resp.Error().(*models.MessageResponse); ok && body.Message != "" {
		message = body.Message
	}

	return &Error{Status: resp.StatusCode(), Message: message}
}
