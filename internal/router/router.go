// Package router wires the HTTP API of the bookshelf: routes, middlewares and
// the translation of service errors into status codes and JSON messages.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/patric-chuzhbe/bookshelf/internal/auth"
	"github.com/patric-chuzhbe/bookshelf/internal/gzippedhttp"
	"github.com/patric-chuzhbe/bookshelf/internal/ipchecker"
	"github.com/patric-chuzhbe/bookshelf/internal/logger"
	"github.com/patric-chuzhbe/bookshelf/internal/models"
	"github.com/patric-chuzhbe/bookshelf/internal/ratelimit"
	"github.com/patric-chuzhbe/bookshelf/internal/service"
)

const (
	msgInternalError       = "Internal server error"
	msgInvalidBody         = "Invalid request body"
	msgBodyTooLarge        = "Request body is too large"
	msgBookCreated         = "Book created successfully"
	msgBookDeleted         = "Book deleted successfully"
	msgEmailTaken          = "Email already exists"
	msgUserNameTaken       = "Username already exists"
	msgInvalidCredentials  = "Invalid credentials"
	msgBookNotFound        = "Book not found"
	msgForbidden           = "Unauthorized"
	defaultMaxBodyBytes    = 50 << 20
	authRateLimitScope     = "auth"
	routeMetrics           = "/metrics"
	routeMediaPrefix       = "/media"
	routeInternalStats     = "/api/internal/stats"
	routeBooksMine         = "/api/books/mine"
	routeBooksMineFallback = "/api/books/user"
)

type bookService interface {
	Register(ctx context.Context, request models.RegisterRequest) (*models.AuthResponse, error)

	Login(ctx context.Context, request models.LoginRequest) (*models.AuthResponse, error)

	CreateBook(ctx context.Context, ownerID string, request models.CreateBookRequest) (*models.Book, error)

	ListBooks(ctx context.Context, page, limit int) (*models.BookPage, error)

	ListBooksByOwner(ctx context.Context, ownerID string) ([]models.Book, error)

	DeleteBook(ctx context.Context, bookID, requesterID string) error

	Ping(ctx context.Context) error

	Stats(ctx context.Context) (*models.InternalStatsResponse, error)
}

type authenticator interface {
	AuthenticateUser(h http.Handler) http.Handler
}

type trustGuard interface {
	TrustedOnly(h http.Handler) http.Handler
}

type metricsCollector interface {
	Middleware(h http.Handler) http.Handler

	Handler() http.Handler
}

type Router struct {
	svc          bookService
	auth         authenticator
	trustGuard   trustGuard
	authLimiter  ratelimit.Limiter
	metrics      metricsCollector
	mediaHandler http.Handler
	maxBodyBytes int64
	corsOrigins  []string
}

type initOptions struct {
	trustGuard   trustGuard
	authLimiter  ratelimit.Limiter
	metrics      metricsCollector
	mediaHandler http.Handler
	maxBodyBytes int64
	corsOrigins  []string
}

type InitOption func(*initOptions)

// WithTrustGuard restricts /api/internal/stats. Without it the route answers 403.
func WithTrustGuard(guard trustGuard) InitOption {
	return func(options *initOptions) {
		options.trustGuard = guard
	}
}

func WithAuthLimiter(limiter ratelimit.Limiter) InitOption {
	return func(options *initOptions) {
		options.authLimiter = limiter
	}
}

// WithMetrics records every request and mounts /metrics.
func WithMetrics(collector metricsCollector) InitOption {
	return func(options *initOptions) {
		options.metrics = collector
	}
}

// WithMediaHandler mounts the in-memory media host under /media.
func WithMediaHandler(handler http.Handler) InitOption {
	return func(options *initOptions) {
		options.mediaHandler = handler
	}
}

func WithMaxBodyBytes(maxBodyBytes int64) InitOption {
	return func(options *initOptions) {
		options.maxBodyBytes = maxBodyBytes
	}
}

// WithCORSOrigins sets the origins browsers may call the API from.
// "*" allows any origin, which is the default.
func WithCORSOrigins(origins []string) InitOption {
	return func(options *initOptions) {
		options.corsOrigins = origins
	}
}

func New(
	svc bookService,
	theAuth authenticator,
	optionsProto ...InitOption,
) *Router {
	options := &initOptions{
		maxBodyBytes: defaultMaxBodyBytes,
		corsOrigins:  []string{"*"},
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if options.trustGuard == nil {
		nobodyTrusted, _ := ipchecker.New("")
		options.trustGuard = nobodyTrusted
	}

	return &Router{
		svc:          svc,
		auth:         theAuth,
		trustGuard:   options.trustGuard,
		authLimiter:  options.authLimiter,
		metrics:      options.metrics,
		mediaHandler: options.mediaHandler,
		maxBodyBytes: options.maxBodyBytes,
		corsOrigins:  options.corsOrigins,
	}
}

// Routes assembles the chi mux.
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(logger.WithLoggingHTTPMiddleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: r.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Content-Encoding", "Accept-Encoding"},
		MaxAge:         300,
	}))
	if r.metrics != nil {
		router.Use(r.metrics.Middleware)
	}

	router.Get("/ping", r.GetPing)

	router.Group(func(api chi.Router) {
		api.Use(
			middleware.RequestSize(r.maxBodyBytes),
			gzippedhttp.LimitedUngzipRequest(r.maxBodyBytes),
			gzippedhttp.GzipResponse,
		)

		api.Group(func(credentials chi.Router) {
			if r.authLimiter != nil {
				credentials.Use(ratelimit.Middleware(r.authLimiter, authRateLimitScope))
			}
			credentials.Post("/api/auth/register", r.PostApiauthregister)
			credentials.Post("/api/auth/login", r.PostApiauthlogin)
		})

		api.Group(func(books chi.Router) {
			books.Use(r.auth.AuthenticateUser)
			books.Post("/api/books", r.PostApibooks)
			books.Get("/api/books", r.GetApibooks)
			books.Get(routeBooksMine, r.GetApibooksmine)
			books.Get(routeBooksMineFallback, r.GetApibooksmine)
			books.Delete("/api/books/{id}", r.DeleteApibooksid)
		})

		api.With(r.trustGuard.TrustedOnly).Get(routeInternalStats, r.GetApiinternalstats)
	})

	if r.metrics != nil {
		router.Method(http.MethodGet, routeMetrics, r.metrics.Handler())
	}

	if r.mediaHandler != nil {
		router.Handle(routeMediaPrefix+"/*", r.mediaHandler)
	}

	router.NotFound(func(response http.ResponseWriter, request *http.Request) {
		writeMessage(response, http.StatusNotFound, "Not found")
	})

	return router
}

func (r *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := r.svc.Ping(request.Context()); err != nil {
		logger.Log.Errorw("storage ping failed", "err", err)
		writeMessage(response, http.StatusInternalServerError, msgInternalError)
		return
	}

	response.WriteHeader(http.StatusOK)
}

func (r *Router) PostApiauthregister(response http.ResponseWriter, request *http.Request) {
	var payload models.RegisterRequest
	if !decodeBody(response, request, &payload) {
		return
	}

	result, err := r.svc.Register(request.Context(), payload)
	if err != nil {
		writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusCreated, result)
}

func (r *Router) PostApiauthlogin(response http.ResponseWriter, request *http.Request) {
	var payload models.LoginRequest
	if !decodeBody(response, request, &payload) {
		return
	}

	result, err := r.svc.Login(request.Context(), payload)
	if err != nil {
		writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, result)
}

func (r *Router) PostApibooks(response http.ResponseWriter, request *http.Request) {
	usr, ok := auth.UserFromContext(request.Context())
	if !ok {
		writeMessage(response, http.StatusUnauthorized, msgForbidden)
		return
	}

	var payload models.CreateBookRequest
	if !decodeBody(response, request, &payload) {
		return
	}

	book, err := r.svc.CreateBook(request.Context(), usr.ID, payload)
	if err != nil {
		writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusCreated, models.CreateBookResponse{Message: msgBookCreated, Book: book})
}

func (r *Router) GetApibooks(response http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	page, limit, err := service.ParsePagination(query.Get("page"), query.Get("limit"))
	if err != nil {
		writeServiceError(response, err)
		return
	}

	result, err := r.svc.ListBooks(request.Context(), page, limit)
	if err != nil {
		writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, result)
}

func (r *Router) GetApibooksmine(response http.ResponseWriter, request *http.Request) {
	usr, ok := auth.UserFromContext(request.Context())
	if !ok {
		writeMessage(response, http.StatusUnauthorized, msgForbidden)
		return
	}

	books, err := r.svc.ListBooksByOwner(request.Context(), usr.ID)
	if err != nil {
		writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, books)
}

func (r *Router) DeleteApibooksid(response http.ResponseWriter, request *http.Request) {
	usr, ok := auth.UserFromContext(request.Context())
	if !ok {
		writeMessage(response, http.StatusUnauthorized, msgForbidden)
		return
	}

	err := r.svc.DeleteBook(request.Context(), chi.URLParam(request, "id"), usr.ID)
	if err != nil {
		writeServiceError(response, err)
		return
	}

	writeMessage(response, http.StatusOK, msgBookDeleted)
}

func (r *Router) GetApiinternalstats(response http.ResponseWriter, request *http.Request) {
	stats, err := r.svc.Stats(request.Context())
	if err != nil {
		writeServiceError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, stats)
}

// decodeBody writes the error response itself and reports whether the
// handler may go on.
func decodeBody(response http.ResponseWriter, request *http.Request, target interface{}) bool {
	err := json.NewDecoder(request.Body).Decode(target)
	if err == nil {
		return true
	}

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		writeMessage(response, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
	case errors.Is(err, io.EOF):
		writeMessage(response, http.StatusBadRequest, msgInvalidBody)
	default:
		logger.Log.Debugw("undecodable request body", "uri", request.RequestURI, "err", err)
		writeMessage(response, http.StatusBadRequest, msgInvalidBody)
	}

	return false
}

func writeServiceError(response http.ResponseWriter, err error) {
	var validationErr *service.ValidationError

	switch {
	case errors.As(err, &validationErr):
		writeMessage(response, http.StatusBadRequest, validationErr.Message)
	case errors.Is(err, service.ErrEmailTaken):
		writeMessage(response, http.StatusBadRequest, msgEmailTaken)
	case errors.Is(err, service.ErrUserNameTaken):
		writeMessage(response, http.StatusBadRequest, msgUserNameTaken)
	case errors.Is(err, service.ErrInvalidCredentials):
		writeMessage(response, http.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, service.ErrBookNotFound):
		writeMessage(response, http.StatusNotFound, msgBookNotFound)
	case errors.Is(err, service.ErrForbidden):
		writeMessage(response, http.StatusForbidden, msgForbidden)
	default:
		logger.Log.Errorw("request failed", "err", err)
		writeMessage(response, http.StatusInternalServerError, msgInternalError)
	}
}

func writeMessage(response http.ResponseWriter, status int, message string) {
	writeJSON(response, status, models.MessageResponse{Message: message})
}

func writeJSON(response http.ResponseWriter, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Errorw("response marshalling failed", "err", err)
		response.Header().Set("Content-Type", "application/json")
		response.WriteHeader(http.StatusInternalServerError)
		_, _ = response.Write([]byte(`{"message":"` + msgInternalError + `"}`))
		return
	}

	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if _, err := response.Write(body); err != nil {
		logger.Log.Debugw("response write failed", "err", err)
	}
}
