// Package logger holds the global zap logger of the bookshelf and the HTTP
// middleware that writes one access line per request.
package logger

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Log is a global SugaredLogger instance from the zap logging library.
// It is a no-op logger until Init() is called.
var Log = zap.NewNop().Sugar()

type requestFieldsKey struct{}

// requestFields collects key/value pairs that handlers deeper in the chain
// want to see on the access line, such as the authenticated user id.
type requestFields struct {
	mu     sync.Mutex
	values []interface{}
}

// Init initializes the global logger configuration.
// It sets the output destination and global log level.
func Init(level string) error {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	zl, err := cfg.Build()
	if err != nil {
		return err
	}
	Log = zl.Sugar()

	return nil
}

// Sync flushes any buffered log entries to the output.
func Sync() error {
	if err := Log.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}

	return nil
}

// Annotate adds a field to the access line of the request carried by ctx.
// Outside WithLoggingHTTPMiddleware it does nothing.
func Annotate(ctx context.Context, key string, value interface{}) {
	fields, ok := ctx.Value(requestFieldsKey{}).(*requestFields)
	if !ok {
		return
	}

	fields.mu.Lock()
	defer fields.mu.Unlock()
	fields.values = append(fields.values, key, value)
}

// WithLoggingHTTPMiddleware logs method, route pattern, status, duration and
// response size of every request together with the fields added by Annotate.
// Request bodies are never logged since book payloads carry whole images.
func WithLoggingHTTPMiddleware(h http.Handler) http.Handler {
	logFn := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		fields := &requestFields{}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		h.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestFieldsKey{}, fields)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		keysAndValues := []interface{}{
			"method", r.Method,
			"uri", r.URL.Path,
			"route", routePattern(r),
			"status", status,
			"duration", time.Since(start),
			"size", ww.BytesWritten(),
		}
		if requestID := middleware.GetReqID(r.Context()); requestID != "" {
			keysAndValues = append(keysAndValues, "request_id", requestID)
		}
		fields.mu.Lock()
		keysAndValues = append(keysAndValues, fields.values...)
		fields.mu.Unlock()

		Log.Infow("request served", keysAndValues...)
	}

	return http.HandlerFunc(logFn)
}

// routePattern reports the chi pattern that matched the request.
func routePattern(r *http.Request) string {
	routeContext := chi.RouteContext(r.Context())
	if routeContext == nil {
		return ""
	}

	return routeContext.RoutePattern()
}
