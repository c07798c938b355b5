// Package ratelimit throttles the credential endpoints per client address.
// Two backends exist: an in-process token bucket for a single instance and
// a Redis fixed-window counter shared by every instance.
package ratelimit

import (
	"context"
	"net/http"

	"github.com/patric-chuzhbe/bookshelf/internal/ipchecker"
	"github.com/patric-chuzhbe/bookshelf/internal/logger"
)

// Limiter decides whether one more request for key fits into its budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

const tooManyRequestsBody = `{"message":"Too many requests, please try again later"}`

// Middleware rejects requests over budget with 429. The bucket key is the
// client IP prefixed by scope so that separate route groups do not share
// a budget. Limiter failures let the request through.
func Middleware(limiter Limiter, scope string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
			key := scope + ":" + request.RemoteAddr
			if clientIP, err := ipchecker.GetClientIP(request); err == nil {
				key = scope + ":" + clientIP.String()
			}

			allowed, err := limiter.Allow(request.Context(), key)
			if err != nil {
				logger.Log.Errorw("rate limiter failure, letting the request through", "key", key, "err", err)
				allowed = true
			}

			if !allowed {
				logger.Log.Infow("rate limit exceeded", "key", key, "path", request.URL.Path)
				response.Header().Set("Content-Type", "application/json")
				response.WriteHeader(http.StatusTooManyRequests)
				_, _ = response.Write([]byte(tooManyRequestsBody))
				return
			}

			h.ServeHTTP(response, request)
		})
	}
}
