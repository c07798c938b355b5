// Package metrics exposes Prometheus counters for HTTP traffic and
// bookshelf domain events.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Metrics owns a private registry so several instances can live in one
// process, which the router tests rely on.
type Metrics struct {
	registry        *prometheus.Registry
	requestTotal    *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	usersRegistered prometheus.Counter
	booksCreated    prometheus.Counter
	booksDeleted    prometheus.Counter
	mediaFailures   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookshelf",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bookshelf",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
		usersRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookshelf",
			Name:      "users_registered_total",
			Help:      "Number of successful registrations",
		}),
		booksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookshelf",
			Name:      "books_created_total",
			Help:      "Number of books posted",
		}),
		booksDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookshelf",
			Name:      "books_deleted_total",
			Help:      "Number of books deleted",
		}),
		mediaFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookshelf",
			Name:      "media_failures_total",
			Help:      "Failed calls to the media host",
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestTotal,
		m.requestLatency,
		m.usersRegistered,
		m.booksCreated,
		m.booksDeleted,
		m.mediaFailures,
	)

	return m
}

func (m *Metrics) UserRegistered() {
	m.usersRegistered.Inc()
}

func (m *Metrics) BookCreated() {
	m.booksCreated.Inc()
}

func (m *Metrics) BookDeleted() {
	m.booksDeleted.Inc()
}

func (m *Metrics) MediaFailure(operation string) {
	m.mediaFailures.WithLabelValues(operation).Inc()
}

// Middleware records count and latency per chi route pattern, so
// /api/books/{id} is one series whatever the id.
func (m *Metrics) Middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(response, request.ProtoMajor)

		h.ServeHTTP(ww, request)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := "unmatched"
		if routeCtx := chi.RouteContext(request.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		labels := prometheus.Labels{
			"method": request.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		m.requestTotal.With(labels).Inc()
		m.requestLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
