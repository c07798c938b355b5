// Package app initializes and runs the bookshelf server.
// It configures logging, storage, the media host, authentication, rate limiting,
// metrics and routing, and handles graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/bookshelf/internal/auth"
	"github.com/patric-chuzhbe/bookshelf/internal/config"
	"github.com/patric-chuzhbe/bookshelf/internal/db/jsondb"
	"github.com/patric-chuzhbe/bookshelf/internal/db/memorystorage"
	"github.com/patric-chuzhbe/bookshelf/internal/db/mongodb"
	"github.com/patric-chuzhbe/bookshelf/internal/db/postgresdb"
	"github.com/patric-chuzhbe/bookshelf/internal/db/storage"
	"github.com/patric-chuzhbe/bookshelf/internal/ipchecker"
	"github.com/patric-chuzhbe/bookshelf/internal/keepalive"
	"github.com/patric-chuzhbe/bookshelf/internal/logger"
	"github.com/patric-chuzhbe/bookshelf/internal/mediahost"
	"github.com/patric-chuzhbe/bookshelf/internal/mediahost/cloudinary"
	"github.com/patric-chuzhbe/bookshelf/internal/mediahost/memoryhost"
	"github.com/patric-chuzhbe/bookshelf/internal/mediahost/s3host"
	"github.com/patric-chuzhbe/bookshelf/internal/metrics"
	"github.com/patric-chuzhbe/bookshelf/internal/models"
	"github.com/patric-chuzhbe/bookshelf/internal/ratelimit"
	"github.com/patric-chuzhbe/bookshelf/internal/router"
	"github.com/patric-chuzhbe/bookshelf/internal/service"
)

const (
	authRateWindow        = time.Minute
	limiterCleanupPeriod  = 5 * time.Minute
	shutdownTimeout       = 10 * time.Second
	keepAliveTimeout      = 30 * time.Second
	readHeaderTimeout     = 10 * time.Second
	unknownMediaHostError = "unknown media host"
)

type mediaHost interface {
	Upload(ctx context.Context, img *mediahost.Image) (string, error)

	Destroy(ctx context.Context, imageURL string) error

	Owns(imageURL string) bool
}

type closableLimiter interface {
	ratelimit.Limiter
	Close() error
}

// App holds the configuration, the HTTP handler, the storage backend and the
// background jobs of the bookshelf server.
type App struct {
	cfg            *config.Config
	db             storage.Storage
	keepAlive      *keepalive.KeepAlive
	redisLimiter   closableLimiter
	stopBackground context.CancelFunc
	httpHandler    http.Handler
}

// New loads the configuration, sets up logging and builds every component.
func New() (*App, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}

	err = logger.Init(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logConfigCheck(cfg)

	return newFromConfig(cfg)
}

// newFromConfig builds the components. Storage, media host and rate limiter
// backends are picked by what the configuration provides. On failure
// everything opened so far is released.
func newFromConfig(cfg *config.Config) (*App, error) {
	var err error
	app := &App{cfg: cfg}

	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	app.stopBackground = stopBackground

	app.db, err = getStorageByType(backgroundCtx, app.cfg)
	if err != nil {
		return nil, app.abort(err)
	}

	media, mediaHandler, err := getMediaHost(backgroundCtx, app.cfg)
	if err != nil {
		return nil, app.abort(err)
	}

	theAuth := auth.New(app.db, []byte(app.cfg.JWTSecret), app.cfg.TokenTTL)
	theMetrics := metrics.New()

	svc := service.New(
		app.db,
		media,
		theAuth,
		service.WithRecorder(theMetrics),
		service.WithStoreTimeout(app.cfg.DBConnectionTimeout),
		service.WithMediaTimeout(app.cfg.MediaTimeout),
	)

	checker, err := ipchecker.New(app.cfg.TrustedSubnet)
	if err != nil {
		return nil, app.abort(err)
	}

	routerOptions := []router.InitOption{
		router.WithTrustGuard(checker),
		router.WithMetrics(theMetrics),
		router.WithMaxBodyBytes(app.cfg.MaxBodyBytes),
		router.WithCORSOrigins(app.cfg.CORSAllowedOrigins),
		router.WithAuthLimiter(app.newAuthLimiter(backgroundCtx)),
	}
	if mediaHandler != nil {
		routerOptions = append(routerOptions, router.WithMediaHandler(mediaHandler))
	}

	app.httpHandler = router.New(svc, theAuth, routerOptions...).Routes()

	if app.cfg.KeepAliveURL != "" {
		app.keepAlive, err = keepalive.New(app.cfg.KeepAliveURL, app.cfg.KeepAliveSchedule, keepAliveTimeout)
		if err != nil {
			return nil, app.abort(err)
		}
		app.keepAlive.ListenErrors(func(err error) {
			logger.Log.Warnln("Error passed from the `app.keepAlive.ListenErrors()`:", zap.Error(err))
		})
		app.keepAlive.Run()
	}

	return app, nil
}

// abort releases what newFromConfig has opened so far and returns err.
func (a *App) abort(err error) error {
	a.stopBackgroundJobs(context.Background())
	a.closeStorage()

	return err
}

func (a *App) closeStorage() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		logger.Log.Warnln("Error calling the `a.db.Close()`:", zap.Error(err))
	}
}

// Run starts the HTTP server with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:              a.cfg.RunAddr,
		Handler:           a.httpHandler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Stopping background jobs and closing the storage...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		a.stopBackgroundJobs(shutdownCtx)

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return a.db.Close()

	case err := <-serverErrCh:
		a.stopBackgroundJobs(context.Background())
		a.closeStorage()
		return fmt.Errorf("server error: %w", err)
	}
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func (a *App) stopBackgroundJobs(ctx context.Context) {
	a.stopBackground()

	if a.keepAlive != nil {
		a.keepAlive.Stop(ctx)
	}

	if a.redisLimiter != nil {
		if err := a.redisLimiter.Close(); err != nil {
			logger.Log.Warnln("Error calling the `a.redisLimiter.Close()`:", zap.Error(err))
		}
	}
}

// newAuthLimiter prefers Redis so that every instance shares one budget and
// falls back to an in-process limiter when Redis is absent or unreachable.
func (a *App) newAuthLimiter(ctx context.Context) ratelimit.Limiter {
	if a.cfg.RedisAddr != "" {
		redisLimiter, err := ratelimit.NewRedisLimiter(
			ctx,
			a.cfg.RedisAddr,
			a.cfg.RedisPassword,
			a.cfg.RedisDB,
			a.cfg.AuthRateLimit,
			authRateWindow,
		)
		if err == nil {
			a.redisLimiter = redisLimiter
			return redisLimiter
		}
		logger.Log.Warnln("Redis rate limiter is unavailable, using the in-memory one:", zap.Error(err))
	}

	memoryLimiter := ratelimit.NewMemoryLimiter(a.cfg.AuthRateLimit, authRateWindow)
	memoryLimiter.StartCleanup(ctx, limiterCleanupPeriod)

	return memoryLimiter
}

func logConfigCheck(cfg *config.Config) {
	for _, line := range configCheckLines(cfg) {
		logger.Log.Infoln(line)
	}

	if cfg.JWTSecret == config.DevJWTSecret {
		logger.Log.Warnln("JWT_SECRET is not set, tokens are signed with the development secret")
	}
}

func configCheckLines(cfg *config.Config) []string {
	mark := func(present bool) string {
		if present {
			return "✓"
		}
		return "✗"
	}

	return []string{
		fmt.Sprintf("MONGO_URI: %s", mark(cfg.MongoURI != "")),
		fmt.Sprintf("DATABASE_DSN: %s", mark(cfg.DatabaseDSN != "")),
		fmt.Sprintf("FILE_STORAGE_PATH: %s", mark(cfg.DBFileName != "")),
		fmt.Sprintf("JWT_SECRET: %s", mark(cfg.JWTSecret != config.DevJWTSecret)),
		fmt.Sprintf("CLOUDINARY_CLOUD_NAME: %s", mark(cfg.CloudinaryCloudName != "")),
		fmt.Sprintf("CLOUDINARY_API_KEY: %s", mark(cfg.CloudinaryAPIKey != "")),
		fmt.Sprintf("CLOUDINARY_API_SECRET: %s", mark(cfg.CloudinaryAPISecret != "")),
		fmt.Sprintf("S3_BUCKET: %s", mark(cfg.S3Bucket != "")),
		fmt.Sprintf("REDIS_ADDR: %s", mark(cfg.RedisAddr != "")),
		fmt.Sprintf("API_URL: %s", mark(cfg.KeepAliveURL != "")),
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.MongoURI != "" {
		return models.StorageTypeMongo
	}

	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.DBFileName != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypeMongo:
		return mongodb.New(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.DBConnectionTimeout)

	case models.StorageTypePostgresql:
		return postgresdb.New(ctx, cfg.DatabaseDSN, cfg.DBConnectionTimeout, cfg.MigrationsDir)

	case models.StorageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	logger.Log.Warnln("No persistent storage configured, data lives in memory only")

	return memorystorage.New()
}

func getAvailableMediaHost(cfg *config.Config) string {
	if cfg.MediaHost != "" {
		return cfg.MediaHost
	}

	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		return models.MediaHostCloudinary
	}

	if cfg.S3Bucket != "" {
		return models.MediaHostS3
	}

	return models.MediaHostMemory
}

// getMediaHost returns the host and, for the in-memory host only, the
// handler that serves its images.
func getMediaHost(ctx context.Context, cfg *config.Config) (mediaHost, http.Handler, error) {
	switch getAvailableMediaHost(cfg) {
	case models.MediaHostCloudinary:
		host, err := cloudinary.New(cloudinary.Config{
			CloudName:    cfg.CloudinaryCloudName,
			APIKey:       cfg.CloudinaryAPIKey,
			APISecret:    cfg.CloudinaryAPISecret,
			Folder:       cfg.CloudinaryFolder,
			UploadPrefix: cfg.CloudinaryUploadPrefix,
			Timeout:      cfg.MediaTimeout,
		})
		return host, nil, err

	case models.MediaHostS3:
		host, err := s3host.New(ctx, s3host.Config{
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			BaseEndpoint:  cfg.S3BaseEndpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		return host, nil, err

	case models.MediaHostMemory:
		logger.Log.Warnln("No media host configured, images are kept in memory and served from", cfg.BaseURL+memoryhost.RoutePrefix)
		host := memoryhost.New(cfg.BaseURL)
		return host, host.Handler(), nil
	}

	return nil, nil, errors.New(unknownMediaHostError)
}
