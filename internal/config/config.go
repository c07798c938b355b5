// Package config assembles the server configuration from defaults, an optional
// JSON file, the environment (including a .env file) and command-line flags,
// in increasing order of priority, and validates the result.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/patric-chuzhbe/bookshelf/internal/models"
)

// Config holds every tunable of the bookshelf server.
type Config struct {
	ConfigFile string `env:"CONFIG" json:"-"`

	RunAddr  string `env:"SERVER_ADDRESS" json:"server_address" validate:"hostname_port"`
	BaseURL  string `env:"BASE_URL" json:"base_url" validate:"url"`
	LogLevel string `env:"LOG_LEVEL" json:"log_level" validate:"loglevel"`

	DBFileName          string        `env:"FILE_STORAGE_PATH" json:"file_storage_path" validate:"filepath"`
	DatabaseDSN         string        `env:"DATABASE_DSN" json:"database_dsn"`
	MongoURI            string        `env:"MONGO_URI" json:"mongo_uri"`
	MongoDatabase       string        `env:"MONGO_DATABASE" json:"mongo_database" validate:"required"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT" json:"db_connection_timeout" validate:"gt=0"`
	MigrationsDir       string        `env:"MIGRATIONS_DIR" json:"migrations_dir"`

	JWTSecret string        `env:"JWT_SECRET" json:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" json:"token_ttl" validate:"gt=0"`

	MediaHost    string        `env:"MEDIA_HOST" json:"media_host" validate:"mediahost"`
	MediaTimeout time.Duration `env:"MEDIA_TIMEOUT" json:"media_timeout" validate:"gt=0"`
	MaxBodyBytes int64         `env:"MAX_BODY_BYTES" json:"max_body_bytes" validate:"gt=0"`

	CloudinaryCloudName    string `env:"CLOUDINARY_CLOUD_NAME" json:"cloudinary_cloud_name"`
	CloudinaryAPIKey       string `env:"CLOUDINARY_API_KEY" json:"cloudinary_api_key"`
	CloudinaryAPISecret    string `env:"CLOUDINARY_API_SECRET" json:"cloudinary_api_secret"`
	CloudinaryFolder       string `env:"CLOUDINARY_FOLDER" json:"cloudinary_folder"`
	CloudinaryUploadPrefix string `env:"CLOUDINARY_UPLOAD_PREFIX" json:"cloudinary_upload_prefix" validate:"url"`

	S3Region        string `env:"S3_REGION" json:"s3_region"`
	S3Bucket        string `env:"S3_BUCKET" json:"s3_bucket"`
	S3BaseEndpoint  string `env:"S3_BASE_ENDPOINT" json:"s3_base_endpoint"`
	S3AccessKey     string `env:"S3_ACCESS_KEY" json:"s3_access_key"`
	S3SecretKey     string `env:"S3_SECRET_KEY" json:"s3_secret_key"`
	S3PublicBaseURL string `env:"S3_PUBLIC_BASE_URL" json:"s3_public_base_url"`

	TrustedSubnet string `env:"TRUSTED_SUBNET" json:"trusted_subnet" validate:"omitempty,cidr"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," json:"cors_allowed_origins" validate:"min=1,dive,required"`

	RedisAddr     string `env:"REDIS_ADDR" json:"redis_addr"`
	RedisPassword string `env:"REDIS_PASSWORD" json:"redis_password"`
	RedisDB       int    `env:"REDIS_DB" json:"redis_db" validate:"gte=0"`
	AuthRateLimit int    `env:"AUTH_RATE_LIMIT" json:"auth_rate_limit" validate:"gte=0"`

	KeepAliveURL      string `env:"API_URL" json:"api_url" validate:"omitempty,url"`
	KeepAliveSchedule string `env:"KEEPALIVE_SCHEDULE" json:"keepalive_schedule" validate:"required"`
}

// DevJWTSecret is only meant for local runs; app.New() warns when it is in use.
const DevJWTSecret = "bookshelf-development-secret-change-me"

var defaultConfig = Config{
	RunAddr:                ":3000",
	BaseURL:                "http://localhost:3000",
	LogLevel:               "info",
	MongoDatabase:          "bookshelf",
	DBConnectionTimeout:    10 * time.Second,
	MigrationsDir:          "cmd/bookshelf/migrations",
	JWTSecret:              DevJWTSecret,
	TokenTTL:               15 * 24 * time.Hour,
	MediaTimeout:           30 * time.Second,
	MaxBodyBytes:           50 << 20,
	CloudinaryUploadPrefix: "https://api.cloudinary.com",
	S3Region:               "us-east-1",
	CORSAllowedOrigins:     []string{"*"},
	AuthRateLimit:          20,
	KeepAliveSchedule:      "*/14 * * * *",
}

type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
	args                []string
}

// WithDisableFlagsParsing skips command-line parsing, which tests rely on.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// WithArgs replaces os.Args[1:] as the source of command-line flags.
func WithArgs(args []string) InitOption {
	return func(options *initOptions) {
		options.args = args
	}
}

func applyDefaults(values *Config, defaults Config) {
	*values = defaults
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	if path == "" {
		return true
	}
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	return allowedLogLevels[value]
}

func validateMediaHost(fieldLevel validator.FieldLevel) bool {
	switch fieldLevel.Field().String() {
	case "", models.MediaHostCloudinary, models.MediaHostS3, models.MediaHostMemory:
		return true
	}

	return false
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("filepath", validateFilePath)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("mediahost", validateMediaHost)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}

func (c *Config) clarifyBaseURL() error {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("in internal/config/config.go/clarifyBaseURL(): error while `url.Parse()` calling: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
	}
	c.BaseURL = strings.TrimRight(parsed.String(), "/")

	return nil
}

func (c *Config) loadJSON(fileName string) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `os.ReadFile()` calling: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `json.Unmarshal()` calling: %w", err)
	}

	return nil
}

func (c *Config) parseFlags(args []string) error {
	flags := flag.NewFlagSet("bookshelf", flag.ContinueOnError)
	flags.StringVar(&c.ConfigFile, "c", c.ConfigFile, "path to a JSON config file")
	flags.StringVar(&c.RunAddr, "a", c.RunAddr, "address and port to run server")
	flags.StringVar(&c.BaseURL, "b", c.BaseURL, "public base address of the server")
	flags.StringVar(&c.LogLevel, "l", c.LogLevel, "logger level")
	flags.StringVar(&c.DBFileName, "f", c.DBFileName, "JSON file name with database")
	flags.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "PostgreSQL connection string")
	flags.StringVar(&c.MongoURI, "m", c.MongoURI, "MongoDB connection URI")
	flags.StringVar(&c.JWTSecret, "s", c.JWTSecret, "token signing secret")
	flags.StringVar(&c.TrustedSubnet, "t", c.TrustedSubnet, "CIDR allowed to read internal stats")

	return flags.Parse(args)
}

// configFileFromArgs peeks at -c before the full flag pass so that the JSON
// file can sit below the environment in the priority chain.
func configFileFromArgs(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "-c" || arg == "--c":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "-c="):
			return strings.TrimPrefix(arg, "-c=")
		case strings.HasPrefix(arg, "--c="):
			return strings.TrimPrefix(arg, "--c=")
		}
	}

	return ""
}

// New builds the configuration. Priority: flags > environment > JSON file > defaults.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
		args:                os.Args[1:],
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	err := godotenv.Load()
	if err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	configFile := os.Getenv("CONFIG")
	if !options.disableFlagsParsing {
		if fromArgs := configFileFromArgs(options.args); fromArgs != "" {
			configFile = fromArgs
		}
	}
	if configFile != "" {
		if err := values.loadJSON(configFile); err != nil {
			return nil, err
		}
		values.ConfigFile = configFile
	}

	if err := env.Parse(values); err != nil {
		return nil, err
	}

	if !options.disableFlagsParsing {
		if err := values.parseFlags(options.args); err != nil {
			return nil, err
		}
	}

	if err := values.clarifyBaseURL(); err != nil {
		return nil, err
	}

	if err := values.validate(); err != nil {
		return nil, err
	}

	return values, nil
}
