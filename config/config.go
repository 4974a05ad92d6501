// Package config loads estateauth settings from the process environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreFS        = "fs"
	StoreDatastore = "datastore"
	StoreMongo     = "mongo"
	StorePostgres  = "postgres"
)

// Config is read once at start-up and not modified afterwards.
type Config struct {
	Addr string `env:"ESTATEAUTH_ADDR" envDefault:":8080"`

	JWTSecret       string        `env:"JWT_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"estateauth"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string        `env:"GOOGLE_REDIRECT_URL"`
	OAuthTimeout       time.Duration `env:"OAUTH_TIMEOUT" envDefault:"10s"`

	AdminEmailDomain string `env:"ADMIN_EMAIL_DOMAIN"`
	LoginRateLimit   int    `env:"LOGIN_RATE_LIMIT" envDefault:"20"`

	Store       string `env:"ESTATEAUTH_STORE" envDefault:"fs"`
	StoragePath string `env:"ESTATEAUTH_STORAGE_PATH" envDefault:"./data"`

	DatastoreProject string `env:"DATASTORE_PROJECT"`
	TenantNamespace  string `env:"TENANT_NAMESPACE"`

	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"realestate"`

	PostgresDSN string `env:"POSTGRES_DSN"`

	S3 S3Config
}

type S3Config struct {
	Endpoint       string `env:"S3_ENDPOINT"`
	Bucket         string `env:"S3_BUCKET"`
	Region         string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey      string `env:"S3_ACCESS_KEY"`
	SecretKey      string `env:"S3_SECRET_KEY"`
	PublicBaseURL  string `env:"S3_PUBLIC_BASE_URL"`
	ForcePathStyle bool   `env:"S3_FORCE_PATH_STYLE"`
}

// Enabled reports whether an image bucket is configured
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// GoogleEnabled reports whether Google sign-in credentials are present
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// Load reads envFile (if non-empty and present) into the environment without
// overriding variables that are already set, then parses and validates the
// configuration.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required settings for the selected backend
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}
	if c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must be positive"))
	}
	if c.OAuthTimeout <= 0 {
		errs = append(errs, errors.New("OAUTH_TIMEOUT must be positive"))
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together"))
	}

	switch c.Store {
	case StoreFS:
		if c.StoragePath == "" {
			errs = append(errs, errors.New("ESTATEAUTH_STORAGE_PATH is required for the fs store"))
		}
	case StoreDatastore:
		if c.DatastoreProject == "" {
			errs = append(errs, errors.New("DATASTORE_PROJECT is required for the datastore store"))
		}
	case StoreMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			errs = append(errs, errors.New("MONGO_URI and MONGO_DATABASE are required for the mongo store"))
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ESTATEAUTH_STORE %q", c.Store))
	}
	return errors.Join(errs...)
}
