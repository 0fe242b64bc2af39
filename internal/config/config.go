// Package config loads the license server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name, together with the section name
// (CNW_STORE_DATABASE_URL). Each setting also accepts its bare name
// (DATABASE_URL), which is how hosting platforms usually inject them.
const Prefix = "CNW"

// Storage drivers selected by the DATABASE_URL scheme.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// ErrMissing is returned by Validate when a required setting is empty.
var ErrMissing = errors.New("missing required configuration")

// Config represents the complete server configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Signing   SigningConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig

	// RequireConfig makes a missing database URL or signing secret fatal at
	// startup. When false the server starts anyway and /activate answers 500.
	RequireConfig bool `envconfig:"REQUIRE_CONFIG" default:"false"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `envconfig:"PORT" default:"8000"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	// TrustProxy keys rate limiting on X-Forwarded-For / X-Real-IP instead of
	// the socket address. Only safe behind a proxy that sets those headers.
	TrustProxy bool `envconfig:"TRUST_PROXY" default:"false"`
}

// StoreConfig selects and locates the License Store.
type StoreConfig struct {
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"cnw_license"`
}

// SigningConfig holds the credential signing secret.
type SigningConfig struct {
	Secret string `envconfig:"JWT_SECRET_KEY"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `envconfig:"LOG_LEVEL" default:"info"`
	Format   string `envconfig:"LOG_FORMAT" default:"text"`
	File     string `envconfig:"LOG_FILE"`
	Requests bool   `envconfig:"LOG_REQUESTS" default:"true"`
}

// RateLimitConfig contains rate limiting configuration for /activate.
// With RedisURL set, limits are shared across instances using a fixed
// window of Requests per Window; otherwise each instance applies RPS/Burst.
type RateLimitConfig struct {
	Enabled  bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RPS      float64       `envconfig:"RATE_LIMIT_RPS" default:"5"`
	Burst    int           `envconfig:"RATE_LIMIT_BURST" default:"10"`
	RedisURL string        `envconfig:"REDIS_URL"`
	Requests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	Window   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// Load reads a .env file from the working directory if one exists, then
// loads the configuration from environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.RequireConfig {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// Validate reports missing storage or signing configuration.
func (c *Config) Validate() error {
	var missing []string
	if c.Store.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Signing.Secret == "" {
		missing = append(missing, "JWT_SECRET_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}

// StoreDriver returns the storage driver selected by the database URL scheme,
// or "" if no database URL is configured.
func (c *Config) StoreDriver() (string, error) {
	if c.Store.DatabaseURL == "" {
		return "", nil
	}
	u, err := url.Parse(c.Store.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
		return DriverPostgres, nil
	case "mongodb", "mongodb+srv":
		return DriverMongo, nil
	default:
		return "", fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func (c *Config) check() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.Logging.Format)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate limit rps and burst must be positive")
		}
		if c.RateLimit.RedisURL != "" && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
			return fmt.Errorf("rate limit requests and window must be positive")
		}
	}
	if _, err := c.StoreDriver(); err != nil {
		return err
	}
	return nil
}
