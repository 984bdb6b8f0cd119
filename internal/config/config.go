// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load layers a YAML file and env vars on top.
// - Validation failures wrap ErrInvalidConfig; source failures wrap ErrLoadConfig.
package config

import (
	"fmt"
	"time"
)

// Store drivers accepted by store_driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Leaderboard limits are pinned to the public contract of 1..100 rows.
const (
	minLeaderboardLimit = 1
	maxLeaderboardLimit = 100
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the session log backend: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// DatabaseURL is the postgres connection string.
	DatabaseURL string `koanf:"database_url"`

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// AutoMigrate applies pending schema migrations at startup.
	AutoMigrate bool `koanf:"auto_migrate"`

	// StoreTimeoutMS bounds every store call.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`

	// JWTSecret verifies bearer tokens on submit. Empty rejects every token.
	JWTSecret string `koanf:"jwt_secret"`

	// AllowAnonymous accepts submissions without a token under a body-supplied username.
	AllowAnonymous bool `koanf:"allow_anonymous"`

	// AdminToken guards POST /admin/init-db. Empty disables it.
	AdminToken string `koanf:"admin_token"`

	// DefaultLeaderboardLimit applies when a request has no usable limit.
	DefaultLeaderboardLimit int `koanf:"default_leaderboard_limit"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// IdempotencyCacheSize bounds how many Idempotency-Key values are remembered.
	IdempotencyCacheSize int `koanf:"idempotency_cache_size"`

	// ShutdownTimeoutMS bounds graceful HTTP shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		StoreDriver:             DriverMemory,
		SQLitePath:              "nback.db",
		AutoMigrate:             true,
		StoreTimeoutMS:          5000,
		DefaultLeaderboardLimit: 50,
		MaxLeaderboardLimit:     100,
		IdempotencyCacheSize:    50_000,
		ShutdownTimeoutMS:       10_000,
	}
}

// StoreTimeout returns StoreTimeoutMS as a duration.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns ShutdownTimeoutMS as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// StoreDSN returns the connection string for the configured driver.
func (c *Config) StoreDSN() string {
	switch c.StoreDriver {
	case DriverPostgres:
		return c.DatabaseURL
	case DriverSQLite:
		return c.SQLitePath
	}
	return ""
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return invalid("sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return invalid("database_url is required for the postgres driver")
		}
	default:
		return invalid("store_driver must be memory, sqlite or postgres, got %q", c.StoreDriver)
	}

	if c.MaxLeaderboardLimit < minLeaderboardLimit || c.MaxLeaderboardLimit > maxLeaderboardLimit {
		return invalid("max_leaderboard_limit must be within [%d,%d], got %d",
			minLeaderboardLimit, maxLeaderboardLimit, c.MaxLeaderboardLimit)
	}
	if c.DefaultLeaderboardLimit < minLeaderboardLimit || c.DefaultLeaderboardLimit > c.MaxLeaderboardLimit {
		return invalid("default_leaderboard_limit must be within [%d,%d], got %d",
			minLeaderboardLimit, c.MaxLeaderboardLimit, c.DefaultLeaderboardLimit)
	}
	if c.StoreTimeoutMS <= 0 {
		return invalid("store_timeout_ms must be positive")
	}
	if c.IdempotencyCacheSize < 0 {
		return invalid("idempotency_cache_size must not be negative")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
