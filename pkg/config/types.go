// Package config provides configuration management for session-keeper.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Store: %s (%s)\n", cfg.Storage.Path, cfg.Storage.Backend)
package config

import (
	"net/url"
	"time"

	"github.com/0xmhha/session-keeper/pkg/logger"
)

// Storage backends.
const (
	BackendBolt   = "bolt"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config represents the complete application configuration.
//
// Invariants:
// - Storage.Backend is bolt, memory or redis
// - Storage.Path is set for bolt, Storage.RedisURL for redis
// - every duration and limit is > 0.
type Config struct {
	// Shared storage settings
	Storage StorageConfig `yaml:"storage"`

	// Session record limits
	Session SessionConfig `yaml:"session"`

	// Cross-tab channel settings
	Crosstab CrosstabConfig `yaml:"crosstab"`

	// Recovery settings
	Recovery RecoveryConfig `yaml:"recovery"`

	// Periodic sync settings
	Sync SyncConfig `yaml:"sync"`

	// Display settings
	Display DisplayConfig `yaml:"display"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig selects and tunes the shared substrate.
type StorageConfig struct {
	// Backend is bolt, memory or redis
	Backend string `yaml:"backend"`

	// Path to the bolt store file
	Path string `yaml:"path"`

	// Redis connection URL
	RedisURL string `yaml:"redis_url"`

	// Namespace prefixes every key
	Namespace string `yaml:"namespace"`

	// Quota caps stored bytes
	QuotaBytes int `yaml:"quota_bytes"`

	// How long to wait for the store file lock or the redis connection
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// SessionConfig contains record lifetimes.
type SessionConfig struct {
	// Validity window of the active session
	MaxSessionAge time.Duration `yaml:"max_session_age"`

	// Lifetime of temporary entries
	MaxTempAge time.Duration `yaml:"max_temp_age"`

	// Number of history entries kept
	HistoryLimit int `yaml:"history_limit"`
}

// CrosstabConfig contains cross-tab channel settings.
type CrosstabConfig struct {
	// How long a message stays under the shared key
	ClearDelay time.Duration `yaml:"clear_delay"`

	// Coalescing window for store file change notifications
	Debounce time.Duration `yaml:"debounce"`
}

// RecoveryConfig contains recovery settings.
type RecoveryConfig struct {
	// Maximum wait for the server's verdict
	ValidationTimeout time.Duration `yaml:"validation_timeout"`
}

// SyncConfig contains periodic sync settings.
type SyncConfig struct {
	// Time between sync requests
	Interval time.Duration `yaml:"interval"`

	// Enabled turns the periodic sync on; pointer so a file can say false
	Enabled *bool `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether periodic sync is on. Unset means on.
func (s SyncConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// DisplayConfig contains display-related settings.
type DisplayConfig struct {
	// Output format (table, json, simple)
	Format string `yaml:"format"`

	// Color mode (auto, always, never)
	Color string `yaml:"color"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output"`

	// Log format (text, json)
	Format string `yaml:"format"`
}

// Logger returns the logger configuration.
func (l LoggingConfig) Logger() logger.Config {
	return logger.Config{
		Level:  l.Level,
		Output: l.Output,
		Format: l.Format,
	}
}

// Validate checks if the configuration satisfies all invariants.
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendBolt:
		if c.Storage.Path == "" {
			return ErrNoStorePath
		}
	case BackendRedis:
		if _, err := url.Parse(c.Storage.RedisURL); err != nil || c.Storage.RedisURL == "" {
			return ErrInvalidRedisURL
		}
	case BackendMemory:
	default:
		return ErrInvalidBackend
	}
	if c.Storage.QuotaBytes < 0 {
		return ErrInvalidQuota
	}
	if c.Storage.OpenTimeout <= 0 {
		return ErrInvalidOpenTimeout
	}

	if c.Session.MaxSessionAge <= 0 {
		return ErrInvalidSessionAge
	}
	if c.Session.MaxTempAge <= 0 {
		return ErrInvalidTempAge
	}
	if c.Session.HistoryLimit <= 0 {
		return ErrInvalidHistoryLimit
	}

	if c.Crosstab.ClearDelay <= 0 {
		return ErrInvalidClearDelay
	}
	if c.Crosstab.Debounce <= 0 {
		return ErrInvalidDebounce
	}

	if c.Recovery.ValidationTimeout <= 0 {
		return ErrInvalidValidationTimeout
	}

	if c.Sync.Interval <= 0 {
		return ErrInvalidSyncInterval
	}

	validFormats := map[string]bool{
		"table":  true,
		"json":   true,
		"simple": true,
	}
	if !validFormats[c.Display.Format] {
		return ErrInvalidDisplayFormat
	}

	validColors := map[string]bool{
		"auto":   true,
		"always": true,
		"never":  true,
	}
	if !validColors[c.Display.Color] {
		return ErrInvalidColorMode
	}

	if !logger.ValidLevel(c.Logging.Level) {
		return ErrInvalidLogLevel
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}

// Default returns a configuration with sensible default values.
func Default() *Config {
	enabled := true
	return &Config{
		Storage: StorageConfig{
			Backend:     BackendBolt,
			Path:        defaultStorePath(),
			RedisURL:    "redis://localhost:6379/0",
			Namespace:   "",
			QuotaBytes:  5 << 20,
			OpenTimeout: time.Second,
		},
		Session: SessionConfig{
			MaxSessionAge: time.Hour,
			MaxTempAge:    10 * time.Minute,
			HistoryLimit:  10,
		},
		Crosstab: CrosstabConfig{
			ClearDelay: 100 * time.Millisecond,
			Debounce:   25 * time.Millisecond,
		},
		Recovery: RecoveryConfig{
			ValidationTimeout: 5 * time.Second,
		},
		Sync: SyncConfig{
			Interval: 30 * time.Second,
			Enabled:  &enabled,
		},
		Display: DisplayConfig{
			Format: "table",
			Color:  "auto",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}
