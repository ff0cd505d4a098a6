package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables read by the loader.
const (
	EnvConfig   = "SESSION_KEEPER_CONFIG"
	EnvStore    = "SESSION_KEEPER_STORE"
	EnvBackend  = "SESSION_KEEPER_BACKEND"
	EnvRedisURL = "SESSION_KEEPER_REDIS_URL"
	EnvLogLevel = "SESSION_KEEPER_LOG_LEVEL"
)

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Environment variables
	// 2. Configuration file
	// 3. Default values
	//
	// Returns the merged configuration or an error if validation fails.
	Load() (*Config, error)

	// LoadFromFile loads configuration from a specific file.
	LoadFromFile(path string) (*Config, error)

	// Path returns the config file Load would read, or "" if none exists.
	Path() string
}

// loader implements the Loader interface.
type loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
//
// If configPath is empty, uses $SESSION_KEEPER_CONFIG, then searches:
// 1. ./session-keeper.yaml (current directory)
// 2. ~/.config/session-keeper/config.yaml.
func NewLoader(configPath string) Loader {
	if configPath == "" {
		configPath = os.Getenv(EnvConfig)
	}
	return &loader{
		configPath: configPath,
	}
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	cfg := Default()

	configPath := l.Path()
	if configPath != "" {
		fileCfg, err := l.LoadFromFile(configPath)
		if err != nil {
			// An explicitly named file must load.
			if l.configPath != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		} else {
			cfg = l.mergeConfigs(cfg, fileCfg)
		}
	}

	cfg = l.applyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile implements Loader.LoadFromFile.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}

// Path implements Loader.Path.
func (l *loader) Path() string {
	if l.configPath != "" {
		return l.configPath
	}
	return l.findConfigFile()
}

// findConfigFile searches for a config file in standard locations.
//
// Returns empty string if no config file is found.
func (l *loader) findConfigFile() string {
	candidates := []string{
		"./session-keeper.yaml",
		DefaultConfigPath(),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// mergeConfigs merges file configuration into default configuration.
//
// File values override defaults, but only if they are non-zero.
func (l *loader) mergeConfigs(base, override *Config) *Config {
	result := *base

	// Storage
	if override.Storage.Backend != "" {
		result.Storage.Backend = strings.ToLower(override.Storage.Backend)
	}
	if override.Storage.Path != "" {
		result.Storage.Path = override.Storage.Path
	}
	if override.Storage.RedisURL != "" {
		result.Storage.RedisURL = override.Storage.RedisURL
	}
	if override.Storage.Namespace != "" {
		result.Storage.Namespace = override.Storage.Namespace
	}
	if override.Storage.QuotaBytes != 0 {
		result.Storage.QuotaBytes = override.Storage.QuotaBytes
	}
	if override.Storage.OpenTimeout > 0 {
		result.Storage.OpenTimeout = override.Storage.OpenTimeout
	}

	// Session
	if override.Session.MaxSessionAge > 0 {
		result.Session.MaxSessionAge = override.Session.MaxSessionAge
	}
	if override.Session.MaxTempAge > 0 {
		result.Session.MaxTempAge = override.Session.MaxTempAge
	}
	if override.Session.HistoryLimit > 0 {
		result.Session.HistoryLimit = override.Session.HistoryLimit
	}

	// Crosstab
	if override.Crosstab.ClearDelay > 0 {
		result.Crosstab.ClearDelay = override.Crosstab.ClearDelay
	}
	if override.Crosstab.Debounce > 0 {
		result.Crosstab.Debounce = override.Crosstab.Debounce
	}

	// Recovery
	if override.Recovery.ValidationTimeout > 0 {
		result.Recovery.ValidationTimeout = override.Recovery.ValidationTimeout
	}

	// Sync; Enabled is a pointer so an explicit false survives
	if override.Sync.Interval > 0 {
		result.Sync.Interval = override.Sync.Interval
	}
	if override.Sync.Enabled != nil {
		enabled := *override.Sync.Enabled
		result.Sync.Enabled = &enabled
	}

	// Display
	if override.Display.Format != "" {
		result.Display.Format = override.Display.Format
	}
	if override.Display.Color != "" {
		result.Display.Color = override.Display.Color
	}

	// Logging
	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Output != "" {
		result.Logging.Output = override.Logging.Output
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}

	return &result
}

// applyEnvVars applies environment variable overrides to the configuration.
//
// Supported environment variables:
//   - SESSION_KEEPER_STORE: Path to the bolt store file
//   - SESSION_KEEPER_BACKEND: Storage backend
//   - SESSION_KEEPER_REDIS_URL: Redis connection URL
//   - SESSION_KEEPER_LOG_LEVEL: Log level
func (l *loader) applyEnvVars(cfg *Config) *Config {
	result := *cfg

	if path := os.Getenv(EnvStore); path != "" {
		result.Storage.Path = path
	}

	if backend := os.Getenv(EnvBackend); backend != "" {
		result.Storage.Backend = strings.ToLower(strings.TrimSpace(backend))
	}

	if redisURL := os.Getenv(EnvRedisURL); redisURL != "" {
		result.Storage.RedisURL = redisURL
	}

	if logLevel := os.Getenv(EnvLogLevel); logLevel != "" {
		result.Logging.Level = strings.ToLower(logLevel)
	}

	return &result
}

// Load is a convenience function that creates a loader and loads configuration.
//
// Equivalent to:
//
//	loader := NewLoader("")
//	return loader.Load()
func Load() (*Config, error) {
	return NewLoader("").Load()
}

// LoadFromFile is a convenience function that loads configuration from a file.
//
// Equivalent to:
//
//	loader := NewLoader(path)
//	return loader.Load()
func LoadFromFile(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes the configuration to a YAML file.
//
// Creates parent directories if they don't exist.
// File is created with 0600 permissions (read/write for owner only).
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
