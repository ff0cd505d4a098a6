package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrInvalidBackend is returned when the storage backend is not recognized.
	ErrInvalidBackend = errors.New("invalid storage backend: must be bolt, memory, or redis")

	// ErrNoStorePath is returned when the bolt backend has no file path.
	ErrNoStorePath = errors.New("no store path specified for bolt backend")

	// ErrInvalidRedisURL is returned when the redis backend has no usable URL.
	ErrInvalidRedisURL = errors.New("invalid redis URL")

	// ErrInvalidQuota is returned when the quota is negative.
	ErrInvalidQuota = errors.New("invalid quota: must be >= 0")

	// ErrInvalidOpenTimeout is returned when open timeout is <= 0.
	ErrInvalidOpenTimeout = errors.New("invalid open timeout: must be > 0")

	// ErrInvalidSessionAge is returned when max session age is <= 0.
	ErrInvalidSessionAge = errors.New("invalid max session age: must be > 0")

	// ErrInvalidTempAge is returned when max temp age is <= 0.
	ErrInvalidTempAge = errors.New("invalid max temp age: must be > 0")

	// ErrInvalidHistoryLimit is returned when history limit is <= 0.
	ErrInvalidHistoryLimit = errors.New("invalid history limit: must be > 0")

	// ErrInvalidClearDelay is returned when clear delay is <= 0.
	ErrInvalidClearDelay = errors.New("invalid clear delay: must be > 0")

	// ErrInvalidDebounce is returned when debounce is <= 0.
	ErrInvalidDebounce = errors.New("invalid debounce: must be > 0")

	// ErrInvalidValidationTimeout is returned when validation timeout is <= 0.
	ErrInvalidValidationTimeout = errors.New("invalid validation timeout: must be > 0")

	// ErrInvalidSyncInterval is returned when sync interval is <= 0.
	ErrInvalidSyncInterval = errors.New("invalid sync interval: must be > 0")

	// ErrInvalidDisplayFormat is returned when display format is not recognized.
	ErrInvalidDisplayFormat = errors.New("invalid display format: must be table, json, or simple")

	// ErrInvalidColorMode is returned when color mode is not recognized.
	ErrInvalidColorMode = errors.New("invalid color mode: must be auto, always, or never")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)
