package storage

import "errors"

// Common errors returned by storage substrates and the adapter.
var (
	// ErrUnavailable is returned when the substrate cannot be used at all
	// (disabled storage, unreachable server, failed probe).
	ErrUnavailable = errors.New("storage unavailable")

	// ErrQuotaExceeded is returned when a write would exceed the size limit.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrClosed is returned when using a closed substrate handle.
	ErrClosed = errors.New("storage closed")

	// ErrMalformed is returned when a stored value cannot be decoded.
	ErrMalformed = errors.New("malformed stored value")

	// ErrInvalidKey is returned for an empty key.
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrUnknownBackend is returned when a backend name is not recognized.
	ErrUnknownBackend = errors.New("unknown storage backend")
)
