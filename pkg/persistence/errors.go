package persistence

import "errors"

// Common errors returned by the manager.
var (
	// ErrTornDown is returned when a torn down manager is initialized again.
	ErrTornDown = errors.New("manager has been torn down")

	// ErrNoSubstrate is returned when the manager is built without storage.
	ErrNoSubstrate = errors.New("storage substrate is required")
)
