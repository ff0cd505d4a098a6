package session

import "errors"

// Common errors returned by the session store.
var (
	// ErrNoActiveSession is returned when an update finds no valid session.
	ErrNoActiveSession = errors.New("no active session")

	// ErrInvalidRecord is returned when a record lacks identity fields.
	ErrInvalidRecord = errors.New("invalid session record")

	// ErrStaleWrite is returned when a patch was computed against an older
	// version of the record than the one in storage.
	ErrStaleWrite = errors.New("stale session write")

	// ErrMissingAdapter is returned when the store is built without storage.
	ErrMissingAdapter = errors.New("storage adapter is required")
)
