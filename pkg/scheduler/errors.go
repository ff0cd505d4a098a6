package scheduler

import "errors"

// Common errors returned by the scheduler.
var (
	// ErrStopped is returned when scheduling on a stopped scheduler.
	ErrStopped = errors.New("scheduler stopped")

	// ErrInvalidInterval is returned for a non-positive periodic interval.
	ErrInvalidInterval = errors.New("invalid interval: must be > 0")
)
