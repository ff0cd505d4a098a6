package recovery

import "errors"

// Common errors reported in Result.Err.
var (
	// ErrValidationTimeout is reported when the server did not answer in time.
	ErrValidationTimeout = errors.New("session validation timed out")

	// ErrServerRejected is reported when the server declared the session invalid.
	ErrServerRejected = errors.New("session rejected by server")

	// ErrNoCollaborator is reported when recovery has nothing to restore onto.
	ErrNoCollaborator = errors.New("no collaborator to restore onto")

	// ErrInProgress is reported when another recovery is still validating.
	ErrInProgress = errors.New("recovery already in progress")

	// ErrInterrupted wraps the caller's context error when it ends
	// validation before the server answers. The record is kept.
	ErrInterrupted = errors.New("recovery interrupted")

	// ErrPanicked wraps a panic raised while validating or restoring.
	ErrPanicked = errors.New("recovery panicked")
)
