// Package watcher tells a process that the shared store file changed.
//
// The bolt substrate is one file used by every process of an origin, and
// bbolt itself has no change feed. The watcher follows the file's
// directory with fsnotify, keeps only events for the store file and
// coalesces the burst a single commit produces into one Change.
//
// Example usage:
//
//	w, err := watcher.New(watcher.Config{
//	    Path:     "/var/lib/keeper/origin.db",
//	    Debounce: 25 * time.Millisecond,
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	for range w.Changes() {
//	    store.replayJournal()
//	}
package watcher

import (
	"context"
	"time"
)

// Kind classifies what happened to the file.
type Kind uint8

// Change kinds.
const (
	KindWritten  Kind = iota + 1 // contents modified in place
	KindReplaced                 // created or renamed into place
	KindRemoved                  // deleted or renamed away
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindWritten:
		return "written"
	case KindReplaced:
		return "replaced"
	case KindRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change reports that the watched file changed.
type Change struct {
	// Path is the watched file.
	Path string

	// Kind is the last kind seen in the coalesced burst.
	Kind Kind

	// Count is the number of raw events coalesced.
	Count int

	// At is when the burst was delivered.
	At time.Time
}

// Watcher follows one file.
type Watcher interface {
	// Start begins watching until ctx is cancelled or Stop is called.
	// The file itself may not exist yet; its directory must.
	Start(ctx context.Context) error

	// Stop ends watching. The watcher can be started again.
	Stop() error

	// Changes delivers coalesced changes. Closed by Close.
	Changes() <-chan Change

	// Errors delivers fsnotify errors and, once the failure threshold is
	// reached, ErrTooManyFailures. Closed by Close.
	Errors() <-chan error

	// Close releases the watcher. Safe to call more than once.
	Close() error
}

// Config contains watcher configuration.
type Config struct {
	// Path is the file to follow. Required.
	Path string

	// Debounce is the quiet period that ends a burst.
	// Default: 25ms.
	Debounce time.Duration

	// FailureThreshold is the number of consecutive fsnotify errors after
	// which the watcher gives up and reports ErrTooManyFailures.
	// Default: 5.
	FailureThreshold int
}
