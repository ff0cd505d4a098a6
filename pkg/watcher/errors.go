package watcher

import "errors"

var (
	// ErrNoPath is returned by New when Config.Path is empty.
	ErrNoPath = errors.New("watcher: no file path")

	// ErrMissingDir is returned by Start when the file's directory does not exist.
	ErrMissingDir = errors.New("watcher: directory does not exist")

	// ErrClosed is returned when using a closed watcher.
	ErrClosed = errors.New("watcher: closed")

	// ErrRunning is returned by Start on a running watcher.
	ErrRunning = errors.New("watcher: already running")

	// ErrNotRunning is returned by Stop on an idle watcher.
	ErrNotRunning = errors.New("watcher: not running")

	// ErrTooManyFailures is reported once the failure threshold is reached;
	// the watcher stops delivering changes afterwards.
	ErrTooManyFailures = errors.New("watcher: too many consecutive failures")
)
