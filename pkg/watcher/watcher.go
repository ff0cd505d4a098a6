package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xmhha/session-keeper/pkg/logger"
)

// fileWatcher implements Watcher with fsnotify on the parent directory.
// Watching the directory survives the file being replaced by rename.
type fileWatcher struct {
	fsw    *fsnotify.Watcher
	path   string
	dir    string
	config Config
	logger logger.Logger

	changes chan Change
	errors  chan error

	mu      sync.RWMutex
	running bool
	closed  bool
	stop    chan struct{}

	// Burst state, guarded by burstMu.
	burstMu sync.Mutex
	timer   *time.Timer
	kind    Kind
	count   int
}

// New creates a watcher for cfg.Path.
//
// Parameters:
//   - cfg: Watcher configuration
//   - log: Logger instance
//
// Returns:
//   - Configured Watcher, not yet started
//   - ErrNoPath if cfg.Path is empty, or the fsnotify error
func New(cfg Config, log logger.Logger) (Watcher, error) {
	if cfg.Path == "" {
		return nil, ErrNoPath
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 25 * time.Millisecond
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	path := filepath.Clean(cfg.Path)
	return &fileWatcher{
		fsw:     fsw,
		path:    path,
		dir:     filepath.Dir(path),
		config:  cfg,
		logger:  log,
		changes: make(chan Change, 16),
		errors:  make(chan error, 4),
	}, nil
}

// Start implements Watcher.Start.
func (w *fileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.running {
		return ErrRunning
	}

	info, err := os.Stat(w.dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrMissingDir, w.dir)
	}
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.running = true
	w.stop = make(chan struct{})
	go w.loop(ctx, w.stop)

	w.logger.Debug("watching store file", "path", w.path, "debounce", w.config.Debounce)
	return nil
}

// Stop implements Watcher.Stop.
func (w *fileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if !w.running {
		return ErrNotRunning
	}

	w.halt()
	return nil
}

// halt ends the loop and forgets the directory. Caller holds mu.
func (w *fileWatcher) halt() {
	close(w.stop)
	w.running = false
	if err := w.fsw.Remove(w.dir); err != nil {
		w.logger.Debug("failed to unwatch directory", "dir", w.dir, "error", err)
	}
	w.cancelBurst()
}

// Changes implements Watcher.Changes.
func (w *fileWatcher) Changes() <-chan Change {
	return w.changes
}

// Errors implements Watcher.Errors.
func (w *fileWatcher) Errors() <-chan error {
	return w.errors
}

// Close implements Watcher.Close.
func (w *fileWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if w.running {
		w.halt()
	}
	w.closed = true

	close(w.changes)
	close(w.errors)

	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// loop reads fsnotify until stopped.
func (w *fileWatcher) loop(ctx context.Context, stop <-chan struct{}) {
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if kind, relevant := w.classify(ev); relevant {
				failures = 0
				w.observe(kind)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			failures++
			if w.fail(err, failures) {
				return
			}
		}
	}
}

// classify maps an fsnotify event on the watched file to a Kind.
// Chmod and events on other files are ignored.
func (w *fileWatcher) classify(ev fsnotify.Event) (Kind, bool) {
	if filepath.Clean(ev.Name) != w.path {
		return 0, false
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return KindRemoved, true
	case ev.Has(fsnotify.Create):
		return KindReplaced, true
	case ev.Has(fsnotify.Write):
		return KindWritten, true
	default:
		return 0, false
	}
}

// observe adds one raw event to the current burst and restarts the quiet
// period.
func (w *fileWatcher) observe(kind Kind) {
	w.burstMu.Lock()
	defer w.burstMu.Unlock()

	w.kind = kind
	w.count++

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.config.Debounce, w.flush)
}

// flush delivers the burst.
func (w *fileWatcher) flush() {
	w.burstMu.Lock()
	change := Change{Path: w.path, Kind: w.kind, Count: w.count, At: time.Now()}
	w.kind, w.count, w.timer = 0, 0, nil
	w.burstMu.Unlock()

	if change.Count == 0 {
		return
	}

	// The read lock keeps Close from closing the channel during the send.
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}

	select {
	case w.changes <- change:
	default:
		// A pending change already tells the reader to look again.
		w.logger.Debug("change channel full, coalescing", "path", w.path)
	}
}

// cancelBurst drops a burst that has not been delivered.
func (w *fileWatcher) cancelBurst() {
	w.burstMu.Lock()
	defer w.burstMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.kind, w.count = 0, 0
}

// fail reports the failures-th consecutive fsnotify error. It returns true
// once the watcher gives up.
func (w *fileWatcher) fail(err error, failures int) bool {
	w.logger.Warn("store file watcher error", "error", err, "failures", failures)

	report := err
	giveUp := failures >= w.config.FailureThreshold
	if giveUp {
		report = ErrTooManyFailures
		w.logger.Error("store file watcher giving up", "threshold", w.config.FailureThreshold)
	}

	w.mu.RLock()
	if !w.closed {
		select {
		case w.errors <- report:
		default:
		}
	}
	w.mu.RUnlock()

	return giveUp
}
