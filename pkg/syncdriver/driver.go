// Package syncdriver periodically asks the application to reconcile the
// active session with the server.
//
// The driver performs no network I/O itself. Each tick it loads the
// active session and, when there is one, emits events.SyncRequested on
// the bus for the owning application to act on.
package syncdriver

import (
	"errors"
	"sync"
	"time"

	"github.com/0xmhha/session-keeper/pkg/clock"
	"github.com/0xmhha/session-keeper/pkg/events"
	"github.com/0xmhha/session-keeper/pkg/logger"
	"github.com/0xmhha/session-keeper/pkg/scheduler"
	"github.com/0xmhha/session-keeper/pkg/session"
)

// DefaultInterval is the time between sync requests.
const DefaultInterval = 30 * time.Second

// ErrNoScheduler is returned by Start without a scheduler.
var ErrNoScheduler = errors.New("sync driver has no scheduler")

// Config contains driver configuration.
type Config struct {
	// Interval between ticks.
	// Default: 30s.
	Interval time.Duration

	// Clock stamps emitted events. Default: clock.Real.
	Clock clock.Clock
}

// Driver emits periodic sync requests.
//
// Thread-safety: all methods are safe for concurrent use.
type Driver struct {
	store  session.Store
	bus    *events.Bus
	sched  *scheduler.Scheduler
	config Config
	logger logger.Logger

	mu   sync.Mutex
	task scheduler.Task
}

// New creates a driver. It does nothing until Start.
func New(store session.Store, bus *events.Bus, sched *scheduler.Scheduler, cfg Config, log logger.Logger) *Driver {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	return &Driver{
		store:  store,
		bus:    bus,
		sched:  sched,
		config: cfg,
		logger: log,
	}
}

// Start schedules the periodic tick. Starting a running driver is a no-op.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.task != nil {
		return nil
	}
	if d.sched == nil {
		return ErrNoScheduler
	}

	task, err := d.sched.Every("session-sync", d.config.Interval, func() { d.Tick() })
	if err != nil {
		return err
	}
	d.task = task

	d.logger.Debug("periodic sync started", "interval", d.config.Interval)
	return nil
}

// Stop cancels the periodic tick. Safe to call multiple times.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.task == nil {
		return
	}
	d.task.Cancel()
	d.task = nil

	d.logger.Debug("periodic sync stopped")
}

// Running reports whether the driver is started.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.task != nil
}

// Tick runs one sync round and reports whether an event was emitted.
func (d *Driver) Tick() bool {
	rec := d.store.LoadSession()
	if rec == nil {
		return false
	}

	d.bus.Emit(events.SyncRequested{At: d.config.Clock.Now(), Session: rec})
	d.logger.Debug("sync requested", "session_code", rec.SessionCode)
	return true
}
