package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/0xmhha/session-keeper/pkg/clock"
	"github.com/0xmhha/session-keeper/pkg/config"
	"github.com/0xmhha/session-keeper/pkg/crosstab"
	"github.com/0xmhha/session-keeper/pkg/events"
	"github.com/0xmhha/session-keeper/pkg/logger"
	"github.com/0xmhha/session-keeper/pkg/recovery"
	"github.com/0xmhha/session-keeper/pkg/scheduler"
	"github.com/0xmhha/session-keeper/pkg/session"
	"github.com/0xmhha/session-keeper/pkg/storage"
	"github.com/0xmhha/session-keeper/pkg/syncdriver"
	"github.com/0xmhha/session-keeper/pkg/tabid"
)

// Manager owns the persistence components of one tab.
//
// Thread-safety: all methods are safe for concurrent use.
type Manager struct {
	substrate storage.Substrate
	ownsSub   bool
	opts      Options
	logger    logger.Logger

	adapter     *storage.Adapter
	identity    *tabid.Identity
	sched       *scheduler.Scheduler
	bus         *events.Bus
	channel     *crosstab.StorageChannel
	notifier    *crosstab.Notifier
	store       session.Store
	coordinator *recovery.Coordinator
	driver      *syncdriver.Driver

	mu          sync.Mutex
	initialized bool
	tornDown    bool
}

// New creates a manager over sub. The caller keeps ownership of sub.
//
// Parameters:
//   - sub: Shared storage substrate
//   - opts: Manager options; zero fields take defaults
//   - log: Logger instance
//
// Returns:
//   - Configured Manager, not yet initialized
//   - ErrNoSubstrate if sub is nil
func New(sub storage.Substrate, opts Options, log logger.Logger) (*Manager, error) {
	if sub == nil {
		return nil, ErrNoSubstrate
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	identity := tabid.New(opts.Clock)
	if opts.TabID != "" {
		identity = tabid.Fixed(opts.TabID)
	}
	log = log.With("tab_id", identity.ID())

	m := &Manager{
		substrate: sub,
		opts:      opts,
		logger:    log.Named("persistence"),
		identity:  identity,
		adapter:   storage.NewAdapter(sub, opts.Namespace, log.Named("storage")),
		sched:     scheduler.New(log.Named("scheduler")),
		bus:       events.NewBus(log.Named("events")),
	}

	m.channel = crosstab.NewStorageChannel(m.adapter, identity, m.sched, crosstab.ChannelConfig{
		ClearDelay: opts.ClearDelay,
		Clock:      opts.Clock,
	}, log.Named("crosstab"))
	m.notifier = crosstab.NewNotifier(m.channel, m.bus, identity, log.Named("crosstab"))

	store, err := session.New(opts.Session, session.Dependencies{
		Adapter:     m.adapter,
		Identity:    identity,
		Clock:       opts.Clock,
		Scheduler:   m.sched,
		Broadcaster: m.notifier,
	}, log.Named("session"))
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}
	m.store = store

	m.coordinator = recovery.New(store, recovery.Config{
		ValidationTimeout: opts.ValidationTimeout,
		Clock:             opts.Clock,
	}, log.Named("recovery"))

	m.driver = syncdriver.New(store, m.bus, m.sched, syncdriver.Config{
		Interval: opts.SyncInterval,
		Clock:    opts.Clock,
	}, log.Named("sync"))

	return m, nil
}

// Open builds the substrate described by cfg and a manager over it.
// The manager owns the substrate; Close releases it.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (*Manager, error) {
	sub, err := storage.Open(ctx, StorageOptionsFromConfig(cfg), log.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	m, err := New(sub, OptionsFromConfig(cfg), log)
	if err != nil {
		if closeErr := sub.Close(); closeErr != nil {
			log.Error("failed to close storage after initialization error", "error", closeErr)
		}
		return nil, err
	}
	m.ownsSub = true
	return m, nil
}

// Init starts the cross-tab listener and, when enabled, the periodic sync.
//
// Unavailable storage is not an error: the manager keeps working in
// degraded mode with every storage operation a no-op. Calling Init twice
// is a no-op.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tornDown {
		return ErrTornDown
	}
	if m.initialized {
		return nil
	}

	if err := m.notifier.Start(); err != nil {
		if !errors.Is(err, storage.ErrUnavailable) {
			return fmt.Errorf("failed to start cross-tab listener: %w", err)
		}
		m.logger.Warn("storage unavailable, running without cross-tab sync")
	}

	if m.opts.SyncEnabled {
		if err := m.driver.Start(); err != nil {
			m.notifier.Stop()
			return fmt.Errorf("failed to start periodic sync: %w", err)
		}
	}

	m.initialized = true
	m.logger.Info("session persistence initialized",
		"storage_available", m.adapter.IsAvailable(),
		"sync", m.opts.SyncEnabled)
	return nil
}

// Teardown stops the listener and the sync, cancels every scheduled task
// and removes every event handler. Safe to call multiple times; a torn
// down manager cannot be initialized again.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tornDown {
		return
	}
	m.tornDown = true

	m.driver.Stop()
	m.notifier.Stop()
	if err := m.channel.Close(); err != nil {
		m.logger.Warn("failed to close cross-tab channel", "error", err)
	}
	m.sched.Stop()
	m.bus.Clear()

	m.logger.Info("session persistence torn down")
}

// Close tears the manager down and releases the substrate it owns.
func (m *Manager) Close() error {
	m.Teardown()

	if !m.ownsSub {
		return nil
	}
	if err := m.substrate.Close(); err != nil && !errors.Is(err, storage.ErrClosed) {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}

// Store returns the session store.
func (m *Manager) Store() session.Store {
	return m.store
}

// Bus returns the local event bus.
func (m *Manager) Bus() *events.Bus {
	return m.bus
}

// On registers h for events named name.
func (m *Manager) On(name events.Name, h events.Handler) *events.Subscription {
	return m.bus.On(name, h)
}

// Off removes a registration made with On.
func (m *Manager) Off(sub *events.Subscription) {
	m.bus.Off(sub)
}

// AttemptSessionRecovery restores the persisted session onto collab.
func (m *Manager) AttemptSessionRecovery(ctx context.Context, collab recovery.Collaborator, cb recovery.Callbacks) recovery.Result {
	return m.coordinator.Attempt(ctx, collab, cb)
}

// SyncNow runs one sync round immediately.
func (m *Manager) SyncNow() bool {
	return m.driver.Tick()
}

// TabID returns the identity of this tab.
func (m *Manager) TabID() string {
	return m.identity.ID()
}

// StorageInfo describes the storage in use.
func (m *Manager) StorageInfo() Info {
	return Info{
		TabID:     m.identity.ID(),
		Available: m.adapter.IsAvailable(),
		Namespace: m.opts.Namespace,
		Usage:     m.adapter.Usage(),
		Listening: m.notifier.Listening(),
		Syncing:   m.driver.Running(),
		Pending:   m.sched.Pending(),
	}
}
