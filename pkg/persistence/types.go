// Package persistence assembles the session persistence stack for one tab:
// the guarded storage adapter, the tab identity, the session store, the
// cross-tab notifier, the recovery coordinator and the periodic sync.
//
// A Manager is an explicit instance with a lifecycle. Init starts listening
// to other tabs and the periodic sync; Teardown cancels every timer and
// listener the manager owns. Several managers may share one substrate
// origin, each acting as a separate tab.
//
// Example usage:
//
//	m, err := persistence.Open(ctx, cfg, log)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	if err := m.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	m.On(events.NameSessionEndedByOtherTab, func(e events.Event) { ... })
//	res := m.AttemptSessionRecovery(ctx, sdk, recovery.Callbacks{})
package persistence

import (
	"time"

	"github.com/0xmhha/session-keeper/pkg/clock"
	"github.com/0xmhha/session-keeper/pkg/config"
	"github.com/0xmhha/session-keeper/pkg/session"
	"github.com/0xmhha/session-keeper/pkg/storage"
)

// Options configures a Manager.
type Options struct {
	// Namespace prefixes every storage key.
	Namespace string

	// Session holds record limits.
	Session session.Config

	// ClearDelay is how long a cross-tab message stays stored.
	ClearDelay time.Duration

	// ValidationTimeout bounds the recovery round trip.
	ValidationTimeout time.Duration

	// SyncInterval is the time between sync requests.
	SyncInterval time.Duration

	// SyncEnabled starts the periodic sync on Init.
	SyncEnabled bool

	// Clock provides timestamps. Default: clock.Real.
	Clock clock.Clock

	// TabID fixes the tab identity instead of generating one.
	TabID string
}

// DefaultOptions returns options matching config.Default.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

// OptionsFromConfig maps the application configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Namespace: cfg.Storage.Namespace,
		Session: session.Config{
			MaxSessionAge: cfg.Session.MaxSessionAge,
			MaxTempAge:    cfg.Session.MaxTempAge,
			HistoryLimit:  cfg.Session.HistoryLimit,
		},
		ClearDelay:        cfg.Crosstab.ClearDelay,
		ValidationTimeout: cfg.Recovery.ValidationTimeout,
		SyncInterval:      cfg.Sync.Interval,
		SyncEnabled:       cfg.Sync.IsEnabled(),
	}
}

// StorageOptionsFromConfig maps the storage configuration onto the
// substrate options. The namespace is left to the Adapter, so the redis
// substrate keeps its own default prefix.
func StorageOptionsFromConfig(cfg *config.Config) storage.Options {
	return storage.Options{
		Backend: cfg.Storage.Backend,
		Bolt: storage.BoltOptions{
			Path:       cfg.Storage.Path,
			Timeout:    cfg.Storage.OpenTimeout,
			QuotaBytes: cfg.Storage.QuotaBytes,
			Debounce:   cfg.Crosstab.Debounce,
		},
		Redis: storage.RedisOptions{
			URL:        cfg.Storage.RedisURL,
			OpTimeout:  cfg.Storage.OpenTimeout,
			QuotaBytes: cfg.Storage.QuotaBytes,
		},
		MemoryQuota: cfg.Storage.QuotaBytes,
	}
}

// Info describes the storage a manager uses.
type Info struct {
	TabID     string        `json:"tabId"`
	Available bool          `json:"available"`
	Namespace string        `json:"namespace,omitempty"`
	Usage     storage.Usage `json:"usage"`
	Listening bool          `json:"listening"`
	Syncing   bool          `json:"syncing"`
	Pending   int           `json:"pendingTasks"`
}
