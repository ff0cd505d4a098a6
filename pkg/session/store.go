package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/0xmhha/session-keeper/pkg/clock"
	"github.com/0xmhha/session-keeper/pkg/logger"
	"github.com/0xmhha/session-keeper/pkg/protocol"
	"github.com/0xmhha/session-keeper/pkg/scheduler"
	"github.com/0xmhha/session-keeper/pkg/storage"
	"github.com/0xmhha/session-keeper/pkg/tabid"
)

// store implements the Store interface on top of a storage.Adapter.
type store struct {
	mu sync.Mutex

	adapter     *storage.Adapter
	identity    TabIdentity
	clock       clock.Clock
	sched       *scheduler.Scheduler
	broadcaster Broadcaster
	logger      logger.Logger
	config      Config

	// tempTasks holds the pending cleanup per temp key.
	tempTasks map[string]scheduler.Task
}

// New creates a session store.
//
// Parameters:
//   - cfg: Store limits; zero fields take defaults
//   - deps: Storage and collaborators; Adapter is required
//   - log: Logger instance
//
// Returns:
//   - Configured Store
//   - ErrMissingAdapter if deps.Adapter is nil
func New(cfg Config, deps Dependencies, log logger.Logger) (Store, error) {
	if deps.Adapter == nil {
		return nil, ErrMissingAdapter
	}

	defaults := DefaultConfig()
	if cfg.MaxSessionAge <= 0 {
		cfg.MaxSessionAge = defaults.MaxSessionAge
	}
	if cfg.MaxTempAge <= 0 {
		cfg.MaxTempAge = defaults.MaxTempAge
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaults.HistoryLimit
	}

	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Identity == nil {
		deps.Identity = tabid.New(deps.Clock)
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = nopBroadcaster{}
	}

	return &store{
		adapter:     deps.Adapter,
		identity:    deps.Identity,
		clock:       deps.Clock,
		sched:       deps.Scheduler,
		broadcaster: deps.Broadcaster,
		logger:      log,
		config:      cfg,
		tempTasks:   make(map[string]scheduler.Task),
	}, nil
}

// SaveSession implements Store.SaveSession.
func (s *store) SaveSession(rec *Record) bool {
	if err := s.SaveSessionE(rec); err != nil {
		s.logger.Warn("failed to save session", "error", err)
		return false
	}
	return true
}

// SaveSessionE implements Store.SaveSessionE.
func (s *store) SaveSessionE(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.save(rec)
	return err
}

// save stamps and writes rec. Caller must hold s.mu.
func (s *store) save(rec *Record) (*Record, error) {
	if rec == nil || !rec.Complete() {
		return nil, ErrInvalidRecord
	}

	out := rec.Clone()
	out.SavedAt = clock.Millis(s.clock.Now())
	out.TabID = s.identity.ID()
	out.Version = RecordVersion
	out.SensorConnections = normalizeSensors(out.SensorConnections)
	out.SensorCount = len(out.SensorConnections)

	if err := s.adapter.SetJSON(protocol.KeyActiveSession, out); err != nil {
		return nil, fmt.Errorf("write active session: %w", err)
	}

	s.appendHistory(HistoryEntry{
		SessionCode: out.SessionCode,
		GameType:    out.GameType,
		CreatedAt:   out.SavedAt,
	}, true)

	s.broadcaster.NotifyOtherTabs(protocol.TabSessionSaved, out)

	s.logger.Debug("session saved",
		"session_code", out.SessionCode,
		"state", out.State,
		"tab_id", out.TabID)

	return out, nil
}

// LoadSession implements Store.LoadSession.
func (s *store) LoadSession() *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

// load reads and validates the active session. Caller must hold s.mu.
func (s *store) load() *Record {
	var rec Record
	if !s.adapter.GetJSON(protocol.KeyActiveSession, &rec) {
		return nil
	}

	if !rec.Valid(s.clock.Now(), s.config.MaxSessionAge) {
		s.logger.Info("purging invalid session",
			"session_code", rec.SessionCode,
			"saved_at", rec.SavedAt,
			"complete", rec.Complete())
		s.adapter.Remove(protocol.KeyActiveSession)
		return nil
	}

	return &rec
}

// UpdateSession implements Store.UpdateSession.
func (s *store) UpdateSession(p Patch) bool {
	if err := s.UpdateSessionE(p); err != nil {
		if errors.Is(err, ErrNoActiveSession) {
			s.logger.Debug("update skipped", "reason", err)
		} else {
			s.logger.Warn("failed to update session", "error", err)
		}
		return false
	}
	return true
}

// UpdateSessionE implements Store.UpdateSessionE.
func (s *store) UpdateSessionE(p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.update(p)
	return err
}

// update merges p over the active session and saves it. Caller must hold s.mu.
func (s *store) update(p Patch) (*Record, error) {
	current := s.load()
	if current == nil {
		return nil, ErrNoActiveSession
	}

	if p.IfSavedAt != 0 && p.IfSavedAt != current.SavedAt {
		return nil, fmt.Errorf("%w: expected savedAt %d, stored %d",
			ErrStaleWrite, p.IfSavedAt, current.SavedAt)
	}

	return s.save(Merge(current, p, s.clock.Now()))
}

// UpdateSessionState implements Store.UpdateSessionState.
func (s *store) UpdateSessionState(state string, extra Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	extra.State = &StatePatch{State: state}
	saved, err := s.update(extra)
	if err != nil {
		s.logger.Warn("failed to update session state", "state", state, "error", err)
		return false
	}

	if state == StateEnded {
		s.markEnded(saved.SessionCode, saved.StateChangedAt)
		s.broadcaster.NotifyOtherTabs(protocol.TabSessionEnded, EndNotice{
			SessionCode: saved.SessionCode,
			EndedAt:     saved.StateChangedAt,
			Reason:      EndReasonState,
		})
	}
	return true
}

// UpdateSensorConnections implements Store.UpdateSensorConnections.
func (s *store) UpdateSensorConnections(sensors map[string]bool) bool {
	return s.UpdateSession(Patch{Sensors: &SensorPatch{Connected: ConnectedSensors(sensors)}})
}

// SaveGameState implements Store.SaveGameState.
func (s *store) SaveGameState(state json.RawMessage) bool {
	if state == nil {
		state = json.RawMessage("null")
	}
	if !json.Valid(state) {
		s.logger.Warn("rejecting malformed game state", "bytes", len(state))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saved, err := s.update(Patch{GameState: state})
	if err != nil {
		s.logger.Warn("failed to save game state", "error", err)
		return false
	}

	s.broadcaster.NotifyOtherTabs(protocol.TabGameStateChanged, GameStateNotice{
		SessionCode: saved.SessionCode,
		GameState:   saved.GameState,
	})
	return true
}

// ClearSession implements Store.ClearSession.
func (s *store) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Read without validation: an expired record still names its history entry.
	var rec Record
	found := s.adapter.GetJSON(protocol.KeyActiveSession, &rec)
	s.adapter.Remove(protocol.KeyActiveSession)

	if !found || rec.SessionCode == "" {
		return
	}

	endedAt := clock.Millis(s.clock.Now())
	s.markEnded(rec.SessionCode, endedAt)
	s.broadcaster.NotifyOtherTabs(protocol.TabSessionEnded, EndNotice{
		SessionCode: rec.SessionCode,
		EndedAt:     endedAt,
		Reason:      EndReasonCleared,
	})

	s.logger.Info("session cleared", "session_code", rec.SessionCode)
}

// HasActiveSession implements Store.HasActiveSession.
func (s *store) HasActiveSession() bool {
	return s.LoadSession() != nil
}

// ClearAll implements Store.ClearAll.
func (s *store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, task := range s.tempTasks {
		task.Cancel()
		delete(s.tempTasks, key)
	}

	for _, key := range protocol.OwnedKeys {
		s.adapter.Remove(key)
	}
	s.logger.Info("cleared all session data")
}

// nopBroadcaster drops notifications.
type nopBroadcaster struct{}

func (nopBroadcaster) NotifyOtherTabs(protocol.TabMessageType, interface{}) {}
