// Package session owns the records persisted for an origin: the single
// active session, a bounded history of past sessions, a map of short-lived
// temporary entries, and user preferences.
//
// Nothing is cached per tab. Every read goes back to shared storage, so
// the storage itself is the owner of the active session and every tab sees
// the latest write from any tab.
//
// Concurrent writers: storage offers last-write-wins and no compare-and-swap.
// Two tabs racing on UpdateSession can lose one tab's update entirely. A
// caller that needs to detect this sets Patch.IfSavedAt to the SavedAt of
// the record it read; the update then fails with ErrStaleWrite when another
// write landed in between. This narrows the window but does not close it.
//
// Example usage:
//
//	store, err := session.New(session.DefaultConfig(), session.Dependencies{
//	    Adapter:     adapter,
//	    Identity:    tab,
//	    Scheduler:   sched,
//	    Broadcaster: notifier,
//	}, log)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store.SaveSession(&session.Record{Identity: session.Identity{
//	    SessionCode: "4821", SessionID: "s-9f2", GameType: "solo", RoomID: "room-7",
//	}})
//	store.UpdateSessionState(session.StatePlaying, session.Patch{})
package session

import (
	"encoding/json"
	"time"

	"github.com/0xmhha/session-keeper/pkg/clock"
	"github.com/0xmhha/session-keeper/pkg/protocol"
	"github.com/0xmhha/session-keeper/pkg/scheduler"
	"github.com/0xmhha/session-keeper/pkg/storage"
)

// RecordVersion is stamped on every saved record.
const RecordVersion = "1.0"

// Lifecycle states. The store does not restrict transitions; consumers
// may use their own tags.
const (
	StateCreated = "created"
	StateWaiting = "waiting"
	StatePlaying = "playing"
	StateEnded   = "ended"
)

// Identity holds the fields that name a session. All are required.
type Identity struct {
	SessionCode string `json:"sessionCode"`
	SessionID   string `json:"sessionId"`
	GameType    string `json:"gameType"`
	RoomID      string `json:"roomId"`
}

// Complete reports whether every identity field is present.
func (i Identity) Complete() bool {
	return i.SessionCode != "" && i.SessionID != "" && i.GameType != "" && i.RoomID != ""
}

// Record is the canonical active session.
//
// Timestamps are Unix milliseconds.
type Record struct {
	Identity

	State          string `json:"state,omitempty"`
	StateChangedAt int64  `json:"stateChangedAt,omitempty"`

	// SensorConnections lists connected sensor ids, sorted.
	SensorConnections []string `json:"sensorConnections"`
	SensorCount       int      `json:"sensorCount"`

	// GameState belongs to the game and is stored without interpretation.
	GameState json.RawMessage `json:"gameState,omitempty"`

	SavedAt     int64  `json:"savedAt"`
	LastUpdated int64  `json:"lastUpdated,omitempty"`
	TabID       string `json:"tabId"`
	Version     string `json:"version"`
}

// Valid reports whether the record has a complete identity and was saved
// no longer than maxAge before now.
func (r *Record) Valid(now time.Time, maxAge time.Duration) bool {
	if r == nil || !r.Complete() {
		return false
	}
	return now.Sub(clock.FromMillis(r.SavedAt)) <= maxAge
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.SensorConnections != nil {
		out.SensorConnections = append([]string(nil), r.SensorConnections...)
	}
	if r.GameState != nil {
		out.GameState = append(json.RawMessage(nil), r.GameState...)
	}
	return &out
}

// SavedTime returns SavedAt as a time.
func (r *Record) SavedTime() time.Time {
	return clock.FromMillis(r.SavedAt)
}

// HistoryEntry summarizes one past or current session.
type HistoryEntry struct {
	SessionCode string `json:"sessionCode"`
	GameType    string `json:"gameType"`
	CreatedAt   int64  `json:"createdAt"`
	EndedAt     int64  `json:"endedAt,omitempty"`
}

// TempEntry is one value in the temporary data map.
type TempEntry struct {
	Data    json.RawMessage `json:"data"`
	SavedAt int64           `json:"savedAt"`
	TabID   string          `json:"tabId"`
}

// Preferences holds free-form user settings.
type Preferences map[string]json.RawMessage

// EndNotice is broadcast when a session ends.
type EndNotice struct {
	SessionCode string `json:"sessionCode"`
	EndedAt     int64  `json:"endedAt"`
	Reason      string `json:"reason,omitempty"`
}

// GameStateNotice is broadcast when the game payload changes.
type GameStateNotice struct {
	SessionCode string          `json:"sessionCode"`
	GameState   json.RawMessage `json:"gameState"`
}

// End reasons.
const (
	EndReasonCleared = "cleared"
	EndReasonState   = "state_ended"
)

// Patch is a typed partial update. Nil groups are left untouched; each
// non-nil group replaces the stored group (see Merge).
type Patch struct {
	// Identity replaces each non-empty identity field.
	Identity *Identity

	// State replaces the lifecycle tag and stamps StateChangedAt.
	State *StatePatch

	// Sensors replaces the connected sensor set.
	Sensors *SensorPatch

	// GameState replaces the opaque game payload when non-nil.
	GameState json.RawMessage

	// IfSavedAt, when non-zero, must equal the stored record's SavedAt.
	IfSavedAt int64
}

// StatePatch sets the lifecycle tag.
type StatePatch struct {
	State string
}

// SensorPatch sets the connected sensors.
type SensorPatch struct {
	Connected []string
}

// Broadcaster tells other tabs about local changes.
type Broadcaster interface {
	NotifyOtherTabs(messageType protocol.TabMessageType, data interface{})
}

// TabIdentity names the local tab.
type TabIdentity interface {
	ID() string
}

// Config contains store configuration.
type Config struct {
	// MaxSessionAge is the validity window of the active session.
	// Default: 1 hour.
	MaxSessionAge time.Duration

	// MaxTempAge is the lifetime of a temporary entry.
	// Default: 10 minutes.
	MaxTempAge time.Duration

	// HistoryLimit caps the session history ring.
	// Default: 10.
	HistoryLimit int
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxSessionAge: time.Hour,
		MaxTempAge:    10 * time.Minute,
		HistoryLimit:  10,
	}
}

// Dependencies are the collaborators of a store.
type Dependencies struct {
	// Adapter is the guarded storage. Required.
	Adapter *storage.Adapter

	// Identity names the local tab. Default: a fresh tabid.Identity.
	Identity TabIdentity

	// Clock provides timestamps. Default: clock.Real.
	Clock clock.Clock

	// Scheduler runs deferred temp-data cleanup. Optional; without it
	// expiry is only enforced on read.
	Scheduler *scheduler.Scheduler

	// Broadcaster notifies other tabs. Optional.
	Broadcaster Broadcaster
}

// Store manages the persisted session records of an origin.
//
// Boolean and pointer results follow one rule: failures are reported as
// false or nil and logged, never raised. The E variants return the error.
type Store interface {
	// SaveSession stamps SavedAt, TabID and Version, replaces the stored
	// record, appends to history and notifies other tabs.
	SaveSession(rec *Record) bool

	// SaveSessionE is SaveSession returning the failure cause.
	SaveSessionE(rec *Record) error

	// LoadSession returns the active session, or nil when there is none.
	// Expired, incomplete or malformed records are purged.
	LoadSession() *Record

	// UpdateSession merges p over the active session and saves it.
	// Returns false, leaving storage untouched, when there is no session.
	UpdateSession(p Patch) bool

	// UpdateSessionE is UpdateSession returning the failure cause.
	UpdateSessionE(p Patch) error

	// UpdateSessionState sets the lifecycle state, merging extra first.
	UpdateSessionState(state string, extra Patch) bool

	// UpdateSensorConnections stores the ids whose value is true.
	UpdateSensorConnections(sensors map[string]bool) bool

	// SaveGameState stores the opaque game payload.
	SaveGameState(state json.RawMessage) bool

	// ClearSession removes the active session. Safe to call repeatedly.
	ClearSession()

	// HasActiveSession reports whether LoadSession would return a record.
	HasActiveSession() bool

	// SaveTempData stores data under key for MaxTempAge.
	SaveTempData(key string, data interface{}) bool

	// LoadTempData decodes the entry under key into dst.
	// Returns false for absent or expired entries.
	LoadTempData(key string, dst interface{}) bool

	// ClearTempData removes one entry, or every entry when key is empty.
	ClearTempData(key string)

	// CleanupTempData removes every expired entry and returns the count.
	CleanupTempData() int

	// AddToHistory appends entry, evicting the oldest beyond HistoryLimit.
	AddToHistory(entry HistoryEntry)

	// GetSessionHistory returns history oldest first; empty on any failure.
	GetSessionHistory() []HistoryEntry

	// ClearHistory removes the history.
	ClearHistory()

	// SavePreferences replaces the stored preferences.
	SavePreferences(prefs Preferences) bool

	// LoadPreferences returns the stored preferences, never nil.
	LoadPreferences() Preferences

	// ClearAll removes every key owned by the store.
	ClearAll()
}
