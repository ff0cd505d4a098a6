// Package events carries notifications from the persistence layer to the
// application: changes made by other tabs and periodic sync requests.
//
// Events are a closed set of typed structs. Handlers registered on a Bus
// run synchronously in registration order; a panicking handler is logged
// and does not stop the others.
//
// Example usage:
//
//	bus := events.NewBus(log)
//	sub := events.Subscribe(bus, func(e events.SessionEndedByOtherTab) {
//	    fmt.Println("ended elsewhere:", e.Notice.SessionCode)
//	})
//	defer sub.Unsubscribe()
package events

import (
	"time"

	"github.com/0xmhha/session-keeper/pkg/session"
)

// Name identifies an event kind.
type Name string

// Event names.
const (
	NameSessionUpdatedByOtherTab   Name = "session_updated_by_other_tab"
	NameSessionEndedByOtherTab     Name = "session_ended_by_other_tab"
	NameGameStateChangedByOtherTab Name = "game_state_changed_by_other_tab"
	NameSyncRequested              Name = "sync_requested"
)

// Names lists every event name.
var Names = []Name{
	NameSessionUpdatedByOtherTab,
	NameSessionEndedByOtherTab,
	NameGameStateChangedByOtherTab,
	NameSyncRequested,
}

// Event is implemented by every event type.
type Event interface {
	Name() Name
}

// SessionUpdatedByOtherTab reports a session saved by another tab.
type SessionUpdatedByOtherTab struct {
	FromTab string
	At      time.Time
	Session *session.Record
}

// Name implements Event.Name.
func (SessionUpdatedByOtherTab) Name() Name { return NameSessionUpdatedByOtherTab }

// SessionEndedByOtherTab reports a session ended by another tab.
type SessionEndedByOtherTab struct {
	FromTab string
	At      time.Time
	Notice  session.EndNotice
}

// Name implements Event.Name.
func (SessionEndedByOtherTab) Name() Name { return NameSessionEndedByOtherTab }

// GameStateChangedByOtherTab reports a game payload change from another tab.
type GameStateChangedByOtherTab struct {
	FromTab string
	At      time.Time
	Notice  session.GameStateNotice
}

// Name implements Event.Name.
func (GameStateChangedByOtherTab) Name() Name { return NameGameStateChangedByOtherTab }

// SyncRequested asks the application to push the active session to the
// server. Emitted periodically while a session is active.
type SyncRequested struct {
	At      time.Time
	Session *session.Record
}

// Name implements Event.Name.
func (SyncRequested) Name() Name { return NameSyncRequested }
