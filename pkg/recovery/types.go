// Package recovery restores a persisted session onto a live session object
// after a reload.
//
// An attempt loads the stored record, asks the server whether the session
// is still live, and then either purges the record or copies it onto the
// collaborator and runs the registered callbacks. Every failure becomes a
// Result; Attempt never panics or returns an error.
//
// Validation fails closed: no answer within ValidationTimeout, a send
// failure and a cancelled context all count as an invalid session.
//
// Example usage:
//
//	c := recovery.New(store, recovery.Config{}, log)
//	res := c.Attempt(ctx, sdk, recovery.Callbacks{
//	    OnSessionRecovered: func(rec *session.Record) { ... },
//	})
//	if !res.Success {
//	    log.Info("starting fresh", "reason", res.Reason)
//	}
package recovery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/0xmhha/session-keeper/pkg/clock"
	"github.com/0xmhha/session-keeper/pkg/protocol"
	"github.com/0xmhha/session-keeper/pkg/session"
)

// DefaultValidationTimeout bounds the wait for the server's verdict.
const DefaultValidationTimeout = 5 * time.Second

// Reason explains the outcome of an attempt.
type Reason string

// Outcome reasons.
const (
	ReasonRecovered              Reason = "recovered"
	ReasonNoSavedSession         Reason = "no_saved_session"
	ReasonSessionInvalidOnServer Reason = "session_invalid_on_server"
	ReasonRecoveryError          Reason = "recovery_error"
)

// Collaborator is the live session object recovery restores onto. It is
// also the transport to the server.
type Collaborator interface {
	// Send delivers msg to the server.
	Send(ctx context.Context, msg protocol.Message) error

	// Subscribe registers fn for server messages and returns a function
	// that removes it.
	Subscribe(fn func(protocol.Inbound)) (unsubscribe func())

	// SetIdentity copies the identity fields onto the live object.
	SetIdentity(id session.Identity)

	// SetState applies the lifecycle state.
	SetState(state string)

	// SetSensorConnected marks one sensor.
	SetSensorConnected(id string, connected bool)
}

// Callbacks are invoked while restoring. Nil callbacks are skipped.
type Callbacks struct {
	// OnSessionRecovered receives the full record once restoring is done.
	OnSessionRecovered func(rec *session.Record)

	// OnSensorReconnected is called once per restored sensor.
	OnSensorReconnected func(id string)

	// OnGameStateRestored receives the stored game payload, uninterpreted.
	OnGameStateRestored func(state json.RawMessage)
}

// Result is the outcome of one attempt.
type Result struct {
	Success     bool
	Reason      Reason
	Session     *session.Record
	RecoveredAt time.Time
	Err         error
}

// Config contains coordinator configuration.
type Config struct {
	// ValidationTimeout bounds the server round trip.
	// Default: 5s.
	ValidationTimeout time.Duration

	// Clock stamps RecoveredAt. Default: clock.Real.
	Clock clock.Clock
}
