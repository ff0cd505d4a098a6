package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/0xmhha/session-keeper/pkg/clock"
	"github.com/0xmhha/session-keeper/pkg/logger"
	"github.com/0xmhha/session-keeper/pkg/protocol"
	"github.com/0xmhha/session-keeper/pkg/session"
)

// Coordinator runs recovery attempts against one session store.
//
// Server responses are matched by message type only, so at most one
// attempt may be validating at a time; a concurrent attempt is refused
// with ErrInProgress.
type Coordinator struct {
	store  session.Store
	config Config
	logger logger.Logger

	inFlight atomic.Bool
}

// New creates a coordinator.
//
// Parameters:
//   - store: Store holding the persisted session
//   - cfg: Coordinator configuration; zero fields take defaults
//   - log: Logger instance
func New(store session.Store, cfg Config, log logger.Logger) *Coordinator {
	if cfg.ValidationTimeout <= 0 {
		cfg.ValidationTimeout = DefaultValidationTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	return &Coordinator{
		store:  store,
		config: cfg,
		logger: log,
	}
}

// Attempt tries to restore the persisted session onto collab.
func (c *Coordinator) Attempt(ctx context.Context, collab Collaborator, cb Callbacks) (result Result) {
	if collab == nil {
		return failure(ErrNoCollaborator)
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return failure(ErrInProgress)
	}
	defer c.inFlight.Store(false)

	rec := c.store.LoadSession()
	if rec == nil {
		c.logger.Debug("no session to recover")
		return Result{Reason: ReasonNoSavedSession}
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session recovery panicked", "session_code", rec.SessionCode, "panic", r)
			result = failure(fmt.Errorf("%w: %v", ErrPanicked, r))
		}
	}()

	log := c.logger.With("session_code", rec.SessionCode)

	valid, err := c.validate(ctx, collab, rec)
	if errors.Is(err, ErrInterrupted) {
		log.Info("session recovery interrupted, keeping record", "error", err)
		return failure(err)
	}
	if !valid {
		log.Info("session invalid on server, clearing", "error", err)
		c.store.ClearSession()
		return Result{Reason: ReasonSessionInvalidOnServer, Err: err}
	}

	c.restore(collab, rec, cb)

	if cb.OnSessionRecovered != nil {
		cb.OnSessionRecovered(rec)
	}

	log.Info("session recovered", "state", rec.State, "sensors", len(rec.SensorConnections))
	return Result{
		Success:     true,
		Reason:      ReasonRecovered,
		Session:     rec,
		RecoveredAt: c.config.Clock.Now(),
	}
}

// InProgress reports whether an attempt is validating.
func (c *Coordinator) InProgress() bool {
	return c.inFlight.Load()
}

// validate asks the server about rec. Every failure other than the caller
// giving up is an invalid verdict; the error says why.
func (c *Coordinator) validate(ctx context.Context, collab Collaborator, rec *session.Record) (bool, error) {
	verdicts := make(chan bool, 1)

	// Subscribe before sending: the answer may arrive before Send returns.
	unsubscribe := collab.Subscribe(func(in protocol.Inbound) {
		if in.Type != protocol.TypeValidationResult {
			return
		}
		var res protocol.ValidationResult
		if err := json.Unmarshal(in.Raw, &res); err != nil {
			c.logger.Warn("ignoring malformed validation result", "error", err)
			return
		}
		select {
		case verdicts <- res.IsValid:
		default:
		}
	})
	if unsubscribe != nil {
		defer unsubscribe()
	}

	req := protocol.NewValidateRequest(rec.SessionCode, rec.SessionID, rec.State)
	if err := collab.Send(ctx, req); err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}
		return false, fmt.Errorf("send validation request: %w", err)
	}
	c.logger.Debug("validation requested", "session_code", rec.SessionCode, "timeout", c.config.ValidationTimeout)

	timer := time.NewTimer(c.config.ValidationTimeout)
	defer timer.Stop()

	select {
	case valid := <-verdicts:
		if !valid {
			return false, ErrServerRejected
		}
		return true, nil
	case <-timer.C:
		c.logger.Warn("session validation timed out", "session_code", rec.SessionCode)
		return false, ErrValidationTimeout
	case <-ctx.Done():
		return false, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}
}

// restore copies rec onto collab.
func (c *Coordinator) restore(collab Collaborator, rec *session.Record, cb Callbacks) {
	collab.SetIdentity(rec.Identity)

	if rec.State != "" {
		collab.SetState(rec.State)
	}

	for _, id := range rec.SensorConnections {
		collab.SetSensorConnected(id, true)
		if cb.OnSensorReconnected != nil {
			cb.OnSensorReconnected(id)
		}
	}

	if hasPayload(rec.GameState) && cb.OnGameStateRestored != nil {
		cb.OnGameStateRestored(rec.GameState)
	}
}

func hasPayload(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func failure(err error) Result {
	return Result{Reason: ReasonRecoveryError, Err: err}
}

// IsTimeout reports whether res failed because the server never answered.
func IsTimeout(res Result) bool {
	return errors.Is(res.Err, ErrValidationTimeout)
}
