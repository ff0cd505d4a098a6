package display

import (
	"time"

	"github.com/0xmhha/session-keeper/pkg/events"
	"github.com/0xmhha/session-keeper/pkg/recovery"
	"github.com/0xmhha/session-keeper/pkg/session"
)

// eventView is the flattened form of an event used by every formatter.
type eventView struct {
	Event       string          `json:"event"`
	FromTab     string          `json:"fromTab,omitempty"`
	At          time.Time       `json:"at"`
	SessionCode string          `json:"sessionCode,omitempty"`
	Detail      string          `json:"detail,omitempty"`
	Session     *session.Record `json:"session,omitempty"`
	Notice      interface{}     `json:"notice,omitempty"`
}

func viewEvent(ev events.Event) eventView {
	v := eventView{Event: string(ev.Name())}

	switch e := ev.(type) {
	case events.SessionUpdatedByOtherTab:
		v.FromTab, v.At, v.Session = e.FromTab, e.At, e.Session
		if e.Session != nil {
			v.SessionCode = e.Session.SessionCode
			v.Detail = "state=" + orDash(e.Session.State)
		}
	case events.SessionEndedByOtherTab:
		v.FromTab, v.At, v.Notice = e.FromTab, e.At, e.Notice
		v.SessionCode = e.Notice.SessionCode
		v.Detail = "reason=" + orDash(e.Notice.Reason)
	case events.GameStateChangedByOtherTab:
		v.FromTab, v.At, v.Notice = e.FromTab, e.At, e.Notice
		v.SessionCode = e.Notice.SessionCode
		v.Detail = "gameState=" + string(e.Notice.GameState)
	case events.SyncRequested:
		v.At, v.Session = e.At, e.Session
		if e.Session != nil {
			v.SessionCode = e.Session.SessionCode
		}
	}
	return v
}

// resultView is a recovery.Result with the error as text.
type resultView struct {
	Success     bool            `json:"success"`
	Reason      string          `json:"reason"`
	Session     *session.Record `json:"session,omitempty"`
	RecoveredAt *time.Time      `json:"recoveredAt,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func viewResult(res recovery.Result) resultView {
	v := resultView{
		Success: res.Success,
		Reason:  string(res.Reason),
		Session: res.Session,
	}
	if !res.RecoveredAt.IsZero() {
		at := res.RecoveredAt
		v.RecoveredAt = &at
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	return v
}
