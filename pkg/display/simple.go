package display

import (
	"fmt"
	"io"

	"github.com/0xmhha/session-keeper/pkg/events"
	"github.com/0xmhha/session-keeper/pkg/persistence"
	"github.com/0xmhha/session-keeper/pkg/recovery"
	"github.com/0xmhha/session-keeper/pkg/session"
)

// simpleFormatter formats output as simple text.
type simpleFormatter struct {
	config Config
}

// FormatSession implements Formatter.FormatSession.
func (f *simpleFormatter) FormatSession(w io.Writer, rec *session.Record) error {
	if rec == nil {
		_, err := fmt.Fprintln(w, "No active session")
		return err
	}

	_, err := fmt.Fprintf(w, "%s | %s | room %s | %s | sensors %d | saved %s by %s\n",
		rec.SessionCode,
		rec.GameType,
		rec.RoomID,
		orDash(rec.State),
		rec.SensorCount,
		formatMillis(rec.SavedAt, f.config.Location),
		orDash(rec.TabID))
	return err
}

// FormatHistory implements Formatter.FormatHistory.
func (f *simpleFormatter) FormatHistory(w io.Writer, entries []session.HistoryEntry) error {
	for i, e := range entries {
		if _, err := fmt.Fprintf(w, "#%d: %s (%s) created %s, %s\n",
			i+1,
			e.SessionCode,
			orDash(e.GameType),
			formatMillis(e.CreatedAt, f.config.Location),
			historyStatus(e)); err != nil {
			return err
		}
	}
	return nil
}

// FormatEvent implements Formatter.FormatEvent.
func (f *simpleFormatter) FormatEvent(w io.Writer, ev events.Event) error {
	v := viewEvent(ev)
	_, err := fmt.Fprintf(w, "%s %s from=%s session=%s %s\n",
		formatTime(v.At, f.config.Location),
		v.Event,
		orDash(v.FromTab),
		orDash(v.SessionCode),
		v.Detail)
	return err
}

// FormatRecovery implements Formatter.FormatRecovery.
func (f *simpleFormatter) FormatRecovery(w io.Writer, res recovery.Result) error {
	if res.Success && res.Session != nil {
		_, err := fmt.Fprintf(w, "recovered %s at %s\n",
			res.Session.SessionCode,
			formatTime(res.RecoveredAt, f.config.Location))
		return err
	}

	if res.Err != nil {
		_, err := fmt.Fprintf(w, "not recovered: %s (%v)\n", res.Reason, res.Err)
		return err
	}
	_, err := fmt.Fprintf(w, "not recovered: %s\n", res.Reason)
	return err
}

// FormatInfo implements Formatter.FormatInfo.
func (f *simpleFormatter) FormatInfo(w io.Writer, info persistence.Info) error {
	_, err := fmt.Fprintf(w, "tab %s | available %t | %d keys, %d bytes\n",
		info.TabID,
		info.Available,
		info.Usage.Keys,
		info.Usage.Bytes)
	return err
}
