package display

import (
	"encoding/json"
	"io"

	"github.com/0xmhha/session-keeper/pkg/events"
	"github.com/0xmhha/session-keeper/pkg/persistence"
	"github.com/0xmhha/session-keeper/pkg/recovery"
	"github.com/0xmhha/session-keeper/pkg/session"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

func (f *jsonFormatter) encode(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	if !f.config.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}

// FormatSession implements Formatter.FormatSession.
func (f *jsonFormatter) FormatSession(w io.Writer, rec *session.Record) error {
	return f.encode(w, rec)
}

// FormatHistory implements Formatter.FormatHistory.
func (f *jsonFormatter) FormatHistory(w io.Writer, entries []session.HistoryEntry) error {
	if entries == nil {
		entries = []session.HistoryEntry{}
	}
	return f.encode(w, entries)
}

// FormatEvent implements Formatter.FormatEvent.
//
// Events are always written one per line so a stream stays line-delimited.
func (f *jsonFormatter) FormatEvent(w io.Writer, ev events.Event) error {
	return json.NewEncoder(w).Encode(viewEvent(ev))
}

// FormatRecovery implements Formatter.FormatRecovery.
func (f *jsonFormatter) FormatRecovery(w io.Writer, res recovery.Result) error {
	return f.encode(w, viewResult(res))
}

// FormatInfo implements Formatter.FormatInfo.
func (f *jsonFormatter) FormatInfo(w io.Writer, info persistence.Info) error {
	return f.encode(w, info)
}
