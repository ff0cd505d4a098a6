// Package display provides output formatting for session records.
//
// It supports multiple output formats (table, JSON, simple text) for the
// active session, the session history, cross-tab events, recovery
// results and storage information.
package display

import (
	"io"
	"time"

	"github.com/0xmhha/session-keeper/pkg/events"
	"github.com/0xmhha/session-keeper/pkg/persistence"
	"github.com/0xmhha/session-keeper/pkg/recovery"
	"github.com/0xmhha/session-keeper/pkg/session"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays records in a formatted table.
	FormatTable Format = "table"

	// FormatJSON displays records as JSON.
	FormatJSON Format = "json"

	// FormatSimple displays records as one line of text.
	FormatSimple Format = "simple"
)

// Formatter formats and displays session data.
type Formatter interface {
	// FormatSession formats the active session; nil means none.
	//
	// Parameters:
	//   - w: Output writer
	//   - rec: Session record, or nil
	//
	// Returns error if formatting fails.
	FormatSession(w io.Writer, rec *session.Record) error

	// FormatHistory formats the session history, oldest first.
	FormatHistory(w io.Writer, entries []session.HistoryEntry) error

	// FormatEvent formats one event.
	FormatEvent(w io.Writer, ev events.Event) error

	// FormatRecovery formats the outcome of a recovery attempt.
	FormatRecovery(w io.Writer, res recovery.Result) error

	// FormatInfo formats storage information.
	FormatInfo(w io.Writer, info persistence.Info) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatTable.
	Format Format

	// Color enables ANSI colors for states in table output.
	// Default: false.
	Color bool

	// Compact enables compact output (less whitespace).
	// Default: false.
	Compact bool

	// Location is used for timestamps.
	// Default: time.Local.
	Location *time.Location
}
