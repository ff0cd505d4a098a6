package display

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/0xmhha/session-keeper/pkg/events"
	"github.com/0xmhha/session-keeper/pkg/persistence"
	"github.com/0xmhha/session-keeper/pkg/recovery"
	"github.com/0xmhha/session-keeper/pkg/session"
)

// tableFormatter formats output as tables.
type tableFormatter struct {
	config Config
}

// FormatSession implements Formatter.FormatSession.
func (f *tableFormatter) FormatSession(w io.Writer, rec *session.Record) error {
	if rec == nil {
		_, err := fmt.Fprintln(w, "No active session")
		return err
	}

	if err := writeHeader(w, "Active Session", f.config.Compact); err != nil {
		return err
	}

	rows := [][]string{
		{"Session Code", rec.SessionCode},
		{"Session ID", rec.SessionID},
		{"Game Type", rec.GameType},
		{"Room", rec.RoomID},
		{"Sensors", fmt.Sprintf("%d (%s)", rec.SensorCount, sensorList(rec.SensorConnections))},
		{"Game State", gameStateSummary(rec)},
		{"Saved At", formatMillis(rec.SavedAt, f.config.Location)},
		{"Last Updated", formatMillis(rec.LastUpdated, f.config.Location)},
		{"Saved By", orDash(rec.TabID)},
		{"Version", orDash(rec.Version)},
	}
	if rec.StateChangedAt != 0 {
		rows = append(rows, []string{"State Changed", formatMillis(rec.StateChangedAt, f.config.Location)})
	}
	// State goes last so color codes never skew column padding.
	rows = append(rows, []string{"State", paintState(rec.State, f.config.Color)})

	return f.writeTable(w, []string{"Field", "Value"}, rows)
}

// FormatHistory implements Formatter.FormatHistory.
func (f *tableFormatter) FormatHistory(w io.Writer, entries []session.HistoryEntry) error {
	if err := writeHeader(w, "Session History", f.config.Compact); err != nil {
		return err
	}

	header := []string{"#", "Session Code", "Game Type", "Created", "Ended", "Status"}

	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			e.SessionCode,
			orDash(e.GameType),
			formatMillis(e.CreatedAt, f.config.Location),
			formatMillis(e.EndedAt, f.config.Location),
			historyStatus(e),
		}
	}

	return f.writeTable(w, header, rows)
}

// FormatEvent implements Formatter.FormatEvent.
func (f *tableFormatter) FormatEvent(w io.Writer, ev events.Event) error {
	v := viewEvent(ev)
	_, err := fmt.Fprintf(w, "%s  %-32s  %-24s  %-10s  %s\n",
		formatTime(v.At, f.config.Location),
		v.Event,
		orDash(v.FromTab),
		orDash(v.SessionCode),
		v.Detail)
	return err
}

// FormatRecovery implements Formatter.FormatRecovery.
func (f *tableFormatter) FormatRecovery(w io.Writer, res recovery.Result) error {
	if err := writeHeader(w, "Session Recovery", f.config.Compact); err != nil {
		return err
	}

	rows := [][]string{
		{"Success", strconv.FormatBool(res.Success)},
		{"Reason", string(res.Reason)},
	}
	if res.Session != nil {
		rows = append(rows,
			[]string{"Session Code", res.Session.SessionCode},
			[]string{"Game Type", res.Session.GameType},
		)
	}
	if !res.RecoveredAt.IsZero() {
		rows = append(rows, []string{"Recovered At", formatTime(res.RecoveredAt, f.config.Location)})
	}
	if res.Err != nil {
		rows = append(rows, []string{"Error", res.Err.Error()})
	}

	return f.writeTable(w, []string{"Field", "Value"}, rows)
}

// FormatInfo implements Formatter.FormatInfo.
func (f *tableFormatter) FormatInfo(w io.Writer, info persistence.Info) error {
	if err := writeHeader(w, "Storage", f.config.Compact); err != nil {
		return err
	}

	rows := [][]string{
		{"Tab ID", info.TabID},
		{"Available", strconv.FormatBool(info.Available)},
		{"Namespace", orDash(info.Namespace)},
		{"Keys", strconv.Itoa(info.Usage.Keys)},
		{"Bytes", strconv.Itoa(info.Usage.Bytes)},
		{"Listening", strconv.FormatBool(info.Listening)},
		{"Syncing", strconv.FormatBool(info.Syncing)},
		{"Pending Tasks", strconv.Itoa(info.Pending)},
	}

	return f.writeTable(w, []string{"Field", "Value"}, rows)
}

// gameStateSummary shortens the game state payload for a table cell.
func gameStateSummary(rec *session.Record) string {
	const maxLen = 48

	s := strings.TrimSpace(string(rec.GameState))
	if s == "" || s == "null" {
		return "-"
	}
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}

// writeTable writes a formatted table.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	// Calculate column widths.
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	// Write header.
	if err := f.writeRow(w, header, widths); err != nil {
		return err
	}

	// Write separator.
	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, width := range widths {
			separator[i] = strings.Repeat("-", width)
		}
		if err := f.writeRow(w, separator, widths); err != nil {
			return err
		}
	}

	// Write rows.
	for _, row := range rows {
		if err := f.writeRow(w, row, widths); err != nil {
			return err
		}
	}

	// Add spacing.
	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}

	return nil
}

// writeRow writes a single table row.
func (f *tableFormatter) writeRow(w io.Writer, cells []string, widths []int) error {
	for i, cell := range cells {
		if i > 0 {
			if f.config.Compact {
				if _, err := fmt.Fprint(w, " "); err != nil {
					return err
				}
			} else {
				if _, err := fmt.Fprint(w, "  "); err != nil {
					return err
				}
			}
		}

		format := fmt.Sprintf("%%-%ds", widths[i])
		if _, err := fmt.Fprintf(w, format, cell); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w)
	return err
}
