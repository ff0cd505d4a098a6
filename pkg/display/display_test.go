package display

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/session-keeper/pkg/clock"
	"github.com/0xmhha/session-keeper/pkg/events"
	"github.com/0xmhha/session-keeper/pkg/persistence"
	"github.com/0xmhha/session-keeper/pkg/recovery"
	"github.com/0xmhha/session-keeper/pkg/session"
	"github.com/0xmhha/session-keeper/pkg/storage"
)

var t0 = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func sampleRecord() *session.Record {
	return &session.Record{
		Identity: session.Identity{
			SessionCode: "ABCD",
			SessionID:   "sid-1",
			GameType:    "solo",
			RoomID:      "room-1",
		},
		State:             session.StatePlaying,
		SensorConnections: []string{"sensor-1", "sensor-2"},
		SensorCount:       2,
		GameState:         json.RawMessage(`{"score":10}`),
		SavedAt:           clock.Millis(t0),
		LastUpdated:       clock.Millis(t0),
		TabID:             "tab_1",
		Version:           session.RecordVersion,
	}
}

func sampleHistory() []session.HistoryEntry {
	return []session.HistoryEntry{
		{SessionCode: "AAAA", GameType: "solo", CreatedAt: clock.Millis(t0), EndedAt: clock.Millis(t0.Add(time.Minute))},
		{SessionCode: "BBBB", GameType: "duo", CreatedAt: clock.Millis(t0.Add(2 * time.Minute))},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{"default format (table)", Config{}, "*display.tableFormatter"},
		{"table format", Config{Format: FormatTable}, "*display.tableFormatter"},
		{"json format", Config{Format: FormatJSON}, "*display.jsonFormatter"},
		{"simple format", Config{Format: FormatSimple}, "*display.simpleFormatter"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			formatter := New(tt.config)
			require.NotNil(t, formatter)
			assert.Equal(t, tt.want, fmt.Sprintf("%T", formatter))
		})
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestTableFormatter_FormatSession(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatTable, Location: time.UTC})

	var buf bytes.Buffer
	require.NoError(t, formatter.FormatSession(&buf, sampleRecord()))

	output := buf.String()
	assert.Contains(t, output, "Active Session")
	assert.Contains(t, output, "ABCD")
	assert.Contains(t, output, "room-1")
	assert.Contains(t, output, "2 (sensor-1,sensor-2)")
	assert.Contains(t, output, `{"score":10}`)
	assert.Contains(t, output, "2026-03-14 09:26:53")
	assert.Contains(t, output, "playing")
	assert.NotContains(t, output, ansiReset)
}

func TestTableFormatter_FormatSessionColor(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatTable, Color: true})

	var buf bytes.Buffer
	require.NoError(t, formatter.FormatSession(&buf, sampleRecord()))
	assert.Contains(t, buf.String(), ansiGreen+"playing"+ansiReset)
}

func TestTableFormatter_FormatHistory(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatTable, Location: time.UTC})

	var buf bytes.Buffer
	require.NoError(t, formatter.FormatHistory(&buf, sampleHistory()))

	output := buf.String()
	assert.Contains(t, output, "Session History")
	assert.Contains(t, output, "AAAA")
	assert.Contains(t, output, "2026-03-14 09:27:53")
	assert.Contains(t, output, "ended")
	assert.Contains(t, output, "open")
}

func TestTableFormatter_FormatRecovery(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatTable, Location: time.UTC})

	var buf bytes.Buffer
	require.NoError(t, formatter.FormatRecovery(&buf, recovery.Result{
		Success:     true,
		Reason:      recovery.ReasonRecovered,
		Session:     sampleRecord(),
		RecoveredAt: t0,
	}))
	assert.Contains(t, buf.String(), string(recovery.ReasonRecovered))
	assert.Contains(t, buf.String(), "ABCD")

	buf.Reset()
	require.NoError(t, formatter.FormatRecovery(&buf, recovery.Result{
		Reason: recovery.ReasonRecoveryError,
		Err:    errors.New("boom"),
	}))
	assert.Contains(t, buf.String(), "boom")
}

func TestTableFormatter_FormatInfo(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatTable})

	var buf bytes.Buffer
	require.NoError(t, formatter.FormatInfo(&buf, persistence.Info{
		TabID:     "tab_1",
		Available: true,
		Usage:     storage.Usage{Keys: 3, Bytes: 512},
	}))

	output := buf.String()
	assert.Contains(t, output, "tab_1")
	assert.Contains(t, output, "512")
}

func TestJSONFormatter_FormatSession(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatJSON})

	var buf bytes.Buffer
	require.NoError(t, formatter.FormatSession(&buf, sampleRecord()))

	var decoded session.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "ABCD", decoded.SessionCode)
	assert.Equal(t, []string{"sensor-1", "sensor-2"}, decoded.SensorConnections)
}

func TestJSONFormatter_FormatHistoryEmpty(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatJSON, Compact: true})

	var buf bytes.Buffer
	require.NoError(t, formatter.FormatHistory(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestJSONFormatter_FormatEvent(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatJSON})

	var buf bytes.Buffer
	require.NoError(t, formatter.FormatEvent(&buf, events.SessionEndedByOtherTab{
		FromTab: "tab_2",
		At:      t0,
		Notice:  session.EndNotice{SessionCode: "ABCD", EndedAt: clock.Millis(t0), Reason: session.EndReasonCleared},
	}))

	output := buf.String()
	assert.Equal(t, 1, strings.Count(output, "\n"), "one event per line")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, string(events.NameSessionEndedByOtherTab), decoded["event"])
	assert.Equal(t, "tab_2", decoded["fromTab"])
	assert.Equal(t, "ABCD", decoded["sessionCode"])
}

func TestJSONFormatter_FormatRecoveryError(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatJSON})

	var buf bytes.Buffer
	require.NoError(t, formatter.FormatRecovery(&buf, recovery.Result{
		Reason: recovery.ReasonRecoveryError,
		Err:    errors.New("boom"),
	}))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "boom", decoded["error"])
	assert.NotContains(t, decoded, "recoveredAt")
}

func TestSimpleFormatter(t *testing.T) {
	t.Parallel()

	formatter := New(Config{Format: FormatSimple, Location: time.UTC})

	var buf bytes.Buffer
	require.NoError(t, formatter.FormatSession(&buf, sampleRecord()))
	assert.Equal(t, "ABCD | solo | room room-1 | playing | sensors 2 | saved 2026-03-14 09:26:53 by tab_1\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.FormatHistory(&buf, sampleHistory()))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "#2: BBBB (duo)")

	buf.Reset()
	require.NoError(t, formatter.FormatEvent(&buf, events.GameStateChangedByOtherTab{
		FromTab: "tab_2",
		At:      t0,
		Notice:  session.GameStateNotice{SessionCode: "ABCD", GameState: json.RawMessage(`{"level":2}`)},
	}))
	assert.Contains(t, buf.String(), `gameState={"level":2}`)

	buf.Reset()
	require.NoError(t, formatter.FormatRecovery(&buf, recovery.Result{Reason: recovery.ReasonNoSavedSession}))
	assert.Equal(t, "not recovered: no_saved_session\n", buf.String())
}

func TestNoActiveSession(t *testing.T) {
	t.Parallel()

	for _, format := range []Format{FormatTable, FormatSimple} {
		var buf bytes.Buffer
		require.NoError(t, New(Config{Format: format}).FormatSession(&buf, nil))
		assert.Equal(t, "No active session\n", buf.String(), format)
	}
}

func TestCompactMode(t *testing.T) {
	t.Parallel()

	var full, compact bytes.Buffer
	require.NoError(t, New(Config{Format: FormatTable}).FormatSession(&full, sampleRecord()))
	require.NoError(t, New(Config{Format: FormatTable, Compact: true}).FormatSession(&compact, sampleRecord()))

	assert.Less(t, compact.Len(), full.Len(), "compact mode reduces output length")
}

func TestEmptyHistory(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, New(Config{Format: FormatTable}).FormatHistory(&buf, nil))
	assert.Contains(t, buf.String(), "No data")
}

func TestGameStateSummary(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	rec.GameState = json.RawMessage("null")
	assert.Equal(t, "-", gameStateSummary(rec))

	rec.GameState = json.RawMessage(`"` + strings.Repeat("x", 100) + `"`)
	got := gameStateSummary(rec)
	assert.Len(t, got, 48)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestColorEnabled(t *testing.T) {
	assert.True(t, ColorEnabled("always", nil))
	assert.False(t, ColorEnabled("never", nil))
	assert.False(t, ColorEnabled("auto", nil))
}
