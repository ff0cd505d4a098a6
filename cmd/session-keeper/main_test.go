package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/session-keeper/pkg/config"
	"github.com/0xmhha/session-keeper/pkg/logger"
	"github.com/0xmhha/session-keeper/pkg/protocol"
)

// setupEnv points the CLI at a private config file and bolt store.
func setupEnv(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(dir, "origin.db")
	cfg.Logging.Level = "error"
	cfg.Display.Color = "never"

	cfgPath := filepath.Join(dir, "session-keeper.yaml")
	require.NoError(t, config.Save(cfg, cfgPath))

	t.Setenv(config.EnvConfig, cfgPath)
	t.Setenv(config.EnvStore, "")
	t.Setenv(config.EnvBackend, "")
	t.Setenv(config.EnvRedisURL, "")
	t.Setenv(config.EnvLogLevel, "")
	return dir
}

// runCLI runs the CLI with args and returns its output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	err := run(args, &out)
	return out.String(), err
}

// mustRun runs the CLI and fails the test on error.
func mustRun(t *testing.T, args ...string) string {
	t.Helper()

	out, err := runCLI(t, args...)
	require.NoError(t, err, "args: %v\noutput: %s", args, out)
	return out
}

func saveSample(t *testing.T) {
	t.Helper()
	mustRun(t, "save", "-code", "ABCD", "-id", "sid-1", "-game", "solo", "-room", "room-1")
}

func TestVersionFlag(t *testing.T) {
	out := mustRun(t, "-version")
	assert.Equal(t, "session-keeper dev\n", out)
}

func TestUsage(t *testing.T) {
	for _, args := range [][]string{{}, {"help"}} {
		out := mustRun(t, args...)
		assert.Contains(t, out, "Commands:")
		assert.Contains(t, out, "recover")
	}
}

func TestUnknownCommand(t *testing.T) {
	setupEnv(t)

	_, err := runCLI(t, "bogus")
	assert.ErrorContains(t, err, "unknown command: bogus")
}

func TestInvalidGlobalFlags(t *testing.T) {
	setupEnv(t)

	_, err := runCLI(t, "-format", "xml", "show")
	assert.ErrorContains(t, err, "unknown format")

	_, err = runCLI(t, "-log-level", "trace", "show")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestSessionLifecycle(t *testing.T) {
	setupEnv(t)

	assert.Equal(t, "No active session\n", mustRun(t, "show"))

	saveSample(t)

	out := mustRun(t, "-format", "simple", "show")
	assert.True(t, strings.HasPrefix(out, "ABCD | solo | room room-1 | created | sensors 0"), out)

	out = mustRun(t, "-format", "simple", "state", "playing")
	assert.Contains(t, out, "| playing |")

	out = mustRun(t, "-format", "simple", "sensors", "sensor-2=on", "sensor-1=on", "sensor-3=off")
	assert.Contains(t, out, "sensors 2")

	out = mustRun(t, "-format", "json", "game", `{"score":42}`)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, map[string]interface{}{"score": float64(42)}, rec["gameState"])
	assert.Equal(t, []interface{}{"sensor-1", "sensor-2"}, rec["sensorConnections"])

	assert.Equal(t, "Session cleared\n", mustRun(t, "clear"))
	assert.Equal(t, "No active session\n", mustRun(t, "show"))

	_, err := runCLI(t, "clear")
	assert.ErrorIs(t, err, errNoActiveSession)
}

func TestCommandsWithoutSession(t *testing.T) {
	setupEnv(t)

	for _, args := range [][]string{
		{"state", "playing"},
		{"sensors", "s1=on"},
		{"game", `{}`},
	} {
		_, err := runCLI(t, args...)
		assert.ErrorIs(t, err, errNoActiveSession, args)
	}
}

func TestSaveRequiresIdentity(t *testing.T) {
	setupEnv(t)

	_, err := runCLI(t, "save", "-code", "ABCD")
	assert.ErrorContains(t, err, "requires")

	_, err = runCLI(t, "save", "-code", "A", "-id", "i", "-game", "g", "-room", "r", "-game-state", "{")
	assert.ErrorContains(t, err, "invalid -game-state")
}

func TestHistory(t *testing.T) {
	setupEnv(t)

	saveSample(t)
	mustRun(t, "state", "ended")
	mustRun(t, "save", "-code", "EFGH", "-id", "sid-2", "-game", "duo", "-room", "room-2")

	out := mustRun(t, "-format", "json", "history")
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "ABCD", entries[0]["sessionCode"])
	assert.NotZero(t, entries[0]["endedAt"])
	assert.Equal(t, "EFGH", entries[1]["sessionCode"])

	assert.Equal(t, "History cleared\n", mustRun(t, "history", "clear"))
	assert.Equal(t, "[]\n", mustRun(t, "-format", "json", "-compact", "history"))

	_, err := runCLI(t, "history", "purge")
	assert.Error(t, err)
}

func TestTempData(t *testing.T) {
	setupEnv(t)

	assert.Equal(t, "Saved draft\n", mustRun(t, "temp", "set", "draft", `{"step":3}`))
	assert.Equal(t, "{\"step\":3}\n", mustRun(t, "temp", "get", "draft"))
	assert.Equal(t, "Removed 0 expired entries\n", mustRun(t, "temp", "sweep"))

	mustRun(t, "temp", "clear", "draft")
	_, err := runCLI(t, "temp", "get", "draft")
	assert.ErrorContains(t, err, "no temp data")

	_, err = runCLI(t, "temp", "set", "draft", "{")
	assert.ErrorContains(t, err, "invalid temp data")
}

func TestPreferences(t *testing.T) {
	setupEnv(t)

	assert.Equal(t, "", mustRun(t, "prefs"))

	out := mustRun(t, "prefs", "set", "volume=7", "theme=dark")
	assert.Equal(t, "theme=\"dark\"\nvolume=7\n", out)

	out = mustRun(t, "prefs", "set", "volume=3")
	assert.Equal(t, "theme=\"dark\"\nvolume=3\n", out)

	_, err := runCLI(t, "prefs", "set", "novalue")
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	setupEnv(t)
	saveSample(t)

	out := mustRun(t, "-format", "json", "info")
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, true, info["available"])
	assert.True(t, strings.HasPrefix(info["tabId"].(string), "tab_"))
}

func decodeResult(t *testing.T, out string) map[string]interface{} {
	t.Helper()

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	return res
}

func TestRecoverValid(t *testing.T) {
	setupEnv(t)
	saveSample(t)
	mustRun(t, "sensors", "s1=on")

	res := decodeResult(t, mustRun(t, "-format", "json", "recover", "-verdict", "valid", "-delay", "10ms"))
	assert.Equal(t, true, res["success"])
	assert.Equal(t, "recovered", res["reason"])

	assert.Contains(t, mustRun(t, "-format", "simple", "show"), "ABCD")
}

func TestRecoverInvalidClearsSession(t *testing.T) {
	setupEnv(t)
	saveSample(t)

	res := decodeResult(t, mustRun(t, "-format", "json", "recover", "-verdict", "invalid"))
	assert.Equal(t, false, res["success"])
	assert.Equal(t, "session_invalid_on_server", res["reason"])

	assert.Equal(t, "No active session\n", mustRun(t, "show"))
}

func TestRecoverSilentTimesOut(t *testing.T) {
	setupEnv(t)
	saveSample(t)

	start := time.Now()
	res := decodeResult(t, mustRun(t, "-format", "json", "recover", "-verdict", "silent", "-timeout", "50ms"))
	assert.Equal(t, "session_invalid_on_server", res["reason"])
	assert.Contains(t, res["error"], "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRecoverNothingSaved(t *testing.T) {
	setupEnv(t)

	assert.Equal(t, "not recovered: no_saved_session\n", mustRun(t, "-format", "simple", "recover"))

	_, err := runCLI(t, "recover", "-verdict", "maybe")
	assert.ErrorContains(t, err, "invalid verdict")
}

func TestWatchStopsOnCancel(t *testing.T) {
	setupEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	cmd := &watchCommand{out: &out}
	assert.NoError(t, cmd.Execute(ctx))
}

func TestConfigCommands(t *testing.T) {
	dir := setupEnv(t)

	out := mustRun(t, "config", "show")
	assert.Contains(t, out, "# Source: "+filepath.Join(dir, "session-keeper.yaml"))
	assert.Contains(t, out, "backend: bolt")

	out = mustRun(t, "config", "show", "-format", "json")
	assert.Contains(t, out, `"Backend": "bolt"`)

	out = mustRun(t, "config", "path")
	assert.Contains(t, out, "[found]")

	target := filepath.Join(dir, "nested", "config.yaml")
	out = mustRun(t, "config", "init", "-output", target)
	assert.Contains(t, out, target)
	_, err := os.Stat(target)
	require.NoError(t, err)

	_, err = runCLI(t, "config", "init", "-output", target)
	assert.ErrorContains(t, err, "already exists")
	mustRun(t, "config", "init", "-output", target, "-force")

	_, err = runCLI(t, "config", "bogus")
	assert.Error(t, err)
}

func TestParseSensorArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[string]bool
		wantErr bool
	}{
		{"on and off", []string{"a=on", "b=off"}, map[string]bool{"a": true, "b": false}, false},
		{"boolean words", []string{"a=true", "b=0"}, map[string]bool{"a": true, "b": false}, false},
		{"missing value", []string{"a"}, nil, true},
		{"bad value", []string{"a=maybe"}, nil, true},
		{"empty id", []string{"=on"}, nil, true},
		{"no args", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSensorArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSaveArgs(t *testing.T) {
	sa, err := parseSaveArgs([]string{"-code", "C", "-id", "I", "-game", "G", "-room", "R", "-state", "waiting"})
	require.NoError(t, err)
	assert.Equal(t, "C", sa.identity.SessionCode)
	assert.Equal(t, "waiting", sa.state)

	_, err = parseSaveArgs([]string{"-unknown"})
	assert.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "requires"))
}

func TestScriptedServer(t *testing.T) {
	server := newScriptedServer(verdictInvalid, 0, logger.Noop())

	var got []protocol.Inbound
	unsubscribe := server.Subscribe(func(in protocol.Inbound) { got = append(got, in) })

	require.NoError(t, server.Send(context.Background(), protocol.NewValidateRequest("C", "I", "playing")))
	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeValidationResult, got[0].Type)
	assert.JSONEq(t, `{"type":"session:validation_result","isValid":false}`, string(got[0].Raw))

	unsubscribe()
	require.NoError(t, server.Send(context.Background(), protocol.NewValidateRequest("C", "I", "playing")))
	assert.Len(t, got, 1)
}
