package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/0xmhha/session-keeper/pkg/session"
)

// errNoActiveSession is returned by commands that need an active session.
var errNoActiveSession = errors.New("no active session")

// sessionCommand handles the commands that read or write stored state.
type sessionCommand struct {
	opts globalOptions
	out  io.Writer
}

// Execute opens storage and runs the named command.
func (c *sessionCommand) Execute(command string, args []string) error {
	a, err := openApp(context.Background(), c.opts, c.out, nil)
	if err != nil {
		return err
	}
	defer a.close()

	switch command {
	case "show":
		return a.formatter.FormatSession(a.out, a.mgr.Store().LoadSession())
	case "save":
		return c.runSave(a, args)
	case "state":
		return c.runState(a, args)
	case "sensors":
		return c.runSensors(a, args)
	case "game":
		return c.runGame(a, args)
	case "clear":
		return c.runClear(a)
	case "history":
		return c.runHistory(a, args)
	case "temp":
		return c.runTemp(a, args)
	case "prefs":
		return c.runPrefs(a, args)
	case "info":
		return a.formatter.FormatInfo(a.out, a.mgr.StorageInfo())
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// saveArgs holds the flags of the save command.
type saveArgs struct {
	identity  session.Identity
	state     string
	gameState string
}

// parseSaveArgs parses the save command flags.
func parseSaveArgs(args []string) (*saveArgs, error) {
	fs := flag.NewFlagSet("save", flag.ContinueOnError)
	var sa saveArgs
	fs.StringVar(&sa.identity.SessionCode, "code", "", "session code (required)")
	fs.StringVar(&sa.identity.SessionID, "id", "", "session id (required)")
	fs.StringVar(&sa.identity.GameType, "game", "", "game type (required)")
	fs.StringVar(&sa.identity.RoomID, "room", "", "room id (required)")
	fs.StringVar(&sa.state, "state", session.StateCreated, "lifecycle state")
	fs.StringVar(&sa.gameState, "game-state", "", "game payload as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if !sa.identity.Complete() {
		return nil, errors.New("save requires -code, -id, -game and -room")
	}
	if sa.gameState != "" && !json.Valid([]byte(sa.gameState)) {
		return nil, fmt.Errorf("invalid -game-state JSON: %s", sa.gameState)
	}
	return &sa, nil
}

// runSave saves a new active session.
func (c *sessionCommand) runSave(a *app, args []string) error {
	sa, err := parseSaveArgs(args)
	if err != nil {
		return err
	}

	rec := &session.Record{
		Identity: sa.identity,
		State:    sa.state,
	}
	if sa.gameState != "" {
		rec.GameState = json.RawMessage(sa.gameState)
	}

	if err := a.mgr.Store().SaveSessionE(rec); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return a.formatter.FormatSession(a.out, a.mgr.Store().LoadSession())
}

// runState changes the lifecycle state of the active session.
func (c *sessionCommand) runState(a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: state <created|waiting|playing|ended>")
	}

	if !a.mgr.Store().UpdateSessionState(args[0], session.Patch{}) {
		return errNoActiveSession
	}
	return a.formatter.FormatSession(a.out, a.mgr.Store().LoadSession())
}

// parseSensorArgs parses id=on|off pairs.
func parseSensorArgs(args []string) (map[string]bool, error) {
	if len(args) == 0 {
		return nil, errors.New("usage: sensors <id>=<on|off> ...")
	}

	sensors := make(map[string]bool, len(args))
	for _, arg := range args {
		id, value, ok := strings.Cut(arg, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid sensor argument: %s", arg)
		}
		switch strings.ToLower(value) {
		case "on", "true", "1":
			sensors[id] = true
		case "off", "false", "0":
			sensors[id] = false
		default:
			return nil, fmt.Errorf("invalid sensor value for %s: %s", id, value)
		}
	}
	return sensors, nil
}

// runSensors replaces the sensor connection set of the active session.
func (c *sessionCommand) runSensors(a *app, args []string) error {
	sensors, err := parseSensorArgs(args)
	if err != nil {
		return err
	}

	if !a.mgr.Store().UpdateSensorConnections(sensors) {
		return errNoActiveSession
	}
	return a.formatter.FormatSession(a.out, a.mgr.Store().LoadSession())
}

// runGame stores the game payload of the active session.
func (c *sessionCommand) runGame(a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: game <json>")
	}
	if !json.Valid([]byte(args[0])) {
		return fmt.Errorf("invalid game state JSON: %s", args[0])
	}

	if !a.mgr.Store().SaveGameState(json.RawMessage(args[0])) {
		return errNoActiveSession
	}
	return a.formatter.FormatSession(a.out, a.mgr.Store().LoadSession())
}

// runClear ends and removes the active session.
func (c *sessionCommand) runClear(a *app) error {
	if !a.mgr.Store().HasActiveSession() {
		return errNoActiveSession
	}

	a.mgr.Store().ClearSession()
	_, err := fmt.Fprintln(a.out, "Session cleared")
	return err
}

// runHistory shows or clears the session history.
func (c *sessionCommand) runHistory(a *app, args []string) error {
	if len(args) > 0 {
		if args[0] != "clear" {
			return fmt.Errorf("unknown history subcommand: %s", args[0])
		}
		a.mgr.Store().ClearHistory()
		_, err := fmt.Fprintln(a.out, "History cleared")
		return err
	}

	return a.formatter.FormatHistory(a.out, a.mgr.Store().GetSessionHistory())
}

// runTemp handles temp set|get|clear|sweep.
func (c *sessionCommand) runTemp(a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: temp <set|get|clear|sweep> [key] [json]")
	}

	store := a.mgr.Store()

	switch args[0] {
	case "set":
		if len(args) != 3 {
			return errors.New("usage: temp set <key> <json>")
		}
		if !json.Valid([]byte(args[2])) {
			return fmt.Errorf("invalid temp data JSON: %s", args[2])
		}
		if !store.SaveTempData(args[1], json.RawMessage(args[2])) {
			return fmt.Errorf("failed to save temp data %q", args[1])
		}
		_, err := fmt.Fprintf(a.out, "Saved %s\n", args[1])
		return err

	case "get":
		if len(args) != 2 {
			return errors.New("usage: temp get <key>")
		}
		var data json.RawMessage
		if !store.LoadTempData(args[1], &data) {
			return fmt.Errorf("no temp data for %q", args[1])
		}
		_, err := fmt.Fprintln(a.out, string(data))
		return err

	case "clear":
		key := ""
		if len(args) > 1 {
			key = args[1]
		}
		store.ClearTempData(key)
		_, err := fmt.Fprintln(a.out, "Temp data cleared")
		return err

	case "sweep":
		removed := store.CleanupTempData()
		_, err := fmt.Fprintf(a.out, "Removed %d expired entries\n", removed)
		return err

	default:
		return fmt.Errorf("unknown temp subcommand: %s", args[0])
	}
}

// runPrefs handles prefs get|set.
func (c *sessionCommand) runPrefs(a *app, args []string) error {
	store := a.mgr.Store()

	if len(args) == 0 || args[0] == "get" {
		return writePrefs(a.out, store.LoadPreferences())
	}
	if args[0] != "set" || len(args) < 2 {
		return errors.New("usage: prefs <get|set key=json ...>")
	}

	prefs := store.LoadPreferences()
	for _, arg := range args[1:] {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid preference argument: %s", arg)
		}
		if !json.Valid([]byte(value)) {
			// Bare words are stored as strings.
			quoted, err := json.Marshal(value)
			if err != nil {
				return err
			}
			value = string(quoted)
		}
		prefs[key] = json.RawMessage(value)
	}

	if !store.SavePreferences(prefs) {
		return errors.New("failed to save preferences")
	}
	return writePrefs(a.out, prefs)
}

// writePrefs prints preferences as key=value lines sorted by key.
func writePrefs(w io.Writer, prefs session.Preferences) error {
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s=%s\n", k, prefs[k]); err != nil {
			return err
		}
	}
	return nil
}
