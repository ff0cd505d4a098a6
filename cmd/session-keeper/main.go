// Package main provides the session-keeper CLI application.
//
// Session Keeper inspects and drives the persisted game session shared by
// every tab (process) of one origin: the active session record, the
// session history, temporary data, preferences and the cross-tab change
// stream.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
)

// version is set during build time.
var version = "dev"

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load() //nolint:errcheck // optional file

	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions holds the flags shared by every command.
type globalOptions struct {
	configPath string
	format     string
	logLevel   string
	color      string
	compact    bool
}

// run executes the main application logic.
func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("session-keeper", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts globalOptions
	fs.StringVar(&opts.configPath, "config", "", "path to configuration file")
	fs.StringVar(&opts.format, "format", "", "output format (table, json, simple)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&opts.color, "color", "", "color mode (auto, always, never)")
	fs.BoolVar(&opts.compact, "compact", false, "compact output")
	showVersion := fs.Bool("version", false, "show version information")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintf(out, "session-keeper %s\n", version)
		return nil
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return showUsage(out)
	}

	command, cmdArgs := rest[0], rest[1:]

	switch command {
	case "show", "save", "state", "sensors", "game", "clear", "history", "temp", "prefs", "info":
		cmd := &sessionCommand{opts: opts, out: out}
		return cmd.Execute(command, cmdArgs)
	case "watch":
		return runWatchCommand(opts, out, cmdArgs)
	case "recover":
		return runRecoverCommand(opts, out, cmdArgs)
	case "config":
		cmd := &configCommand{configPath: opts.configPath, out: out}
		return cmd.Execute(cmdArgs)
	case "help":
		return showUsage(out)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// showUsage displays usage information.
func showUsage(out io.Writer) error {
	usage := `Session Keeper - persisted game session manager

Usage:
  session-keeper [flags] <command> [command flags]

Commands:
  show        Display the active session
  save        Save a new active session
  state       Change the lifecycle state of the active session
  sensors     Set sensor connection flags on the active session
  game        Store the game payload of the active session
  clear       End and remove the active session
  history     Show or clear the session history
  temp        Temporary data (set, get, clear, sweep)
  prefs       Preferences (get, set)
  watch       Print changes made by other tabs until interrupted
  recover     Validate and restore the saved session
  info        Show storage information
  config      Configuration management (show, path, init)
  help        Show this help message

Global Flags:
  -config     Path to configuration file
  -format     Output format (table, json, simple)
  -log-level  Log level (debug, info, warn, error)
  -color      Color mode (auto, always, never)
  -compact    Compact output
  -version    Show version information

Environment:
  SESSION_KEEPER_CONFIG, SESSION_KEEPER_STORE, SESSION_KEEPER_BACKEND,
  SESSION_KEEPER_REDIS_URL and SESSION_KEEPER_LOG_LEVEL override the
  configuration file. A .env file in the working directory is loaded first.

Examples:
  # Start a session
  session-keeper save -code ABCD -id sid-1 -game solo -room room-1

  # Move it to playing and connect a sensor
  session-keeper state playing
  session-keeper sensors sensor-1=on

  # Follow changes from other tabs
  session-keeper watch

  # Recover against a server that accepts the session
  session-keeper recover -verdict valid

  # Show history as JSON
  session-keeper -format json history

Version: %s
`

	_, err := fmt.Fprintf(out, usage, version)
	return err
}
