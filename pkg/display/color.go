package display

import (
	"os"

	"golang.org/x/term"

	"github.com/0xmhha/session-keeper/pkg/session"
)

// ANSI escape codes.
const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiCyan   = "\x1b[36m"
)

// ColorEnabled resolves a color mode (auto, always, never) for f.
// Auto enables color only when f is a terminal and NO_COLOR is unset.
func ColorEnabled(mode string, f *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}

	if os.Getenv("NO_COLOR") != "" || f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// paintState colors a lifecycle state.
func paintState(state string, enabled bool) string {
	if !enabled || state == "" {
		return orDash(state)
	}

	code := ansiCyan
	switch state {
	case session.StatePlaying:
		code = ansiGreen
	case session.StateWaiting, session.StateCreated:
		code = ansiYellow
	case session.StateEnded:
		code = ansiRed
	}
	return code + state + ansiReset
}
