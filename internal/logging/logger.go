// Package logging constructs the zerolog logger used by the daemon.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a console logger writing to stderr. Verbose enables debug
// level; otherwise info and above.
func New(verbose bool) zerolog.Logger {
	return NewWithOutput(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}, verbose)
}

// NewWithOutput builds a logger against an arbitrary writer (tests pass
// io.Discard).
func NewWithOutput(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Nop returns a disabled logger for tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
