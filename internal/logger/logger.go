// Package logger provides a thin wrapper around zerolog.Logger with the
// constructors used throughout ivault.
//
// The Logger type embeds zerolog.Logger so all standard zerolog methods
// (Debug, Info, Warn, Error, Fatal, etc.) are available directly on
// *Logger. Application code passes *Logger by pointer.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper around zerolog.Logger. Embedding exposes the
// full zerolog API while leaving room for application helpers.
type Logger struct {
	zerolog.Logger
}

// New constructs a *Logger for the given component label writing JSON to
// stderr. Secrets and decrypted payloads must never be logged; callers
// log identifiers and operation names only.
func New(component, level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	l := zerolog.New(os.Stderr).
		Level(lvl).
		With().
		Str("component", component).
		Timestamp().
		Logger()

	return &Logger{l}
}

// NewWriter constructs a *Logger writing to w, for tests that capture
// output.
func NewWriter(w io.Writer, component string) *Logger {
	l := zerolog.New(w).With().Str("component", component).Timestamp().Logger()
	return &Logger{l}
}

// Nop returns a *Logger that discards all output. Intended for tests.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}
