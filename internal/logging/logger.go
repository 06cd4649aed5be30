// Package logging wraps zerolog with subsystem-scoped child loggers.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Levels lists the accepted level names from quietest to noisiest.
var Levels = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}

var levelByName = map[string]zerolog.Level{
	"silent": zerolog.Disabled,
	"fatal":  zerolog.FatalLevel,
	"error":  zerolog.ErrorLevel,
	"warn":   zerolog.WarnLevel,
	"info":   zerolog.InfoLevel,
	"debug":  zerolog.DebugLevel,
	"trace":  zerolog.TraceLevel,
}

// ParseLevel maps a level name to its zerolog level, ignoring case.
func ParseLevel(name string) (zerolog.Level, bool) {
	lvl, ok := levelByName[strings.ToLower(strings.TrimSpace(name))]
	return lvl, ok
}

// Logger is a zerolog logger whose children carry a subsystem tag.
type Logger struct {
	zl zerolog.Logger
}

// New creates a root logger. A nil w writes pretty console output to
// stderr; an unknown level falls back to info.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = Writer("pretty")
	}
	lvl, ok := ParseLevel(level)
	if !ok {
		lvl = zerolog.InfoLevel
	}
	return &Logger{zl: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// Writer returns the stderr writer for a console style ("pretty" or "json").
func Writer(style string) io.Writer {
	if style == "json" {
		return os.Stderr
	}
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
}

// Sub returns a child logger tagged with a subsystem name.
func (l *Logger) Sub(subsystem string) *Logger {
	return l.With("subsystem", subsystem)
}

// With returns a child logger carrying an extra string field on every event.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }
