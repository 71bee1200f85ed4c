// Package logging builds the process-wide zerolog root logger.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns the root logger. Console mode writes human-readable lines for
// interactive runs; otherwise output is one JSON object per line.
//
// Level filtering happens through the global zerolog level, not per logger:
// the global setter is atomic, so a config reload can change the level while
// other goroutines keep logging through already-derived loggers.
func New(level string, console bool) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(level))
	var logger zerolog.Logger
	if console {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.With().Timestamp().Logger()
}

// ParseLevel maps a config level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
