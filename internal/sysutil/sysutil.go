// Package sysutil holds process setup helpers: the zerolog configuration
// used by the server binary and build metadata lookup.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Version is stamped at build time with -ldflags "-X ...sysutil.Version=...".
var Version = ""

// ParseLevel maps a level name onto zerolog. Supported values
// (case-insensitive): debug, info, warn/warning, error, fatal, panic.
// Anything else is info.
func ParseLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLogLevel configures the global zerolog level.
func SetLogLevel(lvl string) {
	zerolog.SetGlobalLevel(ParseLevel(lvl))
}

// NewLogger builds the process logger writing to w: JSON lines with RFC3339
// UTC timestamps, or a console writer when pretty is set.
func NewLogger(w io.Writer, lvl string, pretty bool) zerolog.Logger {
	SetLogLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// AppVersion returns the build version, APP_VERSION, or "dev".
func AppVersion() string {
	return FirstNonEmpty(Version, os.Getenv("APP_VERSION"), "dev")
}

// FirstNonEmpty returns the first non-blank string from vals, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
