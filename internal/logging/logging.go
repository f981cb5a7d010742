// Package logging configures the process-wide slog logger and defines the
// canonical attribute keys used across packages.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Canonical log field names.
const (
	KeySessionID = "session_id"
	KeyEndpoint  = "endpoint"
	KeyState     = "state"
	KeyStage     = "stage"
	KeyDuration  = "duration_ms"
	KeyBytes     = "bytes"
	KeyRemote    = "remote"
	KeyError     = "error"
)

func SessionID(id string) slog.Attr   { return slog.String(KeySessionID, id) }
func Endpoint(url string) slog.Attr   { return slog.String(KeyEndpoint, url) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDuration, ms) }
func Bytes(n int) slog.Attr           { return slog.Int(KeyBytes, n) }
func Remote(addr string) slog.Attr    { return slog.String(KeyRemote, addr) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// ParseLevel converts a level name to slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w. format is "json" or "text".
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup installs a logger as the slog default and returns it.
func Setup(w io.Writer, level, format string) *slog.Logger {
	l := New(w, level, format)
	slog.SetDefault(l)
	return l
}
