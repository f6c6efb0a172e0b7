package logging

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger returns a logger writing to w. format is "json" or "text";
// anything else falls back to text.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// LevelFromString converts debug, info, warn or error (case-insensitive) to
// a slog.Level. Unrecognized input yields warn, the CLI default.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// LevelFromVerbosity maps repeated -v flags onto a level on top of base.
func LevelFromVerbosity(base slog.Level, verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return base
	case verbosity == 1:
		return min(base, slog.LevelInfo)
	default:
		return slog.LevelDebug
	}
}
