// Package log provides the logging infrastructure shared by all quill components.
//
// Loggers are injected, never global: each component receives a *slog.Logger
// through its constructor and may add context with logger.With(). Constructors
// accept nil and fall back to slog.Default() so wiring stays forgiving.
//
// Usage:
//
//	logger := log.New(log.Config{Level: slog.LevelDebug})
//	store := docstore.NewPostgres(pool, embedder, logger.With("component", "docstore"))
//
//	// in tests
//	logger := log.NewNop()
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger aliases *slog.Logger so components depend on the standard library
// type directly instead of a package-specific interface.
type Logger = *slog.Logger

// Config defines logger options.
type Config struct {
	// Level is the minimum level emitted. Default: slog.LevelInfo.
	Level slog.Level

	// JSON switches output to JSON records. Default: text.
	JSON bool

	// AddSource annotates records with the calling source position.
	AddSource bool
}

// New creates a logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// ParseLevel maps a level name to its slog.Level. Unknown names fall back to
// Info rather than failing: a typo in config should not take logging down.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// NewWithWriter creates a logger writing to w. Useful for capturing output in
// tests.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop returns a logger that discards everything. Test-only: production code
// should always get a configured logger so failures stay diagnosable.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
