// Package log provides the logging setup for coachd.
//
// Loggers are injected through constructors rather than reached for as
// globals; components scope their output with logger.With:
//
//	logger := log.New(log.Config{Level: slog.LevelDebug})
//	store := knowledge.New(queries, embedder, logger.With("component", "knowledge"))
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger aliases *slog.Logger. The alias keeps constructor signatures short
// and leaves the full slog API (With, WithGroup, level methods) available
// without a custom interface in between.
type Logger = *slog.Logger

// Config defines logger configuration options.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo
	Level slog.Level

	// JSON switches output from human-readable text to JSON lines,
	// the format log aggregators expect.
	JSON bool

	// AddSource adds source file information to log entries.
	AddSource bool
}

// New creates a logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Tests pass a bytes.Buffer to
// inspect output.
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

// NewNop creates a logger that discards everything. For tests only; a
// production component with a silent logger cannot be debugged.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
