// Package log builds the process-wide slog.Logger. Output goes to stdout;
// when a file path is configured the same stream is also written to a
// size-rotated log file.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	Level string
	// File enables rotated file output when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New creates a slog.Logger with the provided level (defaults to info).
func New(level string) *slog.Logger {
	return NewWithOptions(Options{Level: level})
}

// NewWithOptions creates a slog.Logger honoring the full option set.
func NewWithOptions(opts Options) *slog.Logger {
	var out io.Writer = os.Stdout

	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}

		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   true,
		})
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	return slog.New(slog.NewTextHandler(out, handlerOpts))
}

// ParseLevel converts a string representation into a slog.Level.
func ParseLevel(level string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
