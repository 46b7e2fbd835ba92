package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string

	// File receives JSON log lines with size-based rotation. Empty means
	// text on stderr instead.
	File      string
	MaxSizeMB int
	MaxFiles  int
}

// New builds the process logger. Every entry passes through redaction before
// it reaches a handler. The returned closer flushes the rotating file when
// one is in use.
func New(opts Options) (*slog.Logger, func() error, error) {
	level := parseLevel(opts.Level)

	if opts.File == "" {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		return slog.New(NewRedactingHandler(handler)), func() error { return nil }, nil
	}

	writer, err := newRotatingWriter(opts.File, opts.MaxSizeMB, opts.MaxFiles)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	return slog.New(NewRedactingHandler(handler)), writer.Close, nil
}

// NewDiscard returns a logger that drops everything. Used where no logging
// destination is configured yet.
func NewDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(raw string) slog.Level {
	switch raw {
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

func newRotatingWriter(file string, maxSizeMB, maxFiles int) (*lumberjack.Logger, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxFiles <= 0 {
		maxFiles = 5
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    maxSizeMB,
		MaxBackups: maxFiles,
		Compress:   false,
	}, nil
}
