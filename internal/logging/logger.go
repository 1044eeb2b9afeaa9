// Package logging builds the process logger: JSON records on stdout plus a
// plain-text copy in a size-rotated file under the log directory.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
)

// FileName is the active log file inside the log directory.
const FileName = "receipt-sync.log"

type Config struct {
	Dir      string // empty disables the file sink
	Level    string // debug, info, warn, error
	MaxBytes int64
	Stdout   io.Writer
}

// New returns the logger and a closer for the file sink. When the file cannot
// be opened the logger still works and the failure is logged to stdout.
func New(cfg Config) (*slog.Logger, io.Closer) {
	out := cfg.Stdout
	if out == nil {
		out = os.Stdout
	}
	console := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	if cfg.Dir == "" {
		return slog.New(console), nopCloser{}
	}

	file := NewRotatingFile(cfg.Dir, FileName, cfg.MaxBytes)
	if _, err := file.Write(nil); err != nil {
		logger := slog.New(console)
		logger.Warn("logging.file.unavailable", "dir", cfg.Dir, "error", err)
		return logger, nopCloser{}
	}
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(fanout{console, fileHandler}), file
}

// ParseLevel maps a level name to slog; unknown names mean debug.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout sends every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
