// Package logger builds the process slog.Logger and carries request-scoped
// loggers through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey struct{}

// Options selects the handler and level.
type Options struct {
	Level  string
	Format string
}

// New returns a logger writing to stdout.
func New(opts Options) *slog.Logger {
	return NewWithWriter(os.Stdout, opts)
}

// NewWithWriter returns a logger writing to w. Format "text" selects the text
// handler; anything else is JSON.
func NewWithWriter(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var h slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		h = slog.NewTextHandler(w, handlerOpts)
	} else {
		h = slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.New(h)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
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

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WithContext stores l in ctx.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger stored in ctx, or fallback when there is
// none. A nil fallback means slog.Default().
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// WithRequestID returns a context whose logger carries request_id.
func WithRequestID(ctx context.Context, base *slog.Logger, id string) context.Context {
	return WithContext(ctx, FromContext(ctx, base).With(slog.String("request_id", id)))
}

// WithTaskID returns a context whose logger carries task_id.
func WithTaskID(ctx context.Context, base *slog.Logger, id string) context.Context {
	return WithContext(ctx, FromContext(ctx, base).With(slog.String("task_id", id)))
}
