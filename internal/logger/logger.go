// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and propagates the
// simulation session and run IDs through context.Context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

type ctxKey string

const (
	sessionIDKey ctxKey = "session_id"
	runIDKey     ctxKey = "run_id"
)

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	return New(os.Stdout, service, level)
}

// New builds the service logger on w and installs it as the slog default.
func New(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps debug/info/warn/error to a slog level. Unknown values
// fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewID returns a fresh random identifier for sessions and runs.
func NewID() string {
	return uuid.NewString()
}

// WithSessionID stores a session ID in the context for downstream propagation.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionID extracts the session ID from context. Returns "" if not set.
func SessionID(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithRunID stores the current run ID in the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunID extracts the run ID from context. Returns "" if not set.
func RunID(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}

// LogWithSession returns slog attributes for the session and run IDs found
// in ctx. Usage: slog.Info("msg", logger.LogWithSession(ctx)...)
func LogWithSession(ctx context.Context) []any {
	var attrs []any
	if id := SessionID(ctx); id != "" {
		attrs = append(attrs, slog.String("session_id", id))
	}
	if id := RunID(ctx); id != "" {
		attrs = append(attrs, slog.String("run_id", id))
	}
	return attrs
}
