// Package observability provides the structured logging, Prometheus
// metrics, and OpenTelemetry tracing every component shares, trimmed to the
// signals a single-room Storyteller instance actually emits.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog with the context-field conventions the rest of the
// codebase relies on: a room id attached to every record once bound.
type Logger struct {
	logger *slog.Logger
}

// LogConfig selects the handler's level and output format.
type LogConfig struct {
	Level  string
	Format string
	Output io.Writer
}

// NewLogger builds a Logger from config. An empty Level defaults to "info";
// an empty Format defaults to "json".
func NewLogger(config LogConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if config.Format == "text" {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}
	return &Logger{logger: slog.New(handler)}
}

// WithRoom returns a child Logger that stamps roomId on every record.
func (l *Logger) WithRoom(roomID string) *Logger {
	return &Logger{logger: l.logger.With(slog.String("roomId", roomID))}
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, args...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

// Slog exposes the underlying *slog.Logger for collaborators (e.g.
// internal/memory) that already take one directly.
func (l *Logger) Slog() *slog.Logger { return l.logger }
