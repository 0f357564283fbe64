package logger

import (
	"context"
	"log/slog"
	"os"
)

type requestIDKey struct{}

// Log is the global logger instance; usable before Setup
var Log = slog.Default()

// Setup initializes the global logger based on the environment
func Setup(env string) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	switch env {
	case "production":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "test":
		opts.Level = slog.LevelWarn
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	Log = slog.New(handler).With("service", "valve-ledger-api")
	slog.SetDefault(Log)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

// WithRequestID stores the request id so logs written with ctx can be correlated
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// FromContext returns Log tagged with the request id carried by ctx, if any
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
			return Log.With("request_id", id)
		}
	}
	return Log
}
