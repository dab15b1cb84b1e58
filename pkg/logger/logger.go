// Package logger configures the process-wide slog logger and carries
// correlation fields (request, run and batch ids) through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
)

type requestIDKey struct{}

type fieldsKey struct{}

// Setup installs the default logger writing to stdout.
func Setup(level string, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter installs the default logger writing to w. The CLI uses it to
// keep stdout free for results.
func SetupWriter(w io.Writer, level string, format string) {
	slog.SetDefault(slog.New(NewHandler(w, level, format)))
}

// NewHandler builds a text or JSON handler. Unknown levels fall back to
// info, unknown formats to text.
func NewHandler(w io.Writer, level string, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel parses a slog level name, defaulting to info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// WithRequestID attaches requestID to ctx for Annotate and the Kafka producer.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the request id in ctx, or "".
func RequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// WithFields returns a context whose loggers carry args (slog key/value
// pairs) in addition to any fields already attached.
func WithFields(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(fieldsKey{}).([]any)
	return context.WithValue(ctx, fieldsKey{}, append(slices.Clip(prev), args...))
}

// FromContext returns the default logger annotated from ctx.
func FromContext(ctx context.Context) *slog.Logger {
	return Annotate(slog.Default(), ctx)
}

// Annotate adds the request id and any fields attached to ctx to l.
func Annotate(l *slog.Logger, ctx context.Context) *slog.Logger {
	if requestID := RequestID(ctx); requestID != "" {
		l = l.With("request_id", requestID)
	}
	if fields, ok := ctx.Value(fieldsKey{}).([]any); ok {
		l = l.With(fields...)
	}
	return l
}
