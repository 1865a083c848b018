package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type contextKey int

const (
	loggerKey contextKey = iota
	sessionIDKey
)

// WithLogger returns a context carrying l.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger of ctx, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithSessionID returns a context carrying a snapshot session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext returns the session id of ctx, if any.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// L returns the logger of ctx tagged with the session id and the trace id
// of the active span.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)
	if id := SessionIDFromContext(ctx); id != "" {
		l = l.With("session", id)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With("trace_id", sc.TraceID().String())
	}
	return l.WithContext(ctx)
}
