package logging

import (
	"context"
	"os"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// defaultLogger is used when no logger has been attached to the context.
//
//nolint:gochecknoglobals // Fallback logger for contexts created outside the CLI.
var defaultLogger = zerolog.New(os.Stderr).Level(zerolog.WarnLevel).Hook(TraceHook{}).With().Timestamp().Logger()

// FromContext returns the logger attached to ctx, or the package default.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &defaultLogger
	}
	l := zerolog.Ctx(ctx)
	if l == nil || l.GetLevel() == zerolog.Disabled {
		return &defaultLogger
	}
	return l
}

// ContextWithTraceID stores a trace ID in ctx.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext returns the trace ID stored in ctx, or "".
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// GetOrGenerateTraceID returns the trace ID in ctx or a new ULID.
func GetOrGenerateTraceID(ctx context.Context) string {
	if id := TraceIDFromContext(ctx); id != "" {
		return id
	}
	return NewID()
}

// NewID returns a fresh lexically sortable identifier.
func NewID() string {
	return ulid.Make().String()
}

// TraceHook copies the trace ID from an event's context into the event.
// Events only carry a context when built with .Ctx(ctx).
type TraceHook struct{}

// Run implements zerolog.Hook.
func (TraceHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	if id := TraceIDFromContext(e.GetCtx()); id != "" {
		e.Str("trace_id", id)
	}
}
