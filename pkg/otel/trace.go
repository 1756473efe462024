package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey string

const TraceIDKey ctxKey = "trace_id"

// WithTraceID stores a request trace id for log correlation.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

// TraceIDFromContext prefers the explicit trace id, then the active span's.
func TraceIDFromContext(ctx context.Context) string {
	if v := ctx.Value(TraceIDKey); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
