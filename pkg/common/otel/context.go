package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// GetTraceID returns the trace ID carried by ctx. Without a span it returns the
// all-zero ID so log records always have the field.
func GetTraceID(ctx context.Context) string {
	return trace.SpanContextFromContext(ctx).TraceID().String()
}

// GetSpanID returns the span ID carried by ctx, or the all-zero ID.
func GetSpanID(ctx context.Context) string {
	return trace.SpanContextFromContext(ctx).SpanID().String()
}
