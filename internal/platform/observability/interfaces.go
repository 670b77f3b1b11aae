package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer defines the interface for distributed tracing.
// This is a platform concern that deals with external tracing systems.
type Tracer interface {
	Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
}

// NopTracer returns a tracer that records nothing.
func NopTracer() Tracer {
	return noop.NewTracerProvider().Tracer("")
}
