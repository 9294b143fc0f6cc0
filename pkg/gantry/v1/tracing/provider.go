// Package tracing defines the public tracing surface of the pipeline engine.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TracerProvider abstracts the lifecycle of the tracing backend so the
// pipeline core never depends on a concrete OpenTelemetry SDK configuration.
type TracerProvider interface {
	// GetTracer returns a named tracer instance.
	GetTracer(name string, opts ...trace.TracerOption) trace.Tracer
	// Shutdown flushes buffered spans and releases exporter resources.
	// It respects the deadline of the provided context.
	Shutdown(ctx context.Context) error
}
