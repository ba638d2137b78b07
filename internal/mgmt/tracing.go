package mgmt

import (
	"context"

	"github.com/fjacquet/cpmgmt/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Instrumentation scope names.
const (
	tracerNameClient    = "cpmgmt/client"
	tracerNameTransport = "cpmgmt/http-client"
)

// TracerWrapper starts spans from an injected TracerProvider.
// A nil provider falls back to a noop tracer so callers never check for nil.
type TracerWrapper struct {
	tracer trace.Tracer
}

// NewTracerWrapper creates a wrapper around tp.Tracer(name).
func NewTracerWrapper(tp trace.TracerProvider, name string) *TracerWrapper {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &TracerWrapper{tracer: tp.Tracer(name)}
}

// StartSpan starts a span of the given kind with optional attributes.
// The returned span is never nil.
func (w *TracerWrapper) StartSpan(ctx context.Context, operation string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if w == nil || w.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return w.tracer.Start(ctx, operation, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// recordError records err on span and marks the span as failed.
func recordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(telemetry.AttrError, err.Error()))
}
