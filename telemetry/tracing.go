// OpenTelemetry tracing support for thread lifetimes.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with thread-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, record the final activity on thread spans
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a tracer from the global OpenTelemetry provider.
func NewTracer(name string, debug bool) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
		debug:  debug,
	}
}

// NewTracerFromProvider creates a tracer from a specific provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string, debug bool) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(name),
		debug:  debug,
	}
}

// SetDebug enables or disables debug mode.
func (t *Tracer) SetDebug(debug bool) {
	t.debug = debug
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Thread Spans ---

// ThreadSpanOptions describes how a thread ended.
type ThreadSpanOptions struct {
	Outcome           string // ok, error or panic
	Activity          string // Only included if debug=true
	ShutdownRequested bool
}

// StartThreadSpan starts the span covering one thread's lifetime. The
// returned context carries the span and should parent the thread's work.
func (t *Tracer) StartThreadSpan(ctx context.Context, id uint64, name, shortName string) (context.Context, trace.Span) {
	if shortName == "" {
		shortName = name
	}
	ctx, span := t.tracer.Start(ctx, "thread."+shortName, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.Int64("thread.id", int64(id)),
		attribute.String("thread.name", name),
		attribute.String("thread.short_name", shortName),
	)
	return ctx, span
}

// EndThreadSpan ends the thread span found in ctx.
func (t *Tracer) EndThreadSpan(ctx context.Context, opts ThreadSpanOptions, err error) {
	span := trace.SpanFromContext(ctx)

	attrs := []attribute.KeyValue{
		attribute.String("thread.outcome", opts.Outcome),
		attribute.Bool("thread.shutdown_requested", opts.ShutdownRequested),
	}
	if t.debug && opts.Activity != "" {
		attrs = append(attrs, attribute.String("thread.activity", truncate(opts.Activity, 500)))
	}
	span.SetAttributes(attrs...)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
