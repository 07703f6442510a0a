package telemetry_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vinayprograms/threadkit/telemetry"
	"github.com/vinayprograms/threadkit/threads"
)

func newRecorder() (*tracetest.SpanRecorder, *telemetry.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, telemetry.NewTracerFromProvider(tp, "test", true)
}

func attr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestThreadSpan(t *testing.T) {
	sr, tracer := newRecorder()

	ctx, _ := tracer.StartThreadSpan(context.Background(), 7, "ingest-0", "ingest")
	tracer.EndThreadSpan(ctx, telemetry.ThreadSpanOptions{Outcome: "ok", Activity: "flushing"}, nil)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "thread.ingest" {
		t.Errorf("Name() = %q, want thread.ingest", span.Name())
	}
	if v, _ := attr(span, "thread.id"); v.AsInt64() != 7 {
		t.Errorf("thread.id = %v", v.AsInt64())
	}
	if v, _ := attr(span, "thread.outcome"); v.AsString() != "ok" {
		t.Errorf("thread.outcome = %q", v.AsString())
	}
	if v, ok := attr(span, "thread.activity"); !ok || v.AsString() != "flushing" {
		t.Errorf("thread.activity = %q, want flushing in debug mode", v.AsString())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}
}

func TestThreadSpan_ErrorAndNoDebug(t *testing.T) {
	sr, tracer := newRecorder()
	tracer.SetDebug(false)

	ctx, _ := tracer.StartThreadSpan(context.Background(), 1, "solo", "")
	tracer.EndThreadSpan(ctx, telemetry.ThreadSpanOptions{Outcome: "error", Activity: "secret"}, errors.New("failed"))

	span := sr.Ended()[0]
	if span.Name() != "thread.solo" {
		t.Errorf("empty short name should fall back to name, got %q", span.Name())
	}
	if _, ok := attr(span, "thread.activity"); ok {
		t.Error("activity should be omitted without debug")
	}
	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status().Code)
	}
	if len(span.Events()) == 0 {
		t.Error("expected recorded error event")
	}
}

func TestSpawnerRecordsThreadSpans(t *testing.T) {
	sr, tracer := newRecorder()
	sp := threads.NewSpawner(
		threads.WithRegistry(threads.NewRegistry()),
		threads.WithTracer(tracer),
	)

	h, err := threads.Spawn(sp, "job-1", "job", func(s *threads.Scope) (int, error) {
		_, child := tracer.StartSpan(s.Context(), "step")
		child.End()
		return 1, nil
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if _, err := h.Join(2 * time.Second); err != nil {
		t.Fatalf("Join: %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	var thread, step sdktrace.ReadOnlySpan
	for _, s := range spans {
		switch s.Name() {
		case "thread.job":
			thread = s
		case "step":
			step = s
		}
	}
	if thread == nil || step == nil {
		t.Fatalf("missing spans: %v", spans)
	}
	if step.Parent().SpanID() != thread.SpanContext().SpanID() {
		t.Error("body spans should nest under the thread span")
	}
}

func TestGetTracerNoop(t *testing.T) {
	telemetry.SetGlobalTracer(nil)
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartThreadSpan(context.Background(), 1, "x", "x")
	tracer.EndThreadSpan(ctx, telemetry.ThreadSpanOptions{}, nil)
	if span.SpanContext().IsValid() {
		t.Error("noop tracer should produce invalid span contexts")
	}
}

func TestInitProviderStdout(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	p, err := telemetry.InitProvider(ctx, telemetry.ProviderConfig{
		ServiceName: "threadkit-test",
		Exporter:    telemetry.ExporterStdout,
		Writer:      &buf,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	spanCtx, _ := p.Tracer().StartThreadSpan(ctx, 3, "flush-0", "flush")
	p.Tracer().EndThreadSpan(spanCtx, telemetry.ThreadSpanOptions{Outcome: "ok"}, nil)

	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "thread.flush") {
		t.Errorf("expected exported span, got: %s", buf.String())
	}
	if telemetry.GetTracer() != p.Tracer() {
		t.Error("InitProvider should install the global tracer")
	}
}

func TestInitProviderUnknownExporter(t *testing.T) {
	_, err := telemetry.InitProvider(context.Background(), telemetry.ProviderConfig{Exporter: "jaeger"})
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}
