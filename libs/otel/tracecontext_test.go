package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextStringsRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if tp, ts := TraceContextStrings(context.Background()); tp != "" || ts != "" {
		t.Fatalf("expected empty strings without a span, got %q %q", tp, ts)
	}

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	tp, ts := TraceContextStrings(ctx)
	if tp == "" {
		t.Fatalf("traceparent missing")
	}
	out := trace.SpanContextFromContext(ContextWithTraceContext(context.Background(), tp, ts))
	if out.TraceID() != traceID || !out.IsRemote() {
		t.Fatalf("unexpected span context %+v", out)
	}

	base := context.Background()
	if ContextWithTraceContext(base, "", "k=v") != base {
		t.Fatalf("tracestate alone should be ignored")
	}
}
