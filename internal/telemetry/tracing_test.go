package telemetry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TraceConfig{Exporter: "none"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("setup tracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupTracingOTLPRequiresEndpoint(t *testing.T) {
	if _, err := SetupTracing(context.Background(), TraceConfig{Exporter: "otlp"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for otlp exporter without endpoint")
	}
}

func TestSetupTracingUnknownExporter(t *testing.T) {
	if _, err := SetupTracing(context.Background(), TraceConfig{Exporter: "jaeger"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}
