package tracing_test

import (
	"context"
	"testing"

	"github.com/xtxerr/telemetry/internal/config"
	"github.com/xtxerr/telemetry/internal/tracing"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := tracing.Setup(context.Background(), config.TracingConfig{ServiceName: "test-service"}, "dev")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// Non-routable address so no export actually happens.
	cfg := config.TracingConfig{
		Endpoint:    "http://192.0.2.1:4318",
		ServiceName: "test-service",
		SampleRatio: 1,
	}

	shutdown, err := tracing.Setup(context.Background(), cfg, "dev")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestTracerWithoutSetup(t *testing.T) {
	_, span := tracing.Tracer().Start(context.Background(), "noop")
	defer span.End()

	if span == nil {
		t.Fatal("expected a span")
	}
}
