package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tuncerburak97/tekrar/internal/config"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	t.Parallel()
	for _, cfg := range []config.TelemetryConfig{
		{Enabled: false, Endpoint: "http://localhost:4318"},
		{Enabled: true},
	} {
		shutdown, err := Setup(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Setup(%+v): %v", cfg, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}
}

// Not parallel: installs the global tracer provider.
func TestInstallRecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	shutdown, err := install(context.Background(), "tekrar-test", sdktrace.WithSyncer(exporter))
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(context.Background())

	_, span := otel.Tracer("test").Start(context.Background(), "replay")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "replay" {
		t.Fatalf("spans = %+v", spans)
	}
	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	if service != "tekrar-test" {
		t.Errorf("service.name = %q", service)
	}
}
