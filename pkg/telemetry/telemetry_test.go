package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty service name", func(c *Config) { c.ServiceName = "" }},
		{"empty service version", func(c *Config) { c.ServiceVersion = "" }},
		{"negative sample rate", func(c *Config) { c.SampleRate = -0.1 }},
		{"sample rate above one", func(c *Config) { c.SampleRate = 1.5 }},
		{"zero export interval", func(c *Config) { c.ExportInterval = 0 }},
		{"unknown exporter", func(c *Config) { c.Exporters = []string{"jaeger"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("DOCKV_TELEMETRY_SERVICE_NAME", "env-name")
	t.Setenv("DOCKV_TELEMETRY_ENABLED", "false")
	t.Setenv("DOCKV_TELEMETRY_EXPORTERS", "prometheus, stdout")
	t.Setenv("DOCKV_TELEMETRY_EXPORT_INTERVAL", "30s")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	if cfg.ServiceName != "env-name" {
		t.Errorf("service name not overridden: %s", cfg.ServiceName)
	}
	if cfg.Enabled {
		t.Error("enabled flag not overridden")
	}
	if len(cfg.Exporters) != 2 || cfg.Exporters[0] != "prometheus" || cfg.Exporters[1] != "stdout" {
		t.Errorf("exporters not parsed: %v", cfg.Exporters)
	}
	if cfg.ExportInterval != 30*time.Second {
		t.Errorf("export interval not parsed: %s", cfg.ExportInterval)
	}
}

func TestDisabledConfigYieldsNoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	tel, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := tel.(*NoopTelemetry); !ok {
		t.Errorf("expected the no-op implementation, got %T", tel)
	}
}

func TestProviderRecordsWithoutError(t *testing.T) {
	cfg := DefaultConfig()
	tel, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	attrs := []attribute.KeyValue{
		attribute.String(AttrComponent, ComponentScan),
		attribute.String(AttrOperationType, OpTypeSeek),
	}

	// Same instrument names twice to exercise the instrument cache
	for i := 0; i < 2; i++ {
		tel.RecordCounter(ctx, "dockv.scan.operations.total", 1, attrs...)
		tel.RecordHistogram(ctx, "dockv.scan.seek.duration", 0.001, attrs...)
	}

	spanCtx, span := tel.StartSpan(ctx, "scan", attrs...)
	if spanCtx == nil {
		t.Fatal("StartSpan returned a nil context")
	}
	span.End()

	p, ok := tel.(*Provider)
	if !ok {
		t.Fatalf("expected a Provider, got %T", tel)
	}
	if p.Registry() == nil {
		t.Error("provider must expose its prometheus registry")
	}

	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestNoopTelemetry(t *testing.T) {
	ctx := context.Background()
	tel := NewNoop()

	tel.RecordCounter(ctx, "x", 1)
	tel.RecordHistogram(ctx, "y", 1.0)
	_, span := tel.StartSpan(ctx, "z")
	span.End()
	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("noop Shutdown must not fail: %v", err)
	}
}
