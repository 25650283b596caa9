package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, endpoint, "test-service", false)
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Fatalf("NewProviders(%q) returned nil providers", endpoint)
		}
		if providers.Meter() == nil {
			t.Error("Meter should not be nil")
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("shutdown should be no-op for empty endpoint, got %v", err)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint     string
		wantTarget   string
		wantInsecure bool
		wantErr      bool
	}{
		{"localhost:4317", "localhost:4317", true, false},
		{"http://collector:4317", "collector:4317", true, false},
		{"https://collector:4317/v1/traces", "collector:4317", false, false},
		{"http://", "", false, true},
		{"http://[invalid", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			target, insecure, err := parseEndpoint(tt.endpoint)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseEndpoint(%q) should fail", tt.endpoint)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEndpoint: %v", err)
			}
			if target != tt.wantTarget || insecure != tt.wantInsecure {
				t.Errorf("parseEndpoint = %q, %v; want %q, %v", target, insecure, tt.wantTarget, tt.wantInsecure)
			}
		})
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	if _, err := NewProviders(context.Background(), "http://", "test-service", false); err == nil {
		t.Fatal("NewProviders with missing host should fail")
	}
}

func TestSetGlobal(t *testing.T) {
	ctx := context.Background()
	providers, err := NewProviders(ctx, "", "test-service", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	defer func() { _ = providers.Shutdown(ctx) }()
	providers.SetGlobal()
	if otel.GetTracerProvider() != providers.TracerProvider {
		t.Error("global TracerProvider not set")
	}
	if otel.GetMeterProvider() != providers.MeterProvider {
		t.Error("global MeterProvider not set")
	}
}
