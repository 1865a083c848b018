package tracer

import (
	"context"
	"crypto/tls"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestNew_DisabledWithoutEndpoint(t *testing.T) {
	p, err := New(context.Background(), "memscope-test", "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Enabled() {
		t.Error("Enabled() = true without endpoint")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_WithEndpoint(t *testing.T) {
	// Non-routable, so nothing is actually exported.
	p, err := New(context.Background(), "", "http://192.0.2.1:4318")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !p.Enabled() {
		t.Error("Enabled() = false with endpoint")
	}

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_WithTLSConfig(t *testing.T) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	p, err := New(context.Background(), "memscope-test", "https://192.0.2.1:4318", WithTLSConfig(cfg), WithTLSConfig(nil))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !p.Enabled() {
		t.Error("Enabled() = false with endpoint")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestProvider_NilShutdown(t *testing.T) {
	var p *Provider
	if p.Enabled() {
		t.Error("nil provider is enabled")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestStartSpan_Noop(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "noop", attribute.String("k", "v"))
	if ctx == nil || span == nil {
		t.Fatal("StartSpan() returned nil")
	}
	EndSpan(span, errors.New("boom"))
}
