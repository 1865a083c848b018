package tracer

import (
	"context"
	"crypto/tls"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer memscope spans are created with.
const InstrumentationName = "github.com/yndnr/memscope-go"

// Provider owns the OpenTelemetry tracer provider, if one was installed.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Option configures the exporter.
type Option func(*[]otlptracehttp.Option)

// WithTLSConfig sets the TLS client configuration of an https endpoint.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(opts *[]otlptracehttp.Option) {
		if cfg != nil {
			*opts = append(*opts, otlptracehttp.WithTLSClientConfig(cfg))
		}
	}
}

// New installs a global tracer provider exporting to the OTLP/HTTP
// endpoint URL. With an empty endpoint, tracing stays disabled and New
// returns a provider whose Shutdown does nothing.
func New(ctx context.Context, serviceName, endpoint string, opts ...Option) (*Provider, error) {
	if endpoint == "" {
		return &Provider{}, nil
	}
	if serviceName == "" {
		serviceName = "memscope"
	}

	exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint)}
	for _, opt := range opts {
		opt(&exporterOpts)
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Provider{tp: tp}, nil
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool { return p != nil && p.tp != nil }

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	err := p.tp.Shutdown(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// StartSpan starts a span from the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(InstrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
