// Package tracer sets up OpenTelemetry tracing for memscope.
//
// Tracing is opt-in: spans are exported over OTLP/HTTP only when an
// endpoint is configured. Without one the global no-op provider stays in
// place and StartSpan costs next to nothing.
package tracer
