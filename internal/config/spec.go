package config

import "time"

// Config is the root configuration for memscope.
type Config struct {
	Index     IndexSection     `koanf:"index" yaml:"index" json:"index"`
	Runtime   RuntimeSection   `koanf:"runtime" yaml:"runtime" json:"runtime"`
	Log       LogSection       `koanf:"log" yaml:"log" json:"log"`
	Telemetry TelemetrySection `koanf:"telemetry" yaml:"telemetry" json:"telemetry"`
}

// IndexSection configures the heap index.
type IndexSection struct {
	// CacheDir is where built indexes are persisted, one directory per
	// snapshot fingerprint.
	CacheDir string `koanf:"cache_dir" yaml:"cache_dir" json:"cache_dir"`

	// Persist enables loading and saving indexes under CacheDir.
	Persist bool `koanf:"persist" yaml:"persist" json:"persist"`

	// CheckInterval is the number of objects walked between
	// cancellation checks.
	CheckInterval int `koanf:"check_interval" yaml:"check_interval" json:"check_interval"`

	// ProgressInterval throttles build progress reports.
	ProgressInterval time.Duration `koanf:"progress_interval" yaml:"progress_interval" json:"progress_interval"`
}

// RuntimeSection configures runtime initialization.
type RuntimeSection struct {
	// ThreadType is the managed type read by thread property queries.
	ThreadType string `koanf:"thread_type" yaml:"thread_type" json:"thread_type"`

	// Component forces a diagnostic component instead of matching on the
	// runtime version.
	Component string `koanf:"component" yaml:"component" json:"component"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level" json:"level"`
	Format string `koanf:"format" yaml:"format" json:"format"`
}

// TelemetrySection configures metrics and tracing.
type TelemetrySection struct {
	// MetricsAddr serves Prometheus metrics when set (e.g. "127.0.0.1:9464").
	MetricsAddr string `koanf:"metrics_addr" yaml:"metrics_addr" json:"metrics_addr"`

	// OTelEndpoint is the OTLP/HTTP trace endpoint. Empty disables tracing.
	OTelEndpoint string `koanf:"otel_endpoint" yaml:"otel_endpoint" json:"otel_endpoint"`

	// OTelCAFile is a PEM bundle trusted in addition to the system roots
	// when the endpoint is https.
	OTelCAFile string `koanf:"otel_ca_file" yaml:"otel_ca_file" json:"otel_ca_file"`

	// OTelCertFile and OTelKeyFile are a client certificate presented to
	// the collector. The pair is reloaded when either file changes.
	OTelCertFile string `koanf:"otel_cert_file" yaml:"otel_cert_file" json:"otel_cert_file"`
	OTelKeyFile  string `koanf:"otel_key_file" yaml:"otel_key_file" json:"otel_key_file"`

	ServiceName string `koanf:"service_name" yaml:"service_name" json:"service_name"`
}
