package config

import "github.com/yndnr/memscope-go/internal/telemetry/logger"

// Sanitize returns a copy of cfg that is safe to log or print.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Telemetry.OTelEndpoint = logger.RedactURL(out.Telemetry.OTelEndpoint)
	return &out
}
