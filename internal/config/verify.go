package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/yndnr/memscope-go/internal/telemetry/logger"
)

const minProgressInterval = 10 * time.Millisecond

// Verify validates the configuration. All problems are reported together.
func Verify(cfg *Config) error {
	return errors.Join(
		verifyIndex(&cfg.Index),
		verifyLog(&cfg.Log),
		verifyTelemetry(&cfg.Telemetry),
	)
}

func verifyIndex(cfg *IndexSection) error {
	var errs []error
	if cfg.Persist && cfg.CacheDir == "" {
		errs = append(errs, errors.New("index.cache_dir is required when index.persist is set"))
	}
	if cfg.CheckInterval < 1 {
		errs = append(errs, errors.New("index.check_interval must be at least 1"))
	}
	if cfg.ProgressInterval < minProgressInterval {
		errs = append(errs, fmt.Errorf("index.progress_interval must be at least %v", minProgressInterval))
	}
	return errors.Join(errs...)
}

func verifyLog(cfg *LogSection) error {
	var errs []error
	if !logger.ValidLevel(cfg.Level) {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level))
	}
	if cfg.Format != "text" && cfg.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", cfg.Format))
	}
	return errors.Join(errs...)
}

func verifyTelemetry(cfg *TelemetrySection) error {
	var errs []error
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, fmt.Errorf("telemetry.metrics_addr: %w", err))
		}
	}
	if cfg.OTelEndpoint != "" {
		u, err := url.Parse(cfg.OTelEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("telemetry.otel_endpoint %q is not an http(s) URL", cfg.OTelEndpoint))
		}
	}
	if (cfg.OTelCertFile == "") != (cfg.OTelKeyFile == "") {
		errs = append(errs, errors.New("telemetry.otel_cert_file and telemetry.otel_key_file must be set together"))
	}
	return errors.Join(errs...)
}
