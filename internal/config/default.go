package config

import (
	"os"
	"path/filepath"

	"github.com/yndnr/memscope-go/internal/core/session"
	"github.com/yndnr/memscope-go/internal/storage/heapindex"
)

// Default configuration values.
const (
	DefaultCheckInterval    = heapindex.DefaultCheckInterval
	DefaultProgressInterval = heapindex.DefaultProgressInterval
	DefaultThreadType       = session.DefaultThreadType

	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultServiceName = "memscope"
)

// DefaultCacheDir returns the user cache directory for persisted indexes,
// falling back to the temp directory.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "memscope", "index")
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Index: IndexSection{
			CacheDir:         DefaultCacheDir(),
			Persist:          false,
			CheckInterval:    DefaultCheckInterval,
			ProgressInterval: DefaultProgressInterval,
		},
		Runtime: RuntimeSection{
			ThreadType: DefaultThreadType,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Telemetry: TelemetrySection{
			ServiceName: DefaultServiceName,
		},
	}
}
