package session

import (
	"log/slog"
	"time"

	"github.com/yndnr/memscope-go/internal/dac"
	"github.com/yndnr/memscope-go/internal/dac/dumpfile"
	"github.com/yndnr/memscope-go/internal/storage"
	"github.com/yndnr/memscope-go/internal/storage/heapindex"
	"github.com/yndnr/memscope-go/internal/telemetry/metric"
)

// DefaultThreadType is the managed type whose instances describe threads.
const DefaultThreadType = "System.Threading.Thread"

// Options configures Open.
type Options struct {
	// ID names the session. Empty means a fresh ULID.
	ID string

	// Provider opens the memory target. Defaults to dumpfile.Provider.
	Provider dac.Provider

	// Locator picks the diagnostic component. Defaults to a
	// dac.RegistryLocator.
	Locator dac.Locator

	// Bus receives the informational event sent when runtime
	// initialization starts. Defaults to a LogBus on Logger.
	Bus Bus

	// ThreadType overrides DefaultThreadType.
	ThreadType string

	// CacheDir enables persisting the heap index under this directory.
	CacheDir string
	Badger   storage.BadgerConfig

	// CheckInterval and ProgressInterval tune the index build; zero
	// means the heap index defaults.
	CheckInterval    int
	ProgressInterval time.Duration
	Progress         heapindex.ProgressFunc

	Logger  *slog.Logger
	Metrics *metric.Registry
}

func (o Options) withDefaults() Options {
	if o.Provider == nil {
		o.Provider = dumpfile.Provider{}
	}
	if o.Locator == nil {
		o.Locator = dac.RegistryLocator{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Bus == nil {
		o.Bus = LogBus{Logger: o.Logger}
	}
	if o.ThreadType == "" {
		o.ThreadType = DefaultThreadType
	}
	return o
}
