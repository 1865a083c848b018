package config

import (
	"errors"
	"fmt"

	"github.com/yndnr/memscope-go/internal/infra/confloader"
)

// ErrInvalid wraps every Verify failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

// Load reads the configuration from defaults, the optional YAML file at
// path and MEMSCOPE_ environment variables, then verifies it.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides is Load with values keyed by dotted path, such as
// "log.level", applied last. The command line passes its flags this way.
func LoadWithOverrides(path string, overrides map[string]any) (*Config, error) {
	cfg := Default()
	l := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithOverrides(overrides),
	)
	if err := l.Load(cfg); err != nil {
		return nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, nil
}
