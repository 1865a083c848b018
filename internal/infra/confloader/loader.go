package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// DefaultEnvPrefix starts every environment variable the loader reads.
	DefaultEnvPrefix = "MEMSCOPE_"

	// EnvSectionSeparator separates nesting levels in variable names, so
	// MEMSCOPE_INDEX__CACHE_DIR sets index.cache_dir.
	EnvSectionSeparator = "__"
)

// Loader layers configuration sources onto a struct.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix replaces DefaultEnvPrefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile reads the YAML file at path. An empty path reads
// nothing.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// WithOverrides applies values keyed by dotted path ("log.level") over
// every other source. Command-line flags come in this way.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) { l.overrides = values }
}

// NewLoader returns a loader with the given options.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{k: koanf.New("."), envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the file, the environment and the overrides, in that order,
// and decodes the result into target by koanf tags. Keys no source sets
// leave target untouched, so callers pass a struct holding the defaults.
func (l *Loader) Load(target any) error {
	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("load config file %s: %w", l.filePath, err)
		}
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	if len(l.overrides) > 0 {
		if err := l.k.Load(mapProvider(l.overrides), nil); err != nil {
			return fmt.Errorf("load overrides: %w", err)
		}
	}
	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (l *Loader) envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
	return strings.ReplaceAll(s, EnvSectionSeparator, ".")
}
