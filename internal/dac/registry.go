package dac

import (
	"slices"
	"strings"
	"sync"

	"github.com/yndnr/memscope-go/internal/core/domain"
)

type componentRegistry struct {
	mu         sync.RWMutex
	components map[string]Component
}

var registry = &componentRegistry{
	components: make(map[string]Component),
}

// Register adds a component to the process-wide registry. A component
// registered under an existing name replaces it.
func Register(c Component) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.components[c.Name()] = c
}

// Load returns the component registered under name.
func Load(name string) (Component, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	c, ok := registry.components[name]
	if !ok {
		return nil, domain.ErrInitialization.WithDetailsf("no component named %q", name)
	}
	return c, nil
}

// Components returns the registered component names, sorted.
func Components() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.components))
	for name := range registry.components {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RegistryLocator resolves components from the process-wide registry.
type RegistryLocator struct {
	// Force, when set, bypasses version matching and returns this name.
	Force string
}

// FindComponent returns the first registered component, in name order,
// that supports v.
func (l RegistryLocator) FindComponent(v domain.RuntimeVersion) (string, error) {
	if l.Force != "" {
		if _, err := Load(l.Force); err != nil {
			return "", err
		}
		return l.Force, nil
	}

	for _, name := range Components() {
		c, err := Load(name)
		if err != nil {
			continue
		}
		if c.Supports(v) {
			return name, nil
		}
	}
	return "", domain.ErrInitialization.WithDetailsf("no component supports %s", v)
}

// VersionMatcher reports whether a runtime version is served by a
// component, matching flavor case-insensitively and the major version
// exactly. An empty majors list accepts every version of the flavor.
type VersionMatcher struct {
	Flavors []string
	Majors  []string
}

// Match implements the predicate.
func (m VersionMatcher) Match(v domain.RuntimeVersion) bool {
	flavorOK := slices.ContainsFunc(m.Flavors, func(f string) bool {
		return strings.EqualFold(f, v.Flavor)
	})
	if !flavorOK {
		return false
	}
	return len(m.Majors) == 0 || slices.Contains(m.Majors, v.Major())
}
