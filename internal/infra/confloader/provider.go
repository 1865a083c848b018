package confloader

import (
	"errors"

	"github.com/knadh/koanf/maps"
)

// mapProvider feeds koanf a map keyed by dotted paths.
type mapProvider map[string]any

// ReadBytes implements koanf.Provider. A map has no byte form.
func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("confloader: map provider has no byte form")
}

// Read implements koanf.Provider.
func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}
