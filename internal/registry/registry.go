// Package registry maps type identifiers to Go constructors. Decoders
// consult it only after the admission gate has admitted an identifier.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownType is returned by Lookup for identifiers with no registered constructor.
var ErrUnknownType = errors.New("unknown type")

// Factory returns a new zero value, as a pointer, ready for decoding into.
type Factory func() any

// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Factory
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{types: make(map[string]Factory)}
}

// Register binds name to factory. Registering a name twice is an error.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("registry: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[name]; exists {
		return fmt.Errorf("registry: type %q already registered", name)
	}
	r.types[name] = factory
	return nil
}

// Lookup constructs a fresh value for name.
func (r *Registry) Lookup(name string) (any, error) {
	r.mu.RLock()
	f, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return f(), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[name]
	return ok
}

// Names returns registered identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
