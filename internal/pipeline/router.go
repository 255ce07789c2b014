package pipeline

import (
	"fmt"
	"sort"
)

// Router is a generic backend dispatcher that maps provider names to backend implementations.
// It provides O(1) lookup by name with a configurable fallback default.
type Router[T any] struct {
	backends map[string]T
	fallback string
}

// NewRouter creates a router with the given backends and a fallback name
// used when the requested one is not found.
func NewRouter[T any](backends map[string]T, fallback string) *Router[T] {
	if backends == nil {
		backends = map[string]T{}
	}
	return &Router[T]{backends: backends, fallback: fallback}
}

// Register adds or replaces a backend.
func (r *Router[T]) Register(name string, backend T) {
	r.backends[name] = backend
}

// Route returns the backend for the given name, falling back to the default.
func (r *Router[T]) Route(name string) (T, error) {
	if backend, ok := r.backends[name]; ok {
		return backend, nil
	}
	if backend, ok := r.backends[r.fallback]; ok {
		return backend, nil
	}
	var zero T
	return zero, fmt.Errorf("no backend for %q", name)
}

// Has reports whether the router has a backend for the given name.
func (r *Router[T]) Has(name string) bool {
	_, ok := r.backends[name]
	return ok
}

// Names returns the registered backend names, sorted.
func (r *Router[T]) Names() []string {
	names := make([]string, 0, len(r.backends))
	for k := range r.backends {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
