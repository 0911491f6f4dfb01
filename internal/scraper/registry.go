package scraper

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds the ordered set of adapters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters []Adapter
	byID     map[string]Adapter
	byName   map[string]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]Adapter),
		byName: make(map[string]Adapter),
	}
}

// Register appends an adapter. It rejects nil adapters, empty ids, duplicate
// ids or names, and adapters whose URL predicate overlaps one already
// registered: each base URL is offered to every other adapter's CanHandle and
// any cross-match fails registration.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("%w: nil adapter", ErrInvalidAdapter)
	}
	desc := a.Descriptor()
	if desc.SourceID == "" || desc.Name == "" {
		return fmt.Errorf("%w: empty name or source id", ErrInvalidAdapter)
	}
	nameKey := strings.ToLower(desc.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[desc.SourceID]; ok {
		return fmt.Errorf("%w: id %q", ErrDuplicateSource, desc.SourceID)
	}
	if _, ok := r.byName[nameKey]; ok {
		return fmt.Errorf("%w: name %q", ErrDuplicateSource, desc.Name)
	}
	for _, existing := range r.adapters {
		if overlaps(existing, a) {
			return fmt.Errorf("%w: %s and %s", ErrOverlappingSource, existing.Name(), desc.Name)
		}
	}

	r.adapters = append(r.adapters, a)
	r.byID[desc.SourceID] = a
	r.byName[nameKey] = a
	return nil
}

// MustRegister registers every adapter and panics on the first failure.
// Intended for static wiring at startup.
func (r *Registry) MustRegister(adapters ...Adapter) {
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
}

func overlaps(a, b Adapter) bool {
	if base := b.BaseURL(); base != "" && a.CanHandle(base) {
		return true
	}
	if base := a.BaseURL(); base != "" && b.CanHandle(base) {
		return true
	}
	return false
}

// ResolveByURL returns the adapter whose CanHandle accepts rawURL.
func (r *Registry) ResolveByURL(rawURL string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.adapters {
		if a.CanHandle(rawURL) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: no source handles %q", ErrNotFound, rawURL)
}

// ResolveByName matches name case-insensitively against adapter names, then
// against source ids.
func (r *Registry) ResolveByName(name string) (Adapter, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.byName[key]; ok {
		return a, nil
	}
	if a, ok := r.byID[key]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// All returns a copy of the adapters in registration order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// Names returns the lower-cased adapter names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, strings.ToLower(a.Name()))
	}
	return out
}

// Descriptors returns the descriptors of every adapter in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Descriptor())
	}
	return out
}

// Len reports the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
