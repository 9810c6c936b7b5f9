package audit

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultEntryPoint is resolved when a request names none.
const DefaultEntryPoint = "navigation"

// ErrUnknownEntryPoint is returned by Resolve for unregistered names.
var ErrUnknownEntryPoint = errors.New("unknown audit entry point")

// Registry maps entry point names to implementations.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]EntryPoint
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]EntryPoint)}
}

// NewDefaultRegistry creates a registry holding the built-in entry points.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(DefaultEntryPoint, Navigation)
	return r
}

// Register adds or replaces an entry point.
func (r *Registry) Register(name string, ep EntryPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = ep
}

// Resolve looks up an entry point. An empty name resolves DefaultEntryPoint.
func (r *Registry) Resolve(name string) (EntryPoint, error) {
	if name == "" {
		name = DefaultEntryPoint
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.entries[name]
	if !ok || ep == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntryPoint, name)
	}
	return ep, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
