package tax

import (
	"fmt"
	"sync"
)

// DefaultProvider is resolved when a run names no provider.
const DefaultProvider = "mock"

// Registry maps provider names to implementations. Safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a registry with the mock provider pre-registered.
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	r.Register(Mock{})
	return r
}

// Register adds or replaces a provider under its own name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Resolve returns the provider for name; empty name resolves to the
// default.
func (r *Registry) Resolve(name string) (Provider, error) {
	if name == "" {
		name = DefaultProvider
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown tax provider %q", name)
	}
	return p, nil
}
