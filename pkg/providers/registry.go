package providers

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a provider.
type Factory func() Provider

// Registry maps provider names to factories. Providers are registered
// explicitly by the application.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering a name twice is a programming error.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f == nil {
		panic("providers: Register factory is nil")
	}
	if _, dup := r.factories[name]; dup {
		panic("providers: Register called twice for provider " + name)
	}
	r.factories[name] = f
}

// Get builds the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrProviderNotFound)
	}
	return f(), nil
}

// List returns a sorted list of registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
