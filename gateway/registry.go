package gateway

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a gateway from its configuration.
type Factory func(config map[string]string) (Gateway, error)

// Registry manages the available gateway implementations.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a gateway factory to the registry
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get retrieves a gateway factory by name
func (r *Registry) Get(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[name]
	if !exists {
		return nil, fmt.Errorf("payment gateway '%s' is not registered", name)
	}
	return factory, nil
}

// New creates a configured gateway instance
func (r *Registry) New(name string, config map[string]string) (Gateway, error) {
	factory, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	gw, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gateway '%s': %w", name, err)
	}
	return gw, nil
}

// Names returns the registered gateway names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global registry gateway packages register into
var DefaultRegistry = NewRegistry()

// Register registers a gateway with the default registry
func Register(name string, factory Factory) {
	DefaultRegistry.Register(name, factory)
}

// New creates a gateway from the default registry
func New(name string, config map[string]string) (Gateway, error) {
	return DefaultRegistry.New(name, config)
}
