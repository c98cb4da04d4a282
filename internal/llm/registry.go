package llm

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// ErrUnknownProvider is returned when a requested provider is not registered.
var ErrUnknownProvider = errors.New("llm: unknown provider") //nolint:gochecknoglobals // sentinel error

// ProviderConfig carries provider credentials and endpoint overrides.
type ProviderConfig struct {
	APIKey  string //nolint:gosec // G117: provider credential config
	BaseURL string
}

// ProviderFactory creates a Provider from its configuration.
type ProviderFactory func(cfg ProviderConfig) (Provider, error)

// Registry manages provider factories by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ProviderFactory),
	}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the named provider.
func (r *Registry) Create(name string, cfg ProviderConfig) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("llm.Registry.Create(%q): %w", name, ErrUnknownProvider)
	}

	provider, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm.Registry.Create(%q): %w", name, err)
	}

	return provider, nil
}

// Available returns registered provider names in sorted order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := slices.Collect(func(yield func(string) bool) {
		for name := range r.factories {
			if !yield(name) {
				return
			}
		}
	})
	sort.Strings(names)

	return names
}
