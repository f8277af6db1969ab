package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// AdapterFactoryRegistry holds the adapter factories the resolver constructs
// tenant adapters with, keyed by channel.
type AdapterFactoryRegistry struct {
	mu        sync.RWMutex
	factories map[string]AdapterFactory
}

func NewAdapterFactoryRegistry() *AdapterFactoryRegistry {
	return &AdapterFactoryRegistry{factories: make(map[string]AdapterFactory)}
}

func (r *AdapterFactoryRegistry) Register(factory AdapterFactory) error {
	if factory == nil {
		return fmt.Errorf("core: adapter factory is nil")
	}
	channel := strings.ToLower(strings.TrimSpace(factory.Channel()))
	if channel == "" {
		return fmt.Errorf("core: adapter factory channel is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[channel]; exists {
		return fmt.Errorf("core: adapter factory already registered: %s", channel)
	}
	r.factories[channel] = factory
	return nil
}

func (r *AdapterFactoryRegistry) Get(channel string) (AdapterFactory, bool) {
	id := strings.ToLower(strings.TrimSpace(channel))
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	return factory, ok
}

// List returns registered factories in channel order.
func (r *AdapterFactoryRegistry) List() []AdapterFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.factories))
	for channel := range r.factories {
		keys = append(keys, channel)
	}
	sort.Strings(keys)
	factories := make([]AdapterFactory, 0, len(keys))
	for _, channel := range keys {
		factories = append(factories, r.factories[channel])
	}
	return factories
}

var _ FactoryRegistry = (*AdapterFactoryRegistry)(nil)
