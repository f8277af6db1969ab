package core

import (
	"strings"
	"sync"
)

// AdapterCacheKey builds the canonical "tenantId:provider" cache key.
func AdapterCacheKey(tenantID, provider string) string {
	return strings.TrimSpace(tenantID) + ":" + strings.ToLower(strings.TrimSpace(provider))
}

// MemoryAdapterCache is the default AdapterCache: a mutex-guarded map of live
// adapter instances. It is always injected into the resolver; nothing in this
// package holds one at module level.
type MemoryAdapterCache struct {
	mu       sync.RWMutex
	adapters map[string]ChannelAdapter
}

func NewMemoryAdapterCache() *MemoryAdapterCache {
	return &MemoryAdapterCache{adapters: make(map[string]ChannelAdapter)}
}

func (c *MemoryAdapterCache) Get(key string) (ChannelAdapter, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	adapter, ok := c.adapters[key]
	c.mu.RUnlock()
	return adapter, ok
}

func (c *MemoryAdapterCache) Set(key string, adapter ChannelAdapter) {
	if c == nil || strings.TrimSpace(key) == "" || adapter == nil {
		return
	}
	c.mu.Lock()
	c.adapters[key] = adapter
	c.mu.Unlock()
}

func (c *MemoryAdapterCache) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.adapters, key)
	c.mu.Unlock()
}

// DeletePrefix evicts every entry under a key prefix; the resolver uses it to
// drop all of a tenant's adapters at once.
func (c *MemoryAdapterCache) DeletePrefix(prefix string) {
	if c == nil || prefix == "" {
		return
	}
	c.mu.Lock()
	for key := range c.adapters {
		if strings.HasPrefix(key, prefix) {
			delete(c.adapters, key)
		}
	}
	c.mu.Unlock()
}

// Len is a test convenience; production callers never size the cache.
func (c *MemoryAdapterCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.adapters)
}

var _ AdapterCache = (*MemoryAdapterCache)(nil)
