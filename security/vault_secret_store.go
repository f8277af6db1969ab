package security

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/marianoberton/go-messaging/core"
)

// VaultReadRequest addresses one secret node. Path is the full KV location;
// Field selects one entry of the node's payload.
type VaultReadRequest struct {
	Path  string
	Field string
}

type VaultReadResponse struct {
	Fields map[string]string
}

// VaultClient is the read surface the store needs from a vault deployment.
type VaultClient interface {
	Read(ctx context.Context, req VaultReadRequest) (VaultReadResponse, error)
}

// VaultPathMapper turns a (tenant, key) pair into the node path and field
// name to read.
type VaultPathMapper func(tenantID, key string) (path, field string)

type VaultOption func(*VaultSecretStore)

type vaultCacheEntry struct {
	value     string
	expiresAt time.Time
}

// VaultSecretStore resolves secret references through a vault KV tree. Reads
// are cached for a short TTL so a burst of adapter builds does not hammer
// the vault; invalidation is time-based only.
type VaultSecretStore struct {
	client    VaultClient
	mountPath string
	mapPath   VaultPathMapper
	cacheTTL  time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]vaultCacheEntry
}

func NewVaultSecretStore(client VaultClient, opts ...VaultOption) (*VaultSecretStore, error) {
	if client == nil {
		return nil, fmt.Errorf("security: vault client is required")
	}
	store := &VaultSecretStore{
		client:    client,
		mountPath: "secret/data/messaging",
		cacheTTL:  5 * time.Minute,
		now:       func() time.Time { return time.Now().UTC() },
		cache:     map[string]vaultCacheEntry{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(store)
	}
	if store.mapPath == nil {
		store.mapPath = store.defaultPath
	}
	if store.now == nil {
		store.now = func() time.Time { return time.Now().UTC() }
	}
	return store, nil
}

// WithVaultMountPath overrides the KV mount the default mapper reads under.
func WithVaultMountPath(path string) VaultOption {
	return func(store *VaultSecretStore) {
		if store == nil {
			return
		}
		trimmed := strings.Trim(strings.TrimSpace(path), "/")
		if trimmed != "" {
			store.mountPath = trimmed
		}
	}
}

// WithVaultPathMapper replaces the tenant/key to path/field mapping.
func WithVaultPathMapper(mapper VaultPathMapper) VaultOption {
	return func(store *VaultSecretStore) {
		if store == nil || mapper == nil {
			return
		}
		store.mapPath = mapper
	}
}

// WithVaultCacheTTL sets how long resolved values are reused. Zero disables
// caching.
func WithVaultCacheTTL(ttl time.Duration) VaultOption {
	return func(store *VaultSecretStore) {
		if store == nil || ttl < 0 {
			return
		}
		store.cacheTTL = ttl
	}
}

func WithVaultClock(now func() time.Time) VaultOption {
	return func(store *VaultSecretStore) {
		if store == nil {
			return
		}
		store.now = now
	}
}

func (s *VaultSecretStore) Get(ctx context.Context, tenantID, key string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("security: secret store is nil")
	}
	tenant := strings.TrimSpace(tenantID)
	if tenant == "" {
		return "", fmt.Errorf("security: tenant id is required")
	}
	ref := strings.TrimSpace(key)
	if ref == "" {
		return "", fmt.Errorf("security: secret key is required")
	}

	cacheKey := tenant + ":" + ref
	if value, ok := s.cached(cacheKey); ok {
		return value, nil
	}

	path, field := s.mapPath(tenant, ref)
	response, err := s.client.Read(ctx, VaultReadRequest{Path: path, Field: field})
	if err != nil {
		return "", fmt.Errorf("security: vault read %q: %w", path, err)
	}
	value, ok := response.Fields[field]
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("security: vault path %q has no field %q", path, field)
	}

	s.store(cacheKey, value)
	return value, nil
}

// defaultPath nests keys under the mount by tenant: "telegram/bot_token"
// for tenant_1 reads path "<mount>/tenant_1/telegram", field "bot_token".
func (s *VaultSecretStore) defaultPath(tenantID, key string) (string, string) {
	trimmed := strings.Trim(key, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return s.mountPath + "/" + tenantID + "/" + trimmed[:idx], trimmed[idx+1:]
	}
	return s.mountPath + "/" + tenantID, trimmed
}

func (s *VaultSecretStore) cached(cacheKey string) (string, bool) {
	if s.cacheTTL <= 0 {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[cacheKey]
	if !ok || s.now().After(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

func (s *VaultSecretStore) store(cacheKey, value string) {
	if s.cacheTTL <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[cacheKey] = vaultCacheEntry{value: value, expiresAt: s.now().Add(s.cacheTTL)}
}

var _ core.SecretStore = (*VaultSecretStore)(nil)
