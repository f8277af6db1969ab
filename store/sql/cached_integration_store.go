package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/marianoberton/go-messaging/core"
)

const integrationCacheKeyPrefix = "go-messaging::integration::v1"

// CachedIntegrationStore caches integration rows in front of a base store.
// Both the (tenant, provider) lookup the resolver runs on every send and the
// (provider, account) reverse lookup webhooks run on every inbound are
// cached, including absent rows; id lookups pass through. Invalidation
// removes both keys for a (tenant, provider) pair.
type CachedIntegrationStore struct {
	base  core.IntegrationStore
	cache repositorycache.CacheService
}

// integrationCacheEntry also caches absence so unconfigured channels do not
// hit the database on every message.
type integrationCacheEntry struct {
	Integration core.Integration
	Found       bool
}

func NewCachedIntegrationStore(
	base core.IntegrationStore,
	cacheService repositorycache.CacheService,
) (*CachedIntegrationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base integration store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: integration cache service is required")
	}
	return &CachedIntegrationStore{base: base, cache: cacheService}, nil
}

// IntegrationCacheKey returns the deterministic cache key contract for
// tenant lookups: go-messaging::integration::v1::tenant::<tenant_id>::<provider>
// with each segment URL-path escaped.
func IntegrationCacheKey(tenantID, provider string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	provider = strings.TrimSpace(provider)
	if tenantID == "" || provider == "" {
		return "", fmt.Errorf("sqlstore: tenant id and provider are required")
	}
	return joinCacheKey("tenant", tenantID, provider), nil
}

// IntegrationAccountCacheKey returns the deterministic cache key contract for
// reverse lookups: go-messaging::integration::v1::account::<provider>::<account_id>.
func IntegrationAccountCacheKey(provider, accountID string) (string, error) {
	provider = strings.TrimSpace(provider)
	accountID = strings.TrimSpace(accountID)
	if provider == "" || accountID == "" {
		return "", fmt.Errorf("sqlstore: provider and account id are required")
	}
	return joinCacheKey("account", provider, accountID), nil
}

func joinCacheKey(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = url.PathEscape(segment)
	}
	return strings.Join(append([]string{integrationCacheKeyPrefix}, escaped...), "::")
}

func (s *CachedIntegrationStore) FindByTenantAndProvider(ctx context.Context, tenantID, provider string) (core.Integration, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Integration{}, false, fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	cacheKey, err := IntegrationCacheKey(tenantID, provider)
	if err != nil {
		return core.Integration{}, false, err
	}

	entry, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (integrationCacheEntry, error) {
		integration, found, fetchErr := s.base.FindByTenantAndProvider(ctx, tenantID, provider)
		if fetchErr != nil {
			return integrationCacheEntry{}, fetchErr
		}
		return integrationCacheEntry{Integration: cloneIntegration(integration), Found: found}, nil
	})
	if err != nil {
		return core.Integration{}, false, err
	}
	return cloneIntegration(entry.Integration), entry.Found, nil
}

// FindByID is not cached. Id lookups serve diagnostics and provisioning, and
// caching them would leave keys invalidation cannot name.
func (s *CachedIntegrationStore) FindByID(ctx context.Context, id string) (core.Integration, bool, error) {
	if s == nil || s.base == nil {
		return core.Integration{}, false, fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	return s.base.FindByID(ctx, id)
}

func (s *CachedIntegrationStore) FindByProviderAccount(ctx context.Context, provider, accountID string) (core.Integration, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Integration{}, false, fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	cacheKey, err := IntegrationAccountCacheKey(provider, accountID)
	if err != nil {
		return core.Integration{}, false, err
	}

	entry, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (integrationCacheEntry, error) {
		integration, found, fetchErr := s.base.FindByProviderAccount(ctx, provider, accountID)
		if fetchErr != nil {
			return integrationCacheEntry{}, fetchErr
		}
		return integrationCacheEntry{Integration: cloneIntegration(integration), Found: found}, nil
	})
	if err != nil {
		return core.Integration{}, false, err
	}
	return cloneIntegration(entry.Integration), entry.Found, nil
}

// InvalidateIntegration drops the cached (tenant, provider) row and, when the
// base store still has the row, its reverse-lookup key. A reverse key cached
// for a row that was deleted outright ages out on TTL instead.
func (s *CachedIntegrationStore) InvalidateIntegration(ctx context.Context, tenantID, provider string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached integration store is not configured")
	}
	cacheKey, err := IntegrationCacheKey(tenantID, provider)
	if err != nil {
		return err
	}

	var errs []error
	integration, found, lookupErr := s.base.FindByTenantAndProvider(ctx, tenantID, provider)
	if lookupErr != nil {
		errs = append(errs, lookupErr)
	} else if found && strings.TrimSpace(integration.ProviderAccountID) != "" {
		accountKey, keyErr := IntegrationAccountCacheKey(integration.Provider, integration.ProviderAccountID)
		if keyErr == nil {
			if deleteErr := s.cache.Delete(ctx, accountKey); deleteErr != nil {
				errs = append(errs, deleteErr)
			}
		}
	}

	if deleteErr := s.cache.Delete(ctx, cacheKey); deleteErr != nil {
		errs = append(errs, deleteErr)
	}
	return errors.Join(errs...)
}

func cloneIntegration(in core.Integration) core.Integration {
	cloned := in
	cloned.Config.CredentialRefs = copyStringMap(in.Config.CredentialRefs)
	cloned.Config.Settings = copyAnyMap(in.Config.Settings)
	return cloned
}
