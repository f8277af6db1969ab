package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// ChannelResolverConfig wires the resolver's collaborators. Integrations,
// Secrets and Factories are required; Cache defaults to an in-memory map and
// Logger to the ambient logger.
type ChannelResolverConfig struct {
	Integrations IntegrationStore
	Secrets      SecretStore
	Factories    FactoryRegistry
	Cache        AdapterCache
	Logger       Logger
}

// ChannelResolver builds and caches one adapter per (tenant, provider).
// Configuration gaps (missing or paused integration, unresolvable secret,
// missing factory, failed build) resolve to "not configured"; only repository
// failures surface as errors.
type ChannelResolver struct {
	integrations IntegrationStore
	secrets      SecretStore
	factories    FactoryRegistry
	cache        AdapterCache
	logger       Logger
}

func NewChannelResolver(cfg ChannelResolverConfig) (*ChannelResolver, error) {
	if cfg.Integrations == nil {
		return nil, fmt.Errorf("core: integration store is required")
	}
	if cfg.Secrets == nil {
		return nil, fmt.Errorf("core: secret store is required")
	}
	if cfg.Factories == nil {
		return nil, fmt.Errorf("core: adapter factory registry is required")
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryAdapterCache()
	}
	return &ChannelResolver{
		integrations: cfg.Integrations,
		secrets:      cfg.Secrets,
		factories:    cfg.Factories,
		cache:        cache,
		logger:       glog.Ensure(cfg.Logger),
	}, nil
}

// ResolveAdapter returns the cached adapter for (tenant, provider) or builds
// one from the integration row. A cache hit touches neither the repository
// nor the secret store. Concurrent resolves may build twice; the cache keeps
// one instance and the redundant build is discarded by overwrite.
func (r *ChannelResolver) ResolveAdapter(ctx context.Context, tenantID, provider string) (ChannelAdapter, bool, error) {
	if r == nil {
		return nil, false, fmt.Errorf("core: channel resolver is nil")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, false, fmt.Errorf("core: tenant_id is required")
	}
	provider = BaseChannel(provider)
	if provider == "" {
		return nil, false, fmt.Errorf("core: provider is required")
	}

	key := AdapterCacheKey(tenantID, provider)
	if adapter, ok := r.cache.Get(key); ok {
		return adapter, true, nil
	}

	integration, found, err := r.integrations.FindByTenantAndProvider(ctx, tenantID, provider)
	if err != nil {
		return nil, false, err
	}
	if !found || integration.Status != IntegrationStatusActive {
		status := "absent"
		if found {
			status = string(integration.Status)
		}
		logWithLevel(ctx, r.logger, "info", "integration not configured", map[string]any{
			"tenant_id": tenantID,
			"provider":  provider,
			"status":    status,
		})
		return nil, false, nil
	}

	credentials, err := r.resolveCredentials(ctx, tenantID, integration)
	if err != nil {
		logWithLevel(ctx, r.logger, "warn", "credential resolution failed", map[string]any{
			"tenant_id":      tenantID,
			"provider":       provider,
			"integration_id": integration.ID,
			"error":          err.Error(),
		})
		return nil, false, nil
	}

	factory, ok := r.factories.Get(provider)
	if !ok {
		logWithLevel(ctx, r.logger, "warn", "no adapter factory registered", map[string]any{
			"tenant_id": tenantID,
			"provider":  provider,
		})
		return nil, false, nil
	}

	adapter, err := factory.Build(ctx, AdapterConfig{
		TenantID:    tenantID,
		Integration: integration,
		Credentials: credentials,
		Settings:    integration.Config.Settings,
		Logger:      r.logger,
	})
	if err != nil {
		logWithLevel(ctx, r.logger, "warn", "adapter build failed", map[string]any{
			"tenant_id":      tenantID,
			"provider":       provider,
			"integration_id": integration.ID,
			"error":          err.Error(),
		})
		return nil, false, nil
	}

	r.cache.Set(key, adapter)
	return adapter, true, nil
}

// resolveCredentials turns every credential reference in the integration
// config into plaintext, in deterministic name order. Any missing secret
// fails the whole resolution.
func (r *ChannelResolver) resolveCredentials(ctx context.Context, tenantID string, integration Integration) (map[string]string, error) {
	refs := integration.Config.CredentialRefs
	if len(refs) == 0 {
		return map[string]string{}, nil
	}
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	credentials := make(map[string]string, len(refs))
	for _, name := range names {
		ref := refs[name]
		value, err := r.secrets.Get(ctx, tenantID, ref)
		if err != nil {
			return nil, fmt.Errorf("core: secret %q unavailable: %w", ref, err)
		}
		credentials[name] = value
	}
	return credentials, nil
}

// Send resolves the tenant's adapter and dispatches through it. Every failure
// mode, including repository errors, lands in the structured result; Send
// never returns an error.
func (r *ChannelResolver) Send(ctx context.Context, tenantID, provider string, msg OutboundMessage) SendResult {
	adapter, ok, err := r.ResolveAdapter(ctx, tenantID, provider)
	if err != nil {
		return FailedSend(err.Error())
	}
	if !ok {
		return FailedSend(fmt.Sprintf("channel %q is not configured for tenant %s", BaseChannel(provider), strings.TrimSpace(tenantID)))
	}
	return adapter.Send(ctx, msg)
}

// Invalidate evicts one tenant adapter. The next resolve rebuilds it from the
// repository. Safe to call while a resolve is in flight.
func (r *ChannelResolver) Invalidate(ctx context.Context, tenantID, provider string) error {
	if r == nil {
		return fmt.Errorf("core: channel resolver is nil")
	}
	tenantID = strings.TrimSpace(tenantID)
	provider = BaseChannel(provider)
	r.cache.Delete(AdapterCacheKey(tenantID, provider))
	if invalidator, ok := r.integrations.(IntegrationInvalidator); ok {
		return invalidator.InvalidateIntegration(ctx, tenantID, provider)
	}
	return nil
}

// InvalidateTenant evicts every adapter cached for the tenant.
func (r *ChannelResolver) InvalidateTenant(ctx context.Context, tenantID string) error {
	if r == nil {
		return fmt.Errorf("core: channel resolver is nil")
	}
	tenantID = strings.TrimSpace(tenantID)
	r.cache.DeletePrefix(tenantID + ":")
	invalidator, ok := r.integrations.(IntegrationInvalidator)
	if !ok {
		return nil
	}
	var lastErr error
	for _, factory := range r.factories.List() {
		if err := invalidator.InvalidateIntegration(ctx, tenantID, factory.Channel()); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// ResolveIntegration is the reverse lookup by integration id.
func (r *ChannelResolver) ResolveIntegration(ctx context.Context, id string) (Integration, bool, error) {
	if r == nil {
		return Integration{}, false, fmt.Errorf("core: channel resolver is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Integration{}, false, fmt.Errorf("core: integration id is required")
	}
	return r.integrations.FindByID(ctx, id)
}

// ResolveTenantByIntegration maps an integration id back to its tenant, the
// lookup webhook layers use to stamp TenantID on inbound envelopes.
func (r *ChannelResolver) ResolveTenantByIntegration(ctx context.Context, id string) (string, bool, error) {
	integration, found, err := r.ResolveIntegration(ctx, id)
	if err != nil || !found {
		return "", false, err
	}
	return integration.TenantID, true, nil
}

// ResolveTenantByProviderAccount maps a provider-side account id (phone
// number id, hub account, bot workspace) back to the owning tenant.
func (r *ChannelResolver) ResolveTenantByProviderAccount(ctx context.Context, provider, accountID string) (string, bool, error) {
	if r == nil {
		return "", false, fmt.Errorf("core: channel resolver is nil")
	}
	provider = BaseChannel(provider)
	accountID = strings.TrimSpace(accountID)
	if provider == "" || accountID == "" {
		return "", false, fmt.Errorf("core: provider and account id are required")
	}
	integration, found, err := r.integrations.FindByProviderAccount(ctx, provider, accountID)
	if err != nil || !found {
		return "", false, err
	}
	return integration.TenantID, true, nil
}

// IsHealthy resolves the tenant adapter and probes it. Unconfigured channels
// report unhealthy.
func (r *ChannelResolver) IsHealthy(ctx context.Context, tenantID, provider string) bool {
	adapter, ok, err := r.ResolveAdapter(ctx, tenantID, provider)
	if err != nil || !ok {
		return false
	}
	return adapter.IsHealthy(ctx)
}

// Health probes every registered factory channel for the tenant.
func (r *ChannelResolver) Health(ctx context.Context, tenantID string) map[string]bool {
	health := map[string]bool{}
	if r == nil {
		return health
	}
	for _, factory := range r.factories.List() {
		channel := strings.ToLower(strings.TrimSpace(factory.Channel()))
		health[channel] = r.IsHealthy(ctx, tenantID, channel)
	}
	return health
}

var _ ChannelSender = (*ChannelResolver)(nil)
