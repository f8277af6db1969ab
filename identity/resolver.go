// Package identity resolves contact profiles for inbound senders. Resolution
// runs in two tiers: the channel's webhook payload is mined first, and only
// when it carries nothing usable does the resolver fall back to the tenant's
// channel adapter for a provider API lookup.
package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/marianoberton/go-messaging/core"
)

const defaultFetchTimeout = 5 * time.Second

// AdapterSource hands out tenant-scoped channel adapters. Both the channel
// resolver and the assembled messaging service satisfy it.
type AdapterSource interface {
	ResolveAdapter(ctx context.Context, tenantID, provider string) (core.ChannelAdapter, bool, error)
}

// Config carries the resolver's collaborators. Adapters may be left nil at
// construction and bound later with BindAdapters, which breaks the cycle
// when the service itself is the adapter source.
type Config struct {
	Adapters     AdapterSource
	Extractors   map[string]PayloadExtractor
	FetchTimeout time.Duration
	Logger       core.Logger
}

// Resolver implements core.ProfileResolver over payload extraction plus
// adapter lookup.
type Resolver struct {
	mu         sync.RWMutex
	adapters   AdapterSource
	extractors map[string]PayloadExtractor
	timeout    time.Duration
	logger     core.Logger
}

// NewResolver builds a resolver with the built-in extractors unless the
// config overrides them.
func NewResolver(cfg Config) *Resolver {
	extractors := cfg.Extractors
	if extractors == nil {
		extractors = DefaultExtractors()
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	return &Resolver{
		adapters:   cfg.Adapters,
		extractors: extractors,
		timeout:    timeout,
		logger:     logger,
	}
}

// BindAdapters sets the adapter source after construction. Safe to call once
// the service is assembled; until then only the payload tier works.
func (r *Resolver) BindAdapters(source AdapterSource) {
	r.mu.Lock()
	r.adapters = source
	r.mu.Unlock()
}

func (r *Resolver) adapterSource() AdapterSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters
}

// ResolveProfile returns the sender's profile for an inbound message. The
// payload tier is free and tried first; the adapter tier calls the provider
// API under the configured timeout.
func (r *Resolver) ResolveProfile(ctx context.Context, tenantID string, msg core.InboundMessage) (core.ContactProfile, error) {
	channel := strings.TrimSpace(msg.Channel)
	if channel == "" {
		return core.ContactProfile{}, profileNotFound(fmt.Errorf("message carries no channel"))
	}

	if extractor := r.extractors[channel]; extractor != nil {
		if profile := extractor(msg.RawPayload); !profile.IsZero() {
			return profile, nil
		}
	}

	source := r.adapterSource()
	if source == nil {
		return core.ContactProfile{}, profileNotFound(fmt.Errorf("no adapter source bound"))
	}
	adapter, ok, err := source.ResolveAdapter(ctx, tenantID, channel)
	if err != nil {
		return core.ContactProfile{}, profileNotFound(fmt.Errorf("resolve %s adapter: %w", channel, err))
	}
	if !ok {
		return core.ContactProfile{}, profileNotFound(fmt.Errorf("tenant %s has no %s integration", tenantID, channel))
	}
	fetcher, ok := adapter.(core.ProfileFetcher)
	if !ok {
		return core.ContactProfile{}, profileNotFound(fmt.Errorf("%s adapter has no profile lookup", channel))
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	profile, err := fetcher.FetchProfile(fetchCtx, msg)
	if err != nil {
		r.logger.Debug("provider profile lookup failed",
			"tenant_id", tenantID, "channel", channel, "error", err)
		return core.ContactProfile{}, profileNotFound(err)
	}
	profile = normalizeProfile(profile)
	if profile.IsZero() {
		return core.ContactProfile{}, profileNotFound(fmt.Errorf("provider returned an empty %s profile", channel))
	}
	return profile, nil
}

var _ core.ProfileResolver = (*Resolver)(nil)
