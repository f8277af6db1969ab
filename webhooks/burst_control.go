package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

type BurstMode string

const (
	BurstModeNone     BurstMode = "none"
	BurstModeCoalesce BurstMode = "coalesce"
	BurstModeDebounce BurstMode = "debounce"
)

const (
	defaultBurstWindow     = 2 * time.Second
	defaultBurstMaxEntries = 4096
)

type BurstDecision struct {
	Allow    bool
	Metadata map[string]any
}

// BurstController decides whether a delivery is a near-duplicate of one the
// processor just accepted. Providers redeliver on slow responses, and some
// fan a single user action into several callbacks.
type BurstController interface {
	Allow(ctx context.Context, delivery Delivery) (BurstDecision, error)
}

// BurstKeyExtractor derives the dedupe key for a delivery. Returning false
// opts the delivery out of burst control.
type BurstKeyExtractor func(delivery Delivery) (string, bool)

type BurstOptions struct {
	Mode       BurstMode
	Window     time.Duration
	MaxEntries int
	ExtractKey BurstKeyExtractor
	Now        func() time.Time
}

// DefaultBurstController tracks the last time each dedupe key was seen and
// blocks repeats that land inside the window. State lives in memory; a
// restart forgets the window, which only risks one duplicate hand-off.
type DefaultBurstController struct {
	mode       BurstMode
	window     time.Duration
	maxEntries int
	extractKey BurstKeyExtractor
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewBurstController(opts BurstOptions) *DefaultBurstController {
	c := &DefaultBurstController{
		mode:       parseBurstMode(opts.Mode),
		window:     opts.Window,
		maxEntries: opts.MaxEntries,
		extractKey: opts.ExtractKey,
		now:        opts.Now,
		entries:    map[string]time.Time{},
	}
	if c.window <= 0 {
		c.window = defaultBurstWindow
	}
	if c.maxEntries <= 0 {
		c.maxEntries = defaultBurstMaxEntries
	}
	if c.extractKey == nil {
		c.extractKey = DefaultBurstKeyExtractor
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

func (c *DefaultBurstController) Allow(_ context.Context, delivery Delivery) (BurstDecision, error) {
	if c == nil || c.mode == BurstModeNone {
		return BurstDecision{Allow: true}, nil
	}
	key, ok := c.extractKey(delivery)
	if !ok {
		return BurstDecision{Allow: true}, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return BurstDecision{Allow: true}, nil
	}

	if !c.repeatInsideWindow(key) {
		return BurstDecision{Allow: true}, nil
	}

	marker := "debounced"
	if c.mode == BurstModeCoalesce {
		marker = "coalesced"
	}
	return BurstDecision{
		Allow: false,
		Metadata: map[string]any{
			"burst_mode":      string(c.mode),
			"burst_key":       key,
			"burst_window_ms": c.window.Milliseconds(),
			marker:            true,
		},
	}, nil
}

// repeatInsideWindow records the sighting and reports whether the previous
// one for the same key was close enough to count as a burst.
func (c *DefaultBurstController) repeatInsideWindow(key string) bool {
	now := c.now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	lastSeen, seen := c.entries[key]
	c.entries[key] = now
	c.prune(now)
	return seen && now.Sub(lastSeen) < c.window
}

// prune drops stale entries. Under the cap only clearly dead keys go; over
// the cap anything outside the active window goes.
func (c *DefaultBurstController) prune(now time.Time) {
	horizon := c.window * 4
	if len(c.entries) > c.maxEntries {
		horizon = c.window
	}
	for key, seenAt := range c.entries {
		if now.Sub(seenAt) > horizon {
			delete(c.entries, key)
		}
	}
}

// DefaultBurstKeyExtractor keys deliveries on tenant, channel, and either an
// explicit delivery id header or a digest of the body. Identical payloads
// for the same tenant inside the window count as one.
func DefaultBurstKeyExtractor(delivery Delivery) (string, bool) {
	channel := strings.TrimSpace(strings.ToLower(delivery.Channel))
	tenantID := strings.TrimSpace(delivery.TenantID)
	if channel == "" || tenantID == "" {
		return "", false
	}
	if value := headerValue(delivery.Headers, "x-delivery-id"); value != "" {
		return tenantID + ":" + channel + ":" + strings.ToLower(value), true
	}
	if len(delivery.Body) == 0 {
		return "", false
	}
	sum := sha256.Sum256(delivery.Body)
	return tenantID + ":" + channel + ":" + hex.EncodeToString(sum[:8]), true
}

func parseBurstMode(mode BurstMode) BurstMode {
	switch strings.ToLower(strings.TrimSpace(string(mode))) {
	case string(BurstModeCoalesce):
		return BurstModeCoalesce
	case string(BurstModeDebounce):
		return BurstModeDebounce
	default:
		return BurstModeNone
	}
}

var _ BurstController = (*DefaultBurstController)(nil)
