package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
)

// ChannelRouter is the single-tenant variant of adapter lookup: a static
// registry of constructed adapters keyed by channel. Deployments with one set
// of credentials register adapters once at boot and skip the resolver.
type ChannelRouter struct {
	mu       sync.RWMutex
	adapters map[string]ChannelAdapter
	logger   Logger
}

func NewChannelRouter(logger Logger) *ChannelRouter {
	return &ChannelRouter{
		adapters: make(map[string]ChannelAdapter),
		logger:   glog.Ensure(logger),
	}
}

func (r *ChannelRouter) Register(adapter ChannelAdapter) error {
	if r == nil {
		return fmt.Errorf("core: channel router is nil")
	}
	if adapter == nil {
		return fmt.Errorf("core: channel adapter is nil")
	}
	channel := strings.ToLower(strings.TrimSpace(adapter.Channel()))
	if channel == "" {
		return fmt.Errorf("core: channel adapter name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[channel]; exists {
		return fmt.Errorf("core: channel adapter already registered: %s", channel)
	}
	r.adapters[channel] = adapter
	return nil
}

func (r *ChannelRouter) Get(channel string) (ChannelAdapter, bool) {
	if r == nil {
		return nil, false
	}
	id := BaseChannel(channel)
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	adapter, ok := r.adapters[id]
	r.mu.RUnlock()
	return adapter, ok
}

// Send dispatches through the adapter registered for the channel. A missing
// adapter is logged and reported as a structured failure, never an error.
func (r *ChannelRouter) Send(ctx context.Context, channel string, msg OutboundMessage) SendResult {
	adapter, ok := r.Get(channel)
	if !ok {
		logWithLevel(ctx, r.routerLogger(), "warn", "channel adapter not registered", map[string]any{
			"channel":   channel,
			"recipient": msg.Recipient,
		})
		return FailedSend(fmt.Sprintf("channel %q is not registered", BaseChannel(channel)))
	}
	return adapter.Send(ctx, msg)
}

// ParseInbound delegates to the channel's adapter. false means the payload is
// to be ignored, including the case of an unregistered channel.
func (r *ChannelRouter) ParseInbound(channel string, payload []byte) (InboundMessage, bool) {
	adapter, ok := r.Get(channel)
	if !ok {
		return InboundMessage{}, false
	}
	return adapter.ParseInbound(payload)
}

// Channels lists registered channels in sorted order.
func (r *ChannelRouter) Channels() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	channels := make([]string, 0, len(r.adapters))
	for channel := range r.adapters {
		channels = append(channels, channel)
	}
	r.mu.RUnlock()
	sort.Strings(channels)
	return channels
}

func (r *ChannelRouter) IsHealthy(ctx context.Context, channel string) bool {
	adapter, ok := r.Get(channel)
	if !ok {
		return false
	}
	return adapter.IsHealthy(ctx)
}

// Health probes every registered adapter and returns a channel -> healthy
// snapshot.
func (r *ChannelRouter) Health(ctx context.Context) map[string]bool {
	health := map[string]bool{}
	for _, channel := range r.Channels() {
		health[channel] = r.IsHealthy(ctx, channel)
	}
	return health
}

func (r *ChannelRouter) routerLogger() Logger {
	if r == nil {
		return nil
	}
	return r.logger
}

// RouterSender adapts a ChannelRouter to the pipeline's ChannelSender seam by
// dropping the tenant dimension.
type RouterSender struct {
	Router *ChannelRouter
}

func (s RouterSender) Send(ctx context.Context, _ string, channel string, msg OutboundMessage) SendResult {
	if s.Router == nil {
		return FailedSend("channel router is not configured")
	}
	return s.Router.Send(ctx, channel, msg)
}

var _ ChannelSender = RouterSender{}
