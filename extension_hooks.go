package messaging

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/marianoberton/go-messaging/core"
)

type AdapterPack struct {
	Name      string
	Factories []core.AdapterFactory
}

type ToolPack struct {
	Name    string
	Channel string
	Tools   []string
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects downstream registrations before the service is
// built: channel adapter factories shipped as packs, per-channel tool grants
// for agent modes, and named command/query bundles over the facade service.
type ExtensionHooks struct {
	mu sync.RWMutex

	adapterPacks map[string]AdapterPack
	toolPacks    map[string]ToolPack
	bundles      map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		adapterPacks: map[string]AdapterPack{},
		toolPacks:    map[string]ToolPack{},
		bundles:      map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterAdapterPack(pack AdapterPack) error {
	if h == nil {
		return fmt.Errorf("messaging: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("messaging: adapter pack name is required")
	}
	if len(pack.Factories) == 0 {
		return fmt.Errorf("messaging: adapter pack %q has no factories", name)
	}

	normalized := AdapterPack{
		Name:      name,
		Factories: append([]core.AdapterFactory(nil), pack.Factories...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.adapterPacks[name]; exists {
		return fmt.Errorf("messaging: adapter pack %q already registered", name)
	}
	h.adapterPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterToolPack(pack ToolPack) error {
	if h == nil {
		return fmt.Errorf("messaging: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	channel := strings.TrimSpace(strings.ToLower(pack.Channel))
	if name == "" {
		return fmt.Errorf("messaging: tool pack name is required")
	}
	if channel == "" {
		return fmt.Errorf("messaging: tool pack %q channel is required", name)
	}
	if len(pack.Tools) == 0 {
		return fmt.Errorf("messaging: tool pack %q has no tools", name)
	}

	normalized := ToolPack{
		Name:    name,
		Channel: channel,
		Tools:   append([]string(nil), pack.Tools...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.toolPacks[name]; exists {
		return fmt.Errorf("messaging: tool pack %q already registered", name)
	}
	h.toolPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("messaging: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("messaging: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("messaging: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("messaging: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

func (h *ExtensionHooks) ApplyAdapterPacks(registry core.FactoryRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("messaging: factory registry is required")
	}

	packs := h.AdapterPacks()
	for _, pack := range packs {
		for _, factory := range pack.Factories {
			if factory == nil {
				return fmt.Errorf("messaging: adapter pack %q contains nil factory", pack.Name)
			}
			if err := registry.Register(factory); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("messaging: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) AdapterPacks() []AdapterPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.adapterPacks))
	for name := range h.adapterPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]AdapterPack, 0, len(names))
	for _, name := range names {
		pack := h.adapterPacks[name]
		out = append(out, AdapterPack{
			Name:      pack.Name,
			Factories: append([]core.AdapterFactory(nil), pack.Factories...),
		})
	}
	return out
}

// ChannelTools merges every registered tool pack for the channel in pack-name
// order. Agent runners use the merged set to extend mode allowlists.
func (h *ExtensionHooks) ChannelTools(channel string) []string {
	if h == nil {
		return nil
	}
	channel = strings.TrimSpace(strings.ToLower(channel))
	h.mu.RLock()
	defer h.mu.RUnlock()

	packNames := make([]string, 0, len(h.toolPacks))
	for name, pack := range h.toolPacks {
		if pack.Channel == channel {
			packNames = append(packNames, name)
		}
	}
	sort.Strings(packNames)

	out := []string{}
	for _, name := range packNames {
		pack := h.toolPacks[name]
		out = append(out, pack.Tools...)
	}
	return append([]string(nil), out...)
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
