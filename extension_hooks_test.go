package messaging

import (
	"context"
	"fmt"
	"testing"

	"github.com/marianoberton/go-messaging/core"
)

func TestExtensionHooks_RegisterAndApplyAdapterPacks(t *testing.T) {
	hooks := NewExtensionHooks()
	pack := AdapterPack{
		Name: "downstream-pack",
		Factories: []core.AdapterFactory{
			extensionFactory{channel: "sms"},
		},
	}
	if err := hooks.RegisterAdapterPack(pack); err != nil {
		t.Fatalf("register adapter pack: %v", err)
	}
	if err := hooks.RegisterAdapterPack(pack); err == nil {
		t.Fatalf("expected duplicate adapter pack registration error")
	}

	registry := core.NewAdapterFactoryRegistry()
	if err := hooks.ApplyAdapterPacks(registry); err != nil {
		t.Fatalf("apply adapter packs: %v", err)
	}
	if _, ok := registry.Get("sms"); !ok {
		t.Fatalf("expected adapter pack registration in registry")
	}
}

func TestExtensionHooks_ChannelToolsAndBundles(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterToolPack(ToolPack{
		Name:    "pack_b",
		Channel: core.ChannelTelegram,
		Tools:   []string{"orders.read"},
	}); err != nil {
		t.Fatalf("register tool pack b: %v", err)
	}
	if err := hooks.RegisterToolPack(ToolPack{
		Name:    "pack_a",
		Channel: core.ChannelTelegram,
		Tools:   []string{"orders.write"},
	}); err != nil {
		t.Fatalf("register tool pack a: %v", err)
	}
	tools := hooks.ChannelTools(core.ChannelTelegram)
	if len(tools) != 2 {
		t.Fatalf("expected two channel tools, got %d", len(tools))
	}
	if tools[0] != "orders.write" || tools[1] != "orders.read" {
		t.Fatalf("expected deterministic tool pack ordering, got %#v", tools)
	}
	if got := hooks.ChannelTools(core.ChannelSlack); len(got) != 0 {
		t.Fatalf("expected no tools for unrelated channel, got %#v", got)
	}

	if err := hooks.RegisterCommandQueryBundle("orders_bundle", func(service CommandQueryService) (any, error) {
		return map[string]any{
			"send_fn":   service.Send,
			"health_fn": service.ChannelHealth,
		}, nil
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("orders_bundle", func(CommandQueryService) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate bundle registration error")
	}

	svc := &stubFacadeService{}
	bundles, err := hooks.BuildCommandQueryBundles(svc)
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	if len(bundles) != 1 {
		t.Fatalf("expected one bundle, got %d", len(bundles))
	}
	if _, ok := bundles["orders_bundle"]; !ok {
		t.Fatalf("expected orders_bundle entry in built bundles")
	}
}

type extensionFactory struct {
	channel string
}

func (f extensionFactory) Channel() string { return f.channel }

func (f extensionFactory) Build(context.Context, core.AdapterConfig) (core.ChannelAdapter, error) {
	return nil, fmt.Errorf("%s: adapter construction is not exercised here", f.channel)
}
