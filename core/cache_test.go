package core

import "testing"

func TestAdapterCacheKey_Normalizes(t *testing.T) {
	if got := AdapterCacheKey(" tenant_1 ", " Telegram "); got != "tenant_1:telegram" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestMemoryAdapterCache_SetGetDelete(t *testing.T) {
	cache := NewMemoryAdapterCache()
	adapter := newFakeAdapter(ChannelTelegram)

	cache.Set("tenant_1:telegram", adapter)
	if got, ok := cache.Get("tenant_1:telegram"); !ok || got != adapter {
		t.Fatalf("expected cached adapter, ok=%v", ok)
	}

	cache.Delete("tenant_1:telegram")
	if _, ok := cache.Get("tenant_1:telegram"); ok {
		t.Fatalf("expected deletion to evict the entry")
	}
}

func TestMemoryAdapterCache_IgnoresBlankKeysAndNilAdapters(t *testing.T) {
	cache := NewMemoryAdapterCache()
	cache.Set("  ", newFakeAdapter(ChannelSlack))
	cache.Set("tenant_1:slack", nil)
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", cache.Len())
	}
}

func TestMemoryAdapterCache_DeletePrefixEvictsOneTenant(t *testing.T) {
	cache := NewMemoryAdapterCache()
	cache.Set(AdapterCacheKey("tenant_1", ChannelTelegram), newFakeAdapter(ChannelTelegram))
	cache.Set(AdapterCacheKey("tenant_1", ChannelSlack), newFakeAdapter(ChannelSlack))
	cache.Set(AdapterCacheKey("tenant_2", ChannelTelegram), newFakeAdapter(ChannelTelegram))

	cache.DeletePrefix("tenant_1:")
	if cache.Len() != 1 {
		t.Fatalf("expected only the other tenant to survive, got %d", cache.Len())
	}
	if _, ok := cache.Get(AdapterCacheKey("tenant_2", ChannelTelegram)); !ok {
		t.Fatalf("other tenants must be untouched")
	}
}
