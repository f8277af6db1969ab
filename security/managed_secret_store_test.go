package security

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

type fakeVaultClient struct {
	reads  []VaultReadRequest
	fields map[string]map[string]string
	err    error
}

func (f *fakeVaultClient) Read(_ context.Context, req VaultReadRequest) (VaultReadResponse, error) {
	f.reads = append(f.reads, req)
	if f.err != nil {
		return VaultReadResponse{}, f.err
	}
	return VaultReadResponse{Fields: f.fields[req.Path]}, nil
}

func TestVaultSecretStore_ReadsNestedPath(t *testing.T) {
	client := &fakeVaultClient{fields: map[string]map[string]string{
		"secret/data/messaging/tenant_1/telegram": {"bot_token": "tok_123"},
	}}
	store, err := NewVaultSecretStore(client)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	value, err := store.Get(context.Background(), "tenant_1", "telegram/bot_token")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != "tok_123" {
		t.Fatalf("unexpected value %q", value)
	}
	if len(client.reads) != 1 {
		t.Fatalf("expected one read, got %d", len(client.reads))
	}
	read := client.reads[0]
	if read.Path != "secret/data/messaging/tenant_1/telegram" || read.Field != "bot_token" {
		t.Fatalf("unexpected read %+v", read)
	}
}

func TestVaultSecretStore_FlatKeysReadTenantNode(t *testing.T) {
	client := &fakeVaultClient{fields: map[string]map[string]string{
		"secret/data/messaging/tenant_1": {"api_key": "hub_tok"},
	}}
	store, err := NewVaultSecretStore(client)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if value, err := store.Get(context.Background(), "tenant_1", "api_key"); err != nil || value != "hub_tok" {
		t.Fatalf("expected flat key lookup, got %q err %v", value, err)
	}
}

func TestVaultSecretStore_CachesWithinTTL(t *testing.T) {
	client := &fakeVaultClient{fields: map[string]map[string]string{
		"secret/data/messaging/tenant_1": {"token": "tok_1"},
	}}
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store, err := NewVaultSecretStore(client,
		WithVaultCacheTTL(time.Minute),
		WithVaultClock(func() time.Time { return current }),
	)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := store.Get(context.Background(), "tenant_1", "token"); err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
	}
	if len(client.reads) != 1 {
		t.Fatalf("expected cached reads, client saw %d", len(client.reads))
	}

	current = current.Add(2 * time.Minute)
	if _, err := store.Get(context.Background(), "tenant_1", "token"); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if len(client.reads) != 2 {
		t.Fatalf("expected expiry to refetch, client saw %d reads", len(client.reads))
	}
}

func TestVaultSecretStore_ZeroTTLDisablesCache(t *testing.T) {
	client := &fakeVaultClient{fields: map[string]map[string]string{
		"secret/data/messaging/tenant_1": {"token": "tok_1"},
	}}
	store, err := NewVaultSecretStore(client, WithVaultCacheTTL(0))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := store.Get(context.Background(), "tenant_1", "token"); err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
	}
	if len(client.reads) != 2 {
		t.Fatalf("expected every get to read, client saw %d", len(client.reads))
	}
}

func TestVaultSecretStore_MissingFieldFails(t *testing.T) {
	client := &fakeVaultClient{fields: map[string]map[string]string{
		"secret/data/messaging/tenant_1": {"other": "x"},
	}}
	store, err := NewVaultSecretStore(client)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	_, err = store.Get(context.Background(), "tenant_1", "token")
	if err == nil || !strings.Contains(err.Error(), "no field") {
		t.Fatalf("expected missing-field error, got %v", err)
	}
}

func TestVaultSecretStore_WrapsClientErrors(t *testing.T) {
	client := &fakeVaultClient{err: fmt.Errorf("permission denied")}
	store, err := NewVaultSecretStore(client)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	_, err = store.Get(context.Background(), "tenant_1", "token")
	if err == nil || !strings.Contains(err.Error(), "vault read") || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected wrapped client error, got %v", err)
	}
}

func TestVaultSecretStore_CustomMapperAndMount(t *testing.T) {
	client := &fakeVaultClient{fields: map[string]map[string]string{
		"kv/acme/tenant_1": {"telegram.bot_token": "tok_m"},
	}}
	store, err := NewVaultSecretStore(client, WithVaultPathMapper(func(tenantID, key string) (string, string) {
		return "kv/acme/" + tenantID, strings.ReplaceAll(key, "/", ".")
	}))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if value, err := store.Get(context.Background(), "tenant_1", "telegram/bot_token"); err != nil || value != "tok_m" {
		t.Fatalf("expected mapped lookup, got %q err %v", value, err)
	}

	mounted := &fakeVaultClient{fields: map[string]map[string]string{
		"kv/data/bots/tenant_1": {"token": "tok_n"},
	}}
	store, err = NewVaultSecretStore(mounted, WithVaultMountPath("/kv/data/bots/"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if value, err := store.Get(context.Background(), "tenant_1", "token"); err != nil || value != "tok_n" {
		t.Fatalf("expected mount override, got %q err %v", value, err)
	}
}

func TestNewVaultSecretStore_RequiresClient(t *testing.T) {
	if _, err := NewVaultSecretStore(nil); err == nil || !strings.Contains(err.Error(), "client") {
		t.Fatalf("expected client error, got %v", err)
	}
}

type stubSecretStore struct {
	values map[string]string
	err    error
}

func (s *stubSecretStore) Get(_ context.Context, tenantID, key string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	value, ok := s.values[tenantID+":"+key]
	if !ok {
		return "", fmt.Errorf("stub: %s not found", key)
	}
	return value, nil
}

func TestFailoverSecretStore_PrimaryWins(t *testing.T) {
	var events []SecretStoreDiagnostic
	store, err := NewFailoverSecretStore(
		&stubSecretStore{values: map[string]string{"tenant_1:token": "tok_primary"}},
		WithFallbackSecretStore(&stubSecretStore{values: map[string]string{"tenant_1:token": "tok_fallback"}}),
		WithSecretStoreFailurePolicy(SecretStoreFailurePolicyFallback),
		WithSecretStoreDiagnostics(func(event SecretStoreDiagnostic) { events = append(events, event) }),
	)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	value, err := store.Get(context.Background(), "tenant_1", "token")
	if err != nil || value != "tok_primary" {
		t.Fatalf("expected primary value, got %q err %v", value, err)
	}
	if len(events) != 0 {
		t.Fatalf("healthy resolution should emit no diagnostics, got %d", len(events))
	}
}

func TestFailoverSecretStore_StrictPolicyFailsFast(t *testing.T) {
	var events []SecretStoreDiagnostic
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store, err := NewFailoverSecretStore(
		&stubSecretStore{err: fmt.Errorf("vault sealed")},
		WithSecretStoreDiagnostics(func(event SecretStoreDiagnostic) { events = append(events, event) }),
		WithFailoverClock(func() time.Time { return fixed }),
	)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	_, err = store.Get(context.Background(), "tenant_1", "token")
	if err == nil || !strings.Contains(err.Error(), "primary secret store") {
		t.Fatalf("expected strict failure, got %v", err)
	}
	if len(events) != 1 || events[0].Outcome != "error" || !events[0].OccurredAt.Equal(fixed) {
		t.Fatalf("unexpected diagnostics %+v", events)
	}
}

func TestFailoverSecretStore_FallsBackAndReports(t *testing.T) {
	var events []SecretStoreDiagnostic
	store, err := NewFailoverSecretStore(
		&stubSecretStore{err: fmt.Errorf("vault sealed")},
		WithFallbackSecretStore(&stubSecretStore{values: map[string]string{"tenant_1:token": "tok_env"}}),
		WithSecretStoreFailurePolicy(SecretStoreFailurePolicyFallback),
		WithSecretStoreDiagnostics(func(event SecretStoreDiagnostic) { events = append(events, event) }),
	)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	value, err := store.Get(context.Background(), "tenant_1", "token")
	if err != nil || value != "tok_env" {
		t.Fatalf("expected fallback value, got %q err %v", value, err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one diagnostic, got %d", len(events))
	}
	event := events[0]
	if event.Outcome != "fallback" || !strings.Contains(event.Primary, "vault sealed") {
		t.Fatalf("unexpected diagnostic %+v", event)
	}
	if event.TenantID != "tenant_1" || event.Key != "token" {
		t.Fatalf("diagnostic should carry tenant and key, got %+v", event)
	}
}

func TestFailoverSecretStore_ReportsTotalFailure(t *testing.T) {
	store, err := NewFailoverSecretStore(
		&stubSecretStore{err: fmt.Errorf("vault sealed")},
		WithFallbackSecretStore(&stubSecretStore{err: fmt.Errorf("env unavailable")}),
		WithSecretStoreFailurePolicy(SecretStoreFailurePolicyFallback),
	)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	_, err = store.Get(context.Background(), "tenant_1", "token")
	if err == nil || !strings.Contains(err.Error(), "all secret stores failed") {
		t.Fatalf("expected total failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "vault sealed") || !strings.Contains(err.Error(), "env unavailable") {
		t.Fatalf("expected both causes, got %v", err)
	}
}

func TestNewFailoverSecretStore_Validation(t *testing.T) {
	if _, err := NewFailoverSecretStore(nil); err == nil || !strings.Contains(err.Error(), "primary") {
		t.Fatalf("expected primary error, got %v", err)
	}
	if _, err := NewFailoverSecretStore(
		&stubSecretStore{},
		WithSecretStoreFailurePolicy(SecretStoreFailurePolicyFallback),
	); err == nil || !strings.Contains(err.Error(), "fallback") {
		t.Fatalf("expected fallback error, got %v", err)
	}
}
