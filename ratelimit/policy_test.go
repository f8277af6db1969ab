package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/marianoberton/go-messaging/core"
)

func TestAdaptiveThrottle_AllowsWhenNoState(t *testing.T) {
	throttle := NewAdaptiveThrottle(NewMemoryStateStore())

	err := throttle.Allow(context.Background(), SendKey{TenantID: "tenant_1", Channel: core.ChannelTelegram})
	if err != nil {
		t.Fatalf("expected no error when no state exists, got %v", err)
	}
}

func TestAdaptiveThrottle_ObserveParsesHeadersAndPersistsState(t *testing.T) {
	store := NewMemoryStateStore()
	throttle := NewAdaptiveThrottle(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	throttle.Now = func() time.Time { return now }

	key := SendKey{TenantID: "tenant_1", Channel: core.ChannelWhatsApp}
	resetAt := now.Add(45 * time.Second)
	err := throttle.Observe(context.Background(), key, Outcome{
		StatusCode: 200,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "80",
			"X-RateLimit-Remaining": "79",
			"X-RateLimit-Reset":     "1700000045",
		},
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}

	state, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Limit != 80 {
		t.Fatalf("expected limit 80, got %d", state.Limit)
	}
	if state.Remaining != 79 {
		t.Fatalf("expected remaining 79, got %d", state.Remaining)
	}
	if state.ResetAt == nil || !state.ResetAt.Equal(resetAt) {
		t.Fatalf("expected reset at %s, got %+v", resetAt, state.ResetAt)
	}
	if state.ThrottledUntil != nil {
		t.Fatal("successful send with headroom should not open a hold")
	}
}

func TestAdaptiveThrottle_HoldsAfterAdvertisedRetryAfter(t *testing.T) {
	store := NewMemoryStateStore()
	throttle := NewAdaptiveThrottle(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	throttle.Now = func() time.Time { return now }

	key := SendKey{TenantID: "tenant_1", Channel: core.ChannelTelegram}
	err := throttle.Observe(context.Background(), key, Outcome{
		StatusCode: http.StatusTooManyRequests,
		Headers:    map[string]string{"Retry-After": "30"},
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}

	err = throttle.Allow(context.Background(), key)
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %v", err)
	}
	if throttled.RetryHint() != 30*time.Second {
		t.Fatalf("expected 30s hint, got %v", throttled.RetryHint())
	}
	if throttled.TenantID != "tenant_1" || throttled.Channel != core.ChannelTelegram {
		t.Fatalf("unexpected key on error %+v", throttled)
	}

	now = now.Add(31 * time.Second)
	if err := throttle.Allow(context.Background(), key); err != nil {
		t.Fatalf("hold should expire with the clock, got %v", err)
	}
}

func TestAdaptiveThrottle_BacksOffExponentiallyWithoutHints(t *testing.T) {
	store := NewMemoryStateStore()
	throttle := NewAdaptiveThrottle(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	throttle.Now = func() time.Time { return now }

	key := SendKey{TenantID: "tenant_1", Channel: core.ChannelSlack}
	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for attempt, want := range expected {
		if err := throttle.Observe(context.Background(), key, Outcome{StatusCode: http.StatusTooManyRequests}); err != nil {
			t.Fatalf("observe attempt %d: %v", attempt+1, err)
		}
		state, err := store.Get(context.Background(), key)
		if err != nil {
			t.Fatalf("get state: %v", err)
		}
		if state.Attempts != attempt+1 {
			t.Fatalf("expected %d attempts, got %d", attempt+1, state.Attempts)
		}
		if state.ThrottledUntil == nil || !state.ThrottledUntil.Equal(now.Add(want)) {
			t.Fatalf("attempt %d: expected hold of %v, got %+v", attempt+1, want, state.ThrottledUntil)
		}
	}
}

func TestAdaptiveThrottle_BackoffCapsAtMax(t *testing.T) {
	store := NewMemoryStateStore()
	throttle := NewAdaptiveThrottle(store)
	throttle.MaxBackoff = 3 * time.Second
	now := time.Unix(1_700_000_000, 0).UTC()
	throttle.Now = func() time.Time { return now }

	key := SendKey{TenantID: "tenant_1", Channel: core.ChannelSlack}
	for i := 0; i < 5; i++ {
		if err := throttle.Observe(context.Background(), key, Outcome{StatusCode: http.StatusTooManyRequests}); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	state, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if !state.ThrottledUntil.Equal(now.Add(3 * time.Second)) {
		t.Fatalf("expected capped hold, got %v", state.ThrottledUntil)
	}
}

func TestAdaptiveThrottle_ExhaustedBudgetHoldsUntilReset(t *testing.T) {
	store := NewMemoryStateStore()
	throttle := NewAdaptiveThrottle(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	throttle.Now = func() time.Time { return now }

	key := SendKey{TenantID: "tenant_1", Channel: core.ChannelWhatsApp}
	err := throttle.Observe(context.Background(), key, Outcome{
		StatusCode: 200,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "1700000060",
		},
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}

	err = throttle.Allow(context.Background(), key)
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected hold on exhausted budget, got %v", err)
	}

	now = now.Add(61 * time.Second)
	if err := throttle.Allow(context.Background(), key); err != nil {
		t.Fatalf("budget should reopen after reset, got %v", err)
	}
}

func TestAdaptiveThrottle_SuccessClearsHold(t *testing.T) {
	store := NewMemoryStateStore()
	throttle := NewAdaptiveThrottle(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	throttle.Now = func() time.Time { return now }

	key := SendKey{TenantID: "tenant_1", Channel: core.ChannelTelegram}
	if err := throttle.Observe(context.Background(), key, Outcome{StatusCode: http.StatusTooManyRequests}); err != nil {
		t.Fatalf("observe throttle: %v", err)
	}
	if err := throttle.Observe(context.Background(), key, Outcome{StatusCode: 200}); err != nil {
		t.Fatalf("observe success: %v", err)
	}

	state, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Attempts != 0 || state.ThrottledUntil != nil {
		t.Fatalf("success should clear the hold, got %+v", state)
	}
	if err := throttle.Allow(context.Background(), key); err != nil {
		t.Fatalf("expected open key, got %v", err)
	}
}

func TestAdaptiveThrottle_HTTPDateRetryAfter(t *testing.T) {
	store := NewMemoryStateStore()
	throttle := NewAdaptiveThrottle(store)
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	throttle.Now = func() time.Time { return now }

	key := SendKey{TenantID: "tenant_1", Channel: core.ChannelChatHub}
	err := throttle.Observe(context.Background(), key, Outcome{
		StatusCode: http.StatusTooManyRequests,
		Headers:    map[string]string{"Retry-After": now.Add(90 * time.Second).Format(time.RFC1123)},
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}

	state, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.ThrottledUntil == nil || !state.ThrottledUntil.Equal(now.Add(90*time.Second)) {
		t.Fatalf("expected date-derived hold, got %+v", state.ThrottledUntil)
	}
}

func TestAdaptiveThrottle_SendThrottleBridge(t *testing.T) {
	store := NewMemoryStateStore()
	throttle := NewAdaptiveThrottle(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	throttle.Now = func() time.Time { return now }

	if err := throttle.BeforeSend(context.Background(), "tenant_1", core.ChannelTelegram); err != nil {
		t.Fatalf("fresh key should pass, got %v", err)
	}
	err := throttle.AfterSend(context.Background(), "tenant_1", core.ChannelTelegram, core.SendResult{
		Success:    false,
		Error:      "telegram: send to chat 777 failed: Too Many Requests",
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: 7 * time.Second,
	})
	if err != nil {
		t.Fatalf("after send: %v", err)
	}

	err = throttle.BeforeSend(context.Background(), "tenant_1", core.ChannelTelegram)
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected hold after push-back, got %v", err)
	}
	if throttled.RetryHint() != 7*time.Second {
		t.Fatalf("expected result retry hint, got %v", throttled.RetryHint())
	}

	if err := throttle.BeforeSend(context.Background(), "tenant_2", core.ChannelTelegram); err != nil {
		t.Fatalf("other tenants stay open, got %v", err)
	}
	if err := throttle.BeforeSend(context.Background(), "tenant_1", core.ChannelSlack); err != nil {
		t.Fatalf("other channels stay open, got %v", err)
	}
}

func TestOutcomeFromResult_DefaultsStatusCodes(t *testing.T) {
	outcome := OutcomeFromResult(core.SendResult{Success: true})
	if outcome.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 default, got %d", outcome.StatusCode)
	}
	outcome = OutcomeFromResult(core.SendResult{Success: false, Error: "boom"})
	if outcome.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 default, got %d", outcome.StatusCode)
	}
	outcome = OutcomeFromResult(core.SendResult{StatusCode: 429, RetryAfter: 3 * time.Second})
	if outcome.StatusCode != 429 || outcome.RetryAfter != 3*time.Second {
		t.Fatalf("expected explicit push-back carried over, got %+v", outcome)
	}
}

func TestOutcomeFromResult_PlainFailureIsNotThrottling(t *testing.T) {
	store := NewMemoryStateStore()
	throttle := NewAdaptiveThrottle(store)

	key := SendKey{TenantID: "tenant_1", Channel: core.ChannelTelegram}
	err := throttle.AfterSend(context.Background(), "tenant_1", core.ChannelTelegram, core.SendResult{
		Success: false,
		Error:   "telegram: send to chat 777 failed: Bad Gateway",
	})
	if err != nil {
		t.Fatalf("after send: %v", err)
	}
	if err := throttle.Allow(context.Background(), key); err != nil {
		t.Fatalf("plain failures should not open a hold, got %v", err)
	}
}

func TestMemoryStateStore_NormalizesKeys(t *testing.T) {
	store := NewMemoryStateStore()
	err := store.Upsert(context.Background(), State{Key: SendKey{TenantID: " tenant_1 ", Channel: "Telegram"}, Attempts: 2})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	state, err := store.Get(context.Background(), SendKey{TenantID: "tenant_1", Channel: "telegram"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Attempts != 2 {
		t.Fatalf("expected normalized lookup to hit, got %+v", state)
	}

	if _, err := store.Get(context.Background(), SendKey{TenantID: "tenant_2", Channel: "telegram"}); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}
