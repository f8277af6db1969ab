// Package ratelimit throttles outbound sends per tenant and channel. The
// adaptive throttle learns from provider push-back: 429 responses, Retry-After
// headers, and x-ratelimit counters all feed a shared state store that gates
// the next send on the same key.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/marianoberton/go-messaging/core"
)

// ErrStateNotFound reports a key the store has never seen. Callers treat it
// as "not throttled".
var ErrStateNotFound = errors.New("ratelimit: state not found")

// SendKey identifies one throttle bucket: every tenant gets an independent
// budget per channel.
type SendKey struct {
	TenantID string
	Channel  string
}

// State is the learned throttle position for one key.
type State struct {
	Key            SendKey
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
}

// StateStore persists throttle state across sends. Get returns
// ErrStateNotFound for keys with no recorded state.
type StateStore interface {
	Get(ctx context.Context, key SendKey) (State, error)
	Upsert(ctx context.Context, state State) error
}

// Outcome is what a send attempt revealed about the provider's limits.
type Outcome struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter time.Duration
}

// OutcomeFromResult converts an adapter send result into an observable
// outcome. Results without a status code default to 200 on success and 502
// on failure, so plain errors never register as throttling.
func OutcomeFromResult(result core.SendResult) Outcome {
	outcome := Outcome{StatusCode: result.StatusCode, RetryAfter: result.RetryAfter}
	if outcome.StatusCode == 0 {
		if result.Success {
			outcome.StatusCode = http.StatusOK
		} else {
			outcome.StatusCode = http.StatusBadGateway
		}
	}
	return outcome
}

// ThrottledError reports a send blocked by learned provider push-back.
type ThrottledError struct {
	TenantID   string
	Channel    string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: tenant %q channel %q throttled for %s",
		strings.TrimSpace(e.TenantID),
		strings.TrimSpace(e.Channel),
		e.RetryAfter,
	)
}

// RetryHint tells the dispatcher how long to postpone the delivery.
func (e ThrottledError) RetryHint() time.Duration {
	return e.RetryAfter
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"tenant_id": strings.TrimSpace(e.TenantID),
		"channel":   strings.TrimSpace(e.Channel),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.MessagingErrorRateLimited).
		WithMetadata(metadata)
}

// AdaptiveThrottle implements core.SendThrottle over a StateStore. It opens
// every key until the provider pushes back, then holds sends for the
// advertised delay or an exponential backoff when none is advertised.
type AdaptiveThrottle struct {
	Store            StateStore
	Now              func() time.Time
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	DefaultRetryHint time.Duration
}

func NewAdaptiveThrottle(store StateStore) *AdaptiveThrottle {
	return &AdaptiveThrottle{
		Store:            store,
		Now:              func() time.Time { return time.Now().UTC() },
		InitialBackoff:   time.Second,
		MaxBackoff:       time.Minute,
		DefaultRetryHint: 5 * time.Second,
	}
}

// Allow reports whether a send on key may proceed now. A ThrottledError
// carries the remaining hold as its retry hint.
func (p *AdaptiveThrottle) Allow(ctx context.Context, key SendKey) error {
	if p == nil || p.Store == nil {
		return nil
	}
	state, err := p.Store.Get(ctx, normalizeKey(key))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	now := p.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return ThrottledError{TenantID: state.Key.TenantID, Channel: state.Key.Channel, RetryAfter: until.Sub(now)}
	}
	if state.Remaining == 0 && state.ResetAt != nil && now.Before(*state.ResetAt) {
		return ThrottledError{TenantID: state.Key.TenantID, Channel: state.Key.Channel, RetryAfter: state.ResetAt.Sub(now)}
	}
	return nil
}

// Observe folds one send outcome into the key's state. Throttled outcomes
// extend the hold; anything else clears it.
func (p *AdaptiveThrottle) Observe(ctx context.Context, key SendKey, outcome Outcome) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = normalizeKey(key)
	now := p.now()
	state, err := p.Store.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	if errors.Is(err, ErrStateNotFound) {
		state = State{Key: key}
	}

	state.LastStatus = outcome.StatusCode
	state.UpdatedAt = now

	limit, hasLimit := parseHeaderInt(outcome.Headers, "x-ratelimit-limit")
	if hasLimit {
		state.Limit = limit
	}
	remaining, hasRemaining := parseHeaderInt(outcome.Headers, "x-ratelimit-remaining")
	if hasRemaining {
		state.Remaining = remaining
	}
	resetAt, hasResetAt := parseHeaderResetAt(outcome.Headers)
	if hasResetAt {
		state.ResetAt = &resetAt
	}

	retryAfter, hasRetryAfter := parseRetryAfter(outcome, now)
	if hasRetryAfter {
		state.RetryAfter = &retryAfter
	} else {
		state.RetryAfter = nil
	}

	if isThrottledResponse(outcome.StatusCode, state.Remaining, hasRemaining, hasResetAt, hasLimit, hasRetryAfter) {
		state.Attempts++
		delay := retryAfter
		if !hasRetryAfter {
			delay = p.nextBackoff(state.Attempts)
		}
		until := now.Add(delay)
		state.ThrottledUntil = &until
		return p.Store.Upsert(ctx, state)
	}

	state.Attempts = 0
	state.ThrottledUntil = nil
	return p.Store.Upsert(ctx, state)
}

// BeforeSend gates a send for tenant and channel.
func (p *AdaptiveThrottle) BeforeSend(ctx context.Context, tenantID, channel string) error {
	return p.Allow(ctx, SendKey{TenantID: tenantID, Channel: channel})
}

// AfterSend records what the send revealed about the provider's limits.
func (p *AdaptiveThrottle) AfterSend(ctx context.Context, tenantID, channel string, result core.SendResult) error {
	return p.Observe(ctx, SendKey{TenantID: tenantID, Channel: channel}, OutcomeFromResult(result))
}

func (p *AdaptiveThrottle) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *AdaptiveThrottle) nextBackoff(attempt int) time.Duration {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.MaxBackoff
	if maximum <= 0 {
		maximum = time.Minute
	}
	if attempt <= 0 {
		return initial
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay <= 0 {
		return p.defaultRetryHint()
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

func (p *AdaptiveThrottle) defaultRetryHint() time.Duration {
	if p != nil && p.DefaultRetryHint > 0 {
		return p.DefaultRetryHint
	}
	return 5 * time.Second
}

func isThrottledResponse(
	statusCode int,
	remaining int,
	hasRemaining bool,
	hasResetAt bool,
	hasLimit bool,
	hasRetryAfter bool,
) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	if statusCode >= 500 {
		return false
	}
	return remaining == 0 && (hasRemaining || hasResetAt || hasLimit || hasRetryAfter)
}

func parseRetryAfter(outcome Outcome, now time.Time) (time.Duration, bool) {
	if outcome.RetryAfter > 0 {
		return outcome.RetryAfter, true
	}
	raw := headerValue(outcome.Headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if retryAt, err := httpDate(raw); err == nil {
		if retryAt.After(now) {
			return retryAt.Sub(now), true
		}
	}
	return 0, false
}

func parseHeaderInt(headers map[string]string, key string) (int, bool) {
	value := headerValue(headers, key)
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func parseHeaderResetAt(headers map[string]string) (time.Time, bool) {
	value := headerValue(headers, "x-ratelimit-reset")
	if value == "" {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if unix <= 0 {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

func httpDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("ratelimit: empty date")
	}
	if parsed, err := time.Parse(time.RFC1123, value); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(time.RFC1123Z, value); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("ratelimit: invalid http date")
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func normalizeKey(key SendKey) SendKey {
	return SendKey{
		TenantID: strings.TrimSpace(key.TenantID),
		Channel:  strings.TrimSpace(strings.ToLower(key.Channel)),
	}
}

// MemoryStateStore keeps throttle state in process. Suitable for a single
// dispatcher; shared deployments want a store backed by the database.
type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key SendKey) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	normalized := normalizeKey(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[stateKey(normalized)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = normalizeKey(state.Key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[stateKey(state.Key)] = state
	return nil
}

func stateKey(key SendKey) string {
	return key.TenantID + "|" + key.Channel
}

var _ core.SendThrottle = (*AdaptiveThrottle)(nil)
