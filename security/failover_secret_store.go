package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marianoberton/go-messaging/core"
)

type SecretStoreFailurePolicy string

const (
	SecretStoreFailurePolicyStrict   SecretStoreFailurePolicy = "strict_fail"
	SecretStoreFailurePolicyFallback SecretStoreFailurePolicy = "fallback_allowed"
)

// SecretStoreDiagnostic describes one degraded resolution: a primary miss
// that fell back, or a terminal failure. Values never appear here, only key
// names and error text.
type SecretStoreDiagnostic struct {
	OccurredAt time.Time
	TenantID   string
	Key        string
	Outcome    string
	Primary    string
	Error      string
}

type SecretStoreDiagnosticHook func(event SecretStoreDiagnostic)

type FailoverOption func(*FailoverSecretStore)

// FailoverSecretStore reads from a primary store and, under the fallback
// policy, retries misses against a secondary. Typical wiring keeps vault
// primary with the environment as a break-glass fallback.
type FailoverSecretStore struct {
	primary        core.SecretStore
	fallback       core.SecretStore
	policy         SecretStoreFailurePolicy
	diagnosticHook SecretStoreDiagnosticHook
	now            func() time.Time
}

func NewFailoverSecretStore(primary core.SecretStore, opts ...FailoverOption) (*FailoverSecretStore, error) {
	if primary == nil {
		return nil, fmt.Errorf("security: primary secret store is required")
	}
	store := &FailoverSecretStore{
		primary: primary,
		policy:  SecretStoreFailurePolicyStrict,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(store)
	}
	store.policy = normalizeFailurePolicy(store.policy)
	if store.policy == SecretStoreFailurePolicyFallback && store.fallback == nil {
		return nil, fmt.Errorf("security: fallback policy requires a configured fallback secret store")
	}
	if store.now == nil {
		store.now = func() time.Time { return time.Now().UTC() }
	}
	return store, nil
}

func WithFallbackSecretStore(fallback core.SecretStore) FailoverOption {
	return func(store *FailoverSecretStore) {
		if store == nil {
			return
		}
		store.fallback = fallback
	}
}

func WithSecretStoreFailurePolicy(policy SecretStoreFailurePolicy) FailoverOption {
	return func(store *FailoverSecretStore) {
		if store == nil {
			return
		}
		store.policy = normalizeFailurePolicy(policy)
	}
}

func WithSecretStoreDiagnostics(hook SecretStoreDiagnosticHook) FailoverOption {
	return func(store *FailoverSecretStore) {
		if store == nil {
			return
		}
		store.diagnosticHook = hook
	}
}

func WithFailoverClock(now func() time.Time) FailoverOption {
	return func(store *FailoverSecretStore) {
		if store == nil {
			return
		}
		store.now = now
	}
}

func (s *FailoverSecretStore) Get(ctx context.Context, tenantID, key string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("security: secret store is nil")
	}

	value, primaryErr := s.primary.Get(ctx, tenantID, key)
	if primaryErr == nil {
		return value, nil
	}
	if s.policy != SecretStoreFailurePolicyFallback {
		s.emit(SecretStoreDiagnostic{
			OccurredAt: s.now(),
			TenantID:   tenantID,
			Key:        key,
			Outcome:    "error",
			Error:      primaryErr.Error(),
		})
		return "", fmt.Errorf("security: primary secret store: %w", primaryErr)
	}

	value, fallbackErr := s.fallback.Get(ctx, tenantID, key)
	if fallbackErr == nil {
		s.emit(SecretStoreDiagnostic{
			OccurredAt: s.now(),
			TenantID:   tenantID,
			Key:        key,
			Outcome:    "fallback",
			Primary:    primaryErr.Error(),
		})
		return value, nil
	}

	joined := errors.Join(primaryErr, fallbackErr)
	s.emit(SecretStoreDiagnostic{
		OccurredAt: s.now(),
		TenantID:   tenantID,
		Key:        key,
		Outcome:    "error",
		Primary:    primaryErr.Error(),
		Error:      fallbackErr.Error(),
	})
	return "", fmt.Errorf("security: all secret stores failed: %w", joined)
}

func (s *FailoverSecretStore) emit(event SecretStoreDiagnostic) {
	if s.diagnosticHook == nil {
		return
	}
	s.diagnosticHook(event)
}

func normalizeFailurePolicy(policy SecretStoreFailurePolicy) SecretStoreFailurePolicy {
	switch policy {
	case SecretStoreFailurePolicyFallback:
		return SecretStoreFailurePolicyFallback
	default:
		return SecretStoreFailurePolicyStrict
	}
}

var _ core.SecretStore = (*FailoverSecretStore)(nil)
