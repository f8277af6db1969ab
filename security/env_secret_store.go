// Package security ships the secret stores the channel resolver reads
// credentials through: an environment-backed store for simple deployments,
// a vault-style store over an injectable client, and a failover wrapper
// that chains the two.
package security

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/marianoberton/go-messaging/core"
)

// EnvOption configures an EnvSecretStore.
type EnvOption func(*EnvSecretStore)

// EnvSecretStore resolves secret references from process environment
// variables. The tenant id and reference are mangled into one variable name
// under a fixed prefix, so "tenant_1" + "telegram/bot_token" reads
// MESSAGING_TENANT_1_TELEGRAM_BOT_TOKEN.
type EnvSecretStore struct {
	prefix string
	lookup func(string) (string, bool)
}

// WithEnvPrefix overrides the variable-name prefix. An empty prefix drops
// the leading segment entirely.
func WithEnvPrefix(prefix string) EnvOption {
	return func(store *EnvSecretStore) {
		if store == nil {
			return
		}
		store.prefix = strings.TrimSpace(prefix)
	}
}

// WithEnvLookup swaps the environment lookup, mainly for tests.
func WithEnvLookup(lookup func(string) (string, bool)) EnvOption {
	return func(store *EnvSecretStore) {
		if store == nil || lookup == nil {
			return
		}
		store.lookup = lookup
	}
}

func NewEnvSecretStore(opts ...EnvOption) *EnvSecretStore {
	store := &EnvSecretStore{
		prefix: "MESSAGING",
		lookup: os.LookupEnv,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(store)
	}
	return store
}

func (s *EnvSecretStore) Get(_ context.Context, tenantID, key string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("security: secret store is nil")
	}
	tenant := strings.TrimSpace(tenantID)
	if tenant == "" {
		return "", fmt.Errorf("security: tenant id is required")
	}
	ref := strings.TrimSpace(key)
	if ref == "" {
		return "", fmt.Errorf("security: secret key is required")
	}

	name := s.EnvName(tenant, ref)
	value, ok := s.lookup(name)
	if !ok {
		return "", fmt.Errorf("security: environment variable %s is not set", name)
	}
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("security: environment variable %s is empty", name)
	}
	return value, nil
}

// EnvName reports the variable a (tenant, key) pair resolves through,
// useful when provisioning deployments.
func (s *EnvSecretStore) EnvName(tenantID, key string) string {
	parts := make([]string, 0, 3)
	if s != nil && s.prefix != "" {
		parts = append(parts, s.prefix)
	}
	parts = append(parts, tenantID, key)
	return mangleEnvName(strings.Join(parts, "_"))
}

// mangleEnvName uppercases and flattens every separator to an underscore so
// any credential ref yields a legal variable name.
func mangleEnvName(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

var _ core.SecretStore = (*EnvSecretStore)(nil)
