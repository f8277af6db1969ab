package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/marianoberton/go-messaging/core"
	"github.com/uptrace/bun"
)

// IntegrationStore reads and provisions tenant channel integrations. The
// resolver consumes the read side only; Create and UpdateStatus exist for
// provisioning flows and tests.
type IntegrationStore struct {
	db   *bun.DB
	repo repository.Repository[*integrationRecord]
}

func (s *IntegrationStore) FindByTenantAndProvider(ctx context.Context, tenantID, provider string) (core.Integration, bool, error) {
	if s == nil || s.repo == nil {
		return core.Integration{}, false, fmt.Errorf("sqlstore: integration store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	provider = strings.TrimSpace(provider)
	if tenantID == "" || provider == "" {
		return core.Integration{}, false, fmt.Errorf("sqlstore: tenant id and provider are required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.SelectBy("provider", "=", provider),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Integration{}, false, err
	}
	if len(records) == 0 {
		return core.Integration{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *IntegrationStore) FindByID(ctx context.Context, id string) (core.Integration, bool, error) {
	if s == nil || s.repo == nil {
		return core.Integration{}, false, fmt.Errorf("sqlstore: integration store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Integration{}, false, fmt.Errorf("sqlstore: integration id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Integration{}, false, err
	}
	if len(records) == 0 {
		return core.Integration{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *IntegrationStore) FindByProviderAccount(ctx context.Context, provider, accountID string) (core.Integration, bool, error) {
	if s == nil || s.repo == nil {
		return core.Integration{}, false, fmt.Errorf("sqlstore: integration store is not configured")
	}
	provider = strings.TrimSpace(provider)
	accountID = strings.TrimSpace(accountID)
	if provider == "" || accountID == "" {
		return core.Integration{}, false, fmt.Errorf("sqlstore: provider and account id are required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("provider", "=", provider),
		repository.SelectBy("provider_account_id", "=", accountID),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Integration{}, false, err
	}
	if len(records) == 0 {
		return core.Integration{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *IntegrationStore) Create(ctx context.Context, in core.Integration) (core.Integration, error) {
	if s == nil || s.repo == nil {
		return core.Integration{}, fmt.Errorf("sqlstore: integration store is not configured")
	}
	if strings.TrimSpace(in.TenantID) == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	if strings.TrimSpace(in.Provider) == "" {
		return core.Integration{}, fmt.Errorf("sqlstore: provider is required")
	}

	record := newIntegrationRecord(in, time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Integration{}, err
	}
	return created.toDomain(), nil
}

// UpdateStatus applies the integration status lifecycle. Same-status updates
// touch updated_at only; disallowed transitions fail without writing.
func (s *IntegrationStore) UpdateStatus(ctx context.Context, id string, status core.IntegrationStatus) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: integration store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return fmt.Errorf("sqlstore: integration id is required")
	}
	current, err := s.repo.GetByID(ctx, trimmedID)
	if err != nil {
		return err
	}

	integration := current.toDomain()
	now := time.Now().UTC()
	if err := integration.TransitionTo(status, now); err != nil {
		return err
	}
	current.Status = string(integration.Status)
	current.UpdatedAt = now

	_, err = s.repo.Update(ctx, current, repository.UpdateByID(trimmedID))
	return err
}
