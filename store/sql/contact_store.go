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

// ContactStore persists channel contacts keyed by structural identifier
// columns. Lookups never match soft-deleted rows.
type ContactStore struct {
	db   *bun.DB
	repo repository.Repository[*contactRecord]
}

func (s *ContactStore) FindByIdentifier(ctx context.Context, tenantID, field, value string) (core.Contact, bool, error) {
	if s == nil || s.repo == nil {
		return core.Contact{}, false, fmt.Errorf("sqlstore: contact store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	value = strings.TrimSpace(value)
	if tenantID == "" || value == "" {
		return core.Contact{}, false, fmt.Errorf("sqlstore: tenant id and identifier value are required")
	}
	column, err := contactIdentifierColumn(field)
	if err != nil {
		return core.Contact{}, false, err
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.SelectBy(column, "=", value),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Contact{}, false, err
	}
	if len(records) == 0 {
		return core.Contact{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *ContactStore) Create(ctx context.Context, in core.CreateContactInput) (core.Contact, error) {
	if s == nil || s.repo == nil {
		return core.Contact{}, fmt.Errorf("sqlstore: contact store is not configured")
	}
	if strings.TrimSpace(in.TenantID) == "" {
		return core.Contact{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	if strings.TrimSpace(in.Identifier.Value) == "" {
		return core.Contact{}, fmt.Errorf("sqlstore: identifier value is required")
	}
	if _, err := contactIdentifierColumn(in.Identifier.Field); err != nil {
		return core.Contact{}, err
	}

	record := newContactRecord(in, time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Contact{}, err
	}
	return created.toDomain(), nil
}

// contactIdentifierColumn pins identifier fields to known columns so lookup
// input can never name an arbitrary one.
func contactIdentifierColumn(field string) (string, error) {
	switch strings.TrimSpace(field) {
	case core.ContactFieldPhone:
		return "phone", nil
	case core.ContactFieldTelegramID:
		return "telegram_id", nil
	case core.ContactFieldSlackID:
		return "slack_id", nil
	case core.ContactFieldEmail:
		return "email", nil
	default:
		return "", fmt.Errorf("sqlstore: unknown contact identifier field %q", field)
	}
}
