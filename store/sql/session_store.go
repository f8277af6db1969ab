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

type SessionStore struct {
	db   *bun.DB
	repo repository.Repository[*sessionRecord]
}

func (s *SessionStore) ListActiveByTenant(ctx context.Context, tenantID string) ([]core.Session, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: session store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("sqlstore: tenant id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.SelectBy("status", "=", string(core.SessionStatusActive)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}

	out := make([]core.Session, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *SessionStore) Create(ctx context.Context, in core.CreateSessionInput) (core.Session, error) {
	if s == nil || s.repo == nil {
		return core.Session{}, fmt.Errorf("sqlstore: session store is not configured")
	}
	if strings.TrimSpace(in.TenantID) == "" {
		return core.Session{}, fmt.Errorf("sqlstore: tenant id is required")
	}

	record := newSessionRecord(in, time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Session{}, err
	}
	return created.toDomain(), nil
}

// UpdateStatus applies the session lifecycle. Closing a closed session is
// rejected by the domain transition table, not here.
func (s *SessionStore) UpdateStatus(ctx context.Context, id string, status core.SessionStatus) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: session store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return fmt.Errorf("sqlstore: session id is required")
	}
	current, err := s.repo.GetByID(ctx, trimmedID)
	if err != nil {
		return err
	}

	session := current.toDomain()
	now := time.Now().UTC()
	if err := session.TransitionTo(status, now); err != nil {
		return err
	}
	current.Status = string(session.Status)
	current.UpdatedAt = now

	_, err = s.repo.Update(ctx, current, repository.UpdateByID(trimmedID))
	return err
}
