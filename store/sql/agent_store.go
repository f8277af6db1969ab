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

// AgentStore lists tenant agents for channel routing. Position breaks ties
// between agents whose modes claim the same channel, so rows come back in
// position order.
type AgentStore struct {
	db   *bun.DB
	repo repository.Repository[*agentRecord]
}

func (s *AgentStore) ListActive(ctx context.Context, tenantID string) ([]core.Agent, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: agent store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("sqlstore: tenant id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.SelectBy("status", "=", string(core.AgentStatusActive)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("position ASC"),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}

	out := make([]core.Agent, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *AgentStore) Create(ctx context.Context, in core.Agent) (core.Agent, error) {
	if s == nil || s.repo == nil {
		return core.Agent{}, fmt.Errorf("sqlstore: agent store is not configured")
	}
	if strings.TrimSpace(in.TenantID) == "" {
		return core.Agent{}, fmt.Errorf("sqlstore: tenant id is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return core.Agent{}, fmt.Errorf("sqlstore: agent name is required")
	}

	record := newAgentRecord(in, time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Agent{}, err
	}
	return created.toDomain(), nil
}
