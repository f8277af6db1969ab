package query

import (
	"context"
	"strings"

	"github.com/marianoberton/go-messaging/core"
)

type AgentReader interface {
	ResolveAgent(ctx context.Context, tenantID, channel, role string) (core.AgentMatch, bool, error)
	CheckChannelCollision(ctx context.Context, tenantID, excludeAgentID string, candidate []core.AgentMode) (*core.ChannelCollision, error)
}

type IntegrationReader interface {
	ResolveIntegration(ctx context.Context, id string) (core.Integration, error)
	ResolveTenantByIntegration(ctx context.Context, id string) (string, error)
	ResolveTenantByProviderAccount(ctx context.Context, provider, accountID string) (string, error)
}

type ChannelHealthReader interface {
	ChannelHealth(ctx context.Context, tenantID string) map[string]bool
}

// AgentResolution carries channel routing's two-part outcome through the
// single-result query contract. Found false with no error means the tenant
// has no active agent claiming the channel.
type AgentResolution struct {
	Match core.AgentMatch
	Found bool
}

type ResolveAgentQuery struct {
	reader AgentReader
}

func NewResolveAgentQuery(reader AgentReader) *ResolveAgentQuery {
	return &ResolveAgentQuery{reader: reader}
}

func (q *ResolveAgentQuery) Query(ctx context.Context, msg ResolveAgentMessage) (AgentResolution, error) {
	if q == nil || q.reader == nil {
		return AgentResolution{}, queryDependencyError("query: agent reader is required")
	}
	match, found, err := q.reader.ResolveAgent(ctx, msg.TenantID, msg.Channel, msg.Role)
	if err != nil {
		return AgentResolution{}, err
	}
	return AgentResolution{Match: match, Found: found}, nil
}

type CheckChannelCollisionQuery struct {
	reader AgentReader
}

func NewCheckChannelCollisionQuery(reader AgentReader) *CheckChannelCollisionQuery {
	return &CheckChannelCollisionQuery{reader: reader}
}

func (q *CheckChannelCollisionQuery) Query(
	ctx context.Context,
	msg CheckChannelCollisionMessage,
) (*core.ChannelCollision, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: agent reader is required")
	}
	return q.reader.CheckChannelCollision(ctx, msg.TenantID, msg.ExcludeAgentID, msg.Candidate)
}

type GetIntegrationQuery struct {
	reader IntegrationReader
}

func NewGetIntegrationQuery(reader IntegrationReader) *GetIntegrationQuery {
	return &GetIntegrationQuery{reader: reader}
}

func (q *GetIntegrationQuery) Query(ctx context.Context, msg GetIntegrationMessage) (core.Integration, error) {
	if q == nil || q.reader == nil {
		return core.Integration{}, queryDependencyError("query: integration reader is required")
	}
	return q.reader.ResolveIntegration(ctx, msg.IntegrationID)
}

type ResolveTenantQuery struct {
	reader IntegrationReader
}

func NewResolveTenantQuery(reader IntegrationReader) *ResolveTenantQuery {
	return &ResolveTenantQuery{reader: reader}
}

func (q *ResolveTenantQuery) Query(ctx context.Context, msg ResolveTenantMessage) (string, error) {
	if q == nil || q.reader == nil {
		return "", queryDependencyError("query: integration reader is required")
	}
	if strings.TrimSpace(msg.IntegrationID) != "" {
		return q.reader.ResolveTenantByIntegration(ctx, msg.IntegrationID)
	}
	return q.reader.ResolveTenantByProviderAccount(ctx, msg.Provider, msg.AccountID)
}

type ChannelHealthQuery struct {
	reader ChannelHealthReader
}

func NewChannelHealthQuery(reader ChannelHealthReader) *ChannelHealthQuery {
	return &ChannelHealthQuery{reader: reader}
}

func (q *ChannelHealthQuery) Query(ctx context.Context, msg ChannelHealthMessage) (map[string]bool, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: channel health reader is required")
	}
	return q.reader.ChannelHealth(ctx, msg.TenantID), nil
}
