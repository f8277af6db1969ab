package query

import (
	"strings"

	"github.com/marianoberton/go-messaging/core"
)

const (
	TypeResolveAgent          = "messaging.query.agent.resolve"
	TypeCheckChannelCollision = "messaging.query.agent.collision_check"
	TypeGetIntegration        = "messaging.query.integration.get"
	TypeResolveTenant         = "messaging.query.tenant.resolve"
	TypeChannelHealth         = "messaging.query.channel.health"
)

type ResolveAgentMessage struct {
	TenantID string
	Channel  string
	Role     string
}

func (ResolveAgentMessage) Type() string { return TypeResolveAgent }

func (m ResolveAgentMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(m.Channel) == "" {
		return queryValidationError("channel", "channel is required")
	}
	return nil
}

type CheckChannelCollisionMessage struct {
	TenantID       string
	ExcludeAgentID string
	Candidate      []core.AgentMode
}

func (CheckChannelCollisionMessage) Type() string { return TypeCheckChannelCollision }

func (m CheckChannelCollisionMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	return nil
}

type GetIntegrationMessage struct {
	IntegrationID string
}

func (GetIntegrationMessage) Type() string { return TypeGetIntegration }

func (m GetIntegrationMessage) Validate() error {
	if strings.TrimSpace(m.IntegrationID) == "" {
		return queryValidationError("integration_id", "integration id is required")
	}
	return nil
}

// ResolveTenantMessage reverses either lookup direction: by integration row
// id, or by the provider-assigned account id carried on raw webhooks.
type ResolveTenantMessage struct {
	IntegrationID string
	Provider      string
	AccountID     string
}

func (ResolveTenantMessage) Type() string { return TypeResolveTenant }

func (m ResolveTenantMessage) Validate() error {
	if strings.TrimSpace(m.IntegrationID) != "" {
		return nil
	}
	if strings.TrimSpace(m.Provider) == "" {
		return queryValidationError("provider", "provider is required when integration id is absent")
	}
	if strings.TrimSpace(m.AccountID) == "" {
		return queryValidationError("account_id", "account id is required when integration id is absent")
	}
	return nil
}

type ChannelHealthMessage struct {
	TenantID string
}

func (ChannelHealthMessage) Type() string { return TypeChannelHealth }

func (m ChannelHealthMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	return nil
}
