package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/marianoberton/go-messaging/core"
)

var (
	_ gocmd.Querier[ResolveAgentMessage, AgentResolution]                 = (*ResolveAgentQuery)(nil)
	_ gocmd.Querier[CheckChannelCollisionMessage, *core.ChannelCollision] = (*CheckChannelCollisionQuery)(nil)
	_ gocmd.Querier[GetIntegrationMessage, core.Integration]              = (*GetIntegrationQuery)(nil)
	_ gocmd.Querier[ResolveTenantMessage, string]                         = (*ResolveTenantQuery)(nil)
	_ gocmd.Querier[ChannelHealthMessage, map[string]bool]                = (*ChannelHealthQuery)(nil)
)
