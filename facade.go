package messaging

import (
	"fmt"

	messagingcommand "github.com/marianoberton/go-messaging/command"
	messagingquery "github.com/marianoberton/go-messaging/query"
)

type CommandQueryService interface {
	messagingcommand.MutatingService
	messagingquery.AgentReader
	messagingquery.IntegrationReader
	messagingquery.ChannelHealthReader
}

type Commands struct {
	ProcessInbound    *messagingcommand.ProcessInboundCommand
	Send              *messagingcommand.SendCommand
	QueueOutbound     *messagingcommand.QueueOutboundCommand
	DispatchPending   *messagingcommand.DispatchPendingCommand
	InvalidateAdapter *messagingcommand.InvalidateAdapterCommand
	InvalidateTenant  *messagingcommand.InvalidateTenantCommand
}

type Queries struct {
	ResolveAgent          *messagingquery.ResolveAgentQuery
	CheckChannelCollision *messagingquery.CheckChannelCollisionQuery
	GetIntegration        *messagingquery.GetIntegrationQuery
	ResolveTenant         *messagingquery.ResolveTenantQuery
	ChannelHealth         *messagingquery.ChannelHealthQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	agentReader  messagingquery.AgentReader
	healthReader messagingquery.ChannelHealthReader
}

// WithAgentReader overrides the reader behind agent queries, letting callers
// front channel routing with a cache without touching the service itself.
func WithAgentReader(reader messagingquery.AgentReader) FacadeOption {
	return func(options *facadeOptions) {
		options.agentReader = reader
	}
}

// WithChannelHealthReader overrides the reader behind the channel health
// query.
func WithChannelHealthReader(reader messagingquery.ChannelHealthReader) FacadeOption {
	return func(options *facadeOptions) {
		options.healthReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("messaging: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	agents := cfg.agentReader
	if agents == nil {
		agents = service
	}
	health := cfg.healthReader
	if health == nil {
		health = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		ProcessInbound:    messagingcommand.NewProcessInboundCommand(service),
		Send:              messagingcommand.NewSendCommand(service),
		QueueOutbound:     messagingcommand.NewQueueOutboundCommand(service),
		DispatchPending:   messagingcommand.NewDispatchPendingCommand(service),
		InvalidateAdapter: messagingcommand.NewInvalidateAdapterCommand(service),
		InvalidateTenant:  messagingcommand.NewInvalidateTenantCommand(service),
	}
	facade.queries = Queries{
		ResolveAgent:          messagingquery.NewResolveAgentQuery(agents),
		CheckChannelCollision: messagingquery.NewCheckChannelCollisionQuery(agents),
		GetIntegration:        messagingquery.NewGetIntegrationQuery(service),
		ResolveTenant:         messagingquery.NewResolveTenantQuery(service),
		ChannelHealth:         messagingquery.NewChannelHealthQuery(health),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
