package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/marianoberton/go-messaging/core"
)

// MutatingService is the slice of the messaging service the command layer
// drives. Read-side lookups stay on the query surface.
type MutatingService interface {
	ProcessInbound(ctx context.Context, msg core.InboundMessage) core.SendResult
	Send(ctx context.Context, req core.SendRequest) core.SendResult
	QueueOutbound(ctx context.Context, req core.SendRequest) error
	DispatchPending(ctx context.Context, batchSize int) (core.DispatchStats, error)
	InvalidateAdapter(ctx context.Context, tenantID, provider string) error
	InvalidateTenant(ctx context.Context, tenantID string) error
}

type ProcessInboundCommand struct {
	service MutatingService
}

func NewProcessInboundCommand(service MutatingService) *ProcessInboundCommand {
	return &ProcessInboundCommand{service: service}
}

// Execute always succeeds once dependencies are wired: delivery failures
// travel inside the stored SendResult, never as a handler error.
func (c *ProcessInboundCommand) Execute(ctx context.Context, msg ProcessInboundMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: process inbound service is required")
	}
	out := c.service.ProcessInbound(ctx, msg.Message)
	storeResult(ctx, out)
	return nil
}

type SendCommand struct {
	service MutatingService
}

func NewSendCommand(service MutatingService) *SendCommand {
	return &SendCommand{service: service}
}

func (c *SendCommand) Execute(ctx context.Context, msg SendMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: send service is required")
	}
	out := c.service.Send(ctx, msg.Request)
	storeResult(ctx, out)
	return nil
}

type QueueOutboundCommand struct {
	service MutatingService
}

func NewQueueOutboundCommand(service MutatingService) *QueueOutboundCommand {
	return &QueueOutboundCommand{service: service}
}

func (c *QueueOutboundCommand) Execute(ctx context.Context, msg QueueOutboundMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: queue outbound service is required")
	}
	return c.service.QueueOutbound(ctx, msg.Request)
}

type DispatchPendingCommand struct {
	service MutatingService
}

func NewDispatchPendingCommand(service MutatingService) *DispatchPendingCommand {
	return &DispatchPendingCommand{service: service}
}

func (c *DispatchPendingCommand) Execute(ctx context.Context, msg DispatchPendingMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dispatch pending service is required")
	}
	out, err := c.service.DispatchPending(ctx, msg.BatchSize)
	// Per-job failures surface in the error while the stats still count the
	// whole batch, so the result is stored either way.
	storeResult(ctx, out)
	return err
}

type InvalidateAdapterCommand struct {
	service MutatingService
}

func NewInvalidateAdapterCommand(service MutatingService) *InvalidateAdapterCommand {
	return &InvalidateAdapterCommand{service: service}
}

func (c *InvalidateAdapterCommand) Execute(ctx context.Context, msg InvalidateAdapterMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: invalidate adapter service is required")
	}
	return c.service.InvalidateAdapter(ctx, msg.TenantID, msg.Provider)
}

type InvalidateTenantCommand struct {
	service MutatingService
}

func NewInvalidateTenantCommand(service MutatingService) *InvalidateTenantCommand {
	return &InvalidateTenantCommand{service: service}
}

func (c *InvalidateTenantCommand) Execute(ctx context.Context, msg InvalidateTenantMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: invalidate tenant service is required")
	}
	return c.service.InvalidateTenant(ctx, msg.TenantID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
