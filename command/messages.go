package command

import (
	"strings"

	"github.com/marianoberton/go-messaging/core"
)

const (
	TypeProcessInbound    = "messaging.command.inbound.process"
	TypeSend              = "messaging.command.send"
	TypeQueueOutbound     = "messaging.command.outbound.queue"
	TypeDispatchPending   = "messaging.command.outbound.dispatch"
	TypeInvalidateAdapter = "messaging.command.adapter.invalidate"
	TypeInvalidateTenant  = "messaging.command.tenant.invalidate"
)

// ProcessInboundMessage runs one normalized inbound message through the full
// pipeline: contact resolution, session handling, agent routing, and reply.
type ProcessInboundMessage struct {
	Message core.InboundMessage
}

func (ProcessInboundMessage) Type() string { return TypeProcessInbound }

func (m ProcessInboundMessage) Validate() error {
	return commandWrapValidation(m.Message.Validate(), "command: invalid inbound message")
}

// SendMessage delivers one outbound message synchronously through the
// tenant's resolved channel adapter.
type SendMessage struct {
	Request core.SendRequest
}

func (SendMessage) Type() string { return TypeSend }

func (m SendMessage) Validate() error {
	return validateSendRequest(m.Request)
}

// QueueOutboundMessage enqueues one outbound message for asynchronous
// delivery by the dispatch worker.
type QueueOutboundMessage struct {
	Request core.SendRequest
}

func (QueueOutboundMessage) Type() string { return TypeQueueOutbound }

func (m QueueOutboundMessage) Validate() error {
	return validateSendRequest(m.Request)
}

// DispatchPendingMessage drains up to BatchSize queued outbound jobs.
// BatchSize zero falls back to the service's configured default.
type DispatchPendingMessage struct {
	BatchSize int
}

func (DispatchPendingMessage) Type() string { return TypeDispatchPending }

func (m DispatchPendingMessage) Validate() error {
	if m.BatchSize < 0 {
		return commandInvalidInputError("command: batch size cannot be negative")
	}
	return nil
}

// InvalidateAdapterMessage evicts one tenant's cached adapter for a single
// provider so the next resolve rebuilds it from storage.
type InvalidateAdapterMessage struct {
	TenantID string
	Provider string
}

func (InvalidateAdapterMessage) Type() string { return TypeInvalidateAdapter }

func (m InvalidateAdapterMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(m.Provider) == "" {
		return commandValidationError("provider", "provider is required")
	}
	return nil
}

// InvalidateTenantMessage evicts every cached adapter a tenant holds,
// across all providers.
type InvalidateTenantMessage struct {
	TenantID string
}

func (InvalidateTenantMessage) Type() string { return TypeInvalidateTenant }

func (m InvalidateTenantMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	return nil
}

func validateSendRequest(req core.SendRequest) error {
	if strings.TrimSpace(req.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(req.Channel) == "" {
		return commandValidationError("channel", "channel is required")
	}
	if strings.TrimSpace(req.Message.Recipient) == "" {
		return commandValidationError("recipient", "recipient is required")
	}
	return nil
}
