package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ProcessInboundMessage]    = (*ProcessInboundCommand)(nil)
	_ gocmd.Commander[SendMessage]              = (*SendCommand)(nil)
	_ gocmd.Commander[QueueOutboundMessage]     = (*QueueOutboundCommand)(nil)
	_ gocmd.Commander[DispatchPendingMessage]   = (*DispatchPendingCommand)(nil)
	_ gocmd.Commander[InvalidateAdapterMessage] = (*InvalidateAdapterCommand)(nil)
	_ gocmd.Commander[InvalidateTenantMessage]  = (*InvalidateTenantCommand)(nil)
)
