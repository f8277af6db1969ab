package command

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/marianoberton/go-messaging/core"
)

func TestProcessInboundCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.SendResult{Success: true, ChannelMessageID: "tg-9001"}
	called := false

	svc := stubMutatingService{
		processInboundFn: func(_ context.Context, msg core.InboundMessage) core.SendResult {
			called = true
			if msg.Channel != core.ChannelTelegram {
				t.Fatalf("expected telegram channel, got %q", msg.Channel)
			}
			if msg.TenantID != "tenant_1" {
				t.Fatalf("expected tenant_1, got %q", msg.TenantID)
			}
			return expected
		},
	}

	cmd := NewProcessInboundCommand(svc)
	collector := gocmd.NewResult[core.SendResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, ProcessInboundMessage{Message: core.InboundMessage{
		Channel:          core.ChannelTelegram,
		TenantID:         "tenant_1",
		SenderIdentifier: "777000111",
		Content:          "hola, necesito ayuda",
	}})
	if err != nil {
		t.Fatalf("execute process inbound: %v", err)
	}
	if !called {
		t.Fatalf("expected process inbound service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if !result.Success || result.ChannelMessageID != expected.ChannelMessageID {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestSendCommand_StoresFailureResultWithoutError(t *testing.T) {
	svc := stubMutatingService{
		sendFn: func(_ context.Context, req core.SendRequest) core.SendResult {
			if req.Channel != core.ChannelWhatsApp {
				t.Fatalf("expected whatsapp channel, got %q", req.Channel)
			}
			return core.FailedSend("whatsapp: recipient opted out")
		},
	}

	cmd := NewSendCommand(svc)
	collector := gocmd.NewResult[core.SendResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, SendMessage{Request: core.SendRequest{
		TenantID: "tenant_1",
		Channel:  core.ChannelWhatsApp,
		Message:  core.OutboundMessage{Recipient: "+5491155551234", Content: "hola"},
	}})
	// Delivery failures ride inside the stored result, not the handler error.
	if err != nil {
		t.Fatalf("execute send: %v", err)
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected send result to be stored")
	}
	if result.Success {
		t.Fatalf("expected failed send result, got %#v", result)
	}
	if result.Error != "whatsapp: recipient opted out" {
		t.Fatalf("unexpected send error: %q", result.Error)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	t.Run("queue outbound", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			queueOutboundFn: func(_ context.Context, req core.SendRequest) error {
				called = true
				if req.TenantID != "tenant_1" || req.Message.Recipient != "C024BE91L" {
					t.Fatalf("unexpected queue payload: %#v", req)
				}
				return nil
			},
		}
		cmd := NewQueueOutboundCommand(svc)
		if err := cmd.Execute(context.Background(), QueueOutboundMessage{Request: core.SendRequest{
			TenantID: "tenant_1",
			Channel:  core.ChannelSlack,
			Message:  core.OutboundMessage{Recipient: "C024BE91L", Content: "deploy done"},
		}}); err != nil {
			t.Fatalf("execute queue outbound: %v", err)
		}
		if !called {
			t.Fatalf("expected queue outbound invocation")
		}
	})

	t.Run("dispatch pending", func(t *testing.T) {
		expected := core.DispatchStats{Claimed: 3, Delivered: 2, Retried: 0, Failed: 1}
		called := false
		svc := stubMutatingService{
			dispatchPendingFn: func(_ context.Context, batchSize int) (core.DispatchStats, error) {
				called = true
				if batchSize != 3 {
					t.Fatalf("expected batch size 3, got %d", batchSize)
				}
				return expected, nil
			},
		}
		cmd := NewDispatchPendingCommand(svc)
		collector := gocmd.NewResult[core.DispatchStats]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := cmd.Execute(ctx, DispatchPendingMessage{BatchSize: 3}); err != nil {
			t.Fatalf("execute dispatch pending: %v", err)
		}
		if !called {
			t.Fatalf("expected dispatch pending invocation")
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected dispatch stats result")
		}
		if stored != expected {
			t.Fatalf("unexpected dispatch stats: %#v", stored)
		}
	})

	t.Run("dispatch pending stores stats alongside batch error", func(t *testing.T) {
		batchErr := errors.New("dispatch outbound job out_3: telegram: bot was blocked by the user")
		svc := stubMutatingService{
			dispatchPendingFn: func(_ context.Context, _ int) (core.DispatchStats, error) {
				return core.DispatchStats{Claimed: 3, Delivered: 2, Failed: 1}, batchErr
			},
		}
		cmd := NewDispatchPendingCommand(svc)
		collector := gocmd.NewResult[core.DispatchStats]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)

		err := cmd.Execute(ctx, DispatchPendingMessage{BatchSize: 3})
		if !errors.Is(err, batchErr) {
			t.Fatalf("expected batch error, got %v", err)
		}
		stored, ok := collector.Load()
		if !ok {
			t.Fatalf("expected stats stored despite batch error")
		}
		if stored.Delivered != 2 || stored.Failed != 1 {
			t.Fatalf("unexpected dispatch stats: %#v", stored)
		}
	})

	t.Run("invalidate adapter", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			invalidateAdapterFn: func(_ context.Context, tenantID, provider string) error {
				called = true
				if tenantID != "tenant_1" || provider != core.ChannelTelegram {
					t.Fatalf("unexpected invalidate payload: %q %q", tenantID, provider)
				}
				return nil
			},
		}
		cmd := NewInvalidateAdapterCommand(svc)
		if err := cmd.Execute(context.Background(), InvalidateAdapterMessage{
			TenantID: "tenant_1",
			Provider: core.ChannelTelegram,
		}); err != nil {
			t.Fatalf("execute invalidate adapter: %v", err)
		}
		if !called {
			t.Fatalf("expected invalidate adapter invocation")
		}
	})

	t.Run("invalidate tenant", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			invalidateTenantFn: func(_ context.Context, tenantID string) error {
				called = true
				if tenantID != "tenant_1" {
					t.Fatalf("unexpected tenant id: %q", tenantID)
				}
				return nil
			},
		}
		cmd := NewInvalidateTenantCommand(svc)
		if err := cmd.Execute(context.Background(), InvalidateTenantMessage{TenantID: "tenant_1"}); err != nil {
			t.Fatalf("execute invalidate tenant: %v", err)
		}
		if !called {
			t.Fatalf("expected invalidate tenant invocation")
		}
	})
}

func TestMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{
			name: "process inbound valid",
			msg: ProcessInboundMessage{Message: core.InboundMessage{
				Channel:          core.ChannelTelegram,
				TenantID:         "tenant_1",
				SenderIdentifier: "777000111",
			}},
			wantErr: false,
		},
		{
			name: "process inbound missing sender",
			msg: ProcessInboundMessage{Message: core.InboundMessage{
				Channel:  core.ChannelTelegram,
				TenantID: "tenant_1",
			}},
			wantErr: true,
		},
		{
			name: "send valid",
			msg: SendMessage{Request: core.SendRequest{
				TenantID: "tenant_1",
				Channel:  core.ChannelSlack,
				Message:  core.OutboundMessage{Recipient: "C024BE91L", Content: "hi"},
			}},
			wantErr: false,
		},
		{
			name: "send missing recipient",
			msg: SendMessage{Request: core.SendRequest{
				TenantID: "tenant_1",
				Channel:  core.ChannelSlack,
			}},
			wantErr: true,
		},
		{
			name:    "queue outbound missing tenant",
			msg:     QueueOutboundMessage{Request: core.SendRequest{Channel: core.ChannelTelegram, Message: core.OutboundMessage{Recipient: "42"}}},
			wantErr: true,
		},
		{
			name:    "dispatch pending zero batch uses default",
			msg:     DispatchPendingMessage{},
			wantErr: false,
		},
		{
			name:    "dispatch pending negative batch",
			msg:     DispatchPendingMessage{BatchSize: -1},
			wantErr: true,
		},
		{
			name:    "invalidate adapter valid",
			msg:     InvalidateAdapterMessage{TenantID: "tenant_1", Provider: core.ChannelWhatsApp},
			wantErr: false,
		},
		{
			name:    "invalidate adapter missing provider",
			msg:     InvalidateAdapterMessage{TenantID: "tenant_1"},
			wantErr: true,
		},
		{
			name:    "invalidate tenant missing id",
			msg:     InvalidateTenantMessage{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type stubMutatingService struct {
	processInboundFn    func(ctx context.Context, msg core.InboundMessage) core.SendResult
	sendFn              func(ctx context.Context, req core.SendRequest) core.SendResult
	queueOutboundFn     func(ctx context.Context, req core.SendRequest) error
	dispatchPendingFn   func(ctx context.Context, batchSize int) (core.DispatchStats, error)
	invalidateAdapterFn func(ctx context.Context, tenantID, provider string) error
	invalidateTenantFn  func(ctx context.Context, tenantID string) error
}

func (s stubMutatingService) ProcessInbound(ctx context.Context, msg core.InboundMessage) core.SendResult {
	if s.processInboundFn == nil {
		return core.FailedSend("process inbound not configured")
	}
	return s.processInboundFn(ctx, msg)
}

func (s stubMutatingService) Send(ctx context.Context, req core.SendRequest) core.SendResult {
	if s.sendFn == nil {
		return core.FailedSend("send not configured")
	}
	return s.sendFn(ctx, req)
}

func (s stubMutatingService) QueueOutbound(ctx context.Context, req core.SendRequest) error {
	if s.queueOutboundFn == nil {
		return fmt.Errorf("queue outbound not configured")
	}
	return s.queueOutboundFn(ctx, req)
}

func (s stubMutatingService) DispatchPending(ctx context.Context, batchSize int) (core.DispatchStats, error) {
	if s.dispatchPendingFn == nil {
		return core.DispatchStats{}, fmt.Errorf("dispatch pending not configured")
	}
	return s.dispatchPendingFn(ctx, batchSize)
}

func (s stubMutatingService) InvalidateAdapter(ctx context.Context, tenantID, provider string) error {
	if s.invalidateAdapterFn == nil {
		return fmt.Errorf("invalidate adapter not configured")
	}
	return s.invalidateAdapterFn(ctx, tenantID, provider)
}

func (s stubMutatingService) InvalidateTenant(ctx context.Context, tenantID string) error {
	if s.invalidateTenantFn == nil {
		return fmt.Errorf("invalidate tenant not configured")
	}
	return s.invalidateTenantFn(ctx, tenantID)
}

var _ MutatingService = stubMutatingService{}
