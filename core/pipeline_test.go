package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureRunner struct {
	mu       sync.Mutex
	runs     []AgentRun
	response AgentResponse
	err      error
}

func newCaptureRunner(reply string) *captureRunner {
	return &captureRunner{response: AgentResponse{Response: reply}}
}

func (r *captureRunner) run(_ context.Context, run AgentRun) (AgentResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return r.response, r.err
}

func (r *captureRunner) calls() []AgentRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AgentRun(nil), r.runs...)
}

type pipelineFixture struct {
	contacts  *memoryContactStore
	sessions  *memorySessionStore
	sender    *captureSender
	runner    *captureRunner
	processor *InboundProcessor
}

func newPipelineFixture(t *testing.T, opts ...func(*InboundProcessorConfig)) *pipelineFixture {
	t.Helper()
	fixture := &pipelineFixture{
		contacts: newMemoryContactStore(),
		sessions: newMemorySessionStore(),
		sender:   &captureSender{},
		runner:   newCaptureRunner("how can I help?"),
	}
	cfg := InboundProcessorConfig{
		Contacts: fixture.contacts,
		Sessions: fixture.sessions,
		Sender:   fixture.sender,
		Runner:   fixture.runner.run,
		Logger:   stubLogger{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	processor, err := NewInboundProcessor(cfg)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	fixture.processor = processor
	return fixture
}

func whatsappInbound() InboundMessage {
	return InboundMessage{
		Channel:          ChannelWhatsApp,
		ChannelMessageID: "wamid.001",
		TenantID:         "tenant_1",
		SenderIdentifier: "+5491155550000",
		SenderName:       "Ana",
		Content:          "hola, necesito ayuda",
		ReceivedAt:       time.Now().UTC(),
	}
}

func TestProcess_FirstContactEndToEnd(t *testing.T) {
	fixture := newPipelineFixture(t)

	result := fixture.processor.Process(context.Background(), whatsappInbound())
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}

	contacts := fixture.contacts.all()
	if len(contacts) != 1 {
		t.Fatalf("expected exactly one contact, got %d", len(contacts))
	}
	if contacts[0].Name != "Ana" || contacts[0].Phone != "+5491155550000" {
		t.Fatalf("unexpected contact: %+v", contacts[0])
	}

	sessions := fixture.sessions.all()
	if len(sessions) != 1 {
		t.Fatalf("expected exactly one session, got %d", len(sessions))
	}
	if sessions[0].ContactID() != contacts[0].ID {
		t.Fatalf("session must reference the contact, got %q", sessions[0].ContactID())
	}
	if sessions[0].Channel() != ChannelWhatsApp {
		t.Fatalf("session must record the channel, got %q", sessions[0].Channel())
	}

	runs := fixture.runner.calls()
	if len(runs) != 1 {
		t.Fatalf("expected exactly one agent callback, got %d", len(runs))
	}
	if runs[0].SessionID != sessions[0].ID || runs[0].ContactID != contacts[0].ID {
		t.Fatalf("unexpected run: %+v", runs[0])
	}
	if runs[0].Message != "hola, necesito ayuda" {
		t.Fatalf("agent must receive the inbound content, got %q", runs[0].Message)
	}

	sent := fixture.sender.sent()
	if len(sent) != 1 {
		t.Fatalf("expected one reply dispatch, got %d", len(sent))
	}
	if sent[0].msg.ReplyToChannelMessageID != "wamid.001" {
		t.Fatalf("reply must thread the inbound message id, got %q", sent[0].msg.ReplyToChannelMessageID)
	}
	if sent[0].msg.Recipient != "+5491155550000" {
		t.Fatalf("reply must address the sender, got %q", sent[0].msg.Recipient)
	}
}

func TestProcess_UnsupportedChannelCreatesNoState(t *testing.T) {
	fixture := newPipelineFixture(t)

	msg := whatsappInbound()
	msg.Channel = "carrier-pigeon"
	result := fixture.processor.Process(context.Background(), msg)

	if result.Success {
		t.Fatalf("expected structured failure for unsupported channel")
	}
	if !strings.Contains(result.Error, "not routable") {
		t.Fatalf("expected routable error, got %q", result.Error)
	}
	if len(fixture.contacts.all()) != 0 {
		t.Fatalf("no contact may be created for rejected messages")
	}
	if len(fixture.sessions.all()) != 0 {
		t.Fatalf("no session may be created for rejected messages")
	}
	if len(fixture.runner.calls()) != 0 {
		t.Fatalf("agent must not run for rejected messages")
	}
}

func TestProcess_ValidationFailure(t *testing.T) {
	fixture := newPipelineFixture(t)

	result := fixture.processor.Process(context.Background(), InboundMessage{Channel: ChannelWhatsApp})
	if result.Success {
		t.Fatalf("expected failure for incomplete message")
	}
	if len(fixture.contacts.all())+len(fixture.sessions.all()) != 0 {
		t.Fatalf("validation failures must not create state")
	}
}

func TestProcess_NeverCreatesSessionWithoutContact(t *testing.T) {
	fixture := newPipelineFixture(t)
	fixture.contacts.createErr = fmt.Errorf("unique constraint")

	result := fixture.processor.Process(context.Background(), whatsappInbound())
	if result.Success {
		t.Fatalf("expected failure when contact creation fails")
	}
	if len(fixture.sessions.all()) != 0 {
		t.Fatalf("a session must never exist without its contact")
	}
	if fixture.sessions.createCalls != 0 {
		t.Fatalf("session create must not be attempted, got %d calls", fixture.sessions.createCalls)
	}
}

func TestProcess_ReusesActiveSessionAndContact(t *testing.T) {
	fixture := newPipelineFixture(t)

	first := fixture.processor.Process(context.Background(), whatsappInbound())
	if !first.Success {
		t.Fatalf("first message failed: %q", first.Error)
	}

	followUp := whatsappInbound()
	followUp.ChannelMessageID = "wamid.002"
	followUp.Content = "sigue sin funcionar"
	second := fixture.processor.Process(context.Background(), followUp)
	if !second.Success {
		t.Fatalf("second message failed: %q", second.Error)
	}

	if fixture.contacts.createCalls != 1 {
		t.Fatalf("expected one contact create, got %d", fixture.contacts.createCalls)
	}
	if fixture.sessions.createCalls != 1 {
		t.Fatalf("expected one session create, got %d", fixture.sessions.createCalls)
	}
	runs := fixture.runner.calls()
	if len(runs) != 2 || runs[0].SessionID != runs[1].SessionID {
		t.Fatalf("both runs must share the session, got %+v", runs)
	}
}

func TestProcess_NameFallsBackToIdentifier(t *testing.T) {
	fixture := newPipelineFixture(t)

	msg := whatsappInbound()
	msg.SenderName = "  "
	if result := fixture.processor.Process(context.Background(), msg); !result.Success {
		t.Fatalf("process failed: %q", result.Error)
	}

	contacts := fixture.contacts.all()
	if len(contacts) != 1 || contacts[0].Name != "+5491155550000" {
		t.Fatalf("expected identifier as name, got %+v", contacts)
	}
}

func TestProcess_AgentRoutingStampsSession(t *testing.T) {
	resolver := &staticAgentResolver{
		match: AgentMatch{
			Agent: Agent{ID: "agent_7", Name: "support"},
			Resolution: ModeResolution{
				Mode:          "helpdesk",
				ToolAllowlist: []string{"kb_search"},
			},
		},
		found: true,
	}
	fixture := newPipelineFixture(t, func(cfg *InboundProcessorConfig) {
		cfg.Agents = resolver
	})

	if result := fixture.processor.Process(context.Background(), whatsappInbound()); !result.Success {
		t.Fatalf("process failed: %q", result.Error)
	}

	sessions := fixture.sessions.all()
	if len(sessions) != 1 || sessions[0].AgentID() != "agent_7" {
		t.Fatalf("expected routed agent on session, got %+v", sessions)
	}
	runs := fixture.runner.calls()
	if len(runs) != 1 || runs[0].AgentID != "agent_7" || runs[0].Mode.Mode != "helpdesk" {
		t.Fatalf("expected routed agent in run, got %+v", runs)
	}
}

func TestProcess_AgentRoutingFailureIsAdvisory(t *testing.T) {
	resolver := &staticAgentResolver{err: fmt.Errorf("agent store down")}
	fixture := newPipelineFixture(t, func(cfg *InboundProcessorConfig) {
		cfg.Agents = resolver
	})

	result := fixture.processor.Process(context.Background(), whatsappInbound())
	if !result.Success {
		t.Fatalf("routing failures must not fail the message: %q", result.Error)
	}
	sessions := fixture.sessions.all()
	if len(sessions) != 1 || sessions[0].AgentID() != "" {
		t.Fatalf("expected unrouted session, got %+v", sessions)
	}
}

func TestProcess_AgentRunErrorBecomesStructuredFailure(t *testing.T) {
	fixture := newPipelineFixture(t)
	fixture.runner.err = fmt.Errorf("model unavailable")

	result := fixture.processor.Process(context.Background(), whatsappInbound())
	if result.Success {
		t.Fatalf("expected failure when the agent run fails")
	}
	if !strings.Contains(result.Error, "agent run failed") {
		t.Fatalf("expected agent run failure, got %q", result.Error)
	}
	if len(fixture.sender.sent()) != 0 {
		t.Fatalf("no reply may be dispatched after a failed run")
	}
}

func TestProcess_EmptyAgentReplySkipsDispatch(t *testing.T) {
	fixture := newPipelineFixture(t)
	fixture.runner.response = AgentResponse{Response: "   "}

	result := fixture.processor.Process(context.Background(), whatsappInbound())
	if !result.Success {
		t.Fatalf("empty reply is not a failure: %q", result.Error)
	}
	if len(fixture.sender.sent()) != 0 {
		t.Fatalf("nothing may be dispatched for an empty reply")
	}
}

func TestProcess_DispatchFailureIsReturned(t *testing.T) {
	fixture := newPipelineFixture(t)
	fixture.sender.result = &SendResult{Success: false, Error: "rate limited"}

	result := fixture.processor.Process(context.Background(), whatsappInbound())
	if result.Success {
		t.Fatalf("expected the dispatch failure to propagate")
	}
	if result.Error != "rate limited" {
		t.Fatalf("expected the dispatch result verbatim, got %q", result.Error)
	}
}

func TestProcess_DuplicateDeliveryIsAcknowledged(t *testing.T) {
	replay := NewInMemoryReplayStore()
	fixture := newPipelineFixture(t, func(cfg *InboundProcessorConfig) {
		cfg.Replay = replay
	})

	if result := fixture.processor.Process(context.Background(), whatsappInbound()); !result.Success {
		t.Fatalf("first delivery failed: %q", result.Error)
	}
	result := fixture.processor.Process(context.Background(), whatsappInbound())
	if !result.Success {
		t.Fatalf("duplicate must be acknowledged, got %q", result.Error)
	}

	if got := len(fixture.runner.calls()); got != 1 {
		t.Fatalf("duplicate must not reach the agent, got %d runs", got)
	}
	if got := len(fixture.sender.sent()); got != 1 {
		t.Fatalf("duplicate must not dispatch again, got %d", got)
	}
}

func TestProcess_FailedDeliveryCanBeRedelivered(t *testing.T) {
	replay := NewInMemoryReplayStore()
	fixture := newPipelineFixture(t, func(cfg *InboundProcessorConfig) {
		cfg.Replay = replay
	})
	fixture.runner.err = fmt.Errorf("model unavailable")

	if result := fixture.processor.Process(context.Background(), whatsappInbound()); result.Success {
		t.Fatalf("expected first attempt to fail")
	}

	fixture.runner.err = nil
	result := fixture.processor.Process(context.Background(), whatsappInbound())
	if !result.Success {
		t.Fatalf("redelivery after failure must process, got %q", result.Error)
	}
	if got := len(fixture.runner.calls()); got != 2 {
		t.Fatalf("expected the redelivery to reach the agent, got %d runs", got)
	}
}

func TestProcess_ReplayStoreErrorFailsOpen(t *testing.T) {
	fixture := newPipelineFixture(t, func(cfg *InboundProcessorConfig) {
		cfg.Replay = failingReplayStore{err: fmt.Errorf("redis down")}
	})

	result := fixture.processor.Process(context.Background(), whatsappInbound())
	if !result.Success {
		t.Fatalf("guard outage must not drop messages, got %q", result.Error)
	}
	if got := len(fixture.runner.calls()); got != 1 {
		t.Fatalf("expected the message to be processed, got %d runs", got)
	}
}

func TestProcess_CollaboratorPanicIsCaptured(t *testing.T) {
	fixture := newPipelineFixture(t, func(cfg *InboundProcessorConfig) {
		cfg.Runner = func(context.Context, AgentRun) (AgentResponse, error) {
			panic("agent exploded")
		}
	})

	result := fixture.processor.Process(context.Background(), whatsappInbound())
	if result.Success {
		t.Fatalf("expected a structured failure from the panic")
	}
	if !strings.Contains(result.Error, "panicked") {
		t.Fatalf("expected panic capture, got %q", result.Error)
	}
}

func TestProcess_TelegramIdentifierColumn(t *testing.T) {
	fixture := newPipelineFixture(t)

	msg := InboundMessage{
		Channel:          ChannelTelegram,
		ChannelMessageID: "42",
		TenantID:         "tenant_1",
		SenderIdentifier: "777000111",
		SenderName:       "Bruno",
		Content:          "hi",
	}
	if result := fixture.processor.Process(context.Background(), msg); !result.Success {
		t.Fatalf("process failed: %q", result.Error)
	}

	contacts := fixture.contacts.all()
	if len(contacts) != 1 || contacts[0].TelegramID != "777000111" || contacts[0].Phone != "" {
		t.Fatalf("telegram ids must land in their own column, got %+v", contacts)
	}
}
