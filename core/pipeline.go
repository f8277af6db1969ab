package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// AgentResolver is the advisory routing seam the pipeline consults before
// creating a session. Resolution failures are logged and skipped; they never
// fail the message.
type AgentResolver interface {
	ResolveAgent(ctx context.Context, tenantID, channel, role string) (AgentMatch, bool, error)
}

// InboundProcessorConfig wires the pipeline's collaborators. Contacts,
// Sessions, Sender, and Runner are required. Agents, Replay, and Profiles are
// optional: without Agents every session is created unrouted, without Replay
// duplicate deliveries are processed again, without Profiles new contacts
// fall back to the sender identifier when the message carries no name.
type InboundProcessorConfig struct {
	Contacts ContactStore
	Sessions SessionStore
	Agents   AgentResolver
	Sender   ChannelSender
	Runner   AgentRunFunc
	Replay   ReplayClaimStore
	Profiles ProfileResolver
	Logger   Logger

	// AgentTimeout bounds the agent-run callback, ProcessTimeout bounds the
	// whole pipeline. Zero disables the bound. ReplayLease zero falls back to
	// the claim store default.
	AgentTimeout   time.Duration
	ProcessTimeout time.Duration
	ReplayLease    time.Duration
}

// InboundProcessor runs the inbound pipeline: channel gate, contact identity,
// advisory agent routing, session continuity, agent run, reply dispatch.
type InboundProcessor struct {
	contacts ContactStore
	sessions SessionStore
	agents   AgentResolver
	sender   ChannelSender
	runner   AgentRunFunc
	replay   ReplayClaimStore
	profiles ProfileResolver
	logger   Logger

	agentTimeout   time.Duration
	processTimeout time.Duration
	replayLease    time.Duration
}

func NewInboundProcessor(cfg InboundProcessorConfig) (*InboundProcessor, error) {
	if cfg.Contacts == nil {
		return nil, fmt.Errorf("core: contact store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("core: session store is required")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("core: channel sender is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("core: agent runner is required")
	}
	return &InboundProcessor{
		contacts:       cfg.Contacts,
		sessions:       cfg.Sessions,
		agents:         cfg.Agents,
		sender:         cfg.Sender,
		runner:         cfg.Runner,
		replay:         cfg.Replay,
		profiles:       cfg.Profiles,
		logger:         glog.Ensure(cfg.Logger),
		agentTimeout:   cfg.AgentTimeout,
		processTimeout: cfg.ProcessTimeout,
		replayLease:    cfg.ReplayLease,
	}, nil
}

// Process runs one inbound message through the pipeline. It never returns an
// error and never panics: every failure becomes a SendResult with Success
// false, logged with channel, sender, and message id context. Messages on
// channels outside the routable set are rejected before any state is created.
// Duplicate deliveries (same tenant, channel, and channel message id while a
// prior claim is live) are acknowledged without reprocessing.
func (p *InboundProcessor) Process(ctx context.Context, msg InboundMessage) SendResult {
	if p == nil {
		return FailedSend("core: inbound processor is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if p.processTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.processTimeout)
		defer cancel()
	}

	if err := msg.Validate(); err != nil {
		return p.fail(ctx, msg, "validate", err)
	}
	field, ok := ContactFieldForChannel(msg.Channel)
	if !ok {
		return p.fail(ctx, msg, "validate", fmt.Errorf("%w: %s", ErrChannelNotRoutable, msg.Channel))
	}

	claimID, duplicate := p.claim(ctx, msg)
	if duplicate {
		p.log(ctx, "info", "duplicate delivery dropped", p.messageFields(msg))
		return SendResult{Success: true}
	}

	result := p.execute(ctx, msg, field)
	p.settle(ctx, msg, claimID, result)
	return result
}

// execute runs steps two through seven. The recover guard turns collaborator
// panics into the same structured failure shape as ordinary errors.
func (p *InboundProcessor) execute(ctx context.Context, msg InboundMessage, field string) (result SendResult) {
	defer func() {
		if r := recover(); r != nil {
			result = p.fail(ctx, msg, "process", fmt.Errorf("core: inbound processing panicked: %v", r))
		}
	}()

	identifier := strings.TrimSpace(msg.SenderIdentifier)
	contact, found, err := p.contacts.FindByIdentifier(ctx, msg.TenantID, field, identifier)
	if err != nil {
		return p.fail(ctx, msg, "contact_lookup", fmt.Errorf("core: contact lookup failed: %w", err))
	}
	if !found {
		name := strings.TrimSpace(msg.SenderName)
		if name == "" {
			name = p.lookupProfileName(ctx, msg)
		}
		if name == "" {
			name = identifier
		}
		contact, err = p.contacts.Create(ctx, CreateContactInput{
			TenantID:   msg.TenantID,
			Name:       name,
			Identifier: ContactIdentifier{Field: field, Value: identifier},
		})
		if err != nil {
			return p.fail(ctx, msg, "contact_create", fmt.Errorf("core: contact create failed: %w", err))
		}
	}

	var agentID string
	var resolution ModeResolution
	if p.agents != nil {
		match, matched, err := p.agents.ResolveAgent(ctx, msg.TenantID, msg.Channel, contact.Role)
		switch {
		case err != nil:
			fields := p.messageFields(msg)
			fields["error"] = err.Error()
			p.log(ctx, "warn", "agent resolution failed", fields)
		case matched:
			agentID = match.Agent.ID
			resolution = match.Resolution
		}
	}

	session, found, err := p.findActiveSession(ctx, msg.TenantID, contact.ID)
	if err != nil {
		return p.fail(ctx, msg, "session_lookup", fmt.Errorf("core: session lookup failed: %w", err))
	}
	if !found {
		session, err = p.sessions.Create(ctx, CreateSessionInput{
			TenantID: msg.TenantID,
			Metadata: NewSessionMetadata(contact.ID, msg.Channel, agentID),
		})
		if err != nil {
			return p.fail(ctx, msg, "session_create", fmt.Errorf("core: session create failed: %w", err))
		}
	}

	runCtx := ctx
	if p.agentTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.agentTimeout)
		defer cancel()
	}
	response, err := p.runner(runCtx, AgentRun{
		TenantID:    msg.TenantID,
		SessionID:   session.ID,
		ContactID:   contact.ID,
		AgentID:     agentID,
		Channel:     msg.Channel,
		ContactRole: contact.Role,
		Message:     msg.Content,
		Mode:        resolution,
	})
	if err != nil {
		return p.fail(ctx, msg, "agent_run", fmt.Errorf("core: agent run failed: %w", err))
	}
	if strings.TrimSpace(response.Response) == "" {
		p.log(ctx, "info", "agent returned no reply", p.messageFields(msg))
		return SendResult{Success: true}
	}

	result = p.sender.Send(ctx, msg.TenantID, msg.Channel, OutboundMessage{
		Recipient:               msg.SenderIdentifier,
		Content:                 response.Response,
		ReplyToChannelMessageID: msg.ChannelMessageID,
	})
	if !result.Success {
		fields := p.messageFields(msg)
		fields["stage"] = "dispatch"
		fields["error"] = result.Error
		p.log(ctx, "error", "inbound processing failed", fields)
	}
	return result
}

// lookupProfileName asks the profile resolver for a display name before a new
// contact is created under its bare identifier. Advisory: failures log at
// debug and the pipeline moves on.
func (p *InboundProcessor) lookupProfileName(ctx context.Context, msg InboundMessage) string {
	if p.profiles == nil {
		return ""
	}
	profile, err := p.profiles.ResolveProfile(ctx, msg.TenantID, msg)
	if err != nil {
		fields := p.messageFields(msg)
		fields["error"] = err.Error()
		p.log(ctx, "debug", "sender profile unavailable", fields)
		return ""
	}
	return strings.TrimSpace(profile.DisplayName)
}

// claim reserves the delivery's replay key. Claim errors fail open: the
// delivery proceeds unguarded with an empty claim id.
func (p *InboundProcessor) claim(ctx context.Context, msg InboundMessage) (string, bool) {
	if p.replay == nil || strings.TrimSpace(msg.ChannelMessageID) == "" {
		return "", false
	}
	key := ReplayKey(msg.TenantID, msg.Channel, msg.ChannelMessageID)
	claimID, accepted, err := p.replay.Claim(ctx, key, p.replayLease)
	if err != nil {
		fields := p.messageFields(msg)
		fields["error"] = err.Error()
		p.log(ctx, "warn", "replay claim failed", fields)
		return "", false
	}
	if !accepted {
		return "", true
	}
	return claimID, false
}

func (p *InboundProcessor) settle(ctx context.Context, msg InboundMessage, claimID string, result SendResult) {
	if p.replay == nil || claimID == "" {
		return
	}
	var err error
	if result.Success {
		err = p.replay.Complete(ctx, claimID)
	} else {
		err = p.replay.Fail(ctx, claimID, errors.New(result.Error), time.Time{})
	}
	if err != nil {
		fields := p.messageFields(msg)
		fields["error"] = err.Error()
		p.log(ctx, "warn", "replay settle failed", fields)
	}
}

func (p *InboundProcessor) findActiveSession(ctx context.Context, tenantID, contactID string) (Session, bool, error) {
	sessions, err := p.sessions.ListActiveByTenant(ctx, tenantID)
	if err != nil {
		return Session{}, false, err
	}
	for _, session := range sessions {
		if session.Status != SessionStatusActive {
			continue
		}
		if session.ContactID() == contactID {
			return session, true, nil
		}
	}
	return Session{}, false, nil
}

func (p *InboundProcessor) fail(ctx context.Context, msg InboundMessage, stage string, err error) SendResult {
	fields := p.messageFields(msg)
	fields["stage"] = stage
	fields["error"] = err.Error()
	p.log(ctx, "error", "inbound processing failed", fields)
	return FailedSend(err.Error())
}

func (p *InboundProcessor) log(ctx context.Context, level, message string, fields map[string]any) {
	logWithLevel(ctx, p.logger, level, message, fields)
}

func (p *InboundProcessor) messageFields(msg InboundMessage) map[string]any {
	return map[string]any{
		"channel":            msg.Channel,
		"tenant_id":          msg.TenantID,
		"sender_identifier":  msg.SenderIdentifier,
		"channel_message_id": msg.ChannelMessageID,
	}
}
