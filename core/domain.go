package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidIntegrationStatusTransition = errors.New("core: invalid integration status transition")
	ErrInvalidSessionStatusTransition     = errors.New("core: invalid session status transition")
	ErrIntegrationNotFound                = errors.New("core: integration not found")
	ErrContactNotFound                    = errors.New("core: contact not found")
	ErrSessionNotFound                    = errors.New("core: session not found")
	ErrAgentNotFound                      = errors.New("core: agent not found")
	ErrChannelNotRoutable                 = errors.New("core: channel is not routable")
	ErrQueueEmpty                         = errors.New("core: outbound queue is empty")
)

// Channel identifiers for the providers shipped with this module. Callers may
// register adapters under additional names; these constants only cover the
// built-in set.
const (
	ChannelTelegram = "telegram"
	ChannelWhatsApp = "whatsapp"
	ChannelSlack    = "slack"
	ChannelChatHub  = "chathub"
)

// Structural contact identifier fields. Each routable channel maps its sender
// identifier onto exactly one of these columns.
const (
	ContactFieldPhone      = "phone"
	ContactFieldTelegramID = "telegram_id"
	ContactFieldSlackID    = "slack_id"
	ContactFieldEmail      = "email"
)

var channelContactFields = map[string]string{
	ChannelTelegram: ContactFieldTelegramID,
	ChannelWhatsApp: ContactFieldPhone,
	ChannelSlack:    ContactFieldSlackID,
	ChannelChatHub:  ContactFieldEmail,
}

// BaseChannel strips a composite qualifier ("slack:C024BE91L" -> "slack").
// Only the provider segment is normalized; qualifiers stay opaque.
func BaseChannel(channel string) string {
	base, _, _ := strings.Cut(channel, ":")
	return strings.ToLower(strings.TrimSpace(base))
}

// ChannelSupportsIntegrations reports whether the channel participates in the
// per-tenant integration model. The inbound pipeline rejects channels outside
// this set before creating any state.
func ChannelSupportsIntegrations(channel string) bool {
	_, ok := channelContactFields[BaseChannel(channel)]
	return ok
}

// ContactFieldForChannel maps a channel onto the structural contact column its
// sender identifiers are stored in.
func ContactFieldForChannel(channel string) (string, bool) {
	field, ok := channelContactFields[BaseChannel(channel)]
	return field, ok
}

type IntegrationStatus string

const (
	IntegrationStatusActive IntegrationStatus = "active"
	IntegrationStatusPaused IntegrationStatus = "paused"
)

// IntegrationConfig carries a tenant's provider settings. CredentialRefs maps
// logical credential names onto secret store keys; nothing under Settings is
// treated as secret.
type IntegrationConfig struct {
	CredentialRefs map[string]string `json:"credential_refs,omitempty"`
	Settings       map[string]any    `json:"settings,omitempty"`
}

// Integration is a tenant's configuration for one channel provider. Lookups
// consult at most one row per (tenant, provider); a paused or absent row means
// "not configured", never an error.
type Integration struct {
	ID                string
	TenantID          string
	Provider          string
	ProviderAccountID string
	Config            IntegrationConfig
	Status            IntegrationStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (i *Integration) TransitionTo(status IntegrationStatus, now time.Time) error {
	if i == nil {
		return nil
	}
	if i.Status == status {
		i.UpdatedAt = now
		return nil
	}
	if !integrationTransitionAllowed(i.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidIntegrationStatusTransition, i.Status, status)
	}
	i.Status = status
	i.UpdatedAt = now
	return nil
}

func integrationTransitionAllowed(current, next IntegrationStatus) bool {
	allowed := map[IntegrationStatus]map[IntegrationStatus]struct{}{
		IntegrationStatusActive: {
			IntegrationStatusPaused: {},
		},
		IntegrationStatusPaused: {
			IntegrationStatusActive: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// Contact is an external party scoped to a tenant, identified by one
// channel-specific identifier column. Contacts are created lazily on first
// inbound message and never deleted by this pipeline.
type Contact struct {
	ID         string
	TenantID   string
	Name       string
	Phone      string
	TelegramID string
	SlackID    string
	Email      string
	Role       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Identifier returns the value stored under a structural field name.
func (c Contact) Identifier(field string) string {
	switch field {
	case ContactFieldPhone:
		return c.Phone
	case ContactFieldTelegramID:
		return c.TelegramID
	case ContactFieldSlackID:
		return c.SlackID
	case ContactFieldEmail:
		return c.Email
	default:
		return ""
	}
}

type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusClosed  SessionStatus = "closed"
	SessionStatusExpired SessionStatus = "expired"
)

// Session metadata keys. Metadata travels as a plain map so stores persist it
// as JSON without a schema change per key.
const (
	SessionMetaContactID = "contact_id"
	SessionMetaChannel   = "channel"
	SessionMetaAgentID   = "agent_id"
)

// Session is a bounded unit of conversation between a tenant's agents and a
// contact. At most one active session per contact is expected, enforced only
// by the pipeline's best-effort scan, not a hard constraint.
type Session struct {
	ID        string
	TenantID  string
	Status    SessionStatus
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContactID reads the owning contact from metadata, tolerating the value
// types a JSON round trip produces.
func (s Session) ContactID() string {
	return metadataString(s.Metadata, SessionMetaContactID)
}

func (s Session) Channel() string {
	return metadataString(s.Metadata, SessionMetaChannel)
}

// AgentID is empty when routing resolved no agent for the session.
func (s Session) AgentID() string {
	return metadataString(s.Metadata, SessionMetaAgentID)
}

func (s *Session) TransitionTo(status SessionStatus, now time.Time) error {
	if s == nil {
		return nil
	}
	if s.Status == status {
		s.UpdatedAt = now
		return nil
	}
	if !sessionTransitionAllowed(s.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidSessionStatusTransition, s.Status, status)
	}
	s.Status = status
	s.UpdatedAt = now
	return nil
}

func sessionTransitionAllowed(current, next SessionStatus) bool {
	allowed := map[SessionStatus]map[SessionStatus]struct{}{
		SessionStatusActive: {
			SessionStatusClosed:  {},
			SessionStatusExpired: {},
		},
		SessionStatusExpired: {
			SessionStatusClosed: {},
		},
		SessionStatusClosed: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// NewSessionMetadata builds the metadata the pipeline stamps on sessions it
// creates. agentID is omitted when routing resolved no agent.
func NewSessionMetadata(contactID, channel, agentID string) map[string]any {
	metadata := map[string]any{
		SessionMetaContactID: contactID,
		SessionMetaChannel:   channel,
	}
	if agentID != "" {
		metadata[SessionMetaAgentID] = agentID
	}
	return metadata
}

type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusInactive AgentStatus = "inactive"
)

// AgentMode is one named operating configuration of an agent. ChannelMapping
// holds ordered match patterns ("<channel>", "<channel>:<conversationId>",
// "<channel>:<role>") compared by exact string equality after trimming.
type AgentMode struct {
	Name            string            `json:"name"`
	ChannelMapping  []string          `json:"channel_mapping,omitempty"`
	ToolAllowlist   []string          `json:"tool_allowlist,omitempty"`
	PromptOverrides map[string]string `json:"prompt_overrides,omitempty"`
	SubTools        []string          `json:"sub_tools,omitempty"`
}

// Agent is a tenant-scoped conversational agent. An agent with zero modes is
// a legacy single-mode agent and is never selected by channel routing.
type Agent struct {
	ID            string
	TenantID      string
	Name          string
	Status        AgentStatus
	ToolAllowlist []string
	Modes         []AgentMode
	Position      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ModeBase names the fallback resolution used when no mode claims a channel.
const ModeBase = "base"

// ModeResolution is the effective operating mode for one inbound message.
// PromptOverrides is nil when the base mode applies.
type ModeResolution struct {
	Mode            string
	ToolAllowlist   []string
	PromptOverrides map[string]string
	SubTools        []string
}

// Base reports whether the resolution fell through to the agent's base mode.
func (r ModeResolution) Base() bool {
	return r.Mode == ModeBase
}

// InboundMessage is the normalized envelope adapters produce from raw
// provider payloads, and the only artifact they are allowed to produce.
// SenderIdentifier doubles as the channel-native reply address.
type InboundMessage struct {
	ID                      string
	Channel                 string
	ChannelMessageID        string
	TenantID                string
	SenderIdentifier        string
	SenderName              string
	Content                 string
	ReplyToChannelMessageID string
	RawPayload              []byte
	ReceivedAt              time.Time
}

func (m InboundMessage) Validate() error {
	if strings.TrimSpace(m.Channel) == "" {
		return fmt.Errorf("core: inbound message channel is required")
	}
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("core: inbound message tenant_id is required")
	}
	if strings.TrimSpace(m.SenderIdentifier) == "" {
		return fmt.Errorf("core: inbound message sender_identifier is required")
	}
	return nil
}

// OutboundMessage is a normalized send request. Recipient is the
// channel-native address: chat id, phone, conversation id, or visitor email.
type OutboundMessage struct {
	Recipient               string
	Content                 string
	ReplyToChannelMessageID string
	Metadata                map[string]any
}

// SendResult is the provider-agnostic outcome of a dispatch. Adapters capture
// every failure here; they never return errors and never panic.
// StatusCode and RetryAfter carry provider push-back when the adapter saw an
// HTTP response; zero means the adapter had nothing to report.
type SendResult struct {
	Success          bool
	ChannelMessageID string
	Error            string
	StatusCode       int
	RetryAfter       time.Duration
}

// FailedSend builds the structured failure shape used across the pipeline.
func FailedSend(message string) SendResult {
	return SendResult{Success: false, Error: message}
}

// metadataString tolerates the scalar types JSON decoding and loose callers
// put into metadata maps.
func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	raw, ok := metadata[key]
	if !ok || raw == nil {
		return ""
	}
	switch value := raw.(type) {
	case string:
		return value
	case fmt.Stringer:
		return value.String()
	case int:
		return fmt.Sprintf("%d", value)
	case int64:
		return fmt.Sprintf("%d", value)
	case float64:
		if value == float64(int64(value)) {
			return fmt.Sprintf("%d", int64(value))
		}
		return fmt.Sprintf("%v", value)
	default:
		return fmt.Sprintf("%v", value)
	}
}
