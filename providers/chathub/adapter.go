// Package chathub adapts a conversation-hub REST API to the messaging
// channel contract. Hub visitors are identified by email; replies resolve
// the visitor's open conversation under the tenant's numeric account and
// post an outgoing message into it. Webhook payloads are filtered to
// incoming conversational messages.
package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/marianoberton/go-messaging/core"
	"github.com/marianoberton/go-messaging/transport"
)

// Channel is the routing key this adapter registers under.
const Channel = core.ChannelChatHub

const maxErrorBodyBytes = 2048

// Config carries one tenant's hub settings. BaseURL points at the hub
// installation; AccountID scopes every request.
type Config struct {
	BaseURL    string
	AccountID  string
	APIToken   string
	HTTPClient *http.Client
	Logger     core.Logger
}

// Adapter sends and parses messages for one hub account.
type Adapter struct {
	baseURL   string
	accountID string
	rest      *transport.Client
	logger    core.Logger
}

func New(cfg Config) (*Adapter, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("chathub: base url is required")
	}
	accountID := strings.TrimSpace(cfg.AccountID)
	if accountID == "" {
		return nil, fmt.Errorf("chathub: account id is required")
	}
	token := strings.TrimSpace(cfg.APIToken)
	if token == "" {
		return nil, fmt.Errorf("chathub: api token is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	rest := transport.NewClient(httpClient)
	rest.DefaultHeaders["api_access_token"] = token
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	return &Adapter{
		baseURL:   baseURL,
		accountID: accountID,
		rest:      rest,
		logger:    logger,
	}, nil
}

func (a *Adapter) Channel() string { return Channel }

type hubContact struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Thumbnail string `json:"thumbnail"`
}

type hubConversation struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type contactSearchResponse struct {
	Payload []hubContact `json:"payload"`
}

type conversationListResponse struct {
	Payload []hubConversation `json:"payload"`
}

type outgoingMessage struct {
	Content           string         `json:"content"`
	MessageType       string         `json:"message_type"`
	ContentAttributes map[string]any `json:"content_attributes,omitempty"`
}

type postedMessage struct {
	ID int64 `json:"id"`
}

// Send replies to a hub visitor addressed by email. The visitor's contact is
// resolved first, then their most recent open conversation; a reply id rides
// in the message's content attributes. New conversations are never opened
// here, replies ride the conversation the inbound message arrived on.
func (a *Adapter) Send(ctx context.Context, msg core.OutboundMessage) core.SendResult {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return core.FailedSend("chathub: message content is empty")
	}
	email := strings.TrimSpace(msg.Recipient)
	if email == "" {
		return core.FailedSend("chathub: recipient email is required")
	}

	contact, err := a.findContact(ctx, email)
	if err != nil {
		return hubFailure(fmt.Sprintf("chathub: resolve contact %s: %v", email, err), err)
	}
	conversation, err := a.findOpenConversation(ctx, contact.ID)
	if err != nil {
		return hubFailure(fmt.Sprintf("chathub: resolve conversation for %s: %v", email, err), err)
	}

	payload := outgoingMessage{Content: content, MessageType: "outgoing"}
	if replyTo := strings.TrimSpace(msg.ReplyToChannelMessageID); replyTo != "" {
		if id, convErr := strconv.ParseInt(replyTo, 10, 64); convErr == nil {
			payload.ContentAttributes = map[string]any{"in_reply_to": id}
		}
	}

	posted, err := a.postMessage(ctx, conversation.ID, payload)
	if err != nil {
		return hubFailure(fmt.Sprintf("chathub: post to conversation %d failed: %v", conversation.ID, err), err)
	}
	return core.SendResult{Success: true, ChannelMessageID: strconv.FormatInt(posted.ID, 10)}
}

// hubError preserves the hub's status line for the outbound throttle while
// keeping the plain "hub returned" message callers already format.
type hubError struct {
	status     int
	retryAfter time.Duration
	body       string
}

func (e *hubError) Error() string {
	return fmt.Sprintf("hub returned %d: %s", e.status, e.body)
}

func hubFailure(message string, err error) core.SendResult {
	result := core.FailedSend(message)
	var hubErr *hubError
	if errors.As(err, &hubErr) {
		result.StatusCode = hubErr.status
		result.RetryAfter = hubErr.retryAfter
	}
	return result
}

func (a *Adapter) findContact(ctx context.Context, email string) (hubContact, error) {
	endpoint := fmt.Sprintf("%s/api/v1/accounts/%s/contacts/search", a.baseURL, a.accountID)
	var decoded contactSearchResponse
	if err := a.getJSON(ctx, endpoint, map[string]string{"q": email}, &decoded); err != nil {
		return hubContact{}, err
	}
	for _, contact := range decoded.Payload {
		if strings.EqualFold(contact.Email, email) {
			return contact, nil
		}
	}
	return hubContact{}, fmt.Errorf("no hub contact matches")
}

func (a *Adapter) findOpenConversation(ctx context.Context, contactID int64) (hubConversation, error) {
	endpoint := fmt.Sprintf("%s/api/v1/accounts/%s/contacts/%d/conversations", a.baseURL, a.accountID, contactID)
	var decoded conversationListResponse
	if err := a.getJSON(ctx, endpoint, nil, &decoded); err != nil {
		return hubConversation{}, err
	}
	for _, conversation := range decoded.Payload {
		if conversation.Status == "open" {
			return conversation, nil
		}
	}
	if len(decoded.Payload) > 0 {
		return decoded.Payload[0], nil
	}
	return hubConversation{}, fmt.Errorf("no conversation exists")
}

func (a *Adapter) postMessage(ctx context.Context, conversationID int64, payload outgoingMessage) (postedMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return postedMessage{}, err
	}
	resp, err := a.rest.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     fmt.Sprintf("%s/api/v1/accounts/%s/conversations/%d/messages", a.baseURL, a.accountID, conversationID),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return postedMessage{}, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return postedMessage{}, newHubError(resp)
	}
	var decoded postedMessage
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return postedMessage{}, fmt.Errorf("decode hub response: %w", err)
	}
	return decoded, nil
}

func (a *Adapter) getJSON(ctx context.Context, endpoint string, query map[string]string, out any) error {
	resp, err := a.rest.Do(ctx, transport.Request{URL: endpoint, Query: query})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return newHubError(resp)
	}
	return json.Unmarshal(resp.Body, out)
}

func newHubError(resp transport.Response) *hubError {
	err := &hubError{status: resp.StatusCode, body: trimBody(resp.Body)}
	if raw := resp.Header("Retry-After"); raw != "" {
		if seconds, parseErr := strconv.Atoi(raw); parseErr == nil && seconds > 0 {
			err.retryAfter = time.Duration(seconds) * time.Second
		}
	}
	return err
}

func trimBody(raw []byte) string {
	if len(raw) > maxErrorBodyBytes {
		raw = raw[:maxErrorBodyBytes]
	}
	return strings.TrimSpace(string(raw))
}

type webhookPayload struct {
	Event             string          `json:"event"`
	ID                int64           `json:"id"`
	Content           string          `json:"content"`
	MessageType       string          `json:"message_type"`
	Private           bool            `json:"private"`
	CreatedAt         json.RawMessage `json:"created_at"`
	ContentAttributes struct {
		InReplyTo int64 `json:"in_reply_to"`
	} `json:"content_attributes"`
	Sender struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"sender"`
	Conversation struct {
		ID int64 `json:"id"`
	} `json:"conversation"`
	Account struct {
		ID int64 `json:"id"`
	} `json:"account"`
}

// ParseInbound normalizes a message_created webhook. Outgoing echoes, agent
// private notes, other event kinds, and visitors without an email identity
// produce no envelope.
func (a *Adapter) ParseInbound(payload []byte) (core.InboundMessage, bool) {
	var decoded webhookPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return core.InboundMessage{}, false
	}
	if decoded.Event != "message_created" || decoded.MessageType != "incoming" || decoded.Private {
		return core.InboundMessage{}, false
	}
	content := strings.TrimSpace(decoded.Content)
	if content == "" {
		return core.InboundMessage{}, false
	}
	email := strings.TrimSpace(decoded.Sender.Email)
	if email == "" {
		return core.InboundMessage{}, false
	}

	inbound := core.InboundMessage{
		Channel:          Channel,
		ChannelMessageID: strconv.FormatInt(decoded.ID, 10),
		SenderIdentifier: email,
		SenderName:       decoded.Sender.Name,
		Content:          content,
		RawPayload:       payload,
		ReceivedAt:       parseHubTime(decoded.CreatedAt),
	}
	if decoded.ContentAttributes.InReplyTo != 0 {
		inbound.ReplyToChannelMessageID = strconv.FormatInt(decoded.ContentAttributes.InReplyTo, 10)
	}
	return inbound, true
}

// IsHealthy validates the API token against the hub profile endpoint.
func (a *Adapter) IsHealthy(ctx context.Context) bool {
	resp, err := a.rest.Do(ctx, transport.Request{
		URL: fmt.Sprintf("%s/api/v1/profile", a.baseURL),
	})
	if err != nil {
		return false
	}
	return resp.StatusCode == http.StatusOK
}

// FetchProfile resolves the sender's hub contact record by email. Used when
// an inbound webhook arrives without a usable sender name.
func (a *Adapter) FetchProfile(ctx context.Context, msg core.InboundMessage) (core.ContactProfile, error) {
	email := strings.TrimSpace(msg.SenderIdentifier)
	if email == "" {
		return core.ContactProfile{}, fmt.Errorf("chathub: sender email is required")
	}
	contact, err := a.findContact(ctx, email)
	if err != nil {
		return core.ContactProfile{}, err
	}
	return core.ContactProfile{
		DisplayName: strings.TrimSpace(contact.Name),
		AvatarURL:   strings.TrimSpace(contact.Thumbnail),
	}, nil
}

// parseHubTime accepts the two timestamp shapes hub webhooks emit: unix
// seconds and RFC 3339 strings.
func parseHubTime(raw json.RawMessage) time.Time {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return time.Now().UTC()
	}
	if seconds, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC()
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if parsed, err := time.Parse(time.RFC3339, text); err == nil {
			return parsed.UTC()
		}
	}
	return time.Now().UTC()
}

// Factory builds account-scoped hub adapters. The API token lives in
// credentials; base url and account id are plain settings.
type Factory struct{}

func NewFactory() Factory { return Factory{} }

func (Factory) Channel() string { return Channel }

func (Factory) Build(_ context.Context, cfg core.AdapterConfig) (core.ChannelAdapter, error) {
	token := cfg.Credentials["api_key"]
	if strings.TrimSpace(token) == "" {
		token = cfg.Credentials["api_token"]
	}
	baseURL, _ := cfg.Settings["base_url"].(string)
	return New(Config{
		BaseURL:    baseURL,
		AccountID:  settingString(cfg.Settings, "account_id"),
		APIToken:   token,
		Logger:     cfg.Logger,
	})
}

// settingString tolerates the numeric account ids JSON decoding produces.
func settingString(settings map[string]any, key string) string {
	switch value := settings[key].(type) {
	case string:
		return value
	case float64:
		return strconv.FormatInt(int64(value), 10)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	default:
		return ""
	}
}

var (
	_ core.ChannelAdapter = (*Adapter)(nil)
	_ core.ProfileFetcher = (*Adapter)(nil)
	_ core.AdapterFactory = Factory{}
)
