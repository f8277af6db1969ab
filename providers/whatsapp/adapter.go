// Package whatsapp adapts the WhatsApp Business Cloud API to the messaging
// channel contract. Sends go through the Graph messages endpoint; inbound
// webhook payloads are normalized, with delivery-status callbacks filtered
// out. Signature and subscribe-challenge helpers are exported for the
// webhook transport that fronts this adapter.
package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/marianoberton/go-messaging/core"
	"github.com/marianoberton/go-messaging/transport"
)

// Channel is the routing key this adapter registers under.
const Channel = core.ChannelWhatsApp

// DefaultBaseURL points at the Graph API version this adapter is written
// against.
const DefaultBaseURL = "https://graph.facebook.com/v21.0"

const maxErrorBodyBytes = 2048

// Config carries one tenant's Cloud API settings. AppSecret and VerifyToken
// are only needed by the webhook verification helpers.
type Config struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	HTTPClient    *http.Client
	Logger        core.Logger
}

// Adapter sends and parses messages for a single WhatsApp business number.
type Adapter struct {
	phoneNumberID string
	baseURL       string
	rest          *transport.Client
	logger        core.Logger
}

func New(cfg Config) (*Adapter, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, fmt.Errorf("whatsapp: access token is required")
	}
	phoneNumberID := strings.TrimSpace(cfg.PhoneNumberID)
	if phoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp: phone number id is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	rest := transport.NewClient(httpClient)
	rest.DefaultHeaders["Authorization"] = "Bearer " + token
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	return &Adapter{
		phoneNumberID: phoneNumberID,
		baseURL:       baseURL,
		rest:          rest,
		logger:        logger,
	}, nil
}

func (a *Adapter) Channel() string { return Channel }

type textBody struct {
	Body string `json:"body"`
}

type messageContext struct {
	MessageID string `json:"message_id"`
}

type sendPayload struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Text             textBody        `json:"text"`
	Context          *messageContext `json:"context,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Send posts one text message to the recipient's phone number. A reply id
// rides in the payload context so the provider threads the message.
func (a *Adapter) Send(ctx context.Context, msg core.OutboundMessage) core.SendResult {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return core.FailedSend("whatsapp: message content is empty")
	}
	to := strings.TrimSpace(msg.Recipient)
	if to == "" {
		return core.FailedSend("whatsapp: recipient phone is required")
	}

	payload := sendPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: content},
	}
	if replyTo := strings.TrimSpace(msg.ReplyToChannelMessageID); replyTo != "" {
		payload.Context = &messageContext{MessageID: replyTo}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return core.FailedSend(fmt.Sprintf("whatsapp: encode payload: %v", err))
	}

	resp, err := a.rest.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     fmt.Sprintf("%s/%s/messages", a.baseURL, a.phoneNumberID),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return core.FailedSend(fmt.Sprintf("whatsapp: send to %s failed: %v", to, err))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		result := core.FailedSend(fmt.Sprintf("whatsapp: graph api returned %d: %s", resp.StatusCode, trimBody(resp.Body)))
		result.StatusCode = resp.StatusCode
		result.RetryAfter = retryAfterHint(resp)
		return result
	}

	var decoded sendResponse
	if err := json.Unmarshal(resp.Body, &decoded); err == nil && len(decoded.Messages) > 0 {
		return core.SendResult{Success: true, ChannelMessageID: decoded.Messages[0].ID}
	}
	return core.SendResult{Success: true}
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From      string    `json:"from"`
					ID        string    `json:"id"`
					Timestamp string    `json:"timestamp"`
					Type      string    `json:"type"`
					Text      *textBody `json:"text"`
					Context   *struct {
						ID string `json:"id"`
					} `json:"context"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseInbound normalizes the first text message in a webhook delivery.
// Status callbacks carry no messages array and produce no envelope; media
// and reaction messages are skipped until a text message is found.
func (a *Adapter) ParseInbound(payload []byte) (core.InboundMessage, bool) {
	var decoded webhookPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return core.InboundMessage{}, false
	}

	for _, entry := range decoded.Entry {
		for _, change := range entry.Changes {
			names := map[string]string{}
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.Text == nil {
					continue
				}
				content := strings.TrimSpace(msg.Text.Body)
				if content == "" {
					continue
				}
				inbound := core.InboundMessage{
					Channel:          Channel,
					ChannelMessageID: msg.ID,
					SenderIdentifier: msg.From,
					SenderName:       names[msg.From],
					Content:          content,
					RawPayload:       payload,
					ReceivedAt:       parseTimestamp(msg.Timestamp),
				}
				if msg.Context != nil {
					inbound.ReplyToChannelMessageID = msg.Context.ID
				}
				return inbound, true
			}
		}
	}
	return core.InboundMessage{}, false
}

// IsHealthy probes the phone-number node with the configured credential.
func (a *Adapter) IsHealthy(ctx context.Context) bool {
	resp, err := a.rest.Do(ctx, transport.Request{
		URL:   fmt.Sprintf("%s/%s", a.baseURL, a.phoneNumberID),
		Query: map[string]string{"fields": "id"},
	})
	if err != nil {
		return false
	}
	return resp.StatusCode == http.StatusOK
}

func parseTimestamp(raw string) time.Time {
	seconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(seconds, 0).UTC()
}

func trimBody(raw []byte) string {
	if len(raw) > maxErrorBodyBytes {
		raw = raw[:maxErrorBodyBytes]
	}
	return strings.TrimSpace(string(raw))
}

// retryAfterHint reads the Retry-After header Meta attaches to throttled
// responses. Both the seconds form and the HTTP-date form appear in the wild.
func retryAfterHint(resp transport.Response) time.Duration {
	raw := resp.Header("Retry-After")
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

// VerifySignature checks the X-Hub-Signature-256 header against the raw
// request body. The header carries "sha256=" plus the hex HMAC digest keyed
// with the app secret.
func VerifySignature(appSecret string, body []byte, header string) bool {
	if strings.TrimSpace(appSecret) == "" {
		return false
	}
	provided, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(provided)))
}

// VerifyChallenge answers the subscribe handshake Meta performs when a
// webhook is registered. It returns the challenge to echo back and whether
// the verify token matched.
func VerifyChallenge(verifyToken string, query url.Values) (string, bool) {
	if query.Get("hub.mode") != "subscribe" {
		return "", false
	}
	if strings.TrimSpace(verifyToken) == "" || query.Get("hub.verify_token") != verifyToken {
		return "", false
	}
	return query.Get("hub.challenge"), true
}

// Factory builds tenant-scoped Cloud API adapters. The access token lives in
// credentials; the phone number id is a plain setting on the integration.
type Factory struct{}

func NewFactory() Factory { return Factory{} }

func (Factory) Channel() string { return Channel }

func (Factory) Build(_ context.Context, cfg core.AdapterConfig) (core.ChannelAdapter, error) {
	token := cfg.Credentials["access_token"]
	if strings.TrimSpace(token) == "" {
		token = cfg.Credentials["token"]
	}
	phoneNumberID, _ := cfg.Settings["phone_number_id"].(string)
	baseURL, _ := cfg.Settings["base_url"].(string)
	return New(Config{
		AccessToken:   token,
		PhoneNumberID: phoneNumberID,
		BaseURL:       baseURL,
		Logger:        cfg.Logger,
	})
}

var (
	_ core.ChannelAdapter = (*Adapter)(nil)
	_ core.AdapterFactory = Factory{}
)
