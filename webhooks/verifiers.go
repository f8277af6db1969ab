package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	slackapi "github.com/slack-go/slack"

	"github.com/marianoberton/go-messaging/core"
	slackchannel "github.com/marianoberton/go-messaging/providers/slack"
	"github.com/marianoberton/go-messaging/providers/whatsapp"
)

// SecretFunc resolves one tenant's webhook secret. Verifiers call it per
// delivery so rotated secrets take effect without a restart.
type SecretFunc func(ctx context.Context, tenantID string) (string, error)

// SecretFromStore builds a SecretFunc over the shared secret store.
func SecretFromStore(store core.SecretStore, key string) SecretFunc {
	return func(ctx context.Context, tenantID string) (string, error) {
		if store == nil {
			return "", fmt.Errorf("webhooks: secret store is not configured")
		}
		return store.Get(ctx, tenantID, key)
	}
}

// StaticSecret builds a SecretFunc returning the same value for every
// tenant. Meant for tests and single-tenant setups.
func StaticSecret(secret string) SecretFunc {
	return func(context.Context, string) (string, error) {
		return secret, nil
	}
}

// Verifier authenticates one delivery against the tenant's secret.
type Verifier interface {
	Verify(ctx context.Context, tenantID string, delivery Delivery) error
}

// HeaderHMACVerifier checks an HMAC-SHA256 body signature carried in a
// header, optionally behind a scheme prefix. Encoding selects how the header
// encodes the digest: hex (default) or base64.
type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Encoding string
	Secret   SecretFunc
}

func (v HeaderHMACVerifier) Verify(ctx context.Context, tenantID string, delivery Delivery) error {
	header := strings.TrimSpace(headerValue(delivery.Headers, v.Header))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret, err := v.resolveSecret(ctx, tenantID)
	if err != nil {
		return err
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(delivery.Body)
	expected := mac.Sum(nil)

	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode base64 signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("webhooks: signature verification failed")
		}
	default:
		decoded, err := hex.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode hex signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("webhooks: signature verification failed")
		}
	}
	return nil
}

func (v HeaderHMACVerifier) resolveSecret(ctx context.Context, tenantID string) (string, error) {
	if v.Secret == nil {
		return "", fmt.Errorf("webhooks: signature secret is required")
	}
	secret, err := v.Secret(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("webhooks: resolve signature secret: %w", err)
	}
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("webhooks: signature secret is required")
	}
	return secret, nil
}

// HeaderTokenVerifier compares a shared token header in constant time.
// Telegram's X-Telegram-Bot-Api-Secret-Token uses this shape.
type HeaderTokenVerifier struct {
	Header string
	Secret SecretFunc
}

func (v HeaderTokenVerifier) Verify(ctx context.Context, tenantID string, delivery Delivery) error {
	if v.Secret == nil {
		return fmt.Errorf("webhooks: verification token is required")
	}
	expected, err := v.Secret(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("webhooks: resolve verification token: %w", err)
	}
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return fmt.Errorf("webhooks: verification token is required")
	}
	actual := strings.TrimSpace(headerValue(delivery.Headers, v.Header))
	if actual == "" {
		return fmt.Errorf("webhooks: %s verification header is required", strings.TrimSpace(v.Header))
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("webhooks: verification token mismatch")
	}
	return nil
}

// SlackSignatureVerifier checks Slack's v0 signing scheme, including the
// replay-window timestamp check.
type SlackSignatureVerifier struct {
	Secret SecretFunc
}

func (v SlackSignatureVerifier) Verify(ctx context.Context, tenantID string, delivery Delivery) error {
	if v.Secret == nil {
		return fmt.Errorf("webhooks: signing secret is required")
	}
	secret, err := v.Secret(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("webhooks: resolve signing secret: %w", err)
	}
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("webhooks: signing secret is required")
	}

	header := http.Header{}
	for key, value := range delivery.Headers {
		header.Set(key, value)
	}
	verifier, err := slackapi.NewSecretsVerifier(header, secret)
	if err != nil {
		return fmt.Errorf("webhooks: slack verifier: %w", err)
	}
	if _, err := verifier.Write(delivery.Body); err != nil {
		return fmt.Errorf("webhooks: slack verifier: %w", err)
	}
	if err := verifier.Ensure(); err != nil {
		return fmt.Errorf("webhooks: signature verification failed: %w", err)
	}
	return nil
}

// DefaultVerifiers wires the built-in channels to their provider's signing
// scheme, with per-tenant secrets under the conventional keys.
func DefaultVerifiers(secrets core.SecretStore) map[string]Verifier {
	return map[string]Verifier{
		core.ChannelWhatsApp: HeaderHMACVerifier{
			Header: "X-Hub-Signature-256",
			Prefix: "sha256=",
			Secret: SecretFromStore(secrets, "app_secret"),
		},
		core.ChannelTelegram: HeaderTokenVerifier{
			Header: "X-Telegram-Bot-Api-Secret-Token",
			Secret: SecretFromStore(secrets, "webhook_secret"),
		},
		core.ChannelSlack: SlackSignatureVerifier{
			Secret: SecretFromStore(secrets, "signing_secret"),
		},
		core.ChannelChatHub: HeaderHMACVerifier{
			Header: "X-ChatHub-Signature",
			Secret: SecretFromStore(secrets, "hmac_token"),
		},
	}
}

// WhatsAppChallenge answers Meta's hub.challenge subscription handshake. The
// handshake arrives as a GET with no payload, so the tenant must come from
// the webhook URL.
func WhatsAppChallenge(verifyToken SecretFunc) ChallengeFunc {
	return func(ctx context.Context, delivery Delivery) (string, bool, error) {
		if delivery.Query["hub.mode"] != "subscribe" {
			return "", false, nil
		}
		tenantID := strings.TrimSpace(delivery.TenantID)
		if tenantID == "" {
			return "", true, fmt.Errorf("webhooks: whatsapp challenge requires an explicit tenant")
		}
		if verifyToken == nil {
			return "", true, fmt.Errorf("webhooks: verify token is not configured")
		}
		token, err := verifyToken(ctx, tenantID)
		if err != nil {
			return "", true, fmt.Errorf("webhooks: resolve verify token: %w", err)
		}
		query := url.Values{}
		for key, value := range delivery.Query {
			query.Set(key, value)
		}
		challenge, ok := whatsapp.VerifyChallenge(token, query)
		if !ok {
			return "", true, fmt.Errorf("webhooks: whatsapp verify token mismatch")
		}
		return challenge, true, nil
	}
}

// SlackChallenge echoes Slack's url_verification handshake.
func SlackChallenge() ChallengeFunc {
	return func(_ context.Context, delivery Delivery) (string, bool, error) {
		challenge, ok := slackchannel.VerifyChallenge(delivery.Body)
		if !ok {
			return "", false, nil
		}
		return challenge, true, nil
	}
}

// DefaultChallenges wires the channels that run a subscription handshake.
func DefaultChallenges(secrets core.SecretStore) map[string]ChallengeFunc {
	return map[string]ChallengeFunc{
		core.ChannelWhatsApp: WhatsAppChallenge(SecretFromStore(secrets, "verify_token")),
		core.ChannelSlack:    SlackChallenge(),
	}
}

// WhatsAppAccountID reads the WhatsApp Business Account id off a Cloud API
// webhook.
func WhatsAppAccountID(payload []byte) (string, bool) {
	var doc struct {
		Entry []struct {
			ID string `json:"id"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil || len(doc.Entry) == 0 {
		return "", false
	}
	id := strings.TrimSpace(doc.Entry[0].ID)
	return id, id != ""
}

// SlackTeamID reads the workspace id off an Events API callback.
func SlackTeamID(payload []byte) (string, bool) {
	var doc struct {
		TeamID string `json:"team_id"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", false
	}
	id := strings.TrimSpace(doc.TeamID)
	return id, id != ""
}

// ChatHubAccountID reads the hub account id off a message_created webhook.
func ChatHubAccountID(payload []byte) (string, bool) {
	var doc struct {
		Account struct {
			ID int64 `json:"id"`
		} `json:"account"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil || doc.Account.ID == 0 {
		return "", false
	}
	return strconv.FormatInt(doc.Account.ID, 10), true
}

// DefaultAccountExtractors covers the channels whose payloads identify the
// provider account. Telegram updates carry no bot identity, so Telegram
// webhooks always need a tenant-scoped URL.
func DefaultAccountExtractors() map[string]AccountExtractor {
	return map[string]AccountExtractor{
		core.ChannelWhatsApp: WhatsAppAccountID,
		core.ChannelSlack:    SlackTeamID,
		core.ChannelChatHub:  ChatHubAccountID,
	}
}
