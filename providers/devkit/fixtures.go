package devkit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/marianoberton/go-messaging/core"
)

// ChannelFixture bundles the canned webhook material for one channel: a
// payload the adapter must accept and payloads it must ignore without
// panicking.
type ChannelFixture struct {
	Channel         string
	InboundPayload  []byte
	IgnoredPayloads [][]byte
	Outbound        core.OutboundMessage
}

// ChannelFixtures returns realistic webhook payloads per built-in channel,
// keyed by channel name. Each parses into an inbound envelope through the
// matching provider adapter.
func ChannelFixtures() map[string]ChannelFixture {
	return map[string]ChannelFixture{
		core.ChannelTelegram: {
			Channel: core.ChannelTelegram,
			InboundPayload: []byte(`{
				"update_id": 9001,
				"message": {
					"message_id": 42,
					"from": {"id": 555, "is_bot": false, "first_name": "Ana", "last_name": "García", "username": "anag"},
					"chat": {"id": 777000111, "type": "private"},
					"date": 1720000000,
					"text": "hola, necesito ayuda"
				}
			}`),
			IgnoredPayloads: [][]byte{
				[]byte(`{"update_id": 9002, "edited_message": {"message_id": 43}}`),
				[]byte(`{"update_id": 9003, "message": {"message_id": 44, "from": {"id": 556, "is_bot": true, "first_name": "Bot"}, "chat": {"id": 777000111, "type": "private"}, "date": 1720000001, "text": "beep"}}`),
			},
			Outbound: core.OutboundMessage{Recipient: "777000111", Content: "claro, te ayudo"},
		},
		core.ChannelWhatsApp: {
			Channel: core.ChannelWhatsApp,
			InboundPayload: []byte(`{
				"object": "whatsapp_business_account",
				"entry": [{
					"id": "waba_1",
					"changes": [{
						"field": "messages",
						"value": {
							"messaging_product": "whatsapp",
							"metadata": {"display_phone_number": "5491100000000", "phone_number_id": "phone_1"},
							"contacts": [{"profile": {"name": "Ana García"}, "wa_id": "5491155550000"}],
							"messages": [{
								"from": "5491155550000",
								"id": "wamid.FIXTURE01",
								"timestamp": "1720000000",
								"type": "text",
								"text": {"body": "hola, necesito ayuda"}
							}]
						}
					}]
				}]
			}`),
			IgnoredPayloads: [][]byte{
				[]byte(`{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.X","status":"delivered"}]}}]}]}`),
				[]byte(`{"entry":[{"changes":[{"value":{"messages":[{"from":"549","id":"wamid.Y","timestamp":"1720000000","type":"image"}]}}]}]}`),
			},
			Outbound: core.OutboundMessage{Recipient: "5491155550000", Content: "claro, te ayudo"},
		},
		core.ChannelSlack: {
			Channel:        core.ChannelSlack,
			InboundPayload: []byte(`{"type":"event_callback","team_id":"T1","event":{"type":"message","user":"U123","text":"hola, necesito ayuda","ts":"1712345678.000100","channel":"C1"}}`),
			IgnoredPayloads: [][]byte{
				[]byte(`{"type":"url_verification","token":"tok","challenge":"ch"}`),
				[]byte(`{"type":"event_callback","team_id":"T1","event":{"type":"message","subtype":"bot_message","bot_id":"B1","text":"beep","ts":"1712345679.000100","channel":"C1"}}`),
			},
			Outbound: core.OutboundMessage{Recipient: "C1", Content: "claro, te ayudo"},
		},
		core.ChannelChatHub: {
			Channel:        core.ChannelChatHub,
			InboundPayload: []byte(`{"event":"message_created","id":310,"content":"hola, necesito ayuda","message_type":"incoming","created_at":1720000000,"sender":{"id":9,"name":"Ana García","email":"ana@example.com"},"conversation":{"id":2},"account":{"id":7}}`),
			IgnoredPayloads: [][]byte{
				[]byte(`{"event":"message_created","id":311,"content":"gracias","message_type":"outgoing","sender":{"email":"agent@acme.test"},"account":{"id":7}}`),
				[]byte(`{"event":"conversation_resolved","id":312,"account":{"id":7}}`),
			},
			Outbound: core.OutboundMessage{Recipient: "2", Content: "claro, te ayudo"},
		},
	}
}

// ScriptedFixture builds a fixture in the devkit envelope format, for
// exercising a ScriptedAdapter or anything that consumes its output.
func ScriptedFixture(channel string) ChannelFixture {
	return ChannelFixture{
		Channel:        core.BaseChannel(channel),
		InboundPayload: []byte(`{"message_id":"m_1","sender":"u_1","sender_name":"Ana","text":"hola"}`),
		IgnoredPayloads: [][]byte{
			[]byte(`{"message_id":"m_2","sender":"u_1","text":"   "}`),
			[]byte(`{"sender":"u_1","text":"sin id"}`),
		},
		Outbound: core.OutboundMessage{Recipient: "u_1", Content: "respuesta"},
	}
}

// SecretStoreFixture is an in-memory core.SecretStore seeded per tenant.
type SecretStoreFixture struct {
	mu      sync.Mutex
	values  map[string]string
	lookups []string
}

func NewSecretStoreFixture() *SecretStoreFixture {
	return &SecretStoreFixture{values: map[string]string{}}
}

// Seed stores a secret under tenantID and key.
func (s *SecretStoreFixture) Seed(tenantID, key, value string) *SecretStoreFixture {
	if s == nil {
		return s
	}
	s.mu.Lock()
	s.values[secretKey(tenantID, key)] = value
	s.mu.Unlock()
	return s
}

func (s *SecretStoreFixture) Get(_ context.Context, tenantID, key string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("devkit: secret store fixture is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lookup := secretKey(tenantID, key)
	s.lookups = append(s.lookups, lookup)
	value, ok := s.values[lookup]
	if !ok {
		return "", fmt.Errorf("devkit: secret %s is not configured for tenant %s", key, tenantID)
	}
	return value, nil
}

// Lookups returns every tenant/key pair the store was asked for, in order.
func (s *SecretStoreFixture) Lookups() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lookups))
	copy(out, s.lookups)
	return out
}

func secretKey(tenantID, key string) string {
	return strings.TrimSpace(tenantID) + "/" + strings.TrimSpace(key)
}

var _ core.SecretStore = (*SecretStoreFixture)(nil)
