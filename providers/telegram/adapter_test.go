package telegram

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/marianoberton/go-messaging/core"
	"github.com/marianoberton/go-messaging/providers/devkit"
)

type fakeBot struct {
	sent         []tgbotapi.MessageConfig
	scripted     []error
	nextID       int
	getMeErr     error
	chat         tgbotapi.Chat
	getChatErr   error
	chatRequests []tgbotapi.ChatInfoConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	cfg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, fmt.Errorf("unexpected chattable %T", c)
	}
	f.sent = append(f.sent, cfg)
	if len(f.scripted) > 0 {
		err := f.scripted[0]
		f.scripted = f.scripted[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeBot) GetMe() (tgbotapi.User, error) {
	return tgbotapi.User{UserName: "support_bot"}, f.getMeErr
}

func (f *fakeBot) GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error) {
	f.chatRequests = append(f.chatRequests, config)
	return f.chat, f.getChatErr
}

func newTestAdapter(bot *fakeBot) (*Adapter, *[]time.Duration) {
	adapter := newWithClient(bot, Config{})
	sleeps := &[]time.Duration{}
	adapter.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	return adapter, sleeps
}

func TestAdapter_SendChunksAndThreadsFirstChunk(t *testing.T) {
	bot := &fakeBot{}
	adapter, _ := newTestAdapter(bot)

	content := strings.Repeat("line of text\n", 400)
	result := adapter.Send(context.Background(), core.OutboundMessage{
		Recipient:               "777000111",
		Content:                 content,
		ReplyToChannelMessageID: "42",
	})

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(bot.sent))
	}
	for i, sent := range bot.sent {
		if len(sent.Text) > maxMessageLength {
			t.Fatalf("chunk %d exceeds limit: %d bytes", i, len(sent.Text))
		}
		if sent.ChatID != 777000111 {
			t.Fatalf("chunk %d sent to chat %d", i, sent.ChatID)
		}
	}
	if bot.sent[0].ReplyToMessageID != 42 {
		t.Fatalf("first chunk should thread onto message 42, got %d", bot.sent[0].ReplyToMessageID)
	}
	if bot.sent[1].ReplyToMessageID != 0 {
		t.Fatalf("continuation chunk should not thread, got %d", bot.sent[1].ReplyToMessageID)
	}
	if result.ChannelMessageID != "1" {
		t.Fatalf("expected first chunk id as channel message id, got %q", result.ChannelMessageID)
	}
}

func TestAdapter_SendCapturesInvalidInput(t *testing.T) {
	bot := &fakeBot{}
	adapter, _ := newTestAdapter(bot)

	result := adapter.Send(context.Background(), core.OutboundMessage{Recipient: "777", Content: "   "})
	if result.Success || !strings.Contains(result.Error, "content") {
		t.Fatalf("expected empty-content failure, got %+v", result)
	}

	result = adapter.Send(context.Background(), core.OutboundMessage{Recipient: "ana@example.com", Content: "hola"})
	if result.Success || !strings.Contains(result.Error, "chat id") {
		t.Fatalf("expected recipient failure, got %+v", result)
	}
	if len(bot.sent) != 0 {
		t.Fatalf("invalid input should never reach the API, got %d sends", len(bot.sent))
	}
}

func TestAdapter_SendBacksOffOnRateLimit(t *testing.T) {
	bot := &fakeBot{scripted: []error{fmt.Errorf("Too Many Requests: retry after 3")}}
	adapter, sleeps := newTestAdapter(bot)

	result := adapter.Send(context.Background(), core.OutboundMessage{Recipient: "777", Content: "hola"})
	if !result.Success {
		t.Fatalf("expected retry to succeed, got %q", result.Error)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(bot.sent))
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != rateLimitBackoff {
		t.Fatalf("expected one %v backoff, got %v", rateLimitBackoff, *sleeps)
	}
}

func TestAdapter_SendFallsBackToPlainText(t *testing.T) {
	bot := &fakeBot{scripted: []error{fmt.Errorf("Bad Request: can't parse entities: unexpected *")}}
	adapter, sleeps := newTestAdapter(bot)

	result := adapter.Send(context.Background(), core.OutboundMessage{Recipient: "777", Content: "*broken markdown"})
	if !result.Success {
		t.Fatalf("expected plain-text retry to succeed, got %q", result.Error)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(bot.sent))
	}
	if bot.sent[0].ParseMode != tgbotapi.ModeMarkdown {
		t.Fatalf("first attempt should use markdown, got %q", bot.sent[0].ParseMode)
	}
	if bot.sent[1].ParseMode != "" {
		t.Fatalf("retry should drop formatting, got %q", bot.sent[1].ParseMode)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("formatting retry should not sleep, got %v", *sleeps)
	}
}

func TestAdapter_SendGivesUpAfterRetries(t *testing.T) {
	failure := fmt.Errorf("Bad Gateway")
	bot := &fakeBot{scripted: []error{failure, failure, failure}}
	adapter, sleeps := newTestAdapter(bot)

	result := adapter.Send(context.Background(), core.OutboundMessage{Recipient: "777", Content: "hola"})
	if result.Success {
		t.Fatal("expected terminal failure")
	}
	if !strings.Contains(result.Error, "Bad Gateway") {
		t.Fatalf("expected underlying error in result, got %q", result.Error)
	}
	if len(bot.sent) != maxSendAttempts {
		t.Fatalf("expected %d attempts, got %d", maxSendAttempts, len(bot.sent))
	}
	if len(*sleeps) != maxSendAttempts {
		t.Fatalf("expected linear backoff per attempt, got %v", *sleeps)
	}
	if (*sleeps)[1] != 2*transientBackoff {
		t.Fatalf("expected growing backoff, got %v", *sleeps)
	}
}

func TestAdapter_SendSurfacesRateLimitPushback(t *testing.T) {
	limitErr := &tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests: retry after 7",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7},
	}
	bot := &fakeBot{scripted: []error{limitErr, limitErr, limitErr}}
	adapter, _ := newTestAdapter(bot)

	result := adapter.Send(context.Background(), core.OutboundMessage{Recipient: "777", Content: "hola"})
	if result.Success {
		t.Fatal("expected terminal rate-limit failure")
	}
	if len(bot.sent) != maxSendAttempts {
		t.Fatalf("expected %d attempts, got %d", maxSendAttempts, len(bot.sent))
	}
	if result.StatusCode != 429 {
		t.Fatalf("expected status 429, got %d", result.StatusCode)
	}
	if result.RetryAfter != 7*time.Second {
		t.Fatalf("expected 7s retry hint, got %v", result.RetryAfter)
	}
}

func TestAdapter_FetchProfile(t *testing.T) {
	bot := &fakeBot{chat: tgbotapi.Chat{FirstName: "Ana", LastName: "García", UserName: "anag"}}
	adapter, _ := newTestAdapter(bot)

	profile, err := adapter.FetchProfile(context.Background(), core.InboundMessage{SenderIdentifier: "777000111"})
	if err != nil {
		t.Fatalf("FetchProfile: %v", err)
	}
	if profile.DisplayName != "Ana García" {
		t.Fatalf("unexpected display name %q", profile.DisplayName)
	}
	if profile.Username != "anag" {
		t.Fatalf("unexpected username %q", profile.Username)
	}
	if len(bot.chatRequests) != 1 || bot.chatRequests[0].ChatID != 777000111 {
		t.Fatalf("expected one lookup for chat 777000111, got %+v", bot.chatRequests)
	}

	bot.chat = tgbotapi.Chat{Title: "Soporte LATAM"}
	profile, err = adapter.FetchProfile(context.Background(), core.InboundMessage{SenderIdentifier: "-100200"})
	if err != nil {
		t.Fatalf("FetchProfile group: %v", err)
	}
	if profile.DisplayName != "Soporte LATAM" {
		t.Fatalf("group chats should fall back to the title, got %q", profile.DisplayName)
	}

	if _, err = adapter.FetchProfile(context.Background(), core.InboundMessage{SenderIdentifier: "ana@example.com"}); err == nil || !strings.Contains(err.Error(), "chat id") {
		t.Fatalf("expected chat id error, got %v", err)
	}

	bot.getChatErr = fmt.Errorf("Forbidden")
	if _, err = adapter.FetchProfile(context.Background(), core.InboundMessage{SenderIdentifier: "777"}); err == nil {
		t.Fatal("expected lookup failure to surface")
	}
}

func TestAdapter_ParseInbound(t *testing.T) {
	adapter, _ := newTestAdapter(&fakeBot{})

	update := `{
		"update_id": 9001,
		"message": {
			"message_id": 42,
			"from": {"id": 555, "is_bot": false, "first_name": "Ana", "last_name": "García", "username": "anag"},
			"chat": {"id": 777000111, "type": "private"},
			"date": 1720000000,
			"text": "  hola, necesito ayuda  ",
			"reply_to_message": {"message_id": 41, "chat": {"id": 777000111, "type": "private"}, "date": 1719999990}
		}
	}`

	msg, ok := adapter.ParseInbound([]byte(update))
	if !ok {
		t.Fatal("expected update to produce an envelope")
	}
	if msg.Channel != core.ChannelTelegram {
		t.Fatalf("unexpected channel %q", msg.Channel)
	}
	if msg.ChannelMessageID != "42" || msg.ReplyToChannelMessageID != "41" {
		t.Fatalf("unexpected message ids %q reply %q", msg.ChannelMessageID, msg.ReplyToChannelMessageID)
	}
	if msg.SenderIdentifier != "777000111" {
		t.Fatalf("sender identifier should be the chat id, got %q", msg.SenderIdentifier)
	}
	if msg.SenderName != "Ana García" {
		t.Fatalf("unexpected sender name %q", msg.SenderName)
	}
	if msg.Content != "hola, necesito ayuda" {
		t.Fatalf("content should be trimmed, got %q", msg.Content)
	}
	if !msg.ReceivedAt.Equal(time.Unix(1720000000, 0).UTC()) {
		t.Fatalf("unexpected received at %v", msg.ReceivedAt)
	}
	if len(msg.RawPayload) == 0 {
		t.Fatal("raw payload should be preserved")
	}
}

func TestAdapter_ParseInboundIgnoresNonConversational(t *testing.T) {
	adapter, _ := newTestAdapter(&fakeBot{})

	cases := []struct {
		name    string
		payload string
	}{
		{"malformed json", `{"update_id": `},
		{"no message", `{"update_id": 1, "edited_message": {"message_id": 2}}`},
		{"bot echo", `{"update_id": 1, "message": {"message_id": 2, "from": {"id": 9, "is_bot": true, "first_name": "Bot"}, "chat": {"id": 7}, "date": 1720000000, "text": "echo"}}`},
		{"no text", `{"update_id": 1, "message": {"message_id": 2, "from": {"id": 9, "is_bot": false, "first_name": "Ana"}, "chat": {"id": 7}, "date": 1720000000, "sticker": {"file_id": "abc"}}}`},
		{"blank text", `{"update_id": 1, "message": {"message_id": 2, "from": {"id": 9, "is_bot": false, "first_name": "Ana"}, "chat": {"id": 7}, "date": 1720000000, "text": "   "}}`},
	}
	for _, tc := range cases {
		if _, ok := adapter.ParseInbound([]byte(tc.payload)); ok {
			t.Fatalf("%s: expected payload to be ignored", tc.name)
		}
	}
}

func TestAdapter_ParseInboundFallsBackToUsername(t *testing.T) {
	adapter, _ := newTestAdapter(&fakeBot{})

	update := `{"update_id": 1, "message": {"message_id": 2, "from": {"id": 9, "is_bot": false, "username": "anag"}, "chat": {"id": 7}, "date": 1720000000, "text": "hola"}}`
	msg, ok := adapter.ParseInbound([]byte(update))
	if !ok {
		t.Fatal("expected envelope")
	}
	if msg.SenderName != "anag" {
		t.Fatalf("expected username fallback, got %q", msg.SenderName)
	}
}

func TestAdapter_IsHealthy(t *testing.T) {
	bot := &fakeBot{}
	adapter, _ := newTestAdapter(bot)

	if !adapter.IsHealthy(context.Background()) {
		t.Fatal("expected healthy bot")
	}

	bot.getMeErr = fmt.Errorf("Unauthorized")
	if adapter.IsHealthy(context.Background()) {
		t.Fatal("expected unhealthy bot after credential failure")
	}

	bot.getMeErr = nil
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if adapter.IsHealthy(canceled) {
		t.Fatal("expected canceled context to report unhealthy")
	}
}

func TestFactory_RequiresToken(t *testing.T) {
	factory := NewFactory()
	if factory.Channel() != core.ChannelTelegram {
		t.Fatalf("unexpected channel %q", factory.Channel())
	}
	_, err := factory.Build(context.Background(), core.AdapterConfig{TenantID: "tenant_1"})
	if err == nil || !strings.Contains(err.Error(), "token") {
		t.Fatalf("expected missing-token error, got %v", err)
	}
}

func TestSplitMessage_PrefersNewlineBoundaries(t *testing.T) {
	text := strings.Repeat("a", 3000) + "\n" + strings.Repeat("b", 2000)
	chunks := splitMessage(text, maxMessageLength)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 3000 {
		t.Fatalf("expected cut at the newline, got %d bytes", len(chunks[0]))
	}
	if chunks[1] != strings.Repeat("b", 2000) {
		t.Fatal("second chunk should start after the newline")
	}

	solid := strings.Repeat("c", maxMessageLength+10)
	chunks = splitMessage(solid, maxMessageLength)
	if len(chunks) != 2 || len(chunks[0]) != maxMessageLength {
		t.Fatalf("expected hard cut at the limit, got %d chunks first %d bytes", len(chunks), len(chunks[0]))
	}
}

func TestAdapter_MeetsChannelConformance(t *testing.T) {
	adapter, _ := newTestAdapter(&fakeBot{})
	fixture := devkit.ChannelFixtures()[core.ChannelTelegram]
	if err := devkit.ValidateAdapterConformance(context.Background(), adapter, fixture); err != nil {
		t.Fatal(err)
	}
}
