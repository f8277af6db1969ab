// Package telegram adapts the Telegram Bot API to the messaging channel
// contract. Outbound text is chunked to the Bot API limit and retried on
// rate limits; inbound updates are normalized into the shared envelope.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/marianoberton/go-messaging/core"
)

// Channel is the routing key this adapter registers under.
const Channel = core.ChannelTelegram

const (
	maxMessageLength = 4000
	maxSendAttempts  = 3
	rateLimitBackoff = 3 * time.Second
	transientBackoff = time.Second
)

// botClient is the slice of tgbotapi.BotAPI the adapter uses.
type botClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetMe() (tgbotapi.User, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
}

// Config carries the per-tenant settings needed to talk to one bot.
type Config struct {
	Token     string
	ParseMode string
	Logger    core.Logger
}

// Adapter sends and parses messages for a single Telegram bot.
type Adapter struct {
	bot       botClient
	parseMode string
	logger    core.Logger
	sleep     func(time.Duration)
}

// New dials the Bot API with the configured token. The token is validated
// remotely, so a revoked credential fails here rather than on first send.
func New(cfg Config) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect bot api: %w", err)
	}
	return newWithClient(bot, cfg), nil
}

func newWithClient(bot botClient, cfg Config) *Adapter {
	parseMode := strings.TrimSpace(cfg.ParseMode)
	if parseMode == "" {
		parseMode = tgbotapi.ModeMarkdown
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	return &Adapter{
		bot:       bot,
		parseMode: parseMode,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

func (a *Adapter) Channel() string { return Channel }

// Send delivers one outbound message, splitting content over the Bot API
// length limit into ordered chunks. Only the first chunk is threaded onto the
// replied-to message, and its id becomes the result's channel message id.
func (a *Adapter) Send(ctx context.Context, msg core.OutboundMessage) core.SendResult {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return core.FailedSend("telegram: message content is empty")
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.Recipient), 10, 64)
	if err != nil {
		return core.FailedSend(fmt.Sprintf("telegram: recipient %q is not a chat id", msg.Recipient))
	}

	replyTo := 0
	if raw := strings.TrimSpace(msg.ReplyToChannelMessageID); raw != "" {
		if id, convErr := strconv.Atoi(raw); convErr == nil {
			replyTo = id
		}
	}

	firstID := ""
	for i, chunk := range splitMessage(content, maxMessageLength) {
		if ctx.Err() != nil {
			return core.FailedSend(fmt.Sprintf("telegram: send canceled: %v", ctx.Err()))
		}
		chunkReply := 0
		if i == 0 {
			chunkReply = replyTo
		}
		sent, sendErr := a.sendChunk(chatID, chunk, chunkReply)
		if sendErr != nil {
			result := core.FailedSend(fmt.Sprintf("telegram: send to chat %d failed: %v", chatID, sendErr))
			var apiErr *tgbotapi.Error
			if errors.As(sendErr, &apiErr) {
				result.StatusCode = apiErr.Code
				if apiErr.RetryAfter > 0 {
					result.RetryAfter = time.Duration(apiErr.RetryAfter) * time.Second
				}
			}
			return result
		}
		if i == 0 {
			firstID = strconv.Itoa(sent.MessageID)
		}
	}
	return core.SendResult{Success: true, ChannelMessageID: firstID}
}

// sendChunk retries one chunk through the Bot API failure ladder: rate limits
// back off and retry, formatting rejections retry once as plain text, and
// other errors get a short linear backoff.
func (a *Adapter) sendChunk(chatID int64, text string, replyTo int) (tgbotapi.Message, error) {
	parseMode := a.parseMode
	var lastErr error
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		out := tgbotapi.NewMessage(chatID, text)
		out.ParseMode = parseMode
		if replyTo != 0 {
			out.ReplyToMessageID = replyTo
		}
		sent, err := a.bot.Send(out)
		if err == nil {
			return sent, nil
		}
		lastErr = err

		errText := err.Error()
		switch {
		case strings.Contains(errText, "Too Many Requests") || strings.Contains(errText, "429"):
			a.logger.Warn("telegram rate limited", "chat_id", chatID, "attempt", attempt+1)
			a.sleep(time.Duration(attempt+1) * rateLimitBackoff)
		case strings.Contains(errText, "can't parse entities") && parseMode != "":
			a.logger.Warn("telegram rejected formatting, retrying as plain text", "chat_id", chatID)
			parseMode = ""
		default:
			a.sleep(time.Duration(attempt+1) * transientBackoff)
		}
	}
	return tgbotapi.Message{}, lastErr
}

// ParseInbound normalizes one Bot API update. Updates without a text message,
// service updates, and echoes of other bots produce no envelope.
func (a *Adapter) ParseInbound(payload []byte) (core.InboundMessage, bool) {
	var update tgbotapi.Update
	if err := json.Unmarshal(payload, &update); err != nil {
		return core.InboundMessage{}, false
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return core.InboundMessage{}, false
	}
	if msg.From.IsBot {
		return core.InboundMessage{}, false
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return core.InboundMessage{}, false
	}

	inbound := core.InboundMessage{
		Channel:          Channel,
		ChannelMessageID: strconv.Itoa(msg.MessageID),
		SenderIdentifier: strconv.FormatInt(msg.Chat.ID, 10),
		SenderName:       senderName(msg.From),
		Content:          text,
		RawPayload:       payload,
		ReceivedAt:       time.Unix(int64(msg.Date), 0).UTC(),
	}
	if msg.ReplyToMessage != nil {
		inbound.ReplyToChannelMessageID = strconv.Itoa(msg.ReplyToMessage.MessageID)
	}
	return inbound, true
}

// IsHealthy checks the bot credential with a getMe round trip.
func (a *Adapter) IsHealthy(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	_, err := a.bot.GetMe()
	return err == nil
}

// FetchProfile looks up the sender's chat. Private chats carry the user's
// name fields; group chats only have a title.
func (a *Adapter) FetchProfile(ctx context.Context, msg core.InboundMessage) (core.ContactProfile, error) {
	if ctx.Err() != nil {
		return core.ContactProfile{}, ctx.Err()
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.SenderIdentifier), 10, 64)
	if err != nil {
		return core.ContactProfile{}, fmt.Errorf("telegram: sender %q is not a chat id", msg.SenderIdentifier)
	}
	chat, err := a.bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}})
	if err != nil {
		return core.ContactProfile{}, fmt.Errorf("telegram: get chat %d: %w", chatID, err)
	}
	profile := core.ContactProfile{
		FirstName: strings.TrimSpace(chat.FirstName),
		LastName:  strings.TrimSpace(chat.LastName),
		Username:  strings.TrimSpace(chat.UserName),
	}
	display := strings.TrimSpace(profile.FirstName + " " + profile.LastName)
	if display == "" {
		display = strings.TrimSpace(chat.Title)
	}
	if display == "" {
		display = profile.Username
	}
	profile.DisplayName = display
	return profile, nil
}

func senderName(from *tgbotapi.User) string {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	if name == "" {
		name = from.UserName
	}
	return name
}

// splitMessage cuts text into chunks under maxLen, preferring newline
// boundaries in the back half of each chunk.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	remaining := text
	for len(remaining) > maxLen {
		cut := strings.LastIndex(remaining[:maxLen], "\n")
		if cut < maxLen/2 {
			cut = maxLen
		}
		chunks = append(chunks, remaining[:cut])
		remaining = strings.TrimLeft(remaining[cut:], "\n")
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// Factory builds tenant-scoped Telegram adapters from resolved integration
// configuration. The bot token may live under "token" or "bot_token".
type Factory struct{}

func NewFactory() Factory { return Factory{} }

func (Factory) Channel() string { return Channel }

func (Factory) Build(_ context.Context, cfg core.AdapterConfig) (core.ChannelAdapter, error) {
	token := cfg.Credentials["token"]
	if strings.TrimSpace(token) == "" {
		token = cfg.Credentials["bot_token"]
	}
	parseMode := ""
	if raw, ok := cfg.Settings["parse_mode"].(string); ok {
		parseMode = raw
	}
	return New(Config{Token: token, ParseMode: parseMode, Logger: cfg.Logger})
}

var (
	_ core.ChannelAdapter = (*Adapter)(nil)
	_ core.ProfileFetcher = (*Adapter)(nil)
	_ core.AdapterFactory = Factory{}
)
