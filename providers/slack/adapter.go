// Package slack adapts the Slack Web and Events APIs to the messaging
// channel contract. Replies are threaded with thread_ts, long responses are
// chunked, and Events API callbacks are normalized with the bot's own
// messages filtered out.
package slack

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
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/marianoberton/go-messaging/core"
)

// Channel is the routing key this adapter registers under.
const Channel = core.ChannelSlack

const maxMessageLength = 4000

// Config carries one workspace's bot settings. APIURL and HTTPClient exist
// for tests that stand in for the Slack API.
type Config struct {
	BotToken   string
	APIURL     string
	HTTPClient *http.Client
	Logger     core.Logger
}

// Adapter sends and parses messages for a single Slack bot user. The bot's
// user id is resolved once at construction so inbound echoes can be dropped.
type Adapter struct {
	client    *slack.Client
	botUserID string
	logger    core.Logger
	sleep     func(time.Duration)
}

// New authenticates the bot token and captures the bot user id. A revoked
// token fails here rather than on first send.
func New(cfg Config) (*Adapter, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}

	var opts []slack.Option
	if apiURL := strings.TrimSpace(cfg.APIURL); apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, slack.OptionHTTPClient(cfg.HTTPClient))
	}
	client := slack.New(token, opts...)

	auth, err := client.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	return &Adapter{
		client:    client,
		botUserID: auth.UserID,
		logger:    logger,
		sleep:     time.Sleep,
	}, nil
}

func (a *Adapter) Channel() string { return Channel }

// Send posts one message to a conversation, chunking over the message length
// limit. Every chunk carries the thread timestamp so threaded replies stay in
// their thread; the first chunk's ts becomes the channel message id.
func (a *Adapter) Send(ctx context.Context, msg core.OutboundMessage) core.SendResult {
	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return core.FailedSend("slack: message content is empty")
	}
	conversation := strings.TrimSpace(msg.Recipient)
	if conversation == "" {
		return core.FailedSend("slack: recipient conversation is required")
	}
	threadTS := strings.TrimSpace(msg.ReplyToChannelMessageID)

	firstTS := ""
	for i, chunk := range splitMessage(content, maxMessageLength) {
		if ctx.Err() != nil {
			return core.FailedSend(fmt.Sprintf("slack: send canceled: %v", ctx.Err()))
		}
		ts, err := a.postChunk(ctx, conversation, chunk, threadTS)
		if err != nil {
			result := core.FailedSend(fmt.Sprintf("slack: post to %s failed: %v", conversation, err))
			var rateErr *slack.RateLimitedError
			if errors.As(err, &rateErr) {
				result.StatusCode = http.StatusTooManyRequests
				result.RetryAfter = rateErr.RetryAfter
			}
			return result
		}
		if i == 0 {
			firstTS = ts
		}
	}
	return core.SendResult{Success: true, ChannelMessageID: firstTS}
}

// postChunk posts once and honors a rate-limit push-back with a single
// retry after the advertised delay.
func (a *Adapter) postChunk(ctx context.Context, conversation, chunk, threadTS string) (string, error) {
	options := []slack.MsgOption{slack.MsgOptionText(chunk, false)}
	if threadTS != "" {
		options = append(options, slack.MsgOptionTS(threadTS))
	}

	_, ts, err := a.client.PostMessageContext(ctx, conversation, options...)
	if err == nil {
		return ts, nil
	}
	var rateErr *slack.RateLimitedError
	if !errors.As(err, &rateErr) {
		return "", err
	}

	a.logger.Warn("slack rate limited", "conversation", conversation, "retry_after", rateErr.RetryAfter)
	a.sleep(rateErr.RetryAfter)
	_, ts, err = a.client.PostMessageContext(ctx, conversation, options...)
	return ts, err
}

// ParseInbound normalizes Events API callbacks. URL-verification handshakes,
// message subtypes, and anything authored by a bot produce no envelope.
func (a *Adapter) ParseInbound(payload []byte) (core.InboundMessage, bool) {
	event, err := slackevents.ParseEvent(json.RawMessage(payload), slackevents.OptionNoVerifyToken())
	if err != nil || event.Type != slackevents.CallbackEvent {
		return core.InboundMessage{}, false
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.SubType != "" || ev.BotID != "" {
			return core.InboundMessage{}, false
		}
		return a.envelope(payload, ev.Channel, ev.User, ev.Text, ev.TimeStamp, ev.ThreadTimeStamp)
	case *slackevents.AppMentionEvent:
		return a.envelope(payload, ev.Channel, ev.User, stripMention(ev.Text), ev.TimeStamp, ev.ThreadTimeStamp)
	default:
		return core.InboundMessage{}, false
	}
}

func (a *Adapter) envelope(payload []byte, conversation, user, text, ts, threadTS string) (core.InboundMessage, bool) {
	if user == "" || user == a.botUserID {
		return core.InboundMessage{}, false
	}
	content := strings.TrimSpace(text)
	if content == "" {
		return core.InboundMessage{}, false
	}

	inbound := core.InboundMessage{
		Channel:          Channel,
		ChannelMessageID: ts,
		SenderIdentifier: conversation,
		Content:          content,
		RawPayload:       payload,
		ReceivedAt:       parseTimestamp(ts),
	}
	if threadTS != "" && threadTS != ts {
		inbound.ReplyToChannelMessageID = threadTS
	}
	return inbound, true
}

// IsHealthy revalidates the bot token against auth.test.
func (a *Adapter) IsHealthy(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	_, err := a.client.AuthTestContext(ctx)
	return err == nil
}

// FetchProfile resolves the Slack user behind an inbound event via
// users.info. The envelope's sender identifier is the conversation, so the
// user id comes out of the raw event payload.
func (a *Adapter) FetchProfile(ctx context.Context, msg core.InboundMessage) (core.ContactProfile, error) {
	userID := eventUserID(msg.RawPayload)
	if userID == "" {
		return core.ContactProfile{}, fmt.Errorf("slack: payload carries no user id")
	}
	user, err := a.client.GetUserInfoContext(ctx, userID)
	if err != nil {
		return core.ContactProfile{}, fmt.Errorf("slack: users.info for %s: %w", userID, err)
	}
	profile := core.ContactProfile{
		FirstName: strings.TrimSpace(user.Profile.FirstName),
		LastName:  strings.TrimSpace(user.Profile.LastName),
		Username:  strings.TrimSpace(user.Name),
		AvatarURL: strings.TrimSpace(user.Profile.Image192),
		Locale:    strings.TrimSpace(user.Locale),
	}
	display := strings.TrimSpace(user.Profile.DisplayName)
	if display == "" {
		display = strings.TrimSpace(user.RealName)
	}
	if display == "" {
		display = profile.Username
	}
	profile.DisplayName = display
	return profile, nil
}

// eventUserID pulls the author's user id out of an Events API callback.
func eventUserID(payload []byte) string {
	event, err := slackevents.ParseEvent(json.RawMessage(payload), slackevents.OptionNoVerifyToken())
	if err != nil || event.Type != slackevents.CallbackEvent {
		return ""
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		return ev.User
	case *slackevents.AppMentionEvent:
		return ev.User
	default:
		return ""
	}
}

// VerifyChallenge extracts the challenge from a url_verification handshake
// so the webhook transport can echo it back.
func VerifyChallenge(payload []byte) (string, bool) {
	event, err := slackevents.ParseEvent(json.RawMessage(payload), slackevents.OptionNoVerifyToken())
	if err != nil || event.Type != slackevents.URLVerification {
		return "", false
	}
	var challenge slackevents.ChallengeResponse
	if err := json.Unmarshal(payload, &challenge); err != nil {
		return "", false
	}
	return challenge.Challenge, true
}

// stripMention drops the leading <@U…> token an app_mention carries.
func stripMention(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "<@") {
		if idx := strings.Index(trimmed, ">"); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
	}
	return strings.TrimSpace(trimmed)
}

// parseTimestamp reads the seconds component of a Slack ts value.
func parseTimestamp(ts string) time.Time {
	seconds, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(n, 0).UTC()
}

// splitMessage cuts text into chunks under maxLen, breaking after a newline
// in the back half of each chunk when one exists.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	remaining := text
	for len(remaining) > maxLen {
		cut := maxLen
		if idx := strings.LastIndex(remaining[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, strings.TrimRight(remaining[:cut], "\n"))
		remaining = remaining[cut:]
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// Factory builds workspace-scoped Slack adapters. The bot token may live
// under "bot_token" or "token".
type Factory struct{}

func NewFactory() Factory { return Factory{} }

func (Factory) Channel() string { return Channel }

func (Factory) Build(_ context.Context, cfg core.AdapterConfig) (core.ChannelAdapter, error) {
	token := cfg.Credentials["bot_token"]
	if strings.TrimSpace(token) == "" {
		token = cfg.Credentials["token"]
	}
	apiURL, _ := cfg.Settings["api_url"].(string)
	return New(Config{BotToken: token, APIURL: apiURL, Logger: cfg.Logger})
}

var (
	_ core.ChannelAdapter = (*Adapter)(nil)
	_ core.ProfileFetcher = (*Adapter)(nil)
	_ core.AdapterFactory = Factory{}
)
