// Package devkit ships the fakes, fixtures, and conformance checks used to
// test channel adapters and the stores around them without live provider
// APIs.
package devkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marianoberton/go-messaging/core"
)

// ScriptedAdapter is a channel adapter whose send results follow a script.
// With no script every send succeeds with a generated message id. Its
// ParseInbound speaks the devkit envelope, a flat JSON object with
// message_id, sender, sender_name, text, and reply_to fields.
type ScriptedAdapter struct {
	mu       sync.Mutex
	channel  string
	script   []core.SendResult
	sent     []core.OutboundMessage
	profile  core.ContactProfile
	fetchErr error
	down     bool
	sends    int
}

func NewScriptedAdapter(channel string, script ...core.SendResult) *ScriptedAdapter {
	return &ScriptedAdapter{
		channel: core.BaseChannel(channel),
		script:  append([]core.SendResult(nil), script...),
	}
}

// WithProfile makes the adapter answer profile lookups with the given
// profile or error.
func (a *ScriptedAdapter) WithProfile(profile core.ContactProfile, err error) *ScriptedAdapter {
	if a != nil {
		a.mu.Lock()
		a.profile = profile
		a.fetchErr = err
		a.mu.Unlock()
	}
	return a
}

// WithHealth flips the health probe.
func (a *ScriptedAdapter) WithHealth(healthy bool) *ScriptedAdapter {
	if a != nil {
		a.mu.Lock()
		a.down = !healthy
		a.mu.Unlock()
	}
	return a
}

func (a *ScriptedAdapter) Channel() string {
	if a == nil {
		return ""
	}
	return a.channel
}

func (a *ScriptedAdapter) Send(_ context.Context, msg core.OutboundMessage) core.SendResult {
	if a == nil {
		return core.FailedSend("devkit: scripted adapter is nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sent = append(a.sent, cloneOutbound(msg))
	index := a.sends
	a.sends++
	if index < len(a.script) {
		return a.script[index]
	}
	if len(a.script) > 0 {
		return a.script[len(a.script)-1]
	}
	return core.SendResult{
		Success:          true,
		ChannelMessageID: a.channel + "_out_" + strconv.Itoa(a.sends),
	}
}

func (a *ScriptedAdapter) ParseInbound(payload []byte) (core.InboundMessage, bool) {
	if a == nil {
		return core.InboundMessage{}, false
	}
	var envelope struct {
		MessageID  string `json:"message_id"`
		Sender     string `json:"sender"`
		SenderName string `json:"sender_name"`
		Text       string `json:"text"`
		ReplyTo    string `json:"reply_to"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return core.InboundMessage{}, false
	}
	text := strings.TrimSpace(envelope.Text)
	if envelope.MessageID == "" || envelope.Sender == "" || text == "" {
		return core.InboundMessage{}, false
	}
	return core.InboundMessage{
		Channel:                 a.channel,
		ChannelMessageID:        envelope.MessageID,
		SenderIdentifier:        envelope.Sender,
		SenderName:              strings.TrimSpace(envelope.SenderName),
		Content:                 text,
		ReplyToChannelMessageID: envelope.ReplyTo,
		RawPayload:              payload,
		ReceivedAt:              time.Now().UTC(),
	}, true
}

func (a *ScriptedAdapter) IsHealthy(_ context.Context) bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.down
}

func (a *ScriptedAdapter) FetchProfile(_ context.Context, _ core.InboundMessage) (core.ContactProfile, error) {
	if a == nil {
		return core.ContactProfile{}, fmt.Errorf("devkit: scripted adapter is nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fetchErr != nil {
		return core.ContactProfile{}, a.fetchErr
	}
	return a.profile, nil
}

// Sent returns a copy of every outbound message the adapter received.
func (a *ScriptedAdapter) Sent() []core.OutboundMessage {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.OutboundMessage, 0, len(a.sent))
	for _, msg := range a.sent {
		out = append(out, cloneOutbound(msg))
	}
	return out
}

// RecordedSend is one ChannelSender call captured by a RecordingSender.
type RecordedSend struct {
	TenantID string
	Channel  string
	Message  core.OutboundMessage
}

// RecordingSender satisfies core.ChannelSender and records every call. All
// sends answer with the configured result, success by default.
type RecordingSender struct {
	mu     sync.Mutex
	result core.SendResult
	calls  []RecordedSend
}

func NewRecordingSender(result core.SendResult) *RecordingSender {
	return &RecordingSender{result: result}
}

func (s *RecordingSender) Send(_ context.Context, tenantID, channel string, msg core.OutboundMessage) core.SendResult {
	if s == nil {
		return core.FailedSend("devkit: recording sender is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, RecordedSend{
		TenantID: tenantID,
		Channel:  channel,
		Message:  cloneOutbound(msg),
	})
	if s.result.Success || s.result.Error != "" {
		return s.result
	}
	return core.SendResult{
		Success:          true,
		ChannelMessageID: "recorded_" + strconv.Itoa(len(s.calls)),
	}
}

// Calls returns a copy of every recorded send.
func (s *RecordingSender) Calls() []RecordedSend {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedSend, len(s.calls))
	copy(out, s.calls)
	return out
}

func cloneOutbound(in core.OutboundMessage) core.OutboundMessage {
	out := in
	if in.Metadata != nil {
		out.Metadata = make(map[string]any, len(in.Metadata))
		for key, value := range in.Metadata {
			out.Metadata[key] = value
		}
	}
	return out
}

var (
	_ core.ChannelAdapter = (*ScriptedAdapter)(nil)
	_ core.ProfileFetcher = (*ScriptedAdapter)(nil)
	_ core.ChannelSender  = (*RecordingSender)(nil)
)
