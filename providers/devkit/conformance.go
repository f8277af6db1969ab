package devkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/marianoberton/go-messaging/core"
)

// ValidateAdapterConformance checks the parse-side contract every channel
// adapter must honor: a stable base channel name, a total ParseInbound that
// accepts the fixture payload with a complete envelope, and silence on
// payloads that carry no processable message.
func ValidateAdapterConformance(_ context.Context, adapter core.ChannelAdapter, fixture ChannelFixture) error {
	if adapter == nil {
		return fmt.Errorf("devkit: channel adapter is required")
	}
	channel := adapter.Channel()
	if strings.TrimSpace(channel) == "" {
		return fmt.Errorf("devkit: adapter channel name is required")
	}
	if channel != core.BaseChannel(channel) {
		return fmt.Errorf("devkit: adapter channel %q must be a base channel name", channel)
	}
	if fixture.Channel != "" && channel != fixture.Channel {
		return fmt.Errorf("devkit: adapter channel %q does not match fixture channel %q", channel, fixture.Channel)
	}

	if len(fixture.InboundPayload) > 0 {
		msg, ok := adapter.ParseInbound(fixture.InboundPayload)
		if !ok {
			return fmt.Errorf("devkit: adapter rejected the inbound fixture payload")
		}
		if msg.Channel != channel {
			return fmt.Errorf("devkit: envelope channel %q does not match adapter channel %q", msg.Channel, channel)
		}
		if strings.TrimSpace(msg.ChannelMessageID) == "" {
			return fmt.Errorf("devkit: envelope is missing the channel message id")
		}
		if strings.TrimSpace(msg.SenderIdentifier) == "" {
			return fmt.Errorf("devkit: envelope is missing the sender identifier")
		}
		if strings.TrimSpace(msg.Content) == "" {
			return fmt.Errorf("devkit: envelope is missing the message content")
		}
		if len(msg.RawPayload) == 0 {
			return fmt.Errorf("devkit: envelope must carry the raw payload")
		}
		if msg.ReceivedAt.IsZero() {
			return fmt.Errorf("devkit: envelope is missing the received timestamp")
		}
	}

	for index, payload := range fixture.IgnoredPayloads {
		if _, ok := adapter.ParseInbound(payload); ok {
			return fmt.Errorf("devkit: adapter accepted ignored payload %d", index)
		}
	}
	for _, garbage := range [][]byte{nil, []byte("not json"), []byte(`{"unrelated":`)} {
		if _, ok := adapter.ParseInbound(garbage); ok {
			return fmt.Errorf("devkit: adapter accepted a malformed payload")
		}
	}
	return nil
}

// ValidateReplayStoreConformance checks the claim/complete/fail semantics a
// replay store must honor: first claim wins, held keys reject, completed
// keys stay claimed through their lease, and failed claims reopen at the
// retry time.
func ValidateReplayStoreConformance(ctx context.Context, store core.ReplayClaimStore, key string) error {
	if store == nil {
		return fmt.Errorf("devkit: replay store is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("devkit: replay key is required")
	}

	claimID, accepted, err := store.Claim(ctx, key, time.Minute)
	if err != nil {
		return err
	}
	if !accepted || strings.TrimSpace(claimID) == "" {
		return fmt.Errorf("devkit: first claim should be accepted")
	}
	if _, accepted, err := store.Claim(ctx, key, time.Minute); err != nil {
		return err
	} else if accepted {
		return fmt.Errorf("devkit: a held key must reject further claims")
	}
	if err := store.Complete(ctx, claimID); err != nil {
		return err
	}
	if _, accepted, err := store.Claim(ctx, key, time.Minute); err != nil {
		return err
	} else if accepted {
		return fmt.Errorf("devkit: a completed key must stay claimed through its lease")
	}

	retryKey := key + ":retry"
	retryClaim, accepted, err := store.Claim(ctx, retryKey, time.Minute)
	if err != nil {
		return err
	}
	if !accepted {
		return fmt.Errorf("devkit: claim on a fresh key should be accepted")
	}
	if err := store.Fail(ctx, retryClaim, fmt.Errorf("handler failed"), time.Now().Add(-time.Second)); err != nil {
		return err
	}
	if _, accepted, err := store.Claim(ctx, retryKey, time.Minute); err != nil {
		return err
	} else if !accepted {
		return fmt.Errorf("devkit: a failed claim must reopen once its retry time passes")
	}
	return nil
}

// ValidateSecretStoreConformance checks that a secret store returns the
// seeded value and fails on unknown references with an error that names the
// secret.
func ValidateSecretStoreConformance(ctx context.Context, store core.SecretStore, tenantID, key, want string) error {
	if store == nil {
		return fmt.Errorf("devkit: secret store is required")
	}
	value, err := store.Get(ctx, tenantID, key)
	if err != nil {
		return fmt.Errorf("devkit: seeded secret lookup failed: %w", err)
	}
	if value != want {
		return fmt.Errorf("devkit: secret %s resolved to %q, want %q", key, value, want)
	}
	if _, err := store.Get(ctx, tenantID, key+"_missing"); err == nil {
		return fmt.Errorf("devkit: unknown secret reference must fail")
	} else if !strings.Contains(strings.ToLower(err.Error()), "secret") {
		return fmt.Errorf("devkit: missing-secret error should name the secret, got %q", err.Error())
	}
	return nil
}
