package webhooks

import (
	"context"
	"net/http"
	"strings"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/marianoberton/go-messaging/core"
)

// Delivery is one raw provider callback as the HTTP layer hands it over.
// TenantID is optional: tenant-scoped webhook URLs set it explicitly, shared
// URLs leave it empty and the processor resolves it from the payload.
type Delivery struct {
	Channel  string
	TenantID string
	Headers  map[string]string
	Query    map[string]string
	Body     []byte
}

// Receipt is what the HTTP layer should answer with.
type Receipt struct {
	Status   int
	Body     string
	Ignored  bool
	Metadata map[string]any
}

// AdapterSource hands out tenant-scoped channel adapters.
type AdapterSource interface {
	ResolveAdapter(ctx context.Context, tenantID, provider string) (core.ChannelAdapter, bool, error)
}

// TenantSource maps a provider-side account id back to the owning tenant.
type TenantSource interface {
	ResolveTenantByProviderAccount(ctx context.Context, provider, accountID string) (string, bool, error)
}

// Sink processes an envelope synchronously. The assembled messaging service
// satisfies it.
type Sink interface {
	ProcessInbound(ctx context.Context, msg core.InboundMessage) core.SendResult
}

// Submitter hands an envelope to an asynchronous ingest queue. Submit fails
// when the queue cannot take it.
type Submitter interface {
	Submit(ctx context.Context, msg core.InboundMessage) error
}

// AccountExtractor mines the provider's own account id out of a payload so
// shared webhook URLs can be routed to a tenant.
type AccountExtractor func(payload []byte) (string, bool)

// ChallengeFunc intercepts a provider's subscription handshake. handled
// reports whether the delivery was a handshake at all; body is echoed back
// on success.
type ChallengeFunc func(ctx context.Context, delivery Delivery) (body string, handled bool, err error)

// Processor runs the ingress ladder for one delivery: challenge, tenant,
// signature, burst, parse, then hand-off. Configure either Sink for inline
// processing or Submitter for queued ingestion; Submitter wins when both are
// set.
type Processor struct {
	Adapters   AdapterSource
	Tenants    TenantSource
	Sink       Sink
	Submitter  Submitter
	Verifiers  map[string]Verifier
	Challenges map[string]ChallengeFunc
	Accounts   map[string]AccountExtractor
	Burst      BurstController
	Logger     core.Logger
	Metrics    core.MetricsRecorder
}

// NewProcessor wires the ladder with the built-in account extractors and no
// verification. Production setups must set Verifiers; DefaultVerifiers covers
// the built-in channels from a secret store.
func NewProcessor(adapters AdapterSource, tenants TenantSource, sink Sink) *Processor {
	return &Processor{
		Adapters: adapters,
		Tenants:  tenants,
		Sink:     sink,
		Accounts: DefaultAccountExtractors(),
		Logger:   glog.Nop(),
		Metrics:  core.NopMetricsRecorder{},
	}
}

// Receive runs one delivery through the ladder and reports how to answer.
func (p *Processor) Receive(ctx context.Context, delivery Delivery) Receipt {
	if p == nil || p.Adapters == nil || (p.Sink == nil && p.Submitter == nil) {
		return Receipt{Status: http.StatusInternalServerError, Body: "webhook ingress is not configured"}
	}

	channel := core.BaseChannel(delivery.Channel)
	if channel == "" || !core.ChannelSupportsIntegrations(channel) {
		p.count(ctx, "unknown_channel", delivery.Channel, "")
		return Receipt{Status: http.StatusNotFound, Body: "unknown channel"}
	}
	delivery.Channel = channel

	if challenge := p.Challenges[channel]; challenge != nil {
		body, handled, err := challenge(ctx, delivery)
		if handled {
			if err != nil {
				p.log("warn", "webhook challenge rejected", "channel", channel, "error", err)
				p.count(ctx, "challenge_rejected", channel, delivery.TenantID)
				return Receipt{Status: http.StatusForbidden, Body: "challenge rejected"}
			}
			p.count(ctx, "challenge", channel, delivery.TenantID)
			return Receipt{Status: http.StatusOK, Body: body, Metadata: map[string]any{"challenge": true}}
		}
	}

	tenantID := strings.TrimSpace(delivery.TenantID)
	if tenantID == "" {
		tenantID = p.resolveTenant(ctx, channel, delivery.Body)
	}
	if tenantID == "" {
		p.log("warn", "webhook tenant not resolved", "channel", channel)
		p.count(ctx, "unresolved_tenant", channel, "")
		return p.ack(channel, "", "tenant not resolved")
	}
	delivery.TenantID = tenantID

	if verifier := p.Verifiers[channel]; verifier != nil {
		if err := verifier.Verify(ctx, tenantID, delivery); err != nil {
			p.log("warn", "webhook signature rejected", "channel", channel, "tenant_id", tenantID, "error", err)
			p.count(ctx, "rejected", channel, tenantID)
			return Receipt{Status: http.StatusUnauthorized, Body: "signature verification failed"}
		}
	}

	if p.Burst != nil {
		decision, err := p.Burst.Allow(ctx, delivery)
		if err != nil {
			p.log("warn", "webhook burst check failed", "channel", channel, "tenant_id", tenantID, "error", err)
		} else if !decision.Allow {
			p.count(ctx, "deduped", channel, tenantID)
			receipt := p.ack(channel, tenantID, "duplicate delivery")
			for key, value := range decision.Metadata {
				receipt.Metadata[key] = value
			}
			return receipt
		}
	}

	adapter, found, err := p.Adapters.ResolveAdapter(ctx, tenantID, channel)
	if err != nil {
		p.log("error", "webhook adapter resolution failed", "channel", channel, "tenant_id", tenantID, "error", err)
		p.count(ctx, "unavailable", channel, tenantID)
		return Receipt{Status: http.StatusServiceUnavailable, Body: "channel temporarily unavailable"}
	}
	if !found {
		p.count(ctx, "not_configured", channel, tenantID)
		return p.ack(channel, tenantID, "channel not configured")
	}

	msg, ok := adapter.ParseInbound(delivery.Body)
	if !ok {
		p.count(ctx, "no_envelope", channel, tenantID)
		return p.ack(channel, tenantID, "no message in payload")
	}
	msg.TenantID = tenantID

	if p.Submitter != nil {
		if err := p.Submitter.Submit(ctx, msg); err != nil {
			p.log("error", "webhook ingest queue refused envelope", "channel", channel, "tenant_id", tenantID, "error", err)
			p.count(ctx, "queue_unavailable", channel, tenantID)
			return Receipt{Status: http.StatusServiceUnavailable, Body: "ingestion queue unavailable"}
		}
		p.count(ctx, "queued", channel, tenantID)
		return Receipt{
			Status:   http.StatusAccepted,
			Body:     "queued",
			Metadata: map[string]any{"channel": channel, "tenant_id": tenantID, "queued": true},
		}
	}

	result := p.Sink.ProcessInbound(ctx, msg)
	p.count(ctx, "processed", channel, tenantID)
	metadata := map[string]any{
		"channel":   channel,
		"tenant_id": tenantID,
		"processed": true,
		"success":   result.Success,
	}
	if result.Error != "" {
		metadata["error"] = result.Error
	}
	return Receipt{Status: http.StatusOK, Body: "ok", Metadata: metadata}
}

func (p *Processor) resolveTenant(ctx context.Context, channel string, payload []byte) string {
	extractor := p.Accounts[channel]
	if extractor == nil || p.Tenants == nil {
		return ""
	}
	accountID, ok := extractor(payload)
	if !ok {
		return ""
	}
	tenantID, found, err := p.Tenants.ResolveTenantByProviderAccount(ctx, channel, accountID)
	if err != nil {
		p.log("warn", "webhook tenant lookup failed", "channel", channel, "account_id", accountID, "error", err)
		return ""
	}
	if !found {
		return ""
	}
	return tenantID
}

// ack is the always-acknowledge answer for deliveries the ladder drops on
// purpose. Providers must not retry these.
func (p *Processor) ack(channel, tenantID, reason string) Receipt {
	metadata := map[string]any{"channel": channel, "reason": reason}
	if tenantID != "" {
		metadata["tenant_id"] = tenantID
	}
	return Receipt{Status: http.StatusOK, Body: "ignored", Ignored: true, Metadata: metadata}
}

func (p *Processor) log(level, msg string, args ...any) {
	logger := p.Logger
	if logger == nil {
		return
	}
	switch level {
	case "error":
		logger.Error(msg, args...)
	case "warn":
		logger.Warn(msg, args...)
	default:
		logger.Debug(msg, args...)
	}
}

func (p *Processor) count(ctx context.Context, outcome, channel, tenantID string) {
	metrics := p.Metrics
	if metrics == nil {
		return
	}
	tags := map[string]string{"channel": channel}
	if tenantID != "" {
		tags["tenant_id"] = tenantID
	}
	metrics.IncCounter(ctx, "messaging.webhooks."+outcome+".total", 1, tags)
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
