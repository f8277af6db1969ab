package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// SendRequest addresses one outbound message through the multi-tenant
// resolver path.
type SendRequest struct {
	TenantID string
	Channel  string
	Message  OutboundMessage
}

// ContactIdentifier pairs a structural identifier column with its value.
type ContactIdentifier struct {
	Field string
	Value string
}

type CreateContactInput struct {
	TenantID   string
	Name       string
	Role       string
	Identifier ContactIdentifier
}

type CreateSessionInput struct {
	TenantID string
	Metadata map[string]any
}

// ContactProfile is provider-sourced sender enrichment. DisplayName is the
// composed human name; the remaining fields carry whatever the provider
// exposes and may be empty.
type ContactProfile struct {
	DisplayName string
	FirstName   string
	LastName    string
	Username    string
	AvatarURL   string
	Locale      string
}

func (p ContactProfile) IsZero() bool {
	return p == ContactProfile{}
}

// AgentRun carries the parameters handed to the injected agent-run callback.
// AgentID is empty and Mode is the zero value when channel routing resolved no
// agent.
type AgentRun struct {
	TenantID    string
	SessionID   string
	ContactID   string
	AgentID     string
	Channel     string
	ContactRole string
	Message     string
	Mode        ModeResolution
}

type AgentResponse struct {
	Response string
}

// AgentMatch is the outcome of channel-based agent routing: the winning agent
// together with its effective mode.
type AgentMatch struct {
	Agent      Agent
	Resolution ModeResolution
}

// ChannelCollision reports the first channel pattern claimed by more than one
// active agent.
type ChannelCollision struct {
	AgentID   string
	AgentName string
	Channel   string
}

// AdapterConfig is everything a factory needs to construct one adapter:
// the integration row, its credential references resolved to plaintext, and
// the non-secret provider settings.
type AdapterConfig struct {
	TenantID    string
	Integration Integration
	Credentials map[string]string
	Settings    map[string]any
	Logger      Logger
}

// ChannelAdapter is the flat capability surface every provider implements.
// Send captures failures in the result and never returns an error;
// ParseInbound returns false for payloads the pipeline must ignore (status
// callbacks, handshakes, bot echoes).
type ChannelAdapter interface {
	Channel() string
	Send(ctx context.Context, msg OutboundMessage) SendResult
	ParseInbound(payload []byte) (InboundMessage, bool)
	IsHealthy(ctx context.Context) bool
}

// ProfileFetcher is an optional adapter capability: adapters that can look up
// sender details from the provider API implement it in addition to
// ChannelAdapter. Callers type-assert; absence means the channel has no
// profile lookup.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, msg InboundMessage) (ContactProfile, error)
}

// AdapterFactory constructs adapters for one channel from resolved tenant
// configuration.
type AdapterFactory interface {
	Channel() string
	Build(ctx context.Context, cfg AdapterConfig) (ChannelAdapter, error)
}

type FactoryRegistry interface {
	Register(factory AdapterFactory) error
	Get(channel string) (AdapterFactory, bool)
	List() []AdapterFactory
}

// AdapterCache holds constructed adapter instances keyed "tenantId:provider".
// Implementations must be safe for concurrent use; the cache is always
// injected, never module-level.
type AdapterCache interface {
	Get(key string) (ChannelAdapter, bool)
	Set(key string, adapter ChannelAdapter)
	Delete(key string)
	DeletePrefix(prefix string)
}

// ChannelSender is the dispatch seam the inbound pipeline sends replies
// through. The resolver implements it; single-tenant deployments can satisfy
// it with a router.
type ChannelSender interface {
	Send(ctx context.Context, tenantID, channel string, msg OutboundMessage) SendResult
}

// SendThrottle gates outbound deliveries per tenant and channel. BeforeSend
// returns an error to postpone the send; AfterSend feeds the delivery outcome
// back so the throttle can react to provider push-back.
type SendThrottle interface {
	BeforeSend(ctx context.Context, tenantID, channel string) error
	AfterSend(ctx context.Context, tenantID, channel string, result SendResult) error
}

type IntegrationStore interface {
	FindByTenantAndProvider(ctx context.Context, tenantID, provider string) (Integration, bool, error)
	FindByID(ctx context.Context, id string) (Integration, bool, error)
	FindByProviderAccount(ctx context.Context, provider, accountID string) (Integration, bool, error)
}

// IntegrationInvalidator is an optional capability of caching integration
// stores. The resolver calls it alongside adapter cache eviction.
type IntegrationInvalidator interface {
	InvalidateIntegration(ctx context.Context, tenantID, provider string) error
}

// SecretStore resolves tenant-scoped secret references. Get fails when the
// key is absent.
type SecretStore interface {
	Get(ctx context.Context, tenantID, key string) (string, error)
}

type ContactStore interface {
	FindByIdentifier(ctx context.Context, tenantID, field, value string) (Contact, bool, error)
	Create(ctx context.Context, in CreateContactInput) (Contact, error)
}

// SessionStore lists a tenant's active sessions for the pipeline's linear
// contact scan. The scan is O(active sessions) per tenant; acceptable at the
// session counts this pipeline targets.
type SessionStore interface {
	ListActiveByTenant(ctx context.Context, tenantID string) ([]Session, error)
	Create(ctx context.Context, in CreateSessionInput) (Session, error)
}

// AgentStore returns active agents in listing order; routing scans them in
// the order returned.
type AgentStore interface {
	ListActive(ctx context.Context, tenantID string) ([]Agent, error)
}

type StoreProvider interface {
	IntegrationStore() IntegrationStore
	ContactStore() ContactStore
	SessionStore() SessionStore
	AgentStore() AgentStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// AgentRunFunc is the seam to the conversational engine.
type AgentRunFunc func(ctx context.Context, run AgentRun) (AgentResponse, error)

// ProfileResolver looks up sender enrichment when an inbound message arrives
// without a usable sender name. The pipeline treats it as advisory: failures
// are logged, never raised.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, tenantID string, msg InboundMessage) (ContactProfile, error)
}

// SessionJanitor expires sessions that have gone idle. ExpireIdle reports how
// many sessions it transitioned.
type SessionJanitor interface {
	ExpireIdle(ctx context.Context, tenantID string) (int, error)
}

// ReplayClaimStore dedups inbound deliveries. Claim returns accepted=false
// when the key is already held; Complete settles a claim and Fail releases it
// for redelivery after retryAt.
type ReplayClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type CommandMessage interface {
	Type() string
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, msg any) error
}

type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Throttled int
	Failed    int
}

type QueueDispatcher interface {
	DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error)
}

// MessagingService is the operation surface the facade and command layer
// consume.
type MessagingService interface {
	ProcessInbound(ctx context.Context, msg InboundMessage) SendResult
	Send(ctx context.Context, req SendRequest) SendResult
	QueueOutbound(ctx context.Context, req SendRequest) error
	DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error)
	ResolveAdapter(ctx context.Context, tenantID, provider string) (ChannelAdapter, bool, error)
	InvalidateAdapter(ctx context.Context, tenantID, provider string) error
	InvalidateTenant(ctx context.Context, tenantID string) error
	ResolveAgent(ctx context.Context, tenantID, channel, role string) (AgentMatch, bool, error)
	CheckChannelCollision(ctx context.Context, tenantID, excludeAgentID string, candidate []AgentMode) (*ChannelCollision, error)
	ResolveIntegration(ctx context.Context, id string) (Integration, error)
	ResolveTenantByIntegration(ctx context.Context, id string) (string, error)
	ResolveTenantByProviderAccount(ctx context.Context, provider, accountID string) (string, error)
	ExpireIdleSessions(ctx context.Context, tenantID string) (int, error)
}
