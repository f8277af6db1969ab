package messaging

import "github.com/marianoberton/go-messaging/core"

type Config = core.Config

type PipelineConfig = core.PipelineConfig

type DispatchConfig = core.DispatchConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type SecretStore = core.SecretStore
type FactoryRegistry = core.FactoryRegistry
type AdapterCache = core.AdapterCache
type IntegrationStore = core.IntegrationStore
type ContactStore = core.ContactStore
type SessionStore = core.SessionStore
type AgentStore = core.AgentStore
type ReplayClaimStore = core.ReplayClaimStore
type ChannelSender = core.ChannelSender
type AgentRunFunc = core.AgentRunFunc
type ProfileResolver = core.ProfileResolver
type SendThrottle = core.SendThrottle
type SessionJanitor = core.SessionJanitor
type ContactProfile = core.ContactProfile

type ChannelAdapter = core.ChannelAdapter
type AdapterFactory = core.AdapterFactory
type AdapterConfig = core.AdapterConfig

type InboundMessage = core.InboundMessage

type OutboundMessage = core.OutboundMessage

type SendRequest = core.SendRequest

type SendResult = core.SendResult

type DispatchStats = core.DispatchStats

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithSecretStore       = core.WithSecretStore
	WithFactoryRegistry   = core.WithFactoryRegistry
	WithAdapterCache      = core.WithAdapterCache
	WithIntegrationStore  = core.WithIntegrationStore
	WithContactStore      = core.WithContactStore
	WithSessionStore      = core.WithSessionStore
	WithAgentStore        = core.WithAgentStore
	WithAgentRunner       = core.WithAgentRunner
	WithChannelSender     = core.WithChannelSender
	WithReplayClaimStore  = core.WithReplayClaimStore
	WithProfileResolver   = core.WithProfileResolver
	WithSendThrottle      = core.WithSendThrottle
	WithSessionJanitor    = core.WithSessionJanitor
	WithJobEnqueuer       = core.WithJobEnqueuer
	WithJobDequeuer       = core.WithJobDequeuer
	WithJobWorkerHook     = core.WithJobWorkerHook
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
