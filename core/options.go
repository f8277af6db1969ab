package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	persistenceClient any
	repositoryFactory any
	secretStore       SecretStore
	factoryRegistry   FactoryRegistry
	adapterCache      AdapterCache
	integrationStore  IntegrationStore
	contactStore      ContactStore
	sessionStore      SessionStore
	agentStore        AgentStore
	agentRunner       AgentRunFunc
	channelSender     ChannelSender
	replayStore       ReplayClaimStore
	profileResolver   ProfileResolver
	sendThrottle      SendThrottle
	sessionJanitor    SessionJanitor
	jobEnqueuer       JobEnqueuer
	jobDequeuer       JobDequeuer
	workerHook        JobWorkerHook
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithSecretStore(store SecretStore) Option {
	return func(b *serviceBuilder) {
		b.secretStore = store
	}
}

func WithFactoryRegistry(registry FactoryRegistry) Option {
	return func(b *serviceBuilder) {
		b.factoryRegistry = registry
	}
}

func WithAdapterCache(cache AdapterCache) Option {
	return func(b *serviceBuilder) {
		b.adapterCache = cache
	}
}

func WithIntegrationStore(store IntegrationStore) Option {
	return func(b *serviceBuilder) {
		b.integrationStore = store
	}
}

func WithContactStore(store ContactStore) Option {
	return func(b *serviceBuilder) {
		b.contactStore = store
	}
}

func WithSessionStore(store SessionStore) Option {
	return func(b *serviceBuilder) {
		b.sessionStore = store
	}
}

func WithAgentStore(store AgentStore) Option {
	return func(b *serviceBuilder) {
		b.agentStore = store
	}
}

func WithAgentRunner(runner AgentRunFunc) Option {
	return func(b *serviceBuilder) {
		b.agentRunner = runner
	}
}

func WithChannelSender(sender ChannelSender) Option {
	return func(b *serviceBuilder) {
		b.channelSender = sender
	}
}

func WithReplayClaimStore(store ReplayClaimStore) Option {
	return func(b *serviceBuilder) {
		b.replayStore = store
	}
}

func WithProfileResolver(resolver ProfileResolver) Option {
	return func(b *serviceBuilder) {
		b.profileResolver = resolver
	}
}

func WithSendThrottle(throttle SendThrottle) Option {
	return func(b *serviceBuilder) {
		b.sendThrottle = throttle
	}
}

func WithSessionJanitor(janitor SessionJanitor) Option {
	return func(b *serviceBuilder) {
		b.sessionJanitor = janitor
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func WithJobDequeuer(dequeuer JobDequeuer) Option {
	return func(b *serviceBuilder) {
		b.jobDequeuer = dequeuer
	}
}

func WithJobWorkerHook(hook JobWorkerHook) Option {
	return func(b *serviceBuilder) {
		b.workerHook = hook
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("messaging", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		factoryRegistry: NewAdapterFactoryRegistry(),
		adapterCache:    NewMemoryAdapterCache(),
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return messagingErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	pipeline := map[string]any{}
	if includeZero || cfg.Pipeline.AgentTimeout != 0 {
		pipeline["agent_timeout"] = cfg.Pipeline.AgentTimeout
	}
	if includeZero || cfg.Pipeline.ProcessTimeout != 0 {
		pipeline["process_timeout"] = cfg.Pipeline.ProcessTimeout
	}
	if includeZero || cfg.Pipeline.ReplayLease != 0 {
		pipeline["replay_lease"] = cfg.Pipeline.ReplayLease
	}
	if len(pipeline) > 0 {
		layer["pipeline"] = pipeline
	}

	dispatch := map[string]any{}
	if includeZero || cfg.Dispatch.BatchSize != 0 {
		dispatch["batch_size"] = cfg.Dispatch.BatchSize
	}
	if includeZero || cfg.Dispatch.MaxAttempts != 0 {
		dispatch["max_attempts"] = cfg.Dispatch.MaxAttempts
	}
	if includeZero || cfg.Dispatch.InitialBackoff != 0 {
		dispatch["initial_backoff"] = cfg.Dispatch.InitialBackoff
	}
	if includeZero || cfg.Dispatch.MaxBackoff != 0 {
		dispatch["max_backoff"] = cfg.Dispatch.MaxBackoff
	}
	if len(dispatch) > 0 {
		layer["dispatch"] = dispatch
	}
	return layer
}

// durationOrDefault is used by components that accept zero-valued configs.
func durationOrDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
