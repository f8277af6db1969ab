package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service composes the resolver, the inbound pipeline, channel-based agent
// routing, and the outbound queue behind one operation surface. Every
// collaborator is injected; missing optional collaborators disable the
// operations that need them without failing construction.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
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
	resolver          *ChannelResolver
	agentRouter       *AgentChannelRouter
	processor         *InboundProcessor
	dispatcher        *OutboundDispatcher
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	SecretStore       SecretStore
	FactoryRegistry   FactoryRegistry
	AdapterCache      AdapterCache
	IntegrationStore  IntegrationStore
	ContactStore      ContactStore
	SessionStore      SessionStore
	AgentStore        AgentStore
	AgentRunner       AgentRunFunc
	ChannelSender     ChannelSender
	ReplayStore       ReplayClaimStore
	ProfileResolver   ProfileResolver
	SendThrottle      SendThrottle
	SessionJanitor    SessionJanitor
	JobEnqueuer       JobEnqueuer
	JobDequeuer       JobDequeuer
	WorkerHook        JobWorkerHook
	Resolver          *ChannelResolver
	AgentRouter       *AgentChannelRouter
	Processor         *InboundProcessor
	Dispatcher        *OutboundDispatcher
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("messaging", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("messaging"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.factoryRegistry == nil {
		builder.factoryRegistry = NewAdapterFactoryRegistry()
	}
	if builder.adapterCache == nil {
		builder.adapterCache = NewMemoryAdapterCache()
	}
	if builder.replayStore == nil {
		builder.replayStore = NewInMemoryReplayStore()
	}
	if builder.jobEnqueuer == nil && builder.jobDequeuer == nil {
		queue := NewInMemoryJobQueue()
		builder.jobEnqueuer = queue
		builder.jobDequeuer = queue
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	missingStores := builder.integrationStore == nil || builder.contactStore == nil ||
		builder.sessionStore == nil || builder.agentStore == nil
	if missingStores && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			fillBuilderStores(&builder, stores)
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			fillBuilderStores(&builder, stores)
		}
	}

	var agentRouter *AgentChannelRouter
	if builder.agentStore != nil {
		agentRouter = NewAgentChannelRouter(builder.agentStore, logger)
	}

	var resolver *ChannelResolver
	if builder.integrationStore != nil && builder.secretStore != nil {
		resolver, err = NewChannelResolver(ChannelResolverConfig{
			Integrations: builder.integrationStore,
			Secrets:      builder.secretStore,
			Factories:    builder.factoryRegistry,
			Cache:        builder.adapterCache,
			Logger:       logger,
		})
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	sender := builder.channelSender
	if sender == nil && resolver != nil {
		sender = resolver
	}

	var processor *InboundProcessor
	if builder.contactStore != nil && builder.sessionStore != nil && sender != nil && builder.agentRunner != nil {
		var advisory AgentResolver
		if agentRouter != nil {
			advisory = agentRouter
		}
		processor, err = NewInboundProcessor(InboundProcessorConfig{
			Contacts:       builder.contactStore,
			Sessions:       builder.sessionStore,
			Agents:         advisory,
			Sender:         sender,
			Runner:         builder.agentRunner,
			Replay:         builder.replayStore,
			Profiles:       builder.profileResolver,
			Logger:         logger,
			AgentTimeout:   finalConfig.Pipeline.AgentTimeout,
			ProcessTimeout: finalConfig.Pipeline.ProcessTimeout,
			ReplayLease:    finalConfig.Pipeline.ReplayLease,
		})
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	var dispatcher *OutboundDispatcher
	if builder.jobDequeuer != nil && sender != nil {
		dispatcher, err = NewOutboundDispatcher(builder.jobDequeuer, sender, finalConfig.Dispatch)
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
		if builder.sendThrottle != nil {
			dispatcher = dispatcher.WithThrottle(builder.sendThrottle)
		}
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		secretStore:       builder.secretStore,
		factoryRegistry:   builder.factoryRegistry,
		adapterCache:      builder.adapterCache,
		integrationStore:  builder.integrationStore,
		contactStore:      builder.contactStore,
		sessionStore:      builder.sessionStore,
		agentStore:        builder.agentStore,
		agentRunner:       builder.agentRunner,
		channelSender:     sender,
		replayStore:       builder.replayStore,
		profileResolver:   builder.profileResolver,
		sendThrottle:      builder.sendThrottle,
		sessionJanitor:    builder.sessionJanitor,
		jobEnqueuer:       builder.jobEnqueuer,
		jobDequeuer:       builder.jobDequeuer,
		workerHook:        builder.workerHook,
		resolver:          resolver,
		agentRouter:       agentRouter,
		processor:         processor,
		dispatcher:        dispatcher,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func fillBuilderStores(builder *serviceBuilder, stores StoreProvider) {
	if builder == nil || stores == nil {
		return
	}
	if builder.integrationStore == nil {
		builder.integrationStore = stores.IntegrationStore()
	}
	if builder.contactStore == nil {
		builder.contactStore = stores.ContactStore()
	}
	if builder.sessionStore == nil {
		builder.sessionStore = stores.SessionStore()
	}
	if builder.agentStore == nil {
		builder.agentStore = stores.AgentStore()
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		SecretStore:       s.secretStore,
		FactoryRegistry:   s.factoryRegistry,
		AdapterCache:      s.adapterCache,
		IntegrationStore:  s.integrationStore,
		ContactStore:      s.contactStore,
		SessionStore:      s.sessionStore,
		AgentStore:        s.agentStore,
		AgentRunner:       s.agentRunner,
		ChannelSender:     s.channelSender,
		ReplayStore:       s.replayStore,
		ProfileResolver:   s.profileResolver,
		SendThrottle:      s.sendThrottle,
		SessionJanitor:    s.sessionJanitor,
		JobEnqueuer:       s.jobEnqueuer,
		JobDequeuer:       s.jobDequeuer,
		WorkerHook:        s.workerHook,
		Resolver:          s.resolver,
		AgentRouter:       s.agentRouter,
		Processor:         s.processor,
		Dispatcher:        s.dispatcher,
	}
}

// ProcessInbound runs one normalized inbound message through the pipeline.
// The result always carries the outcome; failures never surface as panics or
// returned errors.
func (s *Service) ProcessInbound(ctx context.Context, msg InboundMessage) (result SendResult) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"channel":            msg.Channel,
		"tenant_id":          msg.TenantID,
		"sender_identifier":  msg.SenderIdentifier,
		"channel_message_id": msg.ChannelMessageID,
	}
	defer func() {
		var err error
		if !result.Success {
			err = errors.New(result.Error)
		}
		s.observeOperation(ctx, startedAt, "process_inbound", err, fields)
	}()

	if s == nil || s.processor == nil {
		return FailedSend("core: inbound processor is not configured")
	}
	return s.processor.Process(ctx, msg)
}

// Send dispatches one outbound message synchronously through the resolver
// path (or the injected sender override).
func (s *Service) Send(ctx context.Context, req SendRequest) (result SendResult) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id": req.TenantID,
		"channel":   req.Channel,
	}
	defer func() {
		var err error
		if !result.Success {
			err = errors.New(result.Error)
		}
		s.observeOperation(ctx, startedAt, "send", err, fields)
	}()

	if s == nil || s.channelSender == nil {
		return FailedSend("core: channel sender is not configured")
	}
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return FailedSend("core: send tenant_id is required")
	}
	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		return FailedSend("core: send channel is required")
	}
	if strings.TrimSpace(req.Message.Recipient) == "" {
		return FailedSend("core: send recipient is required")
	}
	if s.sendThrottle != nil {
		if throttleErr := s.sendThrottle.BeforeSend(ctx, tenantID, channel); throttleErr != nil {
			return FailedSend(throttleErr.Error())
		}
	}
	result = s.channelSender.Send(ctx, tenantID, channel, req.Message)
	if s.sendThrottle != nil {
		if observeErr := s.sendThrottle.AfterSend(ctx, tenantID, channel, result); observeErr != nil {
			fields["throttle_error"] = observeErr.Error()
		}
	}
	return result
}

// QueueOutbound enqueues one outbound message for asynchronous delivery by
// DispatchPending.
func (s *Service) QueueOutbound(ctx context.Context, req SendRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id": req.TenantID,
		"channel":   req.Channel,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "queue_outbound", err, fields)
	}()

	if s == nil || s.jobEnqueuer == nil {
		err = s.queueUnavailableError()
		return err
	}
	if strings.TrimSpace(req.TenantID) == "" {
		err = s.mapError(fmt.Errorf("core: send tenant_id is required"))
		return err
	}
	if strings.TrimSpace(req.Channel) == "" {
		err = s.mapError(fmt.Errorf("core: send channel is required"))
		return err
	}
	if strings.TrimSpace(req.Message.Recipient) == "" {
		err = s.mapError(fmt.Errorf("core: send recipient is required"))
		return err
	}
	if err = s.jobEnqueuer.Enqueue(ctx, EncodeOutboundJob(req)); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// DispatchPending drains up to batchSize queued outbound jobs. batchSize
// zero falls back to the configured default.
func (s *Service) DispatchPending(ctx context.Context, batchSize int) (stats DispatchStats, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"batch_size": batchSize,
	}
	defer func() {
		fields["claimed"] = stats.Claimed
		fields["delivered"] = stats.Delivered
		fields["retried"] = stats.Retried
		fields["throttled"] = stats.Throttled
		fields["failed"] = stats.Failed
		s.observeOperation(ctx, startedAt, "dispatch_pending", err, fields)
	}()

	if s == nil || s.dispatcher == nil {
		err = s.queueUnavailableError()
		return DispatchStats{}, err
	}
	stats, err = s.dispatcher.DispatchPending(ctx, batchSize)
	if err != nil {
		err = s.mapError(err)
	}
	return stats, err
}

// ResolveAdapter returns the cached or newly built adapter for one tenant and
// provider. Absent or paused integrations yield found false with a nil error.
func (s *Service) ResolveAdapter(ctx context.Context, tenantID, provider string) (adapter ChannelAdapter, found bool, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id": tenantID,
		"provider":  provider,
	}
	defer func() {
		fields["found"] = found
		s.observeOperation(ctx, startedAt, "resolve_adapter", err, fields)
	}()

	if s == nil || s.resolver == nil {
		err = s.resolverUnavailableError()
		return nil, false, err
	}
	adapter, found, err = s.resolver.ResolveAdapter(ctx, tenantID, provider)
	if err != nil {
		err = s.mapError(err)
	}
	return adapter, found, err
}

// InvalidateAdapter evicts one tenant's cached adapter so the next resolve
// re-reads configuration and credentials.
func (s *Service) InvalidateAdapter(ctx context.Context, tenantID, provider string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id": tenantID,
		"provider":  provider,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "invalidate_adapter", err, fields)
	}()

	if s == nil || s.resolver == nil {
		err = s.resolverUnavailableError()
		return err
	}
	if err = s.resolver.Invalidate(ctx, tenantID, provider); err != nil {
		err = s.mapError(err)
	}
	return err
}

// InvalidateTenant evicts every cached adapter for one tenant.
func (s *Service) InvalidateTenant(ctx context.Context, tenantID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id": tenantID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "invalidate_tenant", err, fields)
	}()

	if s == nil || s.resolver == nil {
		err = s.resolverUnavailableError()
		return err
	}
	if err = s.resolver.InvalidateTenant(ctx, tenantID); err != nil {
		err = s.mapError(err)
	}
	return err
}

// ResolveAgent picks the first active agent whose modes claim the channel.
// found is false when no agent claims it; that is not an error.
func (s *Service) ResolveAgent(ctx context.Context, tenantID, channel, role string) (match AgentMatch, found bool, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id": tenantID,
		"channel":   channel,
	}
	defer func() {
		if found {
			fields["agent_id"] = match.Agent.ID
			fields["mode"] = match.Resolution.Mode
		}
		s.observeOperation(ctx, startedAt, "resolve_agent", err, fields)
	}()

	if s == nil || s.agentRouter == nil {
		err = s.agentRouterUnavailableError()
		return AgentMatch{}, false, err
	}
	match, found, err = s.agentRouter.ResolveAgent(ctx, tenantID, channel, role)
	if err != nil {
		err = s.mapError(err)
	}
	return match, found, err
}

// CheckChannelCollision reports the first channel pattern among candidate
// that another active agent already claims. A nil collision means candidate
// is safe to save.
func (s *Service) CheckChannelCollision(ctx context.Context, tenantID, excludeAgentID string, candidate []AgentMode) (collision *ChannelCollision, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id": tenantID,
	}
	defer func() {
		if collision != nil {
			fields["colliding_agent_id"] = collision.AgentID
			fields["colliding_channel"] = collision.Channel
		}
		s.observeOperation(ctx, startedAt, "check_channel_collision", err, fields)
	}()

	if s == nil || s.agentRouter == nil {
		err = s.agentRouterUnavailableError()
		return nil, err
	}
	collision, err = s.agentRouter.CheckChannelCollision(ctx, tenantID, excludeAgentID, candidate)
	if err != nil {
		err = s.mapError(err)
	}
	return collision, err
}

// ResolveIntegration loads one integration by id, status regardless.
func (s *Service) ResolveIntegration(ctx context.Context, id string) (integration Integration, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"integration_id": id,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "resolve_integration", err, fields)
	}()

	if s == nil || s.resolver == nil {
		err = s.resolverUnavailableError()
		return Integration{}, err
	}
	integration, found, lookupErr := s.resolver.ResolveIntegration(ctx, id)
	if lookupErr != nil {
		err = s.mapError(lookupErr)
		return Integration{}, err
	}
	if !found {
		err = s.integrationNotFoundError(fmt.Sprintf("integration %q was not found", strings.TrimSpace(id)), map[string]any{
			"integration_id": id,
		})
		return Integration{}, err
	}
	return integration, nil
}

func (s *Service) ResolveTenantByIntegration(ctx context.Context, id string) (string, error) {
	integration, err := s.ResolveIntegration(ctx, id)
	if err != nil {
		return "", err
	}
	return integration.TenantID, nil
}

// ResolveTenantByProviderAccount maps a provider's own account id (the
// webhook's view of the world) back onto the owning tenant.
func (s *Service) ResolveTenantByProviderAccount(ctx context.Context, provider, accountID string) (tenantID string, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider":            provider,
		"provider_account_id": accountID,
	}
	defer func() {
		if tenantID != "" {
			fields["tenant_id"] = tenantID
		}
		s.observeOperation(ctx, startedAt, "resolve_tenant_by_provider_account", err, fields)
	}()

	if s == nil || s.resolver == nil {
		err = s.resolverUnavailableError()
		return "", err
	}
	tenantID, found, lookupErr := s.resolver.ResolveTenantByProviderAccount(ctx, provider, accountID)
	if lookupErr != nil {
		err = s.mapError(lookupErr)
		return "", err
	}
	if !found {
		err = s.integrationNotFoundError(
			fmt.Sprintf("no integration matches %s account %q", BaseChannel(provider), strings.TrimSpace(accountID)),
			map[string]any{"provider": provider, "provider_account_id": accountID},
		)
		return "", err
	}
	return tenantID, nil
}

// ExpireIdleSessions asks the configured janitor to close sessions that have
// gone idle for one tenant. It reports how many sessions were transitioned.
func (s *Service) ExpireIdleSessions(ctx context.Context, tenantID string) (expired int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id": tenantID,
	}
	defer func() {
		fields["expired"] = expired
		s.observeOperation(ctx, startedAt, "expire_idle_sessions", err, fields)
	}()

	if s == nil || s.sessionJanitor == nil {
		err = s.sessionJanitorUnavailableError()
		return 0, err
	}
	if strings.TrimSpace(tenantID) == "" {
		err = s.mapError(fmt.Errorf("core: tenant_id is required"))
		return 0, err
	}
	expired, err = s.sessionJanitor.ExpireIdle(ctx, tenantID)
	if err != nil {
		err = s.mapError(err)
	}
	return expired, err
}

// ChannelHealth probes every registered factory channel for one tenant.
func (s *Service) ChannelHealth(ctx context.Context, tenantID string) map[string]bool {
	if s == nil || s.resolver == nil {
		return map[string]bool{}
	}
	return s.resolver.Health(ctx, tenantID)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) queueUnavailableError() error {
	if s == nil || s.errorFactory == nil {
		return fmt.Errorf("core: outbound queue is unavailable")
	}
	return s.errorFactory("outbound queue is unavailable", goerrors.CategoryOperation).
		WithTextCode(MessagingErrorQueueUnavailable)
}

func (s *Service) resolverUnavailableError() error {
	if s == nil || s.errorFactory == nil {
		return fmt.Errorf("core: channel resolver is not configured")
	}
	return s.errorFactory("channel resolver is not configured", goerrors.CategoryOperation).
		WithTextCode(MessagingErrorChannelNotConfigured)
}

func (s *Service) agentRouterUnavailableError() error {
	if s == nil || s.errorFactory == nil {
		return fmt.Errorf("core: agent store is not configured")
	}
	return s.errorFactory("agent store is not configured", goerrors.CategoryOperation).
		WithTextCode(MessagingErrorAgentNotFound)
}

func (s *Service) sessionJanitorUnavailableError() error {
	if s == nil || s.errorFactory == nil {
		return fmt.Errorf("core: session janitor is not configured")
	}
	return s.errorFactory("session janitor is not configured", goerrors.CategoryOperation).
		WithTextCode(MessagingErrorInternal)
}

func (s *Service) integrationNotFoundError(message string, metadata map[string]any) error {
	if s == nil || s.errorFactory == nil {
		return fmt.Errorf("core: %s", message)
	}
	return s.errorFactory(message, goerrors.CategoryNotFound).
		WithTextCode(MessagingErrorIntegrationNotFound).
		WithMetadata(metadata)
}
