package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type memoryIntegrationStore struct {
	mu                  sync.Mutex
	integrations        []Integration
	findPairCalls       int
	findIDCalls         int
	findAccountCalls    int
	invalidateCalls     int
	invalidatedTenants  []string
	findPairErr         error
	lastInvalidatedPair string
}

func newMemoryIntegrationStore(integrations ...Integration) *memoryIntegrationStore {
	return &memoryIntegrationStore{integrations: integrations}
}

func (s *memoryIntegrationStore) add(integration Integration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.integrations = append(s.integrations, integration)
}

func (s *memoryIntegrationStore) FindByTenantAndProvider(_ context.Context, tenantID, provider string) (Integration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findPairCalls++
	if s.findPairErr != nil {
		return Integration{}, false, s.findPairErr
	}
	for _, integration := range s.integrations {
		if integration.TenantID == tenantID && strings.EqualFold(integration.Provider, provider) {
			return integration, true, nil
		}
	}
	return Integration{}, false, nil
}

func (s *memoryIntegrationStore) FindByID(_ context.Context, id string) (Integration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findIDCalls++
	for _, integration := range s.integrations {
		if integration.ID == id {
			return integration, true, nil
		}
	}
	return Integration{}, false, nil
}

func (s *memoryIntegrationStore) FindByProviderAccount(_ context.Context, provider, accountID string) (Integration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findAccountCalls++
	for _, integration := range s.integrations {
		if strings.EqualFold(integration.Provider, provider) && integration.ProviderAccountID == accountID {
			return integration, true, nil
		}
	}
	return Integration{}, false, nil
}

func (s *memoryIntegrationStore) InvalidateIntegration(_ context.Context, tenantID, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidateCalls++
	s.invalidatedTenants = append(s.invalidatedTenants, tenantID)
	s.lastInvalidatedPair = tenantID + ":" + provider
	return nil
}

func (s *memoryIntegrationStore) pairLookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findPairCalls
}

type memoryContactStore struct {
	mu          sync.Mutex
	next        int
	contacts    []Contact
	createCalls int
	findErr     error
	createErr   error
}

func newMemoryContactStore(contacts ...Contact) *memoryContactStore {
	return &memoryContactStore{contacts: contacts}
}

func (s *memoryContactStore) FindByIdentifier(_ context.Context, tenantID, field, value string) (Contact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return Contact{}, false, s.findErr
	}
	for _, contact := range s.contacts {
		if contact.TenantID == tenantID && contact.Identifier(field) == value {
			return contact, true, nil
		}
	}
	return Contact{}, false, nil
}

func (s *memoryContactStore) Create(_ context.Context, in CreateContactInput) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return Contact{}, s.createErr
	}
	s.next++
	now := time.Now().UTC()
	contact := Contact{
		ID:        fmt.Sprintf("contact_%d", s.next),
		TenantID:  in.TenantID,
		Name:      in.Name,
		Role:      in.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch in.Identifier.Field {
	case ContactFieldPhone:
		contact.Phone = in.Identifier.Value
	case ContactFieldTelegramID:
		contact.TelegramID = in.Identifier.Value
	case ContactFieldSlackID:
		contact.SlackID = in.Identifier.Value
	case ContactFieldEmail:
		contact.Email = in.Identifier.Value
	default:
		return Contact{}, fmt.Errorf("unknown contact field %q", in.Identifier.Field)
	}
	s.contacts = append(s.contacts, contact)
	return contact, nil
}

func (s *memoryContactStore) all() []Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Contact(nil), s.contacts...)
}

type memorySessionStore struct {
	mu          sync.Mutex
	next        int
	sessions    []Session
	createCalls int
	listErr     error
	createErr   error
}

func newMemorySessionStore(sessions ...Session) *memorySessionStore {
	return &memorySessionStore{sessions: sessions}
}

func (s *memorySessionStore) ListActiveByTenant(_ context.Context, tenantID string) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := []Session{}
	for _, session := range s.sessions {
		if session.TenantID == tenantID && session.Status == SessionStatusActive {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *memorySessionStore) Create(_ context.Context, in CreateSessionInput) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return Session{}, s.createErr
	}
	s.next++
	now := time.Now().UTC()
	session := Session{
		ID:        fmt.Sprintf("session_%d", s.next),
		TenantID:  in.TenantID,
		Status:    SessionStatusActive,
		Metadata:  copyMetadata(in.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions = append(s.sessions, session)
	return session, nil
}

func (s *memorySessionStore) all() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Session(nil), s.sessions...)
}

func copyMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		out[key] = value
	}
	return out
}

type memoryAgentStore struct {
	mu        sync.Mutex
	agents    []Agent
	listCalls int
	listErr   error
}

func newMemoryAgentStore(agents ...Agent) *memoryAgentStore {
	return &memoryAgentStore{agents: agents}
}

func (s *memoryAgentStore) ListActive(_ context.Context, tenantID string) ([]Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := []Agent{}
	for _, agent := range s.agents {
		if agent.TenantID == tenantID && agent.Status == AgentStatusActive {
			out = append(out, agent)
		}
	}
	return out, nil
}

type staticSecretStore struct {
	mu      sync.Mutex
	secrets map[string]string
	calls   int
	err     error
}

func newStaticSecretStore(secrets map[string]string) *staticSecretStore {
	if secrets == nil {
		secrets = map[string]string{}
	}
	return &staticSecretStore{secrets: secrets}
}

func (s *staticSecretStore) Get(_ context.Context, tenantID, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	value, ok := s.secrets[tenantID+"/"+key]
	if !ok {
		return "", fmt.Errorf("secret %q not found for tenant %q", key, tenantID)
	}
	return value, nil
}

func (s *staticSecretStore) lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeAdapter struct {
	mu        sync.Mutex
	channel   string
	sent      []OutboundMessage
	result    *SendResult
	inbound   InboundMessage
	inboundOK bool
	unhealthy bool
}

func newFakeAdapter(channel string) *fakeAdapter {
	return &fakeAdapter{channel: channel}
}

func (a *fakeAdapter) Channel() string {
	return a.channel
}

func (a *fakeAdapter) Send(_ context.Context, msg OutboundMessage) SendResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, msg)
	if a.result != nil {
		return *a.result
	}
	return SendResult{Success: true, ChannelMessageID: fmt.Sprintf("%s_out_%d", a.channel, len(a.sent))}
}

func (a *fakeAdapter) ParseInbound([]byte) (InboundMessage, bool) {
	return a.inbound, a.inboundOK
}

func (a *fakeAdapter) IsHealthy(context.Context) bool {
	return !a.unhealthy
}

func (a *fakeAdapter) sentMessages() []OutboundMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]OutboundMessage(nil), a.sent...)
}

type fakeAdapterFactory struct {
	mu         sync.Mutex
	channel    string
	adapter    ChannelAdapter
	buildErr   error
	buildCalls int
	lastConfig AdapterConfig
}

func newFakeAdapterFactory(channel string, adapter ChannelAdapter) *fakeAdapterFactory {
	return &fakeAdapterFactory{channel: channel, adapter: adapter}
}

func (f *fakeAdapterFactory) Channel() string {
	return f.channel
}

func (f *fakeAdapterFactory) Build(_ context.Context, cfg AdapterConfig) (ChannelAdapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buildCalls++
	f.lastConfig = cfg
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return f.adapter, nil
}

func (f *fakeAdapterFactory) builds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buildCalls
}

type sendCall struct {
	tenantID string
	channel  string
	msg      OutboundMessage
}

type captureSender struct {
	mu     sync.Mutex
	calls  []sendCall
	result *SendResult
}

func (s *captureSender) Send(_ context.Context, tenantID, channel string, msg OutboundMessage) SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sendCall{tenantID: tenantID, channel: channel, msg: msg})
	if s.result != nil {
		return *s.result
	}
	return SendResult{Success: true, ChannelMessageID: fmt.Sprintf("dispatched_%d", len(s.calls))}
}

func (s *captureSender) sent() []sendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sendCall(nil), s.calls...)
}

type staticAgentResolver struct {
	mu    sync.Mutex
	match AgentMatch
	found bool
	err   error
	calls int
}

func (r *staticAgentResolver) ResolveAgent(context.Context, string, string, string) (AgentMatch, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.match, r.found, r.err
}

type failingReplayStore struct {
	err error
}

func (s failingReplayStore) Claim(context.Context, string, time.Duration) (string, bool, error) {
	return "", false, s.err
}

func (s failingReplayStore) Complete(context.Context, string) error {
	return s.err
}

func (s failingReplayStore) Fail(context.Context, string, error, time.Time) error {
	return s.err
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

func activeIntegration(id, tenantID, provider, accountID string) Integration {
	now := time.Now().UTC()
	return Integration{
		ID:                id,
		TenantID:          tenantID,
		Provider:          provider,
		ProviderAccountID: accountID,
		Config: IntegrationConfig{
			CredentialRefs: map[string]string{"token": "secret/" + provider + "/token"},
			Settings:       map[string]any{},
		},
		Status:    IntegrationStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func activeAgent(id, tenantID, name string, modes ...AgentMode) Agent {
	now := time.Now().UTC()
	return Agent{
		ID:            id,
		TenantID:      tenantID,
		Name:          name,
		Status:        AgentStatusActive,
		ToolAllowlist: []string{"search", "respond"},
		Modes:         modes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
