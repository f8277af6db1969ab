package sqlstore

import (
	"time"

	"github.com/marianoberton/go-messaging/core"
)

func newIntegrationRecord(in core.Integration, now time.Time) *integrationRecord {
	status := string(in.Status)
	if status == "" {
		status = string(core.IntegrationStatusActive)
	}
	return &integrationRecord{
		ID:                in.ID,
		TenantID:          in.TenantID,
		Provider:          in.Provider,
		ProviderAccountID: in.ProviderAccountID,
		CredentialRefs:    copyStringMap(in.Config.CredentialRefs),
		Settings:          copyAnyMap(in.Config.Settings),
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (r *integrationRecord) toDomain() core.Integration {
	if r == nil {
		return core.Integration{}
	}
	return core.Integration{
		ID:                r.ID,
		TenantID:          r.TenantID,
		Provider:          r.Provider,
		ProviderAccountID: r.ProviderAccountID,
		Config: core.IntegrationConfig{
			CredentialRefs: copyStringMap(r.CredentialRefs),
			Settings:       copyAnyMap(r.Settings),
		},
		Status:    core.IntegrationStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func newContactRecord(in core.CreateContactInput, now time.Time) *contactRecord {
	record := &contactRecord{
		TenantID:  in.TenantID,
		Name:      in.Name,
		Role:      in.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch in.Identifier.Field {
	case core.ContactFieldPhone:
		record.Phone = in.Identifier.Value
	case core.ContactFieldTelegramID:
		record.TelegramID = in.Identifier.Value
	case core.ContactFieldSlackID:
		record.SlackID = in.Identifier.Value
	case core.ContactFieldEmail:
		record.Email = in.Identifier.Value
	}
	return record
}

func (r *contactRecord) toDomain() core.Contact {
	if r == nil {
		return core.Contact{}
	}
	return core.Contact{
		ID:         r.ID,
		TenantID:   r.TenantID,
		Name:       r.Name,
		Phone:      r.Phone,
		TelegramID: r.TelegramID,
		SlackID:    r.SlackID,
		Email:      r.Email,
		Role:       r.Role,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func newSessionRecord(in core.CreateSessionInput, now time.Time) *sessionRecord {
	metadata := copyAnyMap(in.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &sessionRecord{
		TenantID:  in.TenantID,
		Status:    string(core.SessionStatusActive),
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *sessionRecord) toDomain() core.Session {
	if r == nil {
		return core.Session{}
	}
	return core.Session{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Status:    core.SessionStatus(r.Status),
		Metadata:  copyAnyMap(r.Metadata),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func newAgentRecord(in core.Agent, now time.Time) *agentRecord {
	status := string(in.Status)
	if status == "" {
		status = string(core.AgentStatusActive)
	}
	allowlist := copyStrings(in.ToolAllowlist)
	if allowlist == nil {
		allowlist = []string{}
	}
	modes := copyAgentModes(in.Modes)
	if modes == nil {
		modes = []core.AgentMode{}
	}
	return &agentRecord{
		ID:            in.ID,
		TenantID:      in.TenantID,
		Name:          in.Name,
		Status:        status,
		ToolAllowlist: allowlist,
		Modes:         modes,
		Position:      in.Position,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (r *agentRecord) toDomain() core.Agent {
	if r == nil {
		return core.Agent{}
	}
	return core.Agent{
		ID:            r.ID,
		TenantID:      r.TenantID,
		Name:          r.Name,
		Status:        core.AgentStatus(r.Status),
		ToolAllowlist: copyStrings(r.ToolAllowlist),
		Modes:         copyAgentModes(r.Modes),
		Position:      r.Position,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func copyStringMap(input map[string]string) map[string]string {
	if input == nil {
		return nil
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

func copyAnyMap(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

func copyStrings(input []string) []string {
	if input == nil {
		return nil
	}
	return append([]string(nil), input...)
}

func copyAgentModes(input []core.AgentMode) []core.AgentMode {
	if input == nil {
		return nil
	}
	out := make([]core.AgentMode, len(input))
	for i, mode := range input {
		copied := mode
		copied.ChannelMapping = copyStrings(mode.ChannelMapping)
		copied.ToolAllowlist = copyStrings(mode.ToolAllowlist)
		copied.SubTools = copyStrings(mode.SubTools)
		copied.PromptOverrides = copyStringMap(mode.PromptOverrides)
		out[i] = copied
	}
	return out
}
