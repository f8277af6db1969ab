package sqlstore

import (
	"time"

	"github.com/marianoberton/go-messaging/core"
	"github.com/uptrace/bun"
)

type integrationRecord struct {
	bun.BaseModel `bun:"table:messaging_integrations,alias:mi"`

	ID                string            `bun:"id,pk"`
	TenantID          string            `bun:"tenant_id,notnull"`
	Provider          string            `bun:"provider,notnull"`
	ProviderAccountID string            `bun:"provider_account_id"`
	CredentialRefs    map[string]string `bun:"credential_refs,type:jsonb,notnull"`
	Settings          map[string]any    `bun:"settings,type:jsonb,notnull"`
	Status            string            `bun:"status,notnull"`
	CreatedAt         time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt         *time.Time        `bun:"deleted_at,soft_delete"`
}

type contactRecord struct {
	bun.BaseModel `bun:"table:messaging_contacts,alias:mc"`

	ID         string     `bun:"id,pk"`
	TenantID   string     `bun:"tenant_id,notnull"`
	Name       string     `bun:"name"`
	Phone      string     `bun:"phone"`
	TelegramID string     `bun:"telegram_id"`
	SlackID    string     `bun:"slack_id"`
	Email      string     `bun:"email"`
	Role       string     `bun:"role"`
	CreatedAt  time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt  *time.Time `bun:"deleted_at,soft_delete"`
}

type sessionRecord struct {
	bun.BaseModel `bun:"table:messaging_sessions,alias:ms"`

	ID        string         `bun:"id,pk"`
	TenantID  string         `bun:"tenant_id,notnull"`
	Status    string         `bun:"status,notnull"`
	Metadata  map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt *time.Time     `bun:"deleted_at,soft_delete"`
}

type agentRecord struct {
	bun.BaseModel `bun:"table:messaging_agents,alias:ma"`

	ID            string           `bun:"id,pk"`
	TenantID      string           `bun:"tenant_id,notnull"`
	Name          string           `bun:"name,notnull"`
	Status        string           `bun:"status,notnull"`
	ToolAllowlist []string         `bun:"tool_allowlist,type:jsonb,notnull"`
	Modes         []core.AgentMode `bun:"modes,type:jsonb,notnull"`
	Position      int              `bun:"position,notnull"`
	CreatedAt     time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time        `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt     *time.Time       `bun:"deleted_at,soft_delete"`
}
