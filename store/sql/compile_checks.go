package sqlstore

import "github.com/marianoberton/go-messaging/core"

var (
	_ core.IntegrationStore       = (*IntegrationStore)(nil)
	_ core.IntegrationStore       = (*CachedIntegrationStore)(nil)
	_ core.IntegrationInvalidator = (*CachedIntegrationStore)(nil)
	_ core.ContactStore           = (*ContactStore)(nil)
	_ core.SessionStore           = (*SessionStore)(nil)
	_ core.AgentStore             = (*AgentStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
