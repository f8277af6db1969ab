package messaging

import (
	"github.com/marianoberton/go-messaging/core"
	"github.com/marianoberton/go-messaging/providers/chathub"
	"github.com/marianoberton/go-messaging/providers/slack"
	"github.com/marianoberton/go-messaging/providers/telegram"
	"github.com/marianoberton/go-messaging/providers/whatsapp"
)

func TelegramAdapter(cfg telegram.Config) (core.ChannelAdapter, error) {
	return telegram.New(cfg)
}

func SlackAdapter(cfg slack.Config) (core.ChannelAdapter, error) {
	return slack.New(cfg)
}

func WhatsAppAdapter(cfg whatsapp.Config) (core.ChannelAdapter, error) {
	return whatsapp.New(cfg)
}

func ChatHubAdapter(cfg chathub.Config) (core.ChannelAdapter, error) {
	return chathub.New(cfg)
}

// BuiltinFactories returns one factory per built-in channel, in registration
// order.
func BuiltinFactories() []core.AdapterFactory {
	return []core.AdapterFactory{
		telegram.NewFactory(),
		whatsapp.NewFactory(),
		slack.NewFactory(),
		chathub.NewFactory(),
	}
}

// RegisterBuiltinFactories registers every built-in channel factory on the
// given registry. The resolver uses the registry to construct adapters
// per tenant from integration credentials.
func RegisterBuiltinFactories(registry core.FactoryRegistry) error {
	for _, factory := range BuiltinFactories() {
		if err := registry.Register(factory); err != nil {
			return err
		}
	}
	return nil
}

// NewBuiltinFactoryRegistry returns a registry pre-loaded with all built-in
// channel factories.
func NewBuiltinFactoryRegistry() (core.FactoryRegistry, error) {
	registry := core.NewAdapterFactoryRegistry()
	if err := RegisterBuiltinFactories(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
