package identity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/marianoberton/go-messaging/core"
)

// PayloadExtractor reads sender details straight out of a channel's raw
// webhook payload. Extractors never touch the network; a zero profile means
// the payload carried nothing usable.
type PayloadExtractor func(payload []byte) core.ContactProfile

// DefaultExtractors maps each built-in channel to its payload extractor.
// Slack has none: Events API callbacks only carry the user id, so Slack
// profiles always go through the adapter fetch tier.
func DefaultExtractors() map[string]PayloadExtractor {
	return map[string]PayloadExtractor{
		core.ChannelTelegram: TelegramPayloadProfile,
		core.ChannelWhatsApp: WhatsAppPayloadProfile,
		core.ChannelChatHub:  ChatHubPayloadProfile,
	}
}

// TelegramPayloadProfile reads the from block of a Bot API update.
func TelegramPayloadProfile(payload []byte) core.ContactProfile {
	doc := decodeDocument(payload)
	from := mapValue(mapValue(doc, "message"), "from")
	if from == nil {
		return core.ContactProfile{}
	}
	return normalizeProfile(core.ContactProfile{
		FirstName: readString(from["first_name"]),
		LastName:  readString(from["last_name"]),
		Username:  readString(from["username"]),
		Locale:    readString(from["language_code"]),
	})
}

// WhatsAppPayloadProfile reads the contacts block a Cloud API webhook
// attaches next to each message batch.
func WhatsAppPayloadProfile(payload []byte) core.ContactProfile {
	doc := decodeDocument(payload)
	for _, entry := range sliceValue(doc["entry"]) {
		for _, change := range sliceValue(entry["changes"]) {
			value := mapValue(change, "value")
			for _, contact := range sliceValue(value["contacts"]) {
				name := readString(mapValue(contact, "profile")["name"])
				if name != "" {
					return normalizeProfile(core.ContactProfile{DisplayName: name})
				}
			}
		}
	}
	return core.ContactProfile{}
}

// ChatHubPayloadProfile reads the sender block of a message_created webhook.
func ChatHubPayloadProfile(payload []byte) core.ContactProfile {
	doc := decodeDocument(payload)
	sender := mapValue(doc, "sender")
	if sender == nil {
		return core.ContactProfile{}
	}
	return normalizeProfile(core.ContactProfile{
		DisplayName: readString(sender["name"]),
		AvatarURL:   readString(sender["thumbnail"]),
	})
}

// normalizeProfile trims every field and composes a display name when the
// payload carried only parts.
func normalizeProfile(profile core.ContactProfile) core.ContactProfile {
	profile.DisplayName = strings.TrimSpace(profile.DisplayName)
	profile.FirstName = strings.TrimSpace(profile.FirstName)
	profile.LastName = strings.TrimSpace(profile.LastName)
	profile.Username = strings.TrimSpace(profile.Username)
	profile.AvatarURL = strings.TrimSpace(profile.AvatarURL)
	profile.Locale = strings.TrimSpace(profile.Locale)
	if profile.DisplayName == "" {
		profile.DisplayName = strings.TrimSpace(profile.FirstName + " " + profile.LastName)
	}
	if profile.DisplayName == "" {
		profile.DisplayName = profile.Username
	}
	return profile
}

func decodeDocument(payload []byte) map[string]any {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil
	}
	return doc
}

func mapValue(doc map[string]any, key string) map[string]any {
	if doc == nil {
		return nil
	}
	nested, _ := doc[key].(map[string]any)
	return nested
}

func sliceValue(value any) []map[string]any {
	raw, _ := value.([]any)
	if len(raw) == 0 {
		return nil
	}
	items := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if typed, ok := entry.(map[string]any); ok {
			items = append(items, typed)
		}
	}
	return items
}

func readString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	case json.Number:
		return strings.TrimSpace(typed.String())
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	default:
		return ""
	}
}
