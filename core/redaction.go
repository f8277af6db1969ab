package core

import "strings"

const RedactedValue = "[REDACTED]"

// Substrings that mark a key as credential-bearing wherever it appears in a
// metadata tree.
var sensitiveKeyTokens = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"api_key",
	"apikey",
	"access_key",
	"credential",
	"signature",
	"webhook_url",
}

// Correlation ids that must stay visible in logs. The allowlist wins over
// token matches so growing sensitiveKeyTokens can never mask them.
var traceabilityKeys = map[string]struct{}{
	"tenant_id":          {},
	"channel":            {},
	"provider":           {},
	"integration_id":     {},
	"contact_id":         {},
	"session_id":         {},
	"agent_id":           {},
	"channel_message_id": {},
	"job_id":             {},
	"idempotency_key":    {},
	"trace_id":           {},
	"request_id":         {},
}

// RedactSensitiveMap returns a copy of metadata that is safe to log:
// credential-bearing keys are masked recursively while correlation ids stay
// visible. Adapter configs and error metadata flow through here before they
// reach structured logs.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if sensitiveKey(key) {
			out[key] = RedactedValue
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return RedactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactValue(item)
		}
		return out
	default:
		return value
	}
}

func sensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, visible := traceabilityKeys[key]; visible {
		return false
	}
	for _, token := range sensitiveKeyTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}
