package core

import (
	"context"
	"fmt"
	"strings"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// metricTagKeys are the context fields promoted onto metric tags. Everything
// else stays log-only to keep tag cardinality bounded.
var metricTagKeys = []string{"tenant_id", "channel", "provider", "agent_id", "contact_id", "session_id"}

func operationTags(operation, status string, fields map[string]any) map[string]string {
	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range metricTagKeys {
		if value := strings.TrimSpace(fmt.Sprint(fields[key])); value != "" && value != "<nil>" {
			tags[key] = value
		}
	}
	return tags
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
