package inbound

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/marianoberton/go-messaging/core"
)

func inboundError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func queueUnavailable(message string) error {
	return inboundError(
		message,
		goerrors.CategoryOperation,
		http.StatusServiceUnavailable,
		core.MessagingErrorQueueUnavailable,
		nil,
	)
}

func queueSaturated(depth, capacity int) error {
	return inboundError(
		"inbound: queue is full",
		goerrors.CategoryRateLimit,
		http.StatusTooManyRequests,
		core.MessagingErrorRateLimited,
		map[string]any{
			"queue_depth":    depth,
			"queue_capacity": capacity,
		},
	)
}

func badMessage(cause error) error {
	return goerrors.Wrap(cause, goerrors.CategoryBadInput, "inbound: message is not ingestible").
		WithCode(http.StatusBadRequest).
		WithTextCode(core.MessagingErrorBadInput)
}
