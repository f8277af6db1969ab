package transport

import (
	goerrors "github.com/goliatone/go-errors"

	"github.com/marianoberton/go-messaging/core"
)

func clientError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(clientTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func clientWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return clientError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(clientTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func clientTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.MessagingErrorBadInput
	case goerrors.CategoryRateLimit:
		return core.MessagingErrorRateLimited
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return core.MessagingErrorDispatchFailed
	default:
		return core.MessagingErrorInternal
	}
}
