package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	MessagingErrorBadInput             = "MESSAGING_BAD_INPUT"
	MessagingErrorIntegrationNotFound  = "MESSAGING_INTEGRATION_NOT_FOUND"
	MessagingErrorChannelNotRoutable   = "MESSAGING_CHANNEL_NOT_ROUTABLE"
	MessagingErrorChannelNotConfigured = "MESSAGING_CHANNEL_NOT_CONFIGURED"
	MessagingErrorSecretUnavailable    = "MESSAGING_SECRET_UNAVAILABLE"
	MessagingErrorAgentNotFound        = "MESSAGING_AGENT_NOT_FOUND"
	MessagingErrorProfileNotFound      = "MESSAGING_PROFILE_NOT_FOUND"
	MessagingErrorDispatchFailed       = "MESSAGING_DISPATCH_FAILED"
	MessagingErrorQueueUnavailable     = "MESSAGING_QUEUE_UNAVAILABLE"
	MessagingErrorRateLimited          = "MESSAGING_RATE_LIMITED"
	MessagingErrorInternal             = "MESSAGING_INTERNAL_ERROR"
)

func messagingErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureMessagingErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not routable"):
		return newMessagingError(err.Error(), goerrors.CategoryBadInput, MessagingErrorChannelNotRoutable)
	case strings.Contains(msg, "integration") && strings.Contains(msg, "not found"):
		return newMessagingError(err.Error(), goerrors.CategoryNotFound, MessagingErrorIntegrationNotFound)
	case strings.Contains(msg, "agent") && strings.Contains(msg, "not found"):
		return newMessagingError(err.Error(), goerrors.CategoryNotFound, MessagingErrorAgentNotFound)
	case strings.Contains(msg, "profile") && strings.Contains(msg, "not found"):
		return newMessagingError(err.Error(), goerrors.CategoryNotFound, MessagingErrorProfileNotFound)
	case strings.Contains(msg, "secret"):
		return newMessagingError(err.Error(), goerrors.CategoryOperation, MessagingErrorSecretUnavailable)
	case strings.Contains(msg, "queue") && strings.Contains(msg, "unavailable"):
		return newMessagingError(err.Error(), goerrors.CategoryOperation, MessagingErrorQueueUnavailable)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return newMessagingError(err.Error(), goerrors.CategoryRateLimit, MessagingErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newMessagingError(err.Error(), goerrors.CategoryBadInput, MessagingErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureMessagingErrorEnvelope(mapped)
}

func newMessagingError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureMessagingErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureMessagingErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = messagingHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultMessagingTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultMessagingTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return MessagingErrorBadInput
	case goerrors.CategoryNotFound:
		return MessagingErrorIntegrationNotFound
	case goerrors.CategoryRateLimit:
		return MessagingErrorRateLimited
	case goerrors.CategoryOperation:
		return MessagingErrorDispatchFailed
	default:
		return MessagingErrorInternal
	}
}

func messagingHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
