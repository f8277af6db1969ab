package query

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/marianoberton/go-messaging/core"
)

// Read-side failures mirror the command package: missing wiring is internal,
// malformed query messages are validation errors with field detail.

func queryDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.MessagingErrorInternal)
}

func queryValidationError(field string, message string) error {
	return goerrors.NewValidation("query: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.MessagingErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}
