package command

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/marianoberton/go-messaging/core"
)

// Handler failures fall into two buckets: missing wiring and bad message
// payloads. Both carry an HTTP code and a text code so transports can map
// them without parsing messages.

func commandDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.MessagingErrorInternal)
}

func badInput(err *goerrors.Error) *goerrors.Error {
	return err.WithCode(http.StatusBadRequest).WithTextCode(core.MessagingErrorBadInput)
}

func commandValidationError(field string, message string) error {
	return badInput(goerrors.NewValidation("command: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	})).WithSeverity(goerrors.SeverityError)
}

func commandInvalidInputError(message string) error {
	return badInput(goerrors.New(message, goerrors.CategoryBadInput))
}

func commandWrapValidation(err error, message string) error {
	if err == nil {
		return nil
	}
	return badInput(goerrors.Wrap(err, goerrors.CategoryValidation, message))
}
