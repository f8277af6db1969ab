package identity

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/marianoberton/go-messaging/core"
)

// ErrProfileNotFound is the sentinel every resolution failure wraps, so
// callers can branch with errors.Is without caring which tier failed.
var ErrProfileNotFound = errors.New("identity: profile not found")

// ProfileNotFoundError carries the underlying cause of a failed profile
// resolution: a missing integration, an adapter without lookup support, or
// a provider API rejection.
type ProfileNotFoundError struct {
	Cause error
}

func (e *ProfileNotFoundError) Error() string {
	if e == nil || e.Cause == nil {
		return ErrProfileNotFound.Error()
	}
	return ErrProfileNotFound.Error() + ": " + e.Cause.Error()
}

func (e *ProfileNotFoundError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return ErrProfileNotFound
	}
	return errors.Join(ErrProfileNotFound, e.Cause)
}

// ToServiceError converts the failure into the shared error envelope.
func (e *ProfileNotFoundError) ToServiceError() *goerrors.Error {
	message := ErrProfileNotFound.Error()
	if e != nil && e.Cause != nil {
		message = e.Error()
	}
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(core.MessagingErrorProfileNotFound)
}

func profileNotFound(cause error) error {
	return &ProfileNotFoundError{Cause: cause}
}
