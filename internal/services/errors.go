package services

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned for every failed sign-in so callers
	// cannot tell an unknown email from a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("you do not have access to this vehicle")
	ErrRoleNotAllowed     = errors.New("this action is not available for your role")
	ErrWriteFailed        = errors.New("write failed")
	ErrUnauthenticated    = errors.New("authentication required")
)

// WriteError reports a failed create, update or delete. The caller may retry;
// nothing is retried automatically.
type WriteError struct {
	Action   string
	Resource string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Action, e.Resource, e.Err)
}

func (e *WriteError) Unwrap() []error { return []error{ErrWriteFailed, e.Err} }

// UserMessage is the text shown in the retry banner.
func (e *WriteError) UserMessage() string {
	return fmt.Sprintf("Failed to %s %s. Please try again.", e.Action, e.Resource)
}

func saveError(resource string, err error) error {
	return &WriteError{Action: "save", Resource: resource, Err: err}
}

func deleteError(resource string, err error) error {
	return &WriteError{Action: "delete", Resource: resource, Err: err}
}
