package archive

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to the console user.
type ErrorKind string

const (
	ValidationError       ErrorKind = "validation"
	AuthorizationError    ErrorKind = "authorization"
	TransientNetworkError ErrorKind = "transient_network"
	ServerLogicError      ErrorKind = "server_logic"
)

// genericFailure is shown for anything that is not a classified ActionError.
const genericFailure = "request failed, please try again"

// ActionError is a classified failure. Message is safe to show verbatim.
type ActionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ActionError) Unwrap() error { return e.Err }

// NewActionError builds an ActionError.
func NewActionError(kind ErrorKind, message string, err error) *ActionError {
	return &ActionError{Kind: kind, Message: message, Err: err}
}

func validationError(message string) *ActionError {
	return &ActionError{Kind: ValidationError, Message: message}
}

// classify converts any error into an ActionError, treating unknown errors as transient.
func classify(err error) *ActionError {
	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return actionErr
	}
	return &ActionError{Kind: TransientNetworkError, Message: genericFailure, Err: err}
}
