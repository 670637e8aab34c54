package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
	ErrExternalService = errors.New("external service failure")
	ErrPersistence     = errors.New("persistence failure")
)

// Error carries a client-facing message alongside one of the sentinel kinds.
type Error struct {
	Kind      error
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

func Forbidden(msg string) error {
	return &Error{Kind: ErrForbidden, Message: msg}
}

func Validation(msg string) error {
	return &Error{Kind: ErrValidation, Message: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Message: msg}
}

func ExternalService(msg string, retryable bool, err error) error {
	return &Error{Kind: ErrExternalService, Message: msg, Retryable: retryable, Err: err}
}

func Persistence(msg string, err error) error {
	return &Error{Kind: ErrPersistence, Message: msg, Err: err}
}

// Retryable reports whether err was marked as safe to retry, typically a timeout.
func Retryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// PublicMessage returns the message safe to show a client.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
