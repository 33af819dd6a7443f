// internal/apperr/errors.go
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation     Kind = "VALIDATION_ERROR"
	KindForbidden      Kind = "FORBIDDEN"
	KindInvalidState   Kind = "INVALID_STATE"
	KindStateConflict  Kind = "STATE_CONFLICT"
	KindConflict       Kind = "CONFLICT"
	KindNotEligible    Kind = "NOT_ELIGIBLE"
	KindNoActivePolicy Kind = "NO_ACTIVE_POLICY"
	KindNotFound       Kind = "NOT_FOUND"
	KindPayment        Kind = "PAYMENT_FAILURE"
	KindStorage        Kind = "STORAGE_FAILURE"
	KindPersistence    Kind = "PERSISTENCE_ERROR"
)

// Error is the typed failure returned by every engine operation.
type Error struct {
	Kind    Kind
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return New(KindValidation, message) }

// ValidationWithDetails carries per-field failures back to the transport.
func ValidationWithDetails(message string, details interface{}) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func Forbidden(message string) *Error      { return New(KindForbidden, message) }
func InvalidState(message string) *Error   { return New(KindInvalidState, message) }
func StateConflict(message string) *Error  { return New(KindStateConflict, message) }
func Conflict(message string) *Error       { return New(KindConflict, message) }
func NotEligible(message string) *Error    { return New(KindNotEligible, message) }
func NoActivePolicy(message string) *Error { return New(KindNoActivePolicy, message) }
func NotFound(resource string) *Error      { return New(KindNotFound, resource+" not found") }

func Payment(message string, err error) *Error     { return Wrap(KindPayment, message, err) }
func Storage(message string, err error) *Error     { return Wrap(KindStorage, message, err) }
func Persistence(message string, err error) *Error { return Wrap(KindPersistence, message, err) }

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
