package wallet

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable tag identifying the class of a domain error. Callers
// branch on the kind, never on message text.
type ErrorKind string

const (
	// KindValidation indicates a malformed or out-of-range input rejected
	// before any persistence.
	KindValidation ErrorKind = "validation"
	// KindNotFound indicates a referenced account, sub-account, or
	// transaction does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindInsufficientFunds indicates a debit would drive a balance below
	// zero; nothing is committed.
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	// KindInvalidStateTransition indicates a transaction status change the
	// state machine does not permit.
	KindInvalidStateTransition ErrorKind = "invalid_state_transition"
	// KindConflict indicates a transient concurrency conflict (lock wait
	// exhausted, serialization failure). Safe for the caller to retry.
	KindConflict ErrorKind = "conflict"
)

// DomainError is a structured business error with a stable kind tag.
type DomainError struct {
	Kind    ErrorKind
	Field   string
	Message string
}

// Error returns the formatted domain error string.
func (e DomainError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}

	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Field)
}

// NewValidationError creates a validation error for the given field.
func NewValidationError(field, message string) error {
	return DomainError{Kind: KindValidation, Field: field, Message: message}
}

// NewNotFoundError creates a not-found error for the given entity.
func NewNotFoundError(entity, message string) error {
	return DomainError{Kind: KindNotFound, Field: entity, Message: message}
}

// NewInsufficientFundsError creates an insufficient-funds error.
func NewInsufficientFundsError(message string) error {
	return DomainError{Kind: KindInsufficientFunds, Message: message}
}

// NewInvalidStateTransitionError creates an invalid-transition error.
func NewInvalidStateTransitionError(message string) error {
	return DomainError{Kind: KindInvalidStateTransition, Message: message}
}

// NewConflictError creates a transient concurrency-conflict error.
func NewConflictError(message string) error {
	return DomainError{Kind: KindConflict, Message: message}
}

// IsKind reports whether err is (or wraps) a DomainError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var domainErr DomainError
	return errors.As(err, &domainErr) && domainErr.Kind == kind
}
