// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
)

// ErrConcurrencyLost signals a conditional store update that matched zero
// rows: another worker already claimed the occurrence. Not a user-facing
// failure; callers discard their local result.
var ErrConcurrencyLost = errors.New("occurrence already handled by another worker")

// ValidationError rejects a malformed message or recurrence rule at
// creation time, before it can reach the dispatch engine.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// DispatchClass classifies a gateway send failure. Classification does not
// change retry policy; it is preserved in the error text shown to the user.
type DispatchClass string

const (
	DispatchGatewayUnavailable DispatchClass = "gateway_unavailable"
	DispatchInvalidRecipient   DispatchClass = "invalid_recipient"
	DispatchAuthRejected       DispatchClass = "auth_rejected"
	DispatchUnknown            DispatchClass = "unknown"
)

type DispatchError struct {
	Class DispatchClass
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func NewDispatch(class DispatchClass, err error) error {
	return &DispatchError{Class: class, Err: err}
}

// NotFoundError is a sentinel for a missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Kind, e.ID)
}

func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}
