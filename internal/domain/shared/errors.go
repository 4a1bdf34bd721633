package shared

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code so typed errors compare equal to the sentinels
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes shared by the ledger
const (
	CodeNotFound              = "NOT_FOUND"
	CodeAlreadyExists         = "ALREADY_EXISTS"
	CodeInvalidInput          = "INVALID_INPUT"
	CodeConcurrencyConflict   = "CONCURRENCY_CONFLICT"
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeDuplicateTrigger      = "DUPLICATE_TRIGGER"
	CodeImmutabilityViolation = "IMMUTABILITY_VIOLATION"
	CodeLineageInconsistency  = "LINEAGE_INCONSISTENCY"
	CodeInvalidState          = "INVALID_STATE"
)

// Common domain errors
var (
	ErrNotFound              = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists         = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrInvalidInput          = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrConcurrencyConflict   = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrInvalidState          = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrValidation            = NewDomainError(CodeValidationFailed, "Validation failed")
	ErrDuplicateTrigger      = NewDomainError(CodeDuplicateTrigger, "Trigger already referenced by an invoice line")
	ErrImmutabilityViolation = NewDomainError(CodeImmutabilityViolation, "Write attempted against a sealed record")
	ErrLineageInconsistency  = NewDomainError(CodeLineageInconsistency, "Lineage could not be resolved")
)

// ValidationError reports a rejected input field. It is never retried.
type ValidationError struct {
	*DomainError
	Field string
	Value string
}

// Unwrap exposes the embedded domain error to errors.As and errors.Is
func (e *ValidationError) Unwrap() error {
	return e.DomainError
}

// NewValidationError builds a ValidationError for one field
func NewValidationError(field, value, reason string) *ValidationError {
	msg := fmt.Sprintf("%s: %s", field, reason)
	if value != "" {
		msg = fmt.Sprintf("%s %q: %s", field, value, reason)
	}
	return &ValidationError{
		DomainError: NewDomainError(CodeValidationFailed, msg),
		Field:       field,
		Value:       value,
	}
}

// ValidationErrors aggregates several field problems into one error
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// Unwrap returns the aggregated errors so errors.Is matches any of them
func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(v))
	for _, e := range v {
		errs = append(errs, e)
	}
	return errs
}

// OrNil returns nil when no problems were collected
func (v ValidationErrors) OrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// ImmutabilityViolation reports a write against a sealed record
type ImmutabilityViolation struct {
	*DomainError
	Kind      IDKind
	ID        ImmutableID
	Operation string
}

// Unwrap exposes the embedded domain error
func (e *ImmutabilityViolation) Unwrap() error {
	return e.DomainError
}

// NewImmutabilityViolation builds an ImmutabilityViolation
func NewImmutabilityViolation(kind IDKind, id ImmutableID, operation string) *ImmutabilityViolation {
	return &ImmutabilityViolation{
		DomainError: NewDomainError(CodeImmutabilityViolation,
			fmt.Sprintf("%s %s is sealed: %s rejected", kind, id, operation)),
		Kind:      kind,
		ID:        id,
		Operation: operation,
	}
}

// NotFound builds a NOT_FOUND error naming the missing record
func NotFound(kind IDKind, id ImmutableID) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s %s not found", kind, id))
}
