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

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInsufficientBalance = NewDomainError("INSUFFICIENT_BALANCE", "Insufficient balance available")
	ErrWriteConflict       = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrRetriesExhausted    = NewDomainError("RETRIES_EXHAUSTED", "Operation failed after exhausting retries")
	ErrStoreUnavailable    = NewDomainError("STORE_UNAVAILABLE", "Key-value store is unavailable")
	ErrCancelled           = NewDomainError("CANCELLED", "Operation was cancelled")
)

// CodeOf returns the DomainError code carried by err, or "" when err is not a domain error.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// InsufficientBalanceError is returned when a mutation would drive a balance below zero.
// Current is the balance at read time, Required the magnitude of the requested decrease.
type InsufficientBalanceError struct {
	Current  int64
	Required int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("Insufficient coin balance. Current: %d, Required: %d", e.Current, e.Required)
}

// Unwrap lets errors.Is match ErrInsufficientBalance
func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// ValidationError describes a single malformed input attribute
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// ValidationErrors collects every failed field of one input
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is match ErrInvalidInput
func (e ValidationErrors) Unwrap() error {
	return ErrInvalidInput
}

// RetriesExhaustedError wraps the last failure of an operation that ran out of attempts.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("Failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the last underlying error
func (e *RetriesExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// IsNotFound returns true if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error is an optimistic concurrency conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrWriteConflict)
}

// IsBusinessError reports errors that describe a definitive business outcome.
// Retrying them cannot change the result.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidInput)
}
