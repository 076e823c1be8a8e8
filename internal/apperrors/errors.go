// Package apperrors provides sentinel and custom error types for the application.
package apperrors

import "time"

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrConflict is the sentinel for conflict errors (e.g. an invalid approval transition).
var ErrConflict = &ConflictError{}

// ConflictError is a sentinel error for resource conflicts.
type ConflictError struct {
	Message string
}

// NewConflictError creates a ConflictError with a custom message.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "conflict"
}

// Is implements the error interface for error comparison.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)

	return ok
}

// ErrLimitExceeded is the sentinel for limit-exceeded errors.
var ErrLimitExceeded = &LimitExceededError{}

// LimitExceededError is a sentinel error for limit-exceeded conditions.
type LimitExceededError struct {
	Message string
}

// NewLimitExceededError creates a LimitExceededError with a custom message.
func NewLimitExceededError(message string) *LimitExceededError {
	return &LimitExceededError{Message: message}
}

// Error implements the error interface.
func (e *LimitExceededError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "limit exceeded"
}

// Is implements the error interface for error comparison.
func (e *LimitExceededError) Is(target error) bool {
	_, ok := target.(*LimitExceededError)

	return ok
}

// ErrTransient is the sentinel for retryable backend failures (timeouts, rate limits, open breaker).
var ErrTransient = &TransientError{}

// TransientError reports a failure the caller may retry after RetryAfter.
type TransientError struct {
	Message    string
	RetryAfter time.Duration
	Err        error
}

// NewTransientError wraps err as a retryable failure.
func NewTransientError(message string, retryAfter time.Duration, err error) *TransientError {
	return &TransientError{Message: message, RetryAfter: retryAfter, Err: err}
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "temporarily unavailable, try again"
	}

	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison.
func (e *TransientError) Is(target error) bool {
	_, ok := target.(*TransientError)

	return ok
}

// ErrData is the sentinel for malformed record data. Dependent computation for that record is skipped.
var ErrData = &DataError{}

// DataError reports malformed input for a single record.
type DataError struct {
	Field   string
	Message string
}

// NewDataError creates a DataError for field.
func NewDataError(field, message string) *DataError {
	return &DataError{Field: field, Message: message}
}

// Error implements the error interface.
func (e *DataError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "malformed data in field: " + e.Field
	}

	return "malformed data"
}

// Is implements the error interface for error comparison.
func (e *DataError) Is(target error) bool {
	_, ok := target.(*DataError)

	return ok
}

// ErrConfiguration is the sentinel for rejected configuration (e.g. weights not summing to 1).
var ErrConfiguration = &ConfigurationError{}

// ConfigurationError reports an invalid configuration. It is never silently corrected.
type ConfigurationError struct {
	Message string
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(message string) *ConfigurationError {
	return &ConfigurationError{Message: message}
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "invalid configuration"
}

// Is implements the error interface for error comparison.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)

	return ok
}

// ErrConsistency is the sentinel for superseded writes (a newer generation was claimed).
var ErrConsistency = &ConsistencyError{}

// ConsistencyError reports that a write lost a generation race and was discarded.
type ConsistencyError struct {
	Message string
}

// NewConsistencyError creates a ConsistencyError.
func NewConsistencyError(message string) *ConsistencyError {
	return &ConsistencyError{Message: message}
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "superseded by a newer generation"
}

// Is implements the error interface for error comparison.
func (e *ConsistencyError) Is(target error) bool {
	_, ok := target.(*ConsistencyError)

	return ok
}
