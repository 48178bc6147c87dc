// Package errors defines the reconciliation engine's error taxonomy.
// Errors are categorized so callers can tell apart rejected input, lock
// contention, rolled-back persistence failures and engine bugs without
// string matching.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	// CategoryContext covers missing or invalid run context, rejected
	// before any work begins.
	CategoryContext ErrorCategory = "context"
	// CategoryContention covers lock contention; the caller may retry
	// later.
	CategoryContention ErrorCategory = "contention"
	// CategoryValidation covers invalid configuration or data contracts.
	CategoryValidation ErrorCategory = "validation"
	// CategoryPersistence covers storage failures; the run is fully
	// rolled back before one is surfaced.
	CategoryPersistence ErrorCategory = "persistence"
	// CategoryInternal covers unexpected engine failures.
	CategoryInternal ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Context errors
	CodeNoTenantContext ErrorCode = "no_tenant_context"

	// Contention errors
	CodeAlreadyRunning ErrorCode = "already_running"

	// Validation errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeInvalidData   ErrorCode = "invalid_data"

	// Persistence errors
	CodePersistenceFailure ErrorCode = "persistence_failure"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// EngineError is the base error type for all reconciliation errors.
type EngineError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error. It must never
// carry another tenant's data; errors cross trust boundaries.
type Context map[string]interface{}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *EngineError) GetExitCode() int {
	switch e.Category {
	case CategoryContext, CategoryValidation:
		return 2
	case CategoryContention:
		return 3
	case CategoryPersistence:
		return 4
	case CategoryInternal:
		return 5
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestion = suggestion
	return e
}

// New creates a new EngineError
func New(category ErrorCategory, code ErrorCode, message string) *EngineError {
	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with EngineError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *EngineError {
	if err == nil {
		return nil
	}
	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// NoTenantContext creates the error for an absent or invalid tenant id.
func NoTenantContext(tenantID string) *EngineError {
	return New(CategoryContext, CodeNoTenantContext, "tenant id is missing or invalid").
		WithSuggestion("run reconciliation with a valid tenant id").
		WithContext("tenant_id", tenantID)
}

// AlreadyRunning creates the error for tenant lock contention.
func AlreadyRunning(tenantID string) *EngineError {
	return New(CategoryContention, CodeAlreadyRunning, "reconciliation already in progress for tenant").
		WithSuggestion("wait for the current run to finish and retry").
		WithContext("tenant_id", tenantID)
}

// PersistenceFailure wraps a storage error after the run has been rolled
// back. The staged changes of the run are gone; nothing is partially
// visible.
func PersistenceFailure(operation string, err error) *EngineError {
	return Wrap(err, CategoryPersistence, CodePersistenceFailure,
		fmt.Sprintf("persistence failure during %s, run rolled back", operation)).
		WithSuggestion("check database connectivity; the run is safe to re-execute").
		WithContext("operation", operation)
}

// ConfigurationError creates a validation error for bad engine settings.
func ConfigurationError(setting string, value interface{}, err error) *EngineError {
	result := New(CategoryValidation, CodeInvalidConfig,
		fmt.Sprintf("invalid configuration for '%s': %v", setting, value))
	if err != nil {
		result = Wrap(err, CategoryValidation, CodeInvalidConfig, result.Message)
	}
	return result.
		WithSuggestion("check the configuration documentation for valid values").
		WithContext("setting", setting).
		WithContext("value", value)
}

// InternalError creates an internal error
func InternalError(operation string, err error) *EngineError {
	result := New(CategoryInternal, CodeUnexpectedError,
		fmt.Sprintf("unexpected error during %s", operation))
	if err != nil {
		result = Wrap(err, CategoryInternal, CodeUnexpectedError, result.Message)
	}
	return result.
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// IsEngineError checks if an error is an EngineError
func IsEngineError(err error) bool {
	_, ok := err.(*EngineError)
	return ok
}

// AsEngineError extracts an EngineError from an error chain
func AsEngineError(err error) (*EngineError, bool) {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr, true
	}
	return nil, false
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code ErrorCode) bool {
	if engineErr, ok := AsEngineError(err); ok {
		return engineErr.Code == code
	}
	return false
}
