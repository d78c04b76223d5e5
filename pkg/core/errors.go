package core

import (
	"fmt"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: decode_error, element_not_found, ...
	Message  string                 // Human-readable message
	Details  map[string]interface{} // Additional context (item, gate, selector)
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches any ExecutionError carrying the same code, so derived copies
// (WithCause, WithDetails) still satisfy errors.Is against the sentinels.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  e.Details,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Details:  e.Details,
		Cause:    e.Cause,
	}
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Details:  merged,
		Cause:    e.Cause,
	}
}

// Predefined errors
var (
	// ErrDecode covers malformed or empty payloads and documents without items.
	ErrDecode = &ExecutionError{
		Category: ErrCategoryDecode,
		Code:     "decode_error",
		Message:  "slip payload could not be decoded",
	}

	// ErrElementNotFound covers absent tabs, cards and side controls.
	ErrElementNotFound = &ExecutionError{
		Category: ErrCategoryElement,
		Code:     "element_not_found",
		Message:  "element not found",
	}

	// ErrGateTimeout is raised when a bounded poll (verification, shell, login) runs out.
	ErrGateTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "gate_timeout",
		Message:  "wait condition timed out",
	}

	// ErrLaunch is fatal: the browser or session could not be started.
	ErrLaunch = &ExecutionError{
		Category: ErrCategoryLaunch,
		Code:     "launch_error",
		Message:  "could not start browser session",
	}

	ErrNavigation = &ExecutionError{
		Category: ErrCategoryNavigation,
		Code:     "navigation_error",
		Message:  "navigation failed",
	}

	ErrInvalidConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_config",
		Message:  "invalid configuration",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}
