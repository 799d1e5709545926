package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation  ErrorCategory = "validation"  // Invalid input
	ErrCatExecution   ErrorCategory = "execution"   // Runtime failure inside an agent
	ErrCatTimeout     ErrorCategory = "timeout"     // Deadline exceeded
	ErrCatCancelled   ErrorCategory = "cancelled"   // Cooperative cancellation
	ErrCatState       ErrorCategory = "state"       // State corruption/conflict
	ErrCatUnavailable ErrorCategory = "unavailable" // Collaborator unreachable
	ErrCatNotFound    ErrorCategory = "not_found"   // Resource not found
	ErrCatInternal    ErrorCategory = "internal"    // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: false,
	}
}

// ErrCancelled creates a cancellation error.
func ErrCancelled(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatCancelled,
		Code:      "CANCELLED",
		Message:   message,
		Retryable: false,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrUnavailable creates a collaborator-unavailable error.
func ErrUnavailable(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatUnavailable,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeTaskNotFound      = "TASK_NOT_FOUND"
	CodeWorkflowNotFound  = "WORKFLOW_NOT_FOUND"
	CodeAgentNotFound     = "AGENT_NOT_FOUND"
	CodeInvalidState      = "INVALID_STATE"
	CodeAgentUnavailable  = "AGENT_UNAVAILABLE"
	CodeAgentFailed       = "AGENT_FAILED"
	CodeNoSuitableAgent   = "NO_SUITABLE_AGENT"
	CodePhaseFailed       = "PHASE_FAILED"
	CodeCheckpointFailed  = "CHECKPOINT_FAILED"
	CodeCollaboratorDown  = "COLLABORATOR_DOWN"
	CodeNotInitialized    = "NOT_INITIALIZED"
	CodeMissingHeader     = "MISSING_HEADER"
	CodeEmptyObjective    = "EMPTY_OBJECTIVE"
	CodeUnknownPhase      = "UNKNOWN_PHASE"
	CodeRetriesExhausted  = "RETRIES_EXHAUSTED"
	CodeApprovalCancelled = "APPROVAL_CANCELLED"
)
