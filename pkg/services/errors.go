// Package services implements the operations exposed over the API: starting
// and cancelling executions, reading history, ingesting contact events and
// validating workflow definitions.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrTriggerStepRequired  = errors.New("workflow must have exactly one trigger step")
	ErrTriggerEventRequired = errors.New("workflow trigger event is required")
	ErrUnknownStepType      = errors.New("unknown step type")
	ErrUnknownOperator      = errors.New("unknown condition operator")
	ErrDuplicateBranch      = errors.New("duplicate branch tag on step transitions")
	ErrDanglingTransition   = errors.New("transition references a step that does not exist")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")

	// Business Logic Conflicts (409 Conflict).
	ErrWorkflowDisabled  = errors.New("workflow is disabled")
	ErrReentryNotAllowed = errors.New("contact has already entered this workflow")
	ErrExecutionFinished = errors.New("execution is no longer running")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrTriggerStepRequired) ||
		errors.Is(err, ErrTriggerEventRequired) ||
		errors.Is(err, ErrUnknownStepType) ||
		errors.Is(err, ErrUnknownOperator) ||
		errors.Is(err, ErrDuplicateBranch) ||
		errors.Is(err, ErrDanglingTransition) ||
		errors.Is(err, ErrWorkflowNil)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowDisabled) ||
		errors.Is(err, ErrReentryNotAllowed) ||
		errors.Is(err, ErrExecutionFinished)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
