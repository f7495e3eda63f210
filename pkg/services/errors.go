// Package services provides the application service layer between transports
// and the execution engine, with standardized error types.
package services

import (
	"errors"
	"fmt"
)

// Error codes carried on ServiceError for API responses.
const (
	CodeValidation = "validation"
	CodeNotFound   = "not_found"
	CodeNotActive  = "not_active"
	CodeConflict   = "conflict"
	CodeInternal   = "internal"
)

// Business logic errors - these indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrInvalidStatus    = errors.New("invalid execution status")
	ErrEmptyOwnerID     = errors.New("owner ID cannot be empty")
	ErrWorkflowRequired = errors.New("workflow is required")
	ErrInputRequired    = errors.New("input is required")

	// Lookup errors (404 Not Found).
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrBranchNotFound    = errors.New("branch not found")

	// Lifecycle errors (409 Conflict / 422).
	ErrExecutionNotActive = errors.New("execution not active")
	ErrBranchExists       = errors.New("branch already exists")
	ErrExecutionExists    = errors.New("execution already exists")
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

// IsValidationError checks if an error should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrEmptyOwnerID) ||
		errors.Is(err, ErrWorkflowRequired) ||
		errors.Is(err, ErrInputRequired)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrBranchNotFound)
}

// IsNotActiveError checks if an error targets an execution that already
// finished; HTTP 409 from cancel-like endpoints.
func IsNotActiveError(err error) bool {
	return errors.Is(err, ErrExecutionNotActive)
}

// IsConflictError checks if an error is a lifecycle conflict that should
// return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrBranchExists) ||
		errors.Is(err, ErrExecutionExists)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    CodeValidation,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a new lookup error with context.
func NewNotFoundError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    CodeNotFound,
		Message: message,
		Err:     err,
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(op string, err error) *ServiceError {
	return &ServiceError{
		Op:   op,
		Code: CodeInternal,
		Err:  err,
	}
}
