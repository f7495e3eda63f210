package storage

import (
	"errors"
	"fmt"
)

// Standard storage error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates no execution exists for the given id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrBranchNotFound indicates no branch exists for the given id within
	// the execution.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrInvalidSortField indicates a sort field outside the allowlist.
	ErrInvalidSortField = errors.New("invalid sort field")
)

// ExecutionError wraps execution storage errors with operation context.
type ExecutionError struct {
	Op          string // Operation being performed (e.g., "GetExecution", "SaveBranch")
	ExecutionID string
	BranchID    string // Branch ID if applicable
	Err         error
}

func (e *ExecutionError) Error() string {
	if e.BranchID != "" {
		return fmt.Sprintf("%s failed for branch %s of execution %s: %v", e.Op, e.BranchID, e.ExecutionID, e.Err)
	}

	return fmt.Sprintf("%s failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates an execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// NewBranchError creates a branch error with context.
func NewBranchError(op, executionID, branchID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		BranchID:    branchID,
		Err:         err,
	}
}

// IsExecutionNotFound checks if an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsBranchNotFound checks if an error indicates a missing branch.
func IsBranchNotFound(err error) bool {
	return errors.Is(err, ErrBranchNotFound)
}
