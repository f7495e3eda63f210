package execution

import "errors"

var (
	// ErrExecutionNotActive indicates the execution is not in the active
	// table: it either never existed or has already finalized.
	ErrExecutionNotActive = errors.New("execution not found or not active")

	// ErrBranchNotFound indicates the active execution has no branch with
	// the given id.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrBranchExists indicates a branch with the requested id already
	// exists on the execution.
	ErrBranchExists = errors.New("branch already exists")

	// ErrExecutionExists indicates an execution with the requested id is
	// already active.
	ErrExecutionExists = errors.New("execution already active")
)

// IsExecutionNotActive checks if an error indicates a missing or already
// finalized execution.
func IsExecutionNotActive(err error) bool {
	return errors.Is(err, ErrExecutionNotActive)
}

// IsBranchNotFound checks if an error indicates a missing branch.
func IsBranchNotFound(err error) bool {
	return errors.Is(err, ErrBranchNotFound)
}
