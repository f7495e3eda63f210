package models

import "time"

// ExecutionStatus is the lifecycle state shared by executions and branches.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCanceled  ExecutionStatus = "canceled"
	// ExecutionStatusPaused is reserved. It validates and round-trips but no
	// transition reaches it.
	ExecutionStatusPaused ExecutionStatus = "paused"
)

// IsTerminal reports whether the status is final. A terminal status is
// sticky: once reached it never changes again.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCanceled:
		return true
	default:
		return false
	}
}

// IsValid reports whether the status is a known enum member.
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusCompleted,
		ExecutionStatusFailed, ExecutionStatusCanceled, ExecutionStatusPaused:
		return true
	default:
		return false
	}
}

// ExecutionRecord is one top-level run of a workflow against one input.
// Branches is a denormalized copy of the branches owned by this execution;
// the storage layer keeps it in sync with the branch records.
type ExecutionRecord struct {
	ID                   string             `json:"id"`
	WorkflowID           string             `json:"workflow_id" validate:"required"`
	Status               ExecutionStatus    `json:"status"`
	Type                 string             `json:"type,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	StartedAt            *time.Time         `json:"started_at,omitempty"`
	FinishedAt           *time.Time         `json:"finished_at,omitempty"`
	Input                any                `json:"input,omitempty"`
	Result               any                `json:"result,omitempty"`
	Error                string             `json:"error,omitempty"`
	TokenUsage           int                `json:"token_usage"`
	Tags                 []string           `json:"tags,omitempty"`
	Priority             int                `json:"priority"`
	OwnerID              string             `json:"owner_id,omitempty"`
	Metadata             map[string]any     `json:"metadata,omitempty"`
	Branches             []*ExecutionBranch `json:"branches,omitempty"`
	CompletedBranchCount int                `json:"completed_branch_count"`
}

// NewExecutionRecord creates a pending record for a workflow run.
func NewExecutionRecord(id, workflowID string) *ExecutionRecord {
	return &ExecutionRecord{
		ID:         id,
		WorkflowID: workflowID,
		Status:     ExecutionStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// HasBranches reports whether any branch was created for this execution.
func (e *ExecutionRecord) HasBranches() bool {
	return len(e.Branches) > 0
}

// BranchByID returns the embedded branch with the given id, or nil.
func (e *ExecutionRecord) BranchByID(id string) *ExecutionBranch {
	for _, branch := range e.Branches {
		if branch.ID == id {
			return branch
		}
	}

	return nil
}
