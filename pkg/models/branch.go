package models

import "time"

// ExecutionBranch is an independently tracked logical sub-path of one
// execution. A branch belongs to exactly one execution for its whole life
// and its status is tracked separately from the execution's.
type ExecutionBranch struct {
	ID               string          `json:"id"`
	ExecutionID      string          `json:"execution_id" validate:"required"`
	ParentBranchID   string          `json:"parent_branch_id,omitempty"`
	Name             string          `json:"name"`
	Status           ExecutionStatus `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
	NodeIDs          []string        `json:"node_ids,omitempty"`
	CompletedNodeIDs []string        `json:"completed_node_ids,omitempty"`
	Result           any             `json:"result,omitempty"`
	Error            string          `json:"error,omitempty"`
	Priority         int             `json:"priority"`
	Tags             []string        `json:"tags,omitempty"`
	RelevanceScore   float64         `json:"relevance_score"`
}

// NewExecutionBranch creates a pending branch owned by an execution.
func NewExecutionBranch(id, executionID, name string) *ExecutionBranch {
	return &ExecutionBranch{
		ID:          id,
		ExecutionID: executionID,
		Name:        name,
		Status:      ExecutionStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// MarkNodeCompleted records a finished node, once per node id.
func (b *ExecutionBranch) MarkNodeCompleted(nodeID string) {
	for _, id := range b.CompletedNodeIDs {
		if id == nodeID {
			return
		}
	}

	b.CompletedNodeIDs = append(b.CompletedNodeIDs, nodeID)
}
