package models

import "time"

// ExecutionProgress is a point-in-time snapshot of an active execution.
// It is derived from lifecycle events and never persisted on its own.
type ExecutionProgress struct {
	ExecutionID       string          `json:"execution_id"`
	Status            ExecutionStatus `json:"status"`
	Progress          float64         `json:"progress"` // 0-100
	CompletedNodes    int             `json:"completed_nodes"`
	PendingNodes      int             `json:"pending_nodes"`
	TotalNodes        int             `json:"total_nodes"`
	ActiveBranches    int             `json:"active_branches"`
	CompletedBranches int             `json:"completed_branches"`
	FailedBranches    int             `json:"failed_branches"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// BranchProgress mirrors ExecutionProgress for a single branch.
type BranchProgress struct {
	BranchID       string          `json:"branch_id"`
	ExecutionID    string          `json:"execution_id"`
	Name           string          `json:"name"`
	Status         ExecutionStatus `json:"status"`
	Progress       float64         `json:"progress"` // 0-100
	CompletedNodes int             `json:"completed_nodes"`
	PendingNodes   int             `json:"pending_nodes"`
	RelevanceScore float64         `json:"relevance_score"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
