package models

import "time"

// ExecutionMetrics accumulates timing and token usage for one monitored
// execution, keyed by node id and by branch id.
type ExecutionMetrics struct {
	ExecutionID    string                    `json:"execution_id"`
	StartedAt      time.Time                 `json:"started_at"`
	Duration       time.Duration             `json:"duration"`
	CompletedNodes int                       `json:"completed_nodes"`
	FailedNodes    int                       `json:"failed_nodes"`
	TotalTokens    int                       `json:"total_tokens"`
	NodeDurations  map[string]time.Duration  `json:"node_durations"`
	NodeTokens     map[string]int            `json:"node_tokens"`
	BranchMetrics  map[string]*BranchMetrics `json:"branch_metrics,omitempty"`
}

// BranchMetrics is the per-branch slice of ExecutionMetrics, joined against
// branch progress for name and relevance score.
type BranchMetrics struct {
	BranchID       string          `json:"branch_id"`
	Name           string          `json:"name"`
	Status         ExecutionStatus `json:"status"`
	Duration       time.Duration   `json:"duration"`
	TokenUsage     int             `json:"token_usage"`
	CompletedNodes int             `json:"completed_nodes"`
	FailedNodes    int             `json:"failed_nodes"`
	RelevanceScore float64         `json:"relevance_score"`
}
