// Package web provides HTTP request and response types for the execution API.
package web

import (
	"time"

	"github.com/braidflow/braid/pkg/models"
)

// ExecutionSummary is the trimmed listing view of an execution record.
// Listing endpoints return summaries; the full record with input, result and
// embedded branches is only returned by the single-execution endpoint.
type ExecutionSummary struct {
	ID                   string                 `json:"id"`
	WorkflowID           string                 `json:"workflow_id"`
	Status               models.ExecutionStatus `json:"status"`
	Type                 string                 `json:"type,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	StartedAt            *time.Time             `json:"started_at,omitempty"`
	FinishedAt           *time.Time             `json:"finished_at,omitempty"`
	Error                string                 `json:"error,omitempty"`
	TokenUsage           int                    `json:"token_usage"`
	Tags                 []string               `json:"tags,omitempty"`
	Priority             int                    `json:"priority"`
	OwnerID              string                 `json:"owner_id,omitempty"`
	BranchCount          int                    `json:"branch_count"`
	CompletedBranchCount int                    `json:"completed_branch_count"`
}

// TransformExecutionSummary flattens a record into its listing view. Branches
// collapse into counts; input and result payloads are dropped entirely.
func TransformExecutionSummary(record *models.ExecutionRecord) ExecutionSummary {
	return ExecutionSummary{
		ID:                   record.ID,
		WorkflowID:           record.WorkflowID,
		Status:               record.Status,
		Type:                 record.Type,
		CreatedAt:            record.CreatedAt,
		StartedAt:            record.StartedAt,
		FinishedAt:           record.FinishedAt,
		Error:                record.Error,
		TokenUsage:           record.TokenUsage,
		Tags:                 record.Tags,
		Priority:             record.Priority,
		OwnerID:              record.OwnerID,
		BranchCount:          len(record.Branches),
		CompletedBranchCount: record.CompletedBranchCount,
	}
}

// TransformExecutionSummaries maps a page of records into listing views.
func TransformExecutionSummaries(records []*models.ExecutionRecord) []ExecutionSummary {
	summaries := make([]ExecutionSummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, TransformExecutionSummary(record))
	}

	return summaries
}
