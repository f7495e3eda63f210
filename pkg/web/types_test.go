package web_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/web"
)

func TestTransformExecutionSummary(t *testing.T) {
	t.Parallel()

	started := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	finished := started.Add(42 * time.Second)

	tests := []struct {
		name     string
		record   *models.ExecutionRecord
		validate func(t *testing.T, summary web.ExecutionSummary)
	}{
		{
			name: "completed execution drops payloads",
			record: &models.ExecutionRecord{
				ID:         "exec-1",
				WorkflowID: "wf-1",
				Status:     models.ExecutionStatusCompleted,
				Type:       "api",
				CreatedAt:  started,
				StartedAt:  &started,
				FinishedAt: &finished,
				Input:      map[string]any{"input": "should-not-appear"},
				Result:     map[string]any{"output": "should-not-appear"},
				TokenUsage: 120,
				Tags:       []string{"nightly"},
				Priority:   3,
				OwnerID:    "team-a",
			},
			validate: func(t *testing.T, summary web.ExecutionSummary) {
				assert.Equal(t, "exec-1", summary.ID)
				assert.Equal(t, "wf-1", summary.WorkflowID)
				assert.Equal(t, models.ExecutionStatusCompleted, summary.Status)
				assert.Equal(t, "api", summary.Type)
				assert.Equal(t, started, summary.CreatedAt)
				assert.Equal(t, &started, summary.StartedAt)
				assert.Equal(t, &finished, summary.FinishedAt)
				assert.Equal(t, 120, summary.TokenUsage)
				assert.Equal(t, []string{"nightly"}, summary.Tags)
				assert.Equal(t, 3, summary.Priority)
				assert.Equal(t, "team-a", summary.OwnerID)
				assert.Zero(t, summary.BranchCount)
			},
		},
		{
			name: "branches collapse into counts",
			record: &models.ExecutionRecord{
				ID:         "exec-2",
				WorkflowID: "wf-1",
				Status:     models.ExecutionStatusRunning,
				CreatedAt:  started,
				Branches: []*models.ExecutionBranch{
					{ID: "b-1", ExecutionID: "exec-2", Status: models.ExecutionStatusCompleted},
					{ID: "b-2", ExecutionID: "exec-2", Status: models.ExecutionStatusRunning},
					{ID: "b-3", ExecutionID: "exec-2", Status: models.ExecutionStatusRunning},
				},
				CompletedBranchCount: 1,
			},
			validate: func(t *testing.T, summary web.ExecutionSummary) {
				assert.Equal(t, 3, summary.BranchCount)
				assert.Equal(t, 1, summary.CompletedBranchCount)
			},
		},
		{
			name: "failed execution keeps the error",
			record: &models.ExecutionRecord{
				ID:         "exec-3",
				WorkflowID: "wf-2",
				Status:     models.ExecutionStatusFailed,
				CreatedAt:  started,
				Error:      "node 'process' processing failed: boom",
			},
			validate: func(t *testing.T, summary web.ExecutionSummary) {
				assert.Equal(t, models.ExecutionStatusFailed, summary.Status)
				assert.Equal(t, "node 'process' processing failed: boom", summary.Error)
				assert.Nil(t, summary.StartedAt)
				assert.Nil(t, summary.FinishedAt)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			summary := web.TransformExecutionSummary(tt.record)
			tt.validate(t, summary)
		})
	}
}

func TestTransformExecutionSummary_JSONShape(t *testing.T) {
	t.Parallel()

	record := &models.ExecutionRecord{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		Status:     models.ExecutionStatusCompleted,
		CreatedAt:  time.Now().UTC(),
		Input:      map[string]any{"input": "secret"},
		Result:     map[string]any{"output": "secret"},
	}

	encoded, err := json.Marshal(web.TransformExecutionSummary(record))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(encoded, &decoded))

	assert.NotContains(t, decoded, "input")
	assert.NotContains(t, decoded, "result")
	assert.NotContains(t, decoded, "branches")
	assert.Equal(t, "exec-1", decoded["id"])
}

func TestTransformExecutionSummaries(t *testing.T) {
	t.Parallel()

	records := []*models.ExecutionRecord{
		{ID: "exec-1", WorkflowID: "wf-1", Status: models.ExecutionStatusCompleted},
		{ID: "exec-2", WorkflowID: "wf-1", Status: models.ExecutionStatusFailed},
	}

	summaries := web.TransformExecutionSummaries(records)
	require.Len(t, summaries, 2)
	assert.Equal(t, "exec-1", summaries[0].ID)
	assert.Equal(t, "exec-2", summaries[1].ID)

	assert.Empty(t, web.TransformExecutionSummaries(nil))
}
