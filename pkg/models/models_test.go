package models

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_Validation_ValidWorkflow(t *testing.T) {
	workflow := &Workflow{
		ID:   "workflow-123",
		Name: "Research Pipeline",
		Nodes: []*Node{
			{ID: "start", Type: "start", Enabled: true},
		},
	}

	validate := validator.New()
	err := validate.Struct(workflow)
	assert.NoError(t, err)
}

func TestWorkflow_Validation_ShortName(t *testing.T) {
	workflow := &Workflow{
		ID:   "workflow-123",
		Name: "ab",
	}

	validate := validator.New()
	err := validate.Struct(workflow)
	require.Error(t, err)

	var validationErrors validator.ValidationErrors

	require.ErrorAs(t, err, &validationErrors)
	assert.Equal(t, "min", validationErrors[0].Tag())
}

func TestWorkflow_NodeByID(t *testing.T) {
	workflow := &Workflow{
		ID: "workflow-123",
		Nodes: []*Node{
			{ID: "start", Type: "start"},
			{ID: "process", Type: "process"},
		},
	}

	node := workflow.NodeByID("process")
	require.NotNil(t, node)
	assert.Equal(t, "process", node.Type)

	assert.Nil(t, workflow.NodeByID("missing"))
	assert.True(t, workflow.HasNode("start"))
	assert.False(t, workflow.HasNode("missing"))
}

func TestExecutionStatus_IsTerminal(t *testing.T) {
	assert.False(t, ExecutionStatusPending.IsTerminal())
	assert.False(t, ExecutionStatusRunning.IsTerminal())
	assert.False(t, ExecutionStatusPaused.IsTerminal())
	assert.True(t, ExecutionStatusCompleted.IsTerminal())
	assert.True(t, ExecutionStatusFailed.IsTerminal())
	assert.True(t, ExecutionStatusCanceled.IsTerminal())
}

func TestExecutionStatus_IsValid(t *testing.T) {
	for _, status := range []ExecutionStatus{
		ExecutionStatusPending,
		ExecutionStatusRunning,
		ExecutionStatusCompleted,
		ExecutionStatusFailed,
		ExecutionStatusCanceled,
		ExecutionStatusPaused,
	} {
		assert.True(t, status.IsValid(), "status %s should be valid", status)
	}

	assert.False(t, ExecutionStatus("resumed").IsValid())
}

func TestNewExecutionRecord_Defaults(t *testing.T) {
	record := NewExecutionRecord("exec-1", "workflow-123")

	assert.Equal(t, "exec-1", record.ID)
	assert.Equal(t, "workflow-123", record.WorkflowID)
	assert.Equal(t, ExecutionStatusPending, record.Status)
	assert.False(t, record.CreatedAt.IsZero())
	assert.Nil(t, record.StartedAt)
	assert.False(t, record.HasBranches())
}

func TestExecutionRecord_BranchByID(t *testing.T) {
	record := NewExecutionRecord("exec-1", "workflow-123")
	record.Branches = []*ExecutionBranch{
		NewExecutionBranch("branch-1", "exec-1", "Main Branch"),
		NewExecutionBranch("branch-2", "exec-1", "Side Quest"),
	}

	branch := record.BranchByID("branch-2")
	require.NotNil(t, branch)
	assert.Equal(t, "Side Quest", branch.Name)
	assert.Nil(t, record.BranchByID("branch-3"))
	assert.True(t, record.HasBranches())
}

func TestExecutionBranch_MarkNodeCompleted_Deduplicates(t *testing.T) {
	branch := NewExecutionBranch("branch-1", "exec-1", "Main Branch")

	branch.MarkNodeCompleted("search")
	branch.MarkNodeCompleted("read")
	branch.MarkNodeCompleted("search")

	assert.Equal(t, []string{"search", "read"}, branch.CompletedNodeIDs)
}

func TestStreamItem_Clone_IndependentMetadata(t *testing.T) {
	item := &StreamItem{
		ExecutionID: "exec-1",
		NodeID:      "search",
		Data:        map[string]any{"query": "go concurrency"},
		Meta:        StreamMeta{Step: 1, ProcessedBy: []string{"start"}},
	}

	clone := item.Clone()
	clone.Meta.ProcessedBy = append(clone.Meta.ProcessedBy, "search")

	assert.Equal(t, []string{"start"}, item.Meta.ProcessedBy)
	assert.Equal(t, []string{"start", "search"}, clone.Meta.ProcessedBy)
}

func TestExecutionRecord_JSONRoundTrip(t *testing.T) {
	record := NewExecutionRecord("exec-1", "workflow-123")
	record.Status = ExecutionStatusRunning
	record.Tags = []string{"research"}
	record.TokenUsage = 420

	data, err := json.Marshal(record)
	require.NoError(t, err)

	var decoded ExecutionRecord

	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, record.ID, decoded.ID)
	assert.Equal(t, ExecutionStatusRunning, decoded.Status)
	assert.Equal(t, 420, decoded.TokenUsage)
}
