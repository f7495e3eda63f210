// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/braidflow/braid/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test Node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:      uuid.New().String(),
		Type:    "process",
		Name:    "Test Node",
		Config:  map[string]any{"transform": "none"},
		Enabled: true,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithNodeID sets the node id.
func WithNodeID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithNodeType sets the node type.
func WithNodeType(nodeType string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = nodeType
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Config = config
	}
}

// CreateTestWorkflow creates a linear start -> process -> end workflow that
// can be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:   uuid.New().String(),
		Name: "Test Workflow",
		Nodes: []*models.Node{
			CreateTestNode(WithNodeID("start"), WithNodeType("start")),
			CreateTestNode(WithNodeID("process"), WithNodeType("process")),
			CreateTestNode(WithNodeID("end"), WithNodeType("end")),
		},
		Connections: []*models.Connection{
			{From: "start", To: "process"},
			{From: "process", To: "end"},
		},
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithWorkflowID sets the workflow id.
func WithWorkflowID(id string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.ID = id
	}
}

// WithNodes replaces the workflow nodes.
func WithNodes(nodes ...*models.Node) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Nodes = nodes
	}
}

// WithConnections replaces the workflow connections.
func WithConnections(connections ...*models.Connection) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Connections = connections
	}
}

// CreateTestExecution creates a pending execution record that can be
// overridden.
func CreateTestExecution(id string, overrides ...func(*models.ExecutionRecord)) *models.ExecutionRecord {
	record := models.NewExecutionRecord(id, uuid.New().String())

	for _, override := range overrides {
		override(record)
	}

	return record
}

// WithExecutionStatus sets the execution status.
func WithExecutionStatus(status models.ExecutionStatus) func(*models.ExecutionRecord) {
	return func(e *models.ExecutionRecord) {
		e.Status = status
	}
}

// WithExecutionWorkflowID sets the owning workflow id.
func WithExecutionWorkflowID(workflowID string) func(*models.ExecutionRecord) {
	return func(e *models.ExecutionRecord) {
		e.WorkflowID = workflowID
	}
}

// CreateTestBranch creates a pending branch owned by an execution that can
// be overridden.
func CreateTestBranch(executionID string, overrides ...func(*models.ExecutionBranch)) *models.ExecutionBranch {
	branch := models.NewExecutionBranch(uuid.New().String(), executionID, "Test Branch")

	for _, override := range overrides {
		override(branch)
	}

	return branch
}

// WithBranchStatus sets the branch status.
func WithBranchStatus(status models.ExecutionStatus) func(*models.ExecutionBranch) {
	return func(b *models.ExecutionBranch) {
		b.Status = status
	}
}

// WithBranchName sets the branch name.
func WithBranchName(name string) func(*models.ExecutionBranch) {
	return func(b *models.ExecutionBranch) {
		b.Name = name
	}
}
