// Package compiler turns workflow definitions into executable pipelines:
// it validates the node graph, computes a topological execution order and
// binds every node to its registered plugin.
package compiler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/registry"
	"github.com/google/uuid"
)

type Compiler struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func NewCompiler(reg *registry.Registry, logger *slog.Logger) *Compiler {
	return &Compiler{
		registry: reg,
		logger:   logger,
	}
}

type compileOptions struct {
	defaultBranchID string
}

type Option func(*compileOptions)

// WithDefaultBranchID overrides the per-compile branch id items fall back to
// when their metadata carries none.
func WithDefaultBranchID(id string) Option {
	return func(o *compileOptions) {
		o.defaultBranchID = id
	}
}

// Compile validates the workflow and produces an immutable executable form.
// Failures identify the offending node; a cyclic graph is rejected outright.
func (c *Compiler) Compile(ctx context.Context, workflow *models.Workflow, opts ...Option) (*ExecutableWorkflow, error) {
	options := &compileOptions{}
	for _, opt := range opts {
		opt(options)
	}

	if options.defaultBranchID == "" {
		options.defaultBranchID = uuid.New().String()
	}

	if workflow == nil {
		return nil, &Error{Reason: "workflow is nil"}
	}

	if len(workflow.Nodes) == 0 {
		return nil, &Error{Reason: "workflow has no nodes"}
	}

	if err := c.validateReferences(workflow); err != nil {
		return nil, err
	}

	nodeOrder, err := topologicalOrder(workflow)
	if err != nil {
		return nil, fmt.Errorf("compile workflow '%s': %w", workflow.ID, err)
	}

	stages := make(map[string]*Stage, len(nodeOrder))
	ordered := make([]*Stage, 0, len(nodeOrder))

	for _, nodeID := range nodeOrder {
		node := workflow.NodeByID(nodeID)

		plugin, pluginErr := c.registry.GetNodePlugin(node.Type)
		if pluginErr != nil {
			return nil, &Error{
				NodeID:   node.ID,
				NodeType: node.Type,
				Reason:   "no plugin registered for node type",
				Err:      pluginErr,
			}
		}

		if configErr := c.registry.ValidateConfig(node.Type, node.Config); configErr != nil {
			return nil, &Error{
				NodeID:   node.ID,
				NodeType: node.Type,
				Reason:   configErr.Error(),
				Err:      configErr,
			}
		}

		stage := &Stage{
			NodeID:          node.ID,
			NodeType:        node.Type,
			node:            node,
			plugin:          plugin,
			defaultBranchID: options.defaultBranchID,
		}

		stages[node.ID] = stage
		ordered = append(ordered, stage)
	}

	c.logger.Debug("Compiled workflow",
		"workflow_id", workflow.ID,
		"nodes", len(nodeOrder))

	return &ExecutableWorkflow{
		Workflow:        workflow,
		NodeOrder:       nodeOrder,
		DefaultBranchID: options.defaultBranchID,
		stages:          stages,
		ordered:         ordered,
	}, nil
}

// validateReferences checks that every connection endpoint names a declared
// node.
func (c *Compiler) validateReferences(workflow *models.Workflow) error {
	for _, conn := range workflow.Connections {
		if !workflow.HasNode(conn.From) {
			return &Error{
				NodeID: conn.From,
				Reason: fmt.Sprintf("connection references undeclared node '%s'", conn.From),
			}
		}

		if !workflow.HasNode(conn.To) {
			return &Error{
				NodeID: conn.To,
				Reason: fmt.Sprintf("connection references undeclared node '%s'", conn.To),
			}
		}
	}

	return nil
}

const (
	colorWhite = iota
	colorGrey
	colorBlack
)

// topologicalOrder runs a depth-first post-order walk, prepending each node
// when its subtree finishes. Every node therefore appears before everything
// reachable from it. A grey node seen twice means the graph has a cycle.
func topologicalOrder(workflow *models.Workflow) ([]string, error) {
	adjacency := make(map[string][]string, len(workflow.Nodes))
	for _, conn := range workflow.Connections {
		adjacency[conn.From] = append(adjacency[conn.From], conn.To)
	}

	colors := make(map[string]int, len(workflow.Nodes))
	order := make([]string, 0, len(workflow.Nodes))

	var visit func(id string) error

	visit = func(id string) error {
		switch colors[id] {
		case colorBlack:
			return nil
		case colorGrey:
			return ErrCycle
		}

		colors[id] = colorGrey

		for _, next := range adjacency[id] {
			if err := visit(next); err != nil {
				return err
			}
		}

		colors[id] = colorBlack
		order = append([]string{id}, order...)

		return nil
	}

	for _, node := range workflow.Nodes {
		if err := visit(node.ID); err != nil {
			return nil, err
		}
	}

	return order, nil
}
