// Package models defines the core domain models for plugin-based workflow execution.
package models

import "time"

// Workflow is the immutable definition of a directed node graph. Connections
// point from producer to consumer; a node may fan out to several downstream
// nodes.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Nodes       []*Node        `json:"nodes"`
	Connections []*Connection  `json:"connections"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Owner       string         `json:"owner"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Node is one typed processing step in a workflow graph, backed by a plugin
// registered for its type. Config is an opaque bag interpreted by that plugin.
type Node struct {
	ID      string         `json:"id"   validate:"required"`
	Type    string         `json:"type" validate:"required"`
	Name    string         `json:"name"`
	Config  map[string]any `json:"config"`
	Enabled bool           `json:"enabled"`
}

// Connection is a directed edge between two declared nodes.
type Connection struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to"   validate:"required"`
}

// NodeByID returns the declared node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// HasNode reports whether the workflow declares a node with the given id.
func (w *Workflow) HasNode(id string) bool {
	return w.NodeByID(id) != nil
}
