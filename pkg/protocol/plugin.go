// Package protocol defines the interfaces and contracts for pluggable nodes.
package protocol

import (
	"context"
	"log/slog"

	"github.com/braidflow/braid/pkg/models"
)

// Plugin is the lifecycle-only contract every plugin implements. Plugins that
// can back workflow nodes additionally implement NodePlugin; the registry
// distinguishes the two by explicit type assertion, never by structural
// inspection of the value.
type Plugin interface {
	// ID returns the unique identifier for this plugin
	ID() string

	// Name returns the human-readable name for this plugin
	Name() string

	// Version returns the plugin version
	Version() string

	// Description returns a description of what this plugin does
	Description() string

	// Initialize sets up the plugin with its dependencies.
	// Called once at registration time.
	Initialize(ctx context.Context, deps Dependencies) error

	// Activate marks the plugin ready to process work.
	Activate(ctx context.Context) error

	// Deactivate releases plugin resources.
	Deactivate(ctx context.Context) error
}

// NodePlugin is the node-capable plugin contract. Process receives one input
// value and returns one or more outputs; the stream engine fans each output
// out to the node's downstream connections.
type NodePlugin interface {
	Plugin

	// NodeType returns the workflow node type this plugin backs
	NodeType() string

	// InputSchema describes the values this node accepts
	InputSchema() *models.JSONSchema

	// OutputSchema describes the values this node emits
	OutputSchema() *models.JSONSchema

	// ConfigSchema describes the node config bag
	ConfigSchema() *models.JSONSchema

	// Process transforms one input into one or more outputs
	Process(ctx context.Context, input any, config map[string]any, ectx *ExecutionContext) ([]any, error)
}

// Dependencies contains the common dependencies plugins receive at
// registration time.
type Dependencies struct {
	Logger   *slog.Logger
	Services ServiceResolver
}

// ServiceResolver resolves shared services by id for plugins that need
// external collaborators.
type ServiceResolver interface {
	GetService(id string) (any, bool)
}
