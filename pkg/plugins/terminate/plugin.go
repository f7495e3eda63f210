// Package terminate provides the early-termination node plugin. It signals
// the lifecycle manager to stop scheduling new work and passes the payload
// through marked final.
package terminate

import (
	"context"
	"log/slog"
	"maps"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

// TerminatePlugin surfaces a terminate signal and finalizes the item.
type TerminatePlugin struct {
	logger *slog.Logger
}

// NewPlugin creates a new terminate plugin instance.
func NewPlugin() *TerminatePlugin {
	return &TerminatePlugin{logger: slog.Default()}
}

func (p *TerminatePlugin) ID() string      { return "terminate" }
func (p *TerminatePlugin) Name() string    { return "Terminate" }
func (p *TerminatePlugin) Version() string { return "1.0.0" }
func (p *TerminatePlugin) Description() string {
	return "Signals the execution to stop scheduling new work and marks the item final"
}

func (p *TerminatePlugin) Initialize(_ context.Context, deps protocol.Dependencies) error {
	if deps.Logger != nil {
		p.logger = deps.Logger
	}

	return nil
}

func (p *TerminatePlugin) Activate(_ context.Context) error   { return nil }
func (p *TerminatePlugin) Deactivate(_ context.Context) error { return nil }

func (p *TerminatePlugin) NodeType() string { return "terminate" }

func (p *TerminatePlugin) InputSchema() *models.JSONSchema {
	return &models.JSONSchema{Type: "object"}
}

func (p *TerminatePlugin) OutputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"final":  {Type: "boolean"},
			"reason": {Type: "string"},
		},
		Required: []string{"final"},
	}
}

func (p *TerminatePlugin) ConfigSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"reason": {
				Type:        "string",
				Description: "Why the execution should stop early",
			},
		},
	}
}

// Process emits the terminate signal and returns the payload with final set,
// so the stage marks the item as a terminal result.
func (p *TerminatePlugin) Process(_ context.Context, input any, config map[string]any, ectx *protocol.ExecutionContext) ([]any, error) {
	reason, _ := config["reason"].(string)
	if reason == "" {
		reason = "terminated by workflow"
	}

	ectx.EmitSignal(protocol.Signal{
		Kind:     protocol.SignalTerminate,
		NodeID:   ectx.NodeID,
		BranchID: ectx.BranchID,
		Reason:   reason,
	})

	output := map[string]any{}
	if m, ok := input.(map[string]any); ok {
		maps.Copy(output, m)
	} else if input != nil {
		output["input"] = input
	}

	output["final"] = true
	output["reason"] = reason

	ectx.Logger.Debug("Termination requested", "reason", reason)

	return []any{output}, nil
}
