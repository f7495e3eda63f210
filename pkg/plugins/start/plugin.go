// Package start provides the entry node plugin that feeds the workflow input
// into the pipeline.
package start

import (
	"context"
	"log/slog"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

// StartPlugin forwards the workflow input as the first stream payload. Raw
// inputs are wrapped into an {input: ...} map so downstream nodes always see
// a keyed payload.
type StartPlugin struct {
	logger *slog.Logger
}

// NewPlugin creates a new start plugin instance.
func NewPlugin() *StartPlugin {
	return &StartPlugin{logger: slog.Default()}
}

func (p *StartPlugin) ID() string          { return "start" }
func (p *StartPlugin) Name() string        { return "Start" }
func (p *StartPlugin) Version() string     { return "1.0.0" }
func (p *StartPlugin) Description() string { return "Entry node that forwards the workflow input" }

func (p *StartPlugin) Initialize(_ context.Context, deps protocol.Dependencies) error {
	if deps.Logger != nil {
		p.logger = deps.Logger
	}

	return nil
}

func (p *StartPlugin) Activate(_ context.Context) error   { return nil }
func (p *StartPlugin) Deactivate(_ context.Context) error { return nil }

func (p *StartPlugin) NodeType() string { return "start" }

func (p *StartPlugin) InputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type:        "object",
		Description: "Workflow input of any shape",
	}
}

func (p *StartPlugin) OutputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"input": {Type: "any", Description: "The original workflow input"},
		},
	}
}

func (p *StartPlugin) ConfigSchema() *models.JSONSchema {
	return &models.JSONSchema{Type: "object"}
}

// Process emits the workflow input forward unchanged.
func (p *StartPlugin) Process(_ context.Context, input any, _ map[string]any, ectx *protocol.ExecutionContext) ([]any, error) {
	ectx.Logger.Debug("Workflow input received")

	if m, ok := input.(map[string]any); ok {
		return []any{m}, nil
	}

	return []any{map[string]any{"input": input}}, nil
}
