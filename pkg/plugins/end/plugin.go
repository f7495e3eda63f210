// Package end provides the terminal node plugin that wraps a pipeline's
// working value into the completion payload.
package end

import (
	"context"
	"log/slog"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

// EndPlugin closes a pipeline path: it extracts the working value and emits
// the completion payload callers filter terminal results by.
type EndPlugin struct {
	logger *slog.Logger
}

// NewPlugin creates a new end plugin instance.
func NewPlugin() *EndPlugin {
	return &EndPlugin{logger: slog.Default()}
}

func (p *EndPlugin) ID() string          { return "end" }
func (p *EndPlugin) Name() string        { return "End" }
func (p *EndPlugin) Version() string     { return "1.0.0" }
func (p *EndPlugin) Description() string { return "Terminal node that emits the completion payload" }

func (p *EndPlugin) Initialize(_ context.Context, deps protocol.Dependencies) error {
	if deps.Logger != nil {
		p.logger = deps.Logger
	}

	return nil
}

func (p *EndPlugin) Activate(_ context.Context) error   { return nil }
func (p *EndPlugin) Deactivate(_ context.Context) error { return nil }

func (p *EndPlugin) NodeType() string { return "end" }

func (p *EndPlugin) InputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"input":  {Type: "any"},
			"output": {Type: "any"},
		},
	}
}

func (p *EndPlugin) OutputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"completed": {Type: "boolean"},
			"result": {
				Type: "object",
				Properties: map[string]*models.Property{
					"output": {Type: "any", Description: "The pipeline's final value"},
				},
			},
		},
		Required: []string{"completed", "result"},
	}
}

func (p *EndPlugin) ConfigSchema() *models.JSONSchema {
	return &models.JSONSchema{Type: "object"}
}

// Process wraps the payload's working value into {completed, result}. The
// working value is the output key when present, else the input key, else
// the whole payload.
func (p *EndPlugin) Process(_ context.Context, input any, _ map[string]any, ectx *protocol.ExecutionContext) ([]any, error) {
	value := input

	if m, ok := input.(map[string]any); ok {
		switch {
		case m["output"] != nil:
			value = m["output"]
		case m["input"] != nil:
			value = m["input"]
		}
	}

	ectx.Logger.Debug("Pipeline path completed")

	return []any{map[string]any{
		"completed": true,
		"result":    map[string]any{"output": value},
	}}, nil
}
