// Package process provides the transformation node plugin for workflow
// pipelines.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
	"github.com/braidflow/braid/pkg/template"
)

// Supported transforms.
const (
	TransformNone      = "none"
	TransformUppercase = "uppercase"
	TransformReverse   = "reverse"
	TransformTemplate  = "template"
)

// ProcessPlugin applies a configured transform to the payload's working
// value and writes the result under the output key. Chained process nodes
// feed on each other's output.
type ProcessPlugin struct {
	logger *slog.Logger
}

// NewPlugin creates a new process plugin instance.
func NewPlugin() *ProcessPlugin {
	return &ProcessPlugin{logger: slog.Default()}
}

func (p *ProcessPlugin) ID() string      { return "process" }
func (p *ProcessPlugin) Name() string    { return "Process" }
func (p *ProcessPlugin) Version() string { return "1.0.0" }
func (p *ProcessPlugin) Description() string {
	return "Transforms the payload value using none, uppercase, reverse or a template expression"
}

func (p *ProcessPlugin) Initialize(_ context.Context, deps protocol.Dependencies) error {
	if deps.Logger != nil {
		p.logger = deps.Logger
	}

	return nil
}

func (p *ProcessPlugin) Activate(_ context.Context) error   { return nil }
func (p *ProcessPlugin) Deactivate(_ context.Context) error { return nil }

func (p *ProcessPlugin) NodeType() string { return "process" }

func (p *ProcessPlugin) InputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"input":  {Type: "any", Description: "Value to transform when no prior output exists"},
			"output": {Type: "any", Description: "Value produced by an upstream process node"},
		},
	}
}

func (p *ProcessPlugin) OutputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"output": {Type: "any", Description: "The transformed value"},
		},
	}
}

func (p *ProcessPlugin) ConfigSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"transform": {
				Type:        "string",
				Description: "Transformation to apply to the working value",
				Enum:        []any{TransformNone, TransformUppercase, TransformReverse, TransformTemplate},
				Default:     TransformNone,
			},
			"expression": {
				Type:        "string",
				Description: "Go template expression, required for the template transform",
			},
		},
	}
}

// Process transforms one payload. The working value is the payload's output
// key when present, else its input key; the transformed result replaces the
// output key while every other key passes through.
func (p *ProcessPlugin) Process(_ context.Context, input any, config map[string]any, ectx *protocol.ExecutionContext) ([]any, error) {
	transform := TransformNone
	if t, ok := config["transform"].(string); ok && t != "" {
		transform = t
	}

	payload := payloadMap(input)
	value := workingValue(payload, input)

	var (
		result any
		err    error
	)

	switch transform {
	case TransformNone:
		result = value
	case TransformUppercase:
		result = strings.ToUpper(stringify(value))
	case TransformReverse:
		result = reverseString(stringify(value))
	case TransformTemplate:
		expression, ok := config["expression"].(string)
		if !ok || expression == "" {
			return nil, fmt.Errorf("transform '%s' requires an expression", TransformTemplate)
		}

		result, err = template.RenderPayload(expression, input, ectx.NodeID, ectx.ExecutionID, ectx.BranchID)
		if err != nil {
			return nil, fmt.Errorf("template transform: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown transform '%s'", transform)
	}

	ectx.Logger.Debug("Applied transform", "transform", transform)

	payload["output"] = result

	return []any{payload}, nil
}

// payloadMap returns a copy of the input as a map, wrapping non-map inputs
// under the input key.
func payloadMap(input any) map[string]any {
	m, ok := input.(map[string]any)
	if !ok {
		return map[string]any{"input": input}
	}

	out := make(map[string]any, len(m)+1)
	for key, value := range m {
		out[key] = value
	}

	return out
}

func workingValue(payload map[string]any, input any) any {
	if value, ok := payload["output"]; ok {
		return value
	}

	if value, ok := payload["input"]; ok {
		return value
	}

	return input
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", value)
}

func reverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}

	return string(runes)
}
