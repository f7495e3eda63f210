// Package branch provides the fan-out node plugin. Each configured branch
// spec becomes a branch-create signal plus one output item routed onto the
// new branch, so downstream nodes run once per branch.
package branch

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/google/uuid"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

// BranchPlugin splits a stream item onto newly created branches.
type BranchPlugin struct {
	logger *slog.Logger
}

// NewPlugin creates a new branch plugin instance.
func NewPlugin() *BranchPlugin {
	return &BranchPlugin{logger: slog.Default()}
}

func (p *BranchPlugin) ID() string      { return "branch" }
func (p *BranchPlugin) Name() string    { return "Branch" }
func (p *BranchPlugin) Version() string { return "1.0.0" }
func (p *BranchPlugin) Description() string {
	return "Fans the payload out onto newly created branches, one per configured spec"
}

func (p *BranchPlugin) Initialize(_ context.Context, deps protocol.Dependencies) error {
	if deps.Logger != nil {
		p.logger = deps.Logger
	}

	return nil
}

func (p *BranchPlugin) Activate(_ context.Context) error   { return nil }
func (p *BranchPlugin) Deactivate(_ context.Context) error { return nil }

func (p *BranchPlugin) NodeType() string { return "branch" }

func (p *BranchPlugin) InputSchema() *models.JSONSchema {
	return &models.JSONSchema{Type: "object"}
}

func (p *BranchPlugin) OutputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"branch_id":   {Type: "string"},
			"branch_name": {Type: "string"},
		},
		Required: []string{"branch_id"},
	}
}

func (p *BranchPlugin) ConfigSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"branches": {
				Type:        "array",
				Description: "Branch specs to fan out to; each entry may set name, priority and tags",
				Items: &models.Property{
					Type: "object",
					Properties: map[string]*models.Property{
						"name":     {Type: "string"},
						"priority": {Type: "integer"},
						"tags":     {Type: "array", Items: &models.Property{Type: "string"}},
					},
				},
			},
			"count": {
				Type:        "integer",
				Description: "Number of unnamed branches to create when no specs are given",
			},
		},
	}
}

// Process emits one create-branch signal per spec and returns the payload
// once per branch, tagged with the new branch id. The signal consumer opens
// the branch; the tagged outputs route the work onto it.
func (p *BranchPlugin) Process(_ context.Context, input any, config map[string]any, ectx *protocol.ExecutionContext) ([]any, error) {
	specs := branchSpecs(config)
	if len(specs) == 0 {
		return nil, fmt.Errorf("branch node '%s' has no branches configured", ectx.NodeID)
	}

	outputs := make([]any, 0, len(specs))

	for i, spec := range specs {
		branchID := uuid.New().String()

		name := spec.name
		if name == "" {
			name = fmt.Sprintf("branch-%d", i+1)
		}

		ectx.EmitSignal(protocol.Signal{
			Kind:           protocol.SignalCreateBranch,
			NodeID:         ectx.NodeID,
			BranchID:       branchID,
			BranchName:     name,
			ParentBranchID: ectx.BranchID,
			Priority:       spec.priority,
			Tags:           spec.tags,
		})

		output := map[string]any{}
		if m, ok := input.(map[string]any); ok {
			maps.Copy(output, m)
		} else if input != nil {
			output["input"] = input
		}

		output["branch_id"] = branchID
		output["branch_name"] = name

		outputs = append(outputs, output)
	}

	ectx.Logger.Debug("Fan-out completed", "branches", len(outputs))

	return outputs, nil
}

type spec struct {
	name     string
	priority int
	tags     []string
}

// branchSpecs reads the configured branch list, falling back to count
// anonymous branches.
func branchSpecs(config map[string]any) []spec {
	if raw, ok := config["branches"].([]any); ok && len(raw) > 0 {
		specs := make([]spec, 0, len(raw))

		for _, entry := range raw {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}

			s := spec{}
			if name, ok := m["name"].(string); ok {
				s.name = name
			}

			switch v := m["priority"].(type) {
			case int:
				s.priority = v
			case float64:
				s.priority = int(v)
			}

			if rawTags, ok := m["tags"].([]any); ok {
				for _, t := range rawTags {
					if tag, ok := t.(string); ok {
						s.tags = append(s.tags, tag)
					}
				}
			}

			specs = append(specs, s)
		}

		return specs
	}

	count := 0

	switch v := config["count"].(type) {
	case int:
		count = v
	case float64:
		count = int(v)
	}

	specs := make([]spec, count)

	return specs
}
