// Package reason provides a simulated reasoning node plugin. It condenses
// the incoming payload into a conclusion, reports token usage and can score
// the relevance of the branch it runs on.
package reason

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

// ReasonPlugin summarizes payload content and optionally emits a branch
// relevance signal.
type ReasonPlugin struct {
	logger *slog.Logger
}

// NewPlugin creates a new reason plugin instance.
func NewPlugin() *ReasonPlugin {
	return &ReasonPlugin{logger: slog.Default()}
}

func (p *ReasonPlugin) ID() string      { return "reason" }
func (p *ReasonPlugin) Name() string    { return "Reason" }
func (p *ReasonPlugin) Version() string { return "1.0.0" }
func (p *ReasonPlugin) Description() string {
	return "Simulated reasoning that condenses payload content and can score branch relevance"
}

func (p *ReasonPlugin) Initialize(_ context.Context, deps protocol.Dependencies) error {
	if deps.Logger != nil {
		p.logger = deps.Logger
	}

	return nil
}

func (p *ReasonPlugin) Activate(_ context.Context) error   { return nil }
func (p *ReasonPlugin) Deactivate(_ context.Context) error { return nil }

func (p *ReasonPlugin) NodeType() string { return "reason" }

func (p *ReasonPlugin) InputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"content": {Type: "string"},
			"input":   {Type: "string"},
		},
	}
}

func (p *ReasonPlugin) OutputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"conclusion":  {Type: "string"},
			"confidence":  {Type: "number"},
			"token_usage": {Type: "integer"},
		},
		Required: []string{"conclusion"},
	}
}

func (p *ReasonPlugin) ConfigSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"objective": {
				Type:        "string",
				Description: "What the reasoning step should focus on",
			},
			"score_branch": {
				Type:        "boolean",
				Description: "Emit the derived confidence as the branch relevance score",
				Default:     false,
			},
		},
	}
}

// Process derives a conclusion and confidence from the payload. When
// score_branch is set the confidence is surfaced as a relevance signal for
// the current branch.
func (p *ReasonPlugin) Process(_ context.Context, input any, config map[string]any, ectx *protocol.ExecutionContext) ([]any, error) {
	subject := subjectOf(input)
	if subject == "" {
		return nil, fmt.Errorf("reason node '%s' received no content", ectx.NodeID)
	}

	objective := "summary"
	if raw, ok := config["objective"].(string); ok && raw != "" {
		objective = raw
	}

	confidence := deriveConfidence(subject)
	conclusion := fmt.Sprintf("Assessment (%s): %s", objective, condense(subject))

	if scoreBranch, _ := config["score_branch"].(bool); scoreBranch && ectx.BranchID != "" {
		ectx.EmitSignal(protocol.Signal{
			Kind:           protocol.SignalBranchRelevance,
			NodeID:         ectx.NodeID,
			BranchID:       ectx.BranchID,
			RelevanceScore: confidence,
			Reason:         conclusion,
		})
	}

	ectx.Logger.Debug("Reasoning completed", "objective", objective, "confidence", confidence)

	return []any{map[string]any{
		"conclusion":  conclusion,
		"confidence":  confidence,
		"token_usage": len(subject)/4 + 32,
	}}, nil
}

// subjectOf extracts the text the reasoning step operates on.
func subjectOf(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case map[string]any:
		for _, key := range []string{"content", "conclusion", "output", "input", "query"} {
			if s, ok := v[key].(string); ok && s != "" {
				return s
			}
		}

		return ""
	default:
		return ""
	}
}

// condense keeps the first sentence, trimmed to a bounded length.
func condense(subject string) string {
	if idx := strings.IndexAny(subject, ".\n"); idx > 0 {
		subject = subject[:idx]
	}

	const maxLen = 140
	if len(subject) > maxLen {
		subject = subject[:maxLen]
	}

	return strings.TrimSpace(subject)
}

// deriveConfidence maps the subject onto a stable score in [0.5, 1.0).
func deriveConfidence(subject string) float64 {
	seed := fnv.New32a()
	_, _ = seed.Write([]byte(subject))

	return 0.5 + float64(seed.Sum32()%500)/1000.0
}
