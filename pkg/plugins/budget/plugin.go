// Package budget provides the token budget guard node plugin. It accumulates
// the token usage flowing through it per execution and fails the item once
// the configured budget is exhausted.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

// BudgetPlugin tracks cumulative token usage per execution. State lives in
// the plugin instance, so one instance guards every execution the registry
// serves; Deactivate clears the table.
type BudgetPlugin struct {
	logger *slog.Logger

	mu    sync.Mutex
	spent map[string]int
}

// NewPlugin creates a new budget plugin instance.
func NewPlugin() *BudgetPlugin {
	return &BudgetPlugin{
		logger: slog.Default(),
		spent:  make(map[string]int),
	}
}

func (p *BudgetPlugin) ID() string      { return "budget" }
func (p *BudgetPlugin) Name() string    { return "Budget" }
func (p *BudgetPlugin) Version() string { return "1.0.0" }
func (p *BudgetPlugin) Description() string {
	return "Guards a per-execution token budget and fails items once it is exhausted"
}

func (p *BudgetPlugin) Initialize(_ context.Context, deps protocol.Dependencies) error {
	if deps.Logger != nil {
		p.logger = deps.Logger
	}

	return nil
}

func (p *BudgetPlugin) Activate(_ context.Context) error { return nil }

// Deactivate drops all accumulated usage.
func (p *BudgetPlugin) Deactivate(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.spent = make(map[string]int)

	return nil
}

func (p *BudgetPlugin) NodeType() string { return "budget" }

func (p *BudgetPlugin) InputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"token_usage": {Type: "integer", Description: "Tokens the upstream node consumed"},
		},
	}
}

func (p *BudgetPlugin) OutputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"tokens_spent":     {Type: "integer"},
			"tokens_remaining": {Type: "integer"},
		},
	}
}

func (p *BudgetPlugin) ConfigSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"max_tokens": {
				Type:        "integer",
				Description: "Cumulative token budget for the execution",
			},
		},
		Required: []string{"max_tokens"},
	}
}

// Process charges the item's token usage against the execution budget.
// Charging happens before the check, so the overspending item itself fails
// rather than the one after it.
func (p *BudgetPlugin) Process(_ context.Context, input any, config map[string]any, ectx *protocol.ExecutionContext) ([]any, error) {
	maxTokens, ok := maxTokensFrom(config)
	if !ok {
		return nil, fmt.Errorf("budget node '%s' requires max_tokens", ectx.NodeID)
	}

	usage := usageFrom(input)

	p.mu.Lock()
	p.spent[ectx.ExecutionID] += usage
	spent := p.spent[ectx.ExecutionID]
	p.mu.Unlock()

	if spent > maxTokens {
		return nil, fmt.Errorf("token budget exceeded: %d of %d tokens spent", spent, maxTokens)
	}

	output := map[string]any{}
	if m, ok := input.(map[string]any); ok {
		maps.Copy(output, m)
	} else if input != nil {
		output["input"] = input
	}

	// The charge already happened upstream; do not bill it twice.
	delete(output, "token_usage")
	output["tokens_spent"] = spent
	output["tokens_remaining"] = maxTokens - spent

	ectx.Logger.Debug("Budget checked", "spent", spent, "max", maxTokens)

	return []any{output}, nil
}

// Spent reports the tokens charged so far for an execution.
func (p *BudgetPlugin) Spent(executionID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.spent[executionID]
}

func maxTokensFrom(config map[string]any) (int, bool) {
	switch v := config["max_tokens"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func usageFrom(input any) int {
	m, ok := input.(map[string]any)
	if !ok {
		return 0
	}

	switch v := m["token_usage"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
