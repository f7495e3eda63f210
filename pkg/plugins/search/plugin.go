// Package search provides a simulated search node plugin. It stands in for
// a real search API behind the uniform node contract; swap it out by
// registering a different plugin for the search node type.
package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
	"github.com/braidflow/braid/pkg/template"
)

const defaultMaxResults = 3

// SearchPlugin produces a deterministic result list for a query and reports
// a token usage estimate on its output.
type SearchPlugin struct {
	logger *slog.Logger
}

// NewPlugin creates a new search plugin instance.
func NewPlugin() *SearchPlugin {
	return &SearchPlugin{logger: slog.Default()}
}

func (p *SearchPlugin) ID() string      { return "search" }
func (p *SearchPlugin) Name() string    { return "Search" }
func (p *SearchPlugin) Version() string { return "1.0.0" }
func (p *SearchPlugin) Description() string {
	return "Simulated search that returns a deterministic result list for a query"
}

func (p *SearchPlugin) Initialize(_ context.Context, deps protocol.Dependencies) error {
	if deps.Logger != nil {
		p.logger = deps.Logger
	}

	return nil
}

func (p *SearchPlugin) Activate(_ context.Context) error   { return nil }
func (p *SearchPlugin) Deactivate(_ context.Context) error { return nil }

func (p *SearchPlugin) NodeType() string { return "search" }

func (p *SearchPlugin) InputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"input": {Type: "string", Description: "Fallback query when no query is configured"},
			"query": {Type: "string"},
		},
	}
}

func (p *SearchPlugin) OutputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"query": {Type: "string"},
			"results": {
				Type: "array",
				Items: &models.Property{
					Type: "object",
					Properties: map[string]*models.Property{
						"title":   {Type: "string"},
						"url":     {Type: "string"},
						"snippet": {Type: "string"},
						"rank":    {Type: "integer"},
					},
				},
			},
			"result_count": {Type: "integer"},
			"token_usage":  {Type: "integer"},
		},
		Required: []string{"query", "results"},
	}
}

func (p *SearchPlugin) ConfigSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"query": {
				Type:        "string",
				Description: "Query to search for; templates may reference the payload",
			},
			"max_results": {
				Type:        "integer",
				Description: "Maximum number of results to return",
				Default:     defaultMaxResults,
			},
		},
	}
}

// Process resolves the query from config or payload and emits the result
// list. Results are derived from the query alone, so the same query always
// yields the same results.
func (p *SearchPlugin) Process(_ context.Context, input any, config map[string]any, ectx *protocol.ExecutionContext) ([]any, error) {
	query, err := p.resolveQuery(input, config, ectx)
	if err != nil {
		return nil, err
	}

	if query == "" {
		return nil, fmt.Errorf("search node '%s' has no query", ectx.NodeID)
	}

	maxResults := defaultMaxResults
	if raw, ok := config["max_results"]; ok {
		if n, ok := asInt(raw); ok && n > 0 {
			maxResults = n
		}
	}

	results := simulateResults(query, maxResults)
	usage := estimateTokens(query, len(results))

	ectx.Logger.Debug("Search completed", "query", query, "results", len(results))

	return []any{map[string]any{
		"query":        query,
		"results":      results,
		"result_count": len(results),
		"token_usage":  usage,
	}}, nil
}

func (p *SearchPlugin) resolveQuery(input any, config map[string]any, ectx *protocol.ExecutionContext) (string, error) {
	if raw, ok := config["query"].(string); ok && raw != "" {
		if !template.NeedsTemplating(raw) {
			return raw, nil
		}

		rendered, err := template.RenderPayload(raw, input, ectx.NodeID, ectx.ExecutionID, ectx.BranchID)
		if err != nil {
			return "", fmt.Errorf("render query: %w", err)
		}

		return fmt.Sprintf("%v", rendered), nil
	}

	if m, ok := input.(map[string]any); ok {
		if query, ok := m["query"].(string); ok && query != "" {
			return query, nil
		}

		if query, ok := m["input"].(string); ok {
			return query, nil
		}
	}

	if query, ok := input.(string); ok {
		return query, nil
	}

	return "", nil
}

// simulateResults builds a stable pseudo result list seeded by the query.
func simulateResults(query string, maxResults int) []any {
	slug := strings.ToLower(strings.Join(strings.Fields(query), "-"))
	seed := fnv.New32a()
	_, _ = seed.Write([]byte(query))
	base := seed.Sum32()

	results := make([]any, 0, maxResults)

	for i := range maxResults {
		results = append(results, map[string]any{
			"title":   fmt.Sprintf("%s — source %d", query, i+1),
			"url":     fmt.Sprintf("https://corpus.example.org/%s/%08x", slug, base+uint32(i)),
			"snippet": fmt.Sprintf("Reference material covering %s (entry %d).", query, i+1),
			"rank":    i + 1,
		})
	}

	return results
}

// estimateTokens approximates usage the way LLM-backed searchers bill:
// query length plus a flat per-result cost.
func estimateTokens(query string, results int) int {
	return len(query)/4 + results*24
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
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
