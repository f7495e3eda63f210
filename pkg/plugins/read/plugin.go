// Package read provides a simulated document read node plugin. It expands a
// search result (or a configured source) into document content and reports
// token usage for the fetched text.
package read

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
	"github.com/braidflow/braid/pkg/template"
)

// ReadPlugin fetches simulated document content for a source reference.
type ReadPlugin struct {
	logger *slog.Logger
}

// NewPlugin creates a new read plugin instance.
func NewPlugin() *ReadPlugin {
	return &ReadPlugin{logger: slog.Default()}
}

func (p *ReadPlugin) ID() string      { return "read" }
func (p *ReadPlugin) Name() string    { return "Read" }
func (p *ReadPlugin) Version() string { return "1.0.0" }
func (p *ReadPlugin) Description() string {
	return "Simulated document reader that expands a source reference into content"
}

func (p *ReadPlugin) Initialize(_ context.Context, deps protocol.Dependencies) error {
	if deps.Logger != nil {
		p.logger = deps.Logger
	}

	return nil
}

func (p *ReadPlugin) Activate(_ context.Context) error   { return nil }
func (p *ReadPlugin) Deactivate(_ context.Context) error { return nil }

func (p *ReadPlugin) NodeType() string { return "read" }

func (p *ReadPlugin) InputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"url":     {Type: "string"},
			"results": {Type: "array", Description: "Search results; the first entry is read when no source is configured"},
		},
	}
}

func (p *ReadPlugin) OutputSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"source":      {Type: "string"},
			"content":     {Type: "string"},
			"word_count":  {Type: "integer"},
			"token_usage": {Type: "integer"},
		},
		Required: []string{"source", "content"},
	}
}

func (p *ReadPlugin) ConfigSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"source": {
				Type:        "string",
				Description: "Source reference to read; templates may reference the payload",
			},
		},
	}
}

// Process resolves the source reference and produces its simulated content.
// Content depends only on the source, so rereads are stable.
func (p *ReadPlugin) Process(_ context.Context, input any, config map[string]any, ectx *protocol.ExecutionContext) ([]any, error) {
	source, err := p.resolveSource(input, config, ectx)
	if err != nil {
		return nil, err
	}

	if source == "" {
		return nil, fmt.Errorf("read node '%s' has no source", ectx.NodeID)
	}

	content, words := simulateContent(source)

	ectx.Logger.Debug("Read completed", "source", source, "words", words)

	return []any{map[string]any{
		"source":      source,
		"content":     content,
		"word_count":  words,
		"token_usage": words + 16,
	}}, nil
}

func (p *ReadPlugin) resolveSource(input any, config map[string]any, ectx *protocol.ExecutionContext) (string, error) {
	if raw, ok := config["source"].(string); ok && raw != "" {
		if !template.NeedsTemplating(raw) {
			return raw, nil
		}

		rendered, err := template.RenderPayload(raw, input, ectx.NodeID, ectx.ExecutionID, ectx.BranchID)
		if err != nil {
			return "", fmt.Errorf("render source: %w", err)
		}

		return fmt.Sprintf("%v", rendered), nil
	}

	m, ok := input.(map[string]any)
	if !ok {
		if s, ok := input.(string); ok {
			return s, nil
		}

		return "", nil
	}

	if url, ok := m["url"].(string); ok && url != "" {
		return url, nil
	}

	// Fall back to the top-ranked search result.
	if results, ok := m["results"].([]any); ok && len(results) > 0 {
		if first, ok := results[0].(map[string]any); ok {
			if url, ok := first["url"].(string); ok {
				return url, nil
			}
		}
	}

	return "", nil
}

// simulateContent derives paragraph count and text from the source string.
func simulateContent(source string) (string, int) {
	seed := fnv.New32a()
	_, _ = seed.Write([]byte(source))

	paragraphs := int(seed.Sum32()%3) + 2
	content := ""
	words := 0

	for i := range paragraphs {
		paragraph := fmt.Sprintf("Section %d of %s discusses the subject in detail, covering background, findings and open questions.", i+1, source)
		if i > 0 {
			content += "\n\n"
		}

		content += paragraph
		words += 15
	}

	return content, words
}
