package read

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/braidflow/braid/pkg/protocol"
)

func testContext() *protocol.ExecutionContext {
	return &protocol.ExecutionContext{
		NodeID:      "read-1",
		ExecutionID: "exec-1",
		BranchID:    "branch-main",
		Logger:      slog.New(slog.DiscardHandler),
	}
}

func TestReadPlugin_Metadata(t *testing.T) {
	plugin := NewPlugin()

	if plugin.ID() != "read" {
		t.Errorf("Expected ID 'read', got: %s", plugin.ID())
	}

	if plugin.NodeType() != "read" {
		t.Errorf("Expected node type 'read', got: %s", plugin.NodeType())
	}
}

func TestReadPlugin_Process_ConfiguredSource(t *testing.T) {
	plugin := NewPlugin()

	config := map[string]any{"source": "https://example.org/doc"}

	outputs, err := plugin.Process(context.Background(), nil, config, testContext())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	result, ok := outputs[0].(map[string]any)
	if !ok {
		t.Fatal("Expected output to be a map")
	}

	if result["source"] != "https://example.org/doc" {
		t.Errorf("Expected source to be echoed, got: %v", result["source"])
	}

	content, ok := result["content"].(string)
	if !ok || content == "" {
		t.Error("Expected non-empty content")
	}

	usage, ok := result["token_usage"].(int)
	if !ok || usage <= 0 {
		t.Errorf("Expected positive token usage, got: %v", result["token_usage"])
	}
}

func TestReadPlugin_Process_SourceFromURL(t *testing.T) {
	plugin := NewPlugin()

	input := map[string]any{"url": "https://example.org/page"}

	outputs, err := plugin.Process(context.Background(), input, map[string]any{}, testContext())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	result := outputs[0].(map[string]any)
	if result["source"] != "https://example.org/page" {
		t.Errorf("Expected source from url key, got: %v", result["source"])
	}
}

func TestReadPlugin_Process_SourceFromSearchResults(t *testing.T) {
	plugin := NewPlugin()

	input := map[string]any{
		"results": []any{
			map[string]any{"title": "First", "url": "https://example.org/first"},
			map[string]any{"title": "Second", "url": "https://example.org/second"},
		},
	}

	outputs, err := plugin.Process(context.Background(), input, map[string]any{}, testContext())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	result := outputs[0].(map[string]any)
	if result["source"] != "https://example.org/first" {
		t.Errorf("Expected top-ranked result to be read, got: %v", result["source"])
	}
}

func TestReadPlugin_Process_StableContent(t *testing.T) {
	plugin := NewPlugin()

	config := map[string]any{"source": "doc-1"}

	first, err := plugin.Process(context.Background(), nil, config, testContext())
	if err != nil {
		t.Fatalf("First process failed: %v", err)
	}

	second, err := plugin.Process(context.Background(), nil, config, testContext())
	if err != nil {
		t.Fatalf("Second process failed: %v", err)
	}

	firstContent := first[0].(map[string]any)["content"]
	secondContent := second[0].(map[string]any)["content"]

	if firstContent != secondContent {
		t.Error("Expected identical content for the same source")
	}
}

func TestReadPlugin_Process_MissingSource(t *testing.T) {
	plugin := NewPlugin()

	_, err := plugin.Process(context.Background(), map[string]any{}, map[string]any{}, testContext())
	if err == nil {
		t.Fatal("Expected error when no source is available")
	}

	if !strings.Contains(err.Error(), "no source") {
		t.Errorf("Expected no-source error, got: %v", err)
	}
}
