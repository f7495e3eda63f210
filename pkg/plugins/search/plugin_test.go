package search

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/braidflow/braid/pkg/protocol"
)

func testContext() *protocol.ExecutionContext {
	return &protocol.ExecutionContext{
		NodeID:      "search-1",
		ExecutionID: "exec-1",
		BranchID:    "branch-main",
		Logger:      slog.New(slog.DiscardHandler),
	}
}

func TestSearchPlugin_Metadata(t *testing.T) {
	plugin := NewPlugin()

	if plugin.ID() != "search" {
		t.Errorf("Expected ID 'search', got: %s", plugin.ID())
	}

	if plugin.NodeType() != "search" {
		t.Errorf("Expected node type 'search', got: %s", plugin.NodeType())
	}
}

func TestSearchPlugin_Process_ConfiguredQuery(t *testing.T) {
	plugin := NewPlugin()

	config := map[string]any{"query": "golang concurrency"}

	outputs, err := plugin.Process(context.Background(), nil, config, testContext())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	result, ok := outputs[0].(map[string]any)
	if !ok {
		t.Fatal("Expected output to be a map")
	}

	if result["query"] != "golang concurrency" {
		t.Errorf("Expected query to be echoed, got: %v", result["query"])
	}

	results, ok := result["results"].([]any)
	if !ok {
		t.Fatal("Expected results to be a list")
	}

	if len(results) != defaultMaxResults {
		t.Errorf("Expected %d results, got: %d", defaultMaxResults, len(results))
	}

	usage, ok := result["token_usage"].(int)
	if !ok || usage <= 0 {
		t.Errorf("Expected positive token usage, got: %v", result["token_usage"])
	}
}

func TestSearchPlugin_Process_Deterministic(t *testing.T) {
	plugin := NewPlugin()

	config := map[string]any{"query": "stable query"}

	first, err := plugin.Process(context.Background(), nil, config, testContext())
	if err != nil {
		t.Fatalf("First process failed: %v", err)
	}

	second, err := plugin.Process(context.Background(), nil, config, testContext())
	if err != nil {
		t.Fatalf("Second process failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical results for the same query")
	}
}

func TestSearchPlugin_Process_QueryFromPayload(t *testing.T) {
	plugin := NewPlugin()

	input := map[string]any{"input": "from payload"}

	outputs, err := plugin.Process(context.Background(), input, map[string]any{}, testContext())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	result := outputs[0].(map[string]any)
	if result["query"] != "from payload" {
		t.Errorf("Expected query 'from payload', got: %v", result["query"])
	}
}

func TestSearchPlugin_Process_TemplatedQuery(t *testing.T) {
	plugin := NewPlugin()

	input := map[string]any{"topic": "retrieval"}
	config := map[string]any{"query": "papers about {{.topic}}"}

	outputs, err := plugin.Process(context.Background(), input, config, testContext())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	result := outputs[0].(map[string]any)
	if result["query"] != "papers about retrieval" {
		t.Errorf("Expected templated query, got: %v", result["query"])
	}
}

func TestSearchPlugin_Process_MaxResults(t *testing.T) {
	plugin := NewPlugin()

	config := map[string]any{"query": "capped", "max_results": 1}

	outputs, err := plugin.Process(context.Background(), nil, config, testContext())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	result := outputs[0].(map[string]any)

	results := result["results"].([]any)
	if len(results) != 1 {
		t.Errorf("Expected 1 result, got: %d", len(results))
	}
}

func TestSearchPlugin_Process_MissingQuery(t *testing.T) {
	plugin := NewPlugin()

	_, err := plugin.Process(context.Background(), nil, map[string]any{}, testContext())
	if err == nil {
		t.Fatal("Expected error when no query is available")
	}

	if !strings.Contains(err.Error(), "no query") {
		t.Errorf("Expected no-query error, got: %v", err)
	}
}
