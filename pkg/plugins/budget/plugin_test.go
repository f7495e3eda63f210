package budget

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/braidflow/braid/pkg/protocol"
)

func testContext(executionID string) *protocol.ExecutionContext {
	return &protocol.ExecutionContext{
		NodeID:      "budget-1",
		ExecutionID: executionID,
		BranchID:    "branch-main",
		Logger:      slog.New(slog.DiscardHandler),
	}
}

func TestBudgetPlugin_Metadata(t *testing.T) {
	plugin := NewPlugin()

	if plugin.ID() != "budget" {
		t.Errorf("Expected ID 'budget', got: %s", plugin.ID())
	}

	if plugin.NodeType() != "budget" {
		t.Errorf("Expected node type 'budget', got: %s", plugin.NodeType())
	}
}

func TestBudgetPlugin_Process_UnderBudget(t *testing.T) {
	plugin := NewPlugin()

	input := map[string]any{"token_usage": 40, "content": "kept"}
	config := map[string]any{"max_tokens": 100}

	outputs, err := plugin.Process(context.Background(), input, config, testContext("exec-1"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	result, ok := outputs[0].(map[string]any)
	if !ok {
		t.Fatal("Expected output to be a map")
	}

	if result["tokens_spent"] != 40 {
		t.Errorf("Expected 40 tokens spent, got: %v", result["tokens_spent"])
	}

	if result["tokens_remaining"] != 60 {
		t.Errorf("Expected 60 tokens remaining, got: %v", result["tokens_remaining"])
	}

	if result["content"] != "kept" {
		t.Error("Expected payload keys to pass through")
	}

	if _, ok := result["token_usage"]; ok {
		t.Error("Expected token_usage to be consumed, not forwarded")
	}
}

func TestBudgetPlugin_Process_Accumulates(t *testing.T) {
	plugin := NewPlugin()

	config := map[string]any{"max_tokens": 100}
	ectx := testContext("exec-1")

	for range 2 {
		if _, err := plugin.Process(context.Background(), map[string]any{"token_usage": 30}, config, ectx); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}

	if spent := plugin.Spent("exec-1"); spent != 60 {
		t.Errorf("Expected 60 tokens spent after two items, got: %d", spent)
	}

	// The third item pushes the cumulative spend past the budget.
	_, err := plugin.Process(context.Background(), map[string]any{"token_usage": 50}, config, ectx)
	if err == nil {
		t.Fatal("Expected budget exceeded error")
	}

	if !strings.Contains(err.Error(), "token budget exceeded") {
		t.Errorf("Expected budget error, got: %v", err)
	}

	if !strings.Contains(err.Error(), "110 of 100") {
		t.Errorf("Expected spend detail in error, got: %v", err)
	}
}

func TestBudgetPlugin_Process_IsolatesExecutions(t *testing.T) {
	plugin := NewPlugin()

	config := map[string]any{"max_tokens": 50}

	if _, err := plugin.Process(context.Background(), map[string]any{"token_usage": 45}, config, testContext("exec-a")); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// A different execution starts from zero.
	if _, err := plugin.Process(context.Background(), map[string]any{"token_usage": 45}, config, testContext("exec-b")); err != nil {
		t.Fatalf("Expected separate budget per execution, got: %v", err)
	}
}

func TestBudgetPlugin_Process_FloatUsage(t *testing.T) {
	plugin := NewPlugin()

	// JSON-decoded payloads carry numbers as float64.
	input := map[string]any{"token_usage": float64(25)}
	config := map[string]any{"max_tokens": float64(100)}

	outputs, err := plugin.Process(context.Background(), input, config, testContext("exec-1"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	result := outputs[0].(map[string]any)
	if result["tokens_spent"] != 25 {
		t.Errorf("Expected 25 tokens spent, got: %v", result["tokens_spent"])
	}
}

func TestBudgetPlugin_Process_MissingMaxTokens(t *testing.T) {
	plugin := NewPlugin()

	_, err := plugin.Process(context.Background(), map[string]any{}, map[string]any{}, testContext("exec-1"))
	if err == nil {
		t.Fatal("Expected error when max_tokens is missing")
	}

	if !strings.Contains(err.Error(), "requires max_tokens") {
		t.Errorf("Expected max_tokens error, got: %v", err)
	}
}

func TestBudgetPlugin_Deactivate_ClearsState(t *testing.T) {
	plugin := NewPlugin()

	config := map[string]any{"max_tokens": 100}

	if _, err := plugin.Process(context.Background(), map[string]any{"token_usage": 80}, config, testContext("exec-1")); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if err := plugin.Deactivate(context.Background()); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	if spent := plugin.Spent("exec-1"); spent != 0 {
		t.Errorf("Expected cleared state after deactivate, got: %d", spent)
	}
}

func TestBudgetPlugin_Process_Concurrent(t *testing.T) {
	plugin := NewPlugin()

	config := map[string]any{"max_tokens": 10000}
	ectx := testContext("exec-1")

	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, _ = plugin.Process(context.Background(), map[string]any{"token_usage": 10}, config, ectx)
		}()
	}

	wg.Wait()

	if spent := plugin.Spent("exec-1"); spent != 500 {
		t.Errorf("Expected 500 tokens spent, got: %d", spent)
	}
}
