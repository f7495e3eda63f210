package start

import (
	"context"
	"log/slog"
	"testing"

	"github.com/braidflow/braid/pkg/protocol"
)

func testContext() *protocol.ExecutionContext {
	return &protocol.ExecutionContext{
		NodeID:      "start-1",
		ExecutionID: "exec-1",
		BranchID:    "branch-main",
		Logger:      slog.New(slog.DiscardHandler),
	}
}

func TestStartPlugin_Metadata(t *testing.T) {
	plugin := NewPlugin()

	if plugin.ID() != "start" {
		t.Errorf("Expected ID 'start', got: %s", plugin.ID())
	}

	if plugin.NodeType() != "start" {
		t.Errorf("Expected node type 'start', got: %s", plugin.NodeType())
	}

	if plugin.Version() == "" {
		t.Error("Expected non-empty version")
	}
}

func TestStartPlugin_Process_MapInput(t *testing.T) {
	plugin := NewPlugin()

	input := map[string]any{"input": "hello", "extra": 1}

	outputs, err := plugin.Process(context.Background(), input, map[string]any{}, testContext())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(outputs) != 1 {
		t.Fatalf("Expected 1 output, got: %d", len(outputs))
	}

	result, ok := outputs[0].(map[string]any)
	if !ok {
		t.Fatal("Expected output to be a map")
	}

	if result["input"] != "hello" {
		t.Errorf("Expected input 'hello' to pass through, got: %v", result["input"])
	}

	if result["extra"] != 1 {
		t.Errorf("Expected extra key to pass through, got: %v", result["extra"])
	}
}

func TestStartPlugin_Process_ScalarInput(t *testing.T) {
	plugin := NewPlugin()

	outputs, err := plugin.Process(context.Background(), "raw value", map[string]any{}, testContext())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	result, ok := outputs[0].(map[string]any)
	if !ok {
		t.Fatal("Expected output to be a map")
	}

	if result["input"] != "raw value" {
		t.Errorf("Expected scalar to be wrapped under 'input', got: %v", result["input"])
	}
}

func TestStartPlugin_Process_NilInput(t *testing.T) {
	plugin := NewPlugin()

	outputs, err := plugin.Process(context.Background(), nil, map[string]any{}, testContext())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	result, ok := outputs[0].(map[string]any)
	if !ok {
		t.Fatal("Expected output to be a map")
	}

	if _, ok := result["input"]; !ok {
		t.Error("Expected 'input' key for nil input")
	}
}

func TestStartPlugin_Lifecycle(t *testing.T) {
	plugin := NewPlugin()
	ctx := context.Background()

	deps := protocol.Dependencies{Logger: slog.New(slog.DiscardHandler)}
	if err := plugin.Initialize(ctx, deps); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if err := plugin.Activate(ctx); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	if err := plugin.Deactivate(ctx); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
}
