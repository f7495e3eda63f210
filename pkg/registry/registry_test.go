package registry

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

type fakePlugin struct {
	id          string
	name        string
	version     string
	initialized bool
	activated   bool
}

func (p *fakePlugin) ID() string          { return p.id }
func (p *fakePlugin) Name() string        { return p.name }
func (p *fakePlugin) Version() string     { return p.version }
func (p *fakePlugin) Description() string { return "fake plugin" }

func (p *fakePlugin) Initialize(_ context.Context, _ protocol.Dependencies) error {
	p.initialized = true

	return nil
}

func (p *fakePlugin) Activate(_ context.Context) error {
	p.activated = true

	return nil
}

func (p *fakePlugin) Deactivate(_ context.Context) error { return nil }

type fakeNodePlugin struct {
	fakePlugin

	nodeType     string
	inputSchema  *models.JSONSchema
	outputSchema *models.JSONSchema
	configSchema *models.JSONSchema
}

func (p *fakeNodePlugin) NodeType() string                 { return p.nodeType }
func (p *fakeNodePlugin) InputSchema() *models.JSONSchema  { return p.inputSchema }
func (p *fakeNodePlugin) OutputSchema() *models.JSONSchema { return p.outputSchema }
func (p *fakeNodePlugin) ConfigSchema() *models.JSONSchema { return p.configSchema }

func (p *fakeNodePlugin) Process(_ context.Context, input any, _ map[string]any, _ *protocol.ExecutionContext) ([]any, error) {
	return []any{input}, nil
}

func anySchema() *models.JSONSchema {
	return &models.JSONSchema{Type: "object"}
}

func validNodePlugin(id, nodeType string) *fakeNodePlugin {
	return &fakeNodePlugin{
		fakePlugin:   fakePlugin{id: id, name: id, version: "1.0.0"},
		nodeType:     nodeType,
		inputSchema:  anySchema(),
		outputSchema: anySchema(),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRegisterPlugin_Valid(t *testing.T) {
	registry := NewRegistry(testLogger())

	result := registry.RegisterPlugin(validNodePlugin("search-plugin", "search"))
	if !result.Valid {
		t.Fatalf("expected valid registration, got errors: %v", result.Errors)
	}

	plugin, err := registry.GetNodePlugin("search")
	if err != nil {
		t.Fatalf("expected node plugin for type 'search', got error: %v", err)
	}

	if plugin.ID() != "search-plugin" {
		t.Errorf("expected plugin id 'search-plugin', got %q", plugin.ID())
	}
}

func TestRegisterPlugin_MissingMetadata(t *testing.T) {
	registry := NewRegistry(testLogger())

	result := registry.RegisterPlugin(&fakePlugin{})
	if result.Valid {
		t.Fatal("expected registration to fail for empty metadata")
	}

	if len(result.Errors) != 3 {
		t.Errorf("expected 3 errors (id, name, version), got %v", result.Errors)
	}
}

func TestRegisterPlugin_DuplicateID(t *testing.T) {
	registry := NewRegistry(testLogger())

	if result := registry.RegisterPlugin(validNodePlugin("dup", "search")); !result.Valid {
		t.Fatalf("first registration failed: %v", result.Errors)
	}

	result := registry.RegisterPlugin(validNodePlugin("dup", "read"))
	if result.Valid {
		t.Fatal("expected duplicate id to be rejected")
	}

	if !strings.Contains(result.Errors[0], "already registered") {
		t.Errorf("unexpected error message: %v", result.Errors)
	}
}

func TestRegisterPlugin_DuplicateNodeType(t *testing.T) {
	registry := NewRegistry(testLogger())

	if result := registry.RegisterPlugin(validNodePlugin("first", "search")); !result.Valid {
		t.Fatalf("first registration failed: %v", result.Errors)
	}

	result := registry.RegisterPlugin(validNodePlugin("second", "search"))
	if result.Valid {
		t.Fatal("expected duplicate node type to be rejected")
	}
}

func TestRegisterPlugin_MissingSchemas(t *testing.T) {
	registry := NewRegistry(testLogger())

	plugin := validNodePlugin("bare", "bare")
	plugin.inputSchema = nil
	plugin.outputSchema = nil

	result := registry.RegisterPlugin(plugin)
	if result.Valid {
		t.Fatal("expected node plugin without schemas to be rejected")
	}

	if len(result.Errors) != 2 {
		t.Errorf("expected input and output schema errors, got %v", result.Errors)
	}
}

func TestGetNodePlugin_NotRegistered(t *testing.T) {
	registry := NewRegistry(testLogger())

	_, err := registry.GetNodePlugin("unregistered-type")
	if err == nil {
		t.Fatal("expected error for unregistered node type")
	}

	if !strings.Contains(err.Error(), "'unregistered-type' not registered") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateConfig_AgainstSchema(t *testing.T) {
	registry := NewRegistry(testLogger())

	plugin := validNodePlugin("process-plugin", "process")
	plugin.configSchema = &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"transform": {Type: "string", Enum: []any{"none", "uppercase", "reverse"}},
		},
	}

	if result := registry.RegisterPlugin(plugin); !result.Valid {
		t.Fatalf("registration failed: %v", result.Errors)
	}

	if err := registry.ValidateConfig("process", map[string]any{"transform": "uppercase"}); err != nil {
		t.Errorf("expected config to validate, got %v", err)
	}

	err := registry.ValidateConfig("process", map[string]any{"transform": 42})
	if err == nil {
		t.Fatal("expected config validation failure")
	}
}

func TestValidateConfig_NoSchemaAcceptsAnything(t *testing.T) {
	registry := NewRegistry(testLogger())

	if result := registry.RegisterPlugin(validNodePlugin("free", "free")); !result.Valid {
		t.Fatalf("registration failed: %v", result.Errors)
	}

	if err := registry.ValidateConfig("free", map[string]any{"anything": true}); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestListNodeTypes(t *testing.T) {
	registry := NewRegistry(testLogger())

	registry.RegisterPlugin(validNodePlugin("a", "search"))
	registry.RegisterPlugin(validNodePlugin("b", "read"))

	types := registry.ListNodeTypes()
	if len(types) != 2 {
		t.Fatalf("expected 2 node types, got %v", types)
	}
}

func TestRegisterAndActivate_RunsLifecycle(t *testing.T) {
	registry := NewRegistry(testLogger())
	plugin := validNodePlugin("lifecycle", "lifecycle")

	err := registry.registerAndActivate(context.Background(), plugin, protocol.Dependencies{Logger: testLogger()})
	if err != nil {
		t.Fatalf("registerAndActivate failed: %v", err)
	}

	if !plugin.initialized || !plugin.activated {
		t.Error("expected Initialize and Activate to run at registration time")
	}
}
