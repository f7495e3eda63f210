package testutil

import (
	"context"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

// FakeNodePlugin is a configurable node plugin for tests. The zero value is
// not usable; build instances with NewFakeNodePlugin.
type FakeNodePlugin struct {
	PluginID    string
	Type        string
	ProcessFunc func(ctx context.Context, input any, config map[string]any, ectx *protocol.ExecutionContext) ([]any, error)
}

// NewFakeNodePlugin returns a passthrough plugin for the given node type.
func NewFakeNodePlugin(nodeType string, overrides ...func(*FakeNodePlugin)) *FakeNodePlugin {
	plugin := &FakeNodePlugin{
		PluginID: nodeType + "-plugin",
		Type:     nodeType,
		ProcessFunc: func(_ context.Context, input any, _ map[string]any, _ *protocol.ExecutionContext) ([]any, error) {
			return []any{input}, nil
		},
	}

	for _, override := range overrides {
		override(plugin)
	}

	return plugin
}

// WithProcessFunc replaces the plugin's Process behavior.
func WithProcessFunc(fn func(ctx context.Context, input any, config map[string]any, ectx *protocol.ExecutionContext) ([]any, error)) func(*FakeNodePlugin) {
	return func(p *FakeNodePlugin) {
		p.ProcessFunc = fn
	}
}

func (p *FakeNodePlugin) ID() string          { return p.PluginID }
func (p *FakeNodePlugin) Name() string        { return p.PluginID }
func (p *FakeNodePlugin) Version() string     { return "1.0.0" }
func (p *FakeNodePlugin) Description() string { return "test plugin" }

func (p *FakeNodePlugin) Initialize(_ context.Context, _ protocol.Dependencies) error { return nil }
func (p *FakeNodePlugin) Activate(_ context.Context) error                            { return nil }
func (p *FakeNodePlugin) Deactivate(_ context.Context) error                          { return nil }

func (p *FakeNodePlugin) NodeType() string { return p.Type }

func (p *FakeNodePlugin) InputSchema() *models.JSONSchema {
	return &models.JSONSchema{Type: "object"}
}

func (p *FakeNodePlugin) OutputSchema() *models.JSONSchema {
	return &models.JSONSchema{Type: "object"}
}

func (p *FakeNodePlugin) ConfigSchema() *models.JSONSchema { return nil }

func (p *FakeNodePlugin) Process(ctx context.Context, input any, config map[string]any, ectx *protocol.ExecutionContext) ([]any, error) {
	return p.ProcessFunc(ctx, input, config, ectx)
}
