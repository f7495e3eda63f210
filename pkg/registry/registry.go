// Package registry stores plugin implementations and indexes node-capable
// plugins by the workflow node type they back.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

type Registry struct {
	logger      *slog.Logger
	plugins     map[string]protocol.Plugin
	nodePlugins map[string]protocol.NodePlugin
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:      log,
		plugins:     make(map[string]protocol.Plugin),
		nodePlugins: make(map[string]protocol.NodePlugin),
	}
}

// RegisterPlugin validates plugin metadata and stores the plugin. Node-capable
// plugins (detected by asserting the NodePlugin interface) are additionally
// indexed by node type. The returned result lists every rejection reason
// instead of stopping at the first.
func (r *Registry) RegisterPlugin(plugin protocol.Plugin) *models.ValidationResult {
	result := models.NewValidationResult()

	if plugin == nil {
		result.AddError("plugin is nil")

		return result
	}

	if plugin.ID() == "" {
		result.AddError("plugin id is required")
	}

	if plugin.Name() == "" {
		result.AddError("plugin name is required")
	}

	if plugin.Version() == "" {
		result.AddError("plugin version is required")
	}

	if plugin.ID() != "" {
		if _, exists := r.plugins[plugin.ID()]; exists {
			result.AddError(fmt.Sprintf("plugin id '%s' already registered", plugin.ID()))
		}
	}

	nodePlugin, isNode := plugin.(protocol.NodePlugin)
	if isNode {
		r.validateNodePlugin(nodePlugin, result)
	}

	if !result.Valid {
		return result
	}

	r.plugins[plugin.ID()] = plugin

	if isNode {
		r.nodePlugins[nodePlugin.NodeType()] = nodePlugin
	}

	r.logger.Debug("Registered plugin",
		"plugin_id", plugin.ID(),
		"node_capable", isNode)

	return result
}

func (r *Registry) validateNodePlugin(plugin protocol.NodePlugin, result *models.ValidationResult) {
	nodeType := plugin.NodeType()
	if nodeType == "" {
		result.AddError("node plugin must declare a node type")

		return
	}

	if existing, exists := r.nodePlugins[nodeType]; exists && existing.ID() != plugin.ID() {
		result.AddError(fmt.Sprintf("node type '%s' already bound to plugin '%s'", nodeType, existing.ID()))
	}

	if plugin.InputSchema() == nil {
		result.AddError(fmt.Sprintf("node type '%s' is missing an input schema", nodeType))
	}

	if plugin.OutputSchema() == nil {
		result.AddError(fmt.Sprintf("node type '%s' is missing an output schema", nodeType))
	}
}

// GetNodePlugin returns the plugin bound to a node type. This is the only
// read path the compiler uses; an unregistered type must fail the compile,
// not crash at run time.
func (r *Registry) GetNodePlugin(nodeType string) (protocol.NodePlugin, error) {
	plugin, ok := r.nodePlugins[nodeType]
	if !ok {
		return nil, fmt.Errorf("node type '%s' not registered", nodeType)
	}

	return plugin, nil
}

// GetPlugin returns a plugin by id.
func (r *Registry) GetPlugin(id string) (protocol.Plugin, bool) {
	plugin, ok := r.plugins[id]

	return plugin, ok
}

// ListPlugins returns metadata for every registered plugin.
func (r *Registry) ListPlugins() []*models.RegisteredPlugin {
	list := make([]*models.RegisteredPlugin, 0, len(r.plugins))

	for _, plugin := range r.plugins {
		registered := &models.RegisteredPlugin{
			ID:          plugin.ID(),
			Name:        plugin.Name(),
			Version:     plugin.Version(),
			Description: plugin.Description(),
		}

		if nodePlugin, ok := plugin.(protocol.NodePlugin); ok {
			registered.NodeType = nodePlugin.NodeType()
			registered.InputSchema = nodePlugin.InputSchema()
			registered.OutputSchema = nodePlugin.OutputSchema()
			registered.ConfigSchema = nodePlugin.ConfigSchema()
		}

		list = append(list, registered)
	}

	return list
}

// ListNodeTypes returns every node type with a bound plugin.
func (r *Registry) ListNodeTypes() []string {
	types := make([]string, 0, len(r.nodePlugins))
	for nodeType := range r.nodePlugins {
		types = append(types, nodeType)
	}

	return types
}
