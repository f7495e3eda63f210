package registry

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateConfig checks a node's config bag against the config schema the
// plugin for that node type declares. Plugins without a config schema accept
// any config.
func (r *Registry) ValidateConfig(nodeType string, config map[string]any) error {
	plugin, err := r.GetNodePlugin(nodeType)
	if err != nil {
		return err
	}

	schema := plugin.ConfigSchema()
	if schema == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("config validation for node type '%s': %w", nodeType, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("invalid config for node type '%s': %s", nodeType, strings.Join(messages, "; "))
	}

	return nil
}
