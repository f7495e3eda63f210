package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"

	"github.com/braidflow/braid/pkg/protocol"
)

// LoadNodePlugins opens every shared-object file under pluginsPath/nodes,
// looks up its exported Plugin symbol, and registers it. External plugins go
// through the same validation and lifecycle as built-ins.
func (r *Registry) LoadNodePlugins(ctx context.Context, pluginsPath string, deps protocol.Dependencies) error {
	loaded, err := loadPlugins[protocol.NodePlugin](r.logger, pluginsPath+"/nodes", "Plugin")
	if err != nil {
		return err
	}

	for _, nodePlugin := range loaded {
		if err := r.registerAndActivate(ctx, nodePlugin, deps); err != nil {
			return err
		}
	}

	return nil
}

func loadPlugins[T any](logger *slog.Logger, rootPath, symbolName string) ([]T, error) {
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", rootPath), slog.String("symbol", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("open plugin %s: %w", p, err)
		}

		symbol, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("lookup symbol %s in %s: %w", symbolName, p, err)
		}

		cast, ok := symbol.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s symbol %s has unexpected type", p, symbolName)
		}

		pluginList = append(pluginList, cast)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
