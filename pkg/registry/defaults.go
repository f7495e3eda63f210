// Package registry provides built-in plugin registration for the registry system.
package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/braidflow/braid/pkg/plugins/branch"
	"github.com/braidflow/braid/pkg/plugins/budget"
	"github.com/braidflow/braid/pkg/plugins/delay"
	"github.com/braidflow/braid/pkg/plugins/end"
	"github.com/braidflow/braid/pkg/plugins/process"
	"github.com/braidflow/braid/pkg/plugins/read"
	"github.com/braidflow/braid/pkg/plugins/reason"
	"github.com/braidflow/braid/pkg/plugins/search"
	"github.com/braidflow/braid/pkg/plugins/start"
	"github.com/braidflow/braid/pkg/plugins/terminate"
	"github.com/braidflow/braid/pkg/protocol"
)

// RegisterDefaultPlugins registers every built-in node plugin and runs its
// registration lifecycle (Initialize then Activate).
func (r *Registry) RegisterDefaultPlugins(ctx context.Context, deps protocol.Dependencies) error {
	plugins := []protocol.NodePlugin{
		start.NewPlugin(),
		process.NewPlugin(),
		end.NewPlugin(),
		search.NewPlugin(),
		read.NewPlugin(),
		reason.NewPlugin(),
		branch.NewPlugin(),
		budget.NewPlugin(),
		terminate.NewPlugin(),
		delay.NewPlugin(),
	}

	for _, plugin := range plugins {
		if err := r.registerAndActivate(ctx, plugin, deps); err != nil {
			return err
		}
	}

	return nil
}

func (r *Registry) registerAndActivate(ctx context.Context, plugin protocol.Plugin, deps protocol.Dependencies) error {
	result := r.RegisterPlugin(plugin)
	if !result.Valid {
		return fmt.Errorf("register plugin '%s': %s", plugin.ID(), strings.Join(result.Errors, "; "))
	}

	if err := plugin.Initialize(ctx, deps); err != nil {
		return fmt.Errorf("initialize plugin '%s': %w", plugin.ID(), err)
	}

	if err := plugin.Activate(ctx); err != nil {
		return fmt.Errorf("activate plugin '%s': %w", plugin.ID(), err)
	}

	return nil
}

// DeactivateAll tears down every registered plugin. Errors are collected so
// one failing plugin does not skip the rest.
func (r *Registry) DeactivateAll(ctx context.Context) error {
	var failures []string

	for id, plugin := range r.plugins {
		if err := plugin.Deactivate(ctx); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", id, err))
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("deactivate plugins: %s", strings.Join(failures, "; "))
	}

	return nil
}
