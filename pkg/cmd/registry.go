// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"context"
	"log/slog"

	"github.com/braidflow/braid/pkg/protocol"
	"github.com/braidflow/braid/pkg/registry"
)

// NewRegistry builds a registry with every built-in node plugin registered
// and activated.
func NewRegistry(ctx context.Context, logger *slog.Logger) (*registry.Registry, error) {
	reg := registry.NewRegistry(logger)

	deps := protocol.Dependencies{Logger: logger}
	if err := reg.RegisterDefaultPlugins(ctx, deps); err != nil {
		return nil, err
	}

	return reg, nil
}
