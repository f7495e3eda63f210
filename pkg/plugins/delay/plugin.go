// Package delay provides a node plugin that holds an item for a configured
// duration. It respects context cancellation, which makes it the standard
// way to exercise per-node timeouts in workflows and tests.
package delay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

// DelayPlugin waits before passing the payload through unchanged.
type DelayPlugin struct {
	logger *slog.Logger
}

// NewPlugin creates a new delay plugin instance.
func NewPlugin() *DelayPlugin {
	return &DelayPlugin{logger: slog.Default()}
}

func (p *DelayPlugin) ID() string      { return "delay" }
func (p *DelayPlugin) Name() string    { return "Delay" }
func (p *DelayPlugin) Version() string { return "1.0.0" }
func (p *DelayPlugin) Description() string {
	return "Holds the payload for a configured duration before passing it through"
}

func (p *DelayPlugin) Initialize(_ context.Context, deps protocol.Dependencies) error {
	if deps.Logger != nil {
		p.logger = deps.Logger
	}

	return nil
}

func (p *DelayPlugin) Activate(_ context.Context) error   { return nil }
func (p *DelayPlugin) Deactivate(_ context.Context) error { return nil }

func (p *DelayPlugin) NodeType() string { return "delay" }

func (p *DelayPlugin) InputSchema() *models.JSONSchema {
	return &models.JSONSchema{Type: "object"}
}

func (p *DelayPlugin) OutputSchema() *models.JSONSchema {
	return &models.JSONSchema{Type: "object"}
}

func (p *DelayPlugin) ConfigSchema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"duration_ms": {
				Type:        "integer",
				Description: "Milliseconds to hold the payload",
			},
		},
		Required: []string{"duration_ms"},
	}
}

// Process waits the configured duration or until the context ends, whichever
// comes first. A canceled wait returns the context error so the stage
// surfaces it as a node failure.
func (p *DelayPlugin) Process(ctx context.Context, input any, config map[string]any, ectx *protocol.ExecutionContext) ([]any, error) {
	duration, ok := durationFrom(config)
	if !ok {
		return nil, fmt.Errorf("delay node '%s' requires duration_ms", ectx.NodeID)
	}

	ectx.Logger.Debug("Delaying item", "duration", duration)

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return []any{input}, nil
}

func durationFrom(config map[string]any) (time.Duration, bool) {
	switch v := config["duration_ms"].(type) {
	case int:
		return time.Duration(v) * time.Millisecond, v >= 0
	case int64:
		return time.Duration(v) * time.Millisecond, v >= 0
	case float64:
		return time.Duration(v) * time.Millisecond, v >= 0
	default:
		return 0, false
	}
}
