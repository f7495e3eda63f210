package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
)

// Env carries the per-run collaborators stages need. Everything known at
// compile time is bound into the stages; execution identity travels on the
// items themselves.
type Env struct {
	Logger   *slog.Logger
	Services protocol.ServiceResolver
	Signals  func(protocol.Signal)
}

// ExecutableWorkflow is the immutable compiled form: the original workflow,
// a topologically valid node order and one bound stage per node.
type ExecutableWorkflow struct {
	Workflow        *models.Workflow
	NodeOrder       []string
	DefaultBranchID string

	stages  map[string]*Stage
	ordered []*Stage
}

// Stage returns the bound stage for a node id.
func (ew *ExecutableWorkflow) Stage(nodeID string) (*Stage, bool) {
	stage, ok := ew.stages[nodeID]

	return stage, ok
}

// Stages returns every stage in execution order.
func (ew *ExecutableWorkflow) Stages() []*Stage {
	return ew.ordered
}

// Pipeline feeds one item through every stage in node order, fanning each
// stage's outputs into the next. This is the linear chain form; the stream
// engine applies stages connection-aware instead.
func (ew *ExecutableWorkflow) Pipeline(ctx context.Context, item *models.StreamItem, env Env) ([]*models.StreamItem, error) {
	current := []*models.StreamItem{item}

	for _, stage := range ew.ordered {
		next := make([]*models.StreamItem, 0, len(current))

		for _, in := range current {
			outputs, err := stage.Process(ctx, in, env)
			if err != nil {
				return nil, err
			}

			next = append(next, outputs...)
		}

		current = next
	}

	return current, nil
}

// Stage is one node bound to its plugin. Process applies the plugin to one
// item and wraps the outputs as downstream items.
type Stage struct {
	NodeID   string
	NodeType string

	node            *models.Node
	plugin          protocol.NodePlugin
	defaultBranchID string
}

func (s *Stage) Process(ctx context.Context, item *models.StreamItem, env Env) ([]*models.StreamItem, error) {
	branchID := item.Meta.BranchID
	if branchID == "" {
		branchID = s.defaultBranchID
	}

	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ectx := &protocol.ExecutionContext{
		NodeID:      s.NodeID,
		ExecutionID: item.ExecutionID,
		BranchID:    branchID,
		Logger: logger.With(
			"node_id", s.NodeID,
			"execution_id", item.ExecutionID,
			"branch_id", branchID),
		Services: env.Services,
		Emit:     env.Signals,
	}

	outputs, err := s.plugin.Process(ctx, item.Data, s.node.Config, ectx)
	if err != nil {
		return nil, fmt.Errorf("node '%s' processing failed: %w", s.NodeID, err)
	}

	items := make([]*models.StreamItem, 0, len(outputs))

	for _, output := range outputs {
		items = append(items, &models.StreamItem{
			ExecutionID: item.ExecutionID,
			NodeID:      s.NodeID,
			Data:        output,
			Timestamp:   time.Now().UTC(),
			Meta: models.StreamMeta{
				Step:        item.Meta.Step + 1,
				TokenUsage:  tokenUsageFrom(output),
				BranchID:    branchIDFrom(output, branchID),
				ProcessedBy: appendProcessedBy(item.Meta.ProcessedBy, s.NodeID),
				Final:       isFinalOutput(output),
			},
		})
	}

	return items, nil
}

func appendProcessedBy(history []string, nodeID string) []string {
	out := make([]string, 0, len(history)+1)
	out = append(out, history...)

	return append(out, nodeID)
}

// tokenUsageFrom reads the token count a plugin attached to an output map.
// JSON decoding turns numbers into float64, so both forms are accepted.
func tokenUsageFrom(output any) int {
	m, ok := output.(map[string]any)
	if !ok {
		return 0
	}

	raw, ok := m["token_usage"]
	if !ok {
		return 0
	}

	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// branchIDFrom lets a plugin redirect an output onto another branch by
// setting branch_id on the output map.
func branchIDFrom(output any, fallback string) string {
	m, ok := output.(map[string]any)
	if !ok {
		return fallback
	}

	if id, ok := m["branch_id"].(string); ok && id != "" {
		return id
	}

	return fallback
}

func isFinalOutput(output any) bool {
	m, ok := output.(map[string]any)
	if !ok {
		return false
	}

	final, ok := m["final"].(bool)

	return ok && final
}
