package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/braidflow/braid/pkg/eventbus"
	"github.com/braidflow/braid/pkg/events"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/storage"
)

// GetExecution returns the current view of an execution: the live record
// while it is active, the persisted one afterwards.
func (m *Manager) GetExecution(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	if act, ok := m.lookupActive(executionID); ok {
		return act.snapshotRecord(), nil
	}

	return m.storage.GetExecution(ctx, executionID)
}

// GetExecutionProgress returns the live progress snapshot. Unlike
// GetExecution it never falls back to storage: progress exists only while
// the execution is active.
func (m *Manager) GetExecutionProgress(ctx context.Context, executionID string) (*models.ExecutionProgress, error) {
	act, ok := m.lookupActive(executionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotActive, executionID)
	}

	progress := act.snapshotProgress()

	return &progress, nil
}

// GetExecutionEvents subscribes to the execution's lifecycle event log,
// replaying history first. The channel closes once the execution finalizes
// and the log is drained; the cancel func releases the subscription early.
// Active executions only.
func (m *Manager) GetExecutionEvents(ctx context.Context, executionID string) (<-chan eventbus.Event, func(), error) {
	act, ok := m.lookupActive(executionID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrExecutionNotActive, executionID)
	}

	eventsCh, cancel := act.events.Subscribe(ctx)

	return eventsCh, cancel, nil
}

// GetBranchProgress returns the live completion view of one branch. Active
// executions only.
func (m *Manager) GetBranchProgress(ctx context.Context, executionID, branchID string) (*models.BranchProgress, error) {
	act, ok := m.lookupActive(executionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotActive, executionID)
	}

	act.mu.Lock()
	defer act.mu.Unlock()

	branch := act.record.BranchByID(branchID)
	if branch == nil {
		return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, branchID)
	}

	completed := len(branch.CompletedNodeIDs)

	pending := act.totalNodes - completed
	if pending < 0 {
		pending = 0
	}

	percent := 0.0
	if completed+pending > 0 {
		percent = float64(completed) / float64(completed+pending) * 100
	}

	return &models.BranchProgress{
		BranchID:       branch.ID,
		ExecutionID:    executionID,
		Name:           branch.Name,
		Status:         branch.Status,
		Progress:       percent,
		CompletedNodes: completed,
		PendingNodes:   pending,
		RelevanceScore: branch.RelevanceScore,
		UpdatedAt:      time.Now().UTC(),
	}, nil
}

// GetBranchEvents subscribes to the branch-scoped slice of the execution's
// event log. Active executions only.
func (m *Manager) GetBranchEvents(ctx context.Context, executionID, branchID string) (<-chan eventbus.Event, func(), error) {
	act, ok := m.lookupActive(executionID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrExecutionNotActive, executionID)
	}

	act.mu.Lock()
	known := act.record.BranchByID(branchID) != nil
	act.mu.Unlock()

	if !known {
		return nil, nil, fmt.Errorf("%w: %s", ErrBranchNotFound, branchID)
	}

	source, cancel := act.events.Subscribe(ctx)
	filtered := make(chan eventbus.Event)

	go func() {
		defer close(filtered)

		for event := range source {
			if eventBranchID(event) != branchID {
				continue
			}

			select {
			case filtered <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return filtered, cancel, nil
}

// ListBranches returns the branches of an execution, live while active and
// from storage afterwards.
func (m *Manager) ListBranches(ctx context.Context, executionID string) ([]*models.ExecutionBranch, error) {
	if act, ok := m.lookupActive(executionID); ok {
		return act.snapshotRecord().Branches, nil
	}

	return m.storage.ListBranches(ctx, executionID)
}

// ListExecutions lists executions from storage with the active in-memory
// records merged in: records present in the page are replaced by their live
// copies, and active executions storage does not know yet are folded into
// the page by sort order.
func (m *Manager) ListExecutions(ctx context.Context, opts storage.ListExecutionsOptions) (*storage.ExecutionListResult, error) {
	opts, err := storage.NormalizeListOptions(opts)
	if err != nil {
		return nil, err
	}

	result, err := m.storage.ListExecutions(ctx, opts)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(result.Executions))

	for i, record := range result.Executions {
		seen[record.ID] = true

		if act, ok := m.lookupActive(record.ID); ok {
			result.Executions[i] = act.snapshotRecord()
		}
	}

	m.mu.RLock()

	actives := make([]*activeExecution, 0, len(m.active))
	for _, act := range m.active {
		actives = append(actives, act)
	}

	m.mu.RUnlock()

	merged := false

	for _, act := range actives {
		record := act.snapshotRecord()

		if seen[record.ID] || !storage.MatchesFilter(record, opts) {
			continue
		}

		// Only fold in records storage has never seen; anything persisted
		// already counts towards another page.
		if _, err := m.storage.GetExecution(ctx, record.ID); err == nil || !storage.IsExecutionNotFound(err) {
			continue
		}

		result.Executions = append(result.Executions, record)
		result.TotalCount++
		merged = true
	}

	if merged {
		storage.SortRecords(result.Executions, opts.SortBy, opts.SortOrder)

		if len(result.Executions) > opts.Limit {
			result.Executions = result.Executions[:opts.Limit]
			result.HasNextPage = true
		}
	}

	return result, nil
}

// eventBranchID extracts the branch scope of a lifecycle event; events
// without one return the empty string.
func eventBranchID(event eventbus.Event) string {
	switch e := event.(type) {
	case events.BranchCreated:
		return e.BranchID
	case events.BranchStarted:
		return e.BranchID
	case events.BranchCompleted:
		return e.BranchID
	case events.BranchFailed:
		return e.BranchID
	case events.BranchCanceled:
		return e.BranchID
	case events.NodeStarted:
		return e.BranchID
	case events.NodeCompleted:
		return e.BranchID
	case events.NodeFailed:
		return e.BranchID
	default:
		return ""
	}
}
