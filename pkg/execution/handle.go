package execution

import (
	"context"

	"github.com/braidflow/braid/pkg/models"
)

// Handle tracks a submitted execution. It resolves with the finalized record
// once the run has fully wound down.
type Handle struct {
	executionID string
	manager     *Manager

	done  chan struct{}
	final *models.ExecutionRecord
}

func newHandle(executionID string, manager *Manager) *Handle {
	return &Handle{
		executionID: executionID,
		manager:     manager,
		done:        make(chan struct{}),
	}
}

// ExecutionID returns the id of the tracked execution.
func (h *Handle) ExecutionID() string {
	return h.executionID
}

// Done closes when the execution has finalized.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Record returns the current view of the execution record, falling back to
// storage once the execution has been evicted from the active table.
func (h *Handle) Record(ctx context.Context) (*models.ExecutionRecord, error) {
	return h.manager.GetExecution(ctx, h.executionID)
}

// Wait blocks until the execution finalizes or ctx ends. The returned record
// carries the terminal status and error; Wait itself only fails when ctx
// ends first.
func (h *Handle) Wait(ctx context.Context) (*models.ExecutionRecord, error) {
	select {
	case <-h.done:
		return h.final, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolve publishes the finalized record and releases waiters. Called once,
// at the end of finalization.
func (h *Handle) resolve(record *models.ExecutionRecord) {
	h.final = record
	close(h.done)
}
