package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/braidflow/braid/pkg/events"
	"github.com/braidflow/braid/pkg/models"
	"github.com/google/uuid"
)

const canceledByRequest = "canceled by request"

// CreateBranchRequest carries the parameters for an explicitly created
// branch.
type CreateBranchRequest struct {
	// BranchID overrides the generated id.
	BranchID       string
	Name           string
	ParentBranchID string
	Priority       int
	Tags           []string
}

// branchSpec is the internal creation request shared by the explicit API,
// plugin signals and the main branch.
type branchSpec struct {
	id             string
	name           string
	parentBranchID string
	priority       int
	tags           []string
}

// CreateBranch adds a branch to an active execution. Fails with
// ErrExecutionNotActive when the execution is not in the active table.
func (m *Manager) CreateBranch(ctx context.Context, executionID string, req CreateBranchRequest) (*models.ExecutionBranch, error) {
	act, ok := m.lookupActive(executionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotActive, executionID)
	}

	return m.addBranch(ctx, act, branchSpec{
		id:             req.BranchID,
		name:           req.Name,
		parentBranchID: req.ParentBranchID,
		priority:       req.Priority,
		tags:           req.Tags,
	})
}

func (m *Manager) addBranch(ctx context.Context, act *activeExecution, spec branchSpec) (*models.ExecutionBranch, error) {
	id := spec.id
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()

	act.mu.Lock()

	if act.finalized {
		act.mu.Unlock()

		return nil, fmt.Errorf("%w: %s", ErrExecutionNotActive, act.record.ID)
	}

	if act.record.BranchByID(id) != nil {
		act.mu.Unlock()

		return nil, fmt.Errorf("%w: %s", ErrBranchExists, id)
	}

	name := spec.name
	if name == "" {
		name = fmt.Sprintf("Branch %d", len(act.record.Branches)+1)
	}

	branch := models.NewExecutionBranch(id, act.record.ID, name)
	branch.ParentBranchID = spec.parentBranchID
	branch.Priority = spec.priority
	branch.Tags = spec.tags

	act.record.Branches = append(act.record.Branches, branch)
	act.activeBranches++

	progress := act.refreshProgress(now)
	snapshot := branch.Clone()
	act.mu.Unlock()

	m.logger.DebugContext(ctx, "Created branch",
		"execution_id", snapshot.ExecutionID,
		"branch_id", snapshot.ID,
		"branch_name", snapshot.Name)

	m.persistBranch(ctx, snapshot, true)
	m.emit(ctx, act, events.BranchCreated{
		BaseEvent:      events.NewBaseEvent(events.BranchCreatedEvent, snapshot.ExecutionID),
		BranchID:       snapshot.ID,
		Name:           snapshot.Name,
		ParentBranchID: snapshot.ParentBranchID,
		Priority:       snapshot.Priority,
	})
	m.emit(ctx, act, events.ExecutionProgressed{
		BaseEvent: events.NewBaseEvent(events.ExecutionProgressedEvent, snapshot.ExecutionID),
		Progress:  progress,
	})

	return snapshot, nil
}

// CancelExecution cancels an active execution: the record flips to canceled,
// every non-terminal branch is canceled with it and the underlying stream
// stops scheduling work. Reports false when the execution is not active or
// already terminal. The eviction itself happens on the normal finalization
// path once the stream has wound down.
func (m *Manager) CancelExecution(ctx context.Context, executionID string) bool {
	act, ok := m.lookupActive(executionID)
	if !ok {
		return false
	}

	now := time.Now().UTC()

	act.mu.Lock()

	if act.record.Status.IsTerminal() {
		act.mu.Unlock()

		return false
	}

	act.record.Status = models.ExecutionStatusCanceled
	act.record.FinishedAt = &now

	var canceled []*models.ExecutionBranch

	for _, branch := range act.record.Branches {
		if act.transitionBranch(branch, models.ExecutionStatusCanceled, now) {
			canceled = append(canceled, branch.Clone())
		}
	}

	progress := act.refreshProgress(now)
	act.terminalEventSent = true
	s := act.stream
	act.mu.Unlock()

	m.logger.InfoContext(ctx, "Canceling execution",
		"execution_id", executionID,
		"canceled_branches", len(canceled))

	for _, snapshot := range canceled {
		m.persistBranch(ctx, snapshot, false)
		m.emit(ctx, act, events.BranchCanceled{
			BaseEvent: events.NewBaseEvent(events.BranchCanceledEvent, executionID),
			BranchID:  snapshot.ID,
			Reason:    "execution canceled",
		})
	}

	m.emit(ctx, act, events.ExecutionProgressed{
		BaseEvent: events.NewBaseEvent(events.ExecutionProgressedEvent, executionID),
		Progress:  progress,
	})
	m.emit(ctx, act, events.ExecutionCanceled{
		BaseEvent: events.NewBaseEvent(events.ExecutionCanceledEvent, executionID),
		Reason:    canceledByRequest,
	})

	m.persistRecord(ctx, act)

	if s != nil {
		s.Cancel()
	}

	return true
}

// CancelBranch cancels one running branch without touching the rest of the
// execution. Reports false unless the branch is currently running.
func (m *Manager) CancelBranch(ctx context.Context, executionID, branchID string) bool {
	act, ok := m.lookupActive(executionID)
	if !ok {
		return false
	}

	now := time.Now().UTC()

	act.mu.Lock()
	branch := act.record.BranchByID(branchID)

	if branch == nil || branch.Status != models.ExecutionStatusRunning {
		act.mu.Unlock()

		return false
	}

	act.transitionBranch(branch, models.ExecutionStatusCanceled, now)
	progress := act.refreshProgress(now)
	snapshot := branch.Clone()
	act.mu.Unlock()

	m.logger.InfoContext(ctx, "Canceled branch",
		"execution_id", executionID,
		"branch_id", branchID)

	m.persistBranch(ctx, snapshot, false)
	m.emit(ctx, act, events.BranchCanceled{
		BaseEvent: events.NewBaseEvent(events.BranchCanceledEvent, executionID),
		BranchID:  branchID,
		Reason:    canceledByRequest,
	})
	m.emit(ctx, act, events.ExecutionProgressed{
		BaseEvent: events.NewBaseEvent(events.ExecutionProgressedEvent, executionID),
		Progress:  progress,
	})

	return true
}

// SetBranchRelevance assigns the relevance score of a branch on an active
// execution.
func (m *Manager) SetBranchRelevance(ctx context.Context, executionID, branchID string, score float64) error {
	act, ok := m.lookupActive(executionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotActive, executionID)
	}

	act.mu.Lock()
	branch := act.record.BranchByID(branchID)

	if branch == nil {
		act.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrBranchNotFound, branchID)
	}

	branch.RelevanceScore = score
	snapshot := branch.Clone()
	act.mu.Unlock()

	m.persistBranch(ctx, snapshot, false)

	return nil
}
