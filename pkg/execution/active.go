package execution

import (
	"slices"
	"sync"
	"time"

	"github.com/braidflow/braid/pkg/eventbus"
	"github.com/braidflow/braid/pkg/eventlog"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/stream"
)

// activeExecution is the in-memory entry for one running execution. The
// record inside is the canonical copy while the execution is active; storage
// holds best-effort snapshots of it. All mutable fields are guarded by mu.
type activeExecution struct {
	mu sync.Mutex

	record *models.ExecutionRecord
	stream *stream.Stream
	events *eventlog.Log[eventbus.Event]
	handle *Handle

	totalNodes     int
	terminalNodes  map[string]bool
	completedNodes map[string]bool

	activeBranches    int
	completedBranches int
	failedBranches    int

	progress models.ExecutionProgress

	// Last payload seen from a terminal node; becomes the record's result.
	result    any
	resultSet bool
	// Fallback when the run produced no terminal output.
	lastData any
	lastSet  bool

	itemsDone         chan struct{}
	terminalEventSent bool
	finalized         bool
}

func newActiveExecution(record *models.ExecutionRecord, workflow *models.Workflow, handle *Handle) *activeExecution {
	terminal := make(map[string]bool, len(workflow.Nodes))
	outgoing := make(map[string]bool, len(workflow.Connections))

	for _, conn := range workflow.Connections {
		outgoing[conn.From] = true
	}

	for _, node := range workflow.Nodes {
		if !outgoing[node.ID] {
			terminal[node.ID] = true
		}
	}

	act := &activeExecution{
		record:         record,
		events:         eventlog.New[eventbus.Event](),
		handle:         handle,
		totalNodes:     len(workflow.Nodes),
		terminalNodes:  terminal,
		completedNodes: make(map[string]bool, len(workflow.Nodes)),
		itemsDone:      make(chan struct{}),
	}
	act.refreshProgress(time.Now().UTC())

	return act
}

// refreshProgress recomputes the aggregate progress snapshot from the node
// and branch counters. Caller holds mu.
func (a *activeExecution) refreshProgress(now time.Time) models.ExecutionProgress {
	completed := len(a.completedNodes)

	percent := 0.0
	if a.totalNodes > 0 {
		percent = float64(completed) / float64(a.totalNodes) * 100
	}

	a.progress = models.ExecutionProgress{
		ExecutionID:       a.record.ID,
		Status:            a.record.Status,
		Progress:          percent,
		CompletedNodes:    completed,
		PendingNodes:      a.totalNodes - completed,
		TotalNodes:        a.totalNodes,
		ActiveBranches:    a.activeBranches,
		CompletedBranches: a.completedBranches,
		FailedBranches:    a.failedBranches,
		UpdatedAt:         now,
	}

	return a.progress
}

// transitionBranch moves a branch to the given status. Terminal states are
// sticky: once a branch completed, failed or was canceled, later transitions
// report false and change nothing. Caller holds mu.
func (a *activeExecution) transitionBranch(branch *models.ExecutionBranch, status models.ExecutionStatus, now time.Time) bool {
	if branch.Status.IsTerminal() {
		return false
	}

	branch.Status = status

	switch status {
	case models.ExecutionStatusRunning:
		if branch.StartedAt == nil {
			branch.StartedAt = &now
		}
	case models.ExecutionStatusCompleted:
		branch.FinishedAt = &now
		a.completedBranches++
		a.releaseActiveBranch()
	case models.ExecutionStatusFailed:
		branch.FinishedAt = &now
		a.failedBranches++
		a.releaseActiveBranch()
	case models.ExecutionStatusCanceled:
		branch.FinishedAt = &now
		a.releaseActiveBranch()
	}

	a.record.CompletedBranchCount = a.completedBranches

	return true
}

// releaseActiveBranch decrements the active counter, clamping at zero so a
// stray decrement can never drive it negative.
func (a *activeExecution) releaseActiveBranch() {
	if a.activeBranches > 0 {
		a.activeBranches--
	}
}

// trackBranchNode records that a branch has reached a node. Caller holds mu.
func (a *activeExecution) trackBranchNode(branchID, nodeID string) {
	branch := a.record.BranchByID(branchID)
	if branch == nil {
		return
	}

	if !slices.Contains(branch.NodeIDs, nodeID) {
		branch.NodeIDs = append(branch.NodeIDs, nodeID)
	}
}

func (a *activeExecution) snapshotRecord() *models.ExecutionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.record.Clone()
}

func (a *activeExecution) snapshotProgress() models.ExecutionProgress {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.progress
}
