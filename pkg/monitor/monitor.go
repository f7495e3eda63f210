// Package monitor observes execution event streams and aggregates per-node
// and per-branch metrics for running executions. State lives in memory for
// the lifetime of a run; callers are expected to collect metrics at
// finalization and then stop monitoring to release it.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/braidflow/braid/pkg/events"
	"github.com/braidflow/braid/pkg/models"
)

// EventSource is the observable side of a running stream. *stream.Stream
// satisfies it.
type EventSource interface {
	SubscribeEvents(ctx context.Context) (<-chan events.StreamEvent, func())
}

// Monitor aggregates metrics for any number of concurrent executions, one
// consuming goroutine per monitored run.
type Monitor struct {
	logger *slog.Logger

	mu     sync.RWMutex
	states map[string]*executionState
}

func NewMonitor(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		logger: logger.With("module", "execution_monitor"),
		states: make(map[string]*executionState),
	}
}

// MonitorExecution subscribes to the source's events and starts aggregating
// metrics for the execution. At most one subscription per execution id is
// allowed; a second call for the same id fails.
func (m *Monitor) MonitorExecution(ctx context.Context, executionID string, workflow *models.Workflow, source EventSource) error {
	if workflow == nil {
		return fmt.Errorf("workflow is required to monitor execution %s", executionID)
	}

	m.mu.Lock()

	if _, exists := m.states[executionID]; exists {
		m.mu.Unlock()

		return fmt.Errorf("execution %s is already monitored", executionID)
	}

	state := &executionState{
		executionID:   executionID,
		totalNodes:    len(workflow.Nodes),
		nodeStarts:    make(map[string]time.Time),
		nodeDurations: make(map[string]time.Duration),
		nodeTokens:    make(map[string]int),
		branches:      make(map[string]*branchState),
	}

	eventsCh, release := source.SubscribeEvents(ctx)
	state.release = release
	m.states[executionID] = state

	m.mu.Unlock()

	m.logger.Debug("Monitoring execution", "execution_id", executionID, "workflow_id", workflow.ID)

	go func() {
		for event := range eventsCh {
			state.apply(event)
		}
	}()

	return nil
}

// CollectMetrics snapshots the metrics aggregated so far. The overall
// duration is measured from the earliest node start to now.
func (m *Monitor) CollectMetrics(ctx context.Context, executionID string) (*models.ExecutionMetrics, error) {
	m.mu.RLock()
	state, ok := m.states[executionID]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no metrics found for execution '%s'", executionID)
	}

	return state.snapshot(), nil
}

// BranchProgress reports the per-branch completion view derived from the
// monitored events. The second return is false when the execution is not
// monitored or the branch was never observed.
func (m *Monitor) BranchProgress(executionID, branchID string) (*models.BranchProgress, bool) {
	m.mu.RLock()
	state, ok := m.states[executionID]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}

	return state.branchProgress(branchID)
}

// StopMonitoring releases the event subscription and evicts the execution's
// metric state. Metrics are no longer collectable afterwards.
func (m *Monitor) StopMonitoring(executionID string) {
	m.mu.Lock()
	state, ok := m.states[executionID]
	delete(m.states, executionID)
	m.mu.Unlock()

	if !ok {
		return
	}

	if state.release != nil {
		state.release()
	}

	m.logger.Debug("Stopped monitoring execution", "execution_id", executionID)
}

type executionState struct {
	executionID string
	totalNodes  int
	release     func()

	mu             sync.Mutex
	startedAt      time.Time
	nodeStarts     map[string]time.Time
	nodeDurations  map[string]time.Duration
	nodeTokens     map[string]int
	completedNodes int
	failedNodes    int
	totalTokens    int
	branches       map[string]*branchState
}

type branchState struct {
	branchID       string
	name           string
	status         models.ExecutionStatus
	startedAt      time.Time
	finishedAt     time.Time
	tokenUsage     int
	completedNodes int
	failedNodes    int
	relevanceScore float64
}

func (s *executionState) apply(event events.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case events.StreamNodeStarted:
		if s.startedAt.IsZero() {
			s.startedAt = event.Timestamp
		}

		s.nodeStarts[event.NodeID] = event.Timestamp
	case events.StreamNodeCompleted:
		s.nodeDurations[event.NodeID] += nodeDuration(event, s.nodeStarts)
		s.nodeTokens[event.NodeID] += event.TokenUsage
		s.completedNodes++
		s.totalTokens += event.TokenUsage

		if branch := s.branch(event.BranchID, ""); branch != nil {
			branch.completedNodes++
			branch.tokenUsage += event.TokenUsage
		}
	case events.StreamNodeErrored:
		s.failedNodes++

		if branch := s.branch(event.BranchID, ""); branch != nil {
			branch.failedNodes++
		}
	case events.StreamBranchCreated:
		s.branch(event.BranchID, event.BranchName)
	case events.StreamBranchStarted:
		if branch := s.branch(event.BranchID, ""); branch != nil {
			branch.status = models.ExecutionStatusRunning

			if branch.startedAt.IsZero() {
				branch.startedAt = event.Timestamp
			}
		}
	case events.StreamBranchCompleted:
		if branch := s.branch(event.BranchID, ""); branch != nil {
			branch.status = models.ExecutionStatusCompleted
			branch.finishedAt = event.Timestamp
			branch.tokenUsage += event.TokenUsage
		}
	case events.StreamBranchFailed:
		if branch := s.branch(event.BranchID, ""); branch != nil {
			branch.status = models.ExecutionStatusFailed
			branch.finishedAt = event.Timestamp
		}
	case events.StreamBranchScored:
		if branch := s.branch(event.BranchID, ""); branch != nil {
			branch.relevanceScore = event.Score
		}
	}
}

// branch returns the tracked state for the id, creating it on first sight.
// Events without a branch id return nil.
func (s *executionState) branch(branchID, name string) *branchState {
	if branchID == "" {
		return nil
	}

	branch, ok := s.branches[branchID]
	if !ok {
		branch = &branchState{
			branchID: branchID,
			status:   models.ExecutionStatusPending,
		}
		s.branches[branchID] = branch
	}

	if name != "" {
		branch.name = name
	}

	return branch
}

func (s *executionState) snapshot() *models.ExecutionMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics := &models.ExecutionMetrics{
		ExecutionID:    s.executionID,
		StartedAt:      s.startedAt,
		CompletedNodes: s.completedNodes,
		FailedNodes:    s.failedNodes,
		TotalTokens:    s.totalTokens,
		NodeDurations:  make(map[string]time.Duration, len(s.nodeDurations)),
		NodeTokens:     make(map[string]int, len(s.nodeTokens)),
		BranchMetrics:  make(map[string]*models.BranchMetrics, len(s.branches)),
	}

	if !s.startedAt.IsZero() {
		metrics.Duration = time.Since(s.startedAt)
	}

	for nodeID, duration := range s.nodeDurations {
		metrics.NodeDurations[nodeID] = duration
	}

	for nodeID, tokens := range s.nodeTokens {
		metrics.NodeTokens[nodeID] = tokens
	}

	for branchID, branch := range s.branches {
		metrics.BranchMetrics[branchID] = &models.BranchMetrics{
			BranchID:       branchID,
			Name:           branch.name,
			Status:         branch.status,
			Duration:       branch.duration(),
			TokenUsage:     branch.tokenUsage,
			CompletedNodes: branch.completedNodes,
			FailedNodes:    branch.failedNodes,
			RelevanceScore: branch.relevanceScore,
		}
	}

	return metrics
}

func (s *executionState) branchProgress(branchID string) (*models.BranchProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	branch, ok := s.branches[branchID]
	if !ok {
		return nil, false
	}

	pending := s.totalNodes - branch.completedNodes
	if pending < 0 {
		pending = 0
	}

	progress := 0.0
	if branch.completedNodes+pending > 0 {
		progress = float64(branch.completedNodes) / float64(branch.completedNodes+pending) * 100
	}

	return &models.BranchProgress{
		BranchID:       branchID,
		ExecutionID:    s.executionID,
		Name:           branch.name,
		Status:         branch.status,
		Progress:       progress,
		CompletedNodes: branch.completedNodes,
		PendingNodes:   pending,
		RelevanceScore: branch.relevanceScore,
		UpdatedAt:      time.Now().UTC(),
	}, true
}

func (b *branchState) duration() time.Duration {
	switch {
	case b.startedAt.IsZero():
		return 0
	case b.finishedAt.IsZero():
		return time.Since(b.startedAt)
	default:
		return b.finishedAt.Sub(b.startedAt)
	}
}

// nodeDuration prefers the engine-reported duration carried on the event and
// falls back to the observed start-to-complete timestamp gap.
func nodeDuration(event events.StreamEvent, starts map[string]time.Time) time.Duration {
	if event.Data != nil {
		switch ms := event.Data["duration_ms"].(type) {
		case int64:
			return time.Duration(ms) * time.Millisecond
		case int:
			return time.Duration(ms) * time.Millisecond
		case float64:
			return time.Duration(ms) * time.Millisecond
		}
	}

	if start, ok := starts[event.NodeID]; ok {
		return event.Timestamp.Sub(start)
	}

	return 0
}
