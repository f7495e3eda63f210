package execution

import (
	"context"
	"time"

	"github.com/braidflow/braid/pkg/events"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/stream"
)

// collectItems drains the stream's item channel and remembers the payload
// that becomes the execution result: the last item produced by a node with
// no downstream targets, or any item flagged final.
func (m *Manager) collectItems(act *activeExecution, s *stream.Stream) {
	defer close(act.itemsDone)

	for item := range s.Items() {
		act.mu.Lock()

		if item.Meta.Final || act.terminalNodes[item.NodeID] {
			act.result = item.Data
			act.resultSet = true
		} else {
			act.lastData = item.Data
			act.lastSet = true
		}

		act.mu.Unlock()
	}
}

// dispatchEvents translates stream events into record and branch state
// transitions until the stream's event log closes, then finalizes the
// execution. Runs on its own goroutine, one per execution.
func (m *Manager) dispatchEvents(ctx context.Context, act *activeExecution, eventsCh <-chan events.StreamEvent, unsubscribe func()) {
	defer unsubscribe()

	var terminal *events.StreamEvent

	for event := range eventsCh {
		if event.IsTerminalWorkflowEvent() {
			ev := event
			terminal = &ev

			continue
		}

		m.handleStreamEvent(ctx, act, event)
	}

	// All items were delivered before the terminal event; wait for the
	// collector so the result is settled before finalization reads it.
	<-act.itemsDone

	m.finalize(ctx, act, terminal)
}

func (m *Manager) handleStreamEvent(ctx context.Context, act *activeExecution, event events.StreamEvent) {
	switch event.Type {
	case events.StreamWorkflowStarted:
		// Submission already emitted the started/running lifecycle pair.
	case events.StreamNodeStarted:
		m.handleNodeStarted(ctx, act, event)
	case events.StreamNodeCompleted:
		m.handleNodeCompleted(ctx, act, event)
	case events.StreamNodeErrored:
		m.handleNodeErrored(ctx, act, event)
	case events.StreamBranchCreated:
		m.handleBranchCreated(ctx, act, event)
	case events.StreamBranchStarted:
		m.handleBranchStarted(ctx, act, event)
	case events.StreamBranchCompleted:
		m.handleBranchCompleted(ctx, act, event)
	case events.StreamBranchFailed:
		m.handleBranchFailed(ctx, act, event)
	case events.StreamBranchScored:
		m.handleBranchScored(ctx, act, event)
	}
}

func (m *Manager) handleNodeStarted(ctx context.Context, act *activeExecution, event events.StreamEvent) {
	if event.BranchID != "" {
		act.mu.Lock()
		act.trackBranchNode(event.BranchID, event.NodeID)
		act.mu.Unlock()
	}

	m.emit(ctx, act, events.NodeStarted{
		BaseEvent: events.NewBaseEvent(events.NodeStartedEvent, event.ExecutionID),
		NodeID:    event.NodeID,
		NodeType:  event.NodeType,
		BranchID:  event.BranchID,
	})
}

func (m *Manager) handleNodeCompleted(ctx context.Context, act *activeExecution, event events.StreamEvent) {
	now := time.Now().UTC()

	act.mu.Lock()
	act.completedNodes[event.NodeID] = true
	act.record.TokenUsage += event.TokenUsage

	if event.BranchID != "" {
		act.trackBranchNode(event.BranchID, event.NodeID)

		if branch := act.record.BranchByID(event.BranchID); branch != nil {
			branch.MarkNodeCompleted(event.NodeID)
		}
	}

	progress := act.refreshProgress(now)
	act.mu.Unlock()

	m.emit(ctx, act, events.NodeCompleted{
		BaseEvent:  events.NewBaseEvent(events.NodeCompletedEvent, event.ExecutionID),
		NodeID:     event.NodeID,
		NodeType:   event.NodeType,
		BranchID:   event.BranchID,
		TokenUsage: event.TokenUsage,
		Duration:   eventDuration(event),
		Outputs:    eventOutputs(event),
	})
	m.emit(ctx, act, events.ExecutionProgressed{
		BaseEvent: events.NewBaseEvent(events.ExecutionProgressedEvent, event.ExecutionID),
		Progress:  progress,
	})
}

func (m *Manager) handleNodeErrored(ctx context.Context, act *activeExecution, event events.StreamEvent) {
	errMsg := ""
	if event.Err != nil {
		errMsg = event.Err.Error()
	}

	m.logger.WarnContext(ctx, "Node failed",
		"execution_id", event.ExecutionID,
		"node_id", event.NodeID,
		"timeout", event.Timeout,
		"error", errMsg)

	m.emit(ctx, act, events.NodeFailed{
		BaseEvent: events.NewBaseEvent(events.NodeFailedEvent, event.ExecutionID),
		NodeID:    event.NodeID,
		NodeType:  event.NodeType,
		BranchID:  event.BranchID,
		Error:     errMsg,
		Timeout:   event.Timeout,
		Duration:  eventDuration(event),
	})
}

// handleBranchCreated registers a branch announced by a plugin signal.
// Branches already known, such as the main branch, are left untouched.
func (m *Manager) handleBranchCreated(ctx context.Context, act *activeExecution, event events.StreamEvent) {
	act.mu.Lock()
	known := act.record.BranchByID(event.BranchID) != nil
	act.mu.Unlock()

	if known {
		return
	}

	spec := branchSpec{id: event.BranchID, name: event.BranchName}

	if event.Data != nil {
		if parent, ok := event.Data["parent_branch_id"].(string); ok {
			spec.parentBranchID = parent
		}

		if priority, ok := eventInt(event.Data["priority"]); ok {
			spec.priority = priority
		}

		if tags, ok := event.Data["tags"].([]string); ok {
			spec.tags = tags
		}
	}

	if _, err := m.addBranch(ctx, act, spec); err != nil {
		m.logger.WarnContext(ctx, "Failed to register branch",
			"execution_id", event.ExecutionID,
			"branch_id", event.BranchID,
			"error", err)
	}
}

func (m *Manager) handleBranchStarted(ctx context.Context, act *activeExecution, event events.StreamEvent) {
	now := time.Now().UTC()

	act.mu.Lock()
	branch := act.record.BranchByID(event.BranchID)

	var snapshot *models.ExecutionBranch
	if branch != nil && act.transitionBranch(branch, models.ExecutionStatusRunning, now) {
		snapshot = branch.Clone()
	}
	act.mu.Unlock()

	if snapshot == nil {
		m.logger.DebugContext(ctx, "Ignoring branch start",
			"execution_id", event.ExecutionID,
			"branch_id", event.BranchID)

		return
	}

	m.persistBranch(ctx, snapshot, false)
	m.emit(ctx, act, events.BranchStarted{
		BaseEvent: events.NewBaseEvent(events.BranchStartedEvent, event.ExecutionID),
		BranchID:  event.BranchID,
	})
}

func (m *Manager) handleBranchCompleted(ctx context.Context, act *activeExecution, event events.StreamEvent) {
	now := time.Now().UTC()

	act.mu.Lock()
	branch := act.record.BranchByID(event.BranchID)

	var (
		snapshot *models.ExecutionBranch
		progress models.ExecutionProgress
	)

	if branch != nil && act.transitionBranch(branch, models.ExecutionStatusCompleted, now) {
		if event.Data != nil {
			branch.Result = event.Data
		}

		snapshot = branch.Clone()
		progress = act.refreshProgress(now)
	}
	act.mu.Unlock()

	if snapshot == nil {
		// Late completion for an unknown or already terminal branch, e.g.
		// one canceled while its last node was still in flight.
		m.logger.DebugContext(ctx, "Ignoring branch completion",
			"execution_id", event.ExecutionID,
			"branch_id", event.BranchID)

		return
	}

	m.persistBranch(ctx, snapshot, false)
	m.emit(ctx, act, events.BranchCompleted{
		BaseEvent:  events.NewBaseEvent(events.BranchCompletedEvent, event.ExecutionID),
		BranchID:   event.BranchID,
		Result:     snapshot.Result,
		TokenUsage: event.TokenUsage,
	})
	m.emit(ctx, act, events.ExecutionProgressed{
		BaseEvent: events.NewBaseEvent(events.ExecutionProgressedEvent, event.ExecutionID),
		Progress:  progress,
	})
}

func (m *Manager) handleBranchFailed(ctx context.Context, act *activeExecution, event events.StreamEvent) {
	now := time.Now().UTC()

	act.mu.Lock()
	branch := act.record.BranchByID(event.BranchID)

	var (
		snapshot *models.ExecutionBranch
		progress models.ExecutionProgress
	)

	if branch != nil && act.transitionBranch(branch, models.ExecutionStatusFailed, now) {
		if event.Err != nil {
			branch.Error = event.Err.Error()
		}

		snapshot = branch.Clone()
		progress = act.refreshProgress(now)
	}
	act.mu.Unlock()

	if snapshot == nil {
		m.logger.DebugContext(ctx, "Ignoring branch failure",
			"execution_id", event.ExecutionID,
			"branch_id", event.BranchID)

		return
	}

	m.persistBranch(ctx, snapshot, false)
	m.emit(ctx, act, events.BranchFailed{
		BaseEvent: events.NewBaseEvent(events.BranchFailedEvent, event.ExecutionID),
		BranchID:  event.BranchID,
		Error:     snapshot.Error,
	})
	m.emit(ctx, act, events.ExecutionProgressed{
		BaseEvent: events.NewBaseEvent(events.ExecutionProgressedEvent, event.ExecutionID),
		Progress:  progress,
	})
}

func (m *Manager) handleBranchScored(ctx context.Context, act *activeExecution, event events.StreamEvent) {
	act.mu.Lock()
	branch := act.record.BranchByID(event.BranchID)

	var snapshot *models.ExecutionBranch
	if branch != nil {
		branch.RelevanceScore = event.Score
		snapshot = branch.Clone()
	}
	act.mu.Unlock()

	if snapshot == nil {
		return
	}

	m.persistBranch(ctx, snapshot, false)
}

// finalize settles the execution record, emits the terminal lifecycle
// events, persists the final snapshot and evicts the execution from the
// active table. The terminal event may be nil when the stream wound down
// without reporting one.
func (m *Manager) finalize(ctx context.Context, act *activeExecution, terminal *events.StreamEvent) {
	now := time.Now().UTC()

	act.mu.Lock()

	if act.finalized {
		act.mu.Unlock()

		return
	}

	act.finalized = true
	record := act.record

	if !record.Status.IsTerminal() {
		switch {
		case terminal != nil && terminal.Type == events.StreamWorkflowErrored:
			record.Status = models.ExecutionStatusFailed

			if terminal.Err != nil {
				record.Error = terminal.Err.Error()
			}
		case terminal == nil && act.stream != nil && act.stream.Err() != nil:
			record.Status = models.ExecutionStatusFailed
			record.Error = act.stream.Err().Error()
		default:
			record.Status = models.ExecutionStatusCompleted
		}
	}

	if record.FinishedAt == nil {
		record.FinishedAt = &now
	}

	if record.Result == nil {
		switch {
		case act.resultSet:
			record.Result = act.result
		case act.lastSet:
			record.Result = act.lastData
		}
	}

	// A token_usage field on the result payload overrides the sum
	// accumulated from node completions.
	if resultMap, ok := record.Result.(map[string]any); ok {
		if usage, ok := eventInt(resultMap["token_usage"]); ok {
			record.TokenUsage = usage
		}
	}

	// Branches the stream never resolved are completed by force so none
	// outlive the execution in a non-terminal state.
	var forced []*models.ExecutionBranch

	for _, branch := range record.Branches {
		if act.transitionBranch(branch, models.ExecutionStatusCompleted, now) {
			forced = append(forced, branch.Clone())
		}
	}

	progress := act.refreshProgress(now)
	progress.Progress = 100
	act.progress = progress

	var duration time.Duration
	if record.StartedAt != nil {
		duration = record.FinishedAt.Sub(*record.StartedAt)
	}

	emitTerminal := !act.terminalEventSent
	act.terminalEventSent = true

	final := record.Clone()
	act.mu.Unlock()

	m.emit(ctx, act, events.ExecutionProgressed{
		BaseEvent: events.NewBaseEvent(events.ExecutionProgressedEvent, final.ID),
		Progress:  progress,
	})

	if emitTerminal {
		m.emitTerminalEvent(ctx, act, final, duration)
	}

	for _, snapshot := range forced {
		m.persistBranch(ctx, snapshot, false)
		m.emit(ctx, act, events.BranchCompleted{
			BaseEvent: events.NewBaseEvent(events.BranchCompletedEvent, final.ID),
			BranchID:  snapshot.ID,
			Result:    snapshot.Result,
		})
	}

	act.events.Close()

	m.logger.InfoContext(ctx, "Execution finished",
		"execution_id", final.ID,
		"status", final.Status,
		"duration", duration,
		"token_usage", final.TokenUsage)

	if err := m.storage.SaveExecution(ctx, final); err != nil {
		m.logger.WarnContext(ctx, "Failed to persist execution", "execution_id", final.ID, "error", err)
	}

	if m.monitor != nil {
		go m.attachMetrics(context.WithoutCancel(ctx), final.Clone())
	}

	m.mu.Lock()
	delete(m.active, final.ID)
	m.mu.Unlock()

	act.handle.resolve(final)
}

func (m *Manager) emitTerminalEvent(ctx context.Context, act *activeExecution, final *models.ExecutionRecord, duration time.Duration) {
	switch final.Status {
	case models.ExecutionStatusCompleted:
		m.emit(ctx, act, events.ExecutionCompleted{
			BaseEvent:  events.NewBaseEvent(events.ExecutionCompletedEvent, final.ID),
			Result:     final.Result,
			TokenUsage: final.TokenUsage,
			Duration:   duration,
		})
	case models.ExecutionStatusFailed:
		m.emit(ctx, act, events.ExecutionFailed{
			BaseEvent: events.NewBaseEvent(events.ExecutionFailedEvent, final.ID),
			Error:     final.Error,
			Duration:  duration,
		})
	case models.ExecutionStatusCanceled:
		m.emit(ctx, act, events.ExecutionCanceled{
			BaseEvent: events.NewBaseEvent(events.ExecutionCanceledEvent, final.ID),
			Reason:    final.Error,
		})
	}
}

// attachMetrics collects the monitor's aggregates for the finished run and
// persists them on the record's metadata. Runs after eviction, off the
// finalization path.
func (m *Manager) attachMetrics(ctx context.Context, record *models.ExecutionRecord) {
	metrics, err := m.monitor.CollectMetrics(ctx, record.ID)

	m.monitor.StopMonitoring(record.ID)

	if err != nil {
		m.logger.DebugContext(ctx, "No metrics to attach", "execution_id", record.ID, "error", err)

		return
	}

	if record.Metadata == nil {
		record.Metadata = make(map[string]any)
	}

	record.Metadata["metrics"] = metrics

	if err := m.storage.SaveExecution(ctx, record); err != nil {
		m.logger.WarnContext(ctx, "Failed to persist execution metrics", "execution_id", record.ID, "error", err)
	}
}

func eventDuration(event events.StreamEvent) time.Duration {
	if event.Data == nil {
		return 0
	}

	if ms, ok := eventInt(event.Data["duration_ms"]); ok {
		return time.Duration(ms) * time.Millisecond
	}

	return 0
}

func eventOutputs(event events.StreamEvent) int {
	if event.Data == nil {
		return 0
	}

	outputs, _ := eventInt(event.Data["outputs"])

	return outputs
}

func eventInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
