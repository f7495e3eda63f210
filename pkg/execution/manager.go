// Package execution owns the lifecycle of workflow executions and their
// branches. The Manager compiles a workflow, starts a stream run for it and
// tracks the execution in an active table until the run winds down, at which
// point the finalized record is persisted and the entry evicted. While an
// execution is active the in-memory record is canonical; storage holds
// best-effort snapshots that survive the eviction.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/braidflow/braid/pkg/compiler"
	"github.com/braidflow/braid/pkg/eventbus"
	"github.com/braidflow/braid/pkg/events"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/monitor"
	"github.com/braidflow/braid/pkg/otelhelper"
	"github.com/braidflow/braid/pkg/protocol"
	"github.com/braidflow/braid/pkg/storage"
	"github.com/braidflow/braid/pkg/stream"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Manager coordinates compilation, stream execution, branch tracking and
// persistence for workflow executions.
type Manager struct {
	compiler *compiler.Compiler
	engine   *stream.Engine
	storage  storage.ExecutionStorage
	logger   *slog.Logger

	bus      eventbus.EventBus
	monitor  *monitor.Monitor
	services protocol.ServiceResolver
	tracer   trace.Tracer

	mu     sync.RWMutex
	active map[string]*activeExecution
}

// Option configures a Manager.
type Option func(*Manager)

// WithEventBus publishes lifecycle events on the given bus in addition to
// the per-execution event log.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithMonitor collects execution metrics and attaches them to the finalized
// record.
func WithMonitor(mon *monitor.Monitor) Option {
	return func(m *Manager) {
		m.monitor = mon
	}
}

// WithServices exposes shared services to plugins during execution.
func WithServices(services protocol.ServiceResolver) Option {
	return func(m *Manager) {
		m.services = services
	}
}

// WithTracer enables span creation for execution submissions.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

func NewManager(comp *compiler.Compiler, engine *stream.Engine, store storage.ExecutionStorage, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		compiler: comp,
		engine:   engine,
		storage:  store,
		logger:   logger.With("module", "execution_manager"),
		active:   make(map[string]*activeExecution),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// ExecuteOptions carries the submission parameters for one execution.
type ExecuteOptions struct {
	// ExecutionID overrides the generated id.
	ExecutionID string
	// Type labels the execution (e.g. "api", "scheduled").
	Type     string
	OwnerID  string
	Priority int
	Tags     []string
	Metadata map[string]any
	// EnableBranching creates a "Main Branch" bound to the run's default
	// branch id, so branch-level progress is tracked from the first node.
	EnableBranching bool
}

// ExecuteWorkflow compiles the workflow and starts executing it. The run
// outlives ctx; cancellation goes through CancelExecution. The returned
// handle resolves once the execution has finalized.
func (m *Manager) ExecuteWorkflow(ctx context.Context, workflow *models.Workflow, input any, opts ExecuteOptions) (*Handle, error) {
	if workflow == nil {
		return nil, errors.New("workflow is required")
	}

	if m.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, m.tracer, "execution.submit",
			attribute.String(otelhelper.WorkflowIDKey, workflow.ID))
		defer span.End()
	}

	executable, err := m.compiler.Compile(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to compile workflow %s: %w", workflow.ID, err)
	}

	executionID := opts.ExecutionID
	if executionID == "" {
		executionID = uuid.New().String()
	}

	record := models.NewExecutionRecord(executionID, workflow.ID)
	record.Type = opts.Type
	record.OwnerID = opts.OwnerID
	record.Priority = opts.Priority
	record.Tags = opts.Tags
	record.Input = input

	if opts.Metadata != nil {
		record.Metadata = opts.Metadata
	}

	handle := newHandle(executionID, m)
	act := newActiveExecution(record, workflow, handle)

	m.mu.Lock()

	if _, exists := m.active[executionID]; exists {
		m.mu.Unlock()

		return nil, fmt.Errorf("%w: %s", ErrExecutionExists, executionID)
	}

	m.active[executionID] = act

	m.mu.Unlock()

	logger := m.logger.With("execution_id", executionID, "workflow_id", workflow.ID)
	logger.InfoContext(ctx, "Starting workflow execution", "nodes", len(workflow.Nodes))

	m.persistRecord(ctx, act)
	m.emit(ctx, act, events.ExecutionStarted{
		BaseEvent: events.NewBaseEvent(events.ExecutionStartedEvent, executionID),
		Input:     input,
	})

	now := time.Now().UTC()

	act.mu.Lock()
	record.Status = models.ExecutionStatusRunning
	record.StartedAt = &now
	act.refreshProgress(now)
	act.mu.Unlock()

	m.persistRecord(ctx, act)
	m.emit(ctx, act, events.ExecutionRunning{
		BaseEvent:  events.NewBaseEvent(events.ExecutionRunningEvent, executionID),
		TotalNodes: len(workflow.Nodes),
	})

	if opts.EnableBranching {
		if _, err := m.addBranch(ctx, act, branchSpec{id: executable.DefaultBranchID, name: "Main Branch"}); err != nil {
			logger.WarnContext(ctx, "Failed to create main branch", "error", err)
		}
	}

	// The run must not die with the submitting request.
	runCtx := context.WithoutCancel(ctx)

	s, err := m.engine.CreateStream(runCtx, executable, input, stream.Options{
		ExecutionID: executionID,
		Env:         compiler.Env{Logger: logger, Services: m.services},
	})
	if err != nil {
		m.abortStart(ctx, act, err)

		return nil, fmt.Errorf("failed to start execution %s: %w", executionID, err)
	}

	act.mu.Lock()
	act.stream = s
	canceledEarly := record.Status.IsTerminal()
	act.mu.Unlock()

	if canceledEarly {
		s.Cancel()
	}

	if m.monitor != nil {
		if err := m.monitor.MonitorExecution(runCtx, executionID, workflow, s); err != nil {
			logger.WarnContext(ctx, "Failed to start execution monitor", "error", err)
		}
	}

	eventsCh, unsubscribe := s.SubscribeEvents(runCtx)

	go m.collectItems(act, s)
	go m.dispatchEvents(runCtx, act, eventsCh, unsubscribe)

	return handle, nil
}

// ActiveExecutions reports how many executions are currently in the active
// table.
func (m *Manager) ActiveExecutions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.active)
}

// Shutdown cancels every active execution and waits for finalization to
// complete or ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()

	handles := make([]*Handle, 0, len(m.active))
	ids := make([]string, 0, len(m.active))

	for id, act := range m.active {
		ids = append(ids, id)
		handles = append(handles, act.handle)
	}

	m.mu.RUnlock()

	for _, id := range ids {
		m.CancelExecution(ctx, id)
	}

	for _, handle := range handles {
		select {
		case <-handle.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (m *Manager) lookupActive(executionID string) (*activeExecution, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	act, ok := m.active[executionID]

	return act, ok
}

// emit appends the event to the per-execution log and publishes it on the
// bus. Bus failures are logged and swallowed; the in-memory log is the
// delivery guarantee for subscribed observers.
func (m *Manager) emit(ctx context.Context, act *activeExecution, event eventbus.Event) {
	act.events.Append(event)

	if m.bus == nil {
		return
	}

	if err := m.bus.Publish(ctx, act.record.ID, event); err != nil {
		m.logger.WarnContext(ctx, "Failed to publish event",
			"execution_id", act.record.ID,
			"event_type", event.GetType(),
			"error", err)
	}
}

// persistRecord snapshots the execution into storage. Failures are logged
// and swallowed: while the execution is active the in-memory record stays
// canonical, and the next snapshot retries the write.
func (m *Manager) persistRecord(ctx context.Context, act *activeExecution) {
	record := act.snapshotRecord()

	if err := m.storage.SaveExecution(ctx, record); err != nil {
		m.logger.WarnContext(ctx, "Failed to persist execution", "execution_id", record.ID, "error", err)
	}
}

// persistBranch writes one branch through, using SaveBranch for creations
// and UpdateBranch for transitions. Failures are logged and swallowed.
func (m *Manager) persistBranch(ctx context.Context, branch *models.ExecutionBranch, created bool) {
	var err error
	if created {
		err = m.storage.SaveBranch(ctx, branch)
	} else {
		err = m.storage.UpdateBranch(ctx, branch)
	}

	if err != nil {
		m.logger.WarnContext(ctx, "Failed to persist branch",
			"execution_id", branch.ExecutionID,
			"branch_id", branch.ID,
			"error", err)
	}
}

// abortStart finalizes an execution whose stream never started.
func (m *Manager) abortStart(ctx context.Context, act *activeExecution, cause error) {
	now := time.Now().UTC()

	act.mu.Lock()
	act.finalized = true
	record := act.record

	if !record.Status.IsTerminal() {
		record.Status = models.ExecutionStatusFailed
		record.Error = cause.Error()
	}

	record.FinishedAt = &now
	act.refreshProgress(now)

	emitTerminal := !act.terminalEventSent
	act.terminalEventSent = true
	final := record.Clone()
	act.mu.Unlock()

	if emitTerminal {
		m.emit(ctx, act, events.ExecutionFailed{
			BaseEvent: events.NewBaseEvent(events.ExecutionFailedEvent, final.ID),
			Error:     final.Error,
		})
	}

	act.events.Close()

	if err := m.storage.SaveExecution(ctx, final); err != nil {
		m.logger.WarnContext(ctx, "Failed to persist execution", "execution_id", final.ID, "error", err)
	}

	m.mu.Lock()
	delete(m.active, final.ID)
	m.mu.Unlock()

	act.handle.resolve(final)
}
