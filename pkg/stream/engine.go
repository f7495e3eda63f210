// Package stream executes compiled workflows: items propagate node by node
// along the connection graph, every node runs under a per-node timeout, and
// lifecycle events are published to a replayable event log observers can
// subscribe to independently of the data stream.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/braidflow/braid/pkg/compiler"
	"github.com/braidflow/braid/pkg/events"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/otelhelper"
	"github.com/braidflow/braid/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultNodeTimeout = 30 * time.Second
	DefaultBufferSize  = 256

	// EntryKey is the synthetic connection-map key pointing at the nodes
	// that receive the workflow input.
	EntryKey = "entry"
)

type Engine struct {
	logger      *slog.Logger
	nodeTimeout time.Duration
	bufferSize  int
	tracer      trace.Tracer
}

type Option func(*Engine)

// WithNodeTimeout overrides the per-node processing timeout.
func WithNodeTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.nodeTimeout = timeout
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithBufferSize sets the item channel buffer.
func WithBufferSize(size int) Option {
	return func(e *Engine) {
		e.bufferSize = size
	}
}

// WithTracer enables per-node tracing spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func NewEngine(opts ...Option) *Engine {
	engine := &Engine{
		logger:      slog.Default(),
		nodeTimeout: DefaultNodeTimeout,
		bufferSize:  DefaultBufferSize,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Options configures one run.
type Options struct {
	ExecutionID string
	Env         compiler.Env
}

// CreateStream starts executing the workflow against the input and returns
// the live stream. The run winds down when every scheduled node finished,
// the run context was canceled, or a terminate signal arrived.
func (e *Engine) CreateStream(ctx context.Context, executable *compiler.ExecutableWorkflow, input any, opts Options) (*Stream, error) {
	if executable == nil {
		return nil, errors.New("executable workflow is nil")
	}

	executionID := opts.ExecutionID
	if executionID == "" {
		executionID = uuid.New().String()
	}

	runCtx, cancel := context.WithCancel(ctx)
	stream := newStream(executionID, e.bufferSize, cancel)

	r := &run{
		engine:          e,
		stream:          stream,
		executable:      executable,
		connections:     buildConnections(executable.Workflow),
		startedBranches: make(map[string]bool),
	}

	userSignals := opts.Env.Signals

	env := opts.Env
	if env.Logger == nil {
		env.Logger = e.logger
	}

	env.Signals = func(signal protocol.Signal) {
		r.handleSignal(signal)

		if userSignals != nil {
			userSignals(signal)
		}
	}

	r.env = env

	e.logger.Debug("Starting stream",
		"execution_id", executionID,
		"workflow_id", executable.Workflow.ID,
		"nodes", len(executable.NodeOrder))

	r.start(runCtx, input)

	return stream, nil
}

// run holds the per-run state shared by the node goroutines.
type run struct {
	engine      *Engine
	stream      *Stream
	executable  *compiler.ExecutableWorkflow
	connections map[string][]string
	env         compiler.Env

	wg sync.WaitGroup

	mu              sync.Mutex
	startedBranches map[string]bool
}

func (r *run) start(ctx context.Context, input any) {
	r.emit(events.StreamEvent{
		Type:        events.StreamWorkflowStarted,
		ExecutionID: r.stream.executionID,
		Timestamp:   time.Now().UTC(),
	})

	seed := &models.StreamItem{
		ExecutionID: r.stream.executionID,
		NodeID:      EntryKey,
		Data:        input,
		Timestamp:   time.Now().UTC(),
	}

	for _, entry := range r.connections[EntryKey] {
		r.wg.Add(1)

		go r.runNode(ctx, entry, seed.Clone())
	}

	go func() {
		r.wg.Wait()
		r.finish(ctx)
	}()
}

func (r *run) finish(ctx context.Context) {
	err := r.stream.Err()

	switch {
	case err != nil:
		r.emit(events.StreamEvent{
			Type:        events.StreamWorkflowErrored,
			ExecutionID: r.stream.executionID,
			Timestamp:   time.Now().UTC(),
			Err:         err,
			Timeout:     errors.Is(err, ErrNodeTimeout),
		})
	case ctx.Err() != nil && !r.stream.wasTerminated():
		r.stream.fail(ctx.Err())
		r.emit(events.StreamEvent{
			Type:        events.StreamWorkflowErrored,
			ExecutionID: r.stream.executionID,
			Timestamp:   time.Now().UTC(),
			Err:         ctx.Err(),
		})
	default:
		r.emit(events.StreamEvent{
			Type:        events.StreamWorkflowCompleted,
			ExecutionID: r.stream.executionID,
			Timestamp:   time.Now().UTC(),
		})
	}

	r.stream.finish()
}

// runNode processes one item at one node and schedules the node's
// downstream targets for every output. Items whose producer is not a
// declared upstream of this node pass through unchanged.
func (r *run) runNode(ctx context.Context, nodeID string, item *models.StreamItem) {
	defer r.wg.Done()

	if !r.isUpstream(item.NodeID, nodeID) {
		r.deliver(ctx, item)

		return
	}

	stage, ok := r.executable.Stage(nodeID)
	if !ok {
		r.stream.fail(fmt.Errorf("no stage compiled for node '%s'", nodeID))

		return
	}

	start := time.Now().UTC()

	r.emit(events.StreamEvent{
		Type:        events.StreamNodeStarted,
		ExecutionID: item.ExecutionID,
		NodeID:      stage.NodeID,
		NodeType:    stage.NodeType,
		BranchID:    item.Meta.BranchID,
		Timestamp:   start,
	})

	spanCtx := ctx

	var span trace.Span
	if r.engine.tracer != nil {
		spanCtx, span = otelhelper.StartSpan(ctx, r.engine.tracer, "node.process",
			attribute.String(otelhelper.ExecutionIDKey, item.ExecutionID),
			attribute.String(otelhelper.NodeIDKey, stage.NodeID),
			attribute.String(otelhelper.NodeTypeKey, stage.NodeType))
		defer span.End()
	}

	outputs, err := r.applyStage(spanCtx, stage, item)
	duration := time.Since(start)

	if err != nil {
		if span != nil {
			otelhelper.SetError(span, err)
		}

		timeout := errors.Is(err, ErrNodeTimeout)
		if ctx.Err() != nil && !timeout {
			// Run canceled while this node was in flight; its result is
			// discarded without a node-level event.
			return
		}

		r.stream.fail(err)
		r.emit(events.StreamEvent{
			Type:        events.StreamNodeErrored,
			ExecutionID: item.ExecutionID,
			NodeID:      stage.NodeID,
			NodeType:    stage.NodeType,
			BranchID:    item.Meta.BranchID,
			Timestamp:   time.Now().UTC(),
			Err:         err,
			Timeout:     timeout,
		})

		if item.Meta.BranchID != "" {
			r.emit(events.StreamEvent{
				Type:        events.StreamBranchFailed,
				ExecutionID: item.ExecutionID,
				BranchID:    item.Meta.BranchID,
				Timestamp:   time.Now().UTC(),
				Err:         err,
			})
		}

		return
	}

	r.afterNode(ctx, stage, item, outputs, duration)
}

// applyStage runs the stage under the per-node timeout. On expiry the node
// fails with ErrNodeTimeout; the plugin goroutine is left to finish on its
// own and its result is dropped.
func (r *run) applyStage(ctx context.Context, stage *compiler.Stage, item *models.StreamItem) ([]*models.StreamItem, error) {
	nodeCtx, cancel := context.WithTimeout(ctx, r.engine.nodeTimeout)
	defer cancel()

	type stageResult struct {
		outputs []*models.StreamItem
		err     error
	}

	results := make(chan stageResult, 1)

	go func() {
		outputs, err := stage.Process(nodeCtx, item, r.env)
		results <- stageResult{outputs: outputs, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) && errors.Is(nodeCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("node '%s': %w", stage.NodeID, ErrNodeTimeout)
		}

		return res.outputs, res.err
	case <-nodeCtx.Done():
		if errors.Is(nodeCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("node '%s': %w", stage.NodeID, ErrNodeTimeout)
		}

		return nil, nodeCtx.Err()
	}
}

func (r *run) afterNode(ctx context.Context, stage *compiler.Stage, item *models.StreamItem, outputs []*models.StreamItem, duration time.Duration) {
	usage := 0
	for _, out := range outputs {
		usage += out.Meta.TokenUsage
	}

	for _, out := range outputs {
		r.markBranchStarted(out.ExecutionID, out.Meta.BranchID)
	}

	branchID := item.Meta.BranchID
	if branchID == "" && len(outputs) > 0 {
		branchID = outputs[0].Meta.BranchID
	}

	r.emit(events.StreamEvent{
		Type:        events.StreamNodeCompleted,
		ExecutionID: item.ExecutionID,
		NodeID:      stage.NodeID,
		NodeType:    stage.NodeType,
		BranchID:    branchID,
		Timestamp:   time.Now().UTC(),
		TokenUsage:  usage,
		Data:        map[string]any{"outputs": len(outputs), "duration_ms": duration.Milliseconds()},
	})

	terminal := len(r.connections[stage.NodeID]) == 0

	for _, out := range outputs {
		if terminal {
			r.emit(events.StreamEvent{
				Type:        events.StreamBranchCompleted,
				ExecutionID: out.ExecutionID,
				BranchID:    out.Meta.BranchID,
				Timestamp:   time.Now().UTC(),
				TokenUsage:  out.Meta.TokenUsage,
				Data:        out.DataMap(),
			})
		}

		r.deliver(ctx, out)

		for _, downstream := range r.connections[stage.NodeID] {
			r.wg.Add(1)

			go r.runNode(ctx, downstream, out.Clone())
		}
	}
}

func (r *run) deliver(ctx context.Context, item *models.StreamItem) {
	select {
	case r.stream.items <- item:
	case <-ctx.Done():
	}
}

func (r *run) isUpstream(producerID, nodeID string) bool {
	for _, target := range r.connections[producerID] {
		if target == nodeID {
			return true
		}
	}

	return false
}

func (r *run) markBranchStarted(executionID, branchID string) {
	if branchID == "" {
		return
	}

	r.mu.Lock()
	started := r.startedBranches[branchID]
	r.startedBranches[branchID] = true
	r.mu.Unlock()

	if started {
		return
	}

	r.emit(events.StreamEvent{
		Type:        events.StreamBranchStarted,
		ExecutionID: executionID,
		BranchID:    branchID,
		Timestamp:   time.Now().UTC(),
	})
}

func (r *run) handleSignal(signal protocol.Signal) {
	switch signal.Kind {
	case protocol.SignalCreateBranch:
		r.emit(events.StreamEvent{
			Type:        events.StreamBranchCreated,
			ExecutionID: r.stream.executionID,
			NodeID:      signal.NodeID,
			BranchID:    signal.BranchID,
			BranchName:  signal.BranchName,
			Timestamp:   time.Now().UTC(),
			Data: map[string]any{
				"parent_branch_id": signal.ParentBranchID,
				"priority":         signal.Priority,
				"tags":             signal.Tags,
			},
		})
	case protocol.SignalBranchRelevance:
		r.emit(events.StreamEvent{
			Type:        events.StreamBranchScored,
			ExecutionID: r.stream.executionID,
			NodeID:      signal.NodeID,
			BranchID:    signal.BranchID,
			Score:       signal.RelevanceScore,
			Timestamp:   time.Now().UTC(),
		})
	case protocol.SignalTerminate:
		r.engine.logger.Info("Terminate signal received",
			"execution_id", r.stream.executionID,
			"node_id", signal.NodeID,
			"reason", signal.Reason)
		r.stream.terminate()
	}
}

func (r *run) emit(event events.StreamEvent) {
	r.stream.emit(event)
}

// buildConnections maps each node to its downstream targets and adds the
// synthetic entry key pointing at the nodes without incoming edges.
func buildConnections(workflow *models.Workflow) map[string][]string {
	connections := make(map[string][]string, len(workflow.Nodes)+1)
	incoming := make(map[string]int, len(workflow.Nodes))

	for _, conn := range workflow.Connections {
		connections[conn.From] = append(connections[conn.From], conn.To)
		incoming[conn.To]++
	}

	entries := make([]string, 0, 1)

	for _, node := range workflow.Nodes {
		if incoming[node.ID] == 0 {
			entries = append(entries, node.ID)
		}
	}

	if len(entries) == 0 && len(workflow.Nodes) > 0 {
		entries = append(entries, workflow.Nodes[0].ID)
	}

	connections[EntryKey] = entries

	return connections
}
