package protocol

import "log/slog"

// ExecutionContext is the per-invocation view a node plugin receives. It
// identifies the node, execution and branch the call runs under and exposes
// the shared logger and service resolver.
type ExecutionContext struct {
	NodeID      string
	ExecutionID string
	BranchID    string
	Logger      *slog.Logger
	Services    ServiceResolver

	// Emit surfaces a signal to the execution lifecycle manager. Nil when the
	// caller does not consume signals; plugins must tolerate that.
	Emit func(Signal)
}

// EmitSignal sends a signal upward when a consumer is attached.
func (ec *ExecutionContext) EmitSignal(signal Signal) {
	if ec.Emit != nil {
		ec.Emit(signal)
	}
}

// SignalKind tags the requests a plugin can surface during Process.
type SignalKind string

const (
	// SignalCreateBranch asks the lifecycle manager to open a new branch.
	SignalCreateBranch SignalKind = "create_branch"
	// SignalBranchRelevance assigns a post-hoc ranking score to a branch.
	SignalBranchRelevance SignalKind = "branch_relevance"
	// SignalTerminate asks the lifecycle manager to stop scheduling new work.
	SignalTerminate SignalKind = "terminate"
)

// Signal is a plugin-surfaced request. Plugins emit signals without knowing
// who handles them; the lifecycle manager translates them into branch and
// execution operations.
type Signal struct {
	Kind           SignalKind
	NodeID         string
	BranchID       string
	BranchName     string
	ParentBranchID string
	Priority       int
	Tags           []string
	RelevanceScore float64
	Reason         string
	Payload        map[string]any
}
