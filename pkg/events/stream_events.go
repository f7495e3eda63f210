package events

import "time"

// StreamEventType tags the in-process events the stream engine emits while a
// pipeline runs. These are the raw signals the lifecycle manager and monitor
// consume; they are translated into the typed lifecycle events above before
// leaving the process.
type StreamEventType string

const (
	StreamWorkflowStarted   StreamEventType = "workflow:start"
	StreamWorkflowCompleted StreamEventType = "workflow:complete"
	StreamWorkflowErrored   StreamEventType = "workflow:error"
	StreamNodeStarted       StreamEventType = "node:start"
	StreamNodeCompleted     StreamEventType = "node:complete"
	StreamNodeErrored       StreamEventType = "node:error"
	StreamBranchCreated     StreamEventType = "branch:create"
	StreamBranchStarted     StreamEventType = "branch:start"
	StreamBranchCompleted   StreamEventType = "branch:complete"
	StreamBranchFailed      StreamEventType = "branch:failed"
	StreamBranchScored      StreamEventType = "branch:scored"
)

// StreamEvent is one engine-side lifecycle signal. Exactly one terminal
// event (complete or error) follows every start event for the same node
// invocation; cross-branch ordering follows completion order.
type StreamEvent struct {
	Type        StreamEventType `json:"type"`
	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id,omitempty"`
	NodeType    string          `json:"node_type,omitempty"`
	BranchID    string          `json:"branch_id,omitempty"`
	BranchName  string          `json:"branch_name,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	TokenUsage  int             `json:"token_usage,omitempty"`
	Score       float64         `json:"score,omitempty"`
	Data        map[string]any  `json:"data,omitempty"`
	Err         error           `json:"-"`
	Timeout     bool            `json:"timeout,omitempty"`
}

// IsTerminalWorkflowEvent reports whether the event ends the whole run.
func (se StreamEvent) IsTerminalWorkflowEvent() bool {
	return se.Type == StreamWorkflowCompleted || se.Type == StreamWorkflowErrored
}
