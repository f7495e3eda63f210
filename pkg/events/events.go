// Package events defines event types and structures for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/braidflow/braid/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const Topic = "braid.executions" // Topic for execution lifecycle events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionStartedEvent    EventType = "execution.started"
	ExecutionRunningEvent    EventType = "execution.running"
	ExecutionCompletedEvent  EventType = "execution.completed"
	ExecutionFailedEvent     EventType = "execution.failed"
	ExecutionCanceledEvent   EventType = "execution.canceled"
	ExecutionProgressedEvent EventType = "execution.progressed"

	// Branch lifecycle events.
	BranchCreatedEvent   EventType = "branch.created"
	BranchStartedEvent   EventType = "branch.started"
	BranchCompletedEvent EventType = "branch.completed"
	BranchFailedEvent    EventType = "branch.failed"
	BranchCanceledEvent  EventType = "branch.canceled"

	// Node lifecycle events.
	NodeStartedEvent   EventType = "node.started"
	NodeCompletedEvent EventType = "node.completed"
	NodeFailedEvent    EventType = "node.failed"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
		Metadata:    make(map[string]any),
	}
}

// Execution lifecycle events

type ExecutionStarted struct {
	BaseEvent

	Input any `json:"input,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionRunning struct {
	BaseEvent

	TotalNodes int `json:"total_nodes"`
}

func (e ExecutionRunning) GetType() EventType {
	return ExecutionRunningEvent
}

type ExecutionCompleted struct {
	BaseEvent

	Result     any           `json:"result,omitempty"`
	TokenUsage int           `json:"token_usage"`
	Duration   time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCanceled struct {
	BaseEvent

	Reason string `json:"reason,omitempty"`
}

func (e ExecutionCanceled) GetType() EventType {
	return ExecutionCanceledEvent
}

// ExecutionProgressed carries an aggregate progress snapshot. Emitted every
// time a node or branch event moves the counters.
type ExecutionProgressed struct {
	BaseEvent

	Progress models.ExecutionProgress `json:"progress"`
}

func (e ExecutionProgressed) GetType() EventType {
	return ExecutionProgressedEvent
}

// Branch lifecycle events

type BranchCreated struct {
	BaseEvent

	BranchID       string `json:"branch_id"`
	Name           string `json:"name"`
	ParentBranchID string `json:"parent_branch_id,omitempty"`
	Priority       int    `json:"priority"`
}

func (e BranchCreated) GetType() EventType {
	return BranchCreatedEvent
}

type BranchStarted struct {
	BaseEvent

	BranchID string `json:"branch_id"`
}

func (e BranchStarted) GetType() EventType {
	return BranchStartedEvent
}

type BranchCompleted struct {
	BaseEvent

	BranchID   string `json:"branch_id"`
	Result     any    `json:"result,omitempty"`
	TokenUsage int    `json:"token_usage"`
}

func (e BranchCompleted) GetType() EventType {
	return BranchCompletedEvent
}

type BranchFailed struct {
	BaseEvent

	BranchID string `json:"branch_id"`
	Error    string `json:"error"`
}

func (e BranchFailed) GetType() EventType {
	return BranchFailedEvent
}

type BranchCanceled struct {
	BaseEvent

	BranchID string `json:"branch_id"`
	Reason   string `json:"reason,omitempty"`
}

func (e BranchCanceled) GetType() EventType {
	return BranchCanceledEvent
}

// Node lifecycle events

type NodeStarted struct {
	BaseEvent

	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type"`
	BranchID string `json:"branch_id,omitempty"`
}

func (e NodeStarted) GetType() EventType {
	return NodeStartedEvent
}

type NodeCompleted struct {
	BaseEvent

	NodeID     string        `json:"node_id"`
	NodeType   string        `json:"node_type"`
	BranchID   string        `json:"branch_id,omitempty"`
	TokenUsage int           `json:"token_usage"`
	Duration   time.Duration `json:"duration"`
	Outputs    int           `json:"outputs"`
}

func (e NodeCompleted) GetType() EventType {
	return NodeCompletedEvent
}

type NodeFailed struct {
	BaseEvent

	NodeID   string        `json:"node_id"`
	NodeType string        `json:"node_type"`
	BranchID string        `json:"branch_id,omitempty"`
	Error    string        `json:"error"`
	Timeout  bool          `json:"timeout"`
	Duration time.Duration `json:"duration"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}
