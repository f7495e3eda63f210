package models

import "time"

// StreamItem is the unit flowing through a compiled pipeline. Each node
// transforms one item into one or more downstream items.
type StreamItem struct {
	ExecutionID string     `json:"execution_id"`
	NodeID      string     `json:"node_id"` // producing node
	Data        any        `json:"data"`
	Timestamp   time.Time  `json:"timestamp"`
	Meta        StreamMeta `json:"meta"`
}

// StreamMeta carries per-item bookkeeping accumulated as the item moves
// through the graph.
type StreamMeta struct {
	Step        int      `json:"step"`
	TokenUsage  int      `json:"token_usage"`
	BranchID    string   `json:"branch_id,omitempty"`
	ProcessedBy []string `json:"processed_by,omitempty"`
	Final       bool     `json:"final,omitempty"`
}

// Clone returns a copy of the item with an independent ProcessedBy slice so
// fan-out paths never share mutable metadata.
func (si *StreamItem) Clone() *StreamItem {
	clone := *si
	clone.Meta.ProcessedBy = append([]string(nil), si.Meta.ProcessedBy...)

	return &clone
}

// DataMap returns the item payload as a map when it is one, or nil.
func (si *StreamItem) DataMap() map[string]any {
	if m, ok := si.Data.(map[string]any); ok {
		return m
	}

	return nil
}
