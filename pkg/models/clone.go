package models

import "slices"

// Clone returns a copy of the record safe to hand to other goroutines.
// Branches, Tags and Metadata are copied; Input and Result are shared
// references and must be treated as read-only.
func (e *ExecutionRecord) Clone() *ExecutionRecord {
	if e == nil {
		return nil
	}

	clone := *e
	clone.Tags = slices.Clone(e.Tags)

	if e.Metadata != nil {
		clone.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}

	if e.StartedAt != nil {
		startedAt := *e.StartedAt
		clone.StartedAt = &startedAt
	}

	if e.FinishedAt != nil {
		finishedAt := *e.FinishedAt
		clone.FinishedAt = &finishedAt
	}

	if e.Branches != nil {
		clone.Branches = make([]*ExecutionBranch, len(e.Branches))
		for i, branch := range e.Branches {
			clone.Branches[i] = branch.Clone()
		}
	}

	return &clone
}

// Clone returns a copy of the branch safe to hand to other goroutines.
// Result is a shared reference and must be treated as read-only.
func (b *ExecutionBranch) Clone() *ExecutionBranch {
	if b == nil {
		return nil
	}

	clone := *b
	clone.NodeIDs = slices.Clone(b.NodeIDs)
	clone.CompletedNodeIDs = slices.Clone(b.CompletedNodeIDs)
	clone.Tags = slices.Clone(b.Tags)

	if b.StartedAt != nil {
		startedAt := *b.StartedAt
		clone.StartedAt = &startedAt
	}

	if b.FinishedAt != nil {
		finishedAt := *b.FinishedAt
		clone.FinishedAt = &finishedAt
	}

	return &clone
}
