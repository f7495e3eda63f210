package compiler

import (
	"errors"
	"fmt"
)

// ErrCycle rejects workflows whose connection graph contains a cycle.
var ErrCycle = errors.New("workflow contains a cycle")

// Error is a compile-time failure tied to one node of the workflow. A failed
// compile never yields a runnable pipeline.
type Error struct {
	NodeID   string
	NodeType string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.NodeType != "":
		return fmt.Sprintf("compile node '%s' (type '%s'): %s", e.NodeID, e.NodeType, e.Reason)
	case e.NodeID != "":
		return fmt.Sprintf("compile node '%s': %s", e.NodeID, e.Reason)
	default:
		return "compile workflow: " + e.Reason
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
