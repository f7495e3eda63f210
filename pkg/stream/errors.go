package stream

import "errors"

// ErrNodeTimeout marks a node that did not finish within the configured
// per-node timeout. It is a distinguished subtype of node-processing error.
var ErrNodeTimeout = errors.New("node processing timed out")

// ErrStreamClosed is returned by Wait when the caller's context ends before
// the stream does.
var ErrStreamClosed = errors.New("stream closed")
