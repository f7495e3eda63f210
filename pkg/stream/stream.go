package stream

import (
	"context"
	"sync"

	"github.com/braidflow/braid/pkg/events"
	"github.com/braidflow/braid/pkg/eventlog"
	"github.com/braidflow/braid/pkg/models"
)

// Stream is one live pipeline run. Items carries every item produced at
// every node, not just terminal output; callers wanting final results filter
// by producing node. Events are kept in an append-only log so any number of
// observers can subscribe, late ones replaying the full history.
type Stream struct {
	executionID string

	items    chan *models.StreamItem
	eventLog *eventlog.Log[events.StreamEvent]
	done     chan struct{}
	cancel   context.CancelFunc

	mu         sync.Mutex
	err        error
	terminated bool
}

func newStream(executionID string, bufferSize int, cancel context.CancelFunc) *Stream {
	return &Stream{
		executionID: executionID,
		items:       make(chan *models.StreamItem, bufferSize),
		eventLog:    eventlog.New[events.StreamEvent](),
		done:        make(chan struct{}),
		cancel:      cancel,
	}
}

// ExecutionID returns the execution this stream runs under.
func (s *Stream) ExecutionID() string {
	return s.executionID
}

// Items returns the merged stream of every produced item. The channel closes
// when the run finishes.
func (s *Stream) Items() <-chan *models.StreamItem {
	return s.items
}

// SubscribeEvents attaches an observer to the event log, replaying history
// first. The cancel func releases the subscription.
func (s *Stream) SubscribeEvents(ctx context.Context) (<-chan events.StreamEvent, func()) {
	return s.eventLog.Subscribe(ctx)
}

// EventHistory returns a snapshot of every event emitted so far.
func (s *Stream) EventHistory() []events.StreamEvent {
	return s.eventLog.Snapshot()
}

// Done closes when the run has fully wound down.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the first error the run recorded, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Wait blocks until the run finishes or ctx ends.
func (s *Stream) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ErrStreamClosed
	}
}

// Cancel stops scheduling further node work. In-flight plugin calls are not
// preempted; their late results are discarded.
func (s *Stream) Cancel() {
	s.cancel()
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err == nil {
		s.err = err
	}
}

func (s *Stream) terminate() {
	s.mu.Lock()
	s.terminated = true
	s.mu.Unlock()

	s.cancel()
}

func (s *Stream) wasTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.terminated
}

func (s *Stream) emit(event events.StreamEvent) {
	s.eventLog.Append(event)
}

func (s *Stream) finish() {
	s.eventLog.Close()
	close(s.items)
	close(s.done)
}
