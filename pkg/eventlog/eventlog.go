// Package eventlog provides an append-only, replayable event log with
// multi-subscriber fan-out. New subscribers replay the full history from a
// chosen offset before receiving live entries, so late observers see the
// same sequence early ones did.
package eventlog

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Log is an append-only sequence of entries. Appends never block: delivery
// runs on one goroutine per subscriber, each paced by its own consumer.
type Log[T any] struct {
	mu          sync.Mutex
	entries     []T
	closed      bool
	subscribers map[string]chan struct{}
}

func New[T any]() *Log[T] {
	return &Log[T]{
		subscribers: make(map[string]chan struct{}),
	}
}

// Append adds an entry and wakes every subscriber. Appending to a closed
// log is a no-op.
func (l *Log[T]) Append(entry T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	l.entries = append(l.entries, entry)
	l.notifyLocked()
}

// Close seals the log. Subscribers drain the remaining entries and then
// their channels close.
func (l *Log[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	l.closed = true
	l.notifyLocked()
}

func (l *Log[T]) notifyLocked() {
	for _, notify := range l.subscribers {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of entries appended so far.
func (l *Log[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// Closed reports whether the log is sealed.
func (l *Log[T]) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.closed
}

// Snapshot returns a copy of every entry appended so far.
func (l *Log[T]) Snapshot() []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]T(nil), l.entries...)
}

// Subscribe replays the log from the beginning and then follows live
// entries.
func (l *Log[T]) Subscribe(ctx context.Context) (<-chan T, func()) {
	return l.SubscribeFrom(ctx, 0)
}

// SubscribeFrom replays the log starting at the given offset and then
// follows live entries. The returned cancel func releases the subscription;
// the channel closes once the log is closed and drained, on cancel, or when
// ctx ends.
func (l *Log[T]) SubscribeFrom(ctx context.Context, offset int) (<-chan T, func()) {
	id := uuid.New().String()
	notify := make(chan struct{}, 1)
	stop := make(chan struct{})
	out := make(chan T)

	l.mu.Lock()
	l.subscribers[id] = notify

	if offset < 0 {
		offset = 0
	}

	l.mu.Unlock()

	var stopOnce sync.Once

	cancel := func() {
		stopOnce.Do(func() {
			close(stop)
		})
	}

	go func() {
		defer close(out)
		defer func() {
			l.mu.Lock()
			delete(l.subscribers, id)
			l.mu.Unlock()
		}()

		for {
			l.mu.Lock()

			var batch []T
			if offset < len(l.entries) {
				batch = append(batch, l.entries[offset:]...)
				offset = len(l.entries)
			}

			closed := l.closed
			l.mu.Unlock()

			for _, entry := range batch {
				select {
				case out <- entry:
				case <-ctx.Done():
					return
				case <-stop:
					return
				}
			}

			if closed {
				return
			}

			select {
			case <-notify:
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return out, cancel
}
