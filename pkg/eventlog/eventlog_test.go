package eventlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect[T any](t *testing.T, ch <-chan T, n int) []T {
	t.Helper()

	out := make([]T, 0, n)
	timeout := time.After(2 * time.Second)

	for len(out) < n {
		select {
		case entry, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d of %d entries", len(out), n)
			}

			out = append(out, entry)
		case <-timeout:
			t.Fatalf("timed out after %d of %d entries", len(out), n)
		}
	}

	return out
}

func TestLog_SubscriberReceivesLiveEntries(t *testing.T) {
	log := New[int]()
	defer log.Close()

	ch, cancel := log.Subscribe(context.Background())
	defer cancel()

	log.Append(1)
	log.Append(2)
	log.Append(3)

	assert.Equal(t, []int{1, 2, 3}, collect(t, ch, 3))
}

func TestLog_LateSubscriberReplaysHistory(t *testing.T) {
	log := New[string]()
	defer log.Close()

	log.Append("first")
	log.Append("second")

	ch, cancel := log.Subscribe(context.Background())
	defer cancel()

	log.Append("third")

	assert.Equal(t, []string{"first", "second", "third"}, collect(t, ch, 3))
}

func TestLog_SubscribeFromOffset(t *testing.T) {
	log := New[int]()
	defer log.Close()

	for i := 1; i <= 5; i++ {
		log.Append(i)
	}

	ch, cancel := log.SubscribeFrom(context.Background(), 3)
	defer cancel()

	assert.Equal(t, []int{4, 5}, collect(t, ch, 2))
}

func TestLog_CloseDrainsThenClosesChannel(t *testing.T) {
	log := New[int]()

	ch, cancel := log.Subscribe(context.Background())
	defer cancel()

	log.Append(1)
	log.Close()

	assert.Equal(t, []int{1}, collect(t, ch, 1))

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after drain")
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after log close")
	}
}

func TestLog_AppendAfterCloseIsNoOp(t *testing.T) {
	log := New[int]()
	log.Append(1)
	log.Close()
	log.Append(2)

	assert.Equal(t, []int{1}, log.Snapshot())
	assert.Equal(t, 1, log.Len())
	assert.True(t, log.Closed())
}

func TestLog_CancelReleasesSubscriber(t *testing.T) {
	log := New[int]()
	defer log.Close()

	ch, cancel := log.Subscribe(context.Background())
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after cancel")
	}

	// A canceled subscriber must not block future appends.
	log.Append(42)
	assert.Equal(t, 1, log.Len())
}

func TestLog_MultipleSubscribersSeeSameSequence(t *testing.T) {
	log := New[int]()

	const entries = 50

	var wg sync.WaitGroup

	results := make([][]int, 3)

	for i := range results {
		ch, cancel := log.Subscribe(context.Background())

		wg.Add(1)

		go func(idx int, ch <-chan int, cancel func()) {
			defer wg.Done()
			defer cancel()

			for entry := range ch {
				results[idx] = append(results[idx], entry)
			}
		}(i, ch, cancel)
	}

	for i := range entries {
		log.Append(i)
	}

	log.Close()
	wg.Wait()

	for idx, got := range results {
		require.Len(t, got, entries, "subscriber %d", idx)

		for i := range entries {
			assert.Equal(t, i, got[i])
		}
	}
}

func TestLog_ContextCancellationStopsDelivery(t *testing.T) {
	log := New[int]()
	defer log.Close()

	ctx, cancelCtx := context.WithCancel(context.Background())

	ch, cancel := log.Subscribe(ctx)
	defer cancel()

	cancelCtx()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after context cancellation")
	}
}
