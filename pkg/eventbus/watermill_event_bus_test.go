package eventbus_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/braidflow/braid/pkg/channels/gochannel"
	"github.com/braidflow/braid/pkg/eventbus"
	"github.com/braidflow/braid/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	logger := watermill.NewSlogLogger(slog.New(slog.DiscardHandler))

	pub, sub, err := gochannel.CreateChannel(logger)
	require.NoError(t, err)

	return eventbus.NewWatermillEventBus(pub, sub)
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	defer func() {
		require.NoError(t, bus.Close())
	}()

	first := bus.GenerateID()
	second := bus.GenerateID()

	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
}

func TestWatermillEventBus_PublishAndSubscribe(t *testing.T) {
	bus := newTestBus(t)

	defer func() {
		require.NoError(t, bus.Close())
	}()

	received := make(chan any, 1)

	err := bus.Handle(events.ExecutionStartedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	published := &events.ExecutionStarted{
		BaseEvent: events.NewBaseEvent(events.ExecutionStartedEvent, "exec-1"),
		Input:     map[string]any{"query": "test"},
	}
	published.WorkflowID = "wf-1"

	require.NoError(t, bus.Publish(ctx, "exec-1", published))

	select {
	case event := <-received:
		started, ok := event.(*events.ExecutionStarted)
		require.True(t, ok, "expected *events.ExecutionStarted, got %T", event)
		assert.Equal(t, "exec-1", started.ExecutionID)
		assert.Equal(t, "wf-1", started.WorkflowID)
		assert.Equal(t, map[string]any{"query": "test"}, started.Input)
	case <-time.After(5 * time.Second):
		t.Fatal("did not receive event within timeout")
	}
}

func TestWatermillEventBus_RoutesByEventType(t *testing.T) {
	bus := newTestBus(t)

	defer func() {
		require.NoError(t, bus.Close())
	}()

	var (
		mu        sync.Mutex
		completed int
		failed    int
	)

	done := make(chan struct{}, 2)

	err := bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, _ any) error {
		mu.Lock()
		completed++
		mu.Unlock()
		done <- struct{}{}

		return nil
	})
	require.NoError(t, err)

	err = bus.Handle(events.BranchFailedEvent, func(_ context.Context, _ any) error {
		mu.Lock()
		failed++
		mu.Unlock()
		done <- struct{}{}

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "exec-2", &events.ExecutionCompleted{
		BaseEvent: events.NewBaseEvent(events.ExecutionCompletedEvent, "exec-2"),
		Result:    map[string]any{"output": "done"},
	}))
	require.NoError(t, bus.Publish(ctx, "exec-2", &events.BranchFailed{
		BaseEvent: events.NewBaseEvent(events.BranchFailedEvent, "exec-2"),
		BranchID:  "branch-1",
		Error:     "node exploded",
	}))
	// An event type without a handler is acked and dropped.
	require.NoError(t, bus.Publish(ctx, "exec-2", &events.NodeStarted{
		BaseEvent: events.NewBaseEvent(events.NodeStartedEvent, "exec-2"),
		NodeID:    "n1",
	}))

	for range 2 {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("did not receive routed events within timeout")
		}
	}

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, failed)
}

func TestWatermillEventBus_DecodesEveryCatalogType(t *testing.T) {
	bus := newTestBus(t)

	defer func() {
		require.NoError(t, bus.Close())
	}()

	catalog := []eventbus.Event{
		&events.ExecutionStarted{BaseEvent: events.NewBaseEvent(events.ExecutionStartedEvent, "exec-3")},
		&events.ExecutionRunning{BaseEvent: events.NewBaseEvent(events.ExecutionRunningEvent, "exec-3"), TotalNodes: 3},
		&events.ExecutionCompleted{BaseEvent: events.NewBaseEvent(events.ExecutionCompletedEvent, "exec-3")},
		&events.ExecutionFailed{BaseEvent: events.NewBaseEvent(events.ExecutionFailedEvent, "exec-3"), Error: "boom"},
		&events.ExecutionCanceled{BaseEvent: events.NewBaseEvent(events.ExecutionCanceledEvent, "exec-3"), Reason: "user"},
		&events.ExecutionProgressed{BaseEvent: events.NewBaseEvent(events.ExecutionProgressedEvent, "exec-3")},
		&events.BranchCreated{BaseEvent: events.NewBaseEvent(events.BranchCreatedEvent, "exec-3"), BranchID: "b1"},
		&events.BranchStarted{BaseEvent: events.NewBaseEvent(events.BranchStartedEvent, "exec-3"), BranchID: "b1"},
		&events.BranchCompleted{BaseEvent: events.NewBaseEvent(events.BranchCompletedEvent, "exec-3"), BranchID: "b1"},
		&events.BranchFailed{BaseEvent: events.NewBaseEvent(events.BranchFailedEvent, "exec-3"), BranchID: "b1"},
		&events.BranchCanceled{BaseEvent: events.NewBaseEvent(events.BranchCanceledEvent, "exec-3"), BranchID: "b1"},
		&events.NodeStarted{BaseEvent: events.NewBaseEvent(events.NodeStartedEvent, "exec-3"), NodeID: "n1"},
		&events.NodeCompleted{BaseEvent: events.NewBaseEvent(events.NodeCompletedEvent, "exec-3"), NodeID: "n1"},
		&events.NodeFailed{BaseEvent: events.NewBaseEvent(events.NodeFailedEvent, "exec-3"), NodeID: "n1"},
	}

	received := make(chan events.EventType, len(catalog))

	for _, event := range catalog {
		err := bus.Handle(event.GetType(), func(_ context.Context, decoded any) error {
			received <- decoded.(eventbus.Event).GetType()

			return nil
		})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	for _, event := range catalog {
		require.NoError(t, bus.Publish(ctx, "exec-3", event))
	}

	seen := make(map[events.EventType]bool, len(catalog))

	for range catalog {
		select {
		case eventType := <-received:
			seen[eventType] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out; decoded %d of %d event types", len(seen), len(catalog))
		}
	}

	for _, event := range catalog {
		assert.True(t, seen[event.GetType()], "missing %s", event.GetType())
	}
}
