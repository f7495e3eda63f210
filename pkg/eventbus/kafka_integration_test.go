//go:build integration
// +build integration

package eventbus_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/braidflow/braid/pkg/channels/kafka"
	"github.com/braidflow/braid/pkg/eventbus"
	"github.com/braidflow/braid/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kafkatc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func setupKafka(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := kafkatc.Run(ctx, "confluentinc/confluent-local:7.7.0",
		kafkatc.WithClusterID("braid-test-cluster"),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	createTopic(t, brokers[0], events.Topic)

	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0

	admin, err := sarama.NewClusterAdmin([]string{broker}, config)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, admin.Close())
	}()

	err = admin.CreateTopic(topic, &sarama.TopicDetail{
		NumPartitions:     1,
		ReplicationFactor: 1,
	}, false)
	require.NoError(t, err)
}

func TestKafkaEventBus_PublishAndSubscribe(t *testing.T) {
	broker := setupKafka(t)
	t.Setenv("KAFKA_BROKERS", broker)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), "braid-test")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	defer func() {
		assert.NoError(t, bus.Close())
	}()

	received := make(chan any, 1)

	err = bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// Give the consumer group time to settle before publishing.
	time.Sleep(2 * time.Second)

	published := &events.ExecutionCompleted{
		BaseEvent:  events.NewBaseEvent(events.ExecutionCompletedEvent, "exec-kafka"),
		Result:     map[string]any{"output": "done"},
		TokenUsage: 42,
		Duration:   3 * time.Second,
	}

	require.NoError(t, bus.Publish(ctx, "exec-kafka", published))

	select {
	case event := <-received:
		completed, ok := event.(*events.ExecutionCompleted)
		require.True(t, ok, "expected *events.ExecutionCompleted, got %T", event)
		assert.Equal(t, "exec-kafka", completed.ExecutionID)
		assert.Equal(t, 42, completed.TokenUsage)
	case <-time.After(30 * time.Second):
		t.Fatal("did not receive event within timeout")
	}
}

func TestKafkaEventBus_MissingBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	_, _, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), "braid-test")
	require.Error(t, err)
}
