package kafka_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/dagflow/pkg/channels/kafka"
	"github.com/dukex/dagflow/pkg/eventbus"
	"github.com/dukex/dagflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func startKafka(t *testing.T) []string {
	t.Helper()

	if os.Getenv("DAGFLOW_INTEGRATION") == "" {
		t.Skip("set DAGFLOW_INTEGRATION=1 to run container tests")
	}

	ctx := context.Background()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, container.Terminate(context.Background()))
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0

	admin, err := sarama.NewClusterAdmin(brokers, config)
	require.NoError(t, err)

	defer func() { _ = admin.Close() }()

	err = admin.CreateTopic(events.Topic, &sarama.TopicDetail{NumPartitions: 1, ReplicationFactor: 1}, false)
	require.NoError(t, err)

	return brokers
}

func TestKafkaEventBus_RoundTrip(t *testing.T) {
	brokers := startKafka(t)

	pub, sub, err := kafka.CreateChannel(watermill.NopLogger{}, brokers, "dagflow-test")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	received := make(chan *events.ExecutionFailed, 1)

	require.NoError(t, bus.Handle(events.ExecutionFailedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.ExecutionFailed)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	err = bus.Publish(ctx, "exec-9", events.ExecutionFailed{
		BaseEvent: events.NewBaseEvent(events.ExecutionFailedEvent, "wf-9", "exec-9"),
		NodeID:    "node-3",
		Error:     "boom",
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, "exec-9", event.ExecutionID)
		assert.Equal(t, "node-3", event.NodeID)
		assert.Equal(t, "boom", event.Error)
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}
