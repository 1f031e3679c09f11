package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	domorder "example.com/pod-fulfillment/internal/domain/order"
	domoutbox "example.com/pod-fulfillment/internal/domain/outbox"
	"example.com/pod-fulfillment/internal/infra/persistence/memory"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	failOn   map[string]error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range msgs {
		if err := w.failOn[string(m.Key)]; err != nil {
			return err
		}
		w.messages = append(w.messages, m)
	}
	return nil
}

type countingMetrics struct {
	published map[string]int
	failed    map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{published: map[string]int{}, failed: map[string]int{}}
}

func (m *countingMetrics) EventPublished(topic string) { m.published[topic]++ }
func (m *countingMetrics) PublishFailed(topic string)  { m.failed[topic]++ }

func seedEvents(t *testing.T, store *memory.Store, orderIDs ...int64) {
	t.Helper()
	err := store.Checkout(context.Background(), 1, func(tx domorder.CheckoutTx) error {
		for _, id := range orderIDs {
			ev, err := domoutbox.NewOrderEvent(domoutbox.TopicOrderPlaced, id, map[string]int64{"order_id": id}, time.Now().UTC())
			if err != nil {
				return err
			}
			if err := tx.AppendEvent(context.Background(), ev); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestFlush_PublishesAndMarksSent(t *testing.T) {
	store := memory.NewStore()
	seedEvents(t, store, 10, 11)
	writer := &fakeWriter{}
	metrics := newCountingMetrics()
	relay := NewRelay(store.Outbox(), writer, Config{BatchSize: 10}, metrics, nil)

	sent, err := relay.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sent)

	require.Len(t, writer.messages, 2)
	assert.Equal(t, domoutbox.TopicOrderPlaced, writer.messages[0].Topic)
	assert.Equal(t, "10", string(writer.messages[0].Key))
	assert.JSONEq(t, `{"order_id":10}`, string(writer.messages[0].Value))
	assert.Equal(t, "event_id", writer.messages[0].Headers[0].Key)
	assert.NotEmpty(t, writer.messages[0].Headers[0].Value)
	assert.Equal(t, 2, metrics.published[domoutbox.TopicOrderPlaced])

	pending, err := store.Outbox().FetchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	sent, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, writer.messages, 2)
}

func TestFlush_StopsAtFirstFailure(t *testing.T) {
	store := memory.NewStore()
	seedEvents(t, store, 10, 11, 12)
	writer := &fakeWriter{failOn: map[string]error{"11": errors.New("broker unavailable")}}
	metrics := newCountingMetrics()
	relay := NewRelay(store.Outbox(), writer, Config{BatchSize: 10}, metrics, nil)

	sent, err := relay.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, metrics.failed[domoutbox.TopicOrderPlaced])

	pending, err := store.Outbox().FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "11", pending[0].Key)

	writer.failOn = nil
	sent, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	keys := []string{}
	for _, m := range writer.messages {
		keys = append(keys, string(m.Key))
	}
	assert.Equal(t, []string{"10", "11", "12"}, keys)
}

func TestFlush_RespectsBatchSize(t *testing.T) {
	store := memory.NewStore()
	seedEvents(t, store, 1, 2, 3)
	writer := &fakeWriter{}
	relay := NewRelay(store.Outbox(), writer, Config{BatchSize: 2}, nil, nil)

	sent, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	sent, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := memory.NewStore()
	seedEvents(t, store, 7)
	writer := &fakeWriter{}
	relay := NewRelay(store.Outbox(), writer, Config{Interval: 10 * time.Millisecond}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		pending, _ := store.Outbox().FetchPending(context.Background(), 10)
		return len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestRelay_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}
	ctx := context.Background()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	store := memory.NewStore()
	seedEvents(t, store, 42)

	writer := NewWriter(brokers)
	t.Cleanup(func() { _ = writer.Close() })

	relay := NewRelay(store.Outbox(), writer, Config{}, nil, nil)
	sent, err := relay.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sent)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     domoutbox.TopicOrderPlaced,
		Partition: 0,
		MaxWait:   time.Second,
	})
	t.Cleanup(func() { _ = reader.Close() })

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err)
	assert.Equal(t, "42", string(msg.Key))
	assert.JSONEq(t, `{"order_id":42}`, string(msg.Value))
}
