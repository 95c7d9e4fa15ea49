package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/pkg/logging"
	"github.com/dmehra2102/orderflow/pkg/outbox"
)

// blockingStore holds every Append until release is closed or ctx expires.
type blockingStore struct {
	*outbox.MemoryStore
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (s *blockingStore) Append(ctx context.Context, ev outbox.Event) error {
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
		return s.MemoryStore.Append(ctx, ev)
	case <-ctx.Done():
		return ctx.Err()
	}
}

type capture struct {
	msgs []kafka.Message
}

func (c *capture) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestStatusPublisher_AppendsAndDispatches(t *testing.T) {
	ctx := context.Background()
	store := outbox.NewMemoryStore()
	pub := NewStatusPublisher(logging.Discard(), store)

	at := time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC)
	n := domain.NewNotification(domain.Order{ID: "o-1", OwnerID: "alice", Status: domain.StatusProcessing, UpdatedAt: at})
	n.Traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	pub.Enqueue(n)
	require.NoError(t, pub.Close(ctx))
	require.Equal(t, 1, store.Len())

	events, err := store.LockBatch(ctx, "r1", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, EventOrderStatusChanged, ev.Type)
	assert.Equal(t, "o-1", ev.AggregateID)

	var payload domain.OrderStatusChanged
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, domain.StatusProcessing, payload.Status)
	assert.Equal(t, "order:o-1:PROCESSING", payload.IdempotencyKey)
	assert.Equal(t, at, payload.OccurredAt)

	producer := &capture{}
	require.NoError(t, outbox.NewDispatcher(logging.Discard(), producer, "order.events").Dispatch(ctx, ev))
	require.Len(t, producer.msgs, 1)
	msg := producer.msgs[0]
	assert.Equal(t, "order.events", msg.Topic)
	assert.Equal(t, []byte("o-1"), msg.Key)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, EventOrderStatusChanged, headers["event_type"])
	assert.Equal(t, n.Traceparent, headers["traceparent"])
	assert.Equal(t, "order:o-1:PROCESSING", headers["idempotency_key"])
}

func TestStatusPublisher_EnqueueDoesNotWaitForAppend(t *testing.T) {
	store := &blockingStore{MemoryStore: outbox.NewMemoryStore(), release: make(chan struct{}), started: make(chan struct{})}
	pub := NewStatusPublisher(logging.Discard(), store)

	returned := make(chan struct{})
	go func() {
		for _, s := range []domain.Status{domain.StatusProcessing, domain.StatusShipping, domain.StatusDelivered} {
			pub.Enqueue(domain.NewNotification(domain.Order{ID: "o-1", OwnerID: "alice", Status: s}))
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a stalled append")
	}
	<-store.started

	close(store.release)
	require.NoError(t, pub.Close(context.Background()))
	require.Equal(t, 3, store.Len())

	events, err := store.LockBatch(context.Background(), "r1", 10, time.Second)
	require.NoError(t, err)
	var got []domain.Status
	for _, ev := range events {
		var payload domain.OrderStatusChanged
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		got = append(got, payload.Status)
	}
	assert.Equal(t, []domain.Status{domain.StatusProcessing, domain.StatusShipping, domain.StatusDelivered}, got)
}

func TestStatusPublisher_CloseGivesUpAtDeadline(t *testing.T) {
	store := &blockingStore{MemoryStore: outbox.NewMemoryStore(), release: make(chan struct{}), started: make(chan struct{})}
	pub := NewStatusPublisher(logging.Discard(), store)
	pub.Enqueue(domain.NewNotification(domain.Order{ID: "o-1", OwnerID: "alice", Status: domain.StatusProcessing}))
	<-store.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pub.Close(ctx), context.DeadlineExceeded)

	pub.Enqueue(domain.NewNotification(domain.Order{ID: "o-1", OwnerID: "alice", Status: domain.StatusShipping}))
	close(store.release)
	require.NoError(t, pub.Close(context.Background()))
	assert.Equal(t, 1, store.Len(), "events after close are dropped")
}
