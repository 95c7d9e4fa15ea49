package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/pkg/outbox"
)

const EventOrderStatusChanged = "OrderStatusChanged"

type Writer struct {
	*kafka.Writer
}

func NewWriter(brokers []string) *Writer {
	return &Writer{
		Writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

// StatusPublisher records every status change in the outbox. The relay
// forwards them to Kafka keyed by order id, so one order's events stay in
// one partition and in order.
//
// Appends run on a single background goroutine in Enqueue order. Enqueue
// only blocks while the queue is full.
type StatusPublisher struct {
	log     *slog.Logger
	store   outbox.Store
	timeout time.Duration
	queue   chan outbox.Event
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewStatusPublisher(log *slog.Logger, store outbox.Store) *StatusPublisher {
	p := &StatusPublisher{
		log:     log,
		store:   store,
		timeout: 5 * time.Second,
		queue:   make(chan outbox.Event, 1024),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *StatusPublisher) Enqueue(n domain.Notification) {
	event := domain.OrderStatusChanged{
		OrderID:        n.OrderID,
		OwnerID:        n.OwnerID,
		Status:         n.Status,
		IdempotencyKey: n.IdempotencyKey,
		OccurredAt:     n.OccurredAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("encode status event", "order_id", n.OrderID, "err", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.log.Warn("status event after close", "order_id", n.OrderID, "status", n.Status)
		return
	}
	p.queue <- outbox.Event{
		AggregateType: "order",
		AggregateID:   n.OrderID,
		Type:          EventOrderStatusChanged,
		Payload:       payload,
		Headers:       map[string]string{"idempotency_key": n.IdempotencyKey},
		Traceparent:   n.Traceparent,
	}
}

func (p *StatusPublisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.store.Append(ctx, ev)
		cancel()
		if err != nil {
			p.log.Error("outbox append failed", "order_id", ev.AggregateID, "err", err)
		}
	}
}

// Close stops accepting events and waits until the queued ones are appended.
func (p *StatusPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
