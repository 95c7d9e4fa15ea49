package outbox

import (
	"context"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher publishes outbox events to a single topic.
type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	topic    string
}

func NewDispatcher(log *slog.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, topic: topic}
}

func (d *Dispatcher) message(event Event) kafka.Message {
	headers := make([]kafka.Header, 0, len(event.Headers)+3)
	for k, v := range event.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers,
		kafka.Header{Key: "event_type", Value: []byte(event.Type)},
		kafka.Header{Key: "aggregate_type", Value: []byte(event.AggregateType)},
	)
	if event.Traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(event.Traceparent)})
	}
	return kafka.Message{
		Topic:   d.topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
}

// DispatchBatch writes events in one producer call and returns the error of
// every event that was not written, keyed by event ID.
func (d *Dispatcher) DispatchBatch(ctx context.Context, events []Event) map[int64]error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		msgs[i] = d.message(e)
	}

	err := d.producer.WriteMessages(ctx, msgs...)
	if err == nil {
		d.log.Debug("outbox dispatched", "events", len(events), "topic", d.topic)
		return nil
	}

	failed := make(map[int64]error, len(events))
	var perMessage kafka.WriteErrors
	if errors.As(err, &perMessage) && len(perMessage) == len(events) {
		for i, werr := range perMessage {
			if werr != nil {
				failed[events[i].ID] = werr
			}
		}
	} else {
		for _, e := range events {
			failed[e.ID] = err
		}
	}
	d.log.Error("outbox dispatch failed", "events", len(events), "failed", len(failed), "err", err)
	return failed
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	return d.DispatchBatch(ctx, []Event{event})[event.ID]
}
