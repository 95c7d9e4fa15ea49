package outbox

import (
	"context"
	"log/slog"
	"time"
)

type Store interface {
	Append(ctx context.Context, event Event) error
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	MarkDead(ctx context.Context, id int64, errMsg string) error
}

// Relay moves events from a Store to Kafka. Events are leased, so several
// relays may share one store.
type Relay struct {
	log        *slog.Logger
	store      Store
	dispatch   *Dispatcher
	relayID    string
	batchSize  int
	interval   time.Duration
	lease      time.Duration
	maxRetries int
}

type RelayOption func(*Relay)

func WithInterval(d time.Duration) RelayOption { return func(r *Relay) { r.interval = d } }

func WithBatchSize(n int) RelayOption { return func(r *Relay) { r.batchSize = n } }

func WithLease(d time.Duration) RelayOption { return func(r *Relay) { r.lease = d } }

// WithMaxRetries dead-letters an event after n failed publishes. Zero retries forever.
func WithMaxRetries(n int) RelayOption { return func(r *Relay) { r.maxRetries = n } }

func NewRelay(log *slog.Logger, store Store, dispatch *Dispatcher, relayID string, opts ...RelayOption) *Relay {
	r := &Relay{
		log:        log,
		store:      store,
		dispatch:   dispatch,
		relayID:    relayID,
		batchSize:  100,
		interval:   500 * time.Millisecond,
		lease:      5 * time.Second,
		maxRetries: 10,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			// a full batch means more may be waiting
			for {
				n, err := r.flush(ctx)
				if err != nil {
					r.log.Error("relay flush failed", "relay_id", r.relayID, "err", err)
					break
				}
				if n < r.batchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// flush handles one batch and reports how many events it claimed.
func (r *Relay) flush(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	failed := r.dispatch.DispatchBatch(ctx, events)
	sent := make([]int64, 0, len(events))
	for _, e := range events {
		ferr, ok := failed[e.ID]
		if !ok {
			sent = append(sent, e.ID)
			continue
		}
		if r.maxRetries > 0 && e.RetryCount+1 >= r.maxRetries {
			r.log.Warn("outbox event dead-lettered", "event_id", e.ID, "aggregate_id", e.AggregateID, "attempts", e.RetryCount+1, "err", ferr)
			err = r.store.MarkDead(ctx, e.ID, ferr.Error())
		} else {
			err = r.store.MarkFailed(ctx, e.ID, ferr.Error())
		}
		if err != nil {
			r.log.Error("relay mark failed", "event_id", e.ID, "err", err)
		}
	}
	if len(sent) > 0 {
		if err := r.store.MarkSent(ctx, sent); err != nil {
			return len(events), err
		}
	}
	return len(events), nil
}
