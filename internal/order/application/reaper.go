package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/pkg/clock"
	"github.com/dmehra2102/orderflow/pkg/metrics"
)

// Reaper deletes terminal orders once they have sat in their final status for
// the retention period. Each terminal order gets a one-shot timer; Run adds a
// periodic sweep for anything a timer missed, such as orders restored from a
// snapshot after a restart.
type Reaper struct {
	log       *slog.Logger
	store     OrderStore
	clock     clock.Clock
	retention time.Duration
	interval  time.Duration
	metrics   *metrics.Lifecycle
	onReap    []func(orderID string)

	mu      sync.Mutex
	timers  map[string]clock.Timer
	stopped bool
}

func NewReaper(log *slog.Logger, store OrderStore, clk clock.Clock, retention, interval time.Duration, m *metrics.Lifecycle) *Reaper {
	return &Reaper{
		log:       log,
		store:     store,
		clock:     clk,
		retention: retention,
		interval:  interval,
		metrics:   m,
		timers:    make(map[string]clock.Timer),
	}
}

// OnReap registers f to run after an order is deleted. Call before Run.
func (r *Reaper) OnReap(f func(orderID string)) {
	r.onReap = append(r.onReap, f)
}

func (r *Reaper) Schedule(o domain.Order) {
	if !o.Status.IsTerminal() {
		return
	}
	d := o.UpdatedAt.Add(r.retention).Sub(r.clock.Now())
	if d < 0 {
		d = 0
	}
	id := o.ID

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if t, ok := r.timers[id]; ok {
		t.Stop()
	}
	r.timers[id] = r.clock.AfterFunc(d, func() { r.expire(id) })
}

func (r *Reaper) Run(ctx context.Context) error {
	if r.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := r.Sweep(ctx); err != nil {
				r.log.Error("reaper sweep failed", "err", err)
			} else if n > 0 {
				r.log.Info("reaper sweep", "reaped", n)
			}
		}
	}
}

// Sweep reaps every expired terminal order and returns how many were deleted.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	orders, err := r.store.List(ctx, domain.ListFilter{})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range orders {
		if !o.Status.IsTerminal() {
			continue
		}
		ok, err := r.reap(ctx, o.ID)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}

func (r *Reaper) expire(id string) {
	r.mu.Lock()
	delete(r.timers, id)
	r.mu.Unlock()

	if _, err := r.reap(context.Background(), id); err != nil {
		r.log.Error("reap failed", "order_id", id, "err", err)
	}
}

func (r *Reaper) reap(ctx context.Context, id string) (bool, error) {
	o, err := r.store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !o.Status.IsTerminal() || r.clock.Now().Before(o.UpdatedAt.Add(r.retention)) {
		return false, nil
	}
	if err := r.store.Delete(ctx, id, o.Version); err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	r.metrics.Reaped.Inc()
	r.log.Info("order reaped", "order_id", id, "status", o.Status)
	for _, f := range r.onReap {
		f(id)
	}
	return true, nil
}
