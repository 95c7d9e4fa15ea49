package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/pkg/clock"
	"github.com/dmehra2102/orderflow/pkg/metrics"
	"github.com/dmehra2102/orderflow/pkg/tracing"
)

type LifecycleConfig struct {
	CreatedToProcessing  time.Duration
	ProcessingToShipping time.Duration
	ShippingMin          time.Duration
	ShippingMax          time.Duration
}

const (
	// A manual cancel or status change re-reads once after losing a version race.
	manualAttempts = 2
	// Automatic transitions re-read on conflict until they see who won.
	autoAttempts = 3
)

// Scheduler owns one pending automatic transition per active order. The
// store's version check is the only serialization point between a timer and a
// manual call; whoever writes first wins and the other side re-reads.
type Scheduler struct {
	log      *slog.Logger
	store    OrderStore
	notifier Notifier
	reaper   *Reaper
	clock    clock.Clock
	cfg      LifecycleConfig
	metrics  *metrics.Lifecycle
	jitter   func(min, max time.Duration) time.Duration

	mu      sync.Mutex
	seq     uint64
	timers  map[string]pendingTransition
	armed   int
	stopped bool
}

// pendingTransition is the entry for one order. A nil timer marks an order
// that reached a terminal status at version; no arm below it is accepted.
type pendingTransition struct {
	timer   clock.Timer
	seq     uint64
	version int64
}

type SchedulerOption func(*Scheduler)

// WithJitter replaces the uniform draw used for the SHIPPING→DELIVERED delay.
func WithJitter(f func(min, max time.Duration) time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.jitter = f }
}

func NewScheduler(log *slog.Logger, store OrderStore, notifier Notifier, reaper *Reaper, clk clock.Clock, cfg LifecycleConfig, m *metrics.Lifecycle, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		log:      log,
		store:    store,
		notifier: notifier,
		reaper:   reaper,
		clock:    clk,
		cfg:      cfg,
		metrics:  m,
		jitter:   uniform,
		timers:   make(map[string]pendingTransition),
	}
	for _, opt := range opts {
		opt(s)
	}
	if reaper != nil {
		reaper.OnReap(s.forget)
	}
	return s
}

// Start registers a freshly created order.
func (s *Scheduler) Start(ctx context.Context, o domain.Order) {
	s.notify(ctx, o)
	s.arm(o)
}

// Resume re-arms orders loaded from a snapshot. The remaining delay is
// measured from the time the order entered its current status.
func (s *Scheduler) Resume(_ context.Context, orders []domain.Order) {
	now := s.clock.Now()
	for _, o := range orders {
		if o.Status.IsTerminal() {
			s.reaper.Schedule(o)
			continue
		}
		d := s.delay(o.Status) - now.Sub(o.UpdatedAt)
		if d < 0 {
			d = 0
		}
		s.schedule(o, d)
	}
	s.log.Info("lifecycle resumed", "orders", len(orders))
}

func (s *Scheduler) Cancel(ctx context.Context, id string, actor domain.Actor) (domain.Order, error) {
	return s.manualWrite(ctx, id, "cancel", func(o domain.Order) (domain.Status, error) {
		if !domain.Allow(o.Status, actor.RoleFor(o)) {
			return "", fmt.Errorf("cancel order %s in %s: %w", o.ID, o.Status, domain.ErrForbidden)
		}
		return domain.StatusCancelled, nil
	})
}

// SetStatus is the admin override. It skips the cancellation policy but
// still only follows lifecycle edges.
func (s *Scheduler) SetStatus(ctx context.Context, id string, status domain.Status, actor domain.Actor) (domain.Order, error) {
	if !actor.Admin {
		return domain.Order{}, fmt.Errorf("set status of order %s: %w", id, domain.ErrForbidden)
	}
	return s.manualWrite(ctx, id, "admin", func(o domain.Order) (domain.Status, error) {
		if !domain.CanTransition(o.Status, status) {
			return "", fmt.Errorf("order %s %s -> %s: %w", o.ID, o.Status, status, domain.ErrInvalidTransition)
		}
		return status, nil
	})
}

// Stop drops every pending transition. Later calls to arm are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, p := range s.timers {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(s.timers, id)
	}
	s.armed = 0
	s.metrics.ActiveTimers.Set(0)
}

func (s *Scheduler) manualWrite(ctx context.Context, id, trigger string, decide func(domain.Order) (domain.Status, error)) (domain.Order, error) {
	for attempt := 1; attempt <= manualAttempts; attempt++ {
		o, err := s.store.Get(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		to, err := decide(o)
		if err != nil {
			return domain.Order{}, err
		}
		updated, err := s.store.UpdateStatus(ctx, id, o.Version, to, s.clock.Now())
		if errors.Is(err, domain.ErrConflict) {
			s.log.Info("status write lost a version race", "order_id", id, "trigger", trigger, "attempt", attempt)
			continue
		}
		if err != nil {
			return domain.Order{}, err
		}
		s.transitioned(ctx, updated, o.Status, trigger)
		return updated, nil
	}
	return domain.Order{}, fmt.Errorf("order %s changed concurrently: %w", id, domain.ErrConflict)
}

func (s *Scheduler) fire(id string, from domain.Status, seq uint64) {
	if !s.claim(id, seq) {
		return
	}
	next, ok := from.Next()
	if !ok {
		return
	}
	ctx := context.Background()
	for attempt := 0; attempt < autoAttempts; attempt++ {
		o, err := s.store.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				s.log.Error("automatic transition read failed", "order_id", id, "err", err)
			}
			return
		}
		if o.Status != from {
			s.log.Debug("automatic transition skipped", "order_id", id, "expected", from, "status", o.Status)
			return
		}
		updated, err := s.store.UpdateStatus(ctx, id, o.Version, next, s.clock.Now())
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			s.log.Error("automatic transition failed", "order_id", id, "to", next, "err", err)
			return
		}
		s.transitioned(ctx, updated, from, "timer")
		return
	}
}

func (s *Scheduler) transitioned(ctx context.Context, o domain.Order, from domain.Status, trigger string) {
	s.metrics.Transitions.WithLabelValues(string(from), string(o.Status), trigger).Inc()
	s.log.Info("order status changed", "order_id", o.ID, "from", from, "to", o.Status, "version", o.Version, "trigger", trigger)
	s.arm(o)
	s.notify(ctx, o)
}

// arm sets up whatever follows o's current status: the next automatic
// transition, or the reaper once the order is terminal.
func (s *Scheduler) arm(o domain.Order) {
	if o.Status.IsTerminal() {
		s.disarm(o)
		s.reaper.Schedule(o)
		return
	}
	s.schedule(o, s.delay(o.Status))
}

func (s *Scheduler) delay(status domain.Status) time.Duration {
	switch status {
	case domain.StatusCreated:
		return s.cfg.CreatedToProcessing
	case domain.StatusProcessing:
		return s.cfg.ProcessingToShipping
	case domain.StatusShipping:
		return s.jitter(s.cfg.ShippingMin, s.cfg.ShippingMax)
	default:
		return 0
	}
}

func (s *Scheduler) schedule(o domain.Order, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if p, ok := s.timers[o.ID]; ok {
		// The order is already terminal, or a newer write armed its own timer.
		if p.timer == nil || p.version > o.Version {
			return
		}
		p.timer.Stop()
	}
	s.seq++
	seq, id, from := s.seq, o.ID, o.Status
	t := s.clock.AfterFunc(d, func() { s.fire(id, from, seq) })
	s.put(id, pendingTransition{timer: t, seq: seq, version: o.Version})
}

// disarm stops any pending transition of the terminal order o and leaves a
// marker at o's version until the order is reaped.
func (s *Scheduler) disarm(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.timers[o.ID]; ok {
		if p.timer == nil && p.version >= o.Version {
			return
		}
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	s.put(o.ID, pendingTransition{version: o.Version})
}

func (s *Scheduler) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop(id)
}

// claim consumes the pending entry for id if it is still the one armed as seq.
func (s *Scheduler) claim(id string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.timers[id]
	if !ok || p.timer == nil || p.seq != seq {
		return false
	}
	s.drop(id)
	return true
}

// put and drop keep the armed count and gauge in step with timers. Caller holds mu.
func (s *Scheduler) put(id string, p pendingTransition) {
	if old, ok := s.timers[id]; ok && old.timer != nil {
		s.armed--
	}
	if p.timer != nil {
		s.armed++
	}
	s.timers[id] = p
	s.metrics.ActiveTimers.Set(float64(s.armed))
}

func (s *Scheduler) drop(id string) {
	if old, ok := s.timers[id]; ok {
		if old.timer != nil {
			s.armed--
		}
		delete(s.timers, id)
	}
	s.metrics.ActiveTimers.Set(float64(s.armed))
}

// Pending reports whether id has an automatic transition armed.
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers[id].timer != nil
}

func (s *Scheduler) notify(ctx context.Context, o domain.Order) {
	n := domain.NewNotification(o)
	n.Traceparent = tracing.Traceparent(ctx)
	s.notifier.Enqueue(n)
}

func uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}
