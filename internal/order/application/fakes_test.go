package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/internal/order/infrastructure/memory"
	"github.com/dmehra2102/orderflow/pkg/clock"
	"github.com/dmehra2102/orderflow/pkg/logging"
	"github.com/dmehra2102/orderflow/pkg/metrics"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]Product
	err      error
}

func (c *fakeCatalog) GetProduct(_ context.Context, id string) (Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return Product{}, c.err
	}
	p, ok := c.products[id]
	if !ok {
		return Product{}, domain.ErrNotFound
	}
	return p, nil
}

type fakeCart struct {
	mu       sync.Mutex
	items    map[string][]domain.CartItem
	snapErr  error
	clearErr error
	cleared  []string
}

func (c *fakeCart) Snapshot(_ context.Context, owner string) ([]domain.CartItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapErr != nil {
		return nil, c.snapErr
	}
	return append([]domain.CartItem(nil), c.items[owner]...), nil
}

func (c *fakeCart) Clear(_ context.Context, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clearErr != nil {
		return c.clearErr
	}
	c.cleared = append(c.cleared, owner)
	delete(c.items, owner)
	return nil
}

func (c *fakeCart) Cleared() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cleared...)
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []domain.Notification
}

func (r *recordingNotifier) Enqueue(n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordingNotifier) Statuses(orderID string) []domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Status
	for _, n := range r.got {
		if n.OrderID == orderID {
			out = append(out, n.Status)
		}
	}
	return out
}

type harness struct {
	clock     *clock.Fake
	store     *memory.Store
	catalog   *fakeCatalog
	cart      *fakeCart
	notifier  *recordingNotifier
	metrics   *metrics.Lifecycle
	reaper    *Reaper
	scheduler *Scheduler
	checkout  *CheckoutCoordinator
	service   *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, nil)
}

// newHarnessWithStore lets a test wrap the memory store. wrap may be nil.
func newHarnessWithStore(t *testing.T, wrap func(OrderStore) OrderStore) *harness {
	t.Helper()
	h := &harness{
		clock: clock.NewFake(t0),
		store: memory.NewStore(),
		catalog: &fakeCatalog{products: map[string]Product{
			"P1": {ID: "P1", Name: "Mug", Price: decimal.RequireFromString("10.00"), AvailableQuantity: 10},
			"P2": {ID: "P2", Name: "Tea", Price: decimal.RequireFromString("5.00"), AvailableQuantity: 3},
			"P3": {ID: "P3", Name: "Pot", Price: decimal.RequireFromString("30.00"), AvailableQuantity: 1},
		}},
		cart:     &fakeCart{items: map[string][]domain.CartItem{}},
		notifier: &recordingNotifier{},
		metrics:  metrics.NewLifecycle(prometheus.NewRegistry()),
	}
	var store OrderStore = h.store
	if wrap != nil {
		store = wrap(store)
	}
	log := logging.Discard()
	cfg := LifecycleConfig{
		CreatedToProcessing:  5 * time.Second,
		ProcessingToShipping: 5 * time.Second,
		ShippingMin:          60 * time.Second,
		ShippingMax:          300 * time.Second,
	}
	h.reaper = NewReaper(log, store, h.clock, 300*time.Second, 30*time.Second, h.metrics)
	h.scheduler = NewScheduler(log, store, h.notifier, h.reaper, h.clock, cfg, h.metrics,
		WithJitter(func(min, _ time.Duration) time.Duration { return min }))
	h.checkout = NewCheckoutCoordinator(log, store, NewStockValidator(h.catalog), h.cart, h.scheduler, h.clock, h.metrics)
	h.service = NewService(store, h.checkout, h.scheduler, nil)
	t.Cleanup(func() {
		h.scheduler.Stop()
		h.reaper.Stop()
	})
	return h
}

// place checks out P1x2 + P2x1 for owner and returns the order.
func (h *harness) place(t *testing.T, owner string) domain.Order {
	t.Helper()
	o, err := h.checkout.Checkout(context.Background(), owner, []domain.CartItem{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P2", Quantity: 1},
	})
	require.NoError(t, err)
	return o
}

func (h *harness) status(t *testing.T, id string) domain.Order {
	t.Helper()
	o, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

// interleavingStore runs before() ahead of each UpdateStatus and after() once
// a write succeeds, simulating a competing writer that lands in between.
type interleavingStore struct {
	OrderStore
	before func()
	after  func(updated domain.Order)
}

func (s *interleavingStore) UpdateStatus(ctx context.Context, id string, expected int64, status domain.Status, at time.Time) (domain.Order, error) {
	if s.before != nil {
		s.before()
	}
	o, err := s.OrderStore.UpdateStatus(ctx, id, expected, status, at)
	if err == nil && s.after != nil {
		s.after(o)
	}
	return o, err
}
