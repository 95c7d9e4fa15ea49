package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/pkg/clock"
	"github.com/dmehra2102/orderflow/pkg/idempotency"
	"github.com/dmehra2102/orderflow/pkg/logging"
	"github.com/dmehra2102/orderflow/pkg/metrics"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type ownerService struct {
	mu      sync.Mutex
	codes   []int
	calls   atomic.Int32
	bodies  []map[string]string
	headers []http.Header
}

func (s *ownerService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(s.calls.Add(1))
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.bodies = append(s.bodies, body)
	s.headers = append(s.headers, r.Header.Clone())
	code := http.StatusOK
	if n <= len(s.codes) {
		code = s.codes[n-1]
	}
	s.mu.Unlock()
	w.WriteHeader(code)
}

type fixture struct {
	d        *Dispatcher
	owner    *ownerService
	records  *Records
	metrics  *metrics.Lifecycle
	backoffs []time.Duration
}

func newFixture(t *testing.T, codes ...int) *fixture {
	t.Helper()
	owner := &ownerService{codes: codes}
	srv := httptest.NewServer(owner)
	t.Cleanup(srv.Close)

	f := &fixture{
		owner:   owner,
		records: NewRecords(clock.NewFake(t0)),
		metrics: metrics.NewLifecycle(prometheus.NewRegistry()),
	}
	f.d = NewDispatcher(logging.Discard(), Config{
		BaseURL:        srv.URL,
		Timeout:        time.Second,
		MaxAttempts:    4,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     250 * time.Millisecond,
	}, idempotency.NewMemoryStore(time.Hour), f.records, f.metrics)
	f.d.sleep = func(_ context.Context, d time.Duration) error {
		f.backoffs = append(f.backoffs, d)
		return nil
	}
	return f
}

func notification(status domain.Status) domain.Notification {
	return domain.NewNotification(domain.Order{ID: "o-1", OwnerID: "alice", Status: status, UpdatedAt: t0})
}

func TestDispatcher_DeliversPayloadAndKey(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.d.Notify(context.Background(), notification(domain.StatusProcessing)))

	require.Len(t, f.owner.bodies, 1)
	assert.Equal(t, map[string]string{
		"order_id":        "o-1",
		"owner_id":        "alice",
		"status":          "PROCESSING",
		"idempotency_key": "order:o-1:PROCESSING",
	}, f.owner.bodies[0])
	assert.Equal(t, "order:o-1:PROCESSING", f.owner.headers[0].Get("Idempotency-Key"))

	recs := f.records.ForOrder("o-1")
	require.Len(t, recs, 1)
	assert.Equal(t, 1, recs[0].Attempts)
	require.NotNil(t, recs[0].DeliveredAt)
	assert.Equal(t, t0, *recs[0].DeliveredAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Notifications.WithLabelValues("delivered")))
}

func TestDispatcher_RetriesWithBackoff(t *testing.T) {
	f := newFixture(t, http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusBadGateway)

	require.NoError(t, f.d.Notify(context.Background(), notification(domain.StatusShipping)))

	assert.Equal(t, int32(4), f.owner.calls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}, f.backoffs)
	for _, h := range f.owner.headers {
		assert.Equal(t, "order:o-1:SHIPPING", h.Get("Idempotency-Key"), "the key is stable across retries")
	}
	recs := f.records.ForOrder("o-1")
	require.Len(t, recs, 1)
	assert.Equal(t, 4, recs[0].Attempts)
	assert.Empty(t, recs[0].LastError)
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.NotificationAttempts))
}

func TestDispatcher_ExhaustionReportsUpstreamUnavailable(t *testing.T) {
	f := newFixture(t, 500, 500, 500, 500, 500)

	err := f.d.Notify(context.Background(), notification(domain.StatusDelivered))
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	assert.Equal(t, int32(4), f.owner.calls.Load())
	recs := f.records.ForOrder("o-1")
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].DeliveredAt)
	assert.Contains(t, recs[0].LastError, "500")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Notifications.WithLabelValues("failed")))
}

func TestDispatcher_ClientErrorIsNotRetried(t *testing.T) {
	f := newFixture(t, http.StatusBadRequest)

	err := f.d.Notify(context.Background(), notification(domain.StatusCreated))
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Equal(t, int32(1), f.owner.calls.Load())
	assert.Empty(t, f.backoffs)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Notifications.WithLabelValues("rejected")))
}

func TestDispatcher_SkipsAcknowledgedKeys(t *testing.T) {
	f := newFixture(t)
	n := notification(domain.StatusCancelled)

	require.NoError(t, f.d.Notify(context.Background(), n))
	require.NoError(t, f.d.Notify(context.Background(), n))

	assert.Equal(t, int32(1), f.owner.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Notifications.WithLabelValues("duplicate")))
}

func TestDispatcher_EnqueueAndClose(t *testing.T) {
	f := newFixture(t)

	f.d.Enqueue(notification(domain.StatusCreated))
	f.d.Enqueue(notification(domain.StatusProcessing))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.d.Close(ctx))

	assert.Equal(t, int32(2), f.owner.calls.Load())
	assert.Len(t, f.records.ForOrder("o-1"), 2)
}

func TestRecords_Forget(t *testing.T) {
	r := NewRecords(clock.NewFake(t0))
	r.attempt(notification(domain.StatusCreated), nil)
	require.Len(t, r.ForOrder("o-1"), 1)

	r.Forget("o-1")
	assert.Empty(t, r.ForOrder("o-1"))
}
