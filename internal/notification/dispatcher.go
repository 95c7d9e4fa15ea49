package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/pkg/metrics"
	"github.com/dmehra2102/orderflow/pkg/tracing"
)

// KeyStore remembers idempotency keys the owner service has acknowledged.
type KeyStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RatePerSecond  float64
	Burst          int
}

var errRejected = errors.New("notification rejected")

// Dispatcher delivers status notifications to the owner service at least
// once. Receivers deduplicate on the Idempotency-Key header.
type Dispatcher struct {
	log     *slog.Logger
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	keys    KeyStore
	records *Records
	metrics *metrics.Lifecycle
	tracer  trace.Tracer
	sleep   func(ctx context.Context, d time.Duration) error

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(log *slog.Logger, cfg Config, keys KeyStore, records *Records, m *metrics.Lifecycle) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		log:     log,
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		keys:    keys,
		records: records,
		metrics: m,
		tracer:  otel.Tracer("order-notify"),
		sleep:   sleepCtx,
		base:    base,
		cancel:  cancel,
	}
}

// Enqueue delivers n on its own goroutine.
func (d *Dispatcher) Enqueue(n domain.Notification) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.Notify(d.base, n); err != nil {
			d.log.Warn("notification dropped", "order_id", n.OrderID, "status", n.Status, "err", err)
		}
	}()
}

// Close waits for in-flight deliveries. When ctx expires first, pending
// retries are abandoned.
func (d *Dispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) Notify(ctx context.Context, n domain.Notification) error {
	if d.keys != nil {
		seen, err := d.keys.Seen(ctx, n.IdempotencyKey)
		if err != nil {
			d.log.Warn("idempotency lookup failed", "key", n.IdempotencyKey, "err", err)
		} else if seen {
			d.metrics.Notifications.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	var lastErr error
	backoff := d.cfg.InitialBackoff
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}
		d.metrics.NotificationAttempts.Inc()
		err := d.send(ctx, n)
		d.records.attempt(n, err)
		if err == nil {
			d.delivered(ctx, n, attempt)
			return nil
		}
		lastErr = err
		if errors.Is(err, errRejected) || attempt == d.cfg.MaxAttempts {
			break
		}
		d.log.Debug("notification retry", "order_id", n.OrderID, "status", n.Status, "attempt", attempt, "backoff", backoff, "err", err)
		if err := d.sleep(ctx, backoff); err != nil {
			lastErr = err
			break
		}
		backoff *= 2
		if d.cfg.MaxBackoff > 0 && backoff > d.cfg.MaxBackoff {
			backoff = d.cfg.MaxBackoff
		}
	}

	result := "failed"
	if errors.Is(lastErr, errRejected) {
		result = "rejected"
	}
	d.metrics.Notifications.WithLabelValues(result).Inc()
	d.log.Error("notification not delivered", "order_id", n.OrderID, "status", n.Status, "key", n.IdempotencyKey, "err", lastErr)
	return fmt.Errorf("notify %s: %w: %v", n.IdempotencyKey, domain.ErrUpstreamUnavailable, lastErr)
}

func (d *Dispatcher) delivered(ctx context.Context, n domain.Notification, attempts int) {
	d.metrics.Notifications.WithLabelValues("delivered").Inc()
	if d.keys != nil {
		if err := d.keys.Mark(ctx, n.IdempotencyKey); err != nil {
			d.log.Warn("idempotency mark failed", "key", n.IdempotencyKey, "err", err)
		}
	}
	d.log.Info("notification delivered", "order_id", n.OrderID, "status", n.Status, "attempts", attempts)
}

func (d *Dispatcher) send(ctx context.Context, n domain.Notification) error {
	ctx, span := d.tracer.Start(tracing.WithTraceparent(ctx, n.Traceparent), "NotifyOwner", trace.WithAttributes(
		attribute.String("order.id", n.OrderID),
		attribute.String("order.status", string(n.Status)),
	))
	defer span.End()

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("%w: %v", errRejected, err)
	}
	url := strings.TrimRight(d.cfg.BaseURL, "/") + "/notify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", errRejected, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.IdempotencyKey)
	tracing.InjectHTTPHeaders(ctx, req.Header)

	resp, err := d.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("owner service returned %d", resp.StatusCode)
	default:
		return fmt.Errorf("%w: owner service returned %d", errRejected, resp.StatusCode)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
