package notification

import (
	"sync"

	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/pkg/clock"
)

// Records keeps the delivery history of every notification per order.
type Records struct {
	mu      sync.Mutex
	clock   clock.Clock
	byKey   map[string]*domain.NotificationRecord
	byOrder map[string][]string
}

func NewRecords(clk clock.Clock) *Records {
	return &Records{
		clock:   clk,
		byKey:   make(map[string]*domain.NotificationRecord),
		byOrder: make(map[string][]string),
	}
}

func (r *Records) attempt(n domain.Notification, err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byKey[n.IdempotencyKey]
	if !ok {
		rec = &domain.NotificationRecord{IdempotencyKey: n.IdempotencyKey, OrderID: n.OrderID, Status: n.Status}
		r.byKey[n.IdempotencyKey] = rec
		r.byOrder[n.OrderID] = append(r.byOrder[n.OrderID], n.IdempotencyKey)
	}
	rec.Attempts++
	if err != nil {
		rec.LastError = err.Error()
		return
	}
	rec.LastError = ""
	at := r.clock.Now()
	rec.DeliveredAt = &at
}

// ForOrder returns copies of the records for orderID in the order they were first attempted.
func (r *Records) ForOrder(orderID string) []domain.NotificationRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := r.byOrder[orderID]
	out := make([]domain.NotificationRecord, 0, len(keys))
	for _, k := range keys {
		rec := *r.byKey[k]
		if rec.DeliveredAt != nil {
			at := *rec.DeliveredAt
			rec.DeliveredAt = &at
		}
		out = append(out, rec)
	}
	return out
}

// Forget drops the history of a reaped order.
func (r *Records) Forget(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.byOrder[orderID] {
		delete(r.byKey, k)
	}
	delete(r.byOrder, orderID)
}
