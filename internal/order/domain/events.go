package domain

import "time"

// Notification is the point-in-time view of a status change sent to the owner service.
type Notification struct {
	OrderID        string    `json:"order_id"`
	OwnerID        string    `json:"owner_id"`
	Status         Status    `json:"status"`
	IdempotencyKey string    `json:"idempotency_key"`
	OccurredAt     time.Time `json:"-"`
	Traceparent    string    `json:"-"`
}

func NewNotification(o Order) Notification {
	return Notification{
		OrderID:        o.ID,
		OwnerID:        o.OwnerID,
		Status:         o.Status,
		IdempotencyKey: IdempotencyKey(o.ID, o.Status),
		OccurredAt:     o.UpdatedAt,
	}
}

func IdempotencyKey(orderID string, status Status) string {
	return "order:" + orderID + ":" + string(status)
}

// NotificationRecord tracks delivery of one (order, status) notification.
type NotificationRecord struct {
	IdempotencyKey string     `json:"idempotency_key"`
	OrderID        string     `json:"order_id"`
	Status         Status     `json:"status"`
	Attempts       int        `json:"attempts"`
	LastError      string     `json:"last_error,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
}

// OrderStatusChanged is published to the event stream on every status write.
type OrderStatusChanged struct {
	OrderID        string    `json:"order_id"`
	OwnerID        string    `json:"owner_id"`
	Status         Status    `json:"status"`
	IdempotencyKey string    `json:"idempotency_key"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// StockReservation is the saga-scoped stock check for one product.
type StockReservation struct {
	ProductID string
	Quantity  int
	Validated bool
}
