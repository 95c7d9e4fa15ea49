package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

type OrderStore interface {
	Create(ctx context.Context, o domain.Order) error
	Get(ctx context.Context, id string) (domain.Order, error)
	List(ctx context.Context, f domain.ListFilter) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, expected int64, status domain.Status, at time.Time) (domain.Order, error)
	Delete(ctx context.Context, id string, expected int64) error
}

type Product struct {
	ID                string
	Name              string
	Price             decimal.Decimal
	AvailableQuantity int
}

type Catalog interface {
	// GetProduct returns domain.ErrNotFound for unknown products and
	// domain.ErrUpstreamUnavailable when the catalog cannot be reached.
	GetProduct(ctx context.Context, productID string) (Product, error)
}

type Cart interface {
	Snapshot(ctx context.Context, ownerID string) ([]domain.CartItem, error)
	Clear(ctx context.Context, ownerID string) error
}

// Notifier accepts status changes for delivery. Enqueue must not block on delivery.
type Notifier interface {
	Enqueue(n domain.Notification)
}

// Notifiers fans a notification out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) Enqueue(n domain.Notification) {
	for _, x := range ns {
		x.Enqueue(n)
	}
}

// Lifecycle is what checkout needs from the scheduler.
type Lifecycle interface {
	Start(ctx context.Context, o domain.Order)
}

type NotificationLog interface {
	ForOrder(orderID string) []domain.NotificationRecord
}

type SnapshotRepository interface {
	Save(ctx context.Context, orders []domain.Order) error
	Load(ctx context.Context) ([]domain.Order, error)
}
