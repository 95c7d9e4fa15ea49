package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusProcessing Status = "PROCESSING"
	StatusShipping   Status = "SHIPPING"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusCreated, StatusProcessing, StatusShipping, StatusDelivered, StatusCancelled}

func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Next returns the status the automatic lifecycle moves to from s.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusCreated:
		return StatusProcessing, true
	case StatusProcessing:
		return StatusShipping, true
	case StatusShipping:
		return StatusDelivered, true
	default:
		return "", false
	}
}

// CanTransition reports whether from→to is an edge of the lifecycle.
// Every non-terminal status may move to its successor or to CANCELLED.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	next, ok := from.Next()
	return ok && next == to
}

type Order struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Items     []OrderItem     `json:"items"`
	Total     decimal.Decimal `json:"total"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Version   int64           `json:"version"`
}

// OrderItem carries the product name and price as they were at checkout.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func NewOrder(id, owner string, items []OrderItem, now time.Time) (Order, error) {
	if len(items) == 0 {
		return Order{}, ErrInvalidCart
	}
	total := decimal.Zero
	for _, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return Order{}, ErrInvalidCart
		}
		total = total.Add(item.Subtotal())
	}
	return Order{
		ID:        id,
		OwnerID:   owner,
		Items:     append([]OrderItem(nil), items...),
		Total:     total,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   0,
	}, nil
}

// Clone returns a copy that shares no mutable state with o.
func (o Order) Clone() Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	return o
}

// ListFilter selects orders for listing. An empty OwnerID matches every owner.
type ListFilter struct {
	OwnerID string
	Offset  int
	Limit   int
}
