package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/pkg/clock"
	"github.com/dmehra2102/orderflow/pkg/metrics"
)

// CheckoutCoordinator runs the checkout saga: validate stock for every line,
// create the order, start its lifecycle, then clear the cart. Nothing is
// written before every stock check has passed, so a failed checkout needs no
// compensation. Clearing the cart is best effort and happens after the order
// exists; a failure there leaves the order in place.
type CheckoutCoordinator struct {
	log       *slog.Logger
	store     OrderStore
	stock     *StockValidator
	cart      Cart
	lifecycle Lifecycle
	clock     clock.Clock
	metrics   *metrics.Lifecycle
	newID     func() string
}

func NewCheckoutCoordinator(log *slog.Logger, store OrderStore, stock *StockValidator, cart Cart, lifecycle Lifecycle, clk clock.Clock, m *metrics.Lifecycle) *CheckoutCoordinator {
	return &CheckoutCoordinator{
		log:       log,
		store:     store,
		stock:     stock,
		cart:      cart,
		lifecycle: lifecycle,
		clock:     clk,
		metrics:   m,
		newID:     uuid.NewString,
	}
}

// CheckoutCart checks out whatever is in the owner's cart right now.
func (c *CheckoutCoordinator) CheckoutCart(ctx context.Context, ownerID string) (domain.Order, error) {
	items, err := c.cart.Snapshot(ctx, ownerID)
	if err != nil {
		c.metrics.Checkouts.WithLabelValues(resultLabel(err)).Inc()
		return domain.Order{}, fmt.Errorf("cart snapshot: %w", err)
	}
	return c.Checkout(ctx, ownerID, items)
}

func (c *CheckoutCoordinator) Checkout(ctx context.Context, ownerID string, items []domain.CartItem) (domain.Order, error) {
	o, err := c.checkout(ctx, ownerID, items)
	c.metrics.Checkouts.WithLabelValues(resultLabel(err)).Inc()
	return o, err
}

func (c *CheckoutCoordinator) checkout(ctx context.Context, ownerID string, items []domain.CartItem) (domain.Order, error) {
	reservations, err := domain.Reservations(items)
	if err != nil {
		return domain.Order{}, err
	}

	products, err := c.stock.Validate(ctx, reservations)
	if err != nil {
		c.log.Info("checkout aborted", "owner_id", ownerID, "err", err)
		return domain.Order{}, err
	}
	byID := make(map[string]Product, len(products))
	for i, r := range reservations {
		byID[r.ProductID] = products[i]
	}

	lines := make([]domain.OrderItem, 0, len(items))
	for _, it := range items {
		p := byID[it.ProductID]
		lines = append(lines, domain.OrderItem{
			ProductID: it.ProductID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
		})
	}

	o, err := domain.NewOrder(c.newID(), ownerID, lines, c.clock.Now())
	if err != nil {
		return domain.Order{}, err
	}
	if err := c.store.Create(ctx, o); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	c.log.Info("order created", "order_id", o.ID, "owner_id", ownerID, "total", o.Total.StringFixed(2))

	c.lifecycle.Start(ctx, o)

	if err := c.cart.Clear(ctx, ownerID); err != nil {
		c.metrics.CartClearFailures.Inc()
		c.log.Warn("cart clear failed", "order_id", o.ID, "owner_id", ownerID, "err", err)
	}
	return o, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrInvalidCart):
		return "invalid_cart"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "error"
	}
}
