package application

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

// StockValidator checks every reservation against the catalog and returns the
// current product data for each one, in reservation order.
type StockValidator struct {
	catalog Catalog
}

func NewStockValidator(catalog Catalog) *StockValidator {
	return &StockValidator{catalog: catalog}
}

func (v *StockValidator) Validate(ctx context.Context, reservations []domain.StockReservation) ([]Product, error) {
	products := make([]Product, len(reservations))
	g, gctx := errgroup.WithContext(ctx)
	for i := range reservations {
		r := &reservations[i]
		g.Go(func() error {
			p, err := v.catalog.GetProduct(gctx, r.ProductID)
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.InsufficientStockError{ProductID: r.ProductID, Requested: r.Quantity}
			}
			if err != nil {
				return fmt.Errorf("product %s: %w", r.ProductID, err)
			}
			if p.AvailableQuantity < r.Quantity {
				return &domain.InsufficientStockError{ProductID: r.ProductID, Requested: r.Quantity, Available: p.AvailableQuantity}
			}
			r.Validated = true
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return products, nil
}
