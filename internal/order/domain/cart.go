package domain

import (
	"fmt"
	"math"
)

// CartItem is one line of a cart snapshot.
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Reservations folds the cart into one stock reservation per product,
// keeping the order in which products first appear.
func Reservations(items []CartItem) ([]StockReservation, error) {
	if len(items) == 0 {
		return nil, ErrInvalidCart
	}
	idx := make(map[string]int, len(items))
	out := make([]StockReservation, 0, len(items))
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return nil, ErrInvalidCart
		}
		if i, ok := idx[it.ProductID]; ok {
			if it.Quantity > math.MaxInt-out[i].Quantity {
				return nil, fmt.Errorf("quantity of %s overflows: %w", it.ProductID, ErrInvalidCart)
			}
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, StockReservation{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out, nil
}
