package http

import (
	"time"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

type checkoutReq struct {
	Items []domain.CartItem `json:"items"`
}

type statusReq struct {
	Status string `json:"status"`
}

type orderItemResp struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal"`
}

type orderResp struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Status    domain.Status   `json:"status"`
	Total     string          `json:"total"`
	Items     []orderItemResp `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Version   int64           `json:"version"`
}

func toOrderResp(o domain.Order) orderResp {
	items := make([]orderItemResp, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResp{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal().StringFixed(2),
		})
	}
	return orderResp{
		ID:        o.ID,
		OwnerID:   o.OwnerID,
		Status:    o.Status,
		Total:     o.Total.StringFixed(2),
		Items:     items,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
		Version:   o.Version,
	}
}

type listResp struct {
	Orders []orderResp `json:"orders"`
	Offset int         `json:"offset"`
	Limit  int         `json:"limit"`
}

type errorResp struct {
	Error     string `json:"error"`
	ProductID string `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}
