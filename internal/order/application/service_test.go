package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

type staticLog map[string][]domain.NotificationRecord

func (l staticLog) ForOrder(id string) []domain.NotificationRecord { return l[id] }

func TestService_CheckoutUsesCartWhenNoItemsGiven(t *testing.T) {
	h := newHarness(t)
	h.cart.items["alice"] = []domain.CartItem{{ProductID: "P1", Quantity: 1}}

	o, err := h.service.Checkout(context.Background(), owner, nil)
	require.NoError(t, err)
	assert.Equal(t, "10.00", o.Total.StringFixed(2))
	assert.Equal(t, []string{"alice"}, h.cart.Cleared())
}

func TestService_GetOrderVisibility(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	o := h.place(t, "alice")

	_, err := h.service.GetOrder(ctx, owner, o.ID)
	assert.NoError(t, err)
	_, err = h.service.GetOrder(ctx, admin, o.ID)
	assert.NoError(t, err)
	_, err = h.service.GetOrder(ctx, domain.Actor{ID: "bob"}, o.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = h.service.GetOrder(ctx, owner, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_ListOrdersScopesNonAdmins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.place(t, "alice")
	h.place(t, "alice")
	h.place(t, "bob")

	mine, err := h.service.ListOrders(ctx, owner, domain.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	_, err = h.service.ListOrders(ctx, owner, domain.ListFilter{OwnerID: "bob"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	all, err := h.service.ListOrders(ctx, admin, domain.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	bobs, err := h.service.ListOrders(ctx, admin, domain.ListFilter{OwnerID: "bob"})
	require.NoError(t, err)
	assert.Len(t, bobs, 1)
}

func TestService_Notifications(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	o := h.place(t, "alice")
	h.service.log = staticLog{o.ID: {{IdempotencyKey: domain.IdempotencyKey(o.ID, domain.StatusCreated), OrderID: o.ID, Status: domain.StatusCreated, Attempts: 1}}}

	recs, err := h.service.Notifications(ctx, owner, o.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "order:"+o.ID+":CREATED", recs[0].IdempotencyKey)

	_, err = h.service.Notifications(ctx, domain.Actor{ID: "bob"}, o.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestService_StatusesIsACopy(t *testing.T) {
	h := newHarness(t)
	s := h.service.Statuses()
	require.Len(t, s, 5)
	s[0] = "X"
	assert.Equal(t, domain.StatusCreated, h.service.Statuses()[0])
}
