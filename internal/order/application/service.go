package application

import (
	"context"
	"fmt"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

// Service is the surface the HTTP layer talks to. It resolves who may see or
// touch an order and hands the rest to the coordinator and scheduler.
type Service struct {
	store     OrderStore
	checkout  *CheckoutCoordinator
	scheduler *Scheduler
	log       NotificationLog
}

func NewService(store OrderStore, checkout *CheckoutCoordinator, scheduler *Scheduler, log NotificationLog) *Service {
	return &Service{store: store, checkout: checkout, scheduler: scheduler, log: log}
}

// Checkout creates an order for actor. With no items the actor's cart is used.
func (s *Service) Checkout(ctx context.Context, actor domain.Actor, items []domain.CartItem) (domain.Order, error) {
	if len(items) == 0 {
		return s.checkout.CheckoutCart(ctx, actor.ID)
	}
	return s.checkout.Checkout(ctx, actor.ID, items)
}

func (s *Service) GetOrder(ctx context.Context, actor domain.Actor, id string) (domain.Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.CanView(o) {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrForbidden)
	}
	return o, nil
}

// ListOrders pins non-admins to their own orders. An admin with an empty
// owner filter sees everything.
func (s *Service) ListOrders(ctx context.Context, actor domain.Actor, f domain.ListFilter) ([]domain.Order, error) {
	if !actor.Admin {
		if f.OwnerID != "" && f.OwnerID != actor.ID {
			return nil, fmt.Errorf("list orders of %s: %w", f.OwnerID, domain.ErrForbidden)
		}
		f.OwnerID = actor.ID
	}
	return s.store.List(ctx, f)
}

func (s *Service) Cancel(ctx context.Context, actor domain.Actor, id string) (domain.Order, error) {
	return s.scheduler.Cancel(ctx, id, actor)
}

func (s *Service) SetStatus(ctx context.Context, actor domain.Actor, id string, status domain.Status) (domain.Order, error) {
	return s.scheduler.SetStatus(ctx, id, status, actor)
}

func (s *Service) Statuses() []domain.Status {
	out := make([]domain.Status, len(domain.Statuses))
	copy(out, domain.Statuses)
	return out
}

// Notifications returns the delivery records for an order the actor can see.
func (s *Service) Notifications(ctx context.Context, actor domain.Actor, id string) ([]domain.NotificationRecord, error) {
	if _, err := s.GetOrder(ctx, actor, id); err != nil {
		return nil, err
	}
	if s.log == nil {
		return nil, nil
	}
	return s.log.ForOrder(id), nil
}
