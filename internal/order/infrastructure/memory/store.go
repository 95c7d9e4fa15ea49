package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

// Store is the in-process order store. Every status write and delete is a
// compare-and-swap on the order's version.
type Store struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewStore() *Store {
	return &Store{orders: make(map[string]domain.Order)}
}

func (s *Store) Create(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %s: %w", o.ID, domain.ErrAlreadyExists)
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return o.Clone(), nil
}

func (s *Store) List(_ context.Context, f domain.ListFilter) ([]domain.Order, error) {
	s.mu.RLock()
	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if f.OwnerID != "" && o.OwnerID != f.OwnerID {
			continue
		}
		out = append(out, o.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []domain.Order{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

// UpdateStatus writes status if the stored version still equals expected and
// the move is a lifecycle edge. The returned order carries version expected+1.
func (s *Store) UpdateStatus(_ context.Context, id string, expected int64, status domain.Status, at time.Time) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if o.Version != expected {
		return domain.Order{}, fmt.Errorf("order %s at version %d, expected %d: %w", id, o.Version, expected, domain.ErrConflict)
	}
	if !domain.CanTransition(o.Status, status) {
		return domain.Order{}, fmt.Errorf("order %s %s -> %s: %w", id, o.Status, status, domain.ErrInvalidTransition)
	}
	o.Status = status
	o.UpdatedAt = at
	o.Version++
	s.orders[id] = o
	return o.Clone(), nil
}

func (s *Store) Delete(_ context.Context, id string, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if o.Version != expected {
		return fmt.Errorf("order %s at version %d, expected %d: %w", id, o.Version, expected, domain.ErrConflict)
	}
	delete(s.orders, id)
	return nil
}

// Snapshot copies every order, for persistence.
func (s *Store) Snapshot() []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.Clone())
	}
	return out
}

// Restore replaces the store's content with orders.
func (s *Store) Restore(orders []domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = make(map[string]domain.Order, len(orders))
	for _, o := range orders {
		s.orders[o.ID] = o.Clone()
	}
}
