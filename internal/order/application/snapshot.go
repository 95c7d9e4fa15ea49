package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

// SnapshotSource is the in-memory store's view used for persistence.
type SnapshotSource interface {
	Snapshot() []domain.Order
	Restore(orders []domain.Order)
}

// Snapshotter periodically copies the live order set to a repository and
// reloads it on startup.
type Snapshotter struct {
	log      *slog.Logger
	source   SnapshotSource
	repo     SnapshotRepository
	interval time.Duration
}

func NewSnapshotter(log *slog.Logger, source SnapshotSource, repo SnapshotRepository, interval time.Duration) *Snapshotter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Snapshotter{log: log, source: source, repo: repo, interval: interval}
}

// Restore loads the last snapshot into the source and returns what it loaded
// so the caller can re-arm lifecycle timers.
func (s *Snapshotter) Restore(ctx context.Context) ([]domain.Order, error) {
	orders, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.source.Restore(orders)
	s.log.Info("orders restored", "count", len(orders))
	return orders, nil
}

func (s *Snapshotter) Save(ctx context.Context) error {
	return s.repo.Save(ctx, s.source.Snapshot())
}

// Run saves on every tick and once more on the way out.
func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			err := s.Save(final)
			cancel()
			if err != nil {
				s.log.Error("final snapshot failed", "err", err)
			}
			return nil
		case <-ticker.C:
			if err := s.Save(ctx); err != nil {
				s.log.Error("snapshot failed", "err", err)
			}
		}
	}
}
