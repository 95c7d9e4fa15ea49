package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

// SnapshotRepository persists the whole live order set. Each Save replaces
// the previous snapshot in one transaction.
type SnapshotRepository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewSnapshotRepository(log *slog.Logger, pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{log: log, pool: pool}
}

func (r *SnapshotRepository) Save(ctx context.Context, orders []domain.Order) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM order_snapshots`); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, o := range orders {
		items, err := json.Marshal(o.Items)
		if err != nil {
			return fmt.Errorf("encode items of %s: %w", o.ID, err)
		}
		batch.Queue(`INSERT INTO order_snapshots (id, owner_id, status, total, items, created_at, updated_at, version)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			o.ID, o.OwnerID, string(o.Status), o.Total.String(), items, o.CreatedAt, o.UpdatedAt, o.Version)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	r.log.Debug("snapshot saved", "orders", len(orders))
	return nil
}

func (r *SnapshotRepository) Load(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, status, total, items, created_at, updated_at, version
		FROM order_snapshots
		ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var (
			o      domain.Order
			status string
			total  string
			items  []byte
		)
		if err := rows.Scan(&o.ID, &o.OwnerID, &status, &total, &items, &o.CreatedAt, &o.UpdatedAt, &o.Version); err != nil {
			return nil, err
		}
		s, ok := domain.ParseStatus(status)
		if !ok {
			return nil, fmt.Errorf("order %s: unknown status %q", o.ID, status)
		}
		o.Status = s
		if o.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("order %s total: %w", o.ID, err)
		}
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("order %s items: %w", o.ID, err)
		}
		o.CreatedAt = o.CreatedAt.UTC()
		o.UpdatedAt = o.UpdatedAt.UTC()
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
