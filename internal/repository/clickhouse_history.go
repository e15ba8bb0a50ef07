package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/cablesync/internal/model"
	"github.com/jmoiron/sqlx"
)

// HistoryRepository stores and lists status changes in ClickHouse.
type HistoryRepository interface {
	InsertBatch(ctx context.Context, rows []model.StatusChange) error
	ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]model.StatusChange, error)
}

type chHistoryRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewHistoryRepository(ch *sqlx.DB) HistoryRepository {
	return &chHistoryRepository{ch: ch}
}

// InsertBatch sends rows as one block; the ReplacingMergeTree on event_id
// collapses redelivered events.
func (r *chHistoryRepository) InsertBatch(ctx context.Context, rows []model.StatusChange) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO cablesync.customer_status_history
		    (event_id, customer_id, from_status, to_status, actor, subscription_id, deleted, at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, rw := range rows {
		if _, err := stmt.ExecContext(ctx,
			rw.EventID, rw.CustomerID, rw.FromStatus, rw.ToStatus, rw.Actor, rw.SubscriptionID, rw.Deleted, rw.At,
		); err != nil {
			return fmt.Errorf("append %s: %w", rw.EventID, err)
		}
	}

	return tx.Commit()
}

func (r *chHistoryRepository) ListByCustomer(ctx context.Context, customerID string, limit, offset int) ([]model.StatusChange, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
		SELECT event_id, customer_id, from_status, to_status, actor, subscription_id, deleted, at
		FROM cablesync.customer_status_history FINAL
		WHERE customer_id = ?
		ORDER BY at DESC
		LIMIT ? OFFSET ?
	`

	rows := []model.StatusChange{}
	if err := r.ch.SelectContext(ctx, &rows, q, customerID, limit, offset); err != nil {
		return nil, err
	}
	return rows, nil
}
