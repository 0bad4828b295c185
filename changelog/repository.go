// Package changelog persists the append-only audit trail of quantity
// mutations. Rows are never updated or deleted; consumers needing guaranteed
// delivery read this log instead of the best-effort event channel.
package changelog

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
	"gofalre.io/inventory/models/enum"
)

var _ Repository = (*repository)(nil)

type Repository interface {
	Append(ctx context.Context, tx pgx.Tx, entry *models.InventoryUpdate) error
	ListByProduct(ctx context.Context, tx pgx.Tx, productID string, limit, offset uint64) ([]*models.InventoryUpdate, error)
	// SumChanges folds every applied delta for a product; initial quantity
	// plus this sum must reconstruct the current quantity.
	SumChanges(ctx context.Context, tx pgx.Tx, productID string) (int64, error)
}

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		logger: logger,
	}
}

const changeColumns = "id, product_id, quantity_change, reason, new_quantity, user_id, notes, created_at"

func (r *repository) querier(tx pgx.Tx) driver.Querier {
	if tx != nil {
		return tx
	}
	return r.conn
}

func (r *repository) Append(ctx context.Context, tx pgx.Tx, entry *models.InventoryUpdate) error {
	err := r.querier(tx).QueryRow(ctx,
		`INSERT INTO inventory_changes (product_id, quantity_change, reason, new_quantity, user_id, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		entry.ProductID, entry.QuantityChange, string(entry.Reason), entry.NewQuantity,
		entry.UserID, entry.Notes,
		pgtype.Timestamptz{Time: entry.CreatedAt, Valid: true},
	).Scan(&entry.ID)
	if err != nil {
		r.logger.Error("failed to append change log entry",
			zap.String("product_id", entry.ProductID),
			zap.Int64("quantity_change", entry.QuantityChange),
			zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) ListByProduct(ctx context.Context, tx pgx.Tx, productID string, limit, offset uint64) ([]*models.InventoryUpdate, error) {
	rows, err := r.querier(tx).Query(ctx,
		"SELECT "+changeColumns+` FROM inventory_changes
		 WHERE product_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`,
		productID, int64(limit), int64(offset))
	if err != nil {
		r.logger.Error("failed to list change log entries", zap.String("product_id", productID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var entries []*models.InventoryUpdate
	for rows.Next() {
		var e models.InventoryUpdate
		var reason string
		if err = rows.Scan(&e.ID, &e.ProductID, &e.QuantityChange, &reason,
			&e.NewQuantity, &e.UserID, &e.Notes, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reason = enum.UpdateReason(reason)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (r *repository) SumChanges(ctx context.Context, tx pgx.Tx, productID string) (int64, error) {
	var sum int64
	err := r.querier(tx).QueryRow(ctx,
		"SELECT COALESCE(SUM(quantity_change), 0) FROM inventory_changes WHERE product_id = $1",
		productID).Scan(&sum)
	if err != nil {
		r.logger.Error("failed to sum change log entries", zap.String("product_id", productID), zap.Error(err))
		return 0, err
	}
	return sum, nil
}
