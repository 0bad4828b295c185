package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
)

var (
	// ErrNotFound means no inventory record exists for the product.
	ErrNotFound = errors.New("inventory record not found")

	// ErrInsufficientStock means a guarded mutation would have pushed
	// quantity below zero or reserved above quantity; nothing was changed.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvariant means reserved > quantity was observed, or a release or
	// commit found fewer reserved units than it was asked to return. This
	// indicates a concurrency bug and is never silently corrected.
	ErrInvariant = errors.New("inventory invariant violated")
)

var _ Repository = (*repository)(nil)

type Repository interface {
	Get(ctx context.Context, tx pgx.Tx, productID string) (*models.InventoryRecord, error)
	GetBatch(ctx context.Context, tx pgx.Tx, productIDs []string) ([]*models.InventoryRecord, error)
	CreateIfAbsent(ctx context.Context, tx pgx.Tx, productID, sku string) error
	AddQuantity(ctx context.Context, tx pgx.Tx, productID string, delta int64) (*models.InventoryRecord, error)
	AddReserved(ctx context.Context, tx pgx.Tx, productID string, quantity int64) error
	ReleaseReserved(ctx context.Context, tx pgx.Tx, productID string, quantity int64) error
	CommitReserved(ctx context.Context, tx pgx.Tx, productID string, quantity int64) (*models.InventoryRecord, error)
	ListAtOrBelow(ctx context.Context, tx pgx.Tx, threshold int64) ([]*models.InventoryRecord, error)

	// Invalidate drops the cached row. Mutations on the pool invalidate
	// themselves; mutations inside a transaction must leave the cache alone
	// until the transaction commits, so the caller invalidates after commit.
	Invalidate(ctx context.Context, productID string)
}

type repository struct {
	conn   driver.PostgresPool
	cache  *redis.Client
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, cache *redis.Client, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		cache:  cache,
		logger: logger,
	}
}

const cacheTTL = 5 * time.Minute

const recordColumns = "product_id, sku, quantity, reserved, reorder_level, created_at, updated_at"

func (r *repository) querier(tx pgx.Tx) driver.Querier {
	if tx != nil {
		return tx
	}
	return r.conn
}

func cacheKey(productID string) string {
	return fmt.Sprintf("inventory:record:%s", productID)
}

func (r *repository) Get(ctx context.Context, tx pgx.Tx, productID string) (*models.InventoryRecord, error) {
	// The cache is only consulted outside a transaction; inside one the
	// caller needs the row as the transaction sees it.
	if tx == nil && r.cache != nil {
		if rec := r.getCached(ctx, productID); rec != nil {
			return rec, r.checkInvariant(rec)
		}
	}

	row := r.querier(tx).QueryRow(ctx,
		"SELECT "+recordColumns+" FROM inventory_records WHERE product_id = $1", productID)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to get inventory record", zap.String("product_id", productID), zap.Error(err))
		return nil, err
	}

	if tx == nil {
		r.setCached(ctx, rec)
	}

	return rec, r.checkInvariant(rec)
}

func (r *repository) GetBatch(ctx context.Context, tx pgx.Tx, productIDs []string) ([]*models.InventoryRecord, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	rows, err := r.querier(tx).Query(ctx,
		"SELECT "+recordColumns+" FROM inventory_records WHERE product_id = ANY($1)", productIDs)
	if err != nil {
		r.logger.Error("failed to get inventory records", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return r.collectRecords(rows)
}

func (r *repository) CreateIfAbsent(ctx context.Context, tx pgx.Tx, productID, sku string) error {
	now := time.Now()
	_, err := r.querier(tx).Exec(ctx,
		`INSERT INTO inventory_records (product_id, sku, quantity, reserved, reorder_level, created_at, updated_at)
		 VALUES ($1, $2, 0, 0, 0, $3, $3)
		 ON CONFLICT (product_id) DO NOTHING`,
		productID, sku, now)
	if err != nil {
		r.logger.Error("failed to create inventory record", zap.String("product_id", productID), zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) AddQuantity(ctx context.Context, tx pgx.Tx, productID string, delta int64) (*models.InventoryRecord, error) {
	row := r.querier(tx).QueryRow(ctx,
		`UPDATE inventory_records
		 SET quantity = quantity + $2, updated_at = $3
		 WHERE product_id = $1 AND quantity + $2 >= 0
		 RETURNING `+recordColumns,
		productID, delta, time.Now())

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Missing row and guard failure both come back as no rows.
		if _, getErr := r.Get(ctx, tx, productID); errors.Is(getErr, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrInsufficientStock
	}
	if err != nil {
		r.logger.Error("failed to apply quantity delta", zap.String("product_id", productID), zap.Error(err))
		return nil, err
	}

	if tx == nil {
		r.invalidate(ctx, productID)
	}
	return rec, nil
}

func (r *repository) AddReserved(ctx context.Context, tx pgx.Tx, productID string, quantity int64) error {
	tag, err := r.querier(tx).Exec(ctx,
		`UPDATE inventory_records
		 SET reserved = reserved + $2, updated_at = $3
		 WHERE product_id = $1 AND reserved + $2 <= quantity`,
		productID, quantity, time.Now())
	if err != nil {
		r.logger.Error("failed to reserve stock", zap.String("product_id", productID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientStock
	}

	if tx == nil {
		r.invalidate(ctx, productID)
	}
	return nil
}

func (r *repository) ReleaseReserved(ctx context.Context, tx pgx.Tx, productID string, quantity int64) error {
	tag, err := r.querier(tx).Exec(ctx,
		`UPDATE inventory_records
		 SET reserved = reserved - $2, updated_at = $3
		 WHERE product_id = $1 AND reserved >= $2`,
		productID, quantity, time.Now())
	if err != nil {
		r.logger.Error("failed to release reserved stock", zap.String("product_id", productID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		r.logger.Error("release found fewer reserved units than held",
			zap.String("product_id", productID), zap.Int64("quantity", quantity))
		return fmt.Errorf("release %d units of %s: %w", quantity, productID, ErrInvariant)
	}

	if tx == nil {
		r.invalidate(ctx, productID)
	}
	return nil
}

func (r *repository) CommitReserved(ctx context.Context, tx pgx.Tx, productID string, quantity int64) (*models.InventoryRecord, error) {
	row := r.querier(tx).QueryRow(ctx,
		`UPDATE inventory_records
		 SET quantity = quantity - $2, reserved = reserved - $2, updated_at = $3
		 WHERE product_id = $1 AND reserved >= $2 AND quantity >= $2
		 RETURNING `+recordColumns,
		productID, quantity, time.Now())

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error("commit found fewer reserved units than held",
			zap.String("product_id", productID), zap.Int64("quantity", quantity))
		return nil, fmt.Errorf("commit %d units of %s: %w", quantity, productID, ErrInvariant)
	}
	if err != nil {
		r.logger.Error("failed to commit reserved stock", zap.String("product_id", productID), zap.Error(err))
		return nil, err
	}

	if tx == nil {
		r.invalidate(ctx, productID)
	}
	return rec, nil
}

func (r *repository) ListAtOrBelow(ctx context.Context, tx pgx.Tx, threshold int64) ([]*models.InventoryRecord, error) {
	// The restock signal scans raw quantity, not available: units on hold
	// still sit in the warehouse.
	rows, err := r.querier(tx).Query(ctx,
		"SELECT "+recordColumns+" FROM inventory_records WHERE quantity <= $1 ORDER BY quantity", threshold)
	if err != nil {
		r.logger.Error("failed to list low stock records", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return r.collectRecords(rows)
}

func (r *repository) collectRecords(rows pgx.Rows) ([]*models.InventoryRecord, error) {
	var records []*models.InventoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if err = r.checkInvariant(rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *repository) checkInvariant(rec *models.InventoryRecord) error {
	if rec.Reserved > rec.Quantity {
		r.logger.Error("reserved exceeds quantity",
			zap.String("product_id", rec.ProductID),
			zap.Int64("quantity", rec.Quantity),
			zap.Int64("reserved", rec.Reserved))
		return fmt.Errorf("product %s: reserved %d > quantity %d: %w",
			rec.ProductID, rec.Reserved, rec.Quantity, ErrInvariant)
	}
	return nil
}

func (r *repository) getCached(ctx context.Context, productID string) *models.InventoryRecord {
	data, err := r.cache.Get(ctx, cacheKey(productID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("failed to get record from cache", zap.String("product_id", productID), zap.Error(err))
		}
		return nil
	}

	var rec models.InventoryRecord
	if err = json.Unmarshal(data, &rec); err != nil {
		r.logger.Warn("failed to decode cached record", zap.String("product_id", productID), zap.Error(err))
		return nil
	}
	return &rec
}

func (r *repository) setCached(ctx context.Context, rec *models.InventoryRecord) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err = r.cache.Set(ctx, cacheKey(rec.ProductID), data, cacheTTL).Err(); err != nil {
		r.logger.Warn("failed to cache record", zap.String("product_id", rec.ProductID), zap.Error(err))
	}
}

func (r *repository) Invalidate(ctx context.Context, productID string) {
	r.invalidate(ctx, productID)
}

// invalidate drops the cached row after a mutation; the next read outside a
// transaction repopulates it from the committed state.
func (r *repository) invalidate(ctx context.Context, productID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, cacheKey(productID)).Err(); err != nil {
		r.logger.Warn("failed to invalidate cached record", zap.String("product_id", productID), zap.Error(err))
	}
}

func scanRecord(row pgx.Row) (*models.InventoryRecord, error) {
	var rec models.InventoryRecord
	err := row.Scan(&rec.ProductID, &rec.SKU, &rec.Quantity, &rec.Reserved,
		&rec.ReorderLevel, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
