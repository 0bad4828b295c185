// Package catalog reads product identity from the catalog store. The
// inventory engine only uses it to label low-stock warnings; it never writes.
package catalog

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

var ErrNotFound = errors.New("product not found")

var _ Repository = (*repository)(nil)

type Repository interface {
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
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

func (r *repository) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	key := fmt.Sprintf("catalog:product:%s", productID)

	if r.cache != nil {
		if data, err := r.cache.Get(ctx, key).Bytes(); err == nil {
			var product models.Product
			if err = json.Unmarshal(data, &product); err == nil {
				return &product, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			r.logger.Warn("failed to get product from cache", zap.String("product_id", productID), zap.Error(err))
		}
	}

	var product models.Product
	err := r.conn.QueryRow(ctx,
		"SELECT id, name, price, currency, created_at FROM products WHERE id = $1",
		productID).Scan(&product.ID, &product.Name, &product.Price, &product.Currency, &product.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to get product", zap.String("product_id", productID), zap.Error(err))
		return nil, err
	}

	if r.cache != nil {
		if data, err := json.Marshal(&product); err == nil {
			if err = r.cache.Set(ctx, key, data, cacheTTL).Err(); err != nil {
				r.logger.Warn("failed to cache product", zap.String("product_id", productID), zap.Error(err))
			}
		}
	}

	return &product, nil
}
