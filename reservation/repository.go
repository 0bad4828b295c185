package reservation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
)

// ErrNotFound means the reservation does not exist, usually because another
// path (caller release, confirm, expiry sweep) already consumed it.
var ErrNotFound = errors.New("reservation not found")

var _ Repository = (*repository)(nil)

// Repository stores active holds. Take* methods delete and return rows in a
// single statement so that exactly one caller can ever obtain a given hold.
type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, res *models.Reservation) error
	Take(ctx context.Context, tx pgx.Tx, id string) (*models.Reservation, error)
	TakeByOrder(ctx context.Context, tx pgx.Tx, orderID string) ([]*models.Reservation, error)
	TakeExpired(ctx context.Context, tx pgx.Tx, limit int64) ([]*models.Reservation, error)
	ListByOrder(ctx context.Context, tx pgx.Tx, orderID string) ([]*models.Reservation, error)
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

const reservationColumns = "id, product_id, order_id, quantity, expires_at, created_at"

func (r *repository) querier(tx pgx.Tx) driver.Querier {
	if tx != nil {
		return tx
	}
	return r.conn
}

func (r *repository) Create(ctx context.Context, tx pgx.Tx, res *models.Reservation) error {
	_, err := r.querier(tx).Exec(ctx,
		`INSERT INTO reservations (id, product_id, order_id, quantity, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		res.ID, res.ProductID, res.OrderID, res.Quantity, res.ExpiresAt, res.CreatedAt)
	if err != nil {
		r.logger.Error("failed to create reservation",
			zap.String("reservation_id", res.ID),
			zap.String("order_id", res.OrderID),
			zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) Take(ctx context.Context, tx pgx.Tx, id string) (*models.Reservation, error) {
	row := r.querier(tx).QueryRow(ctx,
		"DELETE FROM reservations WHERE id = $1 RETURNING "+reservationColumns, id)

	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to take reservation", zap.String("reservation_id", id), zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (r *repository) TakeByOrder(ctx context.Context, tx pgx.Tx, orderID string) ([]*models.Reservation, error) {
	rows, err := r.querier(tx).Query(ctx,
		"DELETE FROM reservations WHERE order_id = $1 RETURNING "+reservationColumns, orderID)
	if err != nil {
		r.logger.Error("failed to take reservations by order", zap.String("order_id", orderID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return collectReservations(rows)
}

func (r *repository) TakeExpired(ctx context.Context, tx pgx.Tx, limit int64) ([]*models.Reservation, error) {
	rows, err := r.querier(tx).Query(ctx,
		`DELETE FROM reservations
		 WHERE id IN (
		     SELECT id FROM reservations WHERE expires_at < now() LIMIT $1
		 )
		 RETURNING `+reservationColumns, limit)
	if err != nil {
		r.logger.Error("failed to take expired reservations", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return collectReservations(rows)
}

func (r *repository) ListByOrder(ctx context.Context, tx pgx.Tx, orderID string) ([]*models.Reservation, error) {
	rows, err := r.querier(tx).Query(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE order_id = $1", orderID)
	if err != nil {
		r.logger.Error("failed to list reservations", zap.String("order_id", orderID), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return collectReservations(rows)
}

func collectReservations(rows pgx.Rows) ([]*models.Reservation, error) {
	var reservations []*models.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

func scanReservation(row pgx.Row) (*models.Reservation, error) {
	var res models.Reservation
	err := row.Scan(&res.ID, &res.ProductID, &res.OrderID, &res.Quantity,
		&res.ExpiresAt, &res.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
