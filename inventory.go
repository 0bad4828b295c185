// Package inventory implements the stock reservation and inventory-update
// engine behind the shop catalog: durable per-product quantity and
// reservation counters, an asynchronous queue for quantity deltas, an
// append-only change log, and a best-effort event channel for collaborators.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/catalog"
	"gofalre.io/inventory/changelog"
	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
	"gofalre.io/inventory/models/enum"
	"gofalre.io/inventory/record"
	"gofalre.io/inventory/reservation"
)

var (
	// ErrUnknownReason is returned when an update names a reason outside
	// the recognized set.
	ErrUnknownReason = errors.New("unknown update reason")

	// ErrInvalidQuantity is returned for non-positive reservation amounts.
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

type Service interface {
	// GetStockLevel reads the durably-applied state for one product.
	// A missing product yields (nil, nil), not an error.
	GetStockLevel(ctx context.Context, productID string) (*models.StockLevel, error)

	// GetStockLevels is the batched form; missing ids are simply absent
	// from the result.
	GetStockLevels(ctx context.Context, productIDs []string) ([]*models.StockLevel, error)

	// UpdateInventory enqueues a quantity delta and returns the best-known
	// stock level, which may still reflect the pre-update quantity until
	// the queue processor drains. Callers needing durability poll or
	// subscribe to events. A record is created lazily for an untracked
	// product.
	UpdateInventory(ctx context.Context, productID string, delta int64, reason enum.UpdateReason, userID, notes string) (*models.StockLevel, error)

	// ReserveInventory places a 30-minute hold if enough stock is
	// available. Insufficient stock returns (false, nil): an expected
	// outcome, not an error.
	ReserveInventory(ctx context.Context, productID string, quantity int64, orderID string) (bool, error)

	// ReleaseReservation returns held units to the sellable pool. A
	// missing reservation is a no-op, since caller-driven release races
	// with the expiry sweep.
	ReleaseReservation(ctx context.Context, reservationID string) error

	// ConfirmInventory permanently deducts every hold tied to the order
	// and logs a sale per product. Terminal and irreversible; an unknown
	// order is a no-op.
	ConfirmInventory(ctx context.Context, orderID string) error

	// GetLowStockProducts scans raw on-hand quantity against the threshold
	// (held units still occupy the warehouse) with severity derived from
	// availability.
	GetLowStockProducts(ctx context.Context, threshold int64) ([]*models.LowStockWarning, error)

	// ChangeHistory lists applied change-log entries, newest first.
	ChangeHistory(ctx context.Context, productID string, limit, offset uint64) ([]*models.InventoryUpdate, error)

	Subscribe(eventType enum.EventType, handler EventHandler)
	Close()
}

type service struct {
	records      record.Repository
	reservations reservation.Repository
	changes      changelog.Repository
	catalog      catalog.Repository

	transactionManager *driver.TransactionManager
	eventManager       *EventManager
	queue              *updateQueue
	processor          *queueProcessor

	reservationTTL time.Duration
	closeOnce      sync.Once
	logger         *zap.Logger
}

func NewService(
	cfg *Config,
	records record.Repository, reservations reservation.Repository,
	changes changelog.Repository, catalogRepo catalog.Repository,
	tm *driver.TransactionManager,
	natsConn Publisher,
	logger *zap.Logger) Service {

	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()

	s := &service{
		records:            records,
		reservations:       reservations,
		changes:            changes,
		catalog:            catalogRepo,
		transactionManager: tm,
		reservationTTL:     cfg.ReservationTTL,
		logger:             logger,
	}
	s.eventManager = NewEventManager(natsConn, logger)
	s.queue = newUpdateQueue(cfg.QueueCapacity)
	s.processor = &queueProcessor{
		queue:        s.queue,
		records:      records,
		changes:      changes,
		reservations: reservations,
		tm:           tm,
		events:       s.eventManager,
		logger:       logger,
		interval:     cfg.ProcessInterval,
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxApplyAttempts,
		sweepLimit:   cfg.ExpirySweepLimit,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	s.processor.Start()

	return s
}

func (s *service) GetStockLevel(ctx context.Context, productID string) (*models.StockLevel, error) {
	rec, err := s.records.Get(ctx, nil, productID)
	if errors.Is(err, record.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock level: %w", err)
	}
	return models.NewStockLevel(rec), nil
}

func (s *service) GetStockLevels(ctx context.Context, productIDs []string) ([]*models.StockLevel, error) {
	records, err := s.records.GetBatch(ctx, nil, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get stock levels: %w", err)
	}

	levels := make([]*models.StockLevel, 0, len(records))
	for _, rec := range records {
		levels = append(levels, models.NewStockLevel(rec))
	}
	return levels, nil
}

func (s *service) UpdateInventory(ctx context.Context, productID string, delta int64, reason enum.UpdateReason, userID, notes string) (*models.StockLevel, error) {
	if !reason.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReason, reason)
	}

	// Untracked products are created on first touch rather than failing;
	// the delta then applies against a zero-quantity record.
	if err := s.records.CreateIfAbsent(ctx, nil, productID, ""); err != nil {
		return nil, fmt.Errorf("failed to track product: %w", err)
	}

	update := &models.InventoryUpdate{
		ProductID:      productID,
		QuantityChange: delta,
		Reason:         reason,
		UserID:         userID,
		Notes:          notes,
		CreatedAt:      time.Now(),
	}
	if err := s.queue.Enqueue(update); err != nil {
		return nil, err
	}

	return s.GetStockLevel(ctx, productID)
}

func (s *service) ReserveInventory(ctx context.Context, productID string, quantity int64, orderID string) (bool, error) {
	if quantity <= 0 {
		return false, ErrInvalidQuantity
	}

	res := &models.Reservation{
		ID:        uuid.NewString(),
		ProductID: productID,
		OrderID:   orderID,
		Quantity:  quantity,
		ExpiresAt: time.Now().Add(s.reservationTTL),
		CreatedAt: time.Now(),
	}

	// Read committed: a reservation losing the row-lock race re-evaluates the
	// availability guard and comes back as insufficient stock, not a
	// serialization error.
	err := s.transactionManager.ExecuteReadCommittedTransaction(ctx, func(tx pgx.Tx) error {
		if err := s.records.AddReserved(ctx, tx, productID, quantity); err != nil {
			return err
		}
		return s.reservations.Create(ctx, tx, res)
	})
	if errors.Is(err, record.ErrInsufficientStock) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to reserve inventory: %w", err)
	}

	s.records.Invalidate(ctx, productID)
	s.eventManager.Publish(ctx, &models.InventoryEvent{
		Type:      enum.EventTypeInventoryReserved,
		ProductID: productID,
		OrderID:   orderID,
		Quantity:  quantity,
	})

	return true, nil
}

func (s *service) ReleaseReservation(ctx context.Context, reservationID string) error {
	var released *models.Reservation

	// Read committed for the same reason as ReserveInventory: the loser of a
	// race with the expiry sweep must see the row already gone and no-op.
	err := s.transactionManager.ExecuteReadCommittedTransaction(ctx, func(tx pgx.Tx) error {
		res, err := s.reservations.Take(ctx, tx, reservationID)
		if errors.Is(err, reservation.ErrNotFound) {
			// Already released, confirmed, or swept.
			return nil
		}
		if err != nil {
			return err
		}

		if err = s.records.ReleaseReserved(ctx, tx, res.ProductID, res.Quantity); err != nil {
			return err
		}
		released = res
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}

	if released != nil {
		s.records.Invalidate(ctx, released.ProductID)
		s.eventManager.Publish(ctx, &models.InventoryEvent{
			Type:      enum.EventTypeInventoryReleased,
			ProductID: released.ProductID,
			Quantity:  released.Quantity,
		})
	}

	return nil
}

func (s *service) ConfirmInventory(ctx context.Context, orderID string) error {
	var confirmed []*models.Reservation

	err := s.transactionManager.ExecuteSerializableTransaction(ctx, func(tx pgx.Tx) error {
		confirmed = nil

		holds, err := s.reservations.TakeByOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		for _, res := range holds {
			rec, err := s.records.CommitReserved(ctx, tx, res.ProductID, res.Quantity)
			if err != nil {
				return err
			}

			entry := &models.InventoryUpdate{
				ProductID:      res.ProductID,
				QuantityChange: -res.Quantity,
				Reason:         enum.UpdateReasonSale,
				NewQuantity:    rec.Quantity,
				Notes:          fmt.Sprintf("order %s confirmed", orderID),
				CreatedAt:      time.Now(),
			}
			if err = s.changes.Append(ctx, tx, entry); err != nil {
				return err
			}
		}

		confirmed = holds
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to confirm inventory: %w", err)
	}

	if len(confirmed) == 0 {
		return nil
	}

	for _, res := range confirmed {
		s.records.Invalidate(ctx, res.ProductID)
	}
	s.eventManager.Publish(ctx, &models.InventoryEvent{
		Type:    enum.EventTypeInventoryConfirmed,
		OrderID: orderID,
	})

	return nil
}

func (s *service) GetLowStockProducts(ctx context.Context, threshold int64) ([]*models.LowStockWarning, error) {
	records, err := s.records.ListAtOrBelow(ctx, nil, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to scan low stock: %w", err)
	}

	warnings := make([]*models.LowStockWarning, 0, len(records))
	for _, rec := range records {
		severity := enum.SeverityWarning
		if rec.Available() == 0 {
			severity = enum.SeverityCritical
		}

		warning := &models.LowStockWarning{
			ProductID:    rec.ProductID,
			CurrentStock: rec.Quantity,
			ReorderLevel: rec.ReorderLevel,
			Severity:     severity,
		}
		s.labelWarning(ctx, warning)
		warnings = append(warnings, warning)
	}
	return warnings, nil
}

// labelWarning attaches the catalog product name, best-effort.
func (s *service) labelWarning(ctx context.Context, warning *models.LowStockWarning) {
	if s.catalog == nil {
		return
	}
	product, err := s.catalog.GetProduct(ctx, warning.ProductID)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			s.logger.Warn("failed to label low stock warning",
				zap.String("product_id", warning.ProductID), zap.Error(err))
		}
		return
	}
	warning.ProductName = product.Name
}

func (s *service) ChangeHistory(ctx context.Context, productID string, limit, offset uint64) ([]*models.InventoryUpdate, error) {
	return s.changes.ListByProduct(ctx, nil, productID, limit, offset)
}

func (s *service) Subscribe(eventType enum.EventType, handler EventHandler) {
	s.eventManager.Subscribe(eventType, handler)
}

// Close drains the queue, stops the processor, and shuts the event channel
// down. Safe to call more than once.
func (s *service) Close() {
	s.closeOnce.Do(func() {
		s.processor.Stop()
		s.eventManager.Close()
	})
}
