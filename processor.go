package inventory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/changelog"
	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
	"gofalre.io/inventory/models/enum"
	"gofalre.io/inventory/record"
	"gofalre.io/inventory/reservation"
)

// queueProcessor is the single background worker that folds pending deltas
// into durable state. One goroutine owns the whole loop, so cycles never
// overlap and updates for the same product apply in enqueue order. The loop
// is driven by a fixed-interval ticker plus the queue's wake signal, so
// bursts apply promptly while trickle traffic still batches.
type queueProcessor struct {
	queue        *updateQueue
	records      record.Repository
	changes      changelog.Repository
	reservations reservation.Repository
	tm           *driver.TransactionManager
	events       *EventManager
	logger       *zap.Logger

	interval    time.Duration
	batchSize   int
	maxAttempts int
	sweepLimit  int64

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (p *queueProcessor) Start() {
	go p.loop()
}

// Stop halts the loop after a final drain so accepted updates are not lost
// on a clean shutdown. Safe to call more than once.
func (p *queueProcessor) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *queueProcessor) loop() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-p.stop:
			p.runCycle(ctx)
			return
		case <-ticker.C:
			p.runCycle(ctx)
			p.sweepExpired(ctx)
		case <-p.queue.Wake():
			p.runCycle(ctx)
		}
	}
}

// runCycle claims and applies bounded batches until the queue is empty or a
// batch fails. On failure the unprocessed remainder goes back to the head of
// the queue; already-applied entries stay applied.
func (p *queueProcessor) runCycle(ctx context.Context) {
	for {
		claimed := p.queue.Claim(p.batchSize)
		if len(claimed) == 0 {
			return
		}

		for i, entry := range claimed {
			err := p.applyOne(ctx, entry)
			if err == nil {
				continue
			}

			if errors.Is(err, record.ErrInsufficientStock) {
				// The delta would push quantity negative. Holding the
				// queue on it would also hold every later update for the
				// product, so it is dropped rather than retried.
				p.deadLetter(entry, err)
				continue
			}

			entry.attempts++
			if entry.attempts >= p.maxAttempts {
				p.deadLetter(entry, err)
				p.queue.Requeue(claimed[i+1:])
			} else {
				p.logger.Warn("batch apply failed, requeueing remainder",
					zap.String("product_id", entry.update.ProductID),
					zap.Int("attempt", entry.attempts),
					zap.Int("requeued", len(claimed)-i),
					zap.Error(err))
				p.queue.Requeue(claimed[i:])
			}
			return
		}

		if len(claimed) < p.batchSize {
			return
		}
	}
}

// applyOne applies a single delta and its change-log row in one
// transaction, then emits events. The entry is idempotent only at this
// level: once the transaction commits it is never reapplied.
func (p *queueProcessor) applyOne(ctx context.Context, entry *queuedUpdate) error {
	u := entry.update

	// Read committed: the quantity guard in AddQuantity must re-evaluate
	// after a lock wait (a racing order confirm also moves quantity) rather
	// than abort on a serialization error.
	var rec *models.InventoryRecord
	err := p.tm.ExecuteReadCommittedTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		rec, err = p.records.AddQuantity(ctx, tx, u.ProductID, u.QuantityChange)
		if err != nil {
			return err
		}
		u.NewQuantity = rec.Quantity
		return p.changes.Append(ctx, tx, u)
	})
	if err != nil {
		return err
	}

	p.records.Invalidate(ctx, u.ProductID)
	p.events.Publish(ctx, &models.InventoryEvent{
		Type:      enum.EventTypeInventoryUpdated,
		ProductID: u.ProductID,
		NewLevel:  rec.Quantity,
	})
	p.maybeWarnLowStock(ctx, rec)

	return nil
}

func (p *queueProcessor) maybeWarnLowStock(ctx context.Context, rec *models.InventoryRecord) {
	if !rec.IsLowStock() {
		return
	}

	severity := enum.SeverityWarning
	if rec.Available() == 0 {
		severity = enum.SeverityCritical
	}

	p.events.Publish(ctx, &models.InventoryEvent{
		Type:         enum.EventTypeLowStockWarning,
		ProductID:    rec.ProductID,
		CurrentStock: rec.Quantity,
		ReorderLevel: rec.ReorderLevel,
		Severity:     severity,
	})
}

func (p *queueProcessor) deadLetter(entry *queuedUpdate, err error) {
	u := entry.update
	p.logger.Error("dropping inventory update",
		zap.String("product_id", u.ProductID),
		zap.Int64("quantity_change", u.QuantityChange),
		zap.String("reason", string(u.Reason)),
		zap.Int("attempts", entry.attempts),
		zap.Error(err))
}

// sweepExpired reclaims holds whose TTL has passed, exactly as if the caller
// had released them. TakeExpired deletes the rows in the same statement that
// reads them, so a racing caller-driven release can never double-return the
// units.
func (p *queueProcessor) sweepExpired(ctx context.Context) {
	for {
		var expired []*models.Reservation
		err := p.tm.ExecuteReadCommittedTransaction(ctx, func(tx pgx.Tx) error {
			var err error
			expired, err = p.reservations.TakeExpired(ctx, tx, p.sweepLimit)
			if err != nil {
				return err
			}
			for _, res := range expired {
				if err = p.records.ReleaseReserved(ctx, tx, res.ProductID, res.Quantity); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			p.logger.Error("expiry sweep failed", zap.Error(err))
			return
		}

		for _, res := range expired {
			p.records.Invalidate(ctx, res.ProductID)
			p.logger.Info("released expired reservation",
				zap.String("reservation_id", res.ID),
				zap.String("product_id", res.ProductID),
				zap.String("order_id", res.OrderID),
				zap.Int64("quantity", res.Quantity))
			p.events.Publish(ctx, &models.InventoryEvent{
				Type:      enum.EventTypeInventoryReleased,
				ProductID: res.ProductID,
				Quantity:  res.Quantity,
			})
		}

		if int64(len(expired)) < p.sweepLimit {
			return
		}
	}
}
