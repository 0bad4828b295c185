package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gofalre.io/inventory/models"
	"gofalre.io/inventory/models/enum"
)

// EventHandler consumes one published event. Handlers run on the worker
// pool; returned errors are logged, never propagated to the publisher.
type EventHandler func(context.Context, *models.InventoryEvent) error

// Publisher is the outbound side of the event channel. *nats.Conn satisfies
// it.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// EventManager is the engine's event channel: every stock change,
// reservation transition, and low-stock crossing goes out here, both to
// in-process subscribers and, as JSON, to NATS. Delivery is at-most-once and
// best-effort; consumers needing durability read the change log instead.
type EventManager struct {
	natsConn Publisher
	mu       sync.RWMutex
	handlers map[enum.EventType][]EventHandler
	pool     *WorkerPool
	logger   *zap.Logger
}

func NewEventManager(natsConn Publisher, logger *zap.Logger) *EventManager {
	return &EventManager{
		natsConn: natsConn,
		handlers: make(map[enum.EventType][]EventHandler),
		pool:     NewWorkerPool(10, logger),
		logger:   logger,
	}
}

func (em *EventManager) Subscribe(eventType enum.EventType, handler EventHandler) {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.handlers[eventType] = append(em.handlers[eventType], handler)
}

// Publish fans the event out. A NATS failure is logged and otherwise
// ignored.
func (em *EventManager) Publish(ctx context.Context, event *models.InventoryEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if em.natsConn != nil {
		subject := fmt.Sprintf("inventory.event.%s", event.Type)
		data, err := json.Marshal(event)
		if err == nil {
			err = em.natsConn.Publish(subject, data)
		}
		if err != nil {
			em.logger.Warn("failed to publish event",
				zap.String("subject", subject),
				zap.Error(err))
		}
	}

	em.mu.RLock()
	handlers := append([]EventHandler(nil), em.handlers[event.Type]...)
	em.mu.RUnlock()

	for _, handler := range handlers {
		em.pool.Submit(ctx, event, handler)
	}
}

func (em *EventManager) Close() {
	em.pool.Shutdown()
}
