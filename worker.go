package inventory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"gofalre.io/inventory/models"
)

// WorkerPool runs subscriber callbacks off the hot path so a slow consumer
// cannot stall the engine.
type WorkerPool struct {
	tasks  chan func()
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger *zap.Logger
}

func NewWorkerPool(size int, logger *zap.Logger) *WorkerPool {
	wp := &WorkerPool{
		tasks:  make(chan func(), 1000),
		logger: logger,
	}

	wp.wg.Add(size)
	for i := 0; i < size; i++ {
		go wp.worker()
	}

	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for task := range wp.tasks {
		task()
	}
}

// Submit dispatches one event to one handler. If the task buffer is full the
// event is dropped: delivery is at-most-once by contract.
func (wp *WorkerPool) Submit(ctx context.Context, event *models.InventoryEvent, handler EventHandler) {
	task := func() {
		if err := handler(ctx, event); err != nil {
			wp.logger.Error("failed to handle event",
				zap.Error(err),
				zap.String("event_type", string(event.Type)),
				zap.String("product_id", event.ProductID))
		}
	}

	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		wp.logger.Warn("dropping event, worker pool closed",
			zap.String("event_type", string(event.Type)))
		return
	}

	select {
	case wp.tasks <- task:
	default:
		wp.logger.Warn("dropping event, worker pool saturated",
			zap.String("event_type", string(event.Type)))
	}
}

// Shutdown stops accepting tasks and waits for in-flight handlers to finish.
// Safe to call more than once; a Submit racing Shutdown drops its event
// instead of hitting a closed channel.
func (wp *WorkerPool) Shutdown() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.tasks)
	wp.mu.Unlock()

	wp.wg.Wait()
}
