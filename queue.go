package inventory

import (
	"errors"
	"sync"

	"gofalre.io/inventory/models"
)

// ErrQueueFull is returned by UpdateInventory when the pending-update buffer
// is at capacity; the caller should back off and retry.
var ErrQueueFull = errors.New("update queue is full")

type queuedUpdate struct {
	update   *models.InventoryUpdate
	attempts int
}

// updateQueue is the bounded FIFO of pending quantity deltas. Claim removes
// entries atomically so only one cycle can hold them; Requeue returns an
// unprocessed remainder to the head so per-product order is preserved across
// retries.
type updateQueue struct {
	mu       sync.Mutex
	entries  []*queuedUpdate
	capacity int
	wake     chan struct{}
}

func newUpdateQueue(capacity int) *updateQueue {
	return &updateQueue{
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

func (q *updateQueue) Enqueue(update *models.InventoryUpdate) error {
	q.mu.Lock()
	if len(q.entries) >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.entries = append(q.entries, &queuedUpdate{update: update})
	q.mu.Unlock()

	q.signal()
	return nil
}

// Claim removes and returns up to n entries from the head.
func (q *updateQueue) Claim(n int) []*queuedUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > len(q.entries) {
		n = len(q.entries)
	}
	if n == 0 {
		return nil
	}

	claimed := q.entries[:n]
	q.entries = append([]*queuedUpdate(nil), q.entries[n:]...)
	return claimed
}

// Requeue puts claimed entries back at the head in their original order.
// The capacity bound is not enforced here: returning claimed work must not
// fail. No wake signal either — a requeued batch just failed, so it waits
// for the next timer cycle instead of spinning.
func (q *updateQueue) Requeue(entries []*queuedUpdate) {
	if len(entries) == 0 {
		return
	}
	q.mu.Lock()
	q.entries = append(append([]*queuedUpdate(nil), entries...), q.entries...)
	q.mu.Unlock()
}

func (q *updateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Wake is closed over by the processor loop; a receive means at least one
// entry was added since the last drain.
func (q *updateQueue) Wake() <-chan struct{} {
	return q.wake
}

func (q *updateQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
