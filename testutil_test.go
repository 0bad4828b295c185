package inventory

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"gofalre.io/inventory/changelog"
	"gofalre.io/inventory/driver"
	"gofalre.io/inventory/models"
	"gofalre.io/inventory/record"
	"gofalre.io/inventory/reservation"
)

// The fakes below ignore the tx parameter; transactional serialization is
// emulated by fakePool, whose BeginTx takes a single big lock that the stub
// tx releases on commit or rollback. That gives the tests the same
// one-writer-at-a-time behavior the row locks give the real repositories.

type stubTx struct {
	pgx.Tx
	release *sync.Once
	unlock  func()
}

func (t *stubTx) Commit(context.Context) error {
	t.release.Do(t.unlock)
	return nil
}

func (t *stubTx) Rollback(context.Context) error {
	t.release.Do(t.unlock)
	return nil
}

type fakePool struct {
	driver.PostgresPool
	mu sync.Mutex

	optsMu    sync.Mutex
	beginOpts []pgx.TxOptions
}

func (p *fakePool) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	p.optsMu.Lock()
	p.beginOpts = append(p.beginOpts, opts)
	p.optsMu.Unlock()

	p.mu.Lock()
	return &stubTx{release: new(sync.Once), unlock: p.mu.Unlock}, nil
}

func (p *fakePool) isoLevels() []pgx.TxIsoLevel {
	p.optsMu.Lock()
	defer p.optsMu.Unlock()
	levels := make([]pgx.TxIsoLevel, 0, len(p.beginOpts))
	for _, opts := range p.beginOpts {
		levels = append(levels, opts.IsoLevel)
	}
	return levels
}

type memRecords struct {
	mu   sync.Mutex
	rows map[string]*models.InventoryRecord

	// addQuantityHook lets a test inject a store failure for one product.
	addQuantityHook func(productID string) error

	// invalidateHook lets a test observe cache invalidations.
	invalidateHook func(productID string)
}

var _ record.Repository = (*memRecords)(nil)

func newMemRecords() *memRecords {
	return &memRecords{rows: make(map[string]*models.InventoryRecord)}
}

func (m *memRecords) seed(productID string, quantity, reserved, reorderLevel int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[productID] = &models.InventoryRecord{
		ProductID:    productID,
		Quantity:     quantity,
		Reserved:     reserved,
		ReorderLevel: reorderLevel,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

func (m *memRecords) Get(_ context.Context, _ pgx.Tx, productID string) (*models.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[productID]
	if !ok {
		return nil, record.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memRecords) GetBatch(_ context.Context, _ pgx.Tx, productIDs []string) ([]*models.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.InventoryRecord
	for _, id := range productIDs {
		if rec, ok := m.rows[id]; ok {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRecords) CreateIfAbsent(_ context.Context, _ pgx.Tx, productID, sku string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[productID]; !ok {
		m.rows[productID] = &models.InventoryRecord{
			ProductID: productID,
			SKU:       sku,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
	}
	return nil
}

func (m *memRecords) AddQuantity(_ context.Context, _ pgx.Tx, productID string, delta int64) (*models.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addQuantityHook != nil {
		if err := m.addQuantityHook(productID); err != nil {
			return nil, err
		}
	}
	rec, ok := m.rows[productID]
	if !ok {
		return nil, record.ErrNotFound
	}
	if rec.Quantity+delta < 0 {
		return nil, record.ErrInsufficientStock
	}
	rec.Quantity += delta
	rec.UpdatedAt = time.Now()
	cp := *rec
	return &cp, nil
}

func (m *memRecords) AddReserved(_ context.Context, _ pgx.Tx, productID string, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[productID]
	if !ok || rec.Reserved+quantity > rec.Quantity {
		return record.ErrInsufficientStock
	}
	rec.Reserved += quantity
	return nil
}

func (m *memRecords) ReleaseReserved(_ context.Context, _ pgx.Tx, productID string, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[productID]
	if !ok || rec.Reserved < quantity {
		return record.ErrInvariant
	}
	rec.Reserved -= quantity
	return nil
}

func (m *memRecords) CommitReserved(_ context.Context, _ pgx.Tx, productID string, quantity int64) (*models.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[productID]
	if !ok || rec.Reserved < quantity || rec.Quantity < quantity {
		return nil, record.ErrInvariant
	}
	rec.Quantity -= quantity
	rec.Reserved -= quantity
	cp := *rec
	return &cp, nil
}

func (m *memRecords) Invalidate(_ context.Context, productID string) {
	if m.invalidateHook != nil {
		m.invalidateHook(productID)
	}
}

func (m *memRecords) ListAtOrBelow(_ context.Context, _ pgx.Tx, threshold int64) ([]*models.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.InventoryRecord
	for _, rec := range m.rows {
		if rec.Quantity <= threshold {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Quantity < out[j].Quantity })
	return out, nil
}

type memReservations struct {
	mu   sync.Mutex
	rows map[string]*models.Reservation
}

var _ reservation.Repository = (*memReservations)(nil)

func newMemReservations() *memReservations {
	return &memReservations{rows: make(map[string]*models.Reservation)}
}

func (m *memReservations) Create(_ context.Context, _ pgx.Tx, res *models.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *res
	m.rows[res.ID] = &cp
	return nil
}

func (m *memReservations) Take(_ context.Context, _ pgx.Tx, id string) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.rows[id]
	if !ok {
		return nil, reservation.ErrNotFound
	}
	delete(m.rows, id)
	return res, nil
}

func (m *memReservations) TakeByOrder(_ context.Context, _ pgx.Tx, orderID string) ([]*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Reservation
	for id, res := range m.rows {
		if res.OrderID == orderID {
			out = append(out, res)
			delete(m.rows, id)
		}
	}
	return out, nil
}

func (m *memReservations) TakeExpired(_ context.Context, _ pgx.Tx, limit int64) ([]*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []*models.Reservation
	for id, res := range m.rows {
		if int64(len(out)) >= limit {
			break
		}
		if res.Expired(now) {
			out = append(out, res)
			delete(m.rows, id)
		}
	}
	return out, nil
}

func (m *memReservations) ListByOrder(_ context.Context, _ pgx.Tx, orderID string) ([]*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Reservation
	for _, res := range m.rows {
		if res.OrderID == orderID {
			cp := *res
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memReservations) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memChangelog struct {
	mu      sync.Mutex
	entries []*models.InventoryUpdate
	nextID  uint64
}

var _ changelog.Repository = (*memChangelog)(nil)

func newMemChangelog() *memChangelog {
	return &memChangelog{nextID: 1}
}

func (m *memChangelog) Append(_ context.Context, _ pgx.Tx, entry *models.InventoryUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	cp.ID = m.nextID
	m.nextID++
	entry.ID = cp.ID
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memChangelog) ListByProduct(_ context.Context, _ pgx.Tx, productID string, limit, offset uint64) ([]*models.InventoryUpdate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*models.InventoryUpdate
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].ProductID == productID {
			cp := *m.entries[i]
			matched = append(matched, &cp)
		}
	}
	if offset >= uint64(len(matched)) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && uint64(len(matched)) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *memChangelog) SumChanges(_ context.Context, _ pgx.Tx, productID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.entries {
		if e.ProductID == productID {
			sum += e.QuantityChange
		}
	}
	return sum, nil
}

func (m *memChangelog) countByProduct(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.ProductID == productID {
			n++
		}
	}
	return n
}

type capturedMessage struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []capturedMessage
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, capturedMessage{subject: subject, data: data})
	return nil
}

func (p *fakePublisher) count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, msg := range p.messages {
		if msg.subject == subject {
			n++
		}
	}
	return n
}

type testEnv struct {
	svc          Service
	records      *memRecords
	reservations *memReservations
	changes      *memChangelog
	publisher    *fakePublisher
	pool         *fakePool
}

func newTestEnv(t *testing.T, cfg *Config) *testEnv {
	t.Helper()

	if cfg == nil {
		cfg = &Config{ProcessInterval: 10 * time.Millisecond}
	}

	env := &testEnv{
		records:      newMemRecords(),
		reservations: newMemReservations(),
		changes:      newMemChangelog(),
		publisher:    &fakePublisher{},
		pool:         &fakePool{},
	}

	logger := zap.NewNop()
	tm := driver.NewTransactionManager(env.pool, logger)
	env.svc = NewService(cfg, env.records, env.reservations, env.changes, nil, tm, env.publisher, logger)
	t.Cleanup(env.svc.Close)

	return env
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
