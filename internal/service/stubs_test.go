package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/cache"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/dto"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/model"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ── In-memory store ───────────────────────────────────────────────────────────

// memStore backs every stub repository. The serial TxManager snapshots it
// before each unit of work and restores the snapshot on error, which gives
// the stubs all-or-nothing semantics.
type memStore struct {
	mu        sync.Mutex
	products  map[uuid.UUID]model.Product
	batches   map[uuid.UUID]model.Batch
	sales     map[uuid.UUID]model.Sale
	movements []model.StockMovement
	sessions  map[uuid.UUID]model.CashSession
	cashMovs  []model.CashMovement
	ticket    int64
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[uuid.UUID]model.Product),
		batches:  make(map[uuid.UUID]model.Batch),
		sales:    make(map[uuid.UUID]model.Sale),
		sessions: make(map[uuid.UUID]model.CashSession),
	}
}

type storeSnapshot struct {
	products  map[uuid.UUID]model.Product
	batches   map[uuid.UUID]model.Batch
	sales     map[uuid.UUID]model.Sale
	movements []model.StockMovement
	sessions  map[uuid.UUID]model.CashSession
	cashMovs  []model.CashMovement
	ticket    int64
}

func (s *memStore) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storeSnapshot{
		products:  cloneMap(s.products),
		batches:   cloneMap(s.batches),
		sales:     cloneMap(s.sales),
		movements: append([]model.StockMovement(nil), s.movements...),
		sessions:  cloneMap(s.sessions),
		cashMovs:  append([]model.CashMovement(nil), s.cashMovs...),
		ticket:    s.ticket,
	}
}

func (s *memStore) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = snap.products
	s.batches = snap.batches
	s.sales = snap.sales
	s.movements = snap.movements
	s.sessions = snap.sessions
	s.cashMovs = snap.cashMovs
	s.ticket = snap.ticket
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ── TxManager ─────────────────────────────────────────────────────────────────

type serialTx struct {
	mu    sync.Mutex
	store *memStore
	runs  int
}

func (m *serialTx) Run(_ context.Context, fn func(tx *gorm.DB) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs++
	snap := m.store.snapshot()
	if err := fn(nil); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

var _ repository.TxManager = (*serialTx)(nil)

// ── ProductRepository ────────────────────────────────────────────────────────

type stubProductRepo struct{ s *memStore }

func (r *stubProductRepo) Create(_ context.Context, p *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.s.products[p.ID] = *p
	return nil
}

func (r *stubProductRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok || p.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *stubProductRepo) FindByIDs(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Product
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok && p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *stubProductRepo) LockForUpdate(ctx context.Context, _ *gorm.DB, tenantID uuid.UUID, ids []uuid.UUID) ([]model.Product, error) {
	out, err := r.FindByIDs(ctx, tenantID, ids)
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, err
}

func (r *stubProductRepo) AdjustStock(_ context.Context, _ *gorm.DB, id uuid.UUID, delta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok || p.StockQty+delta < 0 {
		return repository.ErrConflict
	}
	p.StockQty += delta
	r.s.products[id] = p
	return nil
}

func (r *stubProductRepo) UpdateAverageCost(_ context.Context, _ *gorm.DB, id uuid.UUID, avg decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p := r.s.products[id]
	p.AverageCost = avg
	r.s.products[id] = p
	return nil
}

func (r *stubProductRepo) ListLowStock(_ context.Context, tenantID uuid.UUID) ([]model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Product
	for _, p := range r.s.products {
		if p.TenantID == tenantID && p.Active && p.BelowMinimum() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *stubProductRepo) ListStockDrift(_ context.Context, tenantID *uuid.UUID) ([]repository.StockDrift, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sums := make(map[uuid.UUID]int)
	for _, b := range r.s.batches {
		sums[b.ProductID] += b.RemainingQty
	}
	var out []repository.StockDrift
	for _, p := range r.s.products {
		if tenantID != nil && p.TenantID != *tenantID {
			continue
		}
		if p.StockQty != sums[p.ID] {
			out = append(out, repository.StockDrift{
				ProductID: p.ID, TenantID: p.TenantID, Name: p.Name, StockQty: p.StockQty, BatchQty: sums[p.ID],
			})
		}
	}
	return out, nil
}

var _ repository.ProductRepository = (*stubProductRepo)(nil)

// ── BatchRepository ──────────────────────────────────────────────────────────

type stubBatchRepo struct{ s *memStore }

func (r *stubBatchRepo) Create(_ context.Context, _ *gorm.DB, b *model.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	r.s.batches[b.ID] = *b
	return nil
}

// ListConsumable returns batches in map order; the ledger sorts them.
func (r *stubBatchRepo) ListConsumable(_ context.Context, _ *gorm.DB, productID uuid.UUID) ([]model.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Batch
	for _, b := range r.s.batches {
		if b.ProductID == productID && b.RemainingQty > 0 {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *stubBatchRepo) Decrement(_ context.Context, _ *gorm.DB, id uuid.UUID, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok || b.RemainingQty < qty {
		return repository.ErrConflict
	}
	b.RemainingQty -= qty
	r.s.batches[id] = b
	return nil
}

func (r *stubBatchRepo) LotCodeExists(_ context.Context, _ *gorm.DB, productID uuid.UUID, lotCode string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range r.s.batches {
		if b.ProductID == productID && b.LotCode == lotCode {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubBatchRepo) ListByProduct(_ context.Context, tenantID, productID uuid.UUID, includeEmpty bool) ([]model.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Batch
	for _, b := range r.s.batches {
		if b.TenantID == tenantID && b.ProductID == productID && (includeEmpty || b.RemainingQty > 0) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ConsumesBefore(&out[j]) })
	return out, nil
}

var _ repository.BatchRepository = (*stubBatchRepo)(nil)

// ── SaleRepository ───────────────────────────────────────────────────────────

type stubSaleRepo struct{ s *memStore }

func (r *stubSaleRepo) Create(_ context.Context, _ *gorm.DB, sale *model.Sale) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sales[sale.ID] = *sale
	return nil
}

func (r *stubSaleRepo) NextTicketNumber(_ context.Context, _ *gorm.DB) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.ticket++
	return r.s.ticket, nil
}

func (r *stubSaleRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*model.Sale, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sale, ok := r.s.sales[id]
	if !ok || sale.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return &sale, nil
}

func (r *stubSaleRepo) List(_ context.Context, f repository.SaleFilter) ([]model.Sale, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Sale
	for _, sale := range r.s.sales {
		if sale.TenantID != f.TenantID {
			continue
		}
		if f.OperatorID != nil && sale.OperatorID != *f.OperatorID {
			continue
		}
		if f.SessionID != nil && (sale.CashSessionID == nil || *sale.CashSessionID != *f.SessionID) {
			continue
		}
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketNumber > out[j].TicketNumber })
	return out, int64(len(out)), nil
}

func (r *stubSaleRepo) ListForSession(_ context.Context, _ *gorm.DB, session *model.CashSession) ([]model.Sale, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Sale
	for _, sale := range r.s.sales {
		if sale.TenantID != session.TenantID {
			continue
		}
		switch {
		case sale.CashSessionID != nil && *sale.CashSessionID == session.ID:
			out = append(out, sale)
		case sale.CashSessionID == nil && sale.OperatorID == session.OperatorID && !sale.CreatedAt.Before(session.OpenedAt):
			if session.ClosedAt == nil || !sale.CreatedAt.After(*session.ClosedAt) {
				out = append(out, sale)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketNumber < out[j].TicketNumber })
	return out, nil
}

var _ repository.SaleRepository = (*stubSaleRepo)(nil)

// ── StockMovementRepository ─────────────────────────────────────────────────

type stubMovementRepo struct{ s *memStore }

func (r *stubMovementRepo) Create(_ context.Context, _ *gorm.DB, m *model.StockMovement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	r.s.movements = append(r.s.movements, *m)
	return nil
}

func (r *stubMovementRepo) List(_ context.Context, f repository.StockMovementFilter) ([]model.StockMovement, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.StockMovement
	for _, m := range r.s.movements {
		if m.TenantID != f.TenantID {
			continue
		}
		if f.ProductID != nil && m.ProductID != *f.ProductID {
			continue
		}
		if f.Kind != "" && m.Kind != f.Kind {
			continue
		}
		if f.ReferenceID != nil && (m.ReferenceID == nil || *m.ReferenceID != *f.ReferenceID) {
			continue
		}
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}

var _ repository.StockMovementRepository = (*stubMovementRepo)(nil)

// ── CashRepository ───────────────────────────────────────────────────────────

type stubCashRepo struct{ s *memStore }

func (r *stubCashRepo) CreateSession(_ context.Context, cs *model.CashSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.sessions {
		if existing.TenantID == cs.TenantID && existing.OperatorID == cs.OperatorID && existing.IsOpen() {
			return repository.ErrConflict
		}
	}
	if cs.ID == uuid.Nil {
		cs.ID = uuid.New()
	}
	r.s.sessions[cs.ID] = *cs
	return nil
}

func (r *stubCashRepo) FindOpenByOperator(_ context.Context, tenantID, operatorID uuid.UUID) (*model.CashSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, cs := range r.s.sessions {
		if cs.TenantID == tenantID && cs.OperatorID == operatorID && cs.IsOpen() {
			return &cs, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubCashRepo) FindSessionByID(_ context.Context, tenantID, id uuid.UUID) (*model.CashSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cs, ok := r.s.sessions[id]
	if !ok || cs.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return &cs, nil
}

func (r *stubCashRepo) LockSession(ctx context.Context, _ *gorm.DB, tenantID, id uuid.UUID, _ string) (*model.CashSession, error) {
	return r.FindSessionByID(ctx, tenantID, id)
}

func (r *stubCashRepo) CloseSession(_ context.Context, _ *gorm.DB, cs *model.CashSession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.sessions[cs.ID]
	if !ok || !current.IsOpen() {
		return repository.ErrConflict
	}
	r.s.sessions[cs.ID] = *cs
	return nil
}

func (r *stubCashRepo) CreateMovement(_ context.Context, _ *gorm.DB, m *model.CashMovement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.cashMovs = append(r.s.cashMovs, *m)
	return nil
}

func (r *stubCashRepo) ListMovements(_ context.Context, _ *gorm.DB, sessionID uuid.UUID) ([]model.CashMovement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.CashMovement
	for _, m := range r.s.cashMovs {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *stubCashRepo) ListSessions(_ context.Context, tenantID uuid.UUID, _, _ int) ([]model.CashSession, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.CashSession
	for _, cs := range r.s.sessions {
		if cs.TenantID == tenantID {
			out = append(out, cs)
		}
	}
	return out, int64(len(out)), nil
}

var _ repository.CashRepository = (*stubCashRepo)(nil)

// ── Collaborators ────────────────────────────────────────────────────────────

type recordingAlerts struct {
	mu   sync.Mutex
	jobs []dto.StockAlertJob
}

func (a *recordingAlerts) EnqueueStockAlert(_ context.Context, job dto.StockAlertJob) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobs = append(a.jobs, job)
	return nil
}

// memCache is a JSON round-tripping cache.Cache that counts hits.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int

	// beforeSet runs ahead of every Set, outside the lock.
	beforeSet func(key string)
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dest)
}

func (c *memCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	if c.beforeSet != nil {
		c.beforeSet(key)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *memCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

var _ cache.Cache = (*memCache)(nil)

// ── Fixture ──────────────────────────────────────────────────────────────────

type fixture struct {
	store     *memStore
	tx        *serialTx
	products  *stubProductRepo
	batches   *stubBatchRepo
	sales     *stubSaleRepo
	movements *stubMovementRepo
	cash      *stubCashRepo
	alerts    *recordingAlerts
	cache     *memCache
	ledger    *BatchLedger

	saleSvc SaleService
	cashSvc CashService
	invSvc  InventoryService

	tenant   uuid.UUID
	cashier  Caller
	admin    Caller
	baseTime time.Time
}

func newFixture() *fixture {
	store := newMemStore()
	f := &fixture{
		store:     store,
		tx:        &serialTx{store: store},
		products:  &stubProductRepo{s: store},
		batches:   &stubBatchRepo{s: store},
		sales:     &stubSaleRepo{s: store},
		movements: &stubMovementRepo{s: store},
		cash:      &stubCashRepo{s: store},
		alerts:    &recordingAlerts{},
		cache:     newMemCache(),
		tenant:    uuid.New(),
		baseTime:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	f.cashier = Caller{TenantID: f.tenant, OperatorID: uuid.New(), Role: model.RoleCashier}
	f.admin = Caller{TenantID: f.tenant, OperatorID: uuid.New(), Role: model.RoleAdmin}

	f.ledger = NewBatchLedger(f.batches, f.products, f.movements, "LOT")
	f.saleSvc = NewSaleService(SaleDeps{
		Tx:        f.tx,
		Products:  f.products,
		Sales:     f.sales,
		Movements: f.movements,
		Cash:      f.cash,
		Ledger:    f.ledger,
		Cache:     f.cache,
		Alerts:    f.alerts,
		Tolerance: decimal.RequireFromString("0.01"),
	})
	f.cashSvc = NewCashService(f.tx, f.cash, f.sales, f.cache, time.Minute)
	f.invSvc = NewInventoryService(f.tx, f.products, f.batches, f.movements, f.ledger, f.alerts)
	return f
}

func (f *fixture) seedProduct(name string, avgCost string, minStock int) model.Product {
	p := model.Product{
		ID:          uuid.New(),
		TenantID:    f.tenant,
		SKU:         name,
		Name:        name,
		SalePrice:   decimal.RequireFromString("25.00"),
		AverageCost: decimal.RequireFromString(avgCost),
		MinStock:    minStock,
		Active:      true,
	}
	_ = f.products.Create(context.Background(), &p)
	return p
}

// seedBatch adds a batch and raises the product's stock with it.
func (f *fixture) seedBatch(productID uuid.UUID, lot string, qty int, cost string, expires *time.Time, received time.Time) model.Batch {
	b := model.Batch{
		ID:           uuid.New(),
		TenantID:     f.tenant,
		ProductID:    productID,
		LotCode:      lot,
		ExpiresAt:    expires,
		InitialQty:   qty,
		RemainingQty: qty,
		UnitCost:     decimal.RequireFromString(cost),
		ReceivedAt:   received,
	}
	_ = f.batches.Create(context.Background(), nil, &b)
	_ = f.products.AdjustStock(context.Background(), nil, productID, qty)
	return b
}

// setStock forces a product's running stock without touching batches.
func (f *fixture) setStock(productID uuid.UUID, qty int) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	p := f.store.products[productID]
	p.StockQty = qty
	f.store.products[productID] = p
}

func (f *fixture) product(id uuid.UUID) model.Product {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.products[id]
}

func (f *fixture) batch(id uuid.UUID) model.Batch {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	return f.store.batches[id]
}

func (f *fixture) batchSum(productID uuid.UUID) int {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	n := 0
	for _, b := range f.store.batches {
		if b.ProductID == productID {
			n += b.RemainingQty
		}
	}
	return n
}

func (f *fixture) openSession(t *testing.T, caller Caller, opening string) *dto.CashSessionResponse {
	t.Helper()
	resp, err := f.cashSvc.Open(context.Background(), caller, dto.OpenSessionRequest{
		OpeningBalance: decimal.RequireFromString(opening),
	})
	require.NoError(t, err)
	return resp
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func item(productID uuid.UUID, qty int, price string) dto.SaleItemRequest {
	return dto.SaleItemRequest{ProductID: productID.String(), Quantity: qty, UnitPrice: decPtr(price)}
}
