package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub000/internal/models"
)

// Memory is an in-memory Store used by tests and by the server's
// standalone mode. A transaction holds the store lock for its duration and
// restores a snapshot on rollback, so the all-or-nothing semantics match
// the PostgreSQL implementation. Reads hand out copies and writes store
// copies, mirroring row-scan semantics: nothing persists until the caller
// writes it back through the Tx.
type Memory struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*models.Order
	products map[uuid.UUID]*models.Product
	tables   map[uuid.UUID]*models.Table
	merges   map[uuid.UUID]*models.MergeRequest
	log      []statusLogEntry
	Now      func() time.Time
}

type statusLogEntry struct {
	OrderID   uuid.UUID
	From      models.OrderStatus
	To        models.OrderStatus
	ChangedBy string
	At        time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		orders:   make(map[uuid.UUID]*models.Order),
		products: make(map[uuid.UUID]*models.Product),
		tables:   make(map[uuid.UUID]*models.Table),
		merges:   make(map[uuid.UUID]*models.MergeRequest),
		Now:      time.Now,
	}
}

// AddProduct seeds a catalog product.
func (m *Memory) AddProduct(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.products[p.ID] = &cp
}

// AddTable seeds a venue table.
func (m *Memory) AddTable(t models.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ct := t
	m.tables[t.ID] = &ct
}

// Product returns a copy of the product for assertions.
func (m *Memory) Product(id uuid.UUID) (models.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return models.Product{}, false
	}
	return *p, true
}

// Table returns a copy of the table for assertions.
func (m *Memory) Table(id uuid.UUID) (models.Table, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[id]
	if !ok {
		return models.Table{}, false
	}
	return *t, true
}

// Order returns a copy of the order for assertions.
func (m *Memory) Order(id uuid.UUID) (*models.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, false
	}
	return cloneOrder(o), true
}

// WithinTx implements Store.
func (m *Memory) WithinTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx Tx) error) error {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	tx := &memTx{m: m}
	if err := fn(ctx, tx); err != nil {
		m.restore(snap)
		if ctx.Err() != nil {
			return &TimeoutError{Op: "tx", Err: ctx.Err()}
		}
		return err
	}
	if ctx.Err() != nil {
		m.restore(snap)
		return &TimeoutError{Op: "commit", Err: ctx.Err()}
	}
	return nil
}

// ListOpenOrders implements Store.
func (m *Memory) ListOpenOrders(ctx context.Context, tenantID string) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Order
	for _, o := range m.orders {
		if o.TenantID == tenantID && !o.Status.Terminal() {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

// ListPendingMergeRequests implements Store.
func (m *Memory) ListPendingMergeRequests(ctx context.Context, tenantID string) ([]*models.MergeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.MergeRequest
	for _, r := range m.merges {
		if r.TenantID == tenantID && r.Status == models.MergePending {
			out = append(out, cloneMerge(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memSnapshot struct {
	orders   map[uuid.UUID]*models.Order
	products map[uuid.UUID]*models.Product
	tables   map[uuid.UUID]*models.Table
	merges   map[uuid.UUID]*models.MergeRequest
	logLen   int
}

func (m *Memory) snapshot() memSnapshot {
	s := memSnapshot{
		orders:   make(map[uuid.UUID]*models.Order, len(m.orders)),
		products: make(map[uuid.UUID]*models.Product, len(m.products)),
		tables:   make(map[uuid.UUID]*models.Table, len(m.tables)),
		merges:   make(map[uuid.UUID]*models.MergeRequest, len(m.merges)),
		logLen:   len(m.log),
	}
	for id, o := range m.orders {
		s.orders[id] = cloneOrder(o)
	}
	for id, p := range m.products {
		cp := *p
		s.products[id] = &cp
	}
	for id, t := range m.tables {
		ct := *t
		s.tables[id] = &ct
	}
	for id, r := range m.merges {
		s.merges[id] = cloneMerge(r)
	}
	return s
}

func (m *Memory) restore(s memSnapshot) {
	m.orders = s.orders
	m.products = s.products
	m.tables = s.tables
	m.merges = s.merges
	m.log = m.log[:s.logLen]
}

type memTx struct {
	m *Memory
}

func (t *memTx) OrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := t.m.orders[id]
	if !ok {
		return nil, &NotFoundError{Kind: "order", ID: id}
	}
	return cloneOrder(o), nil
}

func (t *memTx) OrderByLineID(ctx context.Context, lineID uuid.UUID) (*models.Order, error) {
	for _, o := range t.m.orders {
		for i := range o.Lines {
			if o.Lines[i].ID == lineID {
				return cloneOrder(o), nil
			}
		}
	}
	return nil, &NotFoundError{Kind: "order line", ID: lineID}
}

func (t *memTx) OpenOrdersOnTable(ctx context.Context, tableID uuid.UUID) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range t.m.orders {
		if o.TableID != nil && *o.TableID == tableID && !o.Status.Terminal() {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

func (t *memTx) RecentOrdersOnTable(ctx context.Context, tableID uuid.UUID, since time.Time) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range t.m.orders {
		if o.TableID != nil && *o.TableID == tableID && !o.OpenedAt.Before(since) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *models.Order) error {
	t.m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (t *memTx) UpdateOrder(ctx context.Context, o *models.Order) error {
	if _, ok := t.m.orders[o.ID]; !ok {
		return &NotFoundError{Kind: "order", ID: o.ID}
	}
	t.m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (t *memTx) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.m.orders[id]; !ok {
		return &NotFoundError{Kind: "order", ID: id}
	}
	delete(t.m.orders, id)
	return nil
}

func (t *memTx) InsertLine(ctx context.Context, l *models.OrderLine) error {
	o, ok := t.m.orders[l.OrderID]
	if !ok {
		return &NotFoundError{Kind: "order", ID: l.OrderID}
	}
	o.Lines = append(o.Lines, *l)
	return nil
}

func (t *memTx) UpdateLine(ctx context.Context, l *models.OrderLine) error {
	o, ok := t.m.orders[l.OrderID]
	if !ok {
		return &NotFoundError{Kind: "order", ID: l.OrderID}
	}
	for i := range o.Lines {
		if o.Lines[i].ID == l.ID {
			o.Lines[i] = *l
			return nil
		}
	}
	return &NotFoundError{Kind: "order line", ID: l.ID}
}

func (t *memTx) DeleteLine(ctx context.Context, id uuid.UUID) error {
	for _, o := range t.m.orders {
		for i := range o.Lines {
			if o.Lines[i].ID == id {
				o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
				return nil
			}
		}
	}
	return &NotFoundError{Kind: "order line", ID: id}
}

func (t *memTx) ProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, ok := t.m.products[id]
	if !ok {
		return nil, &NotFoundError{Kind: "product", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) ProductsForUpdate(ctx context.Context, ids []uuid.UUID) ([]*models.Product, error) {
	out := make([]*models.Product, 0, len(ids))
	for _, id := range ids {
		p, ok := t.m.products[id]
		if !ok {
			return nil, &NotFoundError{Kind: "product", ID: id}
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (t *memTx) AdjustInventory(ctx context.Context, productID uuid.UUID, reservedDelta, availableDelta int) error {
	p, ok := t.m.products[productID]
	if !ok {
		return &NotFoundError{Kind: "product", ID: productID}
	}
	p.Reserved += reservedDelta
	p.Available += availableDelta
	return nil
}

func (t *memTx) TableByNumber(ctx context.Context, tenantID, number string) (*models.Table, error) {
	for _, tb := range t.m.tables {
		if tb.TenantID == tenantID && tb.Number == number {
			cp := *tb
			return &cp, nil
		}
	}
	return nil, &NotFoundError{Kind: "table", ID: uuid.Nil}
}

func (t *memTx) SetTableOccupied(ctx context.Context, tableID uuid.UUID, occupied bool) error {
	tb, ok := t.m.tables[tableID]
	if !ok {
		return &NotFoundError{Kind: "table", ID: tableID}
	}
	tb.Occupied = occupied
	return nil
}

func (t *memTx) InsertMergeRequest(ctx context.Context, r *models.MergeRequest) error {
	t.m.merges[r.ID] = cloneMerge(r)
	return nil
}

func (t *memTx) MergeRequestByID(ctx context.Context, id uuid.UUID) (*models.MergeRequest, error) {
	r, ok := t.m.merges[id]
	if !ok {
		return nil, &NotFoundError{Kind: "merge request", ID: id}
	}
	return cloneMerge(r), nil
}

func (t *memTx) LatestPendingMergeRequest(ctx context.Context, orderID, requestedBy uuid.UUID) (*models.MergeRequest, error) {
	var latest *models.MergeRequest
	for _, r := range t.m.merges {
		if r.OrderID != orderID || r.RequestedBy != requestedBy || r.Status != models.MergePending {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, &NotFoundError{Kind: "merge request", ID: uuid.Nil}
	}
	return cloneMerge(latest), nil
}

func (t *memTx) ResolveMergeRequest(ctx context.Context, r *models.MergeRequest) error {
	if _, ok := t.m.merges[r.ID]; !ok {
		return &NotFoundError{Kind: "merge request", ID: r.ID}
	}
	t.m.merges[r.ID] = cloneMerge(r)
	return nil
}

func (t *memTx) AppendStatusLog(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus, changedBy string) error {
	t.m.log = append(t.m.log, statusLogEntry{
		OrderID:   orderID,
		From:      from,
		To:        to,
		ChangedBy: changedBy,
		At:        t.m.Now(),
	})
	return nil
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Lines = make([]models.OrderLine, len(o.Lines))
	copy(cp.Lines, o.Lines)
	if o.TableID != nil {
		id := *o.TableID
		cp.TableID = &id
	}
	if o.TableNumber != nil {
		n := *o.TableNumber
		cp.TableNumber = &n
	}
	if o.ClosedAt != nil {
		ts := *o.ClosedAt
		cp.ClosedAt = &ts
	}
	return &cp
}

func cloneMerge(r *models.MergeRequest) *models.MergeRequest {
	cp := *r
	cp.Items = make([]models.MergeItem, len(r.Items))
	copy(cp.Items, r.Items)
	if r.ResolvedBy != nil {
		id := *r.ResolvedBy
		cp.ResolvedBy = &id
	}
	if r.ResolvedAt != nil {
		ts := *r.ResolvedAt
		cp.ResolvedAt = &ts
	}
	return &cp
}
