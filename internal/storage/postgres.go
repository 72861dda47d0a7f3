package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/antonio12761/roxy-bar-sub000/internal/database"
	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
	"github.com/antonio12761/roxy-bar-sub000/internal/models"
)

// Postgres implements Store on top of a pgx connection pool.
type Postgres struct {
	db  *database.DB
	log *logger.Logger
}

// NewPostgres creates a PostgreSQL-backed store.
func NewPostgres(db *database.DB, log *logger.Logger) *Postgres {
	return &Postgres{db: db, log: log}
}

// WithinTx implements Store. The native transaction isolation of PostgreSQL
// is the only concurrency control; lock waits are bounded by LockWait and
// the whole transaction by the configured timeout.
func (s *Postgres) WithinTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx Tx) error) error {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	txOpts := pgx.TxOptions{}
	if opts.Serializable {
		txOpts.IsoLevel = pgx.Serializable
	}

	tx, err := s.db.BeginTx(ctx, txOpts)
	if err != nil {
		return mapTxError("begin", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if _, err := tx.Exec(ctx, "SET LOCAL lock_timeout = '5s'"); err != nil {
		return mapTxError("lock_timeout", err)
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return mapTxError("tx", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapTxError("commit", err)
	}
	return nil
}

// ListOpenOrders implements Store.
func (s *Postgres) ListOpenOrders(ctx context.Context, tenantID string) ([]*models.Order, error) {
	rows, err := s.db.Query(ctx, database.SelectOpenOrdersSQL, tenantID)
	if err != nil {
		return nil, err
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if err := attachLines(ctx, s.db.Pool, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListPendingMergeRequests implements Store.
func (s *Postgres) ListPendingMergeRequests(ctx context.Context, tenantID string) ([]*models.MergeRequest, error) {
	rows, err := s.db.Query(ctx, database.SelectPendingMergeRequestsSQL, tenantID)
	if err != nil {
		return nil, err
	}
	reqs, err := scanMergeRequests(rows)
	if err != nil {
		return nil, err
	}
	if err := attachMergeItems(ctx, s.db.Pool, reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// mapTxError converts lock and deadline failures into TimeoutError so
// callers see a single retryable "operation expired" shape.
func mapTxError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "57014", "40001", "40P01":
			// lock not available, query cancelled, serialization failure, deadlock
			return &TimeoutError{Op: op, Err: err}
		}
	}
	return err
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) OrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row := t.tx.QueryRow(ctx, database.SelectOrderSQL, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "order", ID: id}
		}
		return nil, err
	}
	if err := attachLines(ctx, t.tx, []*models.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (t *pgTx) OrderByLineID(ctx context.Context, lineID uuid.UUID) (*models.Order, error) {
	row := t.tx.QueryRow(ctx, database.SelectOrderByLineSQL, lineID)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "order line", ID: lineID}
		}
		return nil, err
	}
	if err := attachLines(ctx, t.tx, []*models.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (t *pgTx) OpenOrdersOnTable(ctx context.Context, tableID uuid.UUID) ([]*models.Order, error) {
	rows, err := t.tx.Query(ctx, database.SelectOpenOrdersOnTableSQL, tableID)
	if err != nil {
		return nil, err
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if err := attachLines(ctx, t.tx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (t *pgTx) RecentOrdersOnTable(ctx context.Context, tableID uuid.UUID, since time.Time) ([]*models.Order, error) {
	rows, err := t.tx.Query(ctx, database.SelectRecentOrdersOnTableSQL, tableID, since)
	if err != nil {
		return nil, err
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if err := attachLines(ctx, t.tx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *models.Order) error {
	_, err := t.tx.Exec(ctx, database.InsertOrderSQL,
		o.ID, o.TenantID, o.TableID, o.TableNumber, o.Type, o.Status, o.Total,
		o.CustomerName, o.Note, o.PaymentPending, o.CreatedBy, o.CreatedByName, o.OpenedAt)
	if err != nil {
		return err
	}
	for i := range o.Lines {
		if err := t.InsertLine(ctx, &o.Lines[i]); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *models.Order) error {
	tag, err := t.tx.Exec(ctx, database.UpdateOrderSQL,
		o.ID, o.Status, o.Total, o.Note, o.PaymentPending, o.ClosedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "order", ID: o.ID}
	}
	return nil
}

func (t *pgTx) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, database.DeleteOrderSQL, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "order", ID: id}
	}
	return nil
}

func (t *pgTx) InsertLine(ctx context.Context, l *models.OrderLine) error {
	_, err := t.tx.Exec(ctx, database.InsertLineSQL,
		l.ID, l.OrderID, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice,
		l.Status, l.Station, l.GlassCount, l.Note, l.StartedAt, l.ReadyAt, l.DeliveredAt)
	return err
}

func (t *pgTx) UpdateLine(ctx context.Context, l *models.OrderLine) error {
	tag, err := t.tx.Exec(ctx, database.UpdateLineSQL,
		l.ID, l.Quantity, l.Status, l.GlassCount, l.Note, l.StartedAt, l.ReadyAt, l.DeliveredAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "order line", ID: l.ID}
	}
	return nil
}

func (t *pgTx) DeleteLine(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, database.DeleteLineSQL, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "order line", ID: id}
	}
	return nil
}

func (t *pgTx) ProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	row := t.tx.QueryRow(ctx, database.SelectProductSQL, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "product", ID: id}
		}
		return nil, err
	}
	return p, nil
}

func (t *pgTx) ProductsForUpdate(ctx context.Context, ids []uuid.UUID) ([]*models.Product, error) {
	rows, err := t.tx.Query(ctx, database.SelectProductsForUpdateSQL, uuidStrings(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*models.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*models.Product, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, &NotFoundError{Kind: "product", ID: id}
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *pgTx) AdjustInventory(ctx context.Context, productID uuid.UUID, reservedDelta, availableDelta int) error {
	tag, err := t.tx.Exec(ctx, database.AdjustInventorySQL, productID, reservedDelta, availableDelta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "product", ID: productID}
	}
	return nil
}

func (t *pgTx) TableByNumber(ctx context.Context, tenantID, number string) (*models.Table, error) {
	tb := models.Table{TenantID: tenantID}
	err := t.tx.QueryRow(ctx, database.SelectTableByNumberSQL, tenantID, number).
		Scan(&tb.ID, &tb.Number, &tb.Occupied)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "table", ID: uuid.Nil}
		}
		return nil, err
	}
	return &tb, nil
}

func (t *pgTx) SetTableOccupied(ctx context.Context, tableID uuid.UUID, occupied bool) error {
	tag, err := t.tx.Exec(ctx, database.SetTableOccupiedSQL, tableID, occupied)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "table", ID: tableID}
	}
	return nil
}

func (t *pgTx) InsertMergeRequest(ctx context.Context, r *models.MergeRequest) error {
	_, err := t.tx.Exec(ctx, database.InsertMergeRequestSQL,
		r.ID, r.TenantID, r.OrderID, r.TableID, r.TableNumber,
		r.RequestedBy, r.RequesterName, r.Status, r.CreatedAt)
	if err != nil {
		return err
	}
	for _, it := range r.Items {
		_, err := t.tx.Exec(ctx, database.InsertMergeRequestItemSQL,
			r.ID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.Note)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) MergeRequestByID(ctx context.Context, id uuid.UUID) (*models.MergeRequest, error) {
	row := t.tx.QueryRow(ctx, database.SelectMergeRequestSQL, id)
	r, err := scanMergeRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "merge request", ID: id}
		}
		return nil, err
	}
	if err := attachMergeItems(ctx, t.tx, []*models.MergeRequest{r}); err != nil {
		return nil, err
	}
	return r, nil
}

func (t *pgTx) LatestPendingMergeRequest(ctx context.Context, orderID, requestedBy uuid.UUID) (*models.MergeRequest, error) {
	row := t.tx.QueryRow(ctx, database.SelectLatestPendingMergeRequestSQL, orderID, requestedBy)
	r, err := scanMergeRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Kind: "merge request", ID: uuid.Nil}
		}
		return nil, err
	}
	if err := attachMergeItems(ctx, t.tx, []*models.MergeRequest{r}); err != nil {
		return nil, err
	}
	return r, nil
}

func (t *pgTx) ResolveMergeRequest(ctx context.Context, r *models.MergeRequest) error {
	tag, err := t.tx.Exec(ctx, database.ResolveMergeRequestSQL,
		r.ID, r.Status, r.ResolvedBy, r.ResolvedAt, r.RejectReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "merge request", ID: r.ID}
	}
	return nil
}

func (t *pgTx) AppendStatusLog(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus, changedBy string) error {
	_, err := t.tx.Exec(ctx, database.InsertStatusLogSQL, orderID, from, to, changedBy)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.TenantID, &o.TableID, &o.TableNumber, &o.Type, &o.Status, &o.Total,
		&o.CustomerName, &o.Note, &o.PaymentPending, &o.CreatedBy, &o.CreatedByName, &o.OpenedAt, &o.ClosedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanOrders(rows pgx.Rows) ([]*models.Order, error) {
	defer rows.Close()
	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Station, &p.Price,
		&p.Available, &p.Reserved, &p.RequiresGlass)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanMergeRequest(row rowScanner) (*models.MergeRequest, error) {
	var r models.MergeRequest
	err := row.Scan(&r.ID, &r.TenantID, &r.OrderID, &r.TableID, &r.TableNumber,
		&r.RequestedBy, &r.RequesterName, &r.Status, &r.ResolvedBy, &r.ResolvedAt,
		&r.RejectReason, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanMergeRequests(rows pgx.Rows) ([]*models.MergeRequest, error) {
	defer rows.Close()
	var out []*models.MergeRequest
	for rows.Next() {
		r, err := scanMergeRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func attachLines(ctx context.Context, q querier, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID.String())
	}

	rows, err := q.Query(ctx, database.SelectLinesForOrdersSQL, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var l models.OrderLine
		err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice,
			&l.Status, &l.Station, &l.GlassCount, &l.Note, &l.StartedAt, &l.ReadyAt, &l.DeliveredAt)
		if err != nil {
			return err
		}
		if o, ok := byID[l.OrderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	return rows.Err()
}

func attachMergeItems(ctx context.Context, q querier, reqs []*models.MergeRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.MergeRequest, len(reqs))
	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		byID[r.ID] = r
		ids = append(ids, r.ID.String())
	}

	rows, err := q.Query(ctx, database.SelectMergeRequestItemsForSQL, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var reqID uuid.UUID
		var it models.MergeItem
		err := rows.Scan(&reqID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.Note)
		if err != nil {
			return err
		}
		if r, ok := byID[reqID]; ok {
			r.Items = append(r.Items, it)
		}
	}
	return rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
