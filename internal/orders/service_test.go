package orders_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/antonio12761/roxy-bar-sub000/internal/inventory"
	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
	"github.com/antonio12761/roxy-bar-sub000/internal/merge"
	"github.com/antonio12761/roxy-bar-sub000/internal/models"
	"github.com/antonio12761/roxy-bar-sub000/internal/orders"
	"github.com/antonio12761/roxy-bar-sub000/internal/storage"
)

const tenant = "roxy"

var (
	waiter  = models.Staff{ID: uuid.New(), Name: "Anna", Role: models.RoleWaiter, TenantID: tenant}
	waiter2 = models.Staff{ID: uuid.New(), Name: "Luca", Role: models.RoleWaiter, TenantID: tenant}
	manager = models.Staff{ID: uuid.New(), Name: "Marta", Role: models.RoleManager, TenantID: tenant}
	cashier = models.Staff{ID: uuid.New(), Name: "Pino", Role: models.RoleCashier, TenantID: tenant}
)

// recorder captures post-commit notifications for assertions.
type recorder struct {
	calls []string
}

func (r *recorder) OrderCreated(o *models.Order) { r.calls = append(r.calls, "created") }
func (r *recorder) OrderMerged(o *models.Order, newLines []models.OrderLine, mergedBy string) {
	r.calls = append(r.calls, "merged")
}
func (r *recorder) OrderStatusChanged(o *models.Order, from, to models.OrderStatus) {
	r.calls = append(r.calls, "status:"+string(to))
}
func (r *recorder) LineUpdated(o *models.Order, line models.OrderLine, previous models.LineStatus) {
	r.calls = append(r.calls, "line")
}
func (r *recorder) OrderCancelled(o *models.Order, reason string) {
	r.calls = append(r.calls, "cancelled")
}
func (r *recorder) MergeRequested(req *models.MergeRequest) { r.calls = append(r.calls, "requested") }
func (r *recorder) MergeAccepted(req *models.MergeRequest, o *models.Order, added []models.OrderLine, resolvedBy string) {
	r.calls = append(r.calls, "accepted")
}
func (r *recorder) MergeRejected(req *models.MergeRequest, spinOff *models.Order) {
	r.calls = append(r.calls, "rejected")
}

func (r *recorder) has(call string) bool {
	for _, c := range r.calls {
		if c == call {
			return true
		}
	}
	return false
}

type fixture struct {
	service  *orders.Service
	broker   *merge.Broker
	store    *storage.Memory
	rec      *recorder
	table    models.Table
	espresso models.Product
	spritz   models.Product
	burger   models.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: storage.NewMemory(),
		rec:   &recorder{},
		table: models.Table{ID: uuid.New(), TenantID: tenant, Number: "12"},
		espresso: models.Product{
			ID: uuid.New(), Name: "Espresso", Station: models.StationCounter,
			Price: decimal.NewFromFloat(1.20), Available: 100,
		},
		spritz: models.Product{
			ID: uuid.New(), Name: "Spritz", Station: models.StationBar,
			Price: decimal.NewFromFloat(5.00), Available: 10, RequiresGlass: true,
		},
		burger: models.Product{
			ID: uuid.New(), Name: "Burger", Station: models.StationKitchen,
			Price: decimal.NewFromFloat(8.00), Available: 5,
		},
	}
	f.store.AddTable(f.table)
	f.store.AddProduct(f.espresso)
	f.store.AddProduct(f.spritz)
	f.store.AddProduct(f.burger)

	ledger := inventory.NewLedger()
	audit := orders.NewTransitionAudit(nil)
	log := logger.Discard()
	f.broker = merge.NewBroker(f.store, ledger, f.rec, log)
	f.service = orders.NewService(f.store, ledger, audit, f.broker, f.rec, log)
	return f
}

func (f *fixture) create(t *testing.T, actor models.Staff, req orders.NewOrder) *orders.CreateResult {
	t.Helper()
	result, err := f.service.CreateOrder(context.Background(), actor, req)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return result
}

func tableOrder(items ...orders.NewItem) orders.NewOrder {
	return orders.NewOrder{Type: models.TypeTable, TableNumber: "12", Items: items}
}

func TestCreateOrderReservesAndOccupiesTable(t *testing.T) {
	f := newFixture(t)

	result := f.create(t, waiter, tableOrder(
		orders.NewItem{ProductID: f.espresso.ID, Quantity: 2},
		orders.NewItem{ProductID: f.spritz.ID, Quantity: 1},
	))

	o := result.Order
	if o.Status != models.StatusOrdered {
		t.Errorf("status = %s, want ORDERED", o.Status)
	}
	if len(o.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(o.Lines))
	}
	if want := decimal.NewFromFloat(7.40); !o.Total.Equal(want) {
		t.Errorf("total = %s, want %s", o.Total, want)
	}

	if p, _ := f.store.Product(f.espresso.ID); p.Reserved != 2 {
		t.Errorf("espresso reserved = %d, want 2", p.Reserved)
	}
	if p, _ := f.store.Product(f.spritz.ID); p.Reserved != 1 {
		t.Errorf("spritz reserved = %d, want 1", p.Reserved)
	}
	if tb, _ := f.store.Table(f.table.ID); !tb.Occupied {
		t.Error("table should be occupied")
	}

	// the spritz needs a glass, the espresso does not
	for _, l := range o.Lines {
		want := 0
		if l.ProductID == f.spritz.ID {
			want = 1
		}
		if l.GlassCount != want {
			t.Errorf("%s glass count = %d, want %d", l.ProductName, l.GlassCount, want)
		}
	}

	if !f.rec.has("created") {
		t.Error("expected an order:new notification")
	}
}

func TestCreateOrderSilentlyMergesIntoOrderedOrder(t *testing.T) {
	f := newFixture(t)

	first := f.create(t, waiter, tableOrder(orders.NewItem{ProductID: f.espresso.ID, Quantity: 2}))
	second := f.create(t, waiter2, tableOrder(
		orders.NewItem{ProductID: f.espresso.ID, Quantity: 1, Note: "macchiato"},
		orders.NewItem{ProductID: f.burger.ID, Quantity: 1},
	))

	if !second.Merged {
		t.Fatal("expected a silent merge")
	}
	if second.Order.ID != first.Order.ID {
		t.Fatal("merge should land on the existing order")
	}

	o, _ := f.store.Order(first.Order.ID)
	if len(o.Lines) != 2 {
		t.Fatalf("lines = %d, want espresso and burger", len(o.Lines))
	}
	espressoLine := o.LineByProduct(f.espresso.ID)
	if espressoLine.Quantity != 3 {
		t.Errorf("espresso quantity = %d, want 3", espressoLine.Quantity)
	}
	if espressoLine.Note != "macchiato" {
		t.Errorf("note = %q, want the merged note", espressoLine.Note)
	}

	if p, _ := f.store.Product(f.espresso.ID); p.Reserved != 3 {
		t.Errorf("espresso reserved = %d, want 3", p.Reserved)
	}
}

func TestCreateOrderNeedsConsentForInProgressOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.create(t, waiter, tableOrder(orders.NewItem{ProductID: f.espresso.ID, Quantity: 1}))
	if _, err := f.service.AdvanceOrderStatus(ctx, waiter, first.Order.ID, models.StatusInProgress); err != nil {
		t.Fatalf("AdvanceOrderStatus: %v", err)
	}

	second := f.create(t, waiter2, tableOrder(orders.NewItem{ProductID: f.burger.ID, Quantity: 2}))
	if !second.Pending {
		t.Fatal("expected a pending merge request")
	}
	if second.MergeRequest.OrderID != first.Order.ID {
		t.Error("request should target the in-progress order")
	}

	// nothing is reserved until the station consents
	if p, _ := f.store.Product(f.burger.ID); p.Reserved != 0 {
		t.Errorf("burger reserved = %d, want 0 while pending", p.Reserved)
	}

	pending, err := f.broker.ListPending(ctx, waiter)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending requests = %d, want 1", len(pending))
	}
	if !f.rec.has("requested") {
		t.Error("expected a merge:request notification")
	}
}

func TestCreateOrderRejectsDuplicateSubmission(t *testing.T) {
	f := newFixture(t)

	// payment flags differ, so the second submission cannot silently merge
	req := tableOrder(orders.NewItem{ProductID: f.espresso.ID, Quantity: 2})
	req.PaymentPending = true
	f.create(t, waiter, req)

	dup := tableOrder(orders.NewItem{ProductID: f.espresso.ID, Quantity: 2})
	_, err := f.service.CreateOrder(context.Background(), waiter, dup)

	var dupErr *orders.DuplicateSubmissionError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateSubmissionError, got %v", err)
	}
	if dupErr.TableNumber != "12" {
		t.Errorf("TableNumber = %s, want 12", dupErr.TableNumber)
	}
}

func TestCreateOrderInventoryIsAllOrNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateOrder(context.Background(), waiter, tableOrder(
		orders.NewItem{ProductID: f.espresso.ID, Quantity: 1},
		orders.NewItem{ProductID: f.burger.ID, Quantity: 6}, // only 5 available
	))

	var insufficient *inventory.InsufficientError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientError, got %v", err)
	}
	if len(insufficient.Shortfalls) != 1 {
		t.Fatalf("shortfalls = %d, want 1", len(insufficient.Shortfalls))
	}
	s := insufficient.Shortfalls[0]
	if s.ProductID != f.burger.ID || s.Requested != 6 || s.Available != 5 {
		t.Errorf("shortfall = %+v, want burger 6/5", s)
	}

	// the satisfiable item must not be held either
	if p, _ := f.store.Product(f.espresso.ID); p.Reserved != 0 {
		t.Errorf("espresso reserved = %d, want 0 after rollback", p.Reserved)
	}
	if tb, _ := f.store.Table(f.table.ID); tb.Occupied {
		t.Error("table should not be occupied after rollback")
	}
}

func TestCreateOrderPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := tableOrder(orders.NewItem{ProductID: f.espresso.ID, Quantity: 1})

	_, err := f.service.CreateOrder(ctx, models.Staff{}, req)
	var authErr *orders.AuthenticationRequiredError
	if !errors.As(err, &authErr) {
		t.Errorf("anonymous actor: expected AuthenticationRequiredError, got %v", err)
	}

	_, err = f.service.CreateOrder(ctx, cashier, req)
	var permErr *orders.PermissionDeniedError
	if !errors.As(err, &permErr) {
		t.Errorf("cashier: expected PermissionDeniedError, got %v", err)
	}
}

func TestCancelOrderReleasesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.create(t, waiter, tableOrder(orders.NewItem{ProductID: f.spritz.ID, Quantity: 3}))
	if err := f.service.CancelOrder(ctx, waiter, result.Order.ID, "changed their mind"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	if _, ok := f.store.Order(result.Order.ID); ok {
		t.Error("cancelled order should be deleted")
	}
	if p, _ := f.store.Product(f.spritz.ID); p.Reserved != 0 {
		t.Errorf("spritz reserved = %d, want 0", p.Reserved)
	}
	if p, _ := f.store.Product(f.spritz.ID); p.Available != 10 {
		t.Errorf("spritz available = %d, cancellation must not deplete stock", p.Available)
	}
	if tb, _ := f.store.Table(f.table.ID); tb.Occupied {
		t.Error("table should be freed")
	}
	if !f.rec.has("cancelled") {
		t.Error("expected an order:cancelled notification")
	}
}

func TestCancelOrderOnlyCreatorWhileOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.create(t, waiter, tableOrder(orders.NewItem{ProductID: f.espresso.ID, Quantity: 1}))
	orderID := result.Order.ID

	var permErr *orders.PermissionDeniedError
	if err := f.service.CancelOrder(ctx, waiter2, orderID, ""); !errors.As(err, &permErr) {
		t.Errorf("another waiter: expected PermissionDeniedError, got %v", err)
	}

	if _, err := f.service.AdvanceOrderStatus(ctx, waiter, orderID, models.StatusInProgress); err != nil {
		t.Fatalf("AdvanceOrderStatus: %v", err)
	}
	if err := f.service.CancelOrder(ctx, waiter, orderID, ""); !errors.As(err, &permErr) {
		t.Errorf("creator after work started: expected PermissionDeniedError, got %v", err)
	}

	// the override capability still works
	if err := f.service.CancelOrder(ctx, manager, orderID, "kitchen out of stock"); err != nil {
		t.Errorf("manager: %v", err)
	}
}

func TestAdvanceOrderStatusValidatesEdges(t *testing.T) {
	f := newFixture(t)

	result := f.create(t, waiter, tableOrder(orders.NewItem{ProductID: f.espresso.ID, Quantity: 1}))

	_, err := f.service.AdvanceOrderStatus(context.Background(), manager, result.Order.ID, models.StatusPaid)
	var invalid *orders.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.Current != models.StatusOrdered || invalid.Next != models.StatusPaid {
		t.Errorf("error edge = %s -> %s, want ORDERED -> PAID", invalid.Current, invalid.Next)
	}
}

func TestPaidDepletesInventoryAndFreesTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.create(t, waiter, tableOrder(orders.NewItem{ProductID: f.spritz.ID, Quantity: 2}))
	orderID := result.Order.ID

	for _, next := range []models.OrderStatus{
		models.StatusInProgress, models.StatusReady, models.StatusDelivered,
	} {
		if _, err := f.service.AdvanceOrderStatus(ctx, waiter, orderID, next); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	paid, err := f.service.AdvanceOrderStatus(ctx, cashier, orderID, models.StatusPaid)
	if err != nil {
		t.Fatalf("advance to PAID: %v", err)
	}

	if paid.ClosedAt == nil {
		t.Error("ClosedAt should be stamped on payment")
	}
	p, _ := f.store.Product(f.spritz.ID)
	if p.Reserved != 0 {
		t.Errorf("reserved = %d, want 0 after payment", p.Reserved)
	}
	if p.Available != 8 {
		t.Errorf("available = %d, want 8 after depletion", p.Available)
	}
	if tb, _ := f.store.Table(f.table.ID); tb.Occupied {
		t.Error("table should be freed after payment")
	}
}

func TestWaiterCannotSettlePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.create(t, waiter, tableOrder(orders.NewItem{ProductID: f.espresso.ID, Quantity: 1}))
	for _, next := range []models.OrderStatus{
		models.StatusInProgress, models.StatusReady, models.StatusDelivered,
	} {
		if _, err := f.service.AdvanceOrderStatus(ctx, waiter, result.Order.ID, next); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}

	_, err := f.service.AdvanceOrderStatus(ctx, waiter, result.Order.ID, models.StatusPaid)
	var permErr *orders.PermissionDeniedError
	if !errors.As(err, &permErr) {
		t.Errorf("expected PermissionDeniedError, got %v", err)
	}
}

func TestAdvanceLineStatusPullsOrderForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.create(t, waiter, tableOrder(orders.NewItem{ProductID: f.burger.ID, Quantity: 1}))
	lineID := result.Order.Lines[0].ID

	o, err := f.service.AdvanceLineStatus(ctx, waiter, lineID, models.LineInProgress)
	if err != nil {
		t.Fatalf("AdvanceLineStatus: %v", err)
	}
	if o.Status != models.StatusInProgress {
		t.Errorf("order status = %s, want IN_PROGRESS after first line starts", o.Status)
	}
	if o.Lines[0].StartedAt == nil {
		t.Error("StartedAt should be stamped")
	}

	o, err = f.service.AdvanceLineStatus(ctx, waiter, lineID, models.LineReady)
	if err != nil {
		t.Fatalf("AdvanceLineStatus: %v", err)
	}
	if o.Status != models.StatusReady {
		t.Errorf("order status = %s, want READY when every line is ready", o.Status)
	}
	if o.Lines[0].ReadyAt == nil {
		t.Error("ReadyAt should be stamped")
	}
}

func TestCancelLastLineCancelsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.create(t, waiter, tableOrder(orders.NewItem{ProductID: f.espresso.ID, Quantity: 2}))
	lineID := result.Order.Lines[0].ID

	if _, err := f.service.CancelOrderLine(ctx, waiter, lineID); err != nil {
		t.Fatalf("CancelOrderLine: %v", err)
	}

	if _, ok := f.store.Order(result.Order.ID); ok {
		t.Error("cancelling the last line should cancel the order")
	}
	if p, _ := f.store.Product(f.espresso.ID); p.Reserved != 0 {
		t.Errorf("reserved = %d, want 0", p.Reserved)
	}
	if tb, _ := f.store.Table(f.table.ID); tb.Occupied {
		t.Error("table should be freed")
	}
}

func TestChangeLineQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.create(t, waiter, tableOrder(orders.NewItem{ProductID: f.spritz.ID, Quantity: 2}))
	lineID := result.Order.Lines[0].ID

	o, err := f.service.ChangeLineQuantity(ctx, waiter, lineID, 5)
	if err != nil {
		t.Fatalf("increase: %v", err)
	}
	if o.Lines[0].Quantity != 5 || o.Lines[0].GlassCount != 5 {
		t.Errorf("quantity/glass = %d/%d, want 5/5", o.Lines[0].Quantity, o.Lines[0].GlassCount)
	}
	if p, _ := f.store.Product(f.spritz.ID); p.Reserved != 5 {
		t.Errorf("reserved = %d, want 5", p.Reserved)
	}

	o, err = f.service.ChangeLineQuantity(ctx, waiter, lineID, 1)
	if err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if p, _ := f.store.Product(f.spritz.ID); p.Reserved != 1 {
		t.Errorf("reserved = %d, want 1", p.Reserved)
	}
	if want := decimal.NewFromFloat(5.00); !o.Total.Equal(want) {
		t.Errorf("total = %s, want %s", o.Total, want)
	}

	// only 10 spritz exist in total
	_, err = f.service.ChangeLineQuantity(ctx, waiter, lineID, 20)
	var insufficient *inventory.InsufficientError
	if !errors.As(err, &insufficient) {
		t.Errorf("expected InsufficientError, got %v", err)
	}
	if p, _ := f.store.Product(f.spritz.ID); p.Reserved != 1 {
		t.Errorf("reserved = %d after failed increase, want 1", p.Reserved)
	}
}

func TestCompleteAllLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.create(t, waiter, tableOrder(
		orders.NewItem{ProductID: f.espresso.ID, Quantity: 1},
		orders.NewItem{ProductID: f.burger.ID, Quantity: 1},
	))

	o, err := f.service.CompleteAllLines(ctx, waiter, result.Order.ID)
	if err != nil {
		t.Fatalf("CompleteAllLines: %v", err)
	}
	if o.Status != models.StatusReady {
		t.Errorf("order status = %s, want READY", o.Status)
	}
	for _, l := range o.Lines {
		if l.Status != models.LineReady {
			t.Errorf("line %s status = %s, want READY", l.ProductName, l.Status)
		}
		if l.ReadyAt == nil {
			t.Errorf("line %s ReadyAt not stamped", l.ProductName)
		}
	}

	// a second completion is a no-op, not an error
	again, err := f.service.CompleteAllLines(ctx, waiter, result.Order.ID)
	if err != nil {
		t.Fatalf("second CompleteAllLines: %v", err)
	}
	if again.Status != models.StatusReady {
		t.Errorf("order status = %s, want READY", again.Status)
	}
}

func TestCompleteAllLinesAfterDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.create(t, waiter, tableOrder(orders.NewItem{ProductID: f.espresso.ID, Quantity: 1}))
	if _, err := f.service.CompleteAllLines(ctx, waiter, result.Order.ID); err != nil {
		t.Fatalf("CompleteAllLines: %v", err)
	}
	if _, err := f.service.MarkOrderPickedUp(ctx, waiter, result.Order.ID); err != nil {
		t.Fatalf("MarkOrderPickedUp: %v", err)
	}

	// the lines are already done, so this is a no-op, never a silent nil order
	o, err := f.service.CompleteAllLines(ctx, waiter, result.Order.ID)
	if err != nil {
		t.Fatalf("CompleteAllLines after delivery: %v", err)
	}
	if o == nil {
		t.Fatal("expected the order back, got nil")
	}
	if o.Status != models.StatusDelivered {
		t.Errorf("order status = %s, want DELIVERED unchanged", o.Status)
	}
}

func TestCancelPaidOrderIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.create(t, waiter, tableOrder(orders.NewItem{ProductID: f.spritz.ID, Quantity: 2}))
	orderID := result.Order.ID
	for _, next := range []models.OrderStatus{
		models.StatusInProgress, models.StatusReady, models.StatusDelivered,
	} {
		if _, err := f.service.AdvanceOrderStatus(ctx, waiter, orderID, next); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}
	if _, err := f.service.AdvanceOrderStatus(ctx, cashier, orderID, models.StatusPaid); err != nil {
		t.Fatalf("advance to PAID: %v", err)
	}
	lineID := result.Order.Lines[0].ID

	var invalid *orders.InvalidTransitionError
	if err := f.service.CancelOrder(ctx, manager, orderID, "refund"); !errors.As(err, &invalid) {
		t.Errorf("cancel paid order: expected InvalidTransitionError, got %v", err)
	}
	if _, err := f.service.CancelOrderLine(ctx, manager, lineID); !errors.As(err, &invalid) {
		t.Errorf("cancel paid line: expected InvalidTransitionError, got %v", err)
	}

	// payment already settled the holds; a rejected cancel must not touch them
	p, _ := f.store.Product(f.spritz.ID)
	if p.Reserved != 0 {
		t.Errorf("reserved = %d, want 0", p.Reserved)
	}
	if p.Available != 8 {
		t.Errorf("available = %d, want 8", p.Available)
	}
}

func TestMarkOrderPickedUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.create(t, waiter, tableOrder(orders.NewItem{ProductID: f.espresso.ID, Quantity: 1}))
	if _, err := f.service.CompleteAllLines(ctx, waiter, result.Order.ID); err != nil {
		t.Fatalf("CompleteAllLines: %v", err)
	}

	o, err := f.service.MarkOrderPickedUp(ctx, waiter, result.Order.ID)
	if err != nil {
		t.Fatalf("MarkOrderPickedUp: %v", err)
	}
	if o.Status != models.StatusDelivered {
		t.Errorf("order status = %s, want DELIVERED", o.Status)
	}
	if o.Lines[0].Status != models.LineDelivered || o.Lines[0].DeliveredAt == nil {
		t.Error("line should be DELIVERED with a timestamp")
	}
}

func TestListOpenOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, waiter, orders.NewOrder{
		Type:  models.TypeTakeaway,
		Items: []orders.NewItem{{ProductID: f.espresso.ID, Quantity: 1}},
	})
	f.create(t, waiter, tableOrder(orders.NewItem{ProductID: f.burger.ID, Quantity: 1}))

	list, err := f.service.ListOpenOrders(ctx, waiter)
	if err != nil {
		t.Fatalf("ListOpenOrders: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("open orders = %d, want 2", len(list))
	}
}
