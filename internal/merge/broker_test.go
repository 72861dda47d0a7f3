package merge_test

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
	waiter    = models.Staff{ID: uuid.New(), Name: "Anna", Role: models.RoleWaiter, TenantID: tenant}
	waiter2   = models.Staff{ID: uuid.New(), Name: "Luca", Role: models.RoleWaiter, TenantID: tenant}
	bartender = models.Staff{ID: uuid.New(), Name: "Gigi", Role: models.RoleBartender, TenantID: tenant}
)

type nopNotifier struct{}

func (nopNotifier) OrderCreated(*models.Order)                                 {}
func (nopNotifier) OrderMerged(*models.Order, []models.OrderLine, string)      {}
func (nopNotifier) OrderStatusChanged(*models.Order, models.OrderStatus, models.OrderStatus) {}
func (nopNotifier) LineUpdated(*models.Order, models.OrderLine, models.LineStatus) {}
func (nopNotifier) OrderCancelled(*models.Order, string)                       {}
func (nopNotifier) MergeRequested(*models.MergeRequest)                        {}
func (nopNotifier) MergeAccepted(*models.MergeRequest, *models.Order, []models.OrderLine, string) {}
func (nopNotifier) MergeRejected(*models.MergeRequest, *models.Order)          {}

type fixture struct {
	service *orders.Service
	broker  *merge.Broker
	store   *storage.Memory
	table   models.Table
	spritz  models.Product
	burger  models.Product
}

// newFixture creates an IN_PROGRESS order on table 7 and returns the wired
// stack: every broker test starts from a station already working the table.
func newFixture(t *testing.T) (*fixture, *models.Order) {
	t.Helper()

	f := &fixture{
		store: storage.NewMemory(),
		table: models.Table{ID: uuid.New(), TenantID: tenant, Number: "7"},
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
	f.store.AddProduct(f.spritz)
	f.store.AddProduct(f.burger)

	log := logger.Discard()
	ledger := inventory.NewLedger()
	f.broker = merge.NewBroker(f.store, ledger, nopNotifier{}, log)
	f.service = orders.NewService(f.store, ledger, orders.NewTransitionAudit(nil), f.broker, nopNotifier{}, log)

	ctx := context.Background()
	result, err := f.service.CreateOrder(ctx, waiter, orders.NewOrder{
		Type:        models.TypeTable,
		TableNumber: "7",
		Items:       []orders.NewItem{{ProductID: f.spritz.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := f.service.AdvanceOrderStatus(ctx, waiter, result.Order.ID, models.StatusInProgress); err != nil {
		t.Fatalf("AdvanceOrderStatus: %v", err)
	}
	o, _ := f.store.Order(result.Order.ID)
	return f, o
}

// submit files a merge request for burgers against the in-progress order.
func (f *fixture) submit(t *testing.T, actor models.Staff, qty int) *models.MergeRequest {
	t.Helper()
	result, err := f.service.CreateOrder(context.Background(), actor, orders.NewOrder{
		Type:        models.TypeTable,
		TableNumber: "7",
		Items:       []orders.NewItem{{ProductID: f.burger.ID, Quantity: qty}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if !result.Pending {
		t.Fatal("expected a pending merge request")
	}
	return result.MergeRequest
}

func TestAcceptFoldsItemsIntoOrder(t *testing.T) {
	f, target := newFixture(t)
	req := f.submit(t, waiter2, 2)

	o, err := f.broker.Accept(context.Background(), bartender, req.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if o.ID != target.ID {
		t.Fatal("accept should grow the target order")
	}
	burgerLine := o.LineByProduct(f.burger.ID)
	if burgerLine == nil || burgerLine.Quantity != 2 {
		t.Fatalf("burger line = %+v, want quantity 2", burgerLine)
	}
	if want := decimal.NewFromFloat(21.00); !o.Total.Equal(want) {
		t.Errorf("total = %s, want %s", o.Total, want)
	}
	if p, _ := f.store.Product(f.burger.ID); p.Reserved != 2 {
		t.Errorf("burger reserved = %d, want 2 after acceptance", p.Reserved)
	}

	stored, _ := f.store.Order(target.ID)
	if len(stored.Lines) != 2 {
		t.Errorf("stored lines = %d, want 2", len(stored.Lines))
	}
}

func TestRejectSpinsOffNewOrder(t *testing.T) {
	f, target := newFixture(t)
	req := f.submit(t, waiter2, 2)

	spinOff, err := f.broker.Reject(context.Background(), bartender, req.ID, "already plating")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}

	// the requested items are never lost: they live on the new order
	if spinOff.ID == target.ID {
		t.Fatal("rejection must create a separate order")
	}
	if spinOff.CreatedBy != waiter2.ID {
		t.Error("spin-off should belong to the original requester")
	}
	if spinOff.Status != models.StatusOrdered {
		t.Errorf("spin-off status = %s, want ORDERED", spinOff.Status)
	}
	line := spinOff.LineByProduct(f.burger.ID)
	if line == nil || line.Quantity != 2 {
		t.Fatalf("spin-off burger line = %+v, want quantity 2", line)
	}
	if p, _ := f.store.Product(f.burger.ID); p.Reserved != 2 {
		t.Errorf("burger reserved = %d, want 2 on the spin-off", p.Reserved)
	}

	// the original order is untouched
	original, _ := f.store.Order(target.ID)
	if len(original.Lines) != 1 {
		t.Errorf("original lines = %d, want 1", len(original.Lines))
	}

	pending, _ := f.broker.ListPending(context.Background(), waiter)
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0 after resolution", len(pending))
	}
}

func TestRequestResolvedExactlyOnce(t *testing.T) {
	f, _ := newFixture(t)
	req := f.submit(t, waiter2, 1)
	ctx := context.Background()

	if _, err := f.broker.Accept(ctx, bartender, req.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if _, err := f.broker.Accept(ctx, bartender, req.ID); err == nil {
		t.Error("second accept should fail")
	}
	if _, err := f.broker.Reject(ctx, bartender, req.ID, "late"); err == nil {
		t.Error("reject after accept should fail")
	}
}

func TestDuplicateSubmissionConflicts(t *testing.T) {
	f, _ := newFixture(t)
	f.submit(t, waiter2, 2)

	// identical item set by the same requester moments later
	_, err := f.service.CreateOrder(context.Background(), waiter2, orders.NewOrder{
		Type:        models.TypeTable,
		TableNumber: "7",
		Items:       []orders.NewItem{{ProductID: f.burger.ID, Quantity: 2}},
	})

	var conflict *merge.ConflictingMergeRequestError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictingMergeRequestError, got %v", err)
	}
	if conflict.Code() != orders.ReasonConflictingMergeRequest {
		t.Errorf("Code() = %s, want %s", conflict.Code(), orders.ReasonConflictingMergeRequest)
	}

	// a different item set is a genuine second request
	result, err := f.service.CreateOrder(context.Background(), waiter2, orders.NewOrder{
		Type:        models.TypeTable,
		TableNumber: "7",
		Items:       []orders.NewItem{{ProductID: f.burger.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("different item set: %v", err)
	}
	if !result.Pending {
		t.Error("different item set should file a new request")
	}
}

func TestAcceptFailsWhenInventoryGone(t *testing.T) {
	f, _ := newFixture(t)
	req := f.submit(t, waiter2, 4)

	// someone else takes the remaining burgers before the station decides
	takeaway, err := f.service.CreateOrder(context.Background(), waiter, orders.NewOrder{
		Type:  models.TypeTakeaway,
		Items: []orders.NewItem{{ProductID: f.burger.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("takeaway order: %v", err)
	}
	_ = takeaway

	_, err = f.broker.Accept(context.Background(), bartender, req.ID)
	var insufficient *inventory.InsufficientError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientError, got %v", err)
	}

	// the failed acceptance leaves the request pending for a later retry
	pending, _ := f.broker.ListPending(context.Background(), waiter)
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1 after failed accept", len(pending))
	}
}

func TestResolverNeedsCapability(t *testing.T) {
	f, _ := newFixture(t)
	req := f.submit(t, waiter2, 1)

	_, err := f.broker.Accept(context.Background(), waiter, req.ID)
	var permErr *orders.PermissionDeniedError
	if !errors.As(err, &permErr) {
		t.Errorf("waiter resolving: expected PermissionDeniedError, got %v", err)
	}
}
