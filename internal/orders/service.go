package orders

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub000/internal/inventory"
	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
	"github.com/antonio12761/roxy-bar-sub000/internal/models"
	"github.com/antonio12761/roxy-bar-sub000/internal/storage"
)

// duplicateWindow is how far back the duplicate-submission heuristic looks
// for an identical item set on the same table.
const duplicateWindow = 5 * time.Minute

// Notifier receives committed mutations. Implementations fan the change out
// to connected stations; they are invoked only after commit, never inside
// the transaction.
type Notifier interface {
	OrderCreated(o *models.Order)
	OrderMerged(o *models.Order, newLines []models.OrderLine, mergedBy string)
	OrderStatusChanged(o *models.Order, from, to models.OrderStatus)
	LineUpdated(o *models.Order, line models.OrderLine, previous models.LineStatus)
	OrderCancelled(o *models.Order, reason string)
	MergeRequested(r *models.MergeRequest)
}

// MergeSubmitter files a merge request inside the caller's transaction.
// Implemented by the merge broker.
type MergeSubmitter interface {
	SubmitInTx(ctx context.Context, tx storage.Tx, r *models.MergeRequest) error
}

// NewItem is one requested product/quantity pair in a creation or merge.
type NewItem struct {
	ProductID uuid.UUID
	Quantity  int
	Note      string
}

// NewOrder is the input of CreateOrder.
type NewOrder struct {
	Type           models.OrderType
	TableNumber    string
	CustomerName   string
	Note           string
	PaymentPending bool
	Items          []NewItem
}

// CreateResult is the discriminated outcome of CreateOrder. Exactly one of
// the three shapes holds: a fresh or silently merged order, or a pending
// merge request awaiting station consent.
type CreateResult struct {
	Order        *models.Order
	Merged       bool
	Pending      bool
	MergeRequest *models.MergeRequest
}

// Service implements the order mutation operations. Every write runs inside
// one transaction together with the inventory reservation it depends on;
// notification emission happens only after commit.
type Service struct {
	store    storage.Store
	ledger   *inventory.Ledger
	audit    *TransitionAudit
	requests MergeSubmitter
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

// NewService wires the mutation service. notifier and requests may be nil
// in contexts that do not fan out events or broker merges.
func NewService(store storage.Store, ledger *inventory.Ledger, audit *TransitionAudit, requests MergeSubmitter, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		ledger:   ledger,
		audit:    audit,
		requests: requests,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// CreateOrder opens a new order, or folds it into an existing one on the
// same table, per the table-conflict rules.
func (s *Service) CreateOrder(ctx context.Context, actor models.Staff, req NewOrder) (*CreateResult, error) {
	if err := requireCapability(actor, models.CapPlaceOrder, "place orders"); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, &ValidationError{Field: "items", Msg: "at least one item is required"}
	}

	var result *CreateResult
	var post func()

	err := s.store.WithinTx(ctx, storage.TxOptions{Timeout: storage.MultiStepTxTimeout}, func(ctx context.Context, tx storage.Tx) error {
		resolved, err := s.resolveItems(ctx, tx, req.Items)
		if err != nil {
			return err
		}

		var table *models.Table
		if req.Type == models.TypeTable && req.TableNumber != "" {
			table, err = tx.TableByNumber(ctx, actor.TenantID, req.TableNumber)
			if err != nil {
				return err
			}

			open, err := tx.OpenOrdersOnTable(ctx, table.ID)
			if err != nil {
				return err
			}

			// (a) an ORDERED order with the same payment-pending flag
			// absorbs the submission silently.
			for _, o := range open {
				if o.Status == models.StatusOrdered && o.PaymentPending == req.PaymentPending {
					added, err := s.foldInto(ctx, tx, o, resolved)
					if err != nil {
						return err
					}
					merged := o
					result = &CreateResult{Order: merged, Merged: true}
					post = func() {
						if s.notifier != nil {
							s.notifier.OrderMerged(merged, added, actor.Name)
						}
					}
					return nil
				}
			}

			// (b) a station already committed to an IN_PROGRESS line set
			// must consent through a merge request.
			for _, o := range open {
				if o.Status == models.StatusInProgress {
					r := s.buildMergeRequest(actor, o, table, resolved)
					if s.requests == nil {
						return &PermissionDeniedError{Role: actor.Role, Op: "file merge requests"}
					}
					if err := s.requests.SubmitInTx(ctx, tx, r); err != nil {
						return err
					}
					result = &CreateResult{Pending: true, MergeRequest: r}
					post = func() {
						if s.notifier != nil {
							s.notifier.MergeRequested(r)
						}
					}
					return nil
				}
			}

			// (c) an identical item set submitted again within the window
			// is a probable accidental double-submit.
			recent, err := tx.RecentOrdersOnTable(ctx, table.ID, s.now().Add(-duplicateWindow))
			if err != nil {
				return err
			}
			sig := models.ItemSignature(itemCounts(req.Items))
			for _, o := range recent {
				if models.ItemSignature(o.ItemCounts()) == sig {
					return &DuplicateSubmissionError{TableNumber: req.TableNumber}
				}
			}
		}

		if err := s.ledger.ReserveAll(ctx, tx, reservationFor(resolved)); err != nil {
			return err
		}

		order := s.buildOrder(actor, req, table, resolved)
		if table != nil {
			if err := tx.SetTableOccupied(ctx, table.ID, true); err != nil {
				return err
			}
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.AppendStatusLog(ctx, order.ID, "", models.StatusOrdered, actor.Name); err != nil {
			return err
		}

		result = &CreateResult{Order: order}
		post = func() {
			if s.notifier != nil {
				s.notifier.OrderCreated(order)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if post != nil {
		post()
	}
	return result, nil
}

// MergeOrderProducts adds items to an existing order outside the broker
// path, for direct staff-approved additions.
func (s *Service) MergeOrderProducts(ctx context.Context, actor models.Staff, orderID uuid.UUID, items []NewItem) (*models.Order, error) {
	if err := requireCapability(actor, models.CapPlaceOrder, "add products"); err != nil {
		return nil, err
	}

	var merged *models.Order
	var added []models.OrderLine

	err := s.store.WithinTx(ctx, storage.TxOptions{Timeout: storage.MultiStepTxTimeout}, func(ctx context.Context, tx storage.Tx) error {
		o, err := tx.OrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != models.StatusOrdered && o.Status != models.StatusInProgress {
			return &InvalidTransitionError{Current: o.Status, Next: o.Status, Allowed: AllowedNext(o.Status)}
		}

		resolved, err := s.resolveItems(ctx, tx, items)
		if err != nil {
			return err
		}
		added, err = s.foldInto(ctx, tx, o, resolved)
		if err != nil {
			return err
		}
		merged = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.OrderMerged(merged, added, actor.Name)
	}
	return merged, nil
}

// CancelOrder releases the order's reservations, deletes it and frees its
// table when no sibling orders remain open.
func (s *Service) CancelOrder(ctx context.Context, actor models.Staff, orderID uuid.UUID, reason string) error {
	if actor.ID == uuid.Nil {
		return &AuthenticationRequiredError{}
	}

	var cancelled *models.Order

	err := s.store.WithinTx(ctx, storage.TxOptions{}, func(ctx context.Context, tx storage.Tx) error {
		o, err := tx.OrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		// terminal orders have settled or released their holds already
		if o.Status.Terminal() {
			return &InvalidTransitionError{Current: o.Status, Next: models.StatusCancelled, Allowed: AllowedNext(o.Status)}
		}
		if err := s.allowCancel(actor, o); err != nil {
			return err
		}

		if err := s.ledger.ReleaseAll(ctx, tx, activeReservation(o)); err != nil {
			return err
		}
		if err := tx.AppendStatusLog(ctx, o.ID, o.Status, models.StatusCancelled, actor.Name); err != nil {
			return err
		}
		if err := tx.DeleteOrder(ctx, o.ID); err != nil {
			return err
		}
		if err := s.freeTableIfEmpty(ctx, tx, o); err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.Record(cancelled.ID, cancelled.Status, models.StatusCancelled, actor.Name)
	if s.notifier != nil {
		s.notifier.OrderCancelled(cancelled, reason)
	}
	return nil
}

// CancelOrderLine cancels a single line, releasing its reservation.
// Cancelling the last remaining line cancels the whole order.
func (s *Service) CancelOrderLine(ctx context.Context, actor models.Staff, lineID uuid.UUID) (*models.Order, error) {
	if actor.ID == uuid.Nil {
		return nil, &AuthenticationRequiredError{}
	}

	var out *models.Order
	var updatedLine models.OrderLine
	var prevStatus models.LineStatus
	var orderGone bool

	err := s.store.WithinTx(ctx, storage.TxOptions{}, func(ctx context.Context, tx storage.Tx) error {
		o, err := tx.OrderByLineID(ctx, lineID)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return &InvalidTransitionError{Current: o.Status, Next: models.StatusCancelled, Allowed: AllowedNext(o.Status)}
		}
		if err := s.allowCancel(actor, o); err != nil {
			return err
		}

		line := lineByID(o, lineID)
		if line == nil || line.Status == models.LineCancelled {
			return &storage.NotFoundError{Kind: "order line", ID: lineID}
		}

		if err := s.ledger.ReleaseAll(ctx, tx, []inventory.Item{{ProductID: line.ProductID, Quantity: line.Quantity}}); err != nil {
			return err
		}

		prevStatus = line.Status
		line.Status = models.LineCancelled
		updatedLine = *line
		o.RecomputeTotal()

		if len(o.ActiveLines()) == 0 {
			// cancelling the last line is a full order cancellation
			if err := tx.AppendStatusLog(ctx, o.ID, o.Status, models.StatusCancelled, actor.Name); err != nil {
				return err
			}
			if err := tx.DeleteOrder(ctx, o.ID); err != nil {
				return err
			}
			if err := s.freeTableIfEmpty(ctx, tx, o); err != nil {
				return err
			}
			orderGone = true
			out = o
			return nil
		}

		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if orderGone {
			s.notifier.OrderCancelled(out, "last line cancelled")
		} else {
			s.notifier.LineUpdated(out, updatedLine, prevStatus)
		}
	}
	return out, nil
}

// ChangeLineQuantity adjusts a line's quantity. Increases re-run the
// reservation; decreases release the delta; zero cascades into a line
// cancellation.
func (s *Service) ChangeLineQuantity(ctx context.Context, actor models.Staff, lineID uuid.UUID, quantity int) (*models.Order, error) {
	if quantity < 0 {
		return nil, &ValidationError{Field: "quantity", Msg: "must not be negative"}
	}
	if quantity == 0 {
		return s.CancelOrderLine(ctx, actor, lineID)
	}
	if actor.ID == uuid.Nil {
		return nil, &AuthenticationRequiredError{}
	}

	var out *models.Order
	var updatedLine models.OrderLine

	err := s.store.WithinTx(ctx, storage.TxOptions{}, func(ctx context.Context, tx storage.Tx) error {
		o, err := tx.OrderByLineID(ctx, lineID)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return &InvalidTransitionError{Current: o.Status, Next: o.Status, Allowed: AllowedNext(o.Status)}
		}
		if err := s.allowCancel(actor, o); err != nil {
			return err
		}

		line := lineByID(o, lineID)
		if line == nil || line.Status == models.LineCancelled {
			return &storage.NotFoundError{Kind: "order line", ID: lineID}
		}

		delta := quantity - line.Quantity
		switch {
		case delta > 0:
			if err := s.ledger.ReserveAll(ctx, tx, []inventory.Item{{ProductID: line.ProductID, Quantity: delta}}); err != nil {
				return err
			}
		case delta < 0:
			if err := s.ledger.ReleaseAll(ctx, tx, []inventory.Item{{ProductID: line.ProductID, Quantity: -delta}}); err != nil {
				return err
			}
		}

		line.Quantity = quantity
		if line.GlassCount > 0 {
			line.GlassCount = quantity
		}
		updatedLine = *line
		o.RecomputeTotal()

		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.LineUpdated(out, updatedLine, updatedLine.Status)
	}
	return out, nil
}

// AdvanceOrderStatus moves an order along the validated transition graph.
func (s *Service) AdvanceOrderStatus(ctx context.Context, actor models.Staff, orderID uuid.UUID, next models.OrderStatus) (*models.Order, error) {
	if err := requireCapability(actor, models.CapAdvanceOrder, "advance orders"); err != nil {
		return nil, err
	}
	if next == models.StatusPaid && !actor.Role.Can(models.CapSettlePayment) {
		return nil, &PermissionDeniedError{Role: actor.Role, Op: "settle payments"}
	}

	var out *models.Order
	var from models.OrderStatus

	err := s.store.WithinTx(ctx, storage.TxOptions{}, func(ctx context.Context, tx storage.Tx) error {
		o, err := tx.OrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := CheckTransition(o.Status, next); err != nil {
			return err
		}

		from = o.Status
		o.Status = next
		now := s.now()

		switch next {
		case models.StatusPaid:
			if err := s.ledger.CommitAll(ctx, tx, activeReservation(o)); err != nil {
				return err
			}
			o.ClosedAt = &now
			if err := s.freeTableIfEmpty(ctx, tx, o); err != nil {
				return err
			}
		case models.StatusCancelled:
			if err := s.ledger.ReleaseAll(ctx, tx, activeReservation(o)); err != nil {
				return err
			}
			for i := range o.Lines {
				if o.Lines[i].Status != models.LineCancelled {
					o.Lines[i].Status = models.LineCancelled
					if err := tx.UpdateLine(ctx, &o.Lines[i]); err != nil {
						return err
					}
				}
			}
			o.ClosedAt = &now
			if err := s.freeTableIfEmpty(ctx, tx, o); err != nil {
				return err
			}
		}

		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.AppendStatusLog(ctx, o.ID, from, next, actor.Name); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(out.ID, from, next, actor.Name)
	if s.notifier != nil {
		s.notifier.OrderStatusChanged(out, from, next)
	}
	return out, nil
}

// AdvanceLineStatus moves a single line along its transition graph,
// stamping work-start/ready/delivered timestamps, and pulls the parent
// order forward when every line has progressed.
func (s *Service) AdvanceLineStatus(ctx context.Context, actor models.Staff, lineID uuid.UUID, next models.LineStatus) (*models.Order, error) {
	if err := requireCapability(actor, models.CapAdvanceLine, "advance order lines"); err != nil {
		return nil, err
	}

	var out *models.Order
	var updatedLine models.OrderLine
	var prevLine models.LineStatus
	var orderFrom, orderTo models.OrderStatus

	err := s.store.WithinTx(ctx, storage.TxOptions{}, func(ctx context.Context, tx storage.Tx) error {
		o, err := tx.OrderByLineID(ctx, lineID)
		if err != nil {
			return err
		}
		line := lineByID(o, lineID)
		if line == nil {
			return &storage.NotFoundError{Kind: "order line", ID: lineID}
		}
		if !ValidateLineTransition(line.Status, next) {
			return &InvalidTransitionError{
				Current: models.OrderStatus(line.Status),
				Next:    models.OrderStatus(next),
				Allowed: orderStatuses(AllowedNextLine(line.Status)),
			}
		}

		prevLine = line.Status
		line.Status = next
		now := s.now()
		switch next {
		case models.LineInProgress:
			if line.StartedAt == nil {
				line.StartedAt = &now
			}
		case models.LineReady:
			if line.ReadyAt == nil {
				line.ReadyAt = &now
			}
		case models.LineDelivered:
			if line.DeliveredAt == nil {
				line.DeliveredAt = &now
			}
		}
		updatedLine = *line
		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}

		orderFrom, orderTo = o.Status, o.Status
		if target, ok := impliedOrderStatus(o, next); ok && ValidateTransition(o.Status, target) {
			orderTo = target
			o.Status = target
			if err := tx.UpdateOrder(ctx, o); err != nil {
				return err
			}
			if err := tx.AppendStatusLog(ctx, o.ID, orderFrom, orderTo, actor.Name); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.LineUpdated(out, updatedLine, prevLine)
		if orderTo != orderFrom {
			s.audit.Record(out.ID, orderFrom, orderTo, actor.Name)
			s.notifier.OrderStatusChanged(out, orderFrom, orderTo)
		}
	}
	return out, nil
}

// CompleteAllLines marks every active line READY and the order with it.
// Runs at the strictest isolation level so two concurrent completions
// cannot double-transition the same order.
func (s *Service) CompleteAllLines(ctx context.Context, actor models.Staff, orderID uuid.UUID) (*models.Order, error) {
	if err := requireCapability(actor, models.CapAdvanceLine, "complete order lines"); err != nil {
		return nil, err
	}

	var out *models.Order
	var from, to models.OrderStatus

	err := s.store.WithinTx(ctx, storage.TxOptions{Serializable: true, Timeout: storage.MultiStepTxTimeout}, func(ctx context.Context, tx storage.Tx) error {
		o, err := tx.OrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		from, to = o.Status, o.Status
		switch o.Status {
		case models.StatusReady, models.StatusDelivered:
			// every line already completed, nothing left to mark
			out = o
			return nil
		case models.StatusOrdered, models.StatusInProgress:
		default:
			return &InvalidTransitionError{Current: o.Status, Next: models.StatusReady, Allowed: AllowedNext(o.Status)}
		}

		now := s.now()
		for i := range o.Lines {
			l := &o.Lines[i]
			if l.Status == models.LineCancelled || l.Status == models.LineReady || l.Status == models.LineDelivered {
				continue
			}
			if l.StartedAt == nil {
				l.StartedAt = &now
			}
			l.Status = models.LineReady
			l.ReadyAt = &now
			if err := tx.UpdateLine(ctx, l); err != nil {
				return err
			}
		}

		// an ORDERED order passes through IN_PROGRESS on its way to READY
		if o.Status == models.StatusOrdered {
			if err := tx.AppendStatusLog(ctx, o.ID, models.StatusOrdered, models.StatusInProgress, actor.Name); err != nil {
				return err
			}
			o.Status = models.StatusInProgress
		}
		if err := tx.AppendStatusLog(ctx, o.ID, o.Status, models.StatusReady, actor.Name); err != nil {
			return err
		}
		o.Status = models.StatusReady
		to = models.StatusReady
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	if to != from {
		s.audit.Record(out.ID, from, to, actor.Name)
		if s.notifier != nil {
			s.notifier.OrderStatusChanged(out, from, to)
		}
	}
	return out, nil
}

// MarkOrderPickedUp transitions a READY order to DELIVERED, stamping its
// lines as delivered.
func (s *Service) MarkOrderPickedUp(ctx context.Context, actor models.Staff, orderID uuid.UUID) (*models.Order, error) {
	if err := requireCapability(actor, models.CapAdvanceOrder, "mark orders picked up"); err != nil {
		return nil, err
	}

	var out *models.Order
	var from models.OrderStatus

	err := s.store.WithinTx(ctx, storage.TxOptions{}, func(ctx context.Context, tx storage.Tx) error {
		o, err := tx.OrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := CheckTransition(o.Status, models.StatusDelivered); err != nil {
			return err
		}

		from = o.Status
		now := s.now()
		for i := range o.Lines {
			l := &o.Lines[i]
			if l.Status != models.LineReady {
				continue
			}
			l.Status = models.LineDelivered
			l.DeliveredAt = &now
			if err := tx.UpdateLine(ctx, l); err != nil {
				return err
			}
		}
		o.Status = models.StatusDelivered
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.AppendStatusLog(ctx, o.ID, from, models.StatusDelivered, actor.Name); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(out.ID, from, models.StatusDelivered, actor.Name)
	if s.notifier != nil {
		s.notifier.OrderStatusChanged(out, from, models.StatusDelivered)
	}
	return out, nil
}

// ListOpenOrders returns the tenant's non-terminal orders.
func (s *Service) ListOpenOrders(ctx context.Context, actor models.Staff) ([]*models.Order, error) {
	if actor.ID == uuid.Nil {
		return nil, &AuthenticationRequiredError{}
	}
	return s.store.ListOpenOrders(ctx, actor.TenantID)
}

type resolvedItem struct {
	product  *models.Product
	quantity int
	note     string
}

func (s *Service) resolveItems(ctx context.Context, tx storage.Tx, items []NewItem) ([]resolvedItem, error) {
	out := make([]resolvedItem, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		p, err := tx.ProductByID(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		out = append(out, resolvedItem{product: p, quantity: it.Quantity, note: it.Note})
	}
	if len(out) == 0 {
		return nil, &ValidationError{Field: "items", Msg: "no item has a positive quantity"}
	}
	return out, nil
}

// foldInto reserves the resolved items and folds them into the order:
// matching product lines have quantity summed and notes concatenated,
// non-matching products become new lines. Returns the lines added or grown.
func (s *Service) foldInto(ctx context.Context, tx storage.Tx, o *models.Order, resolved []resolvedItem) ([]models.OrderLine, error) {
	if err := s.ledger.ReserveAll(ctx, tx, reservationFor(resolved)); err != nil {
		return nil, err
	}

	var touched []models.OrderLine
	for _, it := range resolved {
		if existing := o.LineByProduct(it.product.ID); existing != nil {
			existing.Quantity += it.quantity
			if it.note != "" {
				if existing.Note != "" {
					existing.Note += "; "
				}
				existing.Note += it.note
			}
			if it.product.RequiresGlass {
				existing.GlassCount += it.quantity
			}
			if err := tx.UpdateLine(ctx, existing); err != nil {
				return nil, err
			}
			touched = append(touched, *existing)
			continue
		}

		line := newLine(o.ID, it)
		if err := tx.InsertLine(ctx, &line); err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, line)
		touched = append(touched, line)
	}

	o.RecomputeTotal()
	if err := tx.UpdateOrder(ctx, o); err != nil {
		return nil, err
	}
	return touched, nil
}

func (s *Service) buildOrder(actor models.Staff, req NewOrder, table *models.Table, resolved []resolvedItem) *models.Order {
	o := &models.Order{
		ID:             uuid.New(),
		TenantID:       actor.TenantID,
		Type:           req.Type,
		Status:         models.StatusOrdered,
		CustomerName:   req.CustomerName,
		Note:           req.Note,
		PaymentPending: req.PaymentPending,
		CreatedBy:      actor.ID,
		CreatedByName:  actor.Name,
		OpenedAt:       s.now(),
	}
	if table != nil {
		id := table.ID
		num := table.Number
		o.TableID = &id
		o.TableNumber = &num
	}
	for _, it := range resolved {
		o.Lines = append(o.Lines, newLine(o.ID, it))
	}
	o.RecomputeTotal()
	return o
}

func (s *Service) buildMergeRequest(actor models.Staff, o *models.Order, table *models.Table, resolved []resolvedItem) *models.MergeRequest {
	r := &models.MergeRequest{
		ID:            uuid.New(),
		TenantID:      actor.TenantID,
		OrderID:       o.ID,
		TableID:       table.ID,
		TableNumber:   table.Number,
		RequestedBy:   actor.ID,
		RequesterName: actor.Name,
		Status:        models.MergePending,
		CreatedAt:     s.now(),
	}
	for _, it := range resolved {
		r.Items = append(r.Items, models.MergeItem{
			ProductID:   it.product.ID,
			ProductName: it.product.Name,
			Quantity:    it.quantity,
			UnitPrice:   it.product.Price,
			Note:        it.note,
		})
	}
	return r
}

// allowCancel enforces the cancellation rule: override roles always, the
// original creator only while the order is still ORDERED.
func (s *Service) allowCancel(actor models.Staff, o *models.Order) error {
	if actor.Role.Can(models.CapCancelAnyOrder) {
		return nil
	}
	if o.CreatedBy == actor.ID && o.Status == models.StatusOrdered {
		return nil
	}
	return &PermissionDeniedError{Role: actor.Role, Op: "cancel this order"}
}

// freeTableIfEmpty releases the order's table when no sibling orders
// remain open on it.
func (s *Service) freeTableIfEmpty(ctx context.Context, tx storage.Tx, o *models.Order) error {
	if o.TableID == nil {
		return nil
	}
	open, err := tx.OpenOrdersOnTable(ctx, *o.TableID)
	if err != nil {
		return err
	}
	for _, sibling := range open {
		if sibling.ID != o.ID {
			return nil
		}
	}
	return tx.SetTableOccupied(ctx, *o.TableID, false)
}

func requireCapability(actor models.Staff, cap models.Capability, op string) error {
	if actor.ID == uuid.Nil {
		return &AuthenticationRequiredError{}
	}
	if !actor.Role.Can(cap) {
		return &PermissionDeniedError{Role: actor.Role, Op: op}
	}
	return nil
}

func newLine(orderID uuid.UUID, it resolvedItem) models.OrderLine {
	glass := 0
	if it.product.RequiresGlass {
		glass = it.quantity
	}
	return models.OrderLine{
		ID:          uuid.New(),
		OrderID:     orderID,
		ProductID:   it.product.ID,
		ProductName: it.product.Name,
		Quantity:    it.quantity,
		UnitPrice:   it.product.Price,
		Status:      models.LineOrdered,
		Station:     it.product.Station,
		GlassCount:  glass,
		Note:        it.note,
	}
}

func reservationFor(resolved []resolvedItem) []inventory.Item {
	out := make([]inventory.Item, 0, len(resolved))
	for _, it := range resolved {
		out = append(out, inventory.Item{ProductID: it.product.ID, Quantity: it.quantity})
	}
	return out
}

// activeReservation returns the order's currently held quantities, read
// from its lines: the lines are the durable record of what was reserved.
func activeReservation(o *models.Order) []inventory.Item {
	var out []inventory.Item
	for _, l := range o.Lines {
		if l.Status == models.LineCancelled {
			continue
		}
		out = append(out, inventory.Item{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}

func itemCounts(items []NewItem) map[uuid.UUID]int {
	counts := make(map[uuid.UUID]int)
	for _, it := range items {
		if it.Quantity > 0 {
			counts[it.ProductID] += it.Quantity
		}
	}
	return counts
}

func lineByID(o *models.Order, id uuid.UUID) *models.OrderLine {
	for i := range o.Lines {
		if o.Lines[i].ID == id {
			return &o.Lines[i]
		}
	}
	return nil
}

// impliedOrderStatus maps a line progression to the order status it pulls
// the parent toward, when every active line agrees.
func impliedOrderStatus(o *models.Order, next models.LineStatus) (models.OrderStatus, bool) {
	switch next {
	case models.LineInProgress:
		if o.Status == models.StatusOrdered {
			return models.StatusInProgress, true
		}
	case models.LineReady:
		if allLines(o, models.LineReady, models.LineDelivered) {
			return models.StatusReady, true
		}
	case models.LineDelivered:
		if allLines(o, models.LineDelivered) {
			return models.StatusDelivered, true
		}
	}
	return "", false
}

func allLines(o *models.Order, statuses ...models.LineStatus) bool {
	for _, l := range o.Lines {
		if l.Status == models.LineCancelled {
			continue
		}
		ok := false
		for _, s := range statuses {
			if l.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func orderStatuses(in []models.LineStatus) []models.OrderStatus {
	out := make([]models.OrderStatus, len(in))
	for i, s := range in {
		out[i] = models.OrderStatus(s)
	}
	return out
}
