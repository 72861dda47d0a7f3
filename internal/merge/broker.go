// Package merge implements the consent broker for adding items to an order
// a station is already working on. A request is resolved exactly once;
// rejection never loses the requested items.
package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub000/internal/inventory"
	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
	"github.com/antonio12761/roxy-bar-sub000/internal/models"
	"github.com/antonio12761/roxy-bar-sub000/internal/orders"
	"github.com/antonio12761/roxy-bar-sub000/internal/storage"
)

// conflictWindow is how recently an identical pending request must have been
// filed for a new submission to be treated as a duplicate.
const conflictWindow = 5 * time.Second

// ConflictingMergeRequestError reports a pending request with the same item
// set filed moments ago for the same order.
type ConflictingMergeRequestError struct {
	OrderID uuid.UUID
}

func (e *ConflictingMergeRequestError) Error() string {
	return fmt.Sprintf("an identical merge request for order %s is already pending", e.OrderID)
}

// Code returns the machine-readable reason code.
func (e *ConflictingMergeRequestError) Code() string { return orders.ReasonConflictingMergeRequest }

// Notifier receives committed broker resolutions.
type Notifier interface {
	MergeAccepted(r *models.MergeRequest, o *models.Order, added []models.OrderLine, resolvedBy string)
	MergeRejected(r *models.MergeRequest, spinOff *models.Order)
}

// Broker files and resolves merge requests.
type Broker struct {
	store    storage.Store
	ledger   *inventory.Ledger
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

// NewBroker wires the broker. notifier may be nil.
func NewBroker(store storage.Store, ledger *inventory.Ledger, notifier Notifier, log *logger.Logger) *Broker {
	return &Broker{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// SubmitInTx files a pending request inside the caller's transaction. An
// identical pending request by the same requester within the conflict
// window is rejected as a duplicate.
func (b *Broker) SubmitInTx(ctx context.Context, tx storage.Tx, r *models.MergeRequest) error {
	prev, err := tx.LatestPendingMergeRequest(ctx, r.OrderID, r.RequestedBy)
	switch {
	case err == nil:
		if b.now().Sub(prev.CreatedAt) < conflictWindow &&
			models.ItemSignature(prev.ItemCounts()) == models.ItemSignature(r.ItemCounts()) {
			return &ConflictingMergeRequestError{OrderID: r.OrderID}
		}
	case !storage.IsNotFound(err):
		return err
	}

	return tx.InsertMergeRequest(ctx, r)
}

// Accept folds the requested items into the target order. The reservation,
// the line fold and the resolution commit atomically; a failed reservation
// leaves the request pending.
func (b *Broker) Accept(ctx context.Context, actor models.Staff, requestID uuid.UUID) (*models.Order, error) {
	if err := requireResolver(actor); err != nil {
		return nil, err
	}

	var resolved *models.MergeRequest
	var target *models.Order
	var added []models.OrderLine

	err := b.store.WithinTx(ctx, storage.TxOptions{Timeout: storage.MultiStepTxTimeout}, func(ctx context.Context, tx storage.Tx) error {
		r, err := tx.MergeRequestByID(ctx, requestID)
		if err != nil {
			return err
		}
		if r.Status != models.MergePending {
			return &orders.ValidationError{Field: "merge request", Msg: "already resolved"}
		}

		o, err := tx.OrderByID(ctx, r.OrderID)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return &orders.InvalidTransitionError{Current: o.Status, Next: o.Status, Allowed: orders.AllowedNext(o.Status)}
		}

		if err := b.ledger.ReserveAll(ctx, tx, reservationFor(r.Items)); err != nil {
			return err
		}

		added, err = b.foldItems(ctx, tx, o, r.Items)
		if err != nil {
			return err
		}

		now := b.now()
		r.Status = models.MergeAccepted
		r.ResolvedBy = &actor.ID
		r.ResolvedAt = &now
		if err := tx.ResolveMergeRequest(ctx, r); err != nil {
			return err
		}
		resolved, target = r, o
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.log.Info("merge_accepted", "Merge request accepted", "", map[string]interface{}{
		"request_id": resolved.ID.String(),
		"order_id":   target.ID.String(),
		"by":         actor.Name,
	})
	if b.notifier != nil {
		b.notifier.MergeAccepted(resolved, target, added, actor.Name)
	}
	return target, nil
}

// Reject declines the request and spins the requested items off into a new
// ORDERED order on the same table, owned by the original requester.
func (b *Broker) Reject(ctx context.Context, actor models.Staff, requestID uuid.UUID, reason string) (*models.Order, error) {
	if err := requireResolver(actor); err != nil {
		return nil, err
	}

	var resolved *models.MergeRequest
	var spinOff *models.Order

	err := b.store.WithinTx(ctx, storage.TxOptions{Timeout: storage.MultiStepTxTimeout}, func(ctx context.Context, tx storage.Tx) error {
		r, err := tx.MergeRequestByID(ctx, requestID)
		if err != nil {
			return err
		}
		if r.Status != models.MergePending {
			return &orders.ValidationError{Field: "merge request", Msg: "already resolved"}
		}

		if err := b.ledger.ReserveAll(ctx, tx, reservationFor(r.Items)); err != nil {
			return err
		}

		o, err := b.spinOffOrder(ctx, tx, r)
		if err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.AppendStatusLog(ctx, o.ID, "", models.StatusOrdered, actor.Name); err != nil {
			return err
		}

		now := b.now()
		r.Status = models.MergeRejected
		r.ResolvedBy = &actor.ID
		r.ResolvedAt = &now
		r.RejectReason = reason
		if err := tx.ResolveMergeRequest(ctx, r); err != nil {
			return err
		}
		resolved, spinOff = r, o
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.log.Info("merge_rejected", "Merge request rejected, items spun off", "", map[string]interface{}{
		"request_id":   resolved.ID.String(),
		"new_order_id": spinOff.ID.String(),
		"by":           actor.Name,
		"reason":       reason,
	})
	if b.notifier != nil {
		b.notifier.MergeRejected(resolved, spinOff)
	}
	return spinOff, nil
}

// ListPending returns the tenant's unresolved requests.
func (b *Broker) ListPending(ctx context.Context, actor models.Staff) ([]*models.MergeRequest, error) {
	if actor.ID == uuid.Nil {
		return nil, &orders.AuthenticationRequiredError{}
	}
	return b.store.ListPendingMergeRequests(ctx, actor.TenantID)
}

// foldItems merges the request items into the order's lines, summing
// quantities on matching products.
func (b *Broker) foldItems(ctx context.Context, tx storage.Tx, o *models.Order, items []models.MergeItem) ([]models.OrderLine, error) {
	var touched []models.OrderLine
	for _, it := range items {
		p, err := tx.ProductByID(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}

		if existing := o.LineByProduct(it.ProductID); existing != nil {
			existing.Quantity += it.Quantity
			if it.Note != "" {
				if existing.Note != "" {
					existing.Note += "; "
				}
				existing.Note += it.Note
			}
			if p.RequiresGlass {
				existing.GlassCount += it.Quantity
			}
			if err := tx.UpdateLine(ctx, existing); err != nil {
				return nil, err
			}
			touched = append(touched, *existing)
			continue
		}

		glass := 0
		if p.RequiresGlass {
			glass = it.Quantity
		}
		line := models.OrderLine{
			ID:          uuid.New(),
			OrderID:     o.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Status:      models.LineOrdered,
			Station:     p.Station,
			GlassCount:  glass,
			Note:        it.Note,
		}
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

// spinOffOrder builds the replacement order for a rejected request.
func (b *Broker) spinOffOrder(ctx context.Context, tx storage.Tx, r *models.MergeRequest) (*models.Order, error) {
	tableID := r.TableID
	tableNumber := r.TableNumber
	o := &models.Order{
		ID:            uuid.New(),
		TenantID:      r.TenantID,
		TableID:       &tableID,
		TableNumber:   &tableNumber,
		Type:          models.TypeTable,
		Status:        models.StatusOrdered,
		CreatedBy:     r.RequestedBy,
		CreatedByName: r.RequesterName,
		OpenedAt:      b.now(),
	}
	for _, it := range r.Items {
		p, err := tx.ProductByID(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		glass := 0
		if p.RequiresGlass {
			glass = it.Quantity
		}
		o.Lines = append(o.Lines, models.OrderLine{
			ID:          uuid.New(),
			OrderID:     o.ID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Status:      models.LineOrdered,
			Station:     p.Station,
			GlassCount:  glass,
			Note:        it.Note,
		})
	}
	o.RecomputeTotal()
	return o, nil
}

func requireResolver(actor models.Staff) error {
	if actor.ID == uuid.Nil {
		return &orders.AuthenticationRequiredError{}
	}
	if !actor.Role.Can(models.CapResolveMerge) {
		return &orders.PermissionDeniedError{Role: actor.Role, Op: "resolve merge requests"}
	}
	return nil
}

func reservationFor(items []models.MergeItem) []inventory.Item {
	out := make([]inventory.Item, 0, len(items))
	for _, it := range items {
		out = append(out, inventory.Item{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}
