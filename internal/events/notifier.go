package events

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/antonio12761/roxy-bar-sub000/internal/cache"
	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
	"github.com/antonio12761/roxy-bar-sub000/internal/models"
)

// Mirror publishes committed events to an external broker for off-process
// consumers. Mirroring is best-effort; a broker outage never fails or
// delays a mutation.
type Mirror interface {
	Publish(ctx context.Context, event string, body any) error
}

const mirrorTimeout = 2 * time.Second

// Notifier turns committed mutations into routed event envelopes. It is the
// only producer of event payloads, so every consumer sees one schema.
type Notifier struct {
	dispatcher *Dispatcher
	mirror     Mirror
	orderCache *cache.Cache[*models.Order]
	log        *logger.Logger
	version    atomic.Int64
	now        func() time.Time
}

// NewNotifier wires the formatter. mirror and orderCache may be nil.
func NewNotifier(d *Dispatcher, mirror Mirror, orderCache *cache.Cache[*models.Order], log *logger.Logger) *Notifier {
	return &Notifier{
		dispatcher: d,
		mirror:     mirror,
		orderCache: orderCache,
		log:        log,
		now:        time.Now,
	}
}

// OrderCreated announces a freshly opened order to its stations.
func (n *Notifier) OrderCreated(o *models.Order) {
	payload := models.OrderNewPayload{
		OrderID:     o.ID,
		TableNumber: o.TableNumber,
		Items:       eventItems(o.ActiveLines()),
		TotalAmount: o.Total,
		Timestamp:   models.EventTimestamp(n.now()),
	}
	n.cacheOrder(o)
	n.publish(&models.Envelope{
		Name:     models.EventOrderNew,
		Payload:  payload,
		Priority: models.PriorityHigh,
		TenantID: o.TenantID,
	})
}

// OrderMerged announces items folded into an existing order. Stations are
// already preparing the order, so missing the added items is as costly as
// missing the order itself; it travels at high priority.
func (n *Notifier) OrderMerged(o *models.Order, newLines []models.OrderLine, mergedBy string) {
	payload := models.OrderMergedPayload{
		OrderID:     o.ID,
		TableNumber: tableNumber(o),
		NewItems:    eventItems(newLines),
		TotalAmount: o.Total,
		MergedBy:    mergedBy,
		Timestamp:   models.EventTimestamp(n.now()),
	}
	n.cacheOrder(o)
	n.publish(&models.Envelope{
		Name:     models.EventOrderMerged,
		Payload:  payload,
		Priority: models.PriorityHigh,
		TenantID: o.TenantID,
	})
}

// OrderStatusChanged announces a lifecycle transition. Reaching READY is
// high priority so pickup screens never miss it.
func (n *Notifier) OrderStatusChanged(o *models.Order, from, to models.OrderStatus) {
	payload := models.OrderStatusPayload{
		OrderID:     o.ID,
		OldStatus:   from,
		NewStatus:   to,
		TableNumber: o.TableNumber,
		Timestamp:   models.EventTimestamp(n.now()),
	}
	priority := models.PriorityNormal
	if to == models.StatusReady {
		priority = models.PriorityHigh
	}
	if to.Terminal() {
		n.dropCachedOrder(o)
	} else {
		n.cacheOrder(o)
	}
	n.publish(&models.Envelope{
		Name:     models.EventOrderStatus,
		Payload:  payload,
		Priority: priority,
		TenantID: o.TenantID,
	})
}

// LineUpdated announces a single line's progress to its station.
func (n *Notifier) LineUpdated(o *models.Order, line models.OrderLine, previous models.LineStatus) {
	payload := models.LineUpdatePayload{
		ItemID:         line.ID,
		OrderID:        o.ID,
		Status:         line.Status,
		PreviousStatus: previous,
		Station:        line.Station,
		Timestamp:      models.EventTimestamp(n.now()),
	}
	n.cacheOrder(o)
	n.publish(&models.Envelope{
		Name:     models.EventLineUpdate,
		Payload:  payload,
		Priority: models.PriorityNormal,
		TenantID: o.TenantID,
	})
}

// OrderCancelled announces a cancellation to every station that carried it.
func (n *Notifier) OrderCancelled(o *models.Order, reason string) {
	payload := models.OrderCancelledPayload{
		OrderID:     o.ID,
		TableNumber: o.TableNumber,
		Reason:      reason,
		Timestamp:   models.EventTimestamp(n.now()),
	}
	n.dropCachedOrder(o)
	n.publish(&models.Envelope{
		Name:     models.EventOrderCancel,
		Payload:  payload,
		Priority: models.PriorityHigh,
		TenantID: o.TenantID,
	})
}

// MergeRequested asks the stations working the order for consent. The
// request keeps being re-delivered until the resend schedule runs out.
func (n *Notifier) MergeRequested(r *models.MergeRequest) {
	n.publish(&models.Envelope{
		Name:        models.EventMergeRequest,
		Payload:     mergeRequestPayload(r, n.now()),
		Priority:    models.PriorityHigh,
		TenantID:    r.TenantID,
		RequiresAck: true,
	})
}

// MergeAccepted tells the requester their items were folded in, queueing
// the notice if they are offline, and broadcasts the grown order.
func (n *Notifier) MergeAccepted(r *models.MergeRequest, o *models.Order, added []models.OrderLine, resolvedBy string) {
	payload := models.OrderMergedPayload{
		OrderID:     o.ID,
		TableNumber: tableNumber(o),
		NewItems:    eventItems(added),
		TotalAmount: o.Total,
		MergedBy:    resolvedBy,
		Timestamp:   models.EventTimestamp(n.now()),
	}
	n.cacheOrder(o)

	requester := r.RequestedBy
	n.publish(&models.Envelope{
		Name:          models.EventOrderMerged,
		Payload:       payload,
		Priority:      models.PriorityHigh,
		TenantID:      r.TenantID,
		TargetUserID:  &requester,
		QueueIfMissed: true,
	})
	n.publish(&models.Envelope{
		Name:     models.EventOrderMerged,
		Payload:  payload,
		Priority: models.PriorityNormal,
		TenantID: r.TenantID,
	})
}

// MergeRejected tells the requester their items now live on a new order,
// and announces that order to its stations.
func (n *Notifier) MergeRejected(r *models.MergeRequest, spinOff *models.Order) {
	payload := models.OrderNewPayload{
		OrderID:     spinOff.ID,
		TableNumber: spinOff.TableNumber,
		Items:       eventItems(spinOff.ActiveLines()),
		TotalAmount: spinOff.Total,
		Timestamp:   models.EventTimestamp(n.now()),
	}
	n.cacheOrder(spinOff)

	requester := r.RequestedBy
	n.publish(&models.Envelope{
		Name:          models.EventOrderNew,
		Payload:       payload,
		Priority:      models.PriorityHigh,
		TenantID:      r.TenantID,
		TargetUserID:  &requester,
		QueueIfMissed: true,
	})
	n.publish(&models.Envelope{
		Name:     models.EventOrderNew,
		Payload:  payload,
		Priority: models.PriorityNormal,
		TenantID: r.TenantID,
	})
}

// SystemReset broadcasts an operational reset to every connected client.
func (n *Notifier) SystemReset(tenantID, resetBy, message string) {
	n.publish(&models.Envelope{
		Name: models.EventSystemReset,
		Payload: models.SystemResetPayload{
			Message:   message,
			ResetBy:   resetBy,
			Timestamp: models.EventTimestamp(n.now()),
		},
		Priority: models.PriorityHigh,
		TenantID: tenantID,
	})
}

func (n *Notifier) publish(e *models.Envelope) {
	n.dispatcher.Publish(e)

	if n.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := n.mirror.Publish(ctx, e.Name, e); err != nil {
		n.log.Error("mirror_publish", "Failed to mirror event to broker", "", err, map[string]interface{}{
			"event": e.Name,
		})
	}
}

func (n *Notifier) cacheOrder(o *models.Order) {
	if n.orderCache == nil {
		return
	}
	n.orderCache.UpdateIfNewer(o.ID.String(), o, n.version.Add(1))
}

func (n *Notifier) dropCachedOrder(o *models.Order) {
	if n.orderCache == nil {
		return
	}
	n.orderCache.Invalidate(o.ID.String())
}

func eventItems(lines []models.OrderLine) []models.EventItem {
	out := make([]models.EventItem, 0, len(lines))
	for _, l := range lines {
		out = append(out, models.EventItem{
			ItemID:      l.ID,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Station:     l.Station,
		})
	}
	return out
}

func mergeRequestPayload(r *models.MergeRequest, now time.Time) models.MergeRequestPayload {
	items := make([]models.EventItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, models.EventItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
		})
	}
	return models.MergeRequestPayload{
		ID:            r.ID,
		OrderID:       r.OrderID,
		TableID:       r.TableID,
		TableNumber:   r.TableNumber,
		RequesterName: r.RequesterName,
		Items:         items,
		Timestamp:     models.EventTimestamp(now),
	}
}

func tableNumber(o *models.Order) string {
	if o.TableNumber != nil {
		return *o.TableNumber
	}
	return ""
}
