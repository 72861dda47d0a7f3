package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event names consumed by connected station clients.
const (
	EventOrderNew      = "order:new"
	EventOrderStatus   = "order:status-change"
	EventOrderMerged   = "order:merged"
	EventMergeRequest  = "merge:request"
	EventLineUpdate    = "order:item:update"
	EventOrderCancel   = "order:cancelled"
	EventSystemReset   = "system:reset"
	EventHeartbeat     = "system:heartbeat"
)

// Priority is the delivery tier of an event. High-priority events are
// re-sent at fixed delays to defend against late reconnects.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Envelope wraps a typed event payload with its routing metadata.
type Envelope struct {
	Name          string        `json:"name"`
	Payload       any           `json:"payload"`
	Priority      Priority      `json:"priority"`
	TenantID      string        `json:"tenant_id,omitempty"`
	TargetUserID  *uuid.UUID    `json:"target_user_id,omitempty"`
	TargetRoles   []Role        `json:"target_roles,omitempty"`
	Channels      []string      `json:"channels,omitempty"`
	CorrelationID uuid.UUID     `json:"correlation_id"`
	RequiresAck   bool          `json:"requires_ack,omitempty"`
	TTL           time.Duration `json:"ttl,omitempty"`
	QueueIfMissed bool          `json:"-"`
	EmittedAt     time.Time     `json:"emitted_at"`
}

// StationScoped is implemented by payloads whose relevance is limited to
// specific preparation stations.
type StationScoped interface {
	Stations() []Station
}

// EventItem is the item shape embedded in order events.
type EventItem struct {
	ItemID      uuid.UUID `json:"item_id"`
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	Station     Station   `json:"station"`
}

// OrderNewPayload is the payload of order:new.
type OrderNewPayload struct {
	OrderID     uuid.UUID       `json:"orderId"`
	TableNumber *string         `json:"tableNumber,omitempty"`
	Items       []EventItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Timestamp   string          `json:"timestamp"`
}

func (p OrderNewPayload) Stations() []Station { return itemStations(p.Items) }

// OrderStatusPayload is the payload of order:status-change.
type OrderStatusPayload struct {
	OrderID     uuid.UUID   `json:"orderId"`
	OldStatus   OrderStatus `json:"oldStatus"`
	NewStatus   OrderStatus `json:"newStatus"`
	TableNumber *string     `json:"tableNumber,omitempty"`
	Timestamp   string      `json:"timestamp"`
}

// OrderMergedPayload is the payload of order:merged.
type OrderMergedPayload struct {
	OrderID     uuid.UUID       `json:"orderId"`
	TableNumber string          `json:"tableNumber"`
	NewItems    []EventItem     `json:"newItems"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	MergedBy    string          `json:"mergedBy"`
	Timestamp   string          `json:"timestamp"`
}

func (p OrderMergedPayload) Stations() []Station { return itemStations(p.NewItems) }

// MergeRequestPayload is the payload of merge:request.
type MergeRequestPayload struct {
	ID            uuid.UUID   `json:"id"`
	OrderID       uuid.UUID   `json:"orderId"`
	TableID       uuid.UUID   `json:"tableId"`
	TableNumber   string      `json:"tableNumber"`
	RequesterName string      `json:"requesterName"`
	Items         []EventItem `json:"items"`
	Timestamp     string      `json:"timestamp"`
}

func (p MergeRequestPayload) Stations() []Station { return itemStations(p.Items) }

// LineUpdatePayload is the payload of order:item:update.
type LineUpdatePayload struct {
	ItemID         uuid.UUID  `json:"itemId"`
	OrderID        uuid.UUID  `json:"orderId"`
	Status         LineStatus `json:"status"`
	PreviousStatus LineStatus `json:"previousStatus"`
	Station        Station    `json:"station"`
	Timestamp      string     `json:"timestamp"`
}

func (p LineUpdatePayload) Stations() []Station { return []Station{p.Station} }

// OrderCancelledPayload is the payload of order:cancelled.
type OrderCancelledPayload struct {
	OrderID     uuid.UUID `json:"orderId"`
	TableNumber *string   `json:"tableNumber,omitempty"`
	Reason      string    `json:"reason"`
	Timestamp   string    `json:"timestamp"`
}

// SystemResetPayload is the payload of system:reset.
type SystemResetPayload struct {
	Message   string `json:"message"`
	ResetBy   string `json:"resetBy"`
	Timestamp string `json:"timestamp"`
}

// EventTimestamp formats t the way every event payload carries it.
func EventTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func itemStations(items []EventItem) []Station {
	seen := make(map[Station]bool, 3)
	var out []Station
	for _, it := range items {
		if !seen[it.Station] {
			seen[it.Station] = true
			out = append(out, it.Station)
		}
	}
	return out
}
