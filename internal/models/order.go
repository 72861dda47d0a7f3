package models

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderType represents the kind of sale an order belongs to.
type OrderType string

const (
	TypeTable    OrderType = "table"
	TypeTakeaway OrderType = "takeaway"
	TypeCounter  OrderType = "counter"
)

// OrderStatus represents the status of an order in its lifecycle.
type OrderStatus string

const (
	StatusOrdered          OrderStatus = "ORDERED"
	StatusInProgress       OrderStatus = "IN_PROGRESS"
	StatusReady            OrderStatus = "READY"
	StatusDelivered        OrderStatus = "DELIVERED"
	StatusBillRequested    OrderStatus = "BILL_REQUESTED"
	StatusPaymentRequested OrderStatus = "PAYMENT_REQUESTED"
	StatusPaid             OrderStatus = "PAID"
	StatusCancelled        OrderStatus = "CANCELLED"
)

// Terminal reports whether the status has no outgoing transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// LineStatus mirrors a subset of order progress at line granularity.
type LineStatus string

const (
	LineOrdered    LineStatus = "ORDERED"
	LineInProgress LineStatus = "IN_PROGRESS"
	LineReady      LineStatus = "READY"
	LineDelivered  LineStatus = "DELIVERED"
	LineCancelled  LineStatus = "CANCELLED"
)

// Order is a single tab opened for a table, takeaway or counter sale.
type Order struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       string          `json:"tenant_id"`
	TableID        *uuid.UUID      `json:"table_id,omitempty"`
	TableNumber    *string         `json:"table_number,omitempty"`
	Type           OrderType       `json:"type"`
	Status         OrderStatus     `json:"status"`
	Total          decimal.Decimal `json:"total"`
	CustomerName   string          `json:"customer_name,omitempty"`
	Note           string          `json:"note,omitempty"`
	PaymentPending bool            `json:"payment_pending"`
	CreatedBy      uuid.UUID       `json:"created_by"`
	CreatedByName  string          `json:"created_by_name"`
	OpenedAt       time.Time       `json:"opened_at"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
	Lines          []OrderLine     `json:"lines"`
}

// OrderLine is one product entry within an order. UnitPrice is a snapshot
// taken at insert time; catalog price changes never alter existing lines.
type OrderLine struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Status      LineStatus      `json:"status"`
	Station     Station         `json:"station"`
	GlassCount  int             `json:"glass_count,omitempty"`
	Note        string          `json:"note,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	ReadyAt     *time.Time      `json:"ready_at,omitempty"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
}

// Amount returns the line amount (unit price times quantity).
func (l *OrderLine) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// RecomputeTotal sets Total to the sum of non-cancelled line amounts.
func (o *Order) RecomputeTotal() {
	total := decimal.Zero
	for i := range o.Lines {
		if o.Lines[i].Status == LineCancelled {
			continue
		}
		total = total.Add(o.Lines[i].Amount())
	}
	o.Total = total
}

// LineByProduct returns the first non-cancelled line for the given product,
// or nil when none exists.
func (o *Order) LineByProduct(productID uuid.UUID) *OrderLine {
	for i := range o.Lines {
		if o.Lines[i].ProductID == productID && o.Lines[i].Status != LineCancelled {
			return &o.Lines[i]
		}
	}
	return nil
}

// ActiveLines returns the order's non-cancelled lines.
func (o *Order) ActiveLines() []OrderLine {
	active := make([]OrderLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		if l.Status != LineCancelled {
			active = append(active, l)
		}
	}
	return active
}

// ItemSignature returns a canonical product/quantity fingerprint used by the
// duplicate-submission heuristic. Two orders with the same fingerprint carry
// an identical item multiset.
func ItemSignature(items map[uuid.UUID]int) string {
	keys := make([]string, 0, len(items))
	for id, qty := range items {
		keys = append(keys, id.String()+"x"+strconv.Itoa(qty))
	}
	sort.Strings(keys)
	return strings.Join(keys, ";")
}

// ItemCounts aggregates non-cancelled line quantities per product.
func (o *Order) ItemCounts() map[uuid.UUID]int {
	counts := make(map[uuid.UUID]int)
	for _, l := range o.Lines {
		if l.Status == LineCancelled {
			continue
		}
		counts[l.ProductID] += l.Quantity
	}
	return counts
}
