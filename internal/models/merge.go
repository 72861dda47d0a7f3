package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MergeRequestStatus represents the lifecycle state of a merge request.
// A request is resolved exactly once and never reopened.
type MergeRequestStatus string

const (
	MergePending  MergeRequestStatus = "PENDING"
	MergeAccepted MergeRequestStatus = "ACCEPTED"
	MergeRejected MergeRequestStatus = "REJECTED"
)

// MergeItem is one requested product line inside a merge request, persisted
// as a typed child row rather than a serialized blob.
type MergeItem struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Note        string          `json:"note,omitempty"`
}

// MergeRequest is a proposal to add items to an order a station is already
// working on. The station must consent before the lines are folded in.
type MergeRequest struct {
	ID            uuid.UUID          `json:"id"`
	TenantID      string             `json:"tenant_id"`
	OrderID       uuid.UUID          `json:"order_id"`
	TableID       uuid.UUID          `json:"table_id"`
	TableNumber   string             `json:"table_number"`
	RequestedBy   uuid.UUID          `json:"requested_by"`
	RequesterName string             `json:"requester_name"`
	Items         []MergeItem        `json:"items"`
	Status        MergeRequestStatus `json:"status"`
	ResolvedBy    *uuid.UUID         `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time         `json:"resolved_at,omitempty"`
	RejectReason  string             `json:"reject_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// ItemCounts aggregates requested quantities per product.
func (r *MergeRequest) ItemCounts() map[uuid.UUID]int {
	counts := make(map[uuid.UUID]int)
	for _, it := range r.Items {
		counts[it.ProductID] += it.Quantity
	}
	return counts
}
