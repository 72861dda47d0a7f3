package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Station is a physical preparation point that order lines are routed to.
type Station string

const (
	StationBar     Station = "bar"
	StationKitchen Station = "kitchen"
	StationCounter Station = "counter"
)

// Product is a catalog entry with finite inventory. Reserved tracks
// provisional holds for open orders and must never exceed Available.
type Product struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Station       Station         `json:"station"`
	Price         decimal.Decimal `json:"price"`
	Available     int             `json:"available"`
	Reserved      int             `json:"reserved"`
	RequiresGlass bool            `json:"requires_glass"`
}

// Free returns the quantity available for new reservations.
func (p *Product) Free() int {
	return p.Available - p.Reserved
}

// Table is a physical table in the venue. Numbers are unique per tenant,
// not globally.
type Table struct {
	ID       uuid.UUID `json:"id"`
	TenantID string    `json:"tenant_id"`
	Number   string    `json:"number"`
	Occupied bool      `json:"occupied"`
}
