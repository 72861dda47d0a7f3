// Package inventory implements the reservation ledger: atomic all-or-nothing
// holds on finite product stock. The ledger is the only component that
// mutates reserved quantities.
package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub000/internal/storage"
)

// Item is one product/quantity pair in a reservation batch.
type Item struct {
	ProductID uuid.UUID
	Quantity  int
}

// Shortfall describes one unsatisfiable item of a failed batch, with the
// quantity actually available so callers can produce a precise message.
type Shortfall struct {
	ProductID uuid.UUID
	Name      string
	Requested int
	Available int
}

// InsufficientError enumerates every unsatisfiable item of a batch.
type InsufficientError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = fmt.Sprintf("%s: requested %d, available %d", s.Name, s.Requested, s.Available)
	}
	return "insufficient inventory: " + strings.Join(parts, "; ")
}

// Code returns the machine-readable reason code.
func (e *InsufficientError) Code() string { return "INSUFFICIENT_INVENTORY" }

// Ledger reserves and releases product inventory. Every operation runs
// inside the caller's transaction; there is no eventual-consistency window
// between a reservation and the order mutation it supports.
type Ledger struct{}

// NewLedger creates a reservation ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// ReserveAll checks available-minus-reserved for every item and, only if all
// pass, increments reserved for each. On failure nothing changes and the
// returned InsufficientError lists every shortfall.
func (l *Ledger) ReserveAll(ctx context.Context, tx storage.Tx, items []Item) error {
	merged := mergeItems(items)
	if len(merged) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(merged))
	for i, it := range merged {
		ids[i] = it.ProductID
	}
	products, err := tx.ProductsForUpdate(ctx, ids)
	if err != nil {
		return err
	}

	var shortfalls []Shortfall
	for i, it := range merged {
		p := products[i]
		if p.Free() < it.Quantity {
			shortfalls = append(shortfalls, Shortfall{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: it.Quantity,
				Available: p.Free(),
			})
		}
	}
	if len(shortfalls) > 0 {
		return &InsufficientError{Shortfalls: shortfalls}
	}

	for _, it := range merged {
		if err := tx.AdjustInventory(ctx, it.ProductID, it.Quantity, 0); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseAll is the exact inverse of ReserveAll. Callers must pass the
// originally reserved quantities, never amounts recomputed from current
// state, to avoid drift.
func (l *Ledger) ReleaseAll(ctx context.Context, tx storage.Tx, items []Item) error {
	for _, it := range mergeItems(items) {
		if err := tx.AdjustInventory(ctx, it.ProductID, -it.Quantity, 0); err != nil {
			return err
		}
	}
	return nil
}

// CommitAll converts reservations into final stock depletion when an order
// is paid: reserved and available both drop by the held quantity.
func (l *Ledger) CommitAll(ctx context.Context, tx storage.Tx, items []Item) error {
	for _, it := range mergeItems(items) {
		if err := tx.AdjustInventory(ctx, it.ProductID, -it.Quantity, -it.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// mergeItems collapses duplicate product ids so row locks are taken once per
// product, preserving first-seen order.
func mergeItems(items []Item) []Item {
	idx := make(map[uuid.UUID]int, len(items))
	var out []Item
	for _, it := range items {
		if it.Quantity == 0 {
			continue
		}
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}
