// Package orders implements the order-lifecycle coordination engine: the
// validated status state machine and the transactional mutation service.
package orders

import (
	"github.com/antonio12761/roxy-bar-sub000/internal/models"
)

// transitions is the legal order-status graph. Edges are bidirectional where
// a later status can be rolled back to correct a mistake; PAID and CANCELLED
// are terminal.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusOrdered:          {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress:       {models.StatusOrdered, models.StatusReady, models.StatusCancelled},
	models.StatusReady:            {models.StatusInProgress, models.StatusDelivered},
	models.StatusDelivered:        {models.StatusReady, models.StatusBillRequested, models.StatusPaid},
	models.StatusBillRequested:    {models.StatusDelivered, models.StatusPaymentRequested},
	models.StatusPaymentRequested: {models.StatusBillRequested, models.StatusPaid},
	models.StatusPaid:             {},
	models.StatusCancelled:        {},
}

// ValidateTransition reports whether current -> next is a legal edge.
func ValidateTransition(current, next models.OrderStatus) bool {
	for _, s := range transitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// AllowedNext returns the outgoing edges for the given status. The slice is
// a copy and safe to hand to callers.
func AllowedNext(current models.OrderStatus) []models.OrderStatus {
	edges := transitions[current]
	out := make([]models.OrderStatus, len(edges))
	copy(out, edges)
	return out
}

// CheckTransition validates an edge and returns a typed error carrying the
// legal next statuses when it is disallowed, for UI hinting.
func CheckTransition(current, next models.OrderStatus) error {
	if ValidateTransition(current, next) {
		return nil
	}
	return &InvalidTransitionError{
		Current: current,
		Next:    next,
		Allowed: AllowedNext(current),
	}
}

// lineTransitions mirrors a subset of order progress at line granularity.
var lineTransitions = map[models.LineStatus][]models.LineStatus{
	models.LineOrdered:    {models.LineInProgress, models.LineCancelled},
	models.LineInProgress: {models.LineOrdered, models.LineReady, models.LineCancelled},
	models.LineReady:      {models.LineInProgress, models.LineDelivered},
	models.LineDelivered:  {models.LineReady},
	models.LineCancelled:  {},
}

// ValidateLineTransition reports whether current -> next is legal for a line.
func ValidateLineTransition(current, next models.LineStatus) bool {
	for _, s := range lineTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// AllowedNextLine returns the outgoing line edges for the given status.
func AllowedNextLine(current models.LineStatus) []models.LineStatus {
	edges := lineTransitions[current]
	out := make([]models.LineStatus, len(edges))
	copy(out, edges)
	return out
}
