package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestItemSignature(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	sig1 := ItemSignature(map[uuid.UUID]int{a: 2, b: 1})
	sig2 := ItemSignature(map[uuid.UUID]int{b: 1, a: 2})
	if sig1 != sig2 {
		t.Error("signature must not depend on map iteration order")
	}

	if ItemSignature(map[uuid.UUID]int{a: 2}) == ItemSignature(map[uuid.UUID]int{a: 3}) {
		t.Error("different quantities must produce different signatures")
	}
	if ItemSignature(map[uuid.UUID]int{a: 1}) == ItemSignature(map[uuid.UUID]int{b: 1}) {
		t.Error("different products must produce different signatures")
	}
}

func TestRecomputeTotalSkipsCancelledLines(t *testing.T) {
	o := Order{
		Lines: []OrderLine{
			{Quantity: 2, UnitPrice: decimal.NewFromFloat(5.00), Status: LineOrdered},
			{Quantity: 1, UnitPrice: decimal.NewFromFloat(8.00), Status: LineCancelled},
		},
	}
	o.RecomputeTotal()
	if want := decimal.NewFromFloat(10.00); !o.Total.Equal(want) {
		t.Errorf("total = %s, want %s", o.Total, want)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	for status, want := range map[OrderStatus]bool{
		StatusOrdered:          false,
		StatusInProgress:       false,
		StatusReady:            false,
		StatusDelivered:        false,
		StatusBillRequested:    false,
		StatusPaymentRequested: false,
		StatusPaid:             true,
		StatusCancelled:        true,
	} {
		if status.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, status.Terminal(), want)
		}
	}
}
