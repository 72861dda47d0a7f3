package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/antonio12761/roxy-bar-sub000/internal/models"
	"github.com/antonio12761/roxy-bar-sub000/internal/storage"
)

const tenant = "roxy"

func seedOrder(t *testing.T, m *storage.Memory, tableID uuid.UUID) *models.Order {
	t.Helper()

	number := "12"
	o := &models.Order{
		ID:          uuid.New(),
		TenantID:    tenant,
		TableID:     &tableID,
		TableNumber: &number,
		Type:        models.TypeTable,
		Status:      models.StatusOrdered,
		CreatedBy:   uuid.New(),
		OpenedAt:    time.Now(),
	}
	o.Lines = []models.OrderLine{{
		ID:          uuid.New(),
		OrderID:     o.ID,
		ProductID:   uuid.New(),
		ProductName: "Espresso",
		Quantity:    1,
		UnitPrice:   decimal.NewFromFloat(1.20),
		Status:      models.LineOrdered,
		Station:     models.StationCounter,
	}}
	o.RecomputeTotal()

	err := m.WithinTx(context.Background(), storage.TxOptions{}, func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertOrder(ctx, o)
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

func TestTxReadsReturnIsolatedCopies(t *testing.T) {
	m := storage.NewMemory()
	table := models.Table{ID: uuid.New(), TenantID: tenant, Number: "12"}
	m.AddTable(table)
	seeded := seedOrder(t, m, table.ID)

	err := m.WithinTx(context.Background(), storage.TxOptions{}, func(ctx context.Context, tx storage.Tx) error {
		o, err := tx.OrderByID(ctx, seeded.ID)
		if err != nil {
			return err
		}
		// mutate the read result without writing it back
		o.Status = models.StatusInProgress
		o.Lines[0].Quantity = 99
		o.Lines = append(o.Lines, models.OrderLine{ID: uuid.New(), OrderID: o.ID})

		open, err := tx.OpenOrdersOnTable(ctx, table.ID)
		if err != nil {
			return err
		}
		open[0].Lines = append(open[0].Lines, models.OrderLine{ID: uuid.New(), OrderID: o.ID})
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	stored, ok := m.Order(seeded.ID)
	if !ok {
		t.Fatal("order missing after tx")
	}
	if stored.Status != models.StatusOrdered {
		t.Errorf("status = %s, want ORDERED untouched", stored.Status)
	}
	if len(stored.Lines) != 1 {
		t.Fatalf("lines = %d, only written changes may persist", len(stored.Lines))
	}
	if stored.Lines[0].Quantity != 1 {
		t.Errorf("quantity = %d, want 1 untouched", stored.Lines[0].Quantity)
	}
}

func TestTxWriteKeepsNoLiveReference(t *testing.T) {
	m := storage.NewMemory()
	table := models.Table{ID: uuid.New(), TenantID: tenant, Number: "12"}
	m.AddTable(table)
	seeded := seedOrder(t, m, table.ID)

	// the caller's struct stays theirs after the insert returns
	seeded.Lines[0].Quantity = 42
	stored, _ := m.Order(seeded.ID)
	if stored.Lines[0].Quantity != 1 {
		t.Errorf("quantity = %d, want 1 despite caller mutation", stored.Lines[0].Quantity)
	}
}

func TestTableByNumberScopedToTenant(t *testing.T) {
	m := storage.NewMemory()
	ours := models.Table{ID: uuid.New(), TenantID: tenant, Number: "7"}
	theirs := models.Table{ID: uuid.New(), TenantID: "elsewhere", Number: "7"}
	m.AddTable(ours)
	m.AddTable(theirs)

	err := m.WithinTx(context.Background(), storage.TxOptions{}, func(ctx context.Context, tx storage.Tx) error {
		tb, err := tx.TableByNumber(ctx, tenant, "7")
		if err != nil {
			return err
		}
		if tb.ID != ours.ID {
			t.Errorf("table = %s, want this tenant's table %s", tb.ID, ours.ID)
		}

		var notFound *storage.NotFoundError
		if _, err := tx.TableByNumber(ctx, "ghost", "7"); !errors.As(err, &notFound) {
			t.Errorf("unknown tenant: expected NotFoundError, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}
