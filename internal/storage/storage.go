// Package storage defines the transactional persistence surface the
// coordination engine runs on, with a PostgreSQL implementation for
// production and an in-memory implementation for tests.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub000/internal/models"
)

// TxOptions controls how a transaction is opened.
type TxOptions struct {
	// Serializable requests the strictest isolation level. Used by flows
	// that must not double-apply under concurrent submission.
	Serializable bool
	// Timeout bounds the whole transaction. Zero means the default.
	Timeout time.Duration
}

// DefaultTxTimeout bounds single-step mutation transactions.
const DefaultTxTimeout = 10 * time.Second

// MultiStepTxTimeout bounds multi-step flows such as merges.
const MultiStepTxTimeout = 15 * time.Second

// LockWait bounds row-lock acquisition inside a transaction.
const LockWait = 5 * time.Second

// Store opens transactions and serves the read paths that do not need one.
type Store interface {
	// WithinTx runs fn inside one transaction. fn returning an error rolls
	// everything back; nothing is externally visible until commit.
	WithinTx(ctx context.Context, opts TxOptions, fn func(ctx context.Context, tx Tx) error) error

	ListOpenOrders(ctx context.Context, tenantID string) ([]*models.Order, error)
	ListPendingMergeRequests(ctx context.Context, tenantID string) ([]*models.MergeRequest, error)
}

// Tx is the operation surface available inside a transaction.
type Tx interface {
	OrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	OrderByLineID(ctx context.Context, lineID uuid.UUID) (*models.Order, error)
	OpenOrdersOnTable(ctx context.Context, tableID uuid.UUID) ([]*models.Order, error)
	RecentOrdersOnTable(ctx context.Context, tableID uuid.UUID, since time.Time) ([]*models.Order, error)
	InsertOrder(ctx context.Context, o *models.Order) error
	UpdateOrder(ctx context.Context, o *models.Order) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error

	InsertLine(ctx context.Context, l *models.OrderLine) error
	UpdateLine(ctx context.Context, l *models.OrderLine) error
	DeleteLine(ctx context.Context, id uuid.UUID) error

	ProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	// ProductsForUpdate loads the given products row-locked so concurrent
	// reservation batches serialize on them.
	ProductsForUpdate(ctx context.Context, ids []uuid.UUID) ([]*models.Product, error)
	// AdjustInventory applies deltas to a product's reserved and available
	// quantities. Only the inventory ledger may call it.
	AdjustInventory(ctx context.Context, productID uuid.UUID, reservedDelta, availableDelta int) error

	TableByNumber(ctx context.Context, tenantID, number string) (*models.Table, error)
	SetTableOccupied(ctx context.Context, tableID uuid.UUID, occupied bool) error

	InsertMergeRequest(ctx context.Context, r *models.MergeRequest) error
	MergeRequestByID(ctx context.Context, id uuid.UUID) (*models.MergeRequest, error)
	// LatestPendingMergeRequest returns the most recent PENDING request for
	// the order by the given requester, or NotFoundError.
	LatestPendingMergeRequest(ctx context.Context, orderID, requestedBy uuid.UUID) (*models.MergeRequest, error)
	ResolveMergeRequest(ctx context.Context, r *models.MergeRequest) error

	AppendStatusLog(ctx context.Context, orderID uuid.UUID, from, to models.OrderStatus, changedBy string) error
}

// NotFoundError reports an unresolvable entity id.
type NotFoundError struct {
	Kind string
	ID   uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Code returns the machine-readable reason code.
func (e *NotFoundError) Code() string { return "NOT_FOUND" }

// TimeoutError reports a lock wait or transaction deadline exceeded. Nothing
// was committed, so the caller may always retry.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation expired: %s: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Code returns the machine-readable reason code.
func (e *TimeoutError) Code() string { return "TRANSACTION_TIMEOUT" }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
