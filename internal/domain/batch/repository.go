package batch

import (
	"context"
	"time"
)

// GrantInput is the set of fields needed to create a batch and its opening
// token event in one call, matching spec.md §4.3's grant_batch operation.
type GrantInput struct {
	UserID         string
	Source         Origin
	SubscriptionID *string
	PurchaseID     *string
	InvoiceID      *string
	Amount         int64
	ExpiresAt      time.Time
	Note           string
}

// Repository defines C1's batch persistence operations, including the
// FIFO-by-expiry row-locking read used by consumption (spec.md §4.1, §4.3).
type Repository interface {
	// Insert enforces I3: a conflict on InvoiceID must be surfaced distinctly
	// so the caller can treat it as "already credited" rather than an error.
	Insert(ctx context.Context, b *Batch) (id string, err error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*Batch, error)
	GetByID(ctx context.Context, id string) (*Batch, error)

	// LockActiveFIFO returns active, non-expired batches for userID ordered
	// by expires_at ASC, id ASC, with row locks suitable for the store's
	// isolation model. Must be called inside a transaction.
	LockActiveFIFO(ctx context.Context, userID string, asOf time.Time) ([]*Batch, error)

	// ApplyConsumption increases consumed by delta on the given batch.
	ApplyConsumption(ctx context.Context, batchID string, delta int64) error

	Deactivate(ctx context.Context, batchID string) error

	// ListExpiredActive returns active batches with expires_at <= asOf, for
	// the maintenance worker's expiry sweep.
	ListExpiredActive(ctx context.Context, asOf time.Time) ([]*Batch, error)

	// Balance returns sum(max(0, amount-consumed)) over active, non-expired
	// batches for userID.
	Balance(ctx context.Context, userID string, asOf time.Time) (int64, error)
}
