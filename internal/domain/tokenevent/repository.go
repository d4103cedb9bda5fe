package tokenevent

import "context"

// Repository defines the append-only journal's persistence operations.
type Repository interface {
	Append(ctx context.Context, e *Event) error
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]*Event, error)
	ListForBatch(ctx context.Context, batchID string) ([]*Event, error)
	// SumForUser returns the running sum of deltas for userID, used by the
	// reconciliation worker's balance-invariant check (spec.md §4.7).
	SumForUser(ctx context.Context, userID string) (int64, error)
}
