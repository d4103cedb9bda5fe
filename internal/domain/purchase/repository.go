package purchase

import "context"

// Repository defines C1's one-time-purchase persistence operations.
// Insert is idempotent on PGPurchaseID (spec.md §4.2): a unique-constraint
// conflict must be surfaced as "already exists", not an error.
type Repository interface {
	Insert(ctx context.Context, p *Purchase) (id string, err error)
	GetByPGPurchaseID(ctx context.Context, pgPurchaseID string) (*Purchase, error)
}
