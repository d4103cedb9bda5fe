package referral

import "context"

// Repository defines the referral persistence operations. Reward idempotency
// (spec.md §4.2) is enforced by MarkRewarded only succeeding once per row —
// the dispatcher treats a no-op second call as success, not an error.
type Repository interface {
	GetPendingByReferredUserID(ctx context.Context, referredUserID string) (*Referral, error)
	// MarkRewarded flips IsRewarded to true, returning rewarded=false if it
	// was already true (already-rewarded is a no-op, not an error).
	MarkRewarded(ctx context.Context, id string) (rewarded bool, err error)
}
