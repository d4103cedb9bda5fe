package subscription

import "context"

// Repository defines C1's subscription persistence operations.
type Repository interface {
	// UpsertByPGID creates or updates the subscription row keyed on
	// pg_subscription_id, returning wasInsert=true when it was newly created.
	UpsertByPGID(ctx context.Context, s *Subscription) (id string, wasInsert bool, err error)

	FindLocalIDByPGID(ctx context.Context, pgSubscriptionID string) (string, error)
	GetByID(ctx context.Context, id string) (*Subscription, error)
	GetActiveByUserID(ctx context.Context, userID string) (*Subscription, error)
	ListActive(ctx context.Context) ([]*Subscription, error)
	ListActiveYearly(ctx context.Context) ([]*Subscription, error)

	UpdateState(ctx context.Context, id string, state State, isActive bool) error
	SetPaymentFailureReason(ctx context.Context, id string, reason *string) error
	StampMonthlyRefill(ctx context.Context, id string) error

	// DeactivateOtherActiveByPGID enforces "at most one active subscription
	// per user" (spec.md §3) by deactivating every other active row for
	// userID, keeping only the one whose pg_subscription_id is keepPGID.
	// Must run before UpsertByPGID inserts the new row, since the partial
	// unique index on (user_id) WHERE is_active=true would otherwise reject
	// a second active row for the same user at insert time.
	DeactivateOtherActiveByPGID(ctx context.Context, userID, keepPGID string) error
}
