package user

import "context"

// Repository defines C1's user-facing persistence operations.
type Repository interface {
	// UpsertByExternalID creates the user row on first authenticated
	// interaction, or returns the existing one.
	UpsertByExternalID(ctx context.Context, externalID, email string) (*User, error)

	GetByID(ctx context.Context, id string) (*User, error)
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	GetByPGCustomerID(ctx context.Context, pgCustomerID string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	// BindPGCustomer stamps pg_customer_id on first payment event.
	BindPGCustomer(ctx context.Context, userID, pgCustomerID string) error

	UpdateFlags(ctx context.Context, userID string, hasActiveSubscription, hasPaymentIssue *bool) error

	// ListPage paginates over all non-deleted users, oldest first, feeding
	// the reconciliation worker's per-user balance check (spec.md §4.7).
	ListPage(ctx context.Context, limit, offset int) ([]*User, error)
}
