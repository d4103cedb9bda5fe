package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/postgres"
	"github.com/tokenmint/ledger/internal/domain/user"
	"github.com/tokenmint/ledger/internal/types"
)

// userRepository is C1's sqlx-backed implementation of user.Repository.
type userRepository struct {
	db *postgres.DB
}

func NewUserRepository(db *postgres.DB) user.Repository {
	return &userRepository{db: db}
}

func (r *userRepository) UpsertByExternalID(ctx context.Context, externalID, email string) (*user.User, error) {
	q := r.db.GetQuerier(ctx)

	u := &user.User{}
	now := time.Now().UTC()
	id := types.GenerateUUIDWithPrefix(types.UUIDPrefixUser)

	err := q.GetContext(ctx, u, `
		INSERT INTO users (id, external_id, email, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (external_id) DO UPDATE SET updated_at = users.updated_at
		RETURNING id, external_id, email, pg_customer_id, has_active_subscription,
			has_payment_issue, is_deleted, status, created_at, updated_at, created_by, updated_by
	`, id, externalID, email, types.StatusActive, now)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to upsert user").Mark(ierr.ErrTransientStorage)
	}
	return u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *userRepository) GetByExternalID(ctx context.Context, externalID string) (*user.User, error) {
	return r.getBy(ctx, "external_id", externalID)
}

func (r *userRepository) GetByPGCustomerID(ctx context.Context, pgCustomerID string) (*user.User, error) {
	return r.getBy(ctx, "pg_customer_id", pgCustomerID)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *userRepository) getBy(ctx context.Context, column, value string) (*user.User, error) {
	q := r.db.GetQuerier(ctx)
	u := &user.User{}
	err := q.GetContext(ctx, u, `
		SELECT id, external_id, email, pg_customer_id, has_active_subscription,
			has_payment_issue, is_deleted, status, created_at, updated_at, created_by, updated_by
		FROM users WHERE `+column+` = $1 AND is_deleted = false
	`, value)
	if err == sql.ErrNoRows {
		return nil, ierr.Wrap(err, ierr.CodeNotFound, "user not found").Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to get user").Mark(ierr.ErrTransientStorage)
	}
	return u, nil
}

func (r *userRepository) BindPGCustomer(ctx context.Context, userID, pgCustomerID string) error {
	q := r.db.GetQuerier(ctx)
	_, err := q.ExecContext(ctx, `
		UPDATE users SET pg_customer_id = $1, updated_at = now()
		WHERE id = $2 AND NOT EXISTS (SELECT 1 FROM users WHERE pg_customer_id = $1 AND id <> $2)
	`, pgCustomerID, userID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			// pg_customer_id already bound elsewhere; treat as idempotent no-op,
			// matching spec.md's "first payment event" binding semantics.
			return nil
		}
		return ierr.Wrap(err, ierr.CodeInternal, "failed to bind pg customer").Mark(ierr.ErrTransientStorage)
	}
	return nil
}

func (r *userRepository) UpdateFlags(ctx context.Context, userID string, hasActiveSubscription, hasPaymentIssue *bool) error {
	q := r.db.GetQuerier(ctx)
	_, err := q.ExecContext(ctx, `
		UPDATE users SET
			has_active_subscription = COALESCE($1, has_active_subscription),
			has_payment_issue = COALESCE($2, has_payment_issue),
			updated_at = now()
		WHERE id = $3
	`, hasActiveSubscription, hasPaymentIssue, userID)
	if err != nil {
		return ierr.Wrap(err, ierr.CodeInternal, "failed to update user flags").Mark(ierr.ErrTransientStorage)
	}
	return nil
}

// ListPage paginates over all non-deleted users, oldest first, for the
// reconciliation worker's per-user balance check (spec.md §4.7).
func (r *userRepository) ListPage(ctx context.Context, limit, offset int) ([]*user.User, error) {
	q := r.db.GetQuerier(ctx)
	var users []*user.User
	err := q.SelectContext(ctx, &users, `
		SELECT id, external_id, email, pg_customer_id, has_active_subscription,
			has_payment_issue, is_deleted, status, created_at, updated_at, created_by, updated_by
		FROM users WHERE is_deleted = false
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to list users").Mark(ierr.ErrTransientStorage)
	}
	return users, nil
}
