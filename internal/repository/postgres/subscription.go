package postgres

import (
	"context"
	"database/sql"
	"time"

	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/postgres"
	"github.com/tokenmint/ledger/internal/domain/subscription"
	"github.com/tokenmint/ledger/internal/types"
)

type subscriptionRepository struct {
	db *postgres.DB
}

func NewSubscriptionRepository(db *postgres.DB) subscription.Repository {
	return &subscriptionRepository{db: db}
}

const subscriptionColumns = `
	id, user_id, plan_key, plan_tier, billing_cycle, pg_subscription_id, state,
	is_active, current_period_start, current_period_end, tokens_per_cycle,
	price_cents, last_monthly_refill, payment_failure_reason,
	status, created_at, updated_at, created_by, updated_by
`

func (r *subscriptionRepository) UpsertByPGID(ctx context.Context, s *subscription.Subscription) (string, bool, error) {
	q := r.db.GetQuerier(ctx)

	if s.ID == "" {
		s.ID = types.GenerateUUIDWithPrefix(types.UUIDPrefixSubscription)
	}
	now := time.Now().UTC()

	var id string
	var wasInsert bool
	err := q.QueryRowContext(ctx, `
		INSERT INTO subscriptions (
			id, user_id, plan_key, plan_tier, billing_cycle, pg_subscription_id, state,
			is_active, current_period_start, current_period_end, tokens_per_cycle,
			price_cents, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
		ON CONFLICT (pg_subscription_id) DO UPDATE SET
			plan_key = EXCLUDED.plan_key,
			plan_tier = EXCLUDED.plan_tier,
			billing_cycle = EXCLUDED.billing_cycle,
			state = EXCLUDED.state,
			is_active = EXCLUDED.is_active,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			tokens_per_cycle = EXCLUDED.tokens_per_cycle,
			price_cents = EXCLUDED.price_cents,
			updated_at = $14
		RETURNING id, (xmax = 0) AS was_insert
	`,
		s.ID, s.UserID, s.PlanKey, s.PlanTier, s.BillingCycle, s.PGSubscriptionID, s.State,
		s.IsActive, s.CurrentPeriodStart, s.CurrentPeriodEnd, s.TokensPerCycle,
		s.PriceCents, types.StatusActive, now,
	).Scan(&id, &wasInsert)
	if err != nil {
		return "", false, ierr.Wrap(err, ierr.CodeInternal, "failed to upsert subscription").Mark(ierr.ErrTransientStorage)
	}
	return id, wasInsert, nil
}

func (r *subscriptionRepository) FindLocalIDByPGID(ctx context.Context, pgSubscriptionID string) (string, error) {
	q := r.db.GetQuerier(ctx)
	var id string
	err := q.GetContext(ctx, &id, `SELECT id FROM subscriptions WHERE pg_subscription_id = $1`, pgSubscriptionID)
	if err == sql.ErrNoRows {
		return "", ierr.Wrap(err, ierr.CodeNotFound, "subscription not found").Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return "", ierr.Wrap(err, ierr.CodeInternal, "failed to find subscription").Mark(ierr.ErrTransientStorage)
	}
	return id, nil
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id string) (*subscription.Subscription, error) {
	q := r.db.GetQuerier(ctx)
	s := &subscription.Subscription{}
	err := q.GetContext(ctx, s, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ierr.Wrap(err, ierr.CodeNotFound, "subscription not found").Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to get subscription").Mark(ierr.ErrTransientStorage)
	}
	return s, nil
}

func (r *subscriptionRepository) GetActiveByUserID(ctx context.Context, userID string) (*subscription.Subscription, error) {
	q := r.db.GetQuerier(ctx)
	s := &subscription.Subscription{}
	err := q.GetContext(ctx, s, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE user_id = $1 AND is_active = true
		ORDER BY created_at DESC LIMIT 1
	`, userID)
	if err == sql.ErrNoRows {
		return nil, ierr.Wrap(err, ierr.CodeNotFound, "no active subscription").Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to get active subscription").Mark(ierr.ErrTransientStorage)
	}
	return s, nil
}

func (r *subscriptionRepository) ListActive(ctx context.Context) ([]*subscription.Subscription, error) {
	q := r.db.GetQuerier(ctx)
	var subs []*subscription.Subscription
	err := q.SelectContext(ctx, &subs, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE is_active = true`)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to list active subscriptions").Mark(ierr.ErrTransientStorage)
	}
	return subs, nil
}

func (r *subscriptionRepository) ListActiveYearly(ctx context.Context) ([]*subscription.Subscription, error) {
	q := r.db.GetQuerier(ctx)
	var subs []*subscription.Subscription
	err := q.SelectContext(ctx, &subs, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE is_active = true AND billing_cycle = $1
	`, types.BillingCycleYearly)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to list active yearly subscriptions").Mark(ierr.ErrTransientStorage)
	}
	return subs, nil
}

func (r *subscriptionRepository) UpdateState(ctx context.Context, id string, state subscription.State, isActive bool) error {
	q := r.db.GetQuerier(ctx)
	_, err := q.ExecContext(ctx, `
		UPDATE subscriptions SET state = $1, is_active = $2, updated_at = now() WHERE id = $3
	`, state, isActive, id)
	if err != nil {
		return ierr.Wrap(err, ierr.CodeInternal, "failed to update subscription state").Mark(ierr.ErrTransientStorage)
	}
	return nil
}

func (r *subscriptionRepository) SetPaymentFailureReason(ctx context.Context, id string, reason *string) error {
	q := r.db.GetQuerier(ctx)
	_, err := q.ExecContext(ctx, `
		UPDATE subscriptions SET payment_failure_reason = $1, updated_at = now() WHERE id = $2
	`, reason, id)
	if err != nil {
		return ierr.Wrap(err, ierr.CodeInternal, "failed to set payment failure reason").Mark(ierr.ErrTransientStorage)
	}
	return nil
}

func (r *subscriptionRepository) StampMonthlyRefill(ctx context.Context, id string) error {
	q := r.db.GetQuerier(ctx)
	now := time.Now().UTC()
	_, err := q.ExecContext(ctx, `
		UPDATE subscriptions SET last_monthly_refill = $1, updated_at = $1 WHERE id = $2
	`, now, id)
	if err != nil {
		return ierr.Wrap(err, ierr.CodeInternal, "failed to stamp monthly refill").Mark(ierr.ErrTransientStorage)
	}
	return nil
}

// DeactivateOtherActiveByPGID enforces "at most one active subscription per
// user" (spec.md §3 invariant). It runs before UpsertByPGID so the new row's
// insert never collides with the partial unique index on (user_id) WHERE
// is_active=true: by the time the new row is written, at most the row it
// will update (matched by pg_subscription_id) is still active.
func (r *subscriptionRepository) DeactivateOtherActiveByPGID(ctx context.Context, userID, keepPGID string) error {
	q := r.db.GetQuerier(ctx)
	_, err := q.ExecContext(ctx, `
		UPDATE subscriptions SET is_active = false, state = $1, updated_at = now()
		WHERE user_id = $2 AND pg_subscription_id != $3 AND is_active = true
	`, subscription.StateEnded, userID, keepPGID)
	if err != nil {
		return ierr.Wrap(err, ierr.CodeInternal, "failed to deactivate other active subscriptions").Mark(ierr.ErrTransientStorage)
	}
	return nil
}
