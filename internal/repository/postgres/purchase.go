package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"
	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/postgres"
	"github.com/tokenmint/ledger/internal/domain/purchase"
	"github.com/tokenmint/ledger/internal/types"
)

type purchaseRepository struct {
	db *postgres.DB
}

func NewPurchaseRepository(db *postgres.DB) purchase.Repository {
	return &purchaseRepository{db: db}
}

// Insert is idempotent on PGPurchaseID (spec.md §4.2). A purchase already
// recorded under the same PGPurchaseID is not an error: Insert returns that
// purchase's ID.
func (r *purchaseRepository) Insert(ctx context.Context, p *purchase.Purchase) (string, error) {
	q := r.db.GetQuerier(ctx)

	if p.ID == "" {
		p.ID = types.GenerateUUIDWithPrefix(types.UUIDPrefixPurchase)
	}
	now := time.Now().UTC()

	res, err := q.ExecContext(ctx, `
		INSERT INTO purchases (
			id, user_id, plan_tier, pg_purchase_id, amount_tokens, discount_cents,
			period_start, period_end, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
		ON CONFLICT (pg_purchase_id) DO NOTHING
	`, p.ID, p.UserID, p.PlanTier, p.PGPurchaseID, p.AmountTokens, p.DiscountCents,
		p.PeriodStart, p.PeriodEnd, types.StatusActive, now)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			existing, getErr := r.GetByPGPurchaseID(ctx, p.PGPurchaseID)
			if getErr != nil {
				return "", getErr
			}
			return existing.ID, nil
		}
		return "", ierr.Wrap(err, ierr.CodeInternal, "failed to insert purchase").Mark(ierr.ErrTransientStorage)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		existing, getErr := r.GetByPGPurchaseID(ctx, p.PGPurchaseID)
		if getErr != nil {
			return "", getErr
		}
		return existing.ID, nil
	}
	return p.ID, nil
}

func (r *purchaseRepository) GetByPGPurchaseID(ctx context.Context, pgPurchaseID string) (*purchase.Purchase, error) {
	q := r.db.GetQuerier(ctx)
	p := &purchase.Purchase{}
	err := q.GetContext(ctx, p, `
		SELECT id, user_id, plan_tier, pg_purchase_id, amount_tokens, discount_cents,
			period_start, period_end, status, created_at, updated_at, created_by, updated_by
		FROM purchases WHERE pg_purchase_id = $1
	`, pgPurchaseID)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeNotFound, "purchase not found").Mark(ierr.ErrNotFound)
	}
	return p, nil
}
