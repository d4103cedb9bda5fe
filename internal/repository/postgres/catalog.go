package postgres

import (
	"database/sql"
	"context"

	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/postgres"
	"github.com/tokenmint/ledger/internal/domain/catalog"
)

// catalogRepository is a read-only lookup over the subscription_prices and
// token_prices tables, populated out-of-band (spec.md §3).
type catalogRepository struct {
	db *postgres.DB
}

func NewCatalogRepository(db *postgres.DB) catalog.Repository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) GetSubscriptionPrice(ctx context.Context, planKey string) (*catalog.SubscriptionPrice, error) {
	q := r.db.GetQuerier(ctx)
	p := &catalog.SubscriptionPrice{}
	err := q.GetContext(ctx, p, `
		SELECT plan_key, plan_tier, billing_cycle, tokens_per_cycle, monthly_refill_tokens, price_cents
		FROM subscription_prices WHERE plan_key = $1
	`, planKey)
	if err == sql.ErrNoRows {
		return nil, ierr.Wrap(err, ierr.CodeCatalogMissing, "subscription price not found").Mark(ierr.ErrCatalogMissing)
	}
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to get subscription price").Mark(ierr.ErrTransientStorage)
	}
	if err := p.BillingCycle.Validate(); err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "catalog row has an invalid billing cycle").Mark(ierr.ErrTransientStorage)
	}
	return p, nil
}

func (r *catalogRepository) GetTokenPrice(ctx context.Context, planKey string) (*catalog.TokenPrice, error) {
	q := r.db.GetQuerier(ctx)
	p := &catalog.TokenPrice{}
	err := q.GetContext(ctx, p, `
		SELECT plan_key, tier, tokens, price_cents FROM token_prices WHERE plan_key = $1
	`, planKey)
	if err == sql.ErrNoRows {
		return nil, ierr.Wrap(err, ierr.CodeCatalogMissing, "token price not found").Mark(ierr.ErrCatalogMissing)
	}
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeInternal, "failed to get token price").Mark(ierr.ErrTransientStorage)
	}
	return p, nil
}
