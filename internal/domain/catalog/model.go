package catalog

import (
	"github.com/shopspring/decimal"
	"github.com/tokenmint/ledger/internal/types"
)

// SubscriptionPrice is one row of the subscription_prices catalog table
// (spec.md §3). Read-only for the core; populated out-of-band.
type SubscriptionPrice struct {
	PlanKey             string             `db:"plan_key" json:"plan_key"`
	PlanTier            string             `db:"plan_tier" json:"plan_tier"`
	BillingCycle        types.BillingCycle `db:"billing_cycle" json:"billing_cycle"`
	TokensPerCycle      int64              `db:"tokens_per_cycle" json:"tokens_per_cycle"`
	MonthlyRefillTokens *int64             `db:"monthly_refill_tokens" json:"monthly_refill_tokens,omitempty"`
	PriceCents          int64              `db:"price_cents" json:"price_cents"`
}

// TokenPrice is one row of the token_prices catalog table for one-time
// purchases.
type TokenPrice struct {
	PlanKey    string `db:"plan_key" json:"plan_key"`
	Tier       string `db:"tier" json:"tier"`
	Tokens     int64  `db:"tokens" json:"tokens"`
	PriceCents int64  `db:"price_cents" json:"price_cents"`
}

// UnitPricePerThousand returns the price of 1,000 tokens at this rate, as a
// decimal dollar amount, for display on the checkout confirmation.
func (p TokenPrice) UnitPricePerThousand() decimal.Decimal {
	if p.Tokens == 0 {
		return decimal.Zero
	}
	dollars := decimal.NewFromInt(p.PriceCents).Div(decimal.NewFromInt(100))
	perToken := dollars.Div(decimal.NewFromInt(p.Tokens))
	return perToken.Mul(decimal.NewFromInt(1000))
}
