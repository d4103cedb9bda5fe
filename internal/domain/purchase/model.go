package purchase

import (
	"time"

	"github.com/tokenmint/ledger/internal/types"
)

// Purchase is one row per successful one-time payment. Immutable after
// creation (spec.md §3).
type Purchase struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	PlanTier      string    `db:"plan_tier" json:"plan_tier"`
	PGPurchaseID  string    `db:"pg_purchase_id" json:"pg_purchase_id"`
	AmountTokens  int64     `db:"amount_tokens" json:"amount_tokens"`
	DiscountCents int64     `db:"discount_cents" json:"discount_cents"`
	PeriodStart   time.Time `db:"period_start" json:"period_start"`
	PeriodEnd     time.Time `db:"period_end" json:"period_end"`
	types.BaseModel
}

func (p *Purchase) TableName() string { return "purchases" }
