package subscription

import (
	"time"

	"github.com/tokenmint/ledger/internal/types"
)

// PlanTier is the commercial tier a subscription is on.
type PlanTier string

const (
	PlanTierBasic    PlanTier = "basic"
	PlanTierStandard PlanTier = "standard"
	PlanTierPremium  PlanTier = "premium"
	PlanTierUltra    PlanTier = "ultra"
	PlanTierDaily    PlanTier = "daily"
)

// State is the subscription lifecycle state (spec.md §4.4). Handlers consult
// this explicit enum and its transition function rather than editing fields
// ad hoc, so the "payment_failed never revokes access" invariant can't be
// regressed by a one-off field edit.
type State string

const (
	StateAbsent                State = "absent"
	StateActive                State = "active"
	StatePaymentIssue          State = "payment_issue"
	StateCancelledPendingEnd   State = "cancelled_pending_end"
	StateEnded                 State = "ended"
)

// Subscription is the per-user subscription record.
type Subscription struct {
	ID                  string             `db:"id" json:"id"`
	UserID              string             `db:"user_id" json:"user_id"`
	PlanKey             string             `db:"plan_key" json:"plan_key"`
	PlanTier            PlanTier           `db:"plan_tier" json:"plan_tier"`
	BillingCycle        types.BillingCycle `db:"billing_cycle" json:"billing_cycle"`
	PGSubscriptionID    string             `db:"pg_subscription_id" json:"pg_subscription_id"`
	State               State              `db:"state" json:"state"`
	IsActive            bool               `db:"is_active" json:"is_active"`
	CurrentPeriodStart  time.Time          `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd    time.Time          `db:"current_period_end" json:"current_period_end"`
	TokensPerCycle      int64              `db:"tokens_per_cycle" json:"tokens_per_cycle"`
	PriceCents          int64              `db:"price_cents" json:"price_cents"`
	LastMonthlyRefill   *time.Time         `db:"last_monthly_refill" json:"last_monthly_refill,omitempty"`
	PaymentFailureReason *string           `db:"payment_failure_reason" json:"payment_failure_reason,omitempty"`
	types.BaseModel
}

func (s *Subscription) TableName() string { return "subscriptions" }

// IsYearly reports whether this subscription bills annually, which changes
// the credit policy (spec.md §4.5.3): yearly plans get monthly refills from
// the maintenance worker instead of a grant on every invoice.paid.
func (s *Subscription) IsYearly() bool {
	return s.BillingCycle == types.BillingCycleYearly
}
