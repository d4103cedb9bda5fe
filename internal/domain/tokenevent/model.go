package tokenevent

import "time"

// Reason classifies a token event's delta (spec.md §3).
type Reason string

const (
	ReasonPurchase                 Reason = "purchase"
	ReasonSubscriptionInitialCredit Reason = "subscription_initial_credit"
	ReasonSubscriptionRefill       Reason = "subscription_refill"
	ReasonSubscriptionUpgradeCredit Reason = "subscription_upgrade_credit"
	ReasonReferralReward           Reason = "referral_reward"
	ReasonConsumption              Reason = "consumption"
	ReasonExpiry                   Reason = "expiry"
)

// Event is one append-only entry in the token ledger's authoritative audit
// trail. Every balance-affecting operation writes one of these for each
// batch whose balance it changes.
type Event struct {
	ID      string    `db:"id" json:"id"`
	UserID  string    `db:"user_id" json:"user_id"`
	BatchID string    `db:"batch_id" json:"batch_id"`
	Delta   int64     `db:"delta" json:"delta"`
	Reason  Reason    `db:"reason" json:"reason"`
	At      time.Time `db:"at" json:"at"`
}

func (e *Event) TableName() string { return "token_event_log" }
