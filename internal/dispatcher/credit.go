package dispatcher

import (
	"time"

	"github.com/tokenmint/ledger/internal/domain/catalog"
	"github.com/tokenmint/ledger/internal/domain/subscription"
	"github.com/tokenmint/ledger/internal/types"
)

// creditDecision is what the credit policy worked out for one invoice.paid /
// subscription-effecting event: how many tokens to grant and when the
// resulting batch should expire. A zero Amount means "skip" — the yearly
// renewal case, where the maintenance worker carries the remaining refills
// (spec.md §4.5.3).
type creditDecision struct {
	Amount    int64
	ExpiresAt time.Time
	Skip      bool
}

// decideCredit implements spec.md §4.5.3's credit policy. linePeriodEnd and
// subPeriodEnd are the invoice line's period end and the subscription's
// current_period_end respectively; either may be zero if the event didn't
// carry it, in which case the next fallback in the chain is used.
func decideCredit(price *catalog.SubscriptionPrice, sub *subscription.Subscription, event subscription.Event, now, linePeriodEnd, subPeriodEnd time.Time) (creditDecision, error) {
	if price.BillingCycle != types.BillingCycleYearly {
		expiresAt := linePeriodEnd
		if expiresAt.IsZero() {
			expiresAt = subPeriodEnd
		}
		if expiresAt.IsZero() {
			next, err := types.NextBillingDate(now, price.BillingCycle)
			if err != nil {
				return creditDecision{}, err
			}
			expiresAt = next
		}
		return creditDecision{Amount: price.TokensPerCycle, ExpiresAt: expiresAt}, nil
	}

	// Yearly: only subscription_create / subscription_update grant here; the
	// renewal (subscription_cycle) is handled entirely by the maintenance
	// worker's monthly refill sweep.
	if event == subscription.EventInvoicePaidCycle {
		return creditDecision{Skip: true}, nil
	}

	amount := price.TokensPerCycle
	if price.MonthlyRefillTokens != nil {
		amount = *price.MonthlyRefillTokens
	}
	return creditDecision{Amount: amount, ExpiresAt: now.AddDate(0, 1, 0)}, nil
}
