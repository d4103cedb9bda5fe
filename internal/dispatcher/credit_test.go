package dispatcher

import (
	"testing"
	"time"

	"github.com/tokenmint/ledger/internal/domain/catalog"
	"github.com/tokenmint/ledger/internal/domain/subscription"
	"github.com/tokenmint/ledger/internal/types"
	"github.com/stretchr/testify/require"
)

func TestDecideCredit_DailyUsesLinePeriodEndWhenPresent(t *testing.T) {
	now := time.Now().UTC()
	linePeriodEnd := now.AddDate(0, 0, 1)
	price := &catalog.SubscriptionPrice{BillingCycle: types.BillingCycleDaily, TokensPerCycle: 1000}
	sub := &subscription.Subscription{CurrentPeriodEnd: now.AddDate(0, 0, 2)}

	decision, err := decideCredit(price, sub, subscription.EventInvoicePaidCycle, now, linePeriodEnd, sub.CurrentPeriodEnd)
	require.NoError(t, err)
	require.False(t, decision.Skip)
	require.Equal(t, int64(1000), decision.Amount)
	require.True(t, decision.ExpiresAt.Equal(linePeriodEnd))
}

func TestDecideCredit_MonthlyFallsBackToSubPeriodEndThenNextBillingDate(t *testing.T) {
	now := time.Now().UTC()
	price := &catalog.SubscriptionPrice{BillingCycle: types.BillingCycleMonthly, TokensPerCycle: 50000}
	subPeriodEnd := now.AddDate(0, 1, 0)
	sub := &subscription.Subscription{CurrentPeriodEnd: subPeriodEnd}

	decision, err := decideCredit(price, sub, subscription.EventInvoicePaidCreate, now, time.Time{}, subPeriodEnd)
	require.NoError(t, err)
	require.Equal(t, int64(50000), decision.Amount)
	require.True(t, decision.ExpiresAt.Equal(subPeriodEnd))

	decision, err = decideCredit(price, sub, subscription.EventInvoicePaidCreate, now, time.Time{}, time.Time{})
	require.NoError(t, err)
	expected, err := types.NextBillingDate(now, types.BillingCycleMonthly)
	require.NoError(t, err)
	require.True(t, decision.ExpiresAt.Equal(expected))
}

func TestDecideCredit_YearlyRenewalSkipsAndDefersToMonthlyRefillSweep(t *testing.T) {
	now := time.Now().UTC()
	price := &catalog.SubscriptionPrice{BillingCycle: types.BillingCycleYearly, TokensPerCycle: 1_200_000}
	sub := &subscription.Subscription{CurrentPeriodEnd: now.AddDate(1, 0, 0)}

	decision, err := decideCredit(price, sub, subscription.EventInvoicePaidCycle, now, time.Time{}, sub.CurrentPeriodEnd)
	require.NoError(t, err)
	require.True(t, decision.Skip)
	require.Zero(t, decision.Amount)
}

func TestDecideCredit_YearlyCreateGrantsOneMonthUsingMonthlyRefillTokensIfSet(t *testing.T) {
	now := time.Now().UTC()
	monthlyRefill := int64(90000)
	price := &catalog.SubscriptionPrice{
		BillingCycle:        types.BillingCycleYearly,
		TokensPerCycle:      1_200_000,
		MonthlyRefillTokens: &monthlyRefill,
	}
	sub := &subscription.Subscription{CurrentPeriodEnd: now.AddDate(1, 0, 0)}

	decision, err := decideCredit(price, sub, subscription.EventInvoicePaidCreate, now, time.Time{}, sub.CurrentPeriodEnd)
	require.NoError(t, err)
	require.False(t, decision.Skip)
	require.Equal(t, monthlyRefill, decision.Amount)
	require.True(t, decision.ExpiresAt.Equal(now.AddDate(0, 1, 0)))
}

func TestDecideCredit_YearlyCreateFallsBackToTokensPerCycleWhenNoMonthlyOverride(t *testing.T) {
	now := time.Now().UTC()
	price := &catalog.SubscriptionPrice{BillingCycle: types.BillingCycleYearly, TokensPerCycle: 1_200_000}
	sub := &subscription.Subscription{CurrentPeriodEnd: now.AddDate(1, 0, 0)}

	decision, err := decideCredit(price, sub, subscription.EventInvoicePaidUpdate, now, time.Time{}, sub.CurrentPeriodEnd)
	require.NoError(t, err)
	require.Equal(t, int64(1_200_000), decision.Amount)
}

func TestDecideCredit_TierChangedTreatedLikeNonCycleEvent(t *testing.T) {
	now := time.Now().UTC()
	price := &catalog.SubscriptionPrice{BillingCycle: types.BillingCycleMonthly, TokensPerCycle: 20000}
	subPeriodEnd := now.AddDate(0, 1, 0)
	sub := &subscription.Subscription{CurrentPeriodEnd: subPeriodEnd}

	decision, err := decideCredit(price, sub, subscription.EventTierChanged, now, time.Time{}, subPeriodEnd)
	require.NoError(t, err)
	require.False(t, decision.Skip)
	require.Equal(t, int64(20000), decision.Amount)
}
