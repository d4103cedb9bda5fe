package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/tokenmint/ledger/internal/domain/catalog"
	"github.com/tokenmint/ledger/internal/domain/subscription"
	"github.com/tokenmint/ledger/internal/domain/tokenevent"
	"github.com/tokenmint/ledger/internal/domain/user"
	"github.com/tokenmint/ledger/internal/ledger"
	"github.com/tokenmint/ledger/internal/logger"
	"github.com/tokenmint/ledger/internal/testutil"
	"github.com/tokenmint/ledger/internal/types"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) (*Worker, *testutil.FakeSubscriptionRepository, *testutil.FakeUserRepository, *testutil.FakeCatalogRepository, *testutil.FakeTokenEventRepository) {
	t.Helper()
	log, err := logger.NewLogger()
	require.NoError(t, err)

	batches := testutil.NewFakeBatchRepository()
	events := testutil.NewFakeTokenEventRepository()
	l := ledger.New(testutil.FakeIClient{}, batches, events, log)

	subs := testutil.NewFakeSubscriptionRepository()
	users := testutil.NewFakeUserRepository()
	cat := testutil.NewFakeCatalogRepository()

	return New(testutil.FakeIClient{}, l, subs, users, cat, log), subs, users, cat, events
}

func activeSubscription(id, userID string, cycle types.BillingCycle, periodEnd time.Time) *subscription.Subscription {
	return &subscription.Subscription{
		ID:                 id,
		UserID:             userID,
		PlanKey:            "plan_yearly",
		PlanTier:           subscription.PlanTierPremium,
		BillingCycle:       cycle,
		PGSubscriptionID:   "pg_" + id,
		State:              subscription.StateActive,
		IsActive:           true,
		CurrentPeriodStart: periodEnd.AddDate(-1, 0, 0),
		CurrentPeriodEnd:   periodEnd,
		TokensPerCycle:     120000,
	}
}

func TestRun_DeactivatesLapsedSubscriptionAndClearsUserFlag(t *testing.T) {
	w, subs, users, _, _ := newTestWorker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	users.Put(&user.User{ID: "user_1", ExternalID: "ext_1", HasActiveSubscription: true})
	sub := activeSubscription("sub_1", "user_1", types.BillingCycleMonthly, now.Add(-time.Hour))
	subs.Put(sub)

	report := w.Run(ctx, now)
	require.Empty(t, report.Failures)
	require.Equal(t, 1, report.SubscriptionsDeactivated)

	got, err := subs.GetByID(ctx, "sub_1")
	require.NoError(t, err)
	require.Equal(t, subscription.StateEnded, got.State)
	require.False(t, got.IsActive)

	u, err := users.GetByID(ctx, "user_1")
	require.NoError(t, err)
	require.False(t, u.HasActiveSubscription)
}

func TestRun_GrantsMonthlyRefillForYearlyPlanDueThisMonth(t *testing.T) {
	w, subs, _, cat, events := newTestWorker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	cat.PutSubscriptionPrice(&catalog.SubscriptionPrice{
		PlanKey:        "plan_yearly",
		BillingCycle:   types.BillingCycleYearly,
		TokensPerCycle: 1_200_000,
		PriceCents:     99900,
	})

	sub := activeSubscription("sub_1", "user_1", types.BillingCycleYearly, now.AddDate(0, 6, 0))
	subs.Put(sub)

	report := w.Run(ctx, now)
	require.Empty(t, report.Failures)
	require.Equal(t, 1, report.MonthlyRefillsGranted)

	got, err := subs.GetByID(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, got.LastMonthlyRefill)
	require.True(t, types.SameCalendarMonth(*got.LastMonthlyRefill, now))

	var refillEvents int
	for _, e := range events.All() {
		if e.Reason == tokenevent.ReasonSubscriptionRefill {
			refillEvents++
			require.Equal(t, int64(100_000), e.Delta) // 1_200_000 / 12
		}
	}
	require.Equal(t, 1, refillEvents)
}

func TestRun_ReRunningSameMonthIsNoOp(t *testing.T) {
	w, subs, _, cat, events := newTestWorker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	cat.PutSubscriptionPrice(&catalog.SubscriptionPrice{
		PlanKey:        "plan_yearly",
		BillingCycle:   types.BillingCycleYearly,
		TokensPerCycle: 1_200_000,
		PriceCents:     99900,
	})

	sub := activeSubscription("sub_1", "user_1", types.BillingCycleYearly, now.AddDate(0, 6, 0))
	subs.Put(sub)

	first := w.Run(ctx, now)
	require.Equal(t, 1, first.MonthlyRefillsGranted)

	second := w.Run(ctx, now.Add(time.Hour))
	require.Equal(t, 0, second.MonthlyRefillsGranted)
	require.Len(t, events.All(), 1)
}

func TestRun_DailyAndMonthlyPlansNeverGetMonthlyRefill(t *testing.T) {
	w, subs, _, _, events := newTestWorker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	subs.Put(activeSubscription("sub_daily", "user_1", types.BillingCycleDaily, now.AddDate(0, 0, 1)))
	subs.Put(activeSubscription("sub_monthly", "user_2", types.BillingCycleMonthly, now.AddDate(0, 1, 0)))

	report := w.Run(ctx, now)
	require.Equal(t, 0, report.MonthlyRefillsGranted)
	require.Empty(t, events.All())
}
