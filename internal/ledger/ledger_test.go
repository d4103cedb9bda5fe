package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/tokenmint/ledger/internal/domain/batch"
	"github.com/tokenmint/ledger/internal/domain/tokenevent"
	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/logger"
	"github.com/tokenmint/ledger/internal/testutil"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *testutil.FakeBatchRepository, *testutil.FakeTokenEventRepository) {
	t.Helper()
	log, err := logger.NewLogger()
	require.NoError(t, err)
	batches := testutil.NewFakeBatchRepository()
	events := testutil.NewFakeTokenEventRepository()
	return New(testutil.FakeIClient{}, batches, events, log), batches, events
}

func TestGrant_WritesBatchAndOpeningEvent(t *testing.T) {
	l, batches, events := newTestLedger(t)
	ctx := context.Background()

	subID := "sub_1"
	id, alreadyCredited, err := l.Grant(ctx, batch.GrantInput{
		UserID:         "user_1",
		Source:         batch.OriginSubscription,
		SubscriptionID: &subID,
		Amount:         1000,
		ExpiresAt:      time.Now().UTC().AddDate(0, 1, 0),
		Note:           "test",
	}, tokenevent.ReasonSubscriptionInitialCredit)
	require.NoError(t, err)
	require.False(t, alreadyCredited)
	require.NotEmpty(t, id)

	b, err := batches.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(1000), b.Amount)

	evts := events.All()
	require.Len(t, evts, 1)
	require.Equal(t, int64(1000), evts[0].Delta)
	require.Equal(t, tokenevent.ReasonSubscriptionInitialCredit, evts[0].Reason)
}

func TestGrant_DuplicateInvoiceIsAlreadyCreditedNotError(t *testing.T) {
	l, _, events := newTestLedger(t)
	ctx := context.Background()

	invoiceID := "in_123"
	firstID, alreadyCredited, err := l.Grant(ctx, batch.GrantInput{
		UserID:    "user_1",
		Source:    batch.OriginPurchase,
		InvoiceID: &invoiceID,
		Amount:    500,
		ExpiresAt: time.Now().UTC().AddDate(0, 0, 60),
	}, tokenevent.ReasonPurchase)
	require.NoError(t, err)
	require.False(t, alreadyCredited)

	secondID, alreadyCredited, err := l.Grant(ctx, batch.GrantInput{
		UserID:    "user_1",
		Source:    batch.OriginPurchase,
		InvoiceID: &invoiceID,
		Amount:    500,
		ExpiresAt: time.Now().UTC().AddDate(0, 0, 60),
	}, tokenevent.ReasonPurchase)
	require.NoError(t, err)
	require.True(t, alreadyCredited)
	require.Equal(t, firstID, secondID)

	// No second journal entry was written for the replayed invoice.
	require.Len(t, events.All(), 1)
}

func TestConsume_FIFOByExpiryAcrossOrigins(t *testing.T) {
	l, _, events := newTestLedger(t)
	ctx := context.Background()
	userID := "user_1"
	now := time.Now().UTC()

	subID := "sub_1"
	purchaseID := "purch_1"

	// Purchase batch expires sooner than the subscription batch, so it must
	// be drained first even though it was granted second.
	_, _, err := l.Grant(ctx, batch.GrantInput{
		UserID: userID, Source: batch.OriginSubscription, SubscriptionID: &subID,
		Amount: 1000, ExpiresAt: now.Add(48 * time.Hour),
	}, tokenevent.ReasonSubscriptionInitialCredit)
	require.NoError(t, err)

	_, _, err = l.Grant(ctx, batch.GrantInput{
		UserID: userID, Source: batch.OriginPurchase, PurchaseID: &purchaseID,
		Amount: 300, ExpiresAt: now.Add(24 * time.Hour),
	}, tokenevent.ReasonPurchase)
	require.NoError(t, err)

	consumed, err := l.Consume(ctx, userID, 400, tokenevent.ReasonConsumption, ConsumeAllOrNothing)
	require.NoError(t, err)
	require.Equal(t, int64(400), consumed)

	balance, err := l.Balance(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(900), balance)

	// The purchase batch (earlier expiry) should be fully drained before the
	// subscription batch is touched at all.
	var purchaseDelta, subscriptionDelta int64
	for _, e := range events.All() {
		if e.Reason != tokenevent.ReasonConsumption {
			continue
		}
		switch {
		case e.Delta == -300:
			purchaseDelta += e.Delta
		default:
			subscriptionDelta += e.Delta
		}
	}
	require.Equal(t, int64(-300), purchaseDelta)
	require.Equal(t, int64(-100), subscriptionDelta)
}

func TestConsume_AllOrNothingRollsBackOnInsufficientBalance(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	userID := "user_1"
	now := time.Now().UTC()

	subID := "sub_1"
	_, _, err := l.Grant(ctx, batch.GrantInput{
		UserID: userID, Source: batch.OriginSubscription, SubscriptionID: &subID,
		Amount: 100, ExpiresAt: now.Add(24 * time.Hour),
	}, tokenevent.ReasonSubscriptionInitialCredit)
	require.NoError(t, err)

	consumed, err := l.Consume(ctx, userID, 500, tokenevent.ReasonConsumption, ConsumeAllOrNothing)
	require.Error(t, err)
	require.True(t, ierr.Is(err, ierr.ErrInsufficientTokens))
	require.Equal(t, int64(0), consumed)

	var rich *ierr.Error
	require.True(t, ierr.As(err, &rich))
	requested, available := rich.Details()
	require.Equal(t, int64(500), requested)
	require.Equal(t, int64(100), available)
}

func TestConsume_BestEffortReturnsPartialFill(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	userID := "user_1"
	now := time.Now().UTC()

	subID := "sub_1"
	_, _, err := l.Grant(ctx, batch.GrantInput{
		UserID: userID, Source: batch.OriginSubscription, SubscriptionID: &subID,
		Amount: 100, ExpiresAt: now.Add(24 * time.Hour),
	}, tokenevent.ReasonSubscriptionInitialCredit)
	require.NoError(t, err)

	consumed, err := l.Consume(ctx, userID, 500, tokenevent.ReasonConsumption, ConsumeBestEffort)
	require.NoError(t, err)
	require.Equal(t, int64(100), consumed)

	balance, err := l.Balance(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(0), balance)
}

func TestExpireDue_WritesExpiryEventForRemainingBalance(t *testing.T) {
	l, batches, events := newTestLedger(t)
	ctx := context.Background()
	userID := "user_1"
	now := time.Now().UTC()

	subID := "sub_1"
	id, _, err := l.Grant(ctx, batch.GrantInput{
		UserID: userID, Source: batch.OriginSubscription, SubscriptionID: &subID,
		Amount: 1000, ExpiresAt: now.Add(-time.Hour), // already expired
	}, tokenevent.ReasonSubscriptionInitialCredit)
	require.NoError(t, err)

	expiredCount, err := l.ExpireDue(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, expiredCount)

	b, err := batches.GetByID(ctx, id)
	require.NoError(t, err)
	require.False(t, b.IsActive)

	var expiryDelta int64
	for _, e := range events.All() {
		if e.Reason == tokenevent.ReasonExpiry {
			expiryDelta = e.Delta
		}
	}
	require.Equal(t, int64(-1000), expiryDelta)

	balance, err := l.Balance(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(0), balance)
}

func TestExpireDue_SkipsEventWhenBatchAlreadyFullyConsumed(t *testing.T) {
	l, _, events := newTestLedger(t)
	ctx := context.Background()
	userID := "user_1"
	now := time.Now().UTC()

	subID := "sub_1"
	_, _, err := l.Grant(ctx, batch.GrantInput{
		UserID: userID, Source: batch.OriginSubscription, SubscriptionID: &subID,
		Amount: 100, ExpiresAt: now.Add(time.Hour),
	}, tokenevent.ReasonSubscriptionInitialCredit)
	require.NoError(t, err)

	consumed, err := l.Consume(ctx, userID, 100, tokenevent.ReasonConsumption, ConsumeAllOrNothing)
	require.NoError(t, err)
	require.Equal(t, int64(100), consumed)

	// The batch is now fully consumed but not yet expired; sweeping with a
	// later now is what actually exercises "expired batch, zero remaining
	// balance, no expiry event needed".
	_, err = l.ExpireDue(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)

	for _, e := range events.All() {
		require.NotEqual(t, tokenevent.ReasonExpiry, e.Reason)
	}
}
