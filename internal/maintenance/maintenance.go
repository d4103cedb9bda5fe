// Package maintenance implements C6, the daily maintenance sweep: expire
// stale batches, deactivate lapsed subscriptions, and carry yearly plans'
// monthly refills (spec.md §4.6).
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/tokenmint/ledger/internal/domain/batch"
	"github.com/tokenmint/ledger/internal/domain/catalog"
	"github.com/tokenmint/ledger/internal/domain/subscription"
	"github.com/tokenmint/ledger/internal/domain/tokenevent"
	"github.com/tokenmint/ledger/internal/domain/user"
	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/ledger"
	"github.com/tokenmint/ledger/internal/logger"
	"github.com/tokenmint/ledger/internal/postgres"
	"github.com/tokenmint/ledger/internal/types"
	"github.com/samber/lo"
)

// Report summarizes one pass of the sweep for operators and tests.
type Report struct {
	BatchesExpired           int
	SubscriptionsDeactivated int
	MonthlyRefillsGranted    int
	Failures                 []error
}

// Worker is C6's concrete implementation.
type Worker struct {
	db      postgres.IClient
	ledger  *ledger.Ledger
	subs    subscription.Repository
	users   user.Repository
	catalog catalog.Repository
	logger  *logger.Logger
}

func New(db postgres.IClient, ledger *ledger.Ledger, subs subscription.Repository, users user.Repository, catalog catalog.Repository, logger *logger.Logger) *Worker {
	return &Worker{db: db, ledger: ledger, subs: subs, users: users, catalog: catalog, logger: logger}
}

// Run executes one full pass: expiry sweep first (its own transaction,
// batch-scoped), then lapsed-subscription deactivation and yearly refills,
// each subscription in its own transaction so one failure doesn't abort the
// rest of the pass (spec.md §4.6).
func (w *Worker) Run(ctx context.Context, now time.Time) Report {
	var report Report

	expired, err := w.ledger.ExpireDue(ctx, now)
	if err != nil {
		report.Failures = append(report.Failures, err)
		w.logger.Errorw("expiry sweep failed", "error", err)
	} else {
		report.BatchesExpired = expired
	}

	active, err := w.subs.ListActive(ctx)
	if err != nil {
		report.Failures = append(report.Failures, err)
		w.logger.Errorw("failed to list active subscriptions", "error", err)
		return report
	}

	lapsed, current := lo.FilterReject(active, func(sub *subscription.Subscription, _ int) bool {
		return sub.CurrentPeriodEnd.Before(now)
	})

	for _, sub := range lapsed {
		if err := w.deactivateLapsed(ctx, sub); err != nil {
			report.Failures = append(report.Failures, err)
			w.logger.Errorw("failed to deactivate lapsed subscription", "subscription_id", sub.ID, "error", err)
			continue
		}
		report.SubscriptionsDeactivated++
	}

	dueForRefill := lo.Filter(current, func(sub *subscription.Subscription, _ int) bool {
		if !sub.IsYearly() {
			return false
		}
		return sub.LastMonthlyRefill == nil || !types.SameCalendarMonth(*sub.LastMonthlyRefill, now)
	})

	for _, sub := range dueForRefill {
		if err := w.grantMonthlyRefill(ctx, sub, now); err != nil {
			report.Failures = append(report.Failures, err)
			w.logger.Errorw("failed to grant monthly refill", "subscription_id", sub.ID, "error", err)
			continue
		}
		report.MonthlyRefillsGranted++
	}

	return report
}

func (w *Worker) deactivateLapsed(ctx context.Context, sub *subscription.Subscription) error {
	return w.db.WithTx(ctx, func(ctx context.Context) error {
		if err := w.subs.UpdateState(ctx, sub.ID, subscription.StateEnded, false); err != nil {
			return err
		}
		falseVal := false
		return w.users.UpdateFlags(ctx, sub.UserID, &falseVal, nil)
	})
}

func (w *Worker) grantMonthlyRefill(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
	return w.db.WithTx(ctx, func(ctx context.Context) error {
		price, err := w.catalog.GetSubscriptionPrice(ctx, sub.PlanKey)
		if err != nil {
			return err
		}

		amount := price.TokensPerCycle / 12
		if price.MonthlyRefillTokens != nil {
			amount = *price.MonthlyRefillTokens
		}
		if amount <= 0 {
			return ierr.New(ierr.CodeValidation, "monthly refill amount resolved to zero").Mark(ierr.ErrValidation)
		}

		subID := sub.ID
		// I3 (spec.md §3) wants subscription batches to carry a unique
		// invoice_id; the cron refill has no PG invoice to anchor on, so a
		// deterministic one is stamped here as a second idempotency backstop
		// alongside the same-month LastMonthlyRefill check above.
		invoiceID := fmt.Sprintf("refill:%s:%s", subID, now.Format("2006-01"))
		_, _, err = w.ledger.Grant(ctx, batch.GrantInput{
			UserID:         sub.UserID,
			Source:         batch.OriginSubscription,
			SubscriptionID: &subID,
			InvoiceID:      &invoiceID,
			Amount:         amount,
			ExpiresAt:      now.AddDate(0, 1, 0),
			Note:           "yearly-monthly-refill (cron)",
		}, tokenevent.ReasonSubscriptionRefill)
		if err != nil {
			return err
		}

		return w.subs.StampMonthlyRefill(ctx, sub.ID)
	})
}
