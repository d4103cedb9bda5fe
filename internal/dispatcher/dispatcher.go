// Package dispatcher implements C5, the event dispatcher: verifies and
// parses inbound payment-gateway webhook events, guards them against
// redelivery, and routes each to the ledger operations it drives, all
// inside one transaction per event (spec.md §4.5).
package dispatcher

import (
	"context"
	"time"

	"github.com/tokenmint/ledger/internal/config"
	"github.com/tokenmint/ledger/internal/domain/batch"
	"github.com/tokenmint/ledger/internal/domain/catalog"
	"github.com/tokenmint/ledger/internal/domain/eventlog"
	"github.com/tokenmint/ledger/internal/domain/purchase"
	"github.com/tokenmint/ledger/internal/domain/referral"
	"github.com/tokenmint/ledger/internal/domain/subscription"
	"github.com/tokenmint/ledger/internal/domain/tokenevent"
	"github.com/tokenmint/ledger/internal/domain/user"
	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/integration/stripe"
	"github.com/tokenmint/ledger/internal/ledger"
	"github.com/tokenmint/ledger/internal/logger"
	"github.com/tokenmint/ledger/internal/postgres"
	stripego "github.com/stripe/stripe-go/v82"
)

// Dispatcher is C5's concrete implementation.
type Dispatcher struct {
	db         postgres.IClient
	eventLog   eventlog.Repository
	users      user.Repository
	subs       subscription.Repository
	purchases  purchase.Repository
	referrals  referral.Repository
	catalog    catalog.Repository
	ledger     *ledger.Ledger
	pg         *stripe.Client
	cfg        *config.Configuration
	logger     *logger.Logger
}

func New(
	db postgres.IClient,
	eventLog eventlog.Repository,
	users user.Repository,
	subs subscription.Repository,
	purchases purchase.Repository,
	referrals referral.Repository,
	catalog catalog.Repository,
	ledger *ledger.Ledger,
	pg *stripe.Client,
	cfg *config.Configuration,
	logger *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		db:        db,
		eventLog:  eventLog,
		users:     users,
		subs:      subs,
		purchases: purchases,
		referrals: referrals,
		catalog:   catalog,
		ledger:    ledger,
		pg:        pg,
		cfg:       cfg,
		logger:    logger,
	}
}

// HandleWebhook runs the full pipeline described in spec.md §4.5: verify,
// parse, guard, open a transaction, route, commit. A duplicate event or an
// unresolved user are both treated as success — the caller should respond
// 200 either way.
func (d *Dispatcher) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := d.pg.ParseWebhookEvent(payload, signature)
	if err != nil {
		return err
	}

	inserted, err := d.eventLog.TryInsert(ctx, event.ID, string(event.Type))
	if err != nil {
		return err
	}
	if !inserted {
		d.logger.Infow("skipping duplicate event", "event_id", event.ID, "event_type", event.Type)
		return nil
	}

	err = d.db.WithTx(ctx, func(ctx context.Context) error {
		return d.route(ctx, event)
	})
	if err != nil && ierr.Is(err, ierr.ErrUnresolvedUser) {
		// The event was already recorded as seen above; an unresolved user
		// is an anomaly to log, not a failure to retry.
		return nil
	}
	return err
}

func (d *Dispatcher) route(ctx context.Context, event *stripego.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return d.handleCheckoutSessionCompleted(ctx, event.Data.Raw)
	case "customer.subscription.created":
		return d.handleSubscriptionCreated(ctx, event.Data.Raw)
	case "customer.subscription.updated":
		return d.handleSubscriptionUpdated(ctx, event.Data.Raw)
	case "customer.subscription.deleted":
		return d.handleSubscriptionDeleted(ctx, event.Data.Raw)
	case "invoice.paid", "invoice.payment_succeeded":
		return d.handleInvoicePaid(ctx, event.Data.Raw)
	case "invoice.payment_failed":
		return d.handlePaymentFailedInvoice(ctx, event.Data.Raw)
	case "payment_intent.payment_failed":
		return d.handlePaymentFailedPaymentIntent(ctx, event.Data.Raw)
	case "charge.failed":
		return d.handlePaymentFailedCharge(ctx, event.Data.Raw)
	case "payment_intent.succeeded":
		return d.handlePaymentIntentSucceeded(ctx, event.Data.Raw)
	default:
		d.logger.Debugw("ignoring unhandled event type", "event_type", event.Type)
		return nil
	}
}

func (d *Dispatcher) handleCheckoutSessionCompleted(ctx context.Context, raw []byte) error {
	session, err := stripe.ParseCheckoutSessionCompleted(raw)
	if err != nil {
		return err
	}

	var u *user.User
	if session.UserID != "" {
		u, err = d.users.GetByID(ctx, session.UserID)
		if err != nil {
			return err
		}
	} else {
		u, err = d.resolveUser(ctx, "", session.CustomerID)
		if err != nil {
			return err
		}
	}

	if session.CustomerID != "" {
		if err := d.users.BindPGCustomer(ctx, u.ID, session.CustomerID); err != nil {
			return err
		}
	}

	if session.Mode != "payment" {
		// subscription mode: customer.subscription.created/invoice.paid
		// handle the rest.
		return nil
	}

	price, err := d.catalog.GetTokenPrice(ctx, session.PlanOption)
	if err != nil {
		return err
	}

	p := &purchase.Purchase{
		UserID:        u.ID,
		PlanTier:      price.Tier,
		PGPurchaseID:  session.ID,
		AmountTokens:  price.Tokens,
		DiscountCents: session.AmountDiscount,
		PeriodStart:   time.Now().UTC(),
		PeriodEnd:     time.Now().UTC().AddDate(0, 0, d.cfg.Billing.PurchaseExpiryDays),
	}
	purchaseID, err := d.purchases.Insert(ctx, p)
	if err != nil {
		return err
	}

	invoiceID := session.ID
	expiresAt := time.Now().UTC().AddDate(0, 0, d.cfg.Billing.PurchaseExpiryDays)
	_, _, err = d.ledger.Grant(ctx, batch.GrantInput{
		UserID:     u.ID,
		Source:     batch.OriginPurchase,
		PurchaseID: &purchaseID,
		InvoiceID:  &invoiceID,
		Amount:     price.Tokens,
		ExpiresAt:  expiresAt,
		Note:       "one-time-purchase",
	}, tokenevent.ReasonPurchase)
	if err != nil {
		return err
	}

	return d.applyPendingReferralReward(ctx, u.ID)
}

func (d *Dispatcher) handleSubscriptionCreated(ctx context.Context, raw []byte) error {
	sub, err := stripe.ParseSubscriptionEvent(raw)
	if err != nil {
		return err
	}

	u, err := d.resolveUser(ctx, sub.UserID, sub.CustomerID)
	if err != nil {
		return err
	}

	price, err := d.catalog.GetSubscriptionPrice(ctx, sub.PriceID)
	if err != nil {
		return err
	}

	local := &subscription.Subscription{
		UserID:             u.ID,
		PlanKey:            sub.PriceID,
		PlanTier:           subscription.PlanTier(price.PlanTier),
		BillingCycle:       price.BillingCycle,
		PGSubscriptionID:   sub.ID,
		State:              subscription.StateActive,
		IsActive:           true,
		CurrentPeriodStart: time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		TokensPerCycle:     price.TokensPerCycle,
		PriceCents:         price.PriceCents,
	}

	// Deactivate any other active subscription for this user BEFORE the
	// upsert inserts the new row: the partial unique index on (user_id)
	// WHERE is_active=true would otherwise reject the insert outright if
	// another active subscription still exists for the same user (spec.md
	// §4.4's tie-breaking rule for duplicate subscription.created events).
	if err := d.subs.DeactivateOtherActiveByPGID(ctx, u.ID, sub.ID); err != nil {
		return err
	}
	if _, _, err := d.subs.UpsertByPGID(ctx, local); err != nil {
		return err
	}
	trueVal := true
	falseVal := false
	return d.users.UpdateFlags(ctx, u.ID, &trueVal, &falseVal)
}

func (d *Dispatcher) handleSubscriptionUpdated(ctx context.Context, raw []byte) error {
	sub, err := stripe.ParseSubscriptionEvent(raw)
	if err != nil {
		return err
	}

	localID, err := d.subs.FindLocalIDByPGID(ctx, sub.ID)
	if err != nil {
		return err
	}
	existing, err := d.subs.GetByID(ctx, localID)
	if err != nil {
		return err
	}

	price, err := d.catalog.GetSubscriptionPrice(ctx, sub.PriceID)
	if err != nil {
		return err
	}

	tierChanged := existing.PlanKey != sub.PriceID
	existing.PlanKey = sub.PriceID
	existing.PlanTier = subscription.PlanTier(price.PlanTier)
	existing.BillingCycle = price.BillingCycle
	existing.CurrentPeriodStart = time.Unix(sub.CurrentPeriodStart, 0).UTC()
	existing.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	existing.TokensPerCycle = price.TokensPerCycle
	existing.PriceCents = price.PriceCents

	if _, _, err := d.subs.UpsertByPGID(ctx, existing); err != nil {
		return err
	}

	if !tierChanged {
		return nil
	}

	decision, err := decideCredit(price, existing, subscription.EventTierChanged, time.Now().UTC(), time.Time{}, existing.CurrentPeriodEnd)
	if err != nil {
		return err
	}
	if decision.Skip || decision.Amount <= 0 {
		return nil
	}
	invoiceID := sub.ID + ":tier-change"
	_, _, err = d.ledger.Grant(ctx, batch.GrantInput{
		UserID:         existing.UserID,
		Source:         batch.OriginSubscription,
		SubscriptionID: &localID,
		InvoiceID:      &invoiceID,
		Amount:         decision.Amount,
		ExpiresAt:      decision.ExpiresAt,
		Note:           "tier-change upgrade credit",
	}, tokenevent.ReasonSubscriptionUpgradeCredit)
	return err
}

func (d *Dispatcher) handleSubscriptionDeleted(ctx context.Context, raw []byte) error {
	sub, err := stripe.ParseSubscriptionEvent(raw)
	if err != nil {
		return err
	}

	localID, err := d.subs.FindLocalIDByPGID(ctx, sub.ID)
	if err != nil {
		return err
	}
	existing, err := d.subs.GetByID(ctx, localID)
	if err != nil {
		return err
	}
	if err := d.subs.UpdateState(ctx, localID, subscription.StateEnded, false); err != nil {
		return err
	}
	falseVal := false
	return d.users.UpdateFlags(ctx, existing.UserID, &falseVal, nil)
}

func (d *Dispatcher) handleInvoicePaid(ctx context.Context, raw []byte) error {
	inv, err := stripe.ParseInvoicePaid(raw)
	if err != nil {
		return err
	}
	if inv.Status != "paid" || inv.SubscriptionID == "" {
		return nil
	}

	localID, err := d.subs.FindLocalIDByPGID(ctx, inv.SubscriptionID)
	if err != nil {
		return err
	}
	sub, err := d.subs.GetByID(ctx, localID)
	if err != nil {
		return err
	}

	event, err := billingReasonToEvent(inv.BillingReason)
	if err != nil {
		return err
	}
	transition, err := subscription.Next(sub.State, event)
	if err != nil {
		return err
	}

	price, err := d.catalog.GetSubscriptionPrice(ctx, sub.PlanKey)
	if err != nil {
		return err
	}

	linePeriodEnd := time.Time{}
	if inv.LinePeriodEnd > 0 {
		linePeriodEnd = time.Unix(inv.LinePeriodEnd, 0).UTC()
	}
	decision, err := decideCredit(price, sub, event, time.Now().UTC(), linePeriodEnd, sub.CurrentPeriodEnd)
	if err != nil {
		return err
	}

	if !decision.Skip && decision.Amount > 0 {
		invoiceID := inv.ID
		_, _, err = d.ledger.Grant(ctx, batch.GrantInput{
			UserID:         sub.UserID,
			Source:         batch.OriginSubscription,
			SubscriptionID: &localID,
			InvoiceID:      &invoiceID,
			Amount:         decision.Amount,
			ExpiresAt:      decision.ExpiresAt,
			Note:           "invoice-paid credit",
		}, reasonForBillingEvent(event))
		if err != nil {
			return err
		}
		if sub.IsYearly() {
			if err := d.subs.StampMonthlyRefill(ctx, localID); err != nil {
				return err
			}
		}
	}

	isActive := sub.IsActive
	if transition.SetActiveFlag != nil {
		isActive = *transition.SetActiveFlag
	}
	if err := d.subs.UpdateState(ctx, localID, transition.To, isActive); err != nil {
		return err
	}
	if transition.ClearFailure {
		if err := d.subs.SetPaymentFailureReason(ctx, localID, nil); err != nil {
			return err
		}
	}

	var activeFlag, issueFlag *bool
	if transition.SetActiveFlag != nil {
		activeFlag = transition.SetActiveFlag
	}
	if transition.SetIssueFlag != nil {
		issueFlag = transition.SetIssueFlag
	}
	if activeFlag != nil || issueFlag != nil {
		if err := d.users.UpdateFlags(ctx, sub.UserID, activeFlag, issueFlag); err != nil {
			return err
		}
	}

	if event == subscription.EventInvoicePaidCreate {
		if err := d.applyPendingReferralReward(ctx, sub.UserID); err != nil {
			return err
		}
	}

	return nil
}

func (d *Dispatcher) handlePaymentFailedInvoice(ctx context.Context, raw []byte) error {
	pf, err := stripe.ParsePaymentFailureFromInvoice(raw)
	if err != nil {
		return err
	}
	return d.handlePaymentFailure(ctx, pf)
}

func (d *Dispatcher) handlePaymentFailedPaymentIntent(ctx context.Context, raw []byte) error {
	pf, err := stripe.ParsePaymentFailureFromPaymentIntent(raw)
	if err != nil {
		return err
	}
	return d.handlePaymentFailure(ctx, pf)
}

func (d *Dispatcher) handlePaymentFailedCharge(ctx context.Context, raw []byte) error {
	pf, err := stripe.ParsePaymentFailureFromCharge(raw)
	if err != nil {
		return err
	}
	return d.handlePaymentFailure(ctx, pf)
}

func (d *Dispatcher) handlePaymentFailure(ctx context.Context, pf *stripe.PaymentFailure) error {
	u, err := d.resolveUser(ctx, "", pf.CustomerID)
	if err != nil {
		return err
	}

	reason := d.extractFailureReason(ctx, pf.InvoiceID, pf.PaymentIntentID)

	if pf.SubscriptionID != "" {
		localID, findErr := d.subs.FindLocalIDByPGID(ctx, pf.SubscriptionID)
		if findErr == nil {
			sub, getErr := d.subs.GetByID(ctx, localID)
			if getErr != nil {
				return getErr
			}
			transition, transErr := subscription.Next(sub.State, subscription.EventPaymentFailed)
			if transErr != nil {
				return transErr
			}
			if err := d.subs.UpdateState(ctx, localID, transition.To, sub.IsActive); err != nil {
				return err
			}
			if err := d.subs.SetPaymentFailureReason(ctx, localID, &reason); err != nil {
				return err
			}
		} else if !ierr.Is(findErr, ierr.ErrNotFound) {
			return findErr
		}
	}

	trueVal := true
	return d.users.UpdateFlags(ctx, u.ID, nil, &trueVal)
}

func (d *Dispatcher) handlePaymentIntentSucceeded(ctx context.Context, raw []byte) error {
	pi, err := stripe.ParsePaymentIntentSucceeded(raw)
	if err != nil {
		return err
	}

	var u *user.User
	if pi.UserID != "" {
		u, err = d.users.GetByID(ctx, pi.UserID)
	} else {
		u, err = d.resolveUser(ctx, "", pi.CustomerID)
	}
	if err != nil {
		return err
	}

	if pi.CustomerID != "" {
		if err := d.users.BindPGCustomer(ctx, u.ID, pi.CustomerID); err != nil {
			return err
		}
	}

	price, err := d.catalog.GetTokenPrice(ctx, pi.PlanOption)
	if err != nil {
		return err
	}

	p := &purchase.Purchase{
		UserID:       u.ID,
		PlanTier:     price.Tier,
		PGPurchaseID: pi.ID,
		AmountTokens: price.Tokens,
		PeriodStart:  time.Now().UTC(),
		PeriodEnd:    time.Now().UTC().AddDate(0, 0, d.cfg.Billing.PurchaseExpiryDays),
	}
	purchaseID, err := d.purchases.Insert(ctx, p)
	if err != nil {
		return err
	}

	invoiceID := pi.ID
	_, _, err = d.ledger.Grant(ctx, batch.GrantInput{
		UserID:     u.ID,
		Source:     batch.OriginPurchase,
		PurchaseID: &purchaseID,
		InvoiceID:  &invoiceID,
		Amount:     price.Tokens,
		ExpiresAt:  time.Now().UTC().AddDate(0, 0, d.cfg.Billing.PurchaseExpiryDays),
		Note:       "one-time-purchase",
	}, tokenevent.ReasonPurchase)
	if err != nil {
		return err
	}

	return d.applyPendingReferralReward(ctx, u.ID)
}

// applyPendingReferralReward credits the referrer when the referred user's
// first subscription or purchase clears, if a referral is still pending and
// referrals are enabled. Firing on subscription_create (not a later renewal)
// was the open question in spec.md §9; this is the chosen, documented
// behavior.
func (d *Dispatcher) applyPendingReferralReward(ctx context.Context, referredUserID string) error {
	if d.cfg.Billing.ReferralTokenAmount <= 0 {
		return nil
	}

	ref, err := d.referrals.GetPendingByReferredUserID(ctx, referredUserID)
	if err != nil {
		if ierr.Is(err, ierr.ErrNotFound) {
			return nil
		}
		return err
	}

	rewarded, err := d.referrals.MarkRewarded(ctx, ref.ID)
	if err != nil {
		return err
	}
	if !rewarded {
		return nil
	}

	invoiceID := "referral:" + ref.ID
	_, _, err = d.ledger.Grant(ctx, batch.GrantInput{
		UserID:    ref.ReferrerUserID,
		Source:    batch.OriginReferral,
		InvoiceID: &invoiceID,
		Amount:    d.cfg.Billing.ReferralTokenAmount,
		ExpiresAt: time.Now().UTC().AddDate(0, 0, d.cfg.Billing.PurchaseExpiryDays),
		Note:      "referral-reward",
	}, tokenevent.ReasonReferralReward)
	return err
}

func billingReasonToEvent(reason string) (subscription.Event, error) {
	switch reason {
	case "subscription_create":
		return subscription.EventInvoicePaidCreate, nil
	case "subscription_cycle":
		return subscription.EventInvoicePaidCycle, nil
	case "subscription_update":
		return subscription.EventInvoicePaidUpdate, nil
	default:
		return subscription.EventInvoicePaidCycle, nil
	}
}

func reasonForBillingEvent(event subscription.Event) tokenevent.Reason {
	switch event {
	case subscription.EventInvoicePaidCreate:
		return tokenevent.ReasonSubscriptionInitialCredit
	default:
		return tokenevent.ReasonSubscriptionRefill
	}
}
