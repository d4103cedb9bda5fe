package stripe

import (
	"encoding/json"

	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/stripe/stripe-go/v82"
)

// The source threads free-form metadata maps through every event kind
// (spec.md §9's "Dynamic metadata plumbing" design note). Rather than carry
// that shape forward, each event kind the dispatcher routes on gets its own
// typed envelope here: unknown JSON fields are ignored, fields the handler
// actually reads are parsed explicitly and required where noted.

// CheckoutSessionCompleted is the parsed event.data.object for
// checkout.session.completed.
type CheckoutSessionCompleted struct {
	ID                string
	Mode              string // "payment" or "subscription"
	CustomerID        string
	PaymentIntentID   string
	SubscriptionID    string
	UserID            string // metadata.user_id
	PlanOption        string // metadata.plan_option
	AmountDiscount    int64  // total_details.amount_discount, cents
	AmountTotal       int64
}

func ParseCheckoutSessionCompleted(raw json.RawMessage) (*CheckoutSessionCompleted, error) {
	var s stripe.CheckoutSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, ierr.Wrap(err, ierr.CodeValidation, "failed to parse checkout session").Mark(ierr.ErrValidation)
	}
	out := &CheckoutSessionCompleted{
		ID:          s.ID,
		Mode:        string(s.Mode),
		AmountTotal: s.AmountTotal,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	if s.TotalDetails != nil {
		out.AmountDiscount = s.TotalDetails.AmountDiscount
	}
	if s.Metadata != nil {
		out.UserID = s.Metadata["user_id"]
		out.PlanOption = s.Metadata["plan_option"]
	}
	return out, nil
}

// SubscriptionEvent is the shared shape for customer.subscription.created,
// .updated, and .deleted.
type SubscriptionEvent struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceID            string // the single recurring price on the subscription
	UserID             string // metadata.user_id, may be empty
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	CancelAtPeriodEnd  bool
}

func ParseSubscriptionEvent(raw json.RawMessage) (*SubscriptionEvent, error) {
	var s stripe.Subscription
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, ierr.Wrap(err, ierr.CodeValidation, "failed to parse subscription").Mark(ierr.ErrValidation)
	}
	out := &SubscriptionEvent{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Metadata != nil {
		out.UserID = s.Metadata["user_id"]
	}
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.CurrentPeriodStart = item.CurrentPeriodStart
		out.CurrentPeriodEnd = item.CurrentPeriodEnd
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
	}
	return out, nil
}

// InvoicePaid is event.data.object for invoice.paid / invoice.payment_succeeded.
type InvoicePaid struct {
	ID              string
	CustomerID      string
	SubscriptionID  string
	Status          string
	BillingReason   string // "subscription_create" | "subscription_cycle" | "subscription_update"
	PaymentIntentID string
	LinePeriodEnd   int64 // first line item's period.end, 0 if absent
}

func ParseInvoicePaid(raw json.RawMessage) (*InvoicePaid, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, ierr.Wrap(err, ierr.CodeValidation, "failed to parse invoice").Mark(ierr.ErrValidation)
	}
	out := &InvoicePaid{
		ID:            inv.ID,
		Status:        string(inv.Status),
		BillingReason: string(inv.BillingReason),
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
		out.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
	}
	if len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period != nil {
		out.LinePeriodEnd = inv.Lines.Data[0].Period.End
	}
	return out, nil
}

// PaymentFailure is the shared shape for invoice.payment_failed,
// payment_intent.payment_failed, and charge.failed.
type PaymentFailure struct {
	InvoiceID       string
	PaymentIntentID string
	ChargeID        string
	CustomerID      string
	SubscriptionID  string
}

func ParsePaymentFailureFromInvoice(raw json.RawMessage) (*PaymentFailure, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, ierr.Wrap(err, ierr.CodeValidation, "failed to parse invoice").Mark(ierr.ErrValidation)
	}
	out := &PaymentFailure{InvoiceID: inv.ID}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
		out.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
	}
	return out, nil
}

func ParsePaymentFailureFromPaymentIntent(raw json.RawMessage) (*PaymentFailure, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(raw, &pi); err != nil {
		return nil, ierr.Wrap(err, ierr.CodeValidation, "failed to parse payment intent").Mark(ierr.ErrValidation)
	}
	out := &PaymentFailure{PaymentIntentID: pi.ID}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	if pi.Invoice != nil {
		out.InvoiceID = pi.Invoice.ID
	}
	if pi.LatestCharge != nil {
		out.ChargeID = pi.LatestCharge.ID
	}
	return out, nil
}

func ParsePaymentFailureFromCharge(raw json.RawMessage) (*PaymentFailure, error) {
	var ch stripe.Charge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, ierr.Wrap(err, ierr.CodeValidation, "failed to parse charge").Mark(ierr.ErrValidation)
	}
	out := &PaymentFailure{ChargeID: ch.ID}
	if ch.Customer != nil {
		out.CustomerID = ch.Customer.ID
	}
	if ch.Invoice != nil {
		out.InvoiceID = ch.Invoice.ID
	}
	if ch.PaymentIntent != nil {
		out.PaymentIntentID = ch.PaymentIntent.ID
	}
	return out, nil
}

// PaymentIntentSucceeded is event.data.object for a non-Checkout one-time
// payment_intent.succeeded event.
type PaymentIntentSucceeded struct {
	ID         string
	CustomerID string
	UserID     string // metadata.user_id
	PlanOption string // metadata.plan_option
	Amount     int64
}

func ParsePaymentIntentSucceeded(raw json.RawMessage) (*PaymentIntentSucceeded, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(raw, &pi); err != nil {
		return nil, ierr.Wrap(err, ierr.CodeValidation, "failed to parse payment intent").Mark(ierr.ErrValidation)
	}
	out := &PaymentIntentSucceeded{ID: pi.ID, Amount: pi.Amount}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	if pi.Metadata != nil {
		out.UserID = pi.Metadata["user_id"]
		out.PlanOption = pi.Metadata["plan_option"]
	}
	return out, nil
}
