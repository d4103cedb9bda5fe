package dispatcher

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
)

// extractFailureReason traverses the escalation chain in order, stopping at
// the first non-empty result (spec.md §4.5.2). A non-null reason is always
// returned: if every lookup comes up empty, it falls through to a coarse
// diagnosis based on the invoice's collection method and the customer's
// default payment method, and finally to a status dump if even that fails.
func (d *Dispatcher) extractFailureReason(ctx context.Context, invoiceID, paymentIntentID string) string {
	if invoiceID != "" {
		if inv, err := d.pg.GetInvoiceExpanded(ctx, invoiceID); err == nil {
			if reason := reasonFromInvoice(inv); reason != "" {
				return reason
			}
			if paymentIntentID == "" && inv.PaymentIntent != nil {
				paymentIntentID = inv.PaymentIntent.ID
			}
		}
	}

	if paymentIntentID != "" {
		if pi, err := d.pg.GetPaymentIntent(ctx, paymentIntentID); err == nil {
			if reason := reasonFromPaymentIntent(pi); reason != "" {
				return reason
			}
		}
	}

	if invoiceID != "" {
		if pis, err := d.pg.SearchPaymentIntentsByInvoice(ctx, invoiceID); err == nil {
			for _, pi := range pis {
				if reason := reasonFromPaymentIntent(pi); reason != "" {
					return reason
				}
			}
		}
	}

	var subscriptionID string
	if invoiceID != "" {
		if inv, err := d.pg.GetInvoiceExpanded(ctx, invoiceID); err == nil && inv.Parent != nil &&
			inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
			subscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
		}
	}
	if subscriptionID != "" {
		if sub, err := d.pg.GetSubscriptionExpanded(ctx, subscriptionID); err == nil && sub.LatestInvoice != nil {
			if reason := reasonFromInvoice(sub.LatestInvoice); reason != "" {
				return reason
			}
		}
	}

	return d.diagnoseFailure(ctx, invoiceID)
}

func reasonFromInvoice(inv *stripe.Invoice) string {
	if inv == nil || inv.PaymentIntent == nil || inv.PaymentIntent.LastPaymentError == nil {
		return ""
	}
	return string(inv.PaymentIntent.LastPaymentError.Code)
}

func reasonFromPaymentIntent(pi *stripe.PaymentIntent) string {
	if pi == nil || pi.LastPaymentError == nil {
		return ""
	}
	return string(pi.LastPaymentError.Code)
}

// diagnoseFailure is the final fallback when every direct lookup is empty:
// distinguish "never attempted because it's invoiced manually" from "no
// card on file" from a generic status dump (spec.md §4.5.2).
func (d *Dispatcher) diagnoseFailure(ctx context.Context, invoiceID string) string {
	inv, err := d.pg.GetInvoiceExpanded(ctx, invoiceID)
	if err != nil {
		return "unknown: could not retrieve invoice for diagnosis"
	}

	if inv.CollectionMethod == stripe.InvoiceCollectionMethodSendInvoice {
		return "no_automatic_payment"
	}

	if inv.Customer != nil {
		cust, custErr := d.pg.GetCustomerByID(ctx, inv.Customer.ID)
		if custErr == nil && cust.InvoiceSettings != nil && cust.InvoiceSettings.DefaultPaymentMethod == nil && cust.DefaultSource == nil {
			return "no_payment_method_on_file"
		}
	}

	attemptCount := int64(0)
	if inv.AttemptCount > 0 {
		attemptCount = inv.AttemptCount
	}
	if attemptCount == 0 {
		return "no_attempt_yet"
	}

	return fmt.Sprintf("unknown: status=%s, attempt_count=%d, next_attempt=%d", inv.Status, attemptCount, inv.NextPaymentAttempt)
}
