// Package stripe wraps the external payment gateway (PG) collaborator:
// webhook signature verification, typed event parsing, and the small set of
// outbound PG calls the dispatcher's failure-reason escalation chain and
// user-resolution chain need (spec.md §4.5.1, §4.5.2).
package stripe

import (
	"context"

	ierr "github.com/tokenmint/ledger/internal/errors"
	"github.com/tokenmint/ledger/internal/logger"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Client is a thin, dependency-injected wrapper around the Stripe SDK so
// components depend on an interface-shaped collaborator rather than a
// process-wide singleton (spec.md §9's "Global clients" design note).
type Client struct {
	sc            *stripe.Client
	webhookSecret string
	logger        *logger.Logger
}

func NewClient(secretKey, webhookSecret string, logger *logger.Logger) *Client {
	return &Client{
		sc:            stripe.NewClient(secretKey, nil),
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// ParseWebhookEvent verifies the signature against the configured secret and
// returns the parsed event envelope (spec.md §4.5 step 1-2). The raw payload
// must be the exact request body bytes — re-encoding it would break the
// signature.
func (c *Client) ParseWebhookEvent(payload []byte, signature string) (*stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		c.logger.Warnw("webhook signature verification failed", "error", err)
		return nil, ierr.Wrap(err, ierr.CodeBadSignature, "webhook signature verification failed").Mark(ierr.ErrBadSignature)
	}
	return &event, nil
}

// GetInvoiceExpanded re-fetches an invoice with payment_intent and
// latest_charge expanded — step 1 of the failure-reason escalation chain
// (spec.md §4.5.2).
func (c *Client) GetInvoiceExpanded(ctx context.Context, invoiceID string) (*stripe.Invoice, error) {
	params := &stripe.InvoiceRetrieveParams{}
	params.AddExpand("payment_intent")
	params.AddExpand("payment_intent.latest_charge")
	inv, err := c.sc.V1Invoices.Retrieve(ctx, invoiceID, params)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeTransientExternal, "failed to retrieve invoice").Mark(ierr.ErrTransientExternal)
	}
	return inv, nil
}

// GetPaymentIntent fetches a payment intent by id — step 2 of the
// failure-reason escalation chain.
func (c *Client) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*stripe.PaymentIntent, error) {
	pi, err := c.sc.V1PaymentIntents.Retrieve(ctx, paymentIntentID, nil)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeTransientExternal, "failed to retrieve payment intent").Mark(ierr.ErrTransientExternal)
	}
	return pi, nil
}

// SearchPaymentIntentsByInvoice is step 4 of the failure-reason escalation
// chain when the invoice/payment_intent route comes up empty.
func (c *Client) SearchPaymentIntentsByInvoice(ctx context.Context, invoiceID string) ([]*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentSearchParams{
		SearchParams: stripe.SearchParams{
			Query: "metadata['invoice_id']:'" + invoiceID + "'",
		},
	}
	var results []*stripe.PaymentIntent
	iter := c.sc.V1PaymentIntents.Search(ctx, params)
	for pi, err := range iter {
		if err != nil {
			return nil, ierr.Wrap(err, ierr.CodeTransientExternal, "failed to search payment intents").Mark(ierr.ErrTransientExternal)
		}
		results = append(results, pi)
	}
	return results, nil
}

// GetSubscriptionExpanded fetches a subscription with latest_invoice
// expanded — step 5 of the failure-reason escalation chain.
func (c *Client) GetSubscriptionExpanded(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionRetrieveParams{}
	params.AddExpand("latest_invoice")
	sub, err := c.sc.V1Subscriptions.Retrieve(ctx, subscriptionID, params)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeTransientExternal, "failed to retrieve subscription").Mark(ierr.ErrTransientExternal)
	}
	return sub, nil
}

// GetCustomerByID fetches a customer record by id, used to recover the
// email address an event's customer carries before falling back to an
// email lookup in the user-resolution chain (spec.md §4.5.1).
func (c *Client) GetCustomerByID(ctx context.Context, customerID string) (*stripe.Customer, error) {
	cust, err := c.sc.V1Customers.Retrieve(ctx, customerID, nil)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeTransientExternal, "failed to retrieve customer").Mark(ierr.ErrTransientExternal)
	}
	return cust, nil
}

// GetCustomerByEmail lists PG customers by email and returns the first match.
// The dispatcher's user-resolution chain does not call it: its step (c)
// fetches the customer with GetCustomerByID and matches the local user by
// that customer's email.
func (c *Client) GetCustomerByEmail(ctx context.Context, email string) (*stripe.Customer, error) {
	params := &stripe.CustomerListParams{
		Email: stripe.String(email),
	}
	params.Limit = stripe.Int64(1)
	iter := c.sc.V1Customers.List(ctx, params)
	for cust, err := range iter {
		if err != nil {
			return nil, ierr.Wrap(err, ierr.CodeTransientExternal, "failed to look up customer by email").Mark(ierr.ErrTransientExternal)
		}
		return cust, nil
	}
	return nil, ierr.New(ierr.CodeNotFound, "no customer found for email").Mark(ierr.ErrNotFound)
}

// CancelAtPeriodEnd asks the PG to cancel subscriptionID at the current
// period's end — the cancel-subscription endpoint's PG call (spec.md §6).
func (c *Client) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionUpdateParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	_, err := c.sc.V1Subscriptions.Update(ctx, subscriptionID, params)
	if err != nil {
		return ierr.Wrap(err, ierr.CodeTransientExternal, "failed to cancel subscription at period end").Mark(ierr.ErrTransientExternal)
	}
	return nil
}

// CreateCheckoutSession starts a one-time-purchase checkout (the one-time
// purchase endpoint's PG call, spec.md §6).
func (c *Client) CreateCheckoutSession(ctx context.Context, customerID, priceKey string, amountCents int64, successURL, cancelURL string, metadata map[string]string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		Metadata:   metadata,
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency:   stripe.String("usd"),
					UnitAmount: stripe.Int64(amountCents),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(priceKey),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	session, err := c.sc.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, ierr.Wrap(err, ierr.CodeTransientExternal, "failed to create checkout session").Mark(ierr.ErrTransientExternal)
	}
	return session, nil
}
