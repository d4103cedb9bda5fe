// Package reconcile implements C7: walks local subscriptions and balances
// against the payment gateway and the token journal, producing a structured
// anomaly list. It never auto-heals (spec.md §4.7).
package reconcile

import (
	"context"

	"github.com/tokenmint/ledger/internal/domain/subscription"
	"github.com/tokenmint/ledger/internal/domain/tokenevent"
	"github.com/tokenmint/ledger/internal/domain/user"
	"github.com/tokenmint/ledger/internal/integration/stripe"
	"github.com/tokenmint/ledger/internal/ledger"
	"github.com/tokenmint/ledger/internal/logger"
)

// reconcilePageSize bounds how many users a single RunAllBalanceReconciliation
// pass loads at once.
const reconcilePageSize = 200

// Severity classifies how urgently an anomaly needs operator attention.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Kind names the category of drift detected.
type Kind string

const (
	KindStatusDrift  Kind = "status_drift"
	KindPlanDrift    Kind = "plan_drift"
	KindOrphan       Kind = "orphan"
	KindBalanceDrift Kind = "balance_drift"
)

// Anomaly is one finding from a reconciliation pass.
type Anomaly struct {
	Kind           Kind     `json:"kind"`
	Severity       Severity `json:"severity"`
	SubscriptionID string   `json:"subscription_id,omitempty"`
	UserID         string   `json:"user_id,omitempty"`
	Detail         string   `json:"detail"`
}

// Worker is C7's concrete implementation.
type Worker struct {
	subs       subscription.Repository
	users      user.Repository
	tokenEvent tokenevent.Repository
	ledger     *ledger.Ledger
	pg         *stripe.Client
	logger     *logger.Logger
}

func New(subs subscription.Repository, users user.Repository, tokenEvent tokenevent.Repository, ledger *ledger.Ledger, pg *stripe.Client, logger *logger.Logger) *Worker {
	return &Worker{subs: subs, users: users, tokenEvent: tokenEvent, ledger: ledger, pg: pg, logger: logger}
}

// RunSubscriptionDrift cross-checks every active local subscription against
// the gateway's view: status drift, plan drift, and orphaned rows.
func (w *Worker) RunSubscriptionDrift(ctx context.Context) ([]Anomaly, error) {
	local, err := w.subs.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var anomalies []Anomaly
	for _, sub := range local {
		remote, err := w.pg.GetSubscriptionExpanded(ctx, sub.PGSubscriptionID)
		if err != nil {
			anomalies = append(anomalies, Anomaly{
				Kind:           KindOrphan,
				Severity:       SeverityWarning,
				SubscriptionID: sub.ID,
				UserID:         sub.UserID,
				Detail:         "local subscription not found upstream: " + err.Error(),
			})
			continue
		}

		if sub.IsActive != (string(remote.Status) == "active" || string(remote.Status) == "trialing") {
			anomalies = append(anomalies, Anomaly{
				Kind:           KindStatusDrift,
				Severity:       SeverityWarning,
				SubscriptionID: sub.ID,
				UserID:         sub.UserID,
				Detail:         "local is_active=" + boolStr(sub.IsActive) + " vs gateway status=" + string(remote.Status),
			})
		}

		remotePriceID := ""
		if len(remote.Items.Data) > 0 && remote.Items.Data[0].Price != nil {
			remotePriceID = remote.Items.Data[0].Price.ID
		}
		if remotePriceID != "" && sub.PlanKey != remotePriceID {
			anomalies = append(anomalies, Anomaly{
				Kind:           KindPlanDrift,
				Severity:       SeverityWarning,
				SubscriptionID: sub.ID,
				UserID:         sub.UserID,
				Detail:         "local plan_key=" + sub.PlanKey + " vs gateway price=" + remotePriceID,
			})
		}
	}

	return anomalies, nil
}

// RunBalanceReconciliation compares the journal's running sum of deltas for
// userID against what it is expected to equal, a critical anomaly if they
// diverge (spec.md §4.7, §8's running-sum invariant).
func (w *Worker) RunBalanceReconciliation(ctx context.Context, userID string, expectedSum int64) (*Anomaly, error) {
	sum, err := w.tokenEvent.SumForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sum == expectedSum {
		return nil, nil
	}
	return &Anomaly{
		Kind:     KindBalanceDrift,
		Severity: SeverityCritical,
		UserID:   userID,
		Detail:   "journal sum does not match expected balance",
	}, nil
}

// RunAllBalanceReconciliation walks every user and flags any whose journal
// sum has drifted from their current ledger balance (spec.md §4.7's
// optional balance reconciliation, grounded in §8's running-sum invariant:
// a user's balance always equals the running sum of their journal deltas).
func (w *Worker) RunAllBalanceReconciliation(ctx context.Context) ([]Anomaly, error) {
	var anomalies []Anomaly
	offset := 0
	for {
		page, err := w.users.ListPage(ctx, reconcilePageSize, offset)
		if err != nil {
			return anomalies, err
		}
		if len(page) == 0 {
			break
		}

		for _, u := range page {
			expected, err := w.ledger.Balance(ctx, u.ID)
			if err != nil {
				w.logger.Errorw("failed to compute balance for reconciliation", "user_id", u.ID, "error", err)
				continue
			}
			anomaly, err := w.RunBalanceReconciliation(ctx, u.ID, expected)
			if err != nil {
				w.logger.Errorw("failed to reconcile balance", "user_id", u.ID, "error", err)
				continue
			}
			if anomaly != nil {
				anomalies = append(anomalies, *anomaly)
			}
		}

		if len(page) < reconcilePageSize {
			break
		}
		offset += reconcilePageSize
	}
	return anomalies, nil
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
