package subscription

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNext_TableDriven(t *testing.T) {
	boolp := func(b bool) *bool { return &b }

	tests := []struct {
		name  string
		from  State
		event Event
		want  Transition
	}{
		{"absent+created activates", StateAbsent, EventCreated, Transition{To: StateActive, SetActiveFlag: boolp(true)}},
		{"active+invoice_paid_create grants and clears failure", StateActive, EventInvoicePaidCreate, Transition{To: StateActive, GrantCredit: true, ClearFailure: true}},
		{"active+invoice_paid_cycle grants and clears failure", StateActive, EventInvoicePaidCycle, Transition{To: StateActive, GrantCredit: true, ClearFailure: true}},
		{"active+invoice_paid_update grants and clears failure", StateActive, EventInvoicePaidUpdate, Transition{To: StateActive, GrantCredit: true, ClearFailure: true}},
		{"active+tier_changed grants without clearing failure", StateActive, EventTierChanged, Transition{To: StateActive, GrantCredit: true}},
		{"active+payment_failed moves to payment_issue, never revokes access", StateActive, EventPaymentFailed, Transition{To: StatePaymentIssue, SetIssueFlag: boolp(true)}},
		{"active+user_cancel moves to cancelled_pending_end", StateActive, EventUserCancel, Transition{To: StateCancelledPendingEnd}},
		{"active+deleted ends and revokes access", StateActive, EventDeleted, Transition{To: StateEnded, SetActiveFlag: boolp(false)}},
		{"payment_issue+invoice_paid_create recovers", StatePaymentIssue, EventInvoicePaidCreate, Transition{To: StateActive, GrantCredit: true, ClearFailure: true, SetIssueFlag: boolp(false)}},
		{"payment_issue+invoice_paid_cycle recovers", StatePaymentIssue, EventInvoicePaidCycle, Transition{To: StateActive, GrantCredit: true, ClearFailure: true, SetIssueFlag: boolp(false)}},
		{"payment_issue+invoice_paid_update recovers", StatePaymentIssue, EventInvoicePaidUpdate, Transition{To: StateActive, GrantCredit: true, ClearFailure: true, SetIssueFlag: boolp(false)}},
		{"payment_issue+user_cancel moves to cancelled_pending_end", StatePaymentIssue, EventUserCancel, Transition{To: StateCancelledPendingEnd}},
		{"payment_issue+deleted ends and revokes access", StatePaymentIssue, EventDeleted, Transition{To: StateEnded, SetActiveFlag: boolp(false)}},
		{"cancelled_pending_end+deleted ends and revokes access", StateCancelledPendingEnd, EventDeleted, Transition{To: StateEnded, SetActiveFlag: boolp(false)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.from, tt.event)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNext_UndefinedTransitionsError(t *testing.T) {
	tests := []struct {
		name  string
		from  State
		event Event
	}{
		{"absent+invoice_paid_create is undefined", StateAbsent, EventInvoicePaidCreate},
		{"cancelled_pending_end+invoice_paid_cycle is undefined", StateCancelledPendingEnd, EventInvoicePaidCycle},
		{"cancelled_pending_end+user_cancel is undefined", StateCancelledPendingEnd, EventUserCancel},
		{"ended is terminal", StateEnded, EventCreated},
		{"ended+deleted is still terminal", StateEnded, EventDeleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Next(tt.from, tt.event)
			require.Error(t, err)
		})
	}
}

// TestNext_PaymentFailedNeverRevokesAccess is the explicit regression guard
// for spec.md §9's invariant: a payment_failed event must never set
// SetActiveFlag=false from any state it fires from.
func TestNext_PaymentFailedNeverRevokesAccess(t *testing.T) {
	for _, from := range []State{StateActive, StatePaymentIssue} {
		transition, err := Next(from, EventPaymentFailed)
		if err != nil {
			continue
		}
		if transition.SetActiveFlag != nil {
			require.True(t, *transition.SetActiveFlag, "payment_failed from %s must not revoke active flag", from)
		}
	}
}
