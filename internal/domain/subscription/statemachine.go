package subscription

import "fmt"

// Event is a normalized driver of a state transition, decoupled from the
// payment gateway's literal event type strings so the transition table can
// be unit tested without constructing gateway payloads.
type Event string

const (
	EventCreated           Event = "created"
	EventInvoicePaidCreate Event = "invoice_paid_subscription_create"
	EventInvoicePaidCycle  Event = "invoice_paid_subscription_cycle"
	EventInvoicePaidUpdate Event = "invoice_paid_subscription_update"
	EventTierChanged       Event = "tier_changed"
	EventPaymentFailed     Event = "payment_failed"
	EventUserCancel        Event = "user_cancel"
	EventDeleted           Event = "deleted"
)

// Transition is the effect a (state, event) pair produces, matching
// spec.md §4.4's table exactly.
type Transition struct {
	To            State
	GrantCredit   bool
	ClearFailure  bool
	SetActiveFlag *bool
	SetIssueFlag  *bool
}

func boolPtr(b bool) *bool { return &b }

// Next computes the transition for (from, event). It never revokes
// has_active_subscription on a payment failure — that invariant (spec.md §9)
// is encoded directly in the table below, not left to caller discipline.
func Next(from State, event Event) (Transition, error) {
	switch from {
	case StateAbsent:
		if event == EventCreated {
			return Transition{To: StateActive, SetActiveFlag: boolPtr(true)}, nil
		}

	case StateActive:
		switch event {
		case EventInvoicePaidCreate, EventInvoicePaidUpdate:
			return Transition{To: StateActive, GrantCredit: true, ClearFailure: true}, nil
		case EventInvoicePaidCycle:
			return Transition{To: StateActive, GrantCredit: true, ClearFailure: true}, nil
		case EventTierChanged:
			return Transition{To: StateActive, GrantCredit: true}, nil
		case EventPaymentFailed:
			return Transition{To: StatePaymentIssue, SetIssueFlag: boolPtr(true)}, nil
		case EventUserCancel:
			return Transition{To: StateCancelledPendingEnd}, nil
		case EventDeleted:
			return Transition{To: StateEnded, SetActiveFlag: boolPtr(false)}, nil
		}

	case StatePaymentIssue:
		switch event {
		case EventInvoicePaidCreate, EventInvoicePaidCycle, EventInvoicePaidUpdate:
			return Transition{To: StateActive, GrantCredit: true, ClearFailure: true, SetIssueFlag: boolPtr(false)}, nil
		case EventUserCancel:
			return Transition{To: StateCancelledPendingEnd}, nil
		case EventDeleted:
			return Transition{To: StateEnded, SetActiveFlag: boolPtr(false)}, nil
		}

	case StateCancelledPendingEnd:
		if event == EventDeleted {
			return Transition{To: StateEnded, SetActiveFlag: boolPtr(false)}, nil
		}

	case StateEnded:
		// terminal; no transitions out
	}

	return Transition{}, fmt.Errorf("no transition defined for state=%s event=%s", from, event)
}
