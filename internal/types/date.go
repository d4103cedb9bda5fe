package types

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// BillingCycle is the recurrence of a subscription's billing period.
type BillingCycle string

const (
	BillingCycleDaily   BillingCycle = "daily"
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// BillingCycleValues lists every recognized billing cycle, for validation.
var BillingCycleValues = []BillingCycle{BillingCycleDaily, BillingCycleMonthly, BillingCycleYearly}

// Validate reports whether c is one of the recognized billing cycles.
func (c BillingCycle) Validate() error {
	if !lo.Contains(BillingCycleValues, c) {
		return fmt.Errorf("invalid billing cycle: %s", c)
	}
	return nil
}

// NextBillingDate advances start by one billing cycle.
func NextBillingDate(start time.Time, cycle BillingCycle) (time.Time, error) {
	switch cycle {
	case BillingCycleDaily:
		return start.AddDate(0, 0, 1), nil
	case BillingCycleMonthly:
		return start.AddDate(0, 1, 0), nil
	case BillingCycleYearly:
		return start.AddDate(1, 0, 0), nil
	default:
		return start, fmt.Errorf("invalid billing cycle: %s", cycle)
	}
}

// SameCalendarMonth reports whether a and b fall in the same year and month,
// used by the maintenance worker to decide whether a yearly plan's monthly
// refill is still due for the current month.
func SameCalendarMonth(a, b time.Time) bool {
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return ay == by && am == bm
}
