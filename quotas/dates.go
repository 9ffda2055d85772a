package quotas

import (
	"github.com/shopspring/decimal"

	"github.com/warp/quota-engine/generic"
)

// ChargeDates computes the issue and due dates of a period's quotas.
//
// The issue date is issueDay of the period's month. The due date is dueDay
// of the same month when dueDay >= issueDay, otherwise of the following
// month (December rolls into January of the next year). Days past the end
// of a month clamp to its last day.
func ChargeDates(period generic.BillingPeriod, issueDay, dueDay int) (issue, due generic.TimePoint) {
	issue = period.Day(issueDay)
	if dueDay >= issueDay {
		return issue, period.Day(dueDay)
	}
	return issue, period.AddMonths(1).Day(dueDay)
}

// UnitElapsed is one unit's accrued periods for a recurring concept.
type UnitElapsed struct {
	UnitCharge
	Elapsed generic.ElapsedResult
}

// ElapsedForConcept runs period accounting for every resolved unit of a
// concept, using each unit's base amount as the per-period amount.
func ElapsedForConcept(concept PaymentConcept, charges []UnitCharge, asOf generic.TimePoint) []UnitElapsed {
	created := generic.FromTime(concept.CreatedAt)
	out := make([]UnitElapsed, len(charges))
	for i, c := range charges {
		out[i] = UnitElapsed{
			UnitCharge: c,
			Elapsed: generic.ElapsedPeriods(
				created, concept.EffectiveIssueDay(), concept.EffectiveCadence(), c.BaseAmount, asOf,
			),
		}
	}
	return out
}

// DuePeriods returns every period whose issue date is on or before asOf,
// oldest first. Non-recurring concepts have none.
func DuePeriods(concept PaymentConcept, asOf generic.TimePoint) []generic.BillingPeriod {
	if !concept.EffectiveCadence().IsRecurring() {
		return nil
	}
	return generic.ElapsedPeriods(
		generic.FromTime(concept.CreatedAt), concept.EffectiveIssueDay(), concept.EffectiveCadence(), decimal.Zero, asOf,
	).BillingPeriods()
}
