package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD ACCOUNTING - How many billing periods a concept has accrued
// =============================================================================

// PeriodAmount is one elapsed billing period and what it billed.
type PeriodAmount struct {
	Year   int
	Month  int
	Amount decimal.Decimal
}

// ElapsedResult summarizes the periods elapsed as of a date.
type ElapsedResult struct {
	PeriodsCount      int
	AccumulatedAmount decimal.Decimal
	Periods           []PeriodAmount
}

// FirstAnchor returns the period of the first issue date for a recurring
// concept. A concept created after this month's issue day starts billing
// next month.
func FirstAnchor(created TimePoint, issueDay int) BillingPeriod {
	start := created.Period()
	if created.Day() > issueDay {
		start = start.AddMonths(1)
	}
	return start
}

// ElapsedPeriods enumerates the billing periods whose issue date is on or
// before asOf, starting from the concept's creation.
//
// Non-recurring concepts always count as exactly one period with an empty
// breakdown. Recurring concepts step from FirstAnchor by the cadence's
// month increment; an anchor day past the end of a short month is clamped
// to that month's last day.
func ElapsedPeriods(created TimePoint, issueDay int, cadence Cadence, amount decimal.Decimal, asOf TimePoint) ElapsedResult {
	if !cadence.IsRecurring() {
		return ElapsedResult{
			PeriodsCount:      1,
			AccumulatedAmount: RoundCurrency(amount),
			Periods:           []PeriodAmount{},
		}
	}

	periods := []PeriodAmount{}
	for p := FirstAnchor(created, issueDay); p.Day(issueDay).BeforeOrEqual(asOf); p = p.AddMonths(cadence.Months()) {
		periods = append(periods, PeriodAmount{Year: p.Year, Month: int(p.Month), Amount: amount})
	}

	return ElapsedResult{
		PeriodsCount:      len(periods),
		AccumulatedAmount: RoundCurrency(amount.Mul(decimal.NewFromInt(int64(len(periods))))),
		Periods:           periods,
	}
}

// BillingPeriods returns the elapsed periods oldest first.
func (r ElapsedResult) BillingPeriods() []BillingPeriod {
	out := make([]BillingPeriod, len(r.Periods))
	for i, p := range r.Periods {
		out[i] = BillingPeriod{Year: p.Year, Month: time.Month(p.Month)}
	}
	return out
}
