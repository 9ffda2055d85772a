package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// BILLING PERIOD - One billing cycle instance (year + month)
// =============================================================================

// BillingPeriod identifies a billing cycle by calendar year and month.
// Quarterly and yearly cadences still bill in the month their anchor
// falls in, so year+month is enough to key every quota.
type BillingPeriod struct {
	Year  int
	Month time.Month
}

// NewBillingPeriod validates the month component.
func NewBillingPeriod(year, month int) (BillingPeriod, error) {
	if month < 1 || month > 12 {
		return BillingPeriod{}, BadRequest(fmt.Sprintf("period month must be between 1 and 12, got %d", month))
	}
	if year < 1 {
		return BillingPeriod{}, BadRequest(fmt.Sprintf("period year must be positive, got %d", year))
	}
	return BillingPeriod{Year: year, Month: time.Month(month)}, nil
}

// AddMonths steps the period forward (or back) with year rollover:
// November + 3 months is February of the next year.
func (p BillingPeriod) AddMonths(n int) BillingPeriod {
	idx := p.Year*12 + int(p.Month-1) + n
	year := idx / 12
	month := idx % 12
	if month < 0 {
		month += 12
		year--
	}
	return BillingPeriod{Year: year, Month: time.Month(month + 1)}
}

// Day returns the given day of the period's month, clamped to the month end.
func (p BillingPeriod) Day(day int) TimePoint {
	return DateInMonth(p.Year, p.Month, day)
}

func (p BillingPeriod) Before(other BillingPeriod) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// Description is the human label stored on quotas ("March 2025").
func (p BillingPeriod) Description() string {
	return fmt.Sprintf("%s %d", p.Month, p.Year)
}

func (p BillingPeriod) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// =============================================================================
// CADENCE - How often a recurring concept bills
// =============================================================================

type Cadence string

const (
	CadenceNone      Cadence = ""
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceYearly    Cadence = "yearly"
)

// ParseCadence accepts the wire names; empty means non-recurring.
func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(s); c {
	case CadenceNone, CadenceMonthly, CadenceQuarterly, CadenceYearly:
		return c, nil
	}
	return CadenceNone, BadRequest(fmt.Sprintf("unknown recurrence period %q", s))
}

// Months is the month increment between two anchors.
func (c Cadence) Months() int {
	switch c {
	case CadenceMonthly:
		return 1
	case CadenceQuarterly:
		return 3
	case CadenceYearly:
		return 12
	default:
		return 0
	}
}

func (c Cadence) IsRecurring() bool { return c.Months() > 0 }

// =============================================================================
// INTERVAL - A date range, possibly open-ended
// =============================================================================

// Interval is the closed range [From, To]. A nil To means the interval
// never ends.
type Interval struct {
	From TimePoint
	To   *TimePoint
}

// OpenInterval starts at from and never ends.
func OpenInterval(from TimePoint) Interval {
	return Interval{From: from}
}

// ClosedInterval covers [from, to].
func ClosedInterval(from, to TimePoint) Interval {
	return Interval{From: from, To: &to}
}

// Validate rejects intervals that end before they start.
func (i Interval) Validate() error {
	if i.To != nil && i.From.After(*i.To) {
		return ErrInvalidPeriod
	}
	return nil
}

// IsOpenEnded reports whether the interval has no end date.
func (i Interval) IsOpenEnded() bool { return i.To == nil }

// Contains reports whether day falls within [From, To].
func (i Interval) Contains(day TimePoint) bool {
	if day.Before(i.From) {
		return false
	}
	return i.To == nil || day.BeforeOrEqual(*i.To)
}

// Overlaps reports whether the two ranges share at least one day.
// A missing end is +infinity, so the one predicate covers bounded,
// half-open and fully open ranges alike.
func (i Interval) Overlaps(other Interval) bool {
	return startsBeforeEnd(i.From, other.To) && startsBeforeEnd(other.From, i.To)
}

func startsBeforeEnd(start TimePoint, end *TimePoint) bool {
	if end == nil {
		return true
	}
	return start.BeforeOrEqual(*end)
}

func (i Interval) String() string {
	if i.To == nil {
		return "[" + i.From.String() + ", ∞)"
	}
	return "[" + i.From.String() + ", " + i.To.String() + "]"
}
