package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - A calendar day, no time-of-day, no zone
// =============================================================================

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// TimePoint is a calendar day. Billing works on year/month/day components,
// so every TimePoint is normalized to midnight UTC to avoid zone drift.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime drops the clock and zone of t, keeping its calendar day.
func FromTime(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

func Today() TimePoint {
	return FromTime(time.Now())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return FromTime(t), nil
}

// MustParseDate is ParseDate for literals in tests and scenario fixtures.
func MustParseDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

// DateInMonth builds year-month-day, clamping day to the last day of the
// month (day 31 in February is the 28th or 29th).
func DateInMonth(year int, month time.Month, day int) TimePoint {
	if day < 1 {
		day = 1
	}
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	return NewTimePoint(year, month, day)
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// Properties
func (tp TimePoint) Year() int         { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month { return tp.Time.Month() }
func (tp TimePoint) Day() int          { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool      { return tp.Time.IsZero() }

// Period returns the billing period (year, month) this day falls in.
func (tp TimePoint) Period() BillingPeriod {
	return BillingPeriod{Year: tp.Year(), Month: tp.Month()}
}

func (tp TimePoint) String() string {
	return tp.Time.Format(DateLayout)
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1).Day()
}
