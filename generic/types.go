/*
Package generic provides the core, domain-agnostic billing primitives.

PURPOSE:
  This package contains the pieces of the quota engine that know nothing
  about condominiums, buildings or units: money rounding, calendar dates,
  billing periods, date intervals, period accounting and amount allocation.
  Domain packages (quotas, rules) compose these into charge generation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal.Decimal values rounded to cents
  - Allocation: an amount assigned to a key (usually a unit id)

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64 for money
  2. One rounding mode: half away from zero at 2 places (RoundCurrency)
  3. Purity: every function here takes materialized inputs and returns
     fresh outputs; nothing reads ambient state

USAGE:
  allocs := generic.AllocateEqual(generic.MustParseDecimal("100"), []string{"u1", "u2", "u3"})
  // u1=33.33 u2=33.33 u3=33.34

SEE ALSO:
  - allocation.go: Rounding allocator
  - period.go: Billing periods, cadences, intervals
  - accrual.go: Elapsed-period accounting
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// CurrencyPlaces is the number of decimal places every stored amount carries.
const CurrencyPlaces int32 = 2

// RoundCurrency rounds to cents, half away from zero.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// FormatCurrency renders an amount with exactly two decimals ("12.50").
func FormatCurrency(d decimal.Decimal) string {
	return d.StringFixed(CurrencyPlaces)
}

// MustParseDecimal parses s, returning zero on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseOptionalDecimal parses a nullable decimal column or field.
// Empty input yields nil.
func ParseOptionalDecimal(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// =============================================================================
// ALLOCATION - amount assigned to a key
// =============================================================================

type Allocation struct {
	Key    string
	Amount decimal.Decimal
}

// Allocations is an ordered key -> amount mapping. Order is the order keys
// were supplied to the allocator, so the remainder-bearing key is always the
// last element.
type Allocations []Allocation

// Total sums every allocated amount.
func (a Allocations) Total() decimal.Decimal {
	total := decimal.Zero
	for _, alloc := range a {
		total = total.Add(alloc.Amount)
	}
	return total
}

// Map returns the allocations keyed by Key.
func (a Allocations) Map() map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(a))
	for _, alloc := range a {
		m[alloc.Key] = alloc.Amount
	}
	return m
}

// Keys returns the keys in allocation order.
func (a Allocations) Keys() []string {
	keys := make([]string, len(a))
	for i, alloc := range a {
		keys[i] = alloc.Key
	}
	return keys
}
