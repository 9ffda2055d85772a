/*
allocation.go - Rounding allocator

PURPOSE:
  Splits a total amount across an ordered set of keys so that the sum of
  the parts is exactly the total, to the cent.

STRATEGIES:
  AllocateEqual:        total / n for every key
  AllocateProportional: total * weight / sum(weights) for every key
  AllocateFixed:        the same absolute amount for every key, no remainder

PENNY REMAINDER:
  Every key except the last gets its rounded share. The last key in
  iteration order gets total - sum(prior shares), which absorbs whatever
  rounding error accumulated. Callers control which key that is by the
  order they pass keys in.

    AllocateEqual(100, [a, b, c]) -> a=33.33 b=33.33 c=33.34

  With fewer than half a cent per key the last share can go negative
  (0.02 over four keys leaves -0.01). Quota generation rejects any share
  that is not positive.

ZERO WEIGHTS:
  Proportional shares with zero, negative or missing weight are dropped
  before the weight base is computed; they receive nothing and do not
  appear in the result.

SEE ALSO:
  - quotas/resolver.go: Feeds unit rosters into these functions
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// Share is one weighted participant in a proportional allocation.
// A nil Weight means the participant has no weight at all.
type Share struct {
	Key    string
	Weight *decimal.Decimal
}

// HasWeight reports whether the share participates in a proportional split.
func (s Share) HasWeight() bool {
	return s.Weight != nil && s.Weight.IsPositive()
}

// AllocateEqual divides total evenly across keys.
func AllocateEqual(total decimal.Decimal, keys []string) Allocations {
	if len(keys) == 0 {
		return Allocations{}
	}

	perKey := RoundCurrency(total.Div(decimal.NewFromInt(int64(len(keys)))))
	result := make(Allocations, 0, len(keys))
	distributed := decimal.Zero

	for i, key := range keys {
		if i == len(keys)-1 {
			result = append(result, Allocation{Key: key, Amount: RoundCurrency(total.Sub(distributed))})
			break
		}
		result = append(result, Allocation{Key: key, Amount: perKey})
		distributed = distributed.Add(perKey)
	}
	return result
}

// AllocateProportional divides total across shares by weight.
func AllocateProportional(total decimal.Decimal, shares []Share) Allocations {
	weighted := make([]Share, 0, len(shares))
	totalWeight := decimal.Zero
	for _, s := range shares {
		if !s.HasWeight() {
			continue
		}
		weighted = append(weighted, s)
		totalWeight = totalWeight.Add(*s.Weight)
	}
	if len(weighted) == 0 {
		return Allocations{}
	}

	result := make(Allocations, 0, len(weighted))
	distributed := decimal.Zero

	for i, s := range weighted {
		if i == len(weighted)-1 {
			result = append(result, Allocation{Key: s.Key, Amount: RoundCurrency(total.Sub(distributed))})
			break
		}
		amount := RoundCurrency(total.Mul(*s.Weight).Div(totalWeight))
		result = append(result, Allocation{Key: s.Key, Amount: amount})
		distributed = distributed.Add(amount)
	}
	return result
}

// AllocateFixed gives every key the same absolute amount.
func AllocateFixed(amount decimal.Decimal, keys []string) Allocations {
	result := make(Allocations, 0, len(keys))
	for _, key := range keys {
		result = append(result, Allocation{Key: key, Amount: RoundCurrency(amount)})
	}
	return result
}
