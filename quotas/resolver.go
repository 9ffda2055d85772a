package quotas

import (
	"github.com/shopspring/decimal"

	"github.com/warp/quota-engine/generic"
)

// =============================================================================
// OVERRIDE RESOLVER - Assignments + roster -> one base amount per unit
// =============================================================================

// UnitCharge is the resolved base amount of one unit and the assignment
// that produced it.
type UnitCharge struct {
	UnitID             string
	UnitNumber         string
	BuildingID         string
	AliquotPercentage  *decimal.Decimal
	BaseAmount         decimal.Decimal
	SourceAssignmentID string
	SourceRuleID       string // rule-priced charges only
}

// ResolveUnitCharges layers assignments condominium -> building -> unit over
// the roster and returns one charge per unit that ended up with an amount,
// in roster order.
//
// Inactive assignments and inactive units are ignored. A condominium-scope
// assignment distributes over every active unit in the roster; a building
// one over that building's active units; a unit one sets that unit's amount
// directly. Within a level, later assignments replace earlier ones for the
// units they touch.
func ResolveUnitCharges(assignments []Assignment, roster []Unit) []UnitCharge {
	active := make([]Unit, 0, len(roster))
	byID := make(map[string]Unit, len(roster))
	byBuilding := make(map[string][]Unit)
	for _, u := range roster {
		if !u.IsActive {
			continue
		}
		active = append(active, u)
		byID[u.ID] = u
		byBuilding[u.BuildingID] = append(byBuilding[u.BuildingID], u)
	}

	type resolved struct {
		amount decimal.Decimal
		source string
	}
	amounts := make(map[string]resolved, len(active))

	for _, level := range []ScopeLevel{LevelCondominium, LevelBuilding, LevelUnit} {
		for _, a := range assignments {
			if !a.IsActive || a.Scope == nil || a.Scope.Level() != level {
				continue
			}

			var allocs generic.Allocations
			switch scope := a.Scope.(type) {
			case CondominiumScope:
				allocs = distribute(a, active)
			case BuildingScope:
				allocs = distribute(a, byBuilding[scope.BuildingID])
			case UnitScope:
				if _, ok := byID[scope.UnitID]; !ok {
					continue
				}
				allocs = generic.AllocateFixed(a.Amount, []string{scope.UnitID})
			}

			for _, alloc := range allocs {
				amounts[alloc.Key] = resolved{amount: alloc.Amount, source: a.ID}
			}
		}
	}

	charges := make([]UnitCharge, 0, len(amounts))
	for _, u := range active {
		r, ok := amounts[u.ID]
		if !ok {
			continue
		}
		charges = append(charges, UnitCharge{
			UnitID:             u.ID,
			UnitNumber:         u.UnitNumber,
			BuildingID:         u.BuildingID,
			AliquotPercentage:  u.AliquotPercentage,
			BaseAmount:         r.amount,
			SourceAssignmentID: r.source,
		})
	}
	return charges
}

// distribute splits one assignment over a population of units.
func distribute(a Assignment, units []Unit) generic.Allocations {
	switch a.DistributionMethod {
	case DistributeByAliquot:
		shares := make([]generic.Share, len(units))
		for i, u := range units {
			shares[i] = generic.Share{Key: u.ID, Weight: u.AliquotPercentage}
		}
		return generic.AllocateProportional(a.Amount, shares)
	case DistributeEqualSplit:
		return generic.AllocateEqual(a.Amount, unitIDs(units))
	case DistributeFixedPerUnit:
		return generic.AllocateFixed(a.Amount, unitIDs(units))
	}
	return nil
}

func unitIDs(units []Unit) []string {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids
}

// TotalAmount sums the base amounts of charges.
func TotalAmount(charges []UnitCharge) decimal.Decimal {
	total := decimal.Zero
	for _, c := range charges {
		total = total.Add(c.BaseAmount)
	}
	return total
}
