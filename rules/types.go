/*
Package rules manages quota generation rules and quota formulas.

KEY CONCEPTS:
  QuotaFormula:   how much a unit owes (fixed amount, per-unit table or an
                  expression)
  GenerationRule: binds a payment concept to a formula for an effective
                  date range, condominium-wide or for one building

SCOPE PRIORITY:
  When both a building rule and a condominium-wide rule cover a date, the
  building rule applies to that building's units.

    condominium-wide  [2024-01-01, ∞)       formula F1
    building A        [2024-06-01, 2024-12-31] formula F2
    -> unit in A on 2024-07-15 uses F2; unit in B uses F1

OVERLAP:
  Two active rules for the same concept and the same scope may not share a
  day. Scopes are compared exactly: a building rule never conflicts with a
  condominium-wide one or with another building's rule.

RULE-PRICED GENERATION:
  Each active unit is priced by the rule that applies on the period's
  issue date for the unit's building. Units no rule covers get no quota.
  The generation log records every rule and formula used.

SEE ALSO:
  - generic/period.go: Interval.Overlaps
  - quotas/: The charges rules feed into
*/
package rules

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/quota-engine/generic"
	"github.com/warp/quota-engine/quotas"
)

// =============================================================================
// FORMULA
// =============================================================================

type FormulaType string

const (
	FormulaFixed      FormulaType = "fixed"
	FormulaPerUnit    FormulaType = "per_unit"
	FormulaExpression FormulaType = "expression"
)

func (t FormulaType) IsValid() bool {
	switch t {
	case FormulaFixed, FormulaPerUnit, FormulaExpression:
		return true
	}
	return false
}

type QuotaFormula struct {
	ID            string
	CondominiumID string
	Name          string
	Description   string
	FormulaType   FormulaType
	FixedAmount   *decimal.Decimal
	UnitAmounts   map[string]decimal.Decimal
	Expression    string
	IsActive      bool
	CreatedBy     string
	CreatedAt     time.Time
}

// =============================================================================
// GENERATION RULE
// =============================================================================

type GenerationRule struct {
	ID            string
	CondominiumID string
	BuildingID    *string // nil = condominium-wide
	ConceptID     string
	FormulaID     string
	Name          string
	Description   string
	Effective     generic.Interval
	IsActive      bool
	CreatedBy     string
	UpdatedBy     string
	UpdateReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SameScope reports whether two rules target the same building (or are
// both condominium-wide).
func (r GenerationRule) SameScope(other GenerationRule) bool {
	if r.BuildingID == nil || other.BuildingID == nil {
		return r.BuildingID == nil && other.BuildingID == nil
	}
	return *r.BuildingID == *other.BuildingID
}

// IsCondominiumWide reports whether the rule has no building.
func (r GenerationRule) IsCondominiumWide() bool { return r.BuildingID == nil }

// =============================================================================
// STORE
// =============================================================================

// Store is what the rule resolver reads and writes. Getters return
// (nil, nil) for missing rows.
type Store interface {
	quotas.Directory

	// ListUnitsByCondominium is the roster rule-priced generation walks.
	ListUnitsByCondominium(ctx context.Context, condominiumID string) ([]quotas.Unit, error)

	GetFormula(ctx context.Context, id string) (*QuotaFormula, error)
	SaveFormula(ctx context.Context, f QuotaFormula) error

	GetRule(ctx context.Context, id string) (*GenerationRule, error)
	// SaveRule inserts or replaces by ID.
	SaveRule(ctx context.Context, r GenerationRule) error
	// ListRules returns every rule of a condominium, active or not, ordered
	// by effective-from date.
	ListRules(ctx context.Context, condominiumID string) ([]GenerationRule, error)
}
