/*
Package quotas turns payment concepts and their scoped assignments into
per-unit, per-period charges (quotas).

KEY CONCEPTS:
  PaymentConcept: a billable definition (maintenance fee, reserve fund...),
                  optionally recurring on a cadence with issue/due days
  Assignment:     a monetary rule attached to a concept at one Scope,
                  with a distribution method
  Scope:          condominium, building or unit; more specific wins
  Quota:          one generated charge for (concept, unit, year, month)

OVERRIDE HIERARCHY:
  Assignments are layered condominium -> building -> unit. A unit covered by
  both a condominium-wide and a building-wide assignment is charged by the
  building one; a unit-specific assignment beats both.

    condominium: 1000 by_aliquot     A1=300 A2=700 B1=...
    building A:  200 equal_split     A1=100 A2=100
    unit A2:     50 fixed_per_unit   A2=50

FLOW:
  Assigner.Assign      validates and stores assignments
  ResolveUnitCharges   pure: assignments + roster -> per-unit base amounts
  Generator.Generate   validates, resolves, writes quotas atomically

SEE ALSO:
  - generic/allocation.go: Rounding allocator used for distribution
  - generic/accrual.go: Elapsed-period accounting
  - rules/: Generation rules and formulas
*/
package quotas

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/quota-engine/generic"
)

// =============================================================================
// DIRECTORY - Condominiums, buildings, units
// =============================================================================

type Condominium struct {
	ID        string
	Name      string
	Code      string
	IsActive  bool
	CreatedAt time.Time
}

type Building struct {
	ID            string
	CondominiumID string
	Name          string
	IsActive      bool
	CreatedAt     time.Time
}

// Unit is one billable unit. A nil AliquotPercentage means the unit has no
// aliquot and never takes part in by_aliquot distribution. AreaM2, Floor
// and ParkingSpaces feed expression formulas.
type Unit struct {
	ID                string
	BuildingID        string
	CondominiumID     string
	UnitNumber        string
	AliquotPercentage *decimal.Decimal
	AreaM2            *decimal.Decimal
	Floor             *int
	ParkingSpaces     int
	IsActive          bool
	CreatedAt         time.Time
}

// =============================================================================
// PAYMENT CONCEPT
// =============================================================================

type ConceptType string

const (
	ConceptMaintenance   ConceptType = "maintenance"
	ConceptExtraordinary ConceptType = "extraordinary"
	ConceptReserveFund   ConceptType = "reserve_fund"
	ConceptFine          ConceptType = "fine"
	ConceptOther         ConceptType = "other"
)

func (t ConceptType) IsValid() bool {
	switch t {
	case ConceptMaintenance, ConceptExtraordinary, ConceptReserveFund, ConceptFine, ConceptOther:
		return true
	}
	return false
}

// Issue/due days used when a concept does not set them.
const (
	DefaultIssueDay = 1
	DefaultDueDay   = 28
)

// PaymentConcept is never hard-deleted; it is deactivated.
type PaymentConcept struct {
	ID            string
	CondominiumID string
	BuildingID    *string // nil = condominium-wide
	Name          string
	Description   string
	ConceptType   ConceptType
	IsRecurring   bool
	Cadence       generic.Cadence
	IssueDay      *int
	DueDay        *int
	IsActive      bool
	CreatedBy     string
	CreatedAt     time.Time
}

// EffectiveIssueDay returns IssueDay or DefaultIssueDay.
func (c PaymentConcept) EffectiveIssueDay() int {
	if c.IssueDay != nil {
		return *c.IssueDay
	}
	return DefaultIssueDay
}

// EffectiveDueDay returns DueDay or DefaultDueDay.
func (c PaymentConcept) EffectiveDueDay() int {
	if c.DueDay != nil {
		return *c.DueDay
	}
	return DefaultDueDay
}

// EffectiveCadence is CadenceNone for non-recurring concepts regardless of
// what Cadence holds.
func (c PaymentConcept) EffectiveCadence() generic.Cadence {
	if !c.IsRecurring {
		return generic.CadenceNone
	}
	return c.Cadence
}

// =============================================================================
// SCOPE - Where an assignment applies
// =============================================================================

// ScopeLevel orders scopes from least to most specific.
type ScopeLevel int

const (
	LevelCondominium ScopeLevel = iota
	LevelBuilding
	LevelUnit
)

func (l ScopeLevel) String() string {
	switch l {
	case LevelCondominium:
		return "condominium"
	case LevelBuilding:
		return "building"
	case LevelUnit:
		return "unit"
	}
	return fmt.Sprintf("ScopeLevel(%d)", int(l))
}

// Scope is one of CondominiumScope, BuildingScope or UnitScope.
type Scope interface {
	Level() ScopeLevel
	// TargetID is the building or unit id; empty for condominium scope.
	TargetID() string
	isScope()
}

type CondominiumScope struct{}

type BuildingScope struct {
	BuildingID string
}

type UnitScope struct {
	UnitID string
}

func (CondominiumScope) Level() ScopeLevel { return LevelCondominium }
func (BuildingScope) Level() ScopeLevel    { return LevelBuilding }
func (UnitScope) Level() ScopeLevel        { return LevelUnit }

func (CondominiumScope) TargetID() string { return "" }
func (s BuildingScope) TargetID() string  { return s.BuildingID }
func (s UnitScope) TargetID() string      { return s.UnitID }

func (CondominiumScope) isScope() {}
func (BuildingScope) isScope()    {}
func (UnitScope) isScope()        {}

// NewScope builds a Scope from its wire form: a type name plus the
// optional building/unit ids.
func NewScope(scopeType string, buildingID, unitID string) (Scope, error) {
	switch scopeType {
	case "condominium":
		return CondominiumScope{}, nil
	case "building":
		if buildingID == "" {
			return nil, generic.BadRequest("Building ID is required when scope is building")
		}
		return BuildingScope{BuildingID: buildingID}, nil
	case "unit":
		if unitID == "" {
			return nil, generic.BadRequest("Unit ID is required when scope is unit")
		}
		return UnitScope{UnitID: unitID}, nil
	}
	return nil, generic.BadRequest(fmt.Sprintf("invalid scope type %q", scopeType))
}

// ScopeColumns flattens a scope into (type, building id, unit id) for
// storage and DTOs.
func ScopeColumns(s Scope) (scopeType string, buildingID, unitID *string) {
	switch v := s.(type) {
	case BuildingScope:
		return LevelBuilding.String(), &v.BuildingID, nil
	case UnitScope:
		return LevelUnit.String(), nil, &v.UnitID
	default:
		return LevelCondominium.String(), nil, nil
	}
}

// SameScope reports whether two scopes are the same level and target.
func SameScope(a, b Scope) bool {
	return a.Level() == b.Level() && a.TargetID() == b.TargetID()
}

// =============================================================================
// ASSIGNMENT
// =============================================================================

type DistributionMethod string

const (
	DistributeByAliquot    DistributionMethod = "by_aliquot"
	DistributeEqualSplit   DistributionMethod = "equal_split"
	DistributeFixedPerUnit DistributionMethod = "fixed_per_unit"
)

func (m DistributionMethod) IsValid() bool {
	switch m {
	case DistributeByAliquot, DistributeEqualSplit, DistributeFixedPerUnit:
		return true
	}
	return false
}

type Assignment struct {
	ID                 string
	ConceptID          string
	CondominiumID      string
	Scope              Scope
	DistributionMethod DistributionMethod
	Amount             decimal.Decimal
	IsActive           bool
	CreatedBy          string
	CreatedAt          time.Time
}

// Validate checks the invariants that do not need the store: positive
// amount, a known method, and fixed_per_unit for unit scope.
func (a Assignment) Validate() error {
	if a.Scope == nil {
		return generic.BadRequest("Assignment scope is required")
	}
	if !a.Amount.IsPositive() {
		return generic.BadRequest("Amount must be greater than 0")
	}
	if !a.DistributionMethod.IsValid() {
		return generic.BadRequest(fmt.Sprintf("invalid distribution method %q", a.DistributionMethod))
	}
	if a.Scope.Level() == LevelUnit && a.DistributionMethod != DistributeFixedPerUnit {
		return generic.BadRequest("Unit-level assignments must use fixed_per_unit distribution")
	}
	return nil
}

// =============================================================================
// QUOTA
// =============================================================================

type QuotaStatus string

const (
	QuotaPending QuotaStatus = "pending"
)

// Quota is one generated charge. Balance starts equal to BaseAmount.
type Quota struct {
	ID                string
	ConceptID         string
	UnitID            string
	PeriodYear        int
	PeriodMonth       int
	PeriodDescription string
	BaseAmount        decimal.Decimal
	Balance           decimal.Decimal
	Status            QuotaStatus
	IssueDate         generic.TimePoint
	DueDate           generic.TimePoint
	CreatedBy         string
	CreatedAt         time.Time
}

// =============================================================================
// GENERATION LOG
// =============================================================================

type GenerationMethod string

const (
	MethodManual    GenerationMethod = "manual"
	MethodScheduled GenerationMethod = "scheduled"
)

// GenerationLog is the audit row of one successful generation run.
type GenerationLog struct {
	ID            string
	ConceptID     string
	PeriodYear    int
	PeriodMonth   int
	QuotasCreated int
	TotalAmount   decimal.Decimal
	UnitsAffected []string
	RuleIDs       []string // rule-priced runs only
	FormulaIDs    []string
	Method        GenerationMethod
	GeneratedBy   string
	GeneratedAt   time.Time
}
