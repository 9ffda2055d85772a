/*
Package factory provides JSON to Go payment concept conversion.

PURPOSE:
  Converts JSON concept definitions into quotas.PaymentConcept plus the
  assignments that price it. Administrators describe a fee once (what it
  is, how often it bills, who pays how much) and the factory produces
  validated engine types.

JSON SCHEMA:
  {
    "id": "maint-2025",
    "condominium_id": "condo-1",
    "name": "Monthly maintenance",
    "concept_type": "maintenance",
    "is_recurring": true,
    "recurrence_period": "monthly",
    "issue_day": 1,
    "due_day": 10,
    "assignments": [
      {"scope_type": "condominium", "distribution_method": "by_aliquot", "amount": "1500.00"},
      {"scope_type": "building", "building_id": "tower-b", "distribution_method": "equal_split", "amount": "600"},
      {"scope_type": "unit", "unit_id": "b-101", "distribution_method": "fixed_per_unit", "amount": 75}
    ]
  }

VALIDATION:
  - name and condominium_id are required
  - recurring concepts need a recurrence period and both issue and due day
  - issue/due days are 1..31 (they clamp to the month end when generating)
  - each assignment obeys the scope/method invariants of quotas.Assignment
  - a definition may not carry two assignments for the same scope

  Checks that need the store (does the building exist, does the unit
  belong to the condominium) are left to quotas.Assigner.

USAGE:
  f := factory.NewConceptFactory()
  concept, assignments, err := f.ParseConcept(jsonString)

  // Persist with the assigner so store-side checks run too
  store.SaveConcept(ctx, *concept)
  for _, in := range assignments {
      assigner.Assign(ctx, in)
  }

SEE ALSO:
  - quotas/types.go: PaymentConcept, Assignment, Scope
  - quotas/assign.go: Store-side assignment validation
  - api/scenarios.go: Demo concepts defined in JSON
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/quota-engine/generic"
	"github.com/warp/quota-engine/quotas"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ConceptJSON is the JSON representation of a payment concept.
type ConceptJSON struct {
	ID               string           `json:"id,omitempty"`
	CondominiumID    string           `json:"condominium_id"`
	BuildingID       *string          `json:"building_id,omitempty"`
	Name             string           `json:"name"`
	Description      string           `json:"description,omitempty"`
	ConceptType      string           `json:"concept_type,omitempty"`
	IsRecurring      bool             `json:"is_recurring"`
	RecurrencePeriod string           `json:"recurrence_period,omitempty"` // monthly, quarterly, yearly
	IssueDay         *int             `json:"issue_day,omitempty"`
	DueDay           *int             `json:"due_day,omitempty"`
	IsActive         *bool            `json:"is_active,omitempty"` // default true
	CreatedBy        string           `json:"created_by,omitempty"`
	Assignments      []AssignmentJSON `json:"assignments,omitempty"`
}

// AssignmentJSON represents one scoped amount.
type AssignmentJSON struct {
	ID                 string          `json:"id,omitempty"`
	ScopeType          string          `json:"scope_type"` // condominium, building, unit
	BuildingID         string          `json:"building_id,omitempty"`
	UnitID             string          `json:"unit_id,omitempty"`
	DistributionMethod string          `json:"distribution_method"`
	Amount             decimal.Decimal `json:"amount"`
	IsActive           *bool           `json:"is_active,omitempty"`
}

// =============================================================================
// CONCEPT FACTORY
// =============================================================================

// ConceptFactory converts JSON concept definitions to engine types.
type ConceptFactory struct {
	now func() time.Time
}

// NewConceptFactory creates a new concept factory.
func NewConceptFactory() *ConceptFactory {
	return &ConceptFactory{now: time.Now}
}

// ParseConcept parses a JSON string into a PaymentConcept and the inputs
// for its assignments.
func (f *ConceptFactory) ParseConcept(jsonStr string) (*quotas.PaymentConcept, []quotas.AssignInput, error) {
	var cj ConceptJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, nil, generic.BadRequest(fmt.Sprintf("failed to parse concept JSON: %v", err))
	}
	return f.FromJSON(cj)
}

// FromJSON converts ConceptJSON to a PaymentConcept and AssignInputs.
// A missing id is generated.
func (f *ConceptFactory) FromJSON(cj ConceptJSON) (*quotas.PaymentConcept, []quotas.AssignInput, error) {
	if strings.TrimSpace(cj.Name) == "" {
		return nil, nil, generic.BadRequest("Concept name is required")
	}
	if cj.CondominiumID == "" {
		return nil, nil, generic.BadRequest("Condominium ID is required")
	}

	conceptType, err := parseConceptType(cj.ConceptType)
	if err != nil {
		return nil, nil, err
	}

	concept := &quotas.PaymentConcept{
		ID:            cj.ID,
		CondominiumID: cj.CondominiumID,
		BuildingID:    cj.BuildingID,
		Name:          cj.Name,
		Description:   cj.Description,
		ConceptType:   conceptType,
		IsRecurring:   cj.IsRecurring,
		IssueDay:      cj.IssueDay,
		DueDay:        cj.DueDay,
		IsActive:      cj.IsActive == nil || *cj.IsActive,
		CreatedBy:     cj.CreatedBy,
		CreatedAt:     f.now().UTC(),
	}
	if concept.ID == "" {
		concept.ID = uuid.NewString()
	}

	if err := parseSchedule(cj, concept); err != nil {
		return nil, nil, err
	}

	inputs := make([]quotas.AssignInput, 0, len(cj.Assignments))
	var scopes []quotas.Scope
	for i, aj := range cj.Assignments {
		in, err := parseAssignment(aj, concept)
		if err != nil {
			return nil, nil, fmt.Errorf("assignment %d: %w", i, err)
		}
		for _, s := range scopes {
			if quotas.SameScope(s, in.Scope) {
				return nil, nil, generic.BadRequest(fmt.Sprintf("assignment %d: duplicate %s scope", i, in.Scope.Level()))
			}
		}
		scopes = append(scopes, in.Scope)
		inputs = append(inputs, in)
	}

	return concept, inputs, nil
}

// ToJSON converts a stored concept and its assignments back to ConceptJSON.
func (f *ConceptFactory) ToJSON(concept quotas.PaymentConcept, assignments []quotas.Assignment) ConceptJSON {
	active := concept.IsActive
	cj := ConceptJSON{
		ID:               concept.ID,
		CondominiumID:    concept.CondominiumID,
		BuildingID:       concept.BuildingID,
		Name:             concept.Name,
		Description:      concept.Description,
		ConceptType:      string(concept.ConceptType),
		IsRecurring:      concept.IsRecurring,
		RecurrencePeriod: string(concept.EffectiveCadence()),
		IssueDay:         concept.IssueDay,
		DueDay:           concept.DueDay,
		IsActive:         &active,
		CreatedBy:        concept.CreatedBy,
	}

	for _, a := range assignments {
		scopeType, buildingID, unitID := quotas.ScopeColumns(a.Scope)
		isActive := a.IsActive
		aj := AssignmentJSON{
			ID:                 a.ID,
			ScopeType:          scopeType,
			DistributionMethod: string(a.DistributionMethod),
			Amount:             a.Amount,
			IsActive:           &isActive,
		}
		if buildingID != nil {
			aj.BuildingID = *buildingID
		}
		if unitID != nil {
			aj.UnitID = *unitID
		}
		cj.Assignments = append(cj.Assignments, aj)
	}

	return cj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseConceptType(s string) (quotas.ConceptType, error) {
	if s == "" {
		return quotas.ConceptOther, nil
	}
	t := quotas.ConceptType(s)
	if !t.IsValid() {
		return "", generic.BadRequest(fmt.Sprintf("invalid concept type %q", s))
	}
	return t, nil
}

// parseSchedule fills Cadence and checks the issue/due days.
func parseSchedule(cj ConceptJSON, concept *quotas.PaymentConcept) error {
	if err := checkDay("issue_day", cj.IssueDay); err != nil {
		return err
	}
	if err := checkDay("due_day", cj.DueDay); err != nil {
		return err
	}

	if !cj.IsRecurring {
		concept.Cadence = generic.CadenceNone
		return nil
	}

	cadence, err := generic.ParseCadence(cj.RecurrencePeriod)
	if err != nil {
		return err
	}
	if !cadence.IsRecurring() {
		return generic.BadRequest("Recurrence period is required for recurring concepts")
	}
	if cj.IssueDay == nil || cj.DueDay == nil {
		return generic.BadRequest("Issue day and due day are required for recurring concepts")
	}
	concept.Cadence = cadence
	return nil
}

func checkDay(name string, day *int) error {
	if day != nil && (*day < 1 || *day > 31) {
		return generic.BadRequest(fmt.Sprintf("%s must be between 1 and 31", name))
	}
	return nil
}

func parseAssignment(aj AssignmentJSON, concept *quotas.PaymentConcept) (quotas.AssignInput, error) {
	scope, err := quotas.NewScope(aj.ScopeType, aj.BuildingID, aj.UnitID)
	if err != nil {
		return quotas.AssignInput{}, err
	}

	in := quotas.AssignInput{
		ConceptID:          concept.ID,
		CondominiumID:      concept.CondominiumID,
		Scope:              scope,
		DistributionMethod: quotas.DistributionMethod(aj.DistributionMethod),
		Amount:             generic.RoundCurrency(aj.Amount),
		AssignedBy:         concept.CreatedBy,
	}

	// Run the store-independent invariants now so a bad definition fails
	// before anything is written.
	probe := quotas.Assignment{
		Scope:              in.Scope,
		DistributionMethod: in.DistributionMethod,
		Amount:             in.Amount,
	}
	if err := probe.Validate(); err != nil {
		return quotas.AssignInput{}, err
	}
	return in, nil
}
