/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario creates a condominium directory, payment
	concepts with their assignments, and optionally formulas, rules and
	already generated quotas.

AVAILABLE SCENARIOS:

	las-palmas:        Two towers, monthly maintenance with all three
	                   override levels
	quarterly-reserve: Quarterly reserve fund whose due day rolls into
	                   the following month
	formula-rules:     Las Palmas plus formulas and overlapping-in-time
	                   building and condominium-wide rules
	extraordinary:     One-off roof repair charged to a single tower and
	                   generated for the current month

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create condominium, buildings and units
 3. Create concepts from JSON via the concept factory
 4. Optionally add formulas, rules and generate quotas

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "las-palmas"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: storeConcept
  - factory/concept.go: Concept JSON definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/quota-engine/generic"
	"github.com/warp/quota-engine/quotas"
	"github.com/warp/quota-engine/rules"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, h *Handler) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "las-palmas",
			Name:        "Las Palmas",
			Description: "Monthly maintenance split by aliquot, overridden for Tower B and one unit",
		},
		load: loadLasPalmas,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "quarterly-reserve",
			Name:        "Quarterly Reserve Fund",
			Description: "Reserve fund billed every three months, due the month after issue",
		},
		load: loadQuarterlyReserve,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "formula-rules",
			Name:        "Formulas and Rules",
			Description: "Fixed and per-unit formulas bound to maintenance by date range",
		},
		load: loadFormulaRules,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "extraordinary",
			Name:        "Extraordinary Assessment",
			Description: "One-off roof repair for Tower A, already generated this month",
		},
		load: loadExtraordinary,
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		h.writeDomainError(w, r, generic.NotFound(fmt.Sprintf("Unknown scenario: %s", req.ScenarioID)))
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		h.writeDomainError(w, r, fmt.Errorf("failed to reset database: %w", err))
		return
	}
	if err := s.load(ctx, h); err != nil {
		h.writeDomainError(w, r, fmt.Errorf("failed to load scenario %s: %w", s.ID, err))
		return
	}

	h.log.WithField("scenario", s.ID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": s.ID,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// lasPalmasDirectory creates:
//
//	Tower A: a-101 (30%, 85.5 m2), a-102 (20%, 62 m2)
//	Tower B: b-101 (35%, 95 m2), b-102 (15%, 48 m2), b-103 (no aliquot, 40 m2)
func lasPalmasDirectory(ctx context.Context, h *Handler) error {
	d := directory{ctx: ctx, store: h.Store}
	d.condominium("las-palmas", "Residencias Las Palmas", "LP")
	d.building("las-palmas", "tower-a", "Tower A")
	d.building("las-palmas", "tower-b", "Tower B")
	d.unit("tower-a", "las-palmas", "a-101", "101", "30")
	d.unit("tower-a", "las-palmas", "a-102", "102", "20")
	d.unit("tower-b", "las-palmas", "b-101", "101", "35")
	d.unit("tower-b", "las-palmas", "b-102", "102", "15")
	d.unit("tower-b", "las-palmas", "b-103", "103", "")
	d.survey("a-101", "85.50", 1, 1)
	d.survey("a-102", "62.00", 1, 1)
	d.survey("b-101", "95.00", 2, 2)
	d.survey("b-102", "48.00", 2, 0)
	d.survey("b-103", "40.00", 3, 0)
	return d.err
}

const lasPalmasMaintenanceJSON = `{
	"id": "lp-maintenance",
	"condominium_id": "las-palmas",
	"name": "Monthly maintenance",
	"description": "Common area upkeep, security and cleaning",
	"concept_type": "maintenance",
	"is_recurring": true,
	"recurrence_period": "monthly",
	"issue_day": 1,
	"due_day": 10,
	"created_by": "demo",
	"assignments": [
		{"scope_type": "condominium", "distribution_method": "by_aliquot", "amount": "1000.00"},
		{"scope_type": "building", "building_id": "tower-b", "distribution_method": "equal_split", "amount": "450.00"},
		{"scope_type": "unit", "unit_id": "a-102", "distribution_method": "fixed_per_unit", "amount": "75.00"}
	]
}`

func loadLasPalmas(ctx context.Context, h *Handler) error {
	if err := lasPalmasDirectory(ctx, h); err != nil {
		return err
	}
	return h.seedConcept(ctx, lasPalmasMaintenanceJSON, startOfYear())
}

func loadQuarterlyReserve(ctx context.Context, h *Handler) error {
	d := directory{ctx: ctx, store: h.Store}
	d.condominium("vista-hermosa", "Conjunto Vista Hermosa", "VH")
	d.building("vista-hermosa", "vh-main", "Main building")
	for i, number := range []string{"1A", "1B", "2A", "2B"} {
		d.unit("vh-main", "vista-hermosa", fmt.Sprintf("vh-%d", i+1), number, "25")
	}
	if d.err != nil {
		return d.err
	}

	return h.seedConcept(ctx, `{
		"id": "vh-reserve",
		"condominium_id": "vista-hermosa",
		"name": "Reserve fund",
		"concept_type": "reserve_fund",
		"is_recurring": true,
		"recurrence_period": "quarterly",
		"issue_day": 15,
		"due_day": 5,
		"created_by": "demo",
		"assignments": [
			{"scope_type": "condominium", "distribution_method": "equal_split", "amount": "1000.00"}
		]
	}`, startOfYear())
}

func loadFormulaRules(ctx context.Context, h *Handler) error {
	if err := loadLasPalmas(ctx, h); err != nil {
		return err
	}

	fixed := decimal.NewFromInt(120)
	base, err := h.Rules.CreateFormula(ctx, rules.CreateFormulaInput{
		CondominiumID: "las-palmas",
		Name:          "Flat maintenance",
		FormulaType:   rules.FormulaFixed,
		FixedAmount:   &fixed,
		CreatedBy:     "demo",
	})
	if err != nil {
		return err
	}
	towerB, err := h.Rules.CreateFormula(ctx, rules.CreateFormulaInput{
		CondominiumID: "las-palmas",
		Name:          "Tower B by unit",
		FormulaType:   rules.FormulaPerUnit,
		UnitAmounts: map[string]decimal.Decimal{
			"b-101": decimal.RequireFromString("180.00"),
			"b-102": decimal.RequireFromString("140.00"),
			"b-103": decimal.RequireFromString("95.50"),
		},
		CreatedBy: "demo",
	})
	if err != nil {
		return err
	}

	// Not bound to a rule; priced on demand through the amount endpoint.
	if _, err := h.Rules.CreateFormula(ctx, rules.CreateFormulaInput{
		CondominiumID: "las-palmas",
		Name:          "Area and parking",
		FormulaType:   rules.FormulaExpression,
		Expression:    "base_rate * aliquot_percentage / 100 + area_m2 * 0.5 + parking_spaces * 15",
		CreatedBy:     "demo",
	}); err != nil {
		return err
	}

	year := generic.Today().Year()
	towerBID := "tower-b"
	midYear := generic.NewTimePoint(year, time.June, 1)
	yearEnd := generic.NewTimePoint(year, time.December, 31)

	if _, err := h.Rules.Create(ctx, rules.CreateRuleInput{
		CondominiumID: "las-palmas",
		ConceptID:     "lp-maintenance",
		FormulaID:     base.ID,
		Name:          "Flat maintenance for everyone",
		EffectiveFrom: generic.NewTimePoint(year, time.January, 1),
		CreatedBy:     "demo",
	}); err != nil {
		return err
	}
	_, err = h.Rules.Create(ctx, rules.CreateRuleInput{
		CondominiumID: "las-palmas",
		BuildingID:    &towerBID,
		ConceptID:     "lp-maintenance",
		FormulaID:     towerB.ID,
		Name:          "Tower B renovation surcharge",
		EffectiveFrom: midYear,
		EffectiveTo:   &yearEnd,
		CreatedBy:     "demo",
	})
	return err
}

func loadExtraordinary(ctx context.Context, h *Handler) error {
	if err := lasPalmasDirectory(ctx, h); err != nil {
		return err
	}
	if err := h.seedConcept(ctx, `{
		"id": "lp-roof",
		"condominium_id": "las-palmas",
		"building_id": "tower-a",
		"name": "Roof repair",
		"concept_type": "extraordinary",
		"is_recurring": false,
		"issue_day": 5,
		"due_day": 25,
		"created_by": "demo",
		"assignments": [
			{"scope_type": "building", "building_id": "tower-a", "distribution_method": "by_aliquot", "amount": "2400.00"}
		]
	}`, time.Now()); err != nil {
		return err
	}

	today := generic.Today()
	_, err := h.Generator.Generate(ctx, quotas.GenerateInput{
		ConceptID:   "lp-roof",
		PeriodYear:  today.Year(),
		PeriodMonth: int(today.Month()),
		GeneratedBy: "demo",
		Method:      quotas.MethodManual,
	})
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// seedConcept parses a concept definition, backdates it to createdAt so
// period accounting has history, and stores it.
func (h *Handler) seedConcept(ctx context.Context, conceptJSON string, createdAt time.Time) error {
	concept, inputs, err := h.Concepts.ParseConcept(conceptJSON)
	if err != nil {
		return err
	}
	concept.CreatedAt = createdAt.UTC()
	_, err = h.storeConcept(ctx, concept, inputs)
	return err
}

func startOfYear() time.Time {
	return time.Date(time.Now().Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// directory saves directory rows, remembering the first error.
type directory struct {
	ctx   context.Context
	store Store
	err   error
}

func (d *directory) condominium(id, name, code string) {
	if d.err == nil {
		d.err = d.store.SaveCondominium(d.ctx, quotas.Condominium{ID: id, Name: name, Code: code, IsActive: true})
	}
}

func (d *directory) building(condominiumID, id, name string) {
	if d.err == nil {
		d.err = d.store.SaveBuilding(d.ctx, quotas.Building{ID: id, CondominiumID: condominiumID, Name: name, IsActive: true})
	}
}

// unit saves an active unit. An empty aliquot leaves it unset.
func (d *directory) unit(buildingID, condominiumID, id, number, aliquot string) {
	if d.err != nil {
		return
	}
	var pct *decimal.Decimal
	if aliquot != "" {
		v := decimal.RequireFromString(aliquot)
		pct = &v
	}
	d.err = d.store.SaveUnit(d.ctx, quotas.Unit{
		ID:                id,
		BuildingID:        buildingID,
		CondominiumID:     condominiumID,
		UnitNumber:        number,
		AliquotPercentage: pct,
		IsActive:          true,
	})
}

// survey sets the attributes expression formulas read on a saved unit.
func (d *directory) survey(unitID, area string, floor, parking int) {
	if d.err != nil {
		return
	}
	u, err := d.store.GetUnit(d.ctx, unitID)
	if err != nil || u == nil {
		d.err = fmt.Errorf("unit %s not saved: %v", unitID, err)
		return
	}
	a := decimal.RequireFromString(area)
	u.AreaM2 = &a
	u.Floor = &floor
	u.ParkingSpaces = parking
	d.err = d.store.SaveUnit(d.ctx, *u)
}
