package rules_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/quota-engine/generic"
	"github.com/warp/quota-engine/quotas"
	"github.com/warp/quota-engine/rules"
	"github.com/warp/quota-engine/store/memory"
)

func date(s string) generic.TimePoint { return generic.MustParseDate(s) }

func datePtr(s string) *generic.TimePoint {
	d := date(s)
	return &d
}

func strPtr(s string) *string { return &s }

type fixture struct {
	ctx      context.Context
	store    *memory.Memory
	resolver *rules.Resolver
	formula  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.SaveCondominium(ctx, quotas.Condominium{ID: "condo-1", Name: "Las Palmas", IsActive: true}))
	require.NoError(t, store.SaveCondominium(ctx, quotas.Condominium{ID: "condo-2", Name: "El Sol", IsActive: true}))
	require.NoError(t, store.SaveBuilding(ctx, quotas.Building{ID: "A", CondominiumID: "condo-1", IsActive: true}))
	require.NoError(t, store.SaveBuilding(ctx, quotas.Building{ID: "B", CondominiumID: "condo-1", IsActive: true}))
	require.NoError(t, store.SaveBuilding(ctx, quotas.Building{ID: "X", CondominiumID: "condo-2", IsActive: true}))
	require.NoError(t, store.SaveUnit(ctx, quotas.Unit{ID: "a-101", BuildingID: "A", CondominiumID: "condo-1", UnitNumber: "101", IsActive: true}))
	require.NoError(t, store.SaveConcept(ctx, quotas.PaymentConcept{ID: "concept-1", CondominiumID: "condo-1", Name: "Maintenance", IsActive: true}))
	require.NoError(t, store.SaveConcept(ctx, quotas.PaymentConcept{ID: "concept-2", CondominiumID: "condo-1", Name: "Reserve", IsActive: true}))

	resolver := rules.NewResolver(store)
	amount := decimal.RequireFromString("120")
	f, err := resolver.CreateFormula(ctx, rules.CreateFormulaInput{
		CondominiumID: "condo-1", Name: "Base fee", FormulaType: rules.FormulaFixed, FixedAmount: &amount,
	})
	require.NoError(t, err)

	return &fixture{ctx: ctx, store: store, resolver: resolver, formula: f.ID}
}

func (f *fixture) ruleInput(building *string, from string, to *generic.TimePoint) rules.CreateRuleInput {
	return rules.CreateRuleInput{
		CondominiumID: "condo-1",
		BuildingID:    building,
		ConceptID:     "concept-1",
		FormulaID:     f.formula,
		Name:          "rule",
		EffectiveFrom: date(from),
		EffectiveTo:   to,
		CreatedBy:     "admin",
	}
}

// =============================================================================
// CREATE - OVERLAP
// =============================================================================

func TestCreate_OverlapSameScopeConflicts(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Create(f.ctx, f.ruleInput(nil, "2024-01-01", datePtr("2024-06-30")))
	require.NoError(t, err)

	// WHEN: An overlapping range for the same concept and scope
	_, err = f.resolver.Create(f.ctx, f.ruleInput(nil, "2024-03-01", datePtr("2024-09-30")))

	// THEN: Conflict
	require.Error(t, err)
	assert.True(t, generic.IsConflict(err))
	assert.Equal(t, "A rule already exists for this payment concept in the specified date range", err.Error())
}

func TestCreate_DifferentBuildingsDoNotConflict(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Create(f.ctx, f.ruleInput(strPtr("A"), "2024-01-01", datePtr("2024-06-30")))
	require.NoError(t, err)

	_, err = f.resolver.Create(f.ctx, f.ruleInput(strPtr("B"), "2024-01-01", datePtr("2024-06-30")))
	assert.NoError(t, err)

	// Nor does a condominium-wide rule over the same dates
	_, err = f.resolver.Create(f.ctx, f.ruleInput(nil, "2024-01-01", datePtr("2024-06-30")))
	assert.NoError(t, err)
}

func TestCreate_OpenEndedOverlapCases(t *testing.T) {
	tests := []struct {
		name         string
		existingFrom string
		existingTo   *generic.TimePoint
		newFrom      string
		newTo        *generic.TimePoint
		conflict     bool
	}{
		{"new open-ended starts after existing ends", "2024-01-01", datePtr("2024-06-30"), "2024-07-01", nil, false},
		{"new open-ended starts inside existing", "2024-01-01", datePtr("2024-06-30"), "2024-06-30", nil, true},
		{"existing open-ended, new bounded before it", "2024-07-01", nil, "2024-01-01", datePtr("2024-06-30"), false},
		{"existing open-ended, new bounded after start", "2024-07-01", nil, "2025-01-01", datePtr("2025-02-01"), true},
		{"both open-ended", "2030-01-01", nil, "2024-01-01", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.resolver.Create(f.ctx, f.ruleInput(nil, tt.existingFrom, tt.existingTo))
			require.NoError(t, err)

			_, err = f.resolver.Create(f.ctx, f.ruleInput(nil, tt.newFrom, tt.newTo))
			assert.Equal(t, tt.conflict, generic.IsConflict(err), "err = %v", err)
		})
	}
}

func TestCreate_InactiveAndOtherConceptRulesIgnoredForOverlap(t *testing.T) {
	f := newFixture(t)
	r, err := f.resolver.Create(f.ctx, f.ruleInput(nil, "2024-01-01", nil))
	require.NoError(t, err)

	other := f.ruleInput(nil, "2024-01-01", nil)
	other.ConceptID = "concept-2"
	_, err = f.resolver.Create(f.ctx, other)
	require.NoError(t, err)

	_, err = f.resolver.Deactivate(f.ctx, r.ID, "admin")
	require.NoError(t, err)
	_, err = f.resolver.Create(f.ctx, f.ruleInput(nil, "2024-05-01", nil))
	assert.NoError(t, err)
}

// =============================================================================
// CREATE - REFERENCES
// =============================================================================

func TestCreate_ValidationFailures(t *testing.T) {
	f := newFixture(t)

	inactive, err := f.resolver.CreateFormula(f.ctx, rules.CreateFormulaInput{
		CondominiumID: "condo-1", Name: "Old", FormulaType: rules.FormulaPerUnit,
		UnitAmounts: map[string]decimal.Decimal{"a-101": decimal.NewFromInt(5)},
	})
	require.NoError(t, err)
	inactive.IsActive = false
	require.NoError(t, f.store.SaveFormula(f.ctx, *inactive))

	amount := decimal.NewFromInt(10)
	foreign, err := f.resolver.CreateFormula(f.ctx, rules.CreateFormulaInput{
		CondominiumID: "condo-2", Name: "Foreign", FormulaType: rules.FormulaFixed, FixedAmount: &amount,
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(in *rules.CreateRuleInput)
		code    generic.Code
		message string
	}{
		{"unknown condominium", func(in *rules.CreateRuleInput) { in.CondominiumID = "nope" },
			generic.CodeNotFound, "Condominium not found"},
		{"unknown building", func(in *rules.CreateRuleInput) { in.BuildingID = strPtr("Z") },
			generic.CodeNotFound, "Building not found"},
		{"building of another condominium", func(in *rules.CreateRuleInput) { in.BuildingID = strPtr("X") },
			generic.CodeBadRequest, "Building does not belong to the specified condominium"},
		{"unknown concept", func(in *rules.CreateRuleInput) { in.ConceptID = "nope" },
			generic.CodeNotFound, "Payment concept not found"},
		{"unknown formula", func(in *rules.CreateRuleInput) { in.FormulaID = "nope" },
			generic.CodeNotFound, "Quota formula not found"},
		{"formula of another condominium", func(in *rules.CreateRuleInput) { in.FormulaID = foreign.ID },
			generic.CodeBadRequest, "Quota formula does not belong to the specified condominium"},
		{"inactive formula", func(in *rules.CreateRuleInput) { in.FormulaID = inactive.ID },
			generic.CodeBadRequest, "Quota formula is not active"},
		{"inverted range", func(in *rules.CreateRuleInput) { in.EffectiveTo = datePtr("2023-12-31") },
			generic.CodeBadRequest, "Effective from date must be before or equal to effective to date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.ruleInput(nil, "2024-01-01", datePtr("2024-12-31"))
			tt.mutate(&in)

			_, err := f.resolver.Create(f.ctx, in)

			require.Error(t, err)
			assert.Equal(t, tt.code, generic.CodeOf(err))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

// =============================================================================
// LOOKUP
// =============================================================================

func TestGetApplicable_BuildingRuleWinsOverCondominiumRule(t *testing.T) {
	f := newFixture(t)
	condoRule, err := f.resolver.Create(f.ctx, f.ruleInput(nil, "2024-01-01", nil))
	require.NoError(t, err)
	buildingRule, err := f.resolver.Create(f.ctx, f.ruleInput(strPtr("A"), "2024-06-01", datePtr("2024-12-31")))
	require.NoError(t, err)

	// Building A inside the building rule's range
	got, err := f.resolver.GetApplicable(f.ctx, "condo-1", "concept-1", date("2024-07-15"), strPtr("A"))
	require.NoError(t, err)
	assert.Equal(t, buildingRule.ID, got.ID)

	// Building B falls back to the condominium rule
	got, err = f.resolver.GetApplicable(f.ctx, "condo-1", "concept-1", date("2024-07-15"), strPtr("B"))
	require.NoError(t, err)
	assert.Equal(t, condoRule.ID, got.ID)

	// Building A outside the building rule's range
	got, err = f.resolver.GetApplicable(f.ctx, "condo-1", "concept-1", date("2025-01-01"), strPtr("A"))
	require.NoError(t, err)
	assert.Equal(t, condoRule.ID, got.ID)

	// No building given
	got, err = f.resolver.GetApplicable(f.ctx, "condo-1", "concept-1", date("2024-07-15"), nil)
	require.NoError(t, err)
	assert.Equal(t, condoRule.ID, got.ID)
}

func TestGetApplicable_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Create(f.ctx, f.ruleInput(strPtr("A"), "2024-01-01", datePtr("2024-03-31")))
	require.NoError(t, err)

	_, err = f.resolver.GetApplicable(f.ctx, "condo-1", "concept-1", date("2024-05-01"), strPtr("A"))
	assert.True(t, generic.IsNotFound(err))

	_, err = f.resolver.GetApplicable(f.ctx, "condo-1", "concept-2", date("2024-02-01"), strPtr("A"))
	assert.True(t, generic.IsNotFound(err))
}

func TestGetEffectiveForDate_AllConceptsAndScopes(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Create(f.ctx, f.ruleInput(nil, "2024-01-01", datePtr("2024-06-30")))
	require.NoError(t, err)
	_, err = f.resolver.Create(f.ctx, f.ruleInput(strPtr("A"), "2024-03-01", nil))
	require.NoError(t, err)
	other := f.ruleInput(nil, "2024-06-30", nil)
	other.ConceptID = "concept-2"
	_, err = f.resolver.Create(f.ctx, other)
	require.NoError(t, err)

	got, err := f.resolver.GetEffectiveForDate(f.ctx, "condo-1", date("2024-06-30"))
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = f.resolver.GetEffectiveForDate(f.ctx, "condo-1", date("2024-02-01"))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = f.resolver.GetEffectiveForDate(f.ctx, "condo-1", date("2023-01-01"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListByCondominium(t *testing.T) {
	f := newFixture(t)
	late, err := f.resolver.Create(f.ctx, f.ruleInput(nil, "2025-01-01", nil))
	require.NoError(t, err)
	early, err := f.resolver.Create(f.ctx, f.ruleInput(nil, "2024-01-01", datePtr("2024-12-31")))
	require.NoError(t, err)
	_, err = f.resolver.Deactivate(f.ctx, late.ID, "admin")
	require.NoError(t, err)

	active, err := f.resolver.ListByCondominium(f.ctx, "condo-1", false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, early.ID, active[0].ID)

	all, err := f.resolver.ListByCondominium(f.ctx, "condo-1", true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, early.ID, all[0].ID)
	assert.Equal(t, "deactivated", all[1].UpdateReason)
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdate_RevalidatesChangedReferencesAndRange(t *testing.T) {
	f := newFixture(t)
	r, err := f.resolver.Create(f.ctx, f.ruleInput(nil, "2024-01-01", datePtr("2024-12-31")))
	require.NoError(t, err)

	_, err = f.resolver.Update(f.ctx, r.ID, rules.RulePatch{BuildingID: rules.SetTo(strPtr("X"))})
	assert.Equal(t, generic.CodeBadRequest, generic.CodeOf(err))

	_, err = f.resolver.Update(f.ctx, r.ID, rules.RulePatch{FormulaID: rules.SetTo("nope")})
	assert.True(t, generic.IsNotFound(err))

	_, err = f.resolver.Update(f.ctx, r.ID, rules.RulePatch{EffectiveFrom: rules.SetTo(date("2025-06-01"))})
	assert.Equal(t, generic.CodeBadRequest, generic.CodeOf(err))

	// Clearing the end date and renaming
	updated, err := f.resolver.Update(f.ctx, r.ID, rules.RulePatch{
		EffectiveTo:  rules.SetTo[*generic.TimePoint](nil),
		Name:         rules.SetTo("renamed"),
		UpdatedBy:    "auditor",
		UpdateReason: "extend indefinitely",
	})
	require.NoError(t, err)
	assert.True(t, updated.Effective.IsOpenEnded())
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, "auditor", updated.UpdatedBy)

	stored, err := f.store.GetRule(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Name)
}

func TestUpdate_DoesNotRecheckOverlap(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Create(f.ctx, f.ruleInput(nil, "2024-01-01", datePtr("2024-06-30")))
	require.NoError(t, err)
	second, err := f.resolver.Create(f.ctx, f.ruleInput(nil, "2024-07-01", datePtr("2024-12-31")))
	require.NoError(t, err)

	// WHEN: Moving the second rule's start into the first rule's range
	_, err = f.resolver.Update(f.ctx, second.ID, rules.RulePatch{EffectiveFrom: rules.SetTo(date("2024-03-01"))})

	// THEN: Accepted; update only validates references and the range itself
	assert.NoError(t, err)
}

func TestUpdate_UnknownRule(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Update(f.ctx, "missing", rules.RulePatch{Name: rules.SetTo("x")})
	assert.True(t, generic.IsNotFound(err))
}
