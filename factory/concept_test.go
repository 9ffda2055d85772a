package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/quota-engine/factory"
	"github.com/warp/quota-engine/generic"
	"github.com/warp/quota-engine/quotas"
)

const maintenanceJSON = `{
	"id": "maint",
	"condominium_id": "condo-1",
	"name": "Monthly maintenance",
	"concept_type": "maintenance",
	"is_recurring": true,
	"recurrence_period": "monthly",
	"issue_day": 1,
	"due_day": 10,
	"created_by": "admin",
	"assignments": [
		{"scope_type": "condominium", "distribution_method": "by_aliquot", "amount": "1500.00"},
		{"scope_type": "building", "building_id": "B", "distribution_method": "equal_split", "amount": 600},
		{"scope_type": "unit", "unit_id": "b-101", "distribution_method": "fixed_per_unit", "amount": "75.005"}
	]
}`

func TestParseConcept_FullDefinition(t *testing.T) {
	f := factory.NewConceptFactory()

	concept, inputs, err := f.ParseConcept(maintenanceJSON)

	require.NoError(t, err)
	assert.Equal(t, "maint", concept.ID)
	assert.Equal(t, quotas.ConceptMaintenance, concept.ConceptType)
	assert.Equal(t, generic.CadenceMonthly, concept.Cadence)
	assert.Equal(t, 1, concept.EffectiveIssueDay())
	assert.Equal(t, 10, concept.EffectiveDueDay())
	assert.True(t, concept.IsActive)

	require.Len(t, inputs, 3)
	assert.Equal(t, quotas.CondominiumScope{}, inputs[0].Scope)
	assert.Equal(t, quotas.BuildingScope{BuildingID: "B"}, inputs[1].Scope)
	assert.Equal(t, quotas.UnitScope{UnitID: "b-101"}, inputs[2].Scope)
	assert.Equal(t, "600.00", generic.FormatCurrency(inputs[1].Amount))
	assert.Equal(t, "75.01", generic.FormatCurrency(inputs[2].Amount))
	for _, in := range inputs {
		assert.Equal(t, "maint", in.ConceptID)
		assert.Equal(t, "condo-1", in.CondominiumID)
		assert.Equal(t, "admin", in.AssignedBy)
	}
}

func TestParseConcept_NonRecurringDefaults(t *testing.T) {
	f := factory.NewConceptFactory()

	concept, inputs, err := f.ParseConcept(`{
		"condominium_id": "condo-1",
		"name": "Pool repair",
		"recurrence_period": "monthly"
	}`)

	require.NoError(t, err)
	assert.NotEmpty(t, concept.ID, "id is generated")
	assert.Equal(t, quotas.ConceptOther, concept.ConceptType)
	assert.Equal(t, generic.CadenceNone, concept.Cadence, "cadence is ignored when not recurring")
	assert.Equal(t, quotas.DefaultIssueDay, concept.EffectiveIssueDay())
	assert.Equal(t, quotas.DefaultDueDay, concept.EffectiveDueDay())
	assert.Empty(t, inputs)
}

func TestParseConcept_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		message string
	}{
		{"malformed", `{"name": `, ""},
		{"missing name", `{"condominium_id": "c"}`, "Concept name is required"},
		{"missing condominium", `{"name": "x"}`, "Condominium ID is required"},
		{"bad concept type", `{"name": "x", "condominium_id": "c", "concept_type": "tax"}`, `invalid concept type "tax"`},
		{"recurring without cadence", `{"name": "x", "condominium_id": "c", "is_recurring": true, "issue_day": 1, "due_day": 5}`,
			"Recurrence period is required for recurring concepts"},
		{"unknown cadence", `{"name": "x", "condominium_id": "c", "is_recurring": true, "recurrence_period": "weekly"}`,
			`unknown recurrence period "weekly"`},
		{"recurring without days", `{"name": "x", "condominium_id": "c", "is_recurring": true, "recurrence_period": "monthly"}`,
			"Issue day and due day are required for recurring concepts"},
		{"day out of range", `{"name": "x", "condominium_id": "c", "due_day": 32}`, "due_day must be between 1 and 31"},
		{"unit scope with split", `{"name": "x", "condominium_id": "c", "assignments": [
			{"scope_type": "unit", "unit_id": "u", "distribution_method": "equal_split", "amount": 5}]}`,
			"assignment 0: Unit-level assignments must use fixed_per_unit distribution"},
		{"building scope without id", `{"name": "x", "condominium_id": "c", "assignments": [
			{"scope_type": "building", "distribution_method": "equal_split", "amount": 5}]}`,
			"assignment 0: Building ID is required when scope is building"},
		{"zero amount", `{"name": "x", "condominium_id": "c", "assignments": [
			{"scope_type": "condominium", "distribution_method": "equal_split", "amount": "0"}]}`,
			"assignment 0: Amount must be greater than 0"},
		{"duplicate scope", `{"name": "x", "condominium_id": "c", "assignments": [
			{"scope_type": "building", "building_id": "A", "distribution_method": "equal_split", "amount": 5},
			{"scope_type": "building", "building_id": "A", "distribution_method": "by_aliquot", "amount": 9}]}`,
			"assignment 1: duplicate building scope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := factory.NewConceptFactory().ParseConcept(tt.json)

			require.Error(t, err)
			assert.Equal(t, generic.CodeBadRequest, generic.CodeOf(err))
			if tt.message != "" {
				assert.Equal(t, tt.message, err.Error())
			}
		})
	}
}

func TestToJSON_RoundTripsThroughFromJSON(t *testing.T) {
	f := factory.NewConceptFactory()
	concept, inputs, err := f.ParseConcept(maintenanceJSON)
	require.NoError(t, err)

	stored := make([]quotas.Assignment, 0, len(inputs))
	for i, in := range inputs {
		stored = append(stored, quotas.Assignment{
			ID: string(rune('a' + i)), ConceptID: in.ConceptID, CondominiumID: in.CondominiumID,
			Scope: in.Scope, DistributionMethod: in.DistributionMethod, Amount: in.Amount, IsActive: true,
		})
	}

	cj := f.ToJSON(*concept, stored)
	assert.Equal(t, "monthly", cj.RecurrencePeriod)
	require.Len(t, cj.Assignments, 3)
	assert.Equal(t, "B", cj.Assignments[1].BuildingID)
	assert.Equal(t, "b-101", cj.Assignments[2].UnitID)

	again, againInputs, err := f.FromJSON(cj)
	require.NoError(t, err)
	assert.Equal(t, concept.ID, again.ID)
	assert.Equal(t, concept.Cadence, again.Cadence)
	require.Len(t, againInputs, 3)
	assert.True(t, againInputs[2].Amount.Equal(inputs[2].Amount))
}
