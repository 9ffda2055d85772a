package quotas_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/quota-engine/generic"
	"github.com/warp/quota-engine/quotas"
)

func assignInput(scope quotas.Scope, method quotas.DistributionMethod, amount string) quotas.AssignInput {
	return quotas.AssignInput{
		ConceptID:          "concept-1",
		CondominiumID:      "condo-1",
		Scope:              scope,
		DistributionMethod: method,
		Amount:             dec(amount),
		AssignedBy:         "admin",
	}
}

func TestAssign_CreatesActiveAssignment(t *testing.T) {
	f := newFixture(t)
	assigner := quotas.NewAssigner(f.store)

	a, err := assigner.Assign(f.ctx, assignInput(quotas.BuildingScope{BuildingID: "A"}, quotas.DistributeByAliquot, "500"))

	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.True(t, a.IsActive)
	assert.Equal(t, "admin", a.CreatedBy)

	stored, err := f.store.ListAssignments(f.ctx, "concept-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, quotas.BuildingScope{BuildingID: "A"}, stored[0].Scope)
}

func TestAssign_DefaultsCondominiumFromConcept(t *testing.T) {
	f := newFixture(t)
	in := assignInput(quotas.CondominiumScope{}, quotas.DistributeEqualSplit, "100")
	in.CondominiumID = ""

	a, err := quotas.NewAssigner(f.store).Assign(f.ctx, in)

	require.NoError(t, err)
	assert.Equal(t, "condo-1", a.CondominiumID)
}

func TestAssign_DuplicateScopeConflicts(t *testing.T) {
	f := newFixture(t)
	assigner := quotas.NewAssigner(f.store)

	first, err := assigner.Assign(f.ctx, assignInput(quotas.UnitScope{UnitID: "a-101"}, quotas.DistributeFixedPerUnit, "10"))
	require.NoError(t, err)

	// WHEN: Same unit again
	_, err = assigner.Assign(f.ctx, assignInput(quotas.UnitScope{UnitID: "a-101"}, quotas.DistributeFixedPerUnit, "20"))

	// THEN: Conflict
	require.Error(t, err)
	assert.True(t, generic.IsConflict(err))
	assert.Equal(t, "An assignment already exists for this scope", err.Error())

	// A different unit is fine
	_, err = assigner.Assign(f.ctx, assignInput(quotas.UnitScope{UnitID: "a-102"}, quotas.DistributeFixedPerUnit, "20"))
	require.NoError(t, err)

	// After deactivating, the scope is free again
	_, err = assigner.Deactivate(f.ctx, first.ID)
	require.NoError(t, err)
	_, err = assigner.Assign(f.ctx, assignInput(quotas.UnitScope{UnitID: "a-101"}, quotas.DistributeFixedPerUnit, "30"))
	assert.NoError(t, err)
}

func TestAssign_ValidationFailures(t *testing.T) {
	inactive := func(t *testing.T, f *fixture) {
		u, _ := f.store.GetUnit(f.ctx, "a-101")
		u.IsActive = false
		require.NoError(t, f.store.SaveUnit(f.ctx, *u))
	}
	otherCondoBuilding := func(t *testing.T, f *fixture) {
		require.NoError(t, f.store.SaveBuilding(f.ctx, quotas.Building{ID: "X", CondominiumID: "condo-2", IsActive: true}))
	}
	emptyBuilding := func(t *testing.T, f *fixture) {
		require.NoError(t, f.store.SaveBuilding(f.ctx, quotas.Building{ID: "E", CondominiumID: "condo-1", IsActive: true}))
	}
	noAliquotBuilding := func(t *testing.T, f *fixture) {
		require.NoError(t, f.store.SaveBuilding(f.ctx, quotas.Building{ID: "N", CondominiumID: "condo-1", IsActive: true}))
		require.NoError(t, f.store.SaveUnit(f.ctx, quotas.Unit{ID: "n-1", BuildingID: "N", CondominiumID: "condo-1", UnitNumber: "1", IsActive: true}))
	}

	tests := []struct {
		name    string
		setup   func(t *testing.T, f *fixture)
		input   quotas.AssignInput
		code    generic.Code
		message string
	}{
		{"zero amount", nil, assignInput(quotas.CondominiumScope{}, quotas.DistributeEqualSplit, "0"),
			generic.CodeBadRequest, "Amount must be greater than 0"},
		{"unit scope with split method", nil, assignInput(quotas.UnitScope{UnitID: "a-101"}, quotas.DistributeByAliquot, "10"),
			generic.CodeBadRequest, "Unit-level assignments must use fixed_per_unit distribution"},
		{"unknown building", nil, assignInput(quotas.BuildingScope{BuildingID: "Z"}, quotas.DistributeFixedPerUnit, "10"),
			generic.CodeNotFound, "Building not found"},
		{"building of another condominium", otherCondoBuilding, assignInput(quotas.BuildingScope{BuildingID: "X"}, quotas.DistributeFixedPerUnit, "10"),
			generic.CodeBadRequest, "Building does not belong to the specified condominium"},
		{"unknown unit", nil, assignInput(quotas.UnitScope{UnitID: "zz"}, quotas.DistributeFixedPerUnit, "10"),
			generic.CodeNotFound, "Unit not found"},
		{"inactive unit", inactive, assignInput(quotas.UnitScope{UnitID: "a-101"}, quotas.DistributeFixedPerUnit, "10"),
			generic.CodeBadRequest, "Cannot assign to an inactive unit"},
		{"building without units", emptyBuilding, assignInput(quotas.BuildingScope{BuildingID: "E"}, quotas.DistributeEqualSplit, "10"),
			generic.CodeBadRequest, "No active units found for this scope"},
		{"building without aliquots", noAliquotBuilding, assignInput(quotas.BuildingScope{BuildingID: "N"}, quotas.DistributeByAliquot, "10"),
			generic.CodeBadRequest, "No units have aliquot percentage set for proportional distribution"},
		{"equal split leaves a unit without a cent", nil, assignInput(quotas.CondominiumScope{}, quotas.DistributeEqualSplit, "0.02"),
			generic.CodeBadRequest, "Amount 0.02 is too small to split across 4 units"},
		{"aliquot split leaves a unit without a cent", nil, assignInput(quotas.BuildingScope{BuildingID: "A"}, quotas.DistributeByAliquot, "0.01"),
			generic.CodeBadRequest, "Amount 0.01 is too small to split across 2 units"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(t, f)
			}

			_, err := quotas.NewAssigner(f.store).Assign(f.ctx, tt.input)

			require.Error(t, err)
			assert.Equal(t, tt.code, generic.CodeOf(err))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestAssign_UnknownOrInactiveConcept(t *testing.T) {
	f := newFixture(t)
	assigner := quotas.NewAssigner(f.store)

	in := assignInput(quotas.CondominiumScope{}, quotas.DistributeEqualSplit, "10")
	in.ConceptID = "missing"
	_, err := assigner.Assign(f.ctx, in)
	assert.True(t, generic.IsNotFound(err))

	c, _ := f.store.GetConcept(f.ctx, "concept-1")
	c.IsActive = false
	require.NoError(t, f.store.SaveConcept(f.ctx, *c))
	_, err = assigner.Assign(f.ctx, assignInput(quotas.CondominiumScope{}, quotas.DistributeEqualSplit, "10"))
	assert.Equal(t, generic.CodeBadRequest, generic.CodeOf(err))
}

func TestDeactivate_UnknownAssignment(t *testing.T) {
	f := newFixture(t)
	_, err := quotas.NewAssigner(f.store).Deactivate(f.ctx, "missing")
	assert.True(t, generic.IsNotFound(err))
}
