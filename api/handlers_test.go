/*
handlers_test.go - HTTP-level tests for API handlers

Tests for:
- Concept creation from JSON, preview, generation and the duplicate-period conflict
- Transactional concept creation (nothing stored when an assignment fails)
- Error category to HTTP status mapping
- Formula and rule endpoints, including PATCH-style null handling
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/quota-engine/factory"
	"github.com/warp/quota-engine/logging"
	"github.com/warp/quota-engine/quotas"
	"github.com/warp/quota-engine/store/memory"
	"github.com/warp/quota-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	t      *testing.T
	h      *Handler
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, logging.Discard())
	return &testServer{t: t, h: h, router: NewRouter(h, nil)}
}

// do sends a request. A string body is sent as-is, anything else is
// JSON-encoded.
func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) loadScenario(id string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
}

// seedDirectory creates condo-1 with building A holding a-101 (60%) and
// a-102 (40%) through the API.
func (s *testServer) seedDirectory() {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/condominiums", CreateCondominiumRequest{ID: "condo-1", Name: "Los Robles"})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, "/api/condominiums/condo-1/buildings", CreateBuildingRequest{ID: "A", Name: "Tower A"})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	for id, pct := range map[string]string{"a-101": "60", "a-102": "40"} {
		aliquot := decimal.RequireFromString(pct)
		rec = s.do(http.MethodPost, "/api/buildings/A/units", CreateUnitRequest{ID: id, UnitNumber: id[2:], AliquotPercentage: &aliquot})
		require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

// =============================================================================
// GENERATION FLOW
// =============================================================================

func TestGenerateQuotas_EndToEnd(t *testing.T) {
	// GIVEN: Las Palmas with condominium, building and unit assignments
	s := newTestServer(t)
	s.loadScenario("las-palmas")

	// WHEN: Previewing the maintenance concept
	rec := s.do(http.MethodGet, "/api/concepts/lp-maintenance/preview", nil)

	// THEN: Each level overrides the one above it
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	charges := decodeBody[[]UnitChargeDTO](t, rec)
	amounts := map[string]string{}
	for _, c := range charges {
		amounts[c.UnitID] = c.BaseAmount
	}
	assert.Equal(t, map[string]string{
		"a-101": "300.00", // 30% of 1000
		"a-102": "75.00",  // unit override
		"b-101": "150.00", // tower B equal split of 450
		"b-102": "150.00",
		"b-103": "150.00",
	}, amounts)

	// WHEN: Generating December 2025
	rec = s.do(http.MethodPost, "/api/concepts/lp-maintenance/generate", GenerateRequest{PeriodYear: 2025, PeriodMonth: 12, GeneratedBy: "admin"})

	// THEN: One quota per unit, dated with the concept's issue and due days
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	summary := decodeBody[GenerationSummaryDTO](t, rec)
	assert.Equal(t, 5, summary.QuotasCreated)
	assert.Equal(t, "825.00", summary.TotalAmount)
	assert.Equal(t, "2025-12-01", summary.IssueDate)
	assert.Equal(t, "2025-12-10", summary.DueDate)
	assert.NotEmpty(t, summary.LogID)

	// AND: Generating the same period again conflicts
	rec = s.do(http.MethodPost, "/api/concepts/lp-maintenance/generate", GenerateRequest{PeriodYear: 2025, PeriodMonth: 12})
	assert.Equal(t, http.StatusConflict, rec.Code)
	errResp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "CONFLICT", errResp.Code)
	assert.Equal(t, "Charges already exist for this period", errResp.Error)

	// AND: The quotas and the audit row are readable
	rec = s.do(http.MethodGet, "/api/concepts/lp-maintenance/quotas?year=2025&month=12", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	qs := decodeBody[[]QuotaDTO](t, rec)
	require.Len(t, qs, 5)
	for _, q := range qs {
		assert.Equal(t, "pending", q.Status)
		assert.Equal(t, q.BaseAmount, q.Balance)
		assert.Equal(t, "December 2025", q.PeriodDescription)
	}

	rec = s.do(http.MethodGet, "/api/generation-logs?concept_id=lp-maintenance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decodeBody[[]GenerationLogDTO](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, "manual", logs[0].Method)
	assert.Equal(t, summary.LogID, logs[0].ID)
	assert.Len(t, logs[0].UnitsAffected, 5)
}

func TestGenerateQuotas_RequestValidation(t *testing.T) {
	s := newTestServer(t)
	s.loadScenario("las-palmas")

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"month out of range", GenerateRequest{PeriodYear: 2025, PeriodMonth: 13}, http.StatusBadRequest},
		{"missing year", GenerateRequest{PeriodMonth: 1}, http.StatusBadRequest},
		{"malformed body", `{"period_year": `, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/concepts/lp-maintenance/generate", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "BAD_REQUEST", decodeBody[ErrorResponse](t, rec).Code)
		})
	}

	rec := s.do(http.MethodPost, "/api/concepts/missing/generate", GenerateRequest{PeriodYear: 2025, PeriodMonth: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestElapsedPeriods(t *testing.T) {
	// GIVEN: Las Palmas maintenance (monthly, issued on the 1st, created Jan 1st)
	s := newTestServer(t)
	s.loadScenario("las-palmas")

	// WHEN: Asking for an invalid date
	rec := s.do(http.MethodGet, "/api/concepts/lp-maintenance/elapsed?as_of=tomorrow", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// WHEN: Asking with a valid date
	rec = s.do(http.MethodGet, "/api/concepts/lp-maintenance/elapsed", nil)

	// THEN: Every unit reports the same count, priced at its own amount
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[ElapsedResponse](t, rec)
	require.Len(t, resp.Units, 5)
	count := resp.Units[0].PeriodsCount
	assert.GreaterOrEqual(t, count, 1)
	for _, u := range resp.Units {
		assert.Equal(t, count, u.PeriodsCount)
		assert.Len(t, u.Periods, count)
	}
}

// =============================================================================
// CONCEPTS AND ASSIGNMENTS
// =============================================================================

func TestCreateConcept_StoresConceptAndAssignments(t *testing.T) {
	s := newTestServer(t)
	s.seedDirectory()

	// WHEN: Creating a concept with two inline assignments
	rec := s.do(http.MethodPost, "/api/concepts", `{
		"id": "water",
		"condominium_id": "condo-1",
		"name": "Water",
		"concept_type": "maintenance",
		"is_recurring": true,
		"recurrence_period": "monthly",
		"issue_day": 5,
		"due_day": 20,
		"assignments": [
			{"scope_type": "condominium", "distribution_method": "by_aliquot", "amount": 500},
			{"scope_type": "unit", "unit_id": "a-102", "distribution_method": "fixed_per_unit", "amount": "99.999"}
		]
	}`)

	// THEN: Both are stored and read back
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[factory.ConceptJSON](t, rec)
	require.Len(t, created.Assignments, 2)
	assert.NotEmpty(t, created.Assignments[0].ID)

	rec = s.do(http.MethodGet, "/api/concepts/water", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[factory.ConceptJSON](t, rec)
	assert.Equal(t, "monthly", got.RecurrencePeriod)
	require.Len(t, got.Assignments, 2)
	assert.Equal(t, "a-102", got.Assignments[1].UnitID)
	assert.True(t, got.Assignments[1].Amount.Equal(decimal.RequireFromString("100.00")), "amounts are rounded to cents")

	// AND: The same id cannot be created twice
	rec = s.do(http.MethodPost, "/api/concepts", `{"id": "water", "condominium_id": "condo-1", "name": "Water again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateConcept_FailedAssignmentStoresNothing(t *testing.T) {
	s := newTestServer(t)
	s.seedDirectory()

	// WHEN: The second assignment points at an unknown building
	rec := s.do(http.MethodPost, "/api/concepts", `{
		"id": "broken",
		"condominium_id": "condo-1",
		"name": "Broken",
		"assignments": [
			{"scope_type": "condominium", "distribution_method": "equal_split", "amount": 100},
			{"scope_type": "building", "building_id": "Z", "distribution_method": "equal_split", "amount": 100}
		]
	}`)

	// THEN: The request fails and neither the concept nor the first assignment exist
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "assignment 1: Building not found", decodeBody[ErrorResponse](t, rec).Error)

	rec = s.do(http.MethodGet, "/api/concepts/broken", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateConcept_ValidationFailures(t *testing.T) {
	s := newTestServer(t)
	s.seedDirectory()

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing name", `{"condominium_id": "condo-1"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown condominium", `{"condominium_id": "nope", "name": "x"}`, http.StatusNotFound, "NOT_FOUND"},
		{"unit scope with split", `{"condominium_id": "condo-1", "name": "x", "assignments": [
			{"scope_type": "unit", "unit_id": "a-101", "distribution_method": "equal_split", "amount": 10}]}`,
			http.StatusBadRequest, "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/concepts", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestAssignments_CreateAndDeactivate(t *testing.T) {
	s := newTestServer(t)
	s.seedDirectory()
	rec := s.do(http.MethodPost, "/api/concepts", `{"id": "fees", "condominium_id": "condo-1", "name": "Fees"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: Assigning an equal split to building A
	rec = s.do(http.MethodPost, "/api/concepts/fees/assignments", CreateAssignmentRequest{
		ScopeType: "building", BuildingID: "A", DistributionMethod: "equal_split", Amount: decimal.NewFromInt(90),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decodeBody[AssignmentDTO](t, rec)
	assert.Equal(t, "condo-1", a.CondominiumID, "condominium comes from the concept")
	assert.Equal(t, "90.00", a.Amount)

	// THEN: A second one for the same scope conflicts
	rec = s.do(http.MethodPost, "/api/concepts/fees/assignments", CreateAssignmentRequest{
		ScopeType: "building", BuildingID: "A", DistributionMethod: "by_aliquot", Amount: decimal.NewFromInt(10),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: Missing building id is rejected by request validation
	rec = s.do(http.MethodPost, "/api/concepts/fees/assignments", CreateAssignmentRequest{
		ScopeType: "building", DistributionMethod: "equal_split", Amount: decimal.NewFromInt(10),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation failed", decodeBody[ErrorResponse](t, rec).Error)

	// WHEN: Deactivating it
	rec = s.do(http.MethodDelete, "/api/assignments/"+a.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[AssignmentDTO](t, rec).IsActive)

	// THEN: Preview has nothing to charge
	rec = s.do(http.MethodGet, "/api/concepts/fees/preview", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No active assignments for this concept", decodeBody[ErrorResponse](t, rec).Error)
}

func TestDirectory_Endpoints(t *testing.T) {
	s := newTestServer(t)
	s.seedDirectory()

	rec := s.do(http.MethodGet, "/api/condominiums/condo-1/units", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	units := decodeBody[[]UnitDTO](t, rec)
	require.Len(t, units, 2)
	assert.Equal(t, "a-101", units[0].ID)
	require.NotNil(t, units[0].AliquotPercentage)

	rec = s.do(http.MethodPost, "/api/condominiums", CreateCondominiumRequest{ID: "condo-1", Name: "dup"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/api/condominiums/nope/buildings", CreateBuildingRequest{Name: "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	bad := decimal.NewFromInt(101)
	rec = s.do(http.MethodPost, "/api/buildings/A/units", CreateUnitRequest{UnitNumber: "9", AliquotPercentage: &bad})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/condominiums", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]CondominiumDTO](t, rec), 1)
}

// =============================================================================
// FORMULAS AND RULES
// =============================================================================

func TestRules_CreateOverlapUpdateAndLookup(t *testing.T) {
	s := newTestServer(t)
	s.loadScenario("las-palmas")

	fixed := decimal.NewFromInt(200)
	rec := s.do(http.MethodPost, "/api/formulas", CreateFormulaRequest{
		CondominiumID: "las-palmas", Name: "Flat", FormulaType: "fixed", FixedAmount: &fixed,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	formula := decodeBody[FormulaDTO](t, rec)

	rec = s.do(http.MethodGet, "/api/formulas/"+formula.ID+"/amount?unit_id=a-101", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "200.00", decodeBody[FormulaAmountDTO](t, rec).Amount)

	// GIVEN: A condominium-wide rule for the first half of 2025
	to := "2025-06-30"
	rec = s.do(http.MethodPost, "/api/rules", CreateRuleRequest{
		CondominiumID: "las-palmas", ConceptID: "lp-maintenance", FormulaID: formula.ID,
		Name: "H1", EffectiveFrom: "2025-01-01", EffectiveTo: &to,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rule := decodeBody[RuleDTO](t, rec)

	// WHEN: Adding an overlapping rule for the same scope
	rec = s.do(http.MethodPost, "/api/rules", CreateRuleRequest{
		CondominiumID: "las-palmas", ConceptID: "lp-maintenance", FormulaID: formula.ID,
		Name: "Overlap", EffectiveFrom: "2025-06-01",
	})

	// THEN: It conflicts
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: Bad dates fail request validation
	rec = s.do(http.MethodPost, "/api/rules", CreateRuleRequest{
		CondominiumID: "las-palmas", ConceptID: "lp-maintenance", FormulaID: formula.ID,
		Name: "Bad", EffectiveFrom: "01/07/2025",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// WHEN: Clearing the end date with an explicit null
	rec = s.do(http.MethodPut, "/api/rules/"+rule.ID, `{"effective_to": null, "updated_by": "admin"}`)

	// THEN: The rule becomes open-ended and other fields are untouched
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[RuleDTO](t, rec)
	assert.Nil(t, updated.EffectiveTo)
	assert.Equal(t, "H1", updated.Name)
	assert.Equal(t, "admin", updated.UpdatedBy)

	rec = s.do(http.MethodGet, "/api/rules/condominium/las-palmas/applicable?payment_concept_id=lp-maintenance&date=2030-01-01", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, rule.ID, decodeBody[RuleDTO](t, rec).ID)

	rec = s.do(http.MethodGet, "/api/rules/condominium/las-palmas/effective?date=2024-12-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]RuleDTO](t, rec))

	// WHEN: Deactivating it
	rec = s.do(http.MethodDelete, "/api/rules/"+rule.ID+"?deactivated_by=admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Only the inactive listing shows it
	rec = s.do(http.MethodGet, "/api/rules/condominium/las-palmas", nil)
	assert.Empty(t, decodeBody[[]RuleDTO](t, rec))
	rec = s.do(http.MethodGet, "/api/rules/condominium/las-palmas?include_inactive=true", nil)
	assert.Len(t, decodeBody[[]RuleDTO](t, rec), 1)

	rec = s.do(http.MethodGet, "/api/rules/condominium/las-palmas/applicable?payment_concept_id=lp-maintenance", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateQuotas_FromRules(t *testing.T) {
	// GIVEN: Flat 120 for everyone, and a per-unit table for tower B from June
	s := newTestServer(t)
	s.loadScenario("formula-rules")
	year := time.Now().Year()

	generate := func(month int) GenerationSummaryDTO {
		t.Helper()
		rec := s.do(http.MethodPost, "/api/concepts/lp-maintenance/generate", GenerateRequest{
			PeriodYear: year, PeriodMonth: month, GeneratedBy: "admin", Source: "rules",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decodeBody[GenerationSummaryDTO](t, rec)
	}
	amounts := func(summary GenerationSummaryDTO) map[string]string {
		out := map[string]string{}
		for _, c := range summary.UnitDetails {
			out[c.UnitID] = c.BaseAmount
			assert.NotEmpty(t, c.SourceRuleID)
			assert.Empty(t, c.SourceAssignmentID)
		}
		return out
	}

	// WHEN: Generating March and July
	march := generate(3)
	july := generate(7)

	// THEN: The assignments are not consulted; tower B switches rules in June
	assert.Equal(t, map[string]string{
		"a-101": "120.00", "a-102": "120.00", "b-101": "120.00", "b-102": "120.00", "b-103": "120.00",
	}, amounts(march))
	assert.Equal(t, map[string]string{
		"a-101": "120.00", "a-102": "120.00", "b-101": "180.00", "b-102": "140.00", "b-103": "95.50",
	}, amounts(july))
	assert.Equal(t, "655.50", july.TotalAmount)

	rec := s.do(http.MethodGet, "/api/generation-logs?concept_id=lp-maintenance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decodeBody[[]GenerationLogDTO](t, rec)
	require.Len(t, logs, 2)
	byLog := map[string]GenerationLogDTO{}
	for _, l := range logs {
		byLog[l.ID] = l
	}
	assert.Len(t, byLog[march.LogID].RuleIDs, 1)
	assert.Len(t, byLog[july.LogID].RuleIDs, 2)
	assert.Len(t, byLog[july.LogID].FormulaIDs, 2)

	// AND: An unknown source fails validation
	rec = s.do(http.MethodPost, "/api/concepts/lp-maintenance/generate", GenerateRequest{PeriodYear: year, PeriodMonth: 8, Source: "magic"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFormulaAmount_ExpressionUsesUnitAttributes(t *testing.T) {
	// GIVEN: Las Palmas, where a-101 holds 30% over 85.5 m2 with one parking space
	s := newTestServer(t)
	s.loadScenario("las-palmas")
	rec := s.do(http.MethodPost, "/api/formulas", CreateFormulaRequest{
		CondominiumID: "las-palmas", Name: "Area and parking", FormulaType: "expression",
		Expression: "base_rate * aliquot_percentage / 100 + area_m2 * 0.5 + parking_spaces * 15",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	formula := decodeBody[FormulaDTO](t, rec)

	// WHEN
	rec = s.do(http.MethodGet, "/api/formulas/"+formula.ID+"/amount?unit_id=a-101&base_rate=1000", nil)

	// THEN: 300 + 42.75 + 15
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "357.75", decodeBody[FormulaAmountDTO](t, rec).Amount)

	rec = s.do(http.MethodGet, "/api/formulas/"+formula.ID+"/amount?unit_id=a-101&base_rate=lots", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "base_rate must be a number", decodeBody[ErrorResponse](t, rec).Error)

	rec = s.do(http.MethodPost, "/api/formulas", CreateFormulaRequest{
		CondominiumID: "las-palmas", Name: "Bad", FormulaType: "expression", Expression: "area_m2 * bonus",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUnit_StoresExpressionAttributes(t *testing.T) {
	s := newTestServer(t)
	s.seedDirectory()
	area := decimal.RequireFromString("72.5")
	floor := 4

	rec := s.do(http.MethodPost, "/api/buildings/A/units", CreateUnitRequest{
		ID: "a-401", UnitNumber: "401", AreaM2: &area, Floor: &floor, ParkingSpaces: 2,
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	unit := decodeBody[UnitDTO](t, rec)
	require.NotNil(t, unit.AreaM2)
	assert.Equal(t, "72.5", *unit.AreaM2)
	assert.Equal(t, &floor, unit.Floor)
	assert.Equal(t, 2, unit.ParkingSpaces)

	negative := decimal.NewFromInt(-1)
	rec = s.do(http.MethodPost, "/api/buildings/A/units", CreateUnitRequest{ID: "a-402", UnitNumber: "402", AreaM2: &negative})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFormulaAmount_RequiresUnit(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/formulas/any/amount", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unit_id is required", decodeBody[ErrorResponse](t, rec).Error)
}

// =============================================================================
// INTERNAL ERRORS
// =============================================================================

// droppingStore accepts condominium writes without keeping them.
type droppingStore struct {
	*memory.Memory
}

func (droppingStore) SaveCondominium(context.Context, quotas.Condominium) error { return nil }

func TestCreateCondominium_MissingAfterSaveIsInternal(t *testing.T) {
	// GIVEN: A store that loses the condominium it was asked to save
	logger, hook := logtest.NewNullLogger()
	h := NewHandler(droppingStore{memory.New()}, logrus.NewEntry(logger))
	s := &testServer{t: t, h: h, router: NewRouter(h, nil)}

	// WHEN: Creating a condominium
	rec := s.do(http.MethodPost, "/api/condominiums", CreateCondominiumRequest{ID: "condo-1", Name: "Los Robles"})

	// THEN: 500 with the cause logged, not a wrapped nil error
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeBody[ErrorResponse](t, rec).Error)

	var logged error
	for _, e := range hook.AllEntries() {
		if err, ok := e.Data[logrus.ErrorKey].(error); ok {
			logged = err
		}
	}
	require.Error(t, logged)
	assert.Equal(t, "condominium condo-1 missing after save", logged.Error())
}
