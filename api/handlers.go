/*
handlers.go - HTTP API handlers for the quota engine

PURPOSE:
  Exposes the quota engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the quotas and rules services.

ENDPOINTS:
  Directory:
    GET    /api/condominiums                   List condominiums
    POST   /api/condominiums                   Create condominium
    POST   /api/condominiums/{id}/buildings    Create building
    GET    /api/condominiums/{id}/units        Unit roster
    POST   /api/buildings/{id}/units           Create unit

  Concepts:
    POST   /api/concepts                       Create concept from JSON definition
    GET    /api/concepts/{id}                  Concept with its assignments
    GET    /api/concepts/{id}/preview          Resolved per-unit charges
    GET    /api/concepts/{id}/elapsed?as_of=   Elapsed periods per unit
    POST   /api/concepts/{id}/assignments      Add an assignment
    DELETE /api/assignments/{id}               Deactivate an assignment

  Generation:
    POST   /api/concepts/{id}/generate         Generate quotas for a period
                                               (source: assignments or rules)
    GET    /api/concepts/{id}/quotas           List generated quotas
    GET    /api/generation-logs                Generation audit, newest first
    POST   /api/scheduler/run                  Run scheduled generation now

  Rules:
    POST   /api/formulas                       Create formula
    GET    /api/formulas/{id}/amount?unit_id=  Formula amount for a unit
                                               (plus optional base_rate=...)
    POST   /api/rules                          Create rule
    PUT    /api/rules/{id}                     Update rule
    DELETE /api/rules/{id}                     Deactivate rule
    GET    /api/rules/condominium/{id}         List rules
    GET    /api/rules/condominium/{id}/applicable?payment_concept_id=&date=&building_id=
    GET    /api/rules/condominium/{id}/effective?date=

ERROR HANDLING:
  Engine errors map to HTTP status by category (see errors.go):
  - 400: BAD_REQUEST, validation errors, invalid input
  - 404: NOT_FOUND
  - 409: CONFLICT (period already generated, overlapping rule)
  - 500: Internal errors (logged, details hidden)

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/quota-engine/factory"
	"github.com/warp/quota-engine/generic"
	"github.com/warp/quota-engine/logging"
	"github.com/warp/quota-engine/quotas"
	"github.com/warp/quota-engine/rules"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the API needs from persistence. Both store/sqlite
// and store/memory satisfy it.
type Store interface {
	quotas.TxStore
	rules.Store
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     Store
	Concepts  *factory.ConceptFactory
	Generator *quotas.Generator
	Assigner  *quotas.Assigner
	Rules     *rules.Resolver

	validate *validator.Validate
	log      *logrus.Entry
}

// NewHandler creates a new handler with the given store. A nil log uses
// the shared logger.
func NewHandler(store Store, log *logrus.Entry) *Handler {
	if log == nil {
		log = logging.Component("api")
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		Store:     store,
		Concepts:  factory.NewConceptFactory(),
		Generator: quotas.NewGenerator(store, quotas.WithLogger(log.WithField("component", "generator"))),
		Assigner:  quotas.NewAssigner(store),
		Rules:     rules.NewResolver(store),
		validate:  v,
		log:       log,
	}
}

// =============================================================================
// DIRECTORY HANDLERS
// =============================================================================

func (h *Handler) ListCondominiums(w http.ResponseWriter, r *http.Request) {
	condos, err := h.Store.ListCondominiums(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]CondominiumDTO, len(condos))
	for i, c := range condos {
		out[i] = toCondominiumDTO(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateCondominium(w http.ResponseWriter, r *http.Request) {
	var req CreateCondominiumRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if existing, err := h.Store.GetCondominium(ctx, req.ID); err != nil {
		h.writeDomainError(w, r, err)
		return
	} else if existing != nil {
		h.writeDomainError(w, r, generic.Conflict("Condominium already exists"))
		return
	}

	condo := quotas.Condominium{ID: req.ID, Name: req.Name, Code: req.Code, IsActive: true}
	if err := h.Store.SaveCondominium(ctx, condo); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	saved, err := h.Store.GetCondominium(ctx, condo.ID)
	if err != nil {
		h.writeDomainError(w, r, fmt.Errorf("failed to reload condominium: %w", err))
		return
	}
	if saved == nil {
		h.writeDomainError(w, r, fmt.Errorf("condominium %s missing after save", condo.ID))
		return
	}
	writeJSON(w, http.StatusCreated, toCondominiumDTO(*saved))
}

func (h *Handler) CreateBuilding(w http.ResponseWriter, r *http.Request) {
	condoID := chi.URLParam(r, "id")

	var req CreateBuildingRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	if err := h.requireCondominium(ctx, condoID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	building := quotas.Building{ID: req.ID, CondominiumID: condoID, Name: req.Name, IsActive: true}
	if err := h.Store.SaveBuilding(ctx, building); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBuildingDTO(building))
}

func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	buildingID := chi.URLParam(r, "id")

	var req CreateUnitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	building, err := h.Store.GetBuilding(ctx, buildingID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if building == nil {
		h.writeDomainError(w, r, generic.NotFound("Building not found"))
		return
	}
	if a := req.AliquotPercentage; a != nil && (a.IsNegative() || a.GreaterThan(decimal.NewFromInt(100))) {
		h.writeDomainError(w, r, generic.BadRequest("Aliquot percentage must be between 0 and 100"))
		return
	}
	if req.AreaM2 != nil && req.AreaM2.IsNegative() {
		h.writeDomainError(w, r, generic.BadRequest("Area must be non-negative"))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	unit := quotas.Unit{
		ID:                req.ID,
		BuildingID:        building.ID,
		CondominiumID:     building.CondominiumID,
		UnitNumber:        req.UnitNumber,
		AliquotPercentage: req.AliquotPercentage,
		AreaM2:            req.AreaM2,
		Floor:             req.Floor,
		ParkingSpaces:     req.ParkingSpaces,
		IsActive:          req.IsActive == nil || *req.IsActive,
	}
	if err := h.Store.SaveUnit(ctx, unit); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitDTO(unit))
}

func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	condoID := chi.URLParam(r, "id")
	ctx := r.Context()

	if err := h.requireCondominium(ctx, condoID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	units, err := h.Store.ListUnitsByCondominium(ctx, condoID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]UnitDTO, len(units))
	for i, u := range units {
		out[i] = toUnitDTO(u)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// CONCEPT HANDLERS
// =============================================================================

// CreateConcept stores a concept and its inline assignments in one
// transaction. Either everything is stored or nothing is.
func (h *Handler) CreateConcept(w http.ResponseWriter, r *http.Request) {
	var req factory.ConceptJSON
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	concept, inputs, err := h.Concepts.FromJSON(req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	assignments, err := h.storeConcept(r.Context(), concept, inputs)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.Concepts.ToJSON(*concept, assignments))
}

func (h *Handler) GetConcept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	concept, err := h.loadConcept(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	assignments, err := h.Store.ListAssignments(ctx, concept.ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Concepts.ToJSON(*concept, assignments))
}

func (h *Handler) PreviewConcept(w http.ResponseWriter, r *http.Request) {
	charges, err := h.Generator.Preview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitChargeDTOs(charges))
}

func (h *Handler) GetElapsedPeriods(w http.ResponseWriter, r *http.Request) {
	conceptID := chi.URLParam(r, "id")

	asOf, err := dateParam(r, "as_of")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	units, err := h.Generator.Elapsed(r.Context(), conceptID, asOf)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ElapsedResponse{
		ConceptID: conceptID,
		AsOf:      asOf.String(),
		Units:     toUnitElapsedDTOs(units),
	})
}

func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	conceptID := chi.URLParam(r, "id")

	var req CreateAssignmentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	scope, err := quotas.NewScope(req.ScopeType, req.BuildingID, req.UnitID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	a, err := h.Assigner.Assign(r.Context(), quotas.AssignInput{
		ConceptID:          conceptID,
		Scope:              scope,
		DistributionMethod: quotas.DistributionMethod(req.DistributionMethod),
		Amount:             generic.RoundCurrency(req.Amount),
		AssignedBy:         req.AssignedBy,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentDTO(*a))
}

func (h *Handler) DeactivateAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.Assigner.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentDTO(*a))
}

// =============================================================================
// GENERATION HANDLERS
// =============================================================================

func (h *Handler) GenerateQuotas(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	in := quotas.GenerateInput{
		ConceptID:   chi.URLParam(r, "id"),
		PeriodYear:  req.PeriodYear,
		PeriodMonth: req.PeriodMonth,
		GeneratedBy: req.GeneratedBy,
		Method:      quotas.MethodManual,
	}

	var (
		summary *quotas.GenerationSummary
		err     error
	)
	if req.Source == "rules" {
		summary, err = h.Rules.Generate(r.Context(), h.Generator, in, req.Variables)
	} else {
		summary, err = h.Generator.Generate(r.Context(), in)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSummaryDTO(summary))
}

func (h *Handler) ListQuotas(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	concept, err := h.loadConcept(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	year, err := intParam(r, "year")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	month, err := intParam(r, "month")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	qs, err := h.Store.ListQuotas(ctx, concept.ID, year, month)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]QuotaDTO, len(qs))
	for i, q := range qs {
		out[i] = toQuotaDTO(q)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ListGenerationLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.Store.ListGenerationLogs(r.Context(), r.URL.Query().Get("concept_id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]GenerationLogDTO, len(logs))
	for i, l := range logs {
		out[i] = toGenerationLogDTO(l)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// FORMULA AND RULE HANDLERS
// =============================================================================

func (h *Handler) CreateFormula(w http.ResponseWriter, r *http.Request) {
	var req CreateFormulaRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	f, err := h.Rules.CreateFormula(r.Context(), rules.CreateFormulaInput{
		CondominiumID: req.CondominiumID,
		Name:          req.Name,
		Description:   req.Description,
		FormulaType:   rules.FormulaType(req.FormulaType),
		FixedAmount:   req.FixedAmount,
		UnitAmounts:   req.UnitAmounts,
		Expression:    req.Expression,
		CreatedBy:     req.CreatedBy,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFormulaDTO(*f))
}

func (h *Handler) CalculateFormulaAmount(w http.ResponseWriter, r *http.Request) {
	formulaID := chi.URLParam(r, "id")
	unitID := r.URL.Query().Get("unit_id")
	if unitID == "" {
		h.writeDomainError(w, r, generic.BadRequest("unit_id is required"))
		return
	}

	vars, err := expressionVariables(r.URL.Query())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	amount, err := h.Rules.CalculateAmount(r.Context(), formulaID, unitID, vars)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FormulaAmountDTO{
		FormulaID: formulaID,
		UnitID:    unitID,
		Amount:    generic.FormatCurrency(amount),
	})
}

// expressionVariables reads any ExpressionVariables passed as query
// parameters, e.g. ?base_rate=10000.
func expressionVariables(q url.Values) (rules.Variables, error) {
	vars := rules.Variables{}
	for _, name := range rules.ExpressionVariables {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, generic.BadRequest(fmt.Sprintf("%s must be a number", name))
		}
		vars[name] = v
	}
	return vars, nil
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	from, err := generic.ParseDate(req.EffectiveFrom)
	if err != nil {
		h.writeDomainError(w, r, generic.BadRequest("effective_from must be YYYY-MM-DD"))
		return
	}
	to, err := parseOptionalDate("effective_to", req.EffectiveTo)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	rule, err := h.Rules.Create(r.Context(), rules.CreateRuleInput{
		CondominiumID: req.CondominiumID,
		BuildingID:    req.BuildingID,
		ConceptID:     req.ConceptID,
		FormulaID:     req.FormulaID,
		Name:          req.Name,
		Description:   req.Description,
		EffectiveFrom: from,
		EffectiveTo:   to,
		CreatedBy:     req.CreatedBy,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleDTO(*rule))
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var req UpdateRuleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	patch, err := req.toPatch()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	rule, err := h.Rules.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(*rule))
}

func (h *Handler) DeactivateRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Rules.Deactivate(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("deactivated_by"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(*rule))
}

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	includeInactive := false
	if v := r.URL.Query().Get("include_inactive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.writeDomainError(w, r, generic.BadRequest("include_inactive must be true or false"))
			return
		}
		includeInactive = b
	}

	rs, err := h.Rules.ListByCondominium(r.Context(), chi.URLParam(r, "id"), includeInactive)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTOs(rs))
}

func (h *Handler) GetApplicableRule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	conceptID := q.Get("payment_concept_id")
	if conceptID == "" {
		h.writeDomainError(w, r, generic.BadRequest("payment_concept_id is required"))
		return
	}
	date, err := dateParam(r, "date")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var buildingID *string
	if b := q.Get("building_id"); b != "" {
		buildingID = &b
	}

	rule, err := h.Rules.GetApplicable(r.Context(), chi.URLParam(r, "id"), conceptID, date, buildingID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(*rule))
}

func (h *Handler) GetEffectiveRules(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	rs, err := h.Rules.GetEffectiveForDate(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTOs(rs))
}

// toPatch converts the request's optional fields, parsing dates.
func (req UpdateRuleRequest) toPatch() (rules.RulePatch, error) {
	patch := rules.RulePatch{UpdatedBy: req.UpdatedBy, UpdateReason: req.UpdateReason}

	if req.BuildingID.Set {
		patch.BuildingID = rules.SetTo(req.BuildingID.Value)
	}
	if req.ConceptID.Set {
		patch.ConceptID = rules.SetTo(req.ConceptID.Value)
	}
	if req.FormulaID.Set {
		patch.FormulaID = rules.SetTo(req.FormulaID.Value)
	}
	if req.Name.Set {
		patch.Name = rules.SetTo(req.Name.Value)
	}
	if req.Description.Set {
		patch.Description = rules.SetTo(req.Description.Value)
	}
	if req.EffectiveFrom.Set {
		from, err := generic.ParseDate(req.EffectiveFrom.Value)
		if err != nil {
			return rules.RulePatch{}, generic.BadRequest("effective_from must be YYYY-MM-DD")
		}
		patch.EffectiveFrom = rules.SetTo(from)
	}
	if req.EffectiveTo.Set {
		to, err := parseOptionalDate("effective_to", req.EffectiveTo.Value)
		if err != nil {
			return rules.RulePatch{}, err
		}
		patch.EffectiveTo = rules.SetTo(to)
	}
	if req.IsActive.Set {
		patch.IsActive = rules.SetTo(req.IsActive.Value)
	}
	return patch, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// storeConcept checks the concept's owners and saves it with its
// assignments in one transaction.
func (h *Handler) storeConcept(ctx context.Context, concept *quotas.PaymentConcept, inputs []quotas.AssignInput) ([]quotas.Assignment, error) {
	if err := h.requireCondominium(ctx, concept.CondominiumID); err != nil {
		return nil, err
	}
	if concept.BuildingID != nil {
		if err := h.requireBuilding(ctx, concept.CondominiumID, *concept.BuildingID); err != nil {
			return nil, err
		}
	}

	var assignments []quotas.Assignment
	err := h.Store.WithTx(ctx, func(tx quotas.Store) error {
		existing, err := tx.GetConcept(ctx, concept.ID)
		if err != nil {
			return fmt.Errorf("failed to load payment concept: %w", err)
		}
		if existing != nil {
			return generic.Conflict("Payment concept already exists")
		}
		if err := tx.SaveConcept(ctx, *concept); err != nil {
			return fmt.Errorf("failed to save payment concept: %w", err)
		}

		assigner := quotas.NewAssigner(tx)
		for i, in := range inputs {
			a, err := assigner.Assign(ctx, in)
			if err != nil {
				return fmt.Errorf("assignment %d: %w", i, err)
			}
			assignments = append(assignments, *a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

func (h *Handler) requireCondominium(ctx context.Context, id string) error {
	c, err := h.Store.GetCondominium(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load condominium: %w", err)
	}
	if c == nil {
		return generic.NotFound("Condominium not found")
	}
	return nil
}

func (h *Handler) requireBuilding(ctx context.Context, condominiumID, buildingID string) error {
	b, err := h.Store.GetBuilding(ctx, buildingID)
	if err != nil {
		return fmt.Errorf("failed to load building: %w", err)
	}
	if b == nil {
		return generic.NotFound("Building not found")
	}
	if b.CondominiumID != condominiumID {
		return generic.BadRequest("Building does not belong to the specified condominium")
	}
	return nil
}

func (h *Handler) loadConcept(ctx context.Context, id string) (*quotas.PaymentConcept, error) {
	c, err := h.Store.GetConcept(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment concept: %w", err)
	}
	if c == nil {
		return nil, generic.NotFound("Payment concept not found")
	}
	return c, nil
}

// dateParam reads a YYYY-MM-DD query parameter, defaulting to today.
func dateParam(r *http.Request, name string) (generic.TimePoint, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return generic.Today(), nil
	}
	tp, err := generic.ParseDate(v)
	if err != nil {
		return generic.TimePoint{}, generic.BadRequest(fmt.Sprintf("%s must be YYYY-MM-DD", name))
	}
	return tp, nil
}

// intParam reads an optional integer query parameter; absent is zero.
func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, generic.BadRequest(fmt.Sprintf("%s must be an integer", name))
	}
	return n, nil
}

func parseOptionalDate(name string, s *string) (*generic.TimePoint, error) {
	if s == nil {
		return nil, nil
	}
	tp, err := generic.ParseDate(*s)
	if err != nil {
		return nil, generic.BadRequest(fmt.Sprintf("%s must be YYYY-MM-DD", name))
	}
	return &tp, nil
}
