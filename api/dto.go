/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Directory:   CondominiumDTO, BuildingDTO, UnitDTO and their create requests
  Concepts:    factory.ConceptJSON (request and response), AssignmentDTO
  Generation:  GenerateRequest, GenerationSummaryDTO, UnitChargeDTO,
               UnitElapsedDTO, QuotaDTO, GenerationLogDTO
  Rules:       FormulaDTO, RuleDTO and their create/update requests
  Scenarios:   ScenarioDTO, LoadScenarioRequest

MONEY AND DATES:
  Amounts are decimal strings with two places ("1500.00"). Request amounts
  may be JSON numbers or strings. Dates are "YYYY-MM-DD".

VALIDATION:
  Request shape (required fields, enums, date format) is checked with
  validate tags. Engine invariants are checked by the services behind the
  handlers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/concept.go: ConceptJSON type
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/quota-engine/generic"
	"github.com/warp/quota-engine/quotas"
	"github.com/warp/quota-engine/rules"
)

// =============================================================================
// DIRECTORY
// =============================================================================

type CondominiumDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateCondominiumRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name" validate:"required"`
	Code string `json:"code,omitempty"`
}

type BuildingDTO struct {
	ID            string    `json:"id"`
	CondominiumID string    `json:"condominium_id"`
	Name          string    `json:"name"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

type CreateBuildingRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name" validate:"required"`
}

type UnitDTO struct {
	ID                string  `json:"id"`
	BuildingID        string  `json:"building_id"`
	CondominiumID     string  `json:"condominium_id"`
	UnitNumber        string  `json:"unit_number"`
	AliquotPercentage *string `json:"aliquot_percentage"`
	AreaM2            *string `json:"area_m2"`
	Floor             *int    `json:"floor"`
	ParkingSpaces     int     `json:"parking_spaces"`
	IsActive          bool    `json:"is_active"`
}

// CreateUnitRequest creates a unit. A null aliquot keeps the unit out of
// by_aliquot distribution.
type CreateUnitRequest struct {
	ID                string           `json:"id,omitempty"`
	UnitNumber        string           `json:"unit_number" validate:"required"`
	AliquotPercentage *decimal.Decimal `json:"aliquot_percentage"`
	AreaM2            *decimal.Decimal `json:"area_m2,omitempty"`
	Floor             *int             `json:"floor,omitempty"`
	ParkingSpaces     int              `json:"parking_spaces,omitempty" validate:"min=0"`
	IsActive          *bool            `json:"is_active,omitempty"`
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

type AssignmentDTO struct {
	ID                 string    `json:"id"`
	ConceptID          string    `json:"concept_id"`
	CondominiumID      string    `json:"condominium_id"`
	ScopeType          string    `json:"scope_type"`
	BuildingID         *string   `json:"building_id,omitempty"`
	UnitID             *string   `json:"unit_id,omitempty"`
	DistributionMethod string    `json:"distribution_method"`
	Amount             string    `json:"amount"`
	IsActive           bool      `json:"is_active"`
	CreatedBy          string    `json:"created_by,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

type CreateAssignmentRequest struct {
	ScopeType          string          `json:"scope_type" validate:"required,oneof=condominium building unit"`
	BuildingID         string          `json:"building_id,omitempty" validate:"required_if=ScopeType building"`
	UnitID             string          `json:"unit_id,omitempty" validate:"required_if=ScopeType unit"`
	DistributionMethod string          `json:"distribution_method" validate:"required,oneof=by_aliquot equal_split fixed_per_unit"`
	Amount             decimal.Decimal `json:"amount"`
	AssignedBy         string          `json:"assigned_by,omitempty"`
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateRequest generates one period. Source "rules" prices units with
// the generation rules in effect on the issue date instead of the
// concept's assignments; base_rate and unit_count feed expression formulas.
type GenerateRequest struct {
	PeriodYear  int                `json:"period_year" validate:"required,min=1900,max=9999"`
	PeriodMonth int                `json:"period_month" validate:"required,min=1,max=12"`
	GeneratedBy string             `json:"generated_by,omitempty"`
	Source      string             `json:"source,omitempty" validate:"omitempty,oneof=assignments rules"`
	Variables   map[string]float64 `json:"variables,omitempty"`
}

type UnitChargeDTO struct {
	UnitID             string  `json:"unit_id"`
	UnitNumber         string  `json:"unit_number"`
	BuildingID         string  `json:"building_id"`
	AliquotPercentage  *string `json:"aliquot_percentage"`
	BaseAmount         string  `json:"base_amount"`
	SourceAssignmentID string  `json:"source_assignment_id,omitempty"`
	SourceRuleID       string  `json:"source_rule_id,omitempty"`
}

type GenerationSummaryDTO struct {
	ConceptID         string          `json:"concept_id"`
	PeriodYear        int             `json:"period_year"`
	PeriodMonth       int             `json:"period_month"`
	PeriodDescription string          `json:"period_description"`
	QuotasCreated     int             `json:"quotas_created"`
	TotalAmount       string          `json:"total_amount"`
	IssueDate         string          `json:"issue_date"`
	DueDate           string          `json:"due_date"`
	UnitDetails       []UnitChargeDTO `json:"unit_details"`
	LogID             string          `json:"log_id"`
}

type PeriodAmountDTO struct {
	Year   int    `json:"year"`
	Month  int    `json:"month"`
	Amount string `json:"amount"`
}

type UnitElapsedDTO struct {
	UnitChargeDTO
	PeriodsCount      int               `json:"periods_count"`
	AccumulatedAmount string            `json:"accumulated_amount"`
	Periods           []PeriodAmountDTO `json:"periods"`
}

type ElapsedResponse struct {
	ConceptID string           `json:"concept_id"`
	AsOf      string           `json:"as_of"`
	Units     []UnitElapsedDTO `json:"units"`
}

type QuotaDTO struct {
	ID                string    `json:"id"`
	ConceptID         string    `json:"concept_id"`
	UnitID            string    `json:"unit_id"`
	PeriodYear        int       `json:"period_year"`
	PeriodMonth       int       `json:"period_month"`
	PeriodDescription string    `json:"period_description"`
	BaseAmount        string    `json:"base_amount"`
	Balance           string    `json:"balance"`
	Status            string    `json:"status"`
	IssueDate         string    `json:"issue_date"`
	DueDate           string    `json:"due_date"`
	CreatedBy         string    `json:"created_by,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type GenerationLogDTO struct {
	ID            string    `json:"id"`
	ConceptID     string    `json:"concept_id"`
	PeriodYear    int       `json:"period_year"`
	PeriodMonth   int       `json:"period_month"`
	QuotasCreated int       `json:"quotas_created"`
	TotalAmount   string    `json:"total_amount"`
	UnitsAffected []string  `json:"units_affected"`
	RuleIDs       []string  `json:"rule_ids,omitempty"`
	FormulaIDs    []string  `json:"formula_ids,omitempty"`
	Method        string    `json:"generation_method"`
	GeneratedBy   string    `json:"generated_by,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// =============================================================================
// FORMULAS AND RULES
// =============================================================================

type FormulaDTO struct {
	ID            string            `json:"id"`
	CondominiumID string            `json:"condominium_id"`
	Name          string            `json:"name"`
	Description   string            `json:"description,omitempty"`
	FormulaType   string            `json:"formula_type"`
	FixedAmount   *string           `json:"fixed_amount,omitempty"`
	UnitAmounts   map[string]string `json:"unit_amounts,omitempty"`
	Expression    string            `json:"expression,omitempty"`
	IsActive      bool              `json:"is_active"`
	CreatedAt     time.Time         `json:"created_at"`
}

type CreateFormulaRequest struct {
	CondominiumID string                     `json:"condominium_id" validate:"required"`
	Name          string                     `json:"name" validate:"required"`
	Description   string                     `json:"description,omitempty"`
	FormulaType   string                     `json:"formula_type" validate:"required,oneof=fixed per_unit expression"`
	FixedAmount   *decimal.Decimal           `json:"fixed_amount,omitempty"`
	UnitAmounts   map[string]decimal.Decimal `json:"unit_amounts,omitempty"`
	Expression    string                     `json:"expression,omitempty"`
	CreatedBy     string                     `json:"created_by,omitempty"`
}

type FormulaAmountDTO struct {
	FormulaID string `json:"formula_id"`
	UnitID    string `json:"unit_id"`
	Amount    string `json:"amount"`
}

type RuleDTO struct {
	ID            string    `json:"id"`
	CondominiumID string    `json:"condominium_id"`
	BuildingID    *string   `json:"building_id"`
	ConceptID     string    `json:"payment_concept_id"`
	FormulaID     string    `json:"quota_formula_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	EffectiveFrom string    `json:"effective_from"`
	EffectiveTo   *string   `json:"effective_to"`
	IsActive      bool      `json:"is_active"`
	CreatedBy     string    `json:"created_by,omitempty"`
	UpdatedBy     string    `json:"updated_by,omitempty"`
	UpdateReason  string    `json:"update_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CreateRuleRequest struct {
	CondominiumID string  `json:"condominium_id" validate:"required"`
	BuildingID    *string `json:"building_id,omitempty"`
	ConceptID     string  `json:"payment_concept_id" validate:"required"`
	FormulaID     string  `json:"quota_formula_id" validate:"required"`
	Name          string  `json:"name" validate:"required"`
	Description   string  `json:"description,omitempty"`
	EffectiveFrom string  `json:"effective_from" validate:"required,datetime=2006-01-02"`
	EffectiveTo   *string `json:"effective_to,omitempty" validate:"omitempty,datetime=2006-01-02"`
	CreatedBy     string  `json:"created_by,omitempty"`
}

// Optional is a patch field. Set is true whenever the key is present in
// the body, including an explicit null.
type Optional[T any] struct {
	Set   bool
	Value T
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	return json.Unmarshal(data, &o.Value)
}

// UpdateRuleRequest patches a rule. Sending "building_id": null makes the
// rule condominium-wide; "effective_to": null makes it open-ended.
type UpdateRuleRequest struct {
	BuildingID    Optional[*string] `json:"building_id"`
	ConceptID     Optional[string]  `json:"payment_concept_id"`
	FormulaID     Optional[string]  `json:"quota_formula_id"`
	Name          Optional[string]  `json:"name"`
	Description   Optional[string]  `json:"description"`
	EffectiveFrom Optional[string]  `json:"effective_from"`
	EffectiveTo   Optional[*string] `json:"effective_to"`
	IsActive      Optional[bool]    `json:"is_active"`
	UpdatedBy     string            `json:"updated_by,omitempty"`
	UpdateReason  string            `json:"update_reason,omitempty"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func formatOptional(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func formatDatePtr(tp *generic.TimePoint) *string {
	if tp == nil {
		return nil
	}
	s := tp.String()
	return &s
}

func toCondominiumDTO(c quotas.Condominium) CondominiumDTO {
	return CondominiumDTO{ID: c.ID, Name: c.Name, Code: c.Code, IsActive: c.IsActive, CreatedAt: c.CreatedAt}
}

func toBuildingDTO(b quotas.Building) BuildingDTO {
	return BuildingDTO{ID: b.ID, CondominiumID: b.CondominiumID, Name: b.Name, IsActive: b.IsActive, CreatedAt: b.CreatedAt}
}

func toUnitDTO(u quotas.Unit) UnitDTO {
	return UnitDTO{
		ID:                u.ID,
		BuildingID:        u.BuildingID,
		CondominiumID:     u.CondominiumID,
		UnitNumber:        u.UnitNumber,
		AliquotPercentage: formatOptional(u.AliquotPercentage),
		AreaM2:            formatOptional(u.AreaM2),
		Floor:             u.Floor,
		ParkingSpaces:     u.ParkingSpaces,
		IsActive:          u.IsActive,
	}
}

func toAssignmentDTO(a quotas.Assignment) AssignmentDTO {
	scopeType, buildingID, unitID := quotas.ScopeColumns(a.Scope)
	return AssignmentDTO{
		ID:                 a.ID,
		ConceptID:          a.ConceptID,
		CondominiumID:      a.CondominiumID,
		ScopeType:          scopeType,
		BuildingID:         buildingID,
		UnitID:             unitID,
		DistributionMethod: string(a.DistributionMethod),
		Amount:             generic.FormatCurrency(a.Amount),
		IsActive:           a.IsActive,
		CreatedBy:          a.CreatedBy,
		CreatedAt:          a.CreatedAt,
	}
}

func toUnitChargeDTOs(charges []quotas.UnitCharge) []UnitChargeDTO {
	out := make([]UnitChargeDTO, len(charges))
	for i, c := range charges {
		out[i] = UnitChargeDTO{
			UnitID:             c.UnitID,
			UnitNumber:         c.UnitNumber,
			BuildingID:         c.BuildingID,
			AliquotPercentage:  formatOptional(c.AliquotPercentage),
			BaseAmount:         generic.FormatCurrency(c.BaseAmount),
			SourceAssignmentID: c.SourceAssignmentID,
			SourceRuleID:       c.SourceRuleID,
		}
	}
	return out
}

func toSummaryDTO(s *quotas.GenerationSummary) GenerationSummaryDTO {
	return GenerationSummaryDTO{
		ConceptID:         s.ConceptID,
		PeriodYear:        s.Period.Year,
		PeriodMonth:       int(s.Period.Month),
		PeriodDescription: s.Period.Description(),
		QuotasCreated:     s.QuotasCreated,
		TotalAmount:       generic.FormatCurrency(s.TotalAmount),
		IssueDate:         s.IssueDate.String(),
		DueDate:           s.DueDate.String(),
		UnitDetails:       toUnitChargeDTOs(s.UnitDetails),
		LogID:             s.LogID,
	}
}

func toUnitElapsedDTOs(units []quotas.UnitElapsed) []UnitElapsedDTO {
	out := make([]UnitElapsedDTO, len(units))
	for i, u := range units {
		periods := make([]PeriodAmountDTO, len(u.Elapsed.Periods))
		for j, p := range u.Elapsed.Periods {
			periods[j] = PeriodAmountDTO{Year: p.Year, Month: p.Month, Amount: generic.FormatCurrency(p.Amount)}
		}
		out[i] = UnitElapsedDTO{
			UnitChargeDTO:     toUnitChargeDTOs([]quotas.UnitCharge{u.UnitCharge})[0],
			PeriodsCount:      u.Elapsed.PeriodsCount,
			AccumulatedAmount: generic.FormatCurrency(u.Elapsed.AccumulatedAmount),
			Periods:           periods,
		}
	}
	return out
}

func toQuotaDTO(q quotas.Quota) QuotaDTO {
	return QuotaDTO{
		ID:                q.ID,
		ConceptID:         q.ConceptID,
		UnitID:            q.UnitID,
		PeriodYear:        q.PeriodYear,
		PeriodMonth:       q.PeriodMonth,
		PeriodDescription: q.PeriodDescription,
		BaseAmount:        generic.FormatCurrency(q.BaseAmount),
		Balance:           generic.FormatCurrency(q.Balance),
		Status:            string(q.Status),
		IssueDate:         q.IssueDate.String(),
		DueDate:           q.DueDate.String(),
		CreatedBy:         q.CreatedBy,
		CreatedAt:         q.CreatedAt,
	}
}

func toGenerationLogDTO(l quotas.GenerationLog) GenerationLogDTO {
	units := l.UnitsAffected
	if units == nil {
		units = []string{}
	}
	return GenerationLogDTO{
		ID:            l.ID,
		ConceptID:     l.ConceptID,
		PeriodYear:    l.PeriodYear,
		PeriodMonth:   l.PeriodMonth,
		QuotasCreated: l.QuotasCreated,
		TotalAmount:   generic.FormatCurrency(l.TotalAmount),
		UnitsAffected: units,
		RuleIDs:       l.RuleIDs,
		FormulaIDs:    l.FormulaIDs,
		Method:        string(l.Method),
		GeneratedBy:   l.GeneratedBy,
		GeneratedAt:   l.GeneratedAt,
	}
}

func toFormulaDTO(f rules.QuotaFormula) FormulaDTO {
	dto := FormulaDTO{
		ID:            f.ID,
		CondominiumID: f.CondominiumID,
		Name:          f.Name,
		Description:   f.Description,
		FormulaType:   string(f.FormulaType),
		Expression:    f.Expression,
		IsActive:      f.IsActive,
		CreatedAt:     f.CreatedAt,
	}
	if f.FixedAmount != nil {
		s := generic.FormatCurrency(*f.FixedAmount)
		dto.FixedAmount = &s
	}
	if len(f.UnitAmounts) > 0 {
		dto.UnitAmounts = make(map[string]string, len(f.UnitAmounts))
		for unitID, amount := range f.UnitAmounts {
			dto.UnitAmounts[unitID] = generic.FormatCurrency(amount)
		}
	}
	return dto
}

func toRuleDTO(r rules.GenerationRule) RuleDTO {
	return RuleDTO{
		ID:            r.ID,
		CondominiumID: r.CondominiumID,
		BuildingID:    r.BuildingID,
		ConceptID:     r.ConceptID,
		FormulaID:     r.FormulaID,
		Name:          r.Name,
		Description:   r.Description,
		EffectiveFrom: r.Effective.From.String(),
		EffectiveTo:   formatDatePtr(r.Effective.To),
		IsActive:      r.IsActive,
		CreatedBy:     r.CreatedBy,
		UpdatedBy:     r.UpdatedBy,
		UpdateReason:  r.UpdateReason,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toRuleDTOs(rs []rules.GenerationRule) []RuleDTO {
	out := make([]RuleDTO, len(rs))
	for i, r := range rs {
		out[i] = toRuleDTO(r)
	}
	return out
}
