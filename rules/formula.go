package rules

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/quota-engine/generic"
	"github.com/warp/quota-engine/quotas"
)

// =============================================================================
// FORMULAS - How much a unit owes
// =============================================================================

// ExpressionVariables are the names an expression formula may reference.
var ExpressionVariables = []string{
	"base_rate",
	"aliquot_percentage",
	"area_m2",
	"unit_count",
	"floor",
	"parking_spaces",
}

type CreateFormulaInput struct {
	CondominiumID string
	Name          string
	Description   string
	FormulaType   FormulaType
	FixedAmount   *decimal.Decimal
	UnitAmounts   map[string]decimal.Decimal
	Expression    string
	CreatedBy     string
}

// CreateFormula validates a formula's configuration for its type and
// stores it active.
func (r *Resolver) CreateFormula(ctx context.Context, in CreateFormulaInput) (*QuotaFormula, error) {
	if err := r.requireCondominium(ctx, in.CondominiumID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, generic.BadRequest("Formula name is required")
	}

	f := QuotaFormula{
		ID:            uuid.NewString(),
		CondominiumID: in.CondominiumID,
		Name:          in.Name,
		Description:   in.Description,
		FormulaType:   in.FormulaType,
		IsActive:      true,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     r.now().UTC(),
	}

	switch in.FormulaType {
	case FormulaFixed:
		if in.FixedAmount == nil {
			return nil, generic.BadRequest("Fixed amount is required for fixed formula type")
		}
		if in.FixedAmount.IsNegative() {
			return nil, generic.BadRequest("Fixed amount must be a valid non-negative number")
		}
		amount := generic.RoundCurrency(*in.FixedAmount)
		f.FixedAmount = &amount
	case FormulaPerUnit:
		if len(in.UnitAmounts) == 0 {
			return nil, generic.BadRequest("Unit amounts are required for per_unit formula type")
		}
		f.UnitAmounts = make(map[string]decimal.Decimal, len(in.UnitAmounts))
		for unitID, amount := range in.UnitAmounts {
			if amount.IsNegative() {
				return nil, generic.BadRequest(fmt.Sprintf("Unit amount for %s must be non-negative", unitID))
			}
			f.UnitAmounts[unitID] = generic.RoundCurrency(amount)
		}
	case FormulaExpression:
		if strings.TrimSpace(in.Expression) == "" {
			return nil, generic.BadRequest("Expression is required for expression formula type")
		}
		if err := ValidateExpression(in.Expression); err != nil {
			return nil, err
		}
		f.Expression = in.Expression
	default:
		return nil, generic.BadRequest(fmt.Sprintf("invalid formula type %q", in.FormulaType))
	}

	if err := r.store.SaveFormula(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to save formula: %w", err)
	}
	return &f, nil
}

// Variables are caller-supplied inputs to expression formulas, keyed by
// ExpressionVariables name. Unknown names are ignored.
type Variables map[string]float64

// CalculateAmount returns what a formula charges one unit. vars only
// matter for expression formulas.
func (r *Resolver) CalculateAmount(ctx context.Context, formulaID, unitID string, vars Variables) (decimal.Decimal, error) {
	f, err := r.activeFormula(ctx, formulaID)
	if err != nil {
		return decimal.Zero, err
	}

	unit, err := r.store.GetUnit(ctx, unitID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load unit: %w", err)
	}
	if unit == nil {
		return decimal.Zero, generic.NotFound("Unit not found")
	}
	if unit.CondominiumID != f.CondominiumID {
		return decimal.Zero, generic.BadRequest("Unit does not belong to the formula's condominium")
	}

	return amountFor(*f, *unit, vars)
}

func (r *Resolver) activeFormula(ctx context.Context, formulaID string) (*QuotaFormula, error) {
	f, err := r.store.GetFormula(ctx, formulaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quota formula: %w", err)
	}
	if f == nil {
		return nil, generic.NotFound("Quota formula not found")
	}
	if !f.IsActive {
		return nil, generic.BadRequest("Quota formula is not active")
	}
	return f, nil
}

func amountFor(f QuotaFormula, unit quotas.Unit, vars Variables) (decimal.Decimal, error) {
	switch f.FormulaType {
	case FormulaFixed:
		if f.FixedAmount == nil {
			return decimal.Zero, generic.BadRequest("Formula has no fixed amount")
		}
		return *f.FixedAmount, nil
	case FormulaPerUnit:
		amount, ok := f.UnitAmounts[unit.ID]
		if !ok {
			return decimal.Zero, generic.BadRequest("No amount configured for this unit in the formula")
		}
		return amount, nil
	case FormulaExpression:
		return evaluateExpression(f.Expression, expressionEnv(unit, vars))
	default:
		return decimal.Zero, generic.BadRequest(fmt.Sprintf("invalid formula type %q", f.FormulaType))
	}
}

// =============================================================================
// EXPRESSIONS
// =============================================================================

// expressionEnv binds every variable. Unit attributes that are not set
// evaluate as 0; unit_count defaults to 1.
func expressionEnv(unit quotas.Unit, vars Variables) map[string]any {
	env := map[string]any{
		"base_rate":          0.0,
		"aliquot_percentage": optionalFloat(unit.AliquotPercentage),
		"area_m2":            optionalFloat(unit.AreaM2),
		"unit_count":         1.0,
		"floor":              0.0,
		"parking_spaces":     float64(unit.ParkingSpaces),
	}
	if unit.Floor != nil {
		env["floor"] = float64(*unit.Floor)
	}
	for name, v := range vars {
		if _, ok := env[name]; ok {
			env[name] = v
		}
	}
	return env
}

func optionalFloat(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}

// compileExpression type-checks against ExpressionVariables. The floor
// builtin is disabled so the name resolves to the unit's floor.
func compileExpression(expression string) (*vm.Program, error) {
	env := make(map[string]any, len(ExpressionVariables))
	for _, name := range ExpressionVariables {
		env[name] = 0.0
	}
	return expr.Compile(expression, expr.Env(env), expr.AsFloat64(), expr.DisableBuiltin("floor"))
}

func evaluateExpression(expression string, env map[string]any) (decimal.Decimal, error) {
	program, err := compileExpression(expression)
	if err != nil {
		return decimal.Zero, generic.BadRequest(fmt.Sprintf("Expression evaluation failed: %v", err))
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return decimal.Zero, generic.BadRequest(fmt.Sprintf("Expression evaluation failed: %v", err))
	}

	result, ok := out.(float64)
	if !ok || math.IsNaN(result) || math.IsInf(result, 0) {
		return decimal.Zero, generic.BadRequest("Formula calculation resulted in invalid number")
	}
	if result < 0 {
		return decimal.Zero, generic.BadRequest("Formula calculation resulted in negative amount")
	}
	return generic.RoundCurrency(decimal.NewFromFloat(result)), nil
}

// ValidateExpression rejects expressions that do not compile to a number
// over ExpressionVariables.
func ValidateExpression(expression string) error {
	if _, err := compileExpression(expression); err != nil {
		return generic.BadRequest(fmt.Sprintf("Invalid expression: %v", err))
	}
	return nil
}
