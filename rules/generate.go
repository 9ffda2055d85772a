package rules

import (
	"context"
	"fmt"
	"slices"

	"github.com/warp/quota-engine/generic"
	"github.com/warp/quota-engine/quotas"
)

// =============================================================================
// RULE-PRICED GENERATION
// =============================================================================

// QuotaWriter writes quotas from precomputed charges. *quotas.Generator
// implements it.
type QuotaWriter interface {
	GeneratePriced(ctx context.Context, in quotas.GenerateInput, pricing quotas.Pricing) (*quotas.GenerationSummary, error)
}

// Generate prices the concept's units with the rules in effect on the
// period's issue date and hands the charges to w.
func (r *Resolver) Generate(ctx context.Context, w QuotaWriter, in quotas.GenerateInput, vars Variables) (*quotas.GenerationSummary, error) {
	period, err := generic.NewBillingPeriod(in.PeriodYear, in.PeriodMonth)
	if err != nil {
		return nil, err
	}
	concept, err := r.loadConcept(ctx, in.ConceptID)
	if err != nil {
		return nil, err
	}

	issue, _ := quotas.ChargeDates(period, concept.EffectiveIssueDay(), concept.EffectiveDueDay())
	pricing, err := r.PriceByRules(ctx, *concept, issue, vars)
	if err != nil {
		return nil, err
	}
	return w.GeneratePriced(ctx, in, *pricing)
}

// PriceByRules returns one charge per active unit that a rule covers on
// date. unit_count defaults to the number of active units.
func (r *Resolver) PriceByRules(ctx context.Context, concept quotas.PaymentConcept, date generic.TimePoint, vars Variables) (*quotas.Pricing, error) {
	roster, err := r.store.ListUnitsByCondominium(ctx, concept.CondominiumID)
	if err != nil {
		return nil, fmt.Errorf("failed to load units: %w", err)
	}
	units := make([]quotas.Unit, 0, len(roster))
	for _, u := range roster {
		if u.IsActive {
			units = append(units, u)
		}
	}

	env := Variables{"unit_count": float64(len(units))}
	for name, v := range vars {
		env[name] = v
	}

	var (
		pricing    quotas.Pricing
		byBuilding = make(map[string]*GenerationRule)
		formulas   = make(map[string]*QuotaFormula)
	)
	for _, u := range units {
		rule, ok := byBuilding[u.BuildingID]
		if !ok {
			buildingID := u.BuildingID
			rule, err = r.GetApplicable(ctx, concept.CondominiumID, concept.ID, date, &buildingID)
			if err != nil && !generic.IsNotFound(err) {
				return nil, err
			}
			byBuilding[u.BuildingID] = rule
		}
		if rule == nil {
			continue
		}

		f, ok := formulas[rule.FormulaID]
		if !ok {
			if f, err = r.activeFormula(ctx, rule.FormulaID); err != nil {
				return nil, err
			}
			formulas[rule.FormulaID] = f
			pricing.FormulaIDs = append(pricing.FormulaIDs, f.ID)
		}
		if !slices.Contains(pricing.RuleIDs, rule.ID) {
			pricing.RuleIDs = append(pricing.RuleIDs, rule.ID)
		}

		amount, err := amountFor(*f, u, env)
		if err != nil {
			if generic.IsClientError(err) {
				return nil, generic.BadRequest(fmt.Sprintf("Unit %s: %s", u.UnitNumber, err.Error()))
			}
			return nil, err
		}
		pricing.Charges = append(pricing.Charges, quotas.UnitCharge{
			UnitID:            u.ID,
			UnitNumber:        u.UnitNumber,
			BuildingID:        u.BuildingID,
			AliquotPercentage: u.AliquotPercentage,
			BaseAmount:        generic.RoundCurrency(amount),
			SourceRuleID:      rule.ID,
		})
	}

	if len(pricing.Charges) == 0 {
		return nil, generic.BadRequest(fmt.Sprintf("No generation rule covers this payment concept on %s", date))
	}
	return &pricing, nil
}

// HasActiveRules reports whether any active rule targets the concept.
func (r *Resolver) HasActiveRules(ctx context.Context, concept quotas.PaymentConcept) (bool, error) {
	all, err := r.store.ListRules(ctx, concept.CondominiumID)
	if err != nil {
		return false, fmt.Errorf("failed to load rules: %w", err)
	}
	for _, rule := range all {
		if rule.IsActive && rule.ConceptID == concept.ID {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) loadConcept(ctx context.Context, id string) (*quotas.PaymentConcept, error) {
	c, err := r.store.GetConcept(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment concept: %w", err)
	}
	if c == nil {
		return nil, generic.NotFound("Payment concept not found")
	}
	return c, nil
}
