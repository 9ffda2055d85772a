package rules

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/warp/quota-engine/generic"
)

// =============================================================================
// RESOLVER - Create, update and look up generation rules
// =============================================================================

// Resolver validates rule mutations and answers which rule applies.
type Resolver struct {
	store Store
	now   func() time.Time
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

type CreateRuleInput struct {
	CondominiumID string
	BuildingID    *string
	ConceptID     string
	FormulaID     string
	Name          string
	Description   string
	EffectiveFrom generic.TimePoint
	EffectiveTo   *generic.TimePoint
	CreatedBy     string
}

// Field is an optional patch value. Set distinguishes "leave alone" from
// "set to the zero value", which matters for nullable columns.
type Field[T any] struct {
	Set   bool
	Value T
}

// SetTo returns a set field.
func SetTo[T any](v T) Field[T] { return Field[T]{Set: true, Value: v} }

// RulePatch lists the fields an update may change. Setting BuildingID or
// EffectiveTo to nil clears them.
type RulePatch struct {
	BuildingID    Field[*string]
	ConceptID     Field[string]
	FormulaID     Field[string]
	Name          Field[string]
	Description   Field[string]
	EffectiveFrom Field[generic.TimePoint]
	EffectiveTo   Field[*generic.TimePoint]
	IsActive      Field[bool]
	UpdatedBy     string
	UpdateReason  string
}

// Create validates and stores a new active rule.
func (r *Resolver) Create(ctx context.Context, in CreateRuleInput) (*GenerationRule, error) {
	if err := r.requireCondominium(ctx, in.CondominiumID); err != nil {
		return nil, err
	}
	if err := r.requireBuilding(ctx, in.CondominiumID, in.BuildingID); err != nil {
		return nil, err
	}
	if err := r.requireConcept(ctx, in.ConceptID); err != nil {
		return nil, err
	}
	if err := r.requireFormula(ctx, in.CondominiumID, in.FormulaID); err != nil {
		return nil, err
	}

	rule := GenerationRule{
		ID:            uuid.NewString(),
		CondominiumID: in.CondominiumID,
		BuildingID:    in.BuildingID,
		ConceptID:     in.ConceptID,
		FormulaID:     in.FormulaID,
		Name:          in.Name,
		Description:   in.Description,
		Effective:     generic.Interval{From: in.EffectiveFrom, To: in.EffectiveTo},
		IsActive:      true,
		CreatedBy:     in.CreatedBy,
	}
	if err := rule.Effective.Validate(); err != nil {
		return nil, generic.BadRequest("Effective from date must be before or equal to effective to date")
	}

	existing, err := r.store.ListRules(ctx, in.CondominiumID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	if conflict := findOverlap(rule, existing); conflict != nil {
		return nil, generic.Conflict("A rule already exists for this payment concept in the specified date range")
	}

	now := r.now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := r.store.SaveRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}
	return &rule, nil
}

// Update applies a patch. Changed references and the resulting date range
// are validated the same way Create validates them. Overlap with sibling
// rules is not re-checked.
func (r *Resolver) Update(ctx context.Context, ruleID string, patch RulePatch) (*GenerationRule, error) {
	rule, err := r.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}
	if rule == nil {
		return nil, generic.NotFound("Quota generation rule not found")
	}

	if patch.BuildingID.Set {
		if err := r.requireBuilding(ctx, rule.CondominiumID, patch.BuildingID.Value); err != nil {
			return nil, err
		}
		rule.BuildingID = patch.BuildingID.Value
	}
	if patch.ConceptID.Set {
		if err := r.requireConcept(ctx, patch.ConceptID.Value); err != nil {
			return nil, err
		}
		rule.ConceptID = patch.ConceptID.Value
	}
	if patch.FormulaID.Set {
		if err := r.requireFormula(ctx, rule.CondominiumID, patch.FormulaID.Value); err != nil {
			return nil, err
		}
		rule.FormulaID = patch.FormulaID.Value
	}
	if patch.Name.Set {
		rule.Name = patch.Name.Value
	}
	if patch.Description.Set {
		rule.Description = patch.Description.Value
	}
	if patch.EffectiveFrom.Set {
		rule.Effective.From = patch.EffectiveFrom.Value
	}
	if patch.EffectiveTo.Set {
		rule.Effective.To = patch.EffectiveTo.Value
	}
	if patch.IsActive.Set {
		rule.IsActive = patch.IsActive.Value
	}
	if err := rule.Effective.Validate(); err != nil {
		return nil, generic.BadRequest("Effective from date must be before or equal to effective to date")
	}

	rule.UpdatedBy = patch.UpdatedBy
	rule.UpdateReason = patch.UpdateReason
	rule.UpdatedAt = r.now().UTC()
	if err := r.store.SaveRule(ctx, *rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}
	return rule, nil
}

// Deactivate turns a rule off. It stays on record.
func (r *Resolver) Deactivate(ctx context.Context, ruleID, by string) (*GenerationRule, error) {
	return r.Update(ctx, ruleID, RulePatch{IsActive: SetTo(false), UpdatedBy: by, UpdateReason: "deactivated"})
}

// GetApplicable returns the rule that governs a concept on a date. A rule
// for buildingID wins over a condominium-wide one; among several matches
// at the same level the most recently started one wins.
func (r *Resolver) GetApplicable(ctx context.Context, condominiumID, conceptID string, date generic.TimePoint, buildingID *string) (*GenerationRule, error) {
	all, err := r.store.ListRules(ctx, condominiumID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	var buildingMatch, condoMatch *GenerationRule
	for i := range all {
		rule := &all[i]
		if !rule.IsActive || rule.ConceptID != conceptID || !rule.Effective.Contains(date) {
			continue
		}
		switch {
		case rule.IsCondominiumWide():
			condoMatch = latest(condoMatch, rule)
		case buildingID != nil && *rule.BuildingID == *buildingID:
			buildingMatch = latest(buildingMatch, rule)
		}
	}

	if buildingMatch != nil {
		return buildingMatch, nil
	}
	if condoMatch != nil {
		return condoMatch, nil
	}
	return nil, generic.NotFound("No applicable rule found for this payment concept and date")
}

// GetEffectiveForDate returns every active rule of the condominium, for
// any concept and scope, whose range contains date.
func (r *Resolver) GetEffectiveForDate(ctx context.Context, condominiumID string, date generic.TimePoint) ([]GenerationRule, error) {
	all, err := r.store.ListRules(ctx, condominiumID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	out := []GenerationRule{}
	for _, rule := range all {
		if rule.IsActive && rule.Effective.Contains(date) {
			out = append(out, rule)
		}
	}
	return out, nil
}

// ListByCondominium returns the condominium's rules ordered by start date.
func (r *Resolver) ListByCondominium(ctx context.Context, condominiumID string, includeInactive bool) ([]GenerationRule, error) {
	all, err := r.store.ListRules(ctx, condominiumID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	out := make([]GenerationRule, 0, len(all))
	for _, rule := range all {
		if includeInactive || rule.IsActive {
			out = append(out, rule)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Effective.From.Before(out[j].Effective.From)
	})
	return out, nil
}

// findOverlap returns the first active rule for the same concept and scope
// whose range shares a day with candidate.
func findOverlap(candidate GenerationRule, existing []GenerationRule) *GenerationRule {
	for i := range existing {
		e := &existing[i]
		if e.ID == candidate.ID || !e.IsActive || e.ConceptID != candidate.ConceptID {
			continue
		}
		if !e.SameScope(candidate) {
			continue
		}
		if e.Effective.Overlaps(candidate.Effective) {
			return e
		}
	}
	return nil
}

func latest(current, candidate *GenerationRule) *GenerationRule {
	if current == nil || candidate.Effective.From.After(current.Effective.From) {
		return candidate
	}
	return current
}

// =============================================================================
// REFERENCE CHECKS
// =============================================================================

func (r *Resolver) requireCondominium(ctx context.Context, id string) error {
	c, err := r.store.GetCondominium(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load condominium: %w", err)
	}
	if c == nil {
		return generic.NotFound("Condominium not found")
	}
	return nil
}

func (r *Resolver) requireBuilding(ctx context.Context, condominiumID string, buildingID *string) error {
	if buildingID == nil {
		return nil
	}
	b, err := r.store.GetBuilding(ctx, *buildingID)
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

func (r *Resolver) requireConcept(ctx context.Context, id string) error {
	c, err := r.store.GetConcept(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load payment concept: %w", err)
	}
	if c == nil {
		return generic.NotFound("Payment concept not found")
	}
	return nil
}

func (r *Resolver) requireFormula(ctx context.Context, condominiumID, formulaID string) error {
	f, err := r.store.GetFormula(ctx, formulaID)
	if err != nil {
		return fmt.Errorf("failed to load quota formula: %w", err)
	}
	if f == nil {
		return generic.NotFound("Quota formula not found")
	}
	if f.CondominiumID != condominiumID {
		return generic.BadRequest("Quota formula does not belong to the specified condominium")
	}
	if !f.IsActive {
		return generic.BadRequest("Quota formula is not active")
	}
	return nil
}
