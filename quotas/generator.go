package quotas

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/quota-engine/generic"
	"github.com/warp/quota-engine/logging"
)

// =============================================================================
// GENERATOR - Charge generation orchestrator
// =============================================================================

// GenerateInput identifies one generation run.
type GenerateInput struct {
	ConceptID   string
	PeriodYear  int
	PeriodMonth int
	GeneratedBy string
	Method      GenerationMethod // defaults to manual
}

// GenerationSummary is the result of a successful run.
type GenerationSummary struct {
	ConceptID     string
	Period        generic.BillingPeriod
	QuotasCreated int
	TotalAmount   decimal.Decimal
	IssueDate     generic.TimePoint
	DueDate       generic.TimePoint
	UnitDetails   []UnitCharge
	LogID         string
}

// Generator writes quotas for a concept and period.
type Generator struct {
	store TxStore
	now   func() time.Time
	log   *logrus.Entry
}

type GeneratorOption func(*Generator)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// WithLogger overrides the log entry.
func WithLogger(log *logrus.Entry) GeneratorOption {
	return func(g *Generator) { g.log = log }
}

func NewGenerator(store TxStore, opts ...GeneratorOption) *Generator {
	g := &Generator{
		store: store,
		now:   time.Now,
		log:   logging.Component("generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// chargePlan is everything a run needs before it writes.
type chargePlan struct {
	concept    *PaymentConcept
	charges    []UnitCharge
	ruleIDs    []string
	formulaIDs []string
}

// Pricing is a set of unit charges computed outside the generator, with
// the rules and formulas that produced them.
type Pricing struct {
	Charges    []UnitCharge
	RuleIDs    []string
	FormulaIDs []string
}

// planFunc loads and validates a run against a store view.
type planFunc func(ctx context.Context, store Store, period *generic.BillingPeriod) (*chargePlan, error)

// Generate creates one pending quota per resolved unit for the period.
//
// Validation runs against the store first. The same checks are then
// repeated inside the transaction so the rows written reflect the state
// the transaction sees; a failure at any point leaves no quotas behind.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (*GenerationSummary, error) {
	return g.run(ctx, in, func(ctx context.Context, store Store, period *generic.BillingPeriod) (*chargePlan, error) {
		return g.plan(ctx, store, in.ConceptID, period)
	})
}

// GeneratePriced creates quotas from charges priced elsewhere, such as by
// generation rules. The concept and duplicate-period checks still run
// inside the transaction; assignments are not consulted.
func (g *Generator) GeneratePriced(ctx context.Context, in GenerateInput, pricing Pricing) (*GenerationSummary, error) {
	return g.run(ctx, in, func(ctx context.Context, store Store, period *generic.BillingPeriod) (*chargePlan, error) {
		concept, err := checkConcept(ctx, store, in.ConceptID, period)
		if err != nil {
			return nil, err
		}
		if len(pricing.Charges) == 0 {
			return nil, generic.BadRequest("No units to generate charges for")
		}
		return &chargePlan{
			concept:    concept,
			charges:    pricing.Charges,
			ruleIDs:    pricing.RuleIDs,
			formulaIDs: pricing.FormulaIDs,
		}, nil
	})
}

func (g *Generator) run(ctx context.Context, in GenerateInput, plan planFunc) (*GenerationSummary, error) {
	period, err := generic.NewBillingPeriod(in.PeriodYear, in.PeriodMonth)
	if err != nil {
		return nil, err
	}
	if in.Method == "" {
		in.Method = MethodManual
	}

	p, err := plan(ctx, g.store, &period)
	if err != nil {
		return nil, err
	}
	if err := requirePositiveCharges(p.charges); err != nil {
		return nil, err
	}

	var summary *GenerationSummary
	err = g.store.WithTx(ctx, func(tx Store) error {
		p, err := plan(ctx, tx, &period)
		if err != nil {
			return err
		}
		if err := requirePositiveCharges(p.charges); err != nil {
			return err
		}

		issue, due := ChargeDates(period, p.concept.EffectiveIssueDay(), p.concept.EffectiveDueDay())
		now := g.now().UTC()

		quotas := make([]Quota, len(p.charges))
		units := make([]string, len(p.charges))
		for i, c := range p.charges {
			quotas[i] = Quota{
				ID:                uuid.NewString(),
				ConceptID:         p.concept.ID,
				UnitID:            c.UnitID,
				PeriodYear:        period.Year,
				PeriodMonth:       int(period.Month),
				PeriodDescription: period.Description(),
				BaseAmount:        c.BaseAmount,
				Balance:           c.BaseAmount,
				Status:            QuotaPending,
				IssueDate:         issue,
				DueDate:           due,
				CreatedBy:         in.GeneratedBy,
				CreatedAt:         now,
			}
			units[i] = c.UnitID
		}
		if err := tx.InsertQuotas(ctx, quotas); err != nil {
			return fmt.Errorf("failed to insert quotas: %w", err)
		}

		total := TotalAmount(p.charges)
		entry := GenerationLog{
			ID:            uuid.NewString(),
			ConceptID:     p.concept.ID,
			PeriodYear:    period.Year,
			PeriodMonth:   int(period.Month),
			QuotasCreated: len(quotas),
			TotalAmount:   total,
			UnitsAffected: units,
			RuleIDs:       p.ruleIDs,
			FormulaIDs:    p.formulaIDs,
			Method:        in.Method,
			GeneratedBy:   in.GeneratedBy,
			GeneratedAt:   now,
		}
		if err := tx.SaveGenerationLog(ctx, entry); err != nil {
			return fmt.Errorf("failed to save generation log: %w", err)
		}

		summary = &GenerationSummary{
			ConceptID:     p.concept.ID,
			Period:        period,
			QuotasCreated: len(quotas),
			TotalAmount:   total,
			IssueDate:     issue,
			DueDate:       due,
			UnitDetails:   p.charges,
			LogID:         entry.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.log.WithFields(logrus.Fields{
		"concept_id": summary.ConceptID,
		"period":     period.String(),
		"quotas":     summary.QuotasCreated,
		"total":      generic.FormatCurrency(summary.TotalAmount),
		"method":     in.Method,
		"rules":      len(p.ruleIDs),
	}).Info("generated quotas")

	return summary, nil
}

// requirePositiveCharges keeps zero and negative quotas out of the ledger.
func requirePositiveCharges(charges []UnitCharge) error {
	for _, c := range charges {
		if !c.BaseAmount.IsPositive() {
			return generic.BadRequest(fmt.Sprintf("Charge for unit %s must be greater than zero, got %s",
				c.UnitNumber, generic.FormatCurrency(c.BaseAmount)))
		}
	}
	return nil
}

// Preview resolves a concept's current unit charges without writing.
func (g *Generator) Preview(ctx context.Context, conceptID string) ([]UnitCharge, error) {
	p, err := g.plan(ctx, g.store, conceptID, nil)
	if err != nil {
		return nil, err
	}
	return p.charges, nil
}

// Elapsed resolves a concept's unit charges and runs period accounting on
// each of them as of asOf.
func (g *Generator) Elapsed(ctx context.Context, conceptID string, asOf generic.TimePoint) ([]UnitElapsed, error) {
	p, err := g.plan(ctx, g.store, conceptID, nil)
	if err != nil {
		return nil, err
	}
	return ElapsedForConcept(*p.concept, p.charges, asOf), nil
}

// plan loads and validates everything a run needs. With a nil period the
// duplicate-period check is skipped.
func (g *Generator) plan(ctx context.Context, store Store, conceptID string, period *generic.BillingPeriod) (*chargePlan, error) {
	concept, err := checkConcept(ctx, store, conceptID, period)
	if err != nil {
		return nil, err
	}

	all, err := store.ListAssignments(ctx, conceptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	assignments := activeAssignments(all)
	if len(assignments) == 0 {
		return nil, generic.BadRequest("No active assignments for this concept")
	}

	roster, err := loadRoster(ctx, store, concept.CondominiumID, assignments)
	if err != nil {
		return nil, err
	}

	charges := ResolveUnitCharges(assignments, roster)
	if len(charges) == 0 {
		return nil, generic.BadRequest("No units to generate charges for")
	}

	return &chargePlan{concept: concept, charges: charges}, nil
}

// checkConcept loads an active concept and, with a period, rejects a
// period that already has quotas.
func checkConcept(ctx context.Context, store Store, conceptID string, period *generic.BillingPeriod) (*PaymentConcept, error) {
	concept, err := store.GetConcept(ctx, conceptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment concept: %w", err)
	}
	if concept == nil {
		return nil, generic.NotFound("Payment concept not found")
	}
	if !concept.IsActive {
		return nil, generic.BadRequest("Cannot generate charges for an inactive concept")
	}

	if period != nil {
		exists, err := store.QuotaExistsForPeriod(ctx, conceptID, period.Year, int(period.Month))
		if err != nil {
			return nil, fmt.Errorf("failed to check existing quotas: %w", err)
		}
		if exists {
			return nil, generic.Conflict("Charges already exist for this period")
		}
	}
	return concept, nil
}

func activeAssignments(all []Assignment) []Assignment {
	active := make([]Assignment, 0, len(all))
	for _, a := range all {
		if a.IsActive {
			active = append(active, a)
		}
	}
	return active
}

// loadRoster returns the condominium's units when any assignment is
// condominium- or unit-scoped, otherwise only the units of the buildings
// the assignments reference.
func loadRoster(ctx context.Context, store Store, condominiumID string, assignments []Assignment) ([]Unit, error) {
	var buildings []string
	seen := make(map[string]bool)
	for _, a := range assignments {
		b, ok := a.Scope.(BuildingScope)
		if !ok {
			units, err := store.ListUnitsByCondominium(ctx, condominiumID)
			if err != nil {
				return nil, fmt.Errorf("failed to load units: %w", err)
			}
			return units, nil
		}
		if !seen[b.BuildingID] {
			seen[b.BuildingID] = true
			buildings = append(buildings, b.BuildingID)
		}
	}

	var roster []Unit
	for _, id := range buildings {
		units, err := store.ListUnitsByBuilding(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load units for building %s: %w", id, err)
		}
		roster = append(roster, units...)
	}
	return roster, nil
}
