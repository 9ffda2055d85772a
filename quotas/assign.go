package quotas

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/quota-engine/generic"
)

// =============================================================================
// ASSIGNER - Attach scoped amounts to concepts
// =============================================================================

// AssignInput describes a new assignment. CondominiumID defaults to the
// concept's condominium.
type AssignInput struct {
	ConceptID          string
	CondominiumID      string
	Scope              Scope
	DistributionMethod DistributionMethod
	Amount             decimal.Decimal
	AssignedBy         string
}

// Assigner validates and stores assignments.
type Assigner struct {
	store Store
	now   func() time.Time
}

func NewAssigner(store Store) *Assigner {
	return &Assigner{store: store, now: time.Now}
}

// Assign creates an active assignment after checking that the concept is
// active, the scope target exists and belongs to the condominium, the
// method has units to act on, and no active assignment already covers the
// same scope.
func (s *Assigner) Assign(ctx context.Context, in AssignInput) (*Assignment, error) {
	a := Assignment{
		ConceptID:          in.ConceptID,
		CondominiumID:      in.CondominiumID,
		Scope:              in.Scope,
		DistributionMethod: in.DistributionMethod,
		Amount:             in.Amount,
		IsActive:           true,
		CreatedBy:          in.AssignedBy,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	concept, err := s.store.GetConcept(ctx, in.ConceptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment concept: %w", err)
	}
	if concept == nil {
		return nil, generic.NotFound("Payment concept not found")
	}
	if !concept.IsActive {
		return nil, generic.BadRequest("Cannot assign to an inactive payment concept")
	}
	if a.CondominiumID == "" {
		a.CondominiumID = concept.CondominiumID
	}
	if a.CondominiumID != concept.CondominiumID {
		return nil, generic.BadRequest("Payment concept does not belong to the specified condominium")
	}

	if err := s.validateTarget(ctx, a); err != nil {
		return nil, err
	}
	if err := s.validatePopulation(ctx, a); err != nil {
		return nil, err
	}

	existing, err := s.store.ListAssignments(ctx, a.ConceptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	for _, e := range existing {
		if e.IsActive && SameScope(e.Scope, a.Scope) {
			return nil, generic.Conflict("An assignment already exists for this scope")
		}
	}

	a.ID = uuid.NewString()
	a.CreatedAt = s.now().UTC()
	if err := s.store.SaveAssignment(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to save assignment: %w", err)
	}
	return &a, nil
}

// Deactivate turns an assignment off. It stays on record.
func (s *Assigner) Deactivate(ctx context.Context, id string) (*Assignment, error) {
	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	if a == nil {
		return nil, generic.NotFound("Assignment not found")
	}
	if !a.IsActive {
		return a, nil
	}
	a.IsActive = false
	if err := s.store.SaveAssignment(ctx, *a); err != nil {
		return nil, fmt.Errorf("failed to save assignment: %w", err)
	}
	return a, nil
}

func (s *Assigner) validateTarget(ctx context.Context, a Assignment) error {
	switch scope := a.Scope.(type) {
	case BuildingScope:
		b, err := s.store.GetBuilding(ctx, scope.BuildingID)
		if err != nil {
			return fmt.Errorf("failed to load building: %w", err)
		}
		if b == nil {
			return generic.NotFound("Building not found")
		}
		if b.CondominiumID != a.CondominiumID {
			return generic.BadRequest("Building does not belong to the specified condominium")
		}
	case UnitScope:
		u, err := s.store.GetUnit(ctx, scope.UnitID)
		if err != nil {
			return fmt.Errorf("failed to load unit: %w", err)
		}
		if u == nil {
			return generic.NotFound("Unit not found")
		}
		if !u.IsActive {
			return generic.BadRequest("Cannot assign to an inactive unit")
		}
		if u.CondominiumID != a.CondominiumID {
			return generic.BadRequest("Unit does not belong to the specified condominium")
		}
	}
	return nil
}

// validatePopulation makes sure split methods have units to split over
// and that every unit would receive at least a cent.
func (s *Assigner) validatePopulation(ctx context.Context, a Assignment) error {
	if a.DistributionMethod != DistributeByAliquot && a.DistributionMethod != DistributeEqualSplit {
		return nil
	}

	var (
		units []Unit
		err   error
	)
	if b, ok := a.Scope.(BuildingScope); ok {
		units, err = s.store.ListUnitsByBuilding(ctx, b.BuildingID)
	} else {
		units, err = s.store.ListUnitsByCondominium(ctx, a.CondominiumID)
	}
	if err != nil {
		return fmt.Errorf("failed to load units: %w", err)
	}

	var (
		keys   []string
		shares []generic.Share
	)
	for _, u := range units {
		if !u.IsActive {
			continue
		}
		keys = append(keys, u.ID)
		shares = append(shares, generic.Share{Key: u.ID, Weight: u.AliquotPercentage})
	}
	if len(keys) == 0 {
		return generic.BadRequest("No active units found for this scope")
	}

	var split generic.Allocations
	if a.DistributionMethod == DistributeByAliquot {
		split = generic.AllocateProportional(a.Amount, shares)
		if len(split) == 0 {
			return generic.BadRequest("No units have aliquot percentage set for proportional distribution")
		}
	} else {
		split = generic.AllocateEqual(a.Amount, keys)
	}
	for _, share := range split {
		if !share.Amount.IsPositive() {
			return generic.BadRequest(fmt.Sprintf("Amount %s is too small to split across %d units",
				generic.FormatCurrency(a.Amount), len(split)))
		}
	}
	return nil
}
