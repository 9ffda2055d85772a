package quotas

import "context"

// =============================================================================
// STORE - What the quota engine reads and writes
// =============================================================================
//
// Getters return (nil, nil) when the row does not exist; services turn that
// into a NOT_FOUND error with a domain message.
//
// IMPLEMENTATIONS:
//   - store/sqlite: production
//   - store/memory: tests and demos

// Directory looks up the entities charges and rules hang off.
type Directory interface {
	GetCondominium(ctx context.Context, id string) (*Condominium, error)
	GetBuilding(ctx context.Context, id string) (*Building, error)
	GetUnit(ctx context.Context, id string) (*Unit, error)
	GetConcept(ctx context.Context, id string) (*PaymentConcept, error)
}

// Store is the full persistence contract of the quotas package.
type Store interface {
	Directory

	SaveCondominium(ctx context.Context, c Condominium) error
	ListCondominiums(ctx context.Context) ([]Condominium, error)
	SaveBuilding(ctx context.Context, b Building) error
	SaveUnit(ctx context.Context, u Unit) error

	// Rosters are ordered by building, then unit number.
	ListUnitsByCondominium(ctx context.Context, condominiumID string) ([]Unit, error)
	ListUnitsByBuilding(ctx context.Context, buildingID string) ([]Unit, error)

	SaveConcept(ctx context.Context, c PaymentConcept) error
	// ListActiveRecurringConcepts returns concepts eligible for scheduled generation.
	ListActiveRecurringConcepts(ctx context.Context) ([]PaymentConcept, error)

	// SaveAssignment inserts or replaces by ID.
	SaveAssignment(ctx context.Context, a Assignment) error
	GetAssignment(ctx context.Context, id string) (*Assignment, error)
	// ListAssignments returns every assignment of a concept, active or not,
	// in creation order.
	ListAssignments(ctx context.Context, conceptID string) ([]Assignment, error)

	QuotaExistsForPeriod(ctx context.Context, conceptID string, year, month int) (bool, error)
	// InsertQuotas writes a batch. Either every quota is written or none is.
	InsertQuotas(ctx context.Context, quotas []Quota) error
	// ListQuotas filters by period; zero year/month match any.
	ListQuotas(ctx context.Context, conceptID string, year, month int) ([]Quota, error)

	SaveGenerationLog(ctx context.Context, log GenerationLog) error
	// ListGenerationLogs returns newest first; empty conceptID matches all.
	ListGenerationLogs(ctx context.Context, conceptID string) ([]GenerationLog, error)
}

// TxStore adds transactions. If fn returns an error every write made
// through the Store passed to fn is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
