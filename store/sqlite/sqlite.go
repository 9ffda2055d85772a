/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements quotas.TxStore and rules.Store using SQLite. In production, the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  quotas.TxStore: Directory, concepts, assignments, quotas, generation logs
  rules.Store:    Quota formulas and generation rules

KEY TABLES:
  condominiums, buildings, units: Directory the engine charges against
  payment_concepts:               Billable definitions
  concept_assignments:            Scoped amounts per concept
  quotas:                         Generated charges
  generation_logs:                Audit row per successful run
  quota_formulas:                 Fixed / per-unit / expression formulas
  generation_rules:               Concept -> formula bindings over time

INDEXES:
  - idx_quotas_unique_period: One quota per (concept, unit, year, month).
    The generator checks first; the index is the backstop when two runs
    race for the same period.
  - idx_assignments_active_scope: One active assignment per concept and scope
  - idx_rules_condominium: Rule lookups by condominium, ordered by start

CONCURRENCY:
  The pool holds a single connection. Every statement, including reads
  issued while a WithTx callback runs, goes through it in order. Reads
  inside WithTx go through the transaction so they see its own writes.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better crash recovery.

USAGE:
  store, err := sqlite.New("./data/quotas.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  gen := quotas.NewGenerator(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - quotas/store.go: Interface definitions
  - rules/types.go: rules.Store
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/quota-engine/generic"
	"github.com/warp/quota-engine/quotas"
	"github.com/warp/quota-engine/rules"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	q  queryer
	tx *sql.Tx // set on the Store handed to a WithTx callback
}

var (
	_ quotas.TxStore = (*Store)(nil)
	_ rules.Store    = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database exists only on the connection that created it.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Directory
	CREATE TABLE IF NOT EXISTS condominiums (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS buildings (
		id TEXT PRIMARY KEY,
		condominium_id TEXT NOT NULL REFERENCES condominiums(id),
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		building_id TEXT NOT NULL REFERENCES buildings(id),
		condominium_id TEXT NOT NULL REFERENCES condominiums(id),
		unit_number TEXT NOT NULL,
		aliquot_percentage TEXT,
		area_m2 TEXT,
		floor INTEGER,
		parking_spaces INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_units_condominium
		ON units(condominium_id, building_id, unit_number);
	CREATE INDEX IF NOT EXISTS idx_units_building
		ON units(building_id, unit_number);

	-- Payment concepts (deactivated, never deleted)
	CREATE TABLE IF NOT EXISTS payment_concepts (
		id TEXT PRIMARY KEY,
		condominium_id TEXT NOT NULL REFERENCES condominiums(id),
		building_id TEXT,
		name TEXT NOT NULL,
		description TEXT,
		concept_type TEXT NOT NULL,
		is_recurring BOOLEAN NOT NULL DEFAULT 0,
		recurrence_period TEXT,
		issue_day INTEGER,
		due_day INTEGER,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	-- Assignments. building_id / unit_id are the scope target and are not
	-- foreign keys: which one is set depends on scope_type.
	CREATE TABLE IF NOT EXISTS concept_assignments (
		id TEXT PRIMARY KEY,
		concept_id TEXT NOT NULL REFERENCES payment_concepts(id),
		condominium_id TEXT NOT NULL,
		scope_type TEXT NOT NULL,
		building_id TEXT,
		unit_id TEXT,
		distribution_method TEXT NOT NULL,
		amount TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_concept
		ON concept_assignments(concept_id, created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_active_scope
		ON concept_assignments(concept_id, scope_type, COALESCE(building_id, ''), COALESCE(unit_id, ''))
		WHERE is_active = 1;

	-- Quotas
	CREATE TABLE IF NOT EXISTS quotas (
		id TEXT PRIMARY KEY,
		concept_id TEXT NOT NULL REFERENCES payment_concepts(id),
		unit_id TEXT NOT NULL REFERENCES units(id),
		period_year INTEGER NOT NULL,
		period_month INTEGER NOT NULL,
		period_description TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		balance TEXT NOT NULL,
		status TEXT NOT NULL,
		issue_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_quotas_unique_period
		ON quotas(concept_id, unit_id, period_year, period_month);
	CREATE INDEX IF NOT EXISTS idx_quotas_concept_period
		ON quotas(concept_id, period_year, period_month);

	-- Generation audit (successful runs only)
	CREATE TABLE IF NOT EXISTS generation_logs (
		id TEXT PRIMARY KEY,
		concept_id TEXT NOT NULL REFERENCES payment_concepts(id),
		period_year INTEGER NOT NULL,
		period_month INTEGER NOT NULL,
		quotas_created INTEGER NOT NULL,
		total_amount TEXT NOT NULL,
		units_json TEXT NOT NULL,
		rule_ids_json TEXT NOT NULL DEFAULT '[]',
		formula_ids_json TEXT NOT NULL DEFAULT '[]',
		method TEXT NOT NULL,
		generated_by TEXT,
		generated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_generation_logs_concept
		ON generation_logs(concept_id, generated_at DESC);

	-- Formulas and rules
	CREATE TABLE IF NOT EXISTS quota_formulas (
		id TEXT PRIMARY KEY,
		condominium_id TEXT NOT NULL REFERENCES condominiums(id),
		name TEXT NOT NULL,
		description TEXT,
		formula_type TEXT NOT NULL,
		fixed_amount TEXT,
		unit_amounts_json TEXT,
		expression TEXT,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS generation_rules (
		id TEXT PRIMARY KEY,
		condominium_id TEXT NOT NULL REFERENCES condominiums(id),
		building_id TEXT REFERENCES buildings(id),
		concept_id TEXT NOT NULL REFERENCES payment_concepts(id),
		formula_id TEXT NOT NULL REFERENCES quota_formulas(id),
		name TEXT NOT NULL,
		description TEXT,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_by TEXT,
		updated_by TEXT,
		update_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_condominium
		ON generation_rules(condominium_id, effective_from);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (quotas.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. Nested calls
// join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store quotas.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Store{db: s.db, q: sqlTx, tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// atomic runs fn in the current transaction, or in a new one.
func (s *Store) atomic(ctx context.Context, fn func(q queryer) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// DIRECTORY STORE
// =============================================================================

// SaveCondominium inserts or updates a condominium.
func (s *Store) SaveCondominium(ctx context.Context, c quotas.Condominium) error {
	query := `
		INSERT INTO condominiums (id, name, code, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			code = excluded.code,
			is_active = excluded.is_active
	`

	_, err := s.q.ExecContext(ctx, query,
		c.ID, c.Name, nullString(c.Code), c.IsActive, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save condominium: %w", err)
	}
	return nil
}

// GetCondominium retrieves a condominium by ID.
func (s *Store) GetCondominium(ctx context.Context, id string) (*quotas.Condominium, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, code, is_active, created_at
		FROM condominiums WHERE id = ?
	`, id)

	c, err := scanCondominium(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCondominiums returns all condominiums ordered by name.
func (s *Store) ListCondominiums(ctx context.Context) ([]quotas.Condominium, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, code, is_active, created_at
		FROM condominiums ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query condominiums: %w", err)
	}
	defer rows.Close()

	out := []quotas.Condominium{}
	for rows.Next() {
		c, err := scanCondominium(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCondominium(row scanner) (quotas.Condominium, error) {
	var (
		c         quotas.Condominium
		code      sql.NullString
		createdAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &code, &c.IsActive, &createdAt); err != nil {
		return c, wrapScan("condominium", err)
	}
	c.Code = code.String
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

// SaveBuilding inserts or updates a building.
func (s *Store) SaveBuilding(ctx context.Context, b quotas.Building) error {
	query := `
		INSERT INTO buildings (id, condominium_id, name, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			condominium_id = excluded.condominium_id,
			name = excluded.name,
			is_active = excluded.is_active
	`

	_, err := s.q.ExecContext(ctx, query,
		b.ID, b.CondominiumID, b.Name, b.IsActive, formatTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save building: %w", err)
	}
	return nil
}

// GetBuilding retrieves a building by ID.
func (s *Store) GetBuilding(ctx context.Context, id string) (*quotas.Building, error) {
	var (
		b         quotas.Building
		createdAt string
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, condominium_id, name, is_active, created_at
		FROM buildings WHERE id = ?
	`, id).Scan(&b.ID, &b.CondominiumID, &b.Name, &b.IsActive, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get building: %w", err)
	}
	b.CreatedAt = parseTime(createdAt)
	return &b, nil
}

// SaveUnit inserts or updates a unit.
func (s *Store) SaveUnit(ctx context.Context, u quotas.Unit) error {
	query := `
		INSERT INTO units (id, building_id, condominium_id, unit_number, aliquot_percentage,
			area_m2, floor, parking_spaces, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			building_id = excluded.building_id,
			condominium_id = excluded.condominium_id,
			unit_number = excluded.unit_number,
			aliquot_percentage = excluded.aliquot_percentage,
			area_m2 = excluded.area_m2,
			floor = excluded.floor,
			parking_spaces = excluded.parking_spaces,
			is_active = excluded.is_active
	`

	_, err := s.q.ExecContext(ctx, query,
		u.ID, u.BuildingID, u.CondominiumID, u.UnitNumber, nullDecimal(u.AliquotPercentage),
		nullDecimal(u.AreaM2), nullInt(u.Floor), u.ParkingSpaces, u.IsActive, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save unit: %w", err)
	}
	return nil
}

const unitColumns = `id, building_id, condominium_id, unit_number, aliquot_percentage,
	area_m2, floor, parking_spaces, is_active, created_at`

// GetUnit retrieves a unit by ID.
func (s *Store) GetUnit(ctx context.Context, id string) (*quotas.Unit, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = ?`, id)

	u, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUnitsByCondominium returns the condominium's units, active or not.
func (s *Store) ListUnitsByCondominium(ctx context.Context, condominiumID string) ([]quotas.Unit, error) {
	return s.queryUnits(ctx, `
		SELECT `+unitColumns+` FROM units
		WHERE condominium_id = ?
		ORDER BY building_id, unit_number
	`, condominiumID)
}

// ListUnitsByBuilding returns the building's units, active or not.
func (s *Store) ListUnitsByBuilding(ctx context.Context, buildingID string) ([]quotas.Unit, error) {
	return s.queryUnits(ctx, `
		SELECT `+unitColumns+` FROM units
		WHERE building_id = ?
		ORDER BY building_id, unit_number
	`, buildingID)
}

func (s *Store) queryUnits(ctx context.Context, query string, args ...any) ([]quotas.Unit, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	out := []quotas.Unit{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUnit(row scanner) (quotas.Unit, error) {
	var (
		u             quotas.Unit
		aliquot, area sql.NullString
		floor         sql.NullInt64
		createdAt     string
	)
	err := row.Scan(&u.ID, &u.BuildingID, &u.CondominiumID, &u.UnitNumber, &aliquot,
		&area, &floor, &u.ParkingSpaces, &u.IsActive, &createdAt)
	if err != nil {
		return u, wrapScan("unit", err)
	}
	u.AliquotPercentage = parseOptionalDecimal(aliquot)
	u.AreaM2 = parseOptionalDecimal(area)
	u.Floor = optionalInt(floor)
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

// =============================================================================
// CONCEPT STORE
// =============================================================================

const conceptColumns = `id, condominium_id, building_id, name, description, concept_type,
	is_recurring, recurrence_period, issue_day, due_day, is_active, created_by, created_at`

// SaveConcept inserts or updates a payment concept.
func (s *Store) SaveConcept(ctx context.Context, c quotas.PaymentConcept) error {
	query := `
		INSERT INTO payment_concepts (` + conceptColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			building_id = excluded.building_id,
			name = excluded.name,
			description = excluded.description,
			concept_type = excluded.concept_type,
			is_recurring = excluded.is_recurring,
			recurrence_period = excluded.recurrence_period,
			issue_day = excluded.issue_day,
			due_day = excluded.due_day,
			is_active = excluded.is_active
	`

	_, err := s.q.ExecContext(ctx, query,
		c.ID, c.CondominiumID, c.BuildingID, c.Name, nullString(c.Description), string(c.ConceptType),
		c.IsRecurring, nullString(string(c.Cadence)), nullInt(c.IssueDay), nullInt(c.DueDay),
		c.IsActive, nullString(c.CreatedBy), formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save payment concept: %w", err)
	}
	return nil
}

// GetConcept retrieves a payment concept by ID.
func (s *Store) GetConcept(ctx context.Context, id string) (*quotas.PaymentConcept, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+conceptColumns+` FROM payment_concepts WHERE id = ?`, id)

	c, err := scanConcept(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListActiveRecurringConcepts returns concepts the scheduler should visit.
func (s *Store) ListActiveRecurringConcepts(ctx context.Context) ([]quotas.PaymentConcept, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+conceptColumns+` FROM payment_concepts
		WHERE is_active = 1 AND is_recurring = 1
		ORDER BY created_at, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment concepts: %w", err)
	}
	defer rows.Close()

	out := []quotas.PaymentConcept{}
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanConcept(row scanner) (quotas.PaymentConcept, error) {
	var (
		c                        quotas.PaymentConcept
		buildingID               sql.NullString
		description, cadence, by sql.NullString
		conceptType, createdAt   string
		issueDay, dueDay         sql.NullInt64
	)
	err := row.Scan(
		&c.ID, &c.CondominiumID, &buildingID, &c.Name, &description, &conceptType,
		&c.IsRecurring, &cadence, &issueDay, &dueDay, &c.IsActive, &by, &createdAt,
	)
	if err != nil {
		return c, wrapScan("payment concept", err)
	}

	c.BuildingID = optionalString(buildingID)
	c.Description = description.String
	c.ConceptType = quotas.ConceptType(conceptType)
	c.Cadence = generic.Cadence(cadence.String)
	c.IssueDay = optionalInt(issueDay)
	c.DueDay = optionalInt(dueDay)
	c.CreatedBy = by.String
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

// =============================================================================
// ASSIGNMENT STORE
// =============================================================================

const assignmentColumns = `id, concept_id, condominium_id, scope_type, building_id, unit_id,
	distribution_method, amount, is_active, created_by, created_at`

// SaveAssignment inserts or updates an assignment. A second active
// assignment for the same concept and scope is a CONFLICT.
func (s *Store) SaveAssignment(ctx context.Context, a quotas.Assignment) error {
	scopeType, buildingID, unitID := quotas.ScopeColumns(a.Scope)

	query := `
		INSERT INTO concept_assignments (` + assignmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scope_type = excluded.scope_type,
			building_id = excluded.building_id,
			unit_id = excluded.unit_id,
			distribution_method = excluded.distribution_method,
			amount = excluded.amount,
			is_active = excluded.is_active
	`

	_, err := s.q.ExecContext(ctx, query,
		a.ID, a.ConceptID, a.CondominiumID, scopeType, buildingID, unitID,
		string(a.DistributionMethod), a.Amount.String(), a.IsActive,
		nullString(a.CreatedBy), formatTime(a.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.Conflict("An assignment already exists for this scope")
		}
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	return nil
}

// GetAssignment retrieves an assignment by ID.
func (s *Store) GetAssignment(ctx context.Context, id string) (*quotas.Assignment, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM concept_assignments WHERE id = ?`, id)

	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssignments returns a concept's assignments in creation order.
func (s *Store) ListAssignments(ctx context.Context, conceptID string) ([]quotas.Assignment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+assignmentColumns+` FROM concept_assignments
		WHERE concept_id = ?
		ORDER BY created_at, rowid
	`, conceptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	out := []quotas.Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignment(row scanner) (quotas.Assignment, error) {
	var (
		a                         quotas.Assignment
		scopeType, method, amount string
		buildingID, unitID, by    sql.NullString
		createdAt                 string
	)
	err := row.Scan(
		&a.ID, &a.ConceptID, &a.CondominiumID, &scopeType, &buildingID, &unitID,
		&method, &amount, &a.IsActive, &by, &createdAt,
	)
	if err != nil {
		return a, wrapScan("assignment", err)
	}

	scope, err := quotas.NewScope(scopeType, buildingID.String, unitID.String)
	if err != nil {
		return a, fmt.Errorf("assignment %s has a corrupt scope: %w", a.ID, err)
	}
	a.Scope = scope
	a.DistributionMethod = quotas.DistributionMethod(method)
	a.Amount = generic.MustParseDecimal(amount)
	a.CreatedBy = by.String
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

// =============================================================================
// QUOTA STORE
// =============================================================================

const quotaColumns = `id, concept_id, unit_id, period_year, period_month, period_description,
	base_amount, balance, status, issue_date, due_date, created_by, created_at`

// QuotaExistsForPeriod reports whether any quota exists for the concept
// and period.
func (s *Store) QuotaExistsForPeriod(ctx context.Context, conceptID string, year, month int) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM quotas
		WHERE concept_id = ? AND period_year = ? AND period_month = ?
	`, conceptID, year, month).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check quotas: %w", err)
	}
	return count > 0, nil
}

// InsertQuotas writes a batch atomically. A duplicate (concept, unit,
// period) anywhere in the batch fails the whole batch with CONFLICT.
func (s *Store) InsertQuotas(ctx context.Context, batch []quotas.Quota) error {
	query := `INSERT INTO quotas (` + quotaColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return s.atomic(ctx, func(q queryer) error {
		for _, quota := range batch {
			_, err := q.ExecContext(ctx, query,
				quota.ID, quota.ConceptID, quota.UnitID, quota.PeriodYear, quota.PeriodMonth,
				quota.PeriodDescription, quota.BaseAmount.StringFixed(2), quota.Balance.StringFixed(2),
				string(quota.Status), quota.IssueDate.String(), quota.DueDate.String(),
				nullString(quota.CreatedBy), formatTime(quota.CreatedAt),
			)
			if err != nil {
				if isUniqueConstraintError(err) {
					return generic.Conflict("Charges already exist for this period")
				}
				return fmt.Errorf("failed to insert quota: %w", err)
			}
		}
		return nil
	})
}

// ListQuotas returns a concept's quotas; zero year or month match any.
func (s *Store) ListQuotas(ctx context.Context, conceptID string, year, month int) ([]quotas.Quota, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+quotaColumns+` FROM quotas
		WHERE concept_id = ?
		  AND (? = 0 OR period_year = ?)
		  AND (? = 0 OR period_month = ?)
		ORDER BY period_year, period_month, rowid
	`, conceptID, year, year, month, month)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotas: %w", err)
	}
	defer rows.Close()

	out := []quotas.Quota{}
	for rows.Next() {
		var (
			q                     quotas.Quota
			base, balance, status string
			issue, due, createdAt string
			by                    sql.NullString
		)
		err := rows.Scan(
			&q.ID, &q.ConceptID, &q.UnitID, &q.PeriodYear, &q.PeriodMonth, &q.PeriodDescription,
			&base, &balance, &status, &issue, &due, &by, &createdAt,
		)
		if err != nil {
			return nil, wrapScan("quota", err)
		}
		q.BaseAmount = generic.MustParseDecimal(base)
		q.Balance = generic.MustParseDecimal(balance)
		q.Status = quotas.QuotaStatus(status)
		q.IssueDate = parseDate(issue)
		q.DueDate = parseDate(due)
		q.CreatedBy = by.String
		q.CreatedAt = parseTime(createdAt)
		out = append(out, q)
	}
	return out, rows.Err()
}

// =============================================================================
// GENERATION LOG STORE
// =============================================================================

// SaveGenerationLog appends an audit row.
func (s *Store) SaveGenerationLog(ctx context.Context, l quotas.GenerationLog) error {
	unitsJSON, err := encodeIDs(l.UnitsAffected)
	if err != nil {
		return fmt.Errorf("failed to encode units: %w", err)
	}
	ruleIDsJSON, err := encodeIDs(l.RuleIDs)
	if err != nil {
		return fmt.Errorf("failed to encode rule ids: %w", err)
	}
	formulaIDsJSON, err := encodeIDs(l.FormulaIDs)
	if err != nil {
		return fmt.Errorf("failed to encode formula ids: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO generation_logs (id, concept_id, period_year, period_month, quotas_created,
			total_amount, units_json, rule_ids_json, formula_ids_json, method, generated_by, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID, l.ConceptID, l.PeriodYear, l.PeriodMonth, l.QuotasCreated,
		l.TotalAmount.StringFixed(2), unitsJSON, ruleIDsJSON, formulaIDsJSON, string(l.Method),
		nullString(l.GeneratedBy), formatTime(l.GeneratedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save generation log: %w", err)
	}
	return nil
}

// ListGenerationLogs returns logs newest first; empty conceptID matches all.
func (s *Store) ListGenerationLogs(ctx context.Context, conceptID string) ([]quotas.GenerationLog, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, concept_id, period_year, period_month, quotas_created,
			total_amount, units_json, rule_ids_json, formula_ids_json, method, generated_by, generated_at
		FROM generation_logs
		WHERE ? = '' OR concept_id = ?
		ORDER BY generated_at DESC, rowid DESC
	`, conceptID, conceptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation logs: %w", err)
	}
	defer rows.Close()

	out := []quotas.GenerationLog{}
	for rows.Next() {
		var (
			l                    quotas.GenerationLog
			total, method        string
			unitsJSON, rulesJSON string
			formulasJSON         string
			by                   sql.NullString
			generatedAt          string
		)
		err := rows.Scan(
			&l.ID, &l.ConceptID, &l.PeriodYear, &l.PeriodMonth, &l.QuotasCreated,
			&total, &unitsJSON, &rulesJSON, &formulasJSON, &method, &by, &generatedAt,
		)
		if err != nil {
			return nil, wrapScan("generation log", err)
		}
		if err := json.Unmarshal([]byte(unitsJSON), &l.UnitsAffected); err != nil {
			return nil, fmt.Errorf("failed to decode units of log %s: %w", l.ID, err)
		}
		if err := json.Unmarshal([]byte(rulesJSON), &l.RuleIDs); err != nil {
			return nil, fmt.Errorf("failed to decode rule ids of log %s: %w", l.ID, err)
		}
		if err := json.Unmarshal([]byte(formulasJSON), &l.FormulaIDs); err != nil {
			return nil, fmt.Errorf("failed to decode formula ids of log %s: %w", l.ID, err)
		}
		l.TotalAmount = generic.MustParseDecimal(total)
		l.Method = quotas.GenerationMethod(method)
		l.GeneratedBy = by.String
		l.GeneratedAt = parseTime(generatedAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

// =============================================================================
// FORMULA STORE
// =============================================================================

// SaveFormula inserts or updates a quota formula.
func (s *Store) SaveFormula(ctx context.Context, f rules.QuotaFormula) error {
	var unitAmounts sql.NullString
	if f.UnitAmounts != nil {
		raw, err := json.Marshal(f.UnitAmounts)
		if err != nil {
			return fmt.Errorf("failed to encode unit amounts: %w", err)
		}
		unitAmounts = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO quota_formulas (id, condominium_id, name, description, formula_type,
			fixed_amount, unit_amounts_json, expression, is_active, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			formula_type = excluded.formula_type,
			fixed_amount = excluded.fixed_amount,
			unit_amounts_json = excluded.unit_amounts_json,
			expression = excluded.expression,
			is_active = excluded.is_active
	`,
		f.ID, f.CondominiumID, f.Name, nullString(f.Description), string(f.FormulaType),
		nullDecimal(f.FixedAmount), unitAmounts, nullString(f.Expression),
		f.IsActive, nullString(f.CreatedBy), formatTime(f.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save formula: %w", err)
	}
	return nil
}

// GetFormula retrieves a quota formula by ID.
func (s *Store) GetFormula(ctx context.Context, id string) (*rules.QuotaFormula, error) {
	var (
		f                                         rules.QuotaFormula
		formulaType, createdAt                    string
		description, fixed, unitAmounts, expr, by sql.NullString
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, condominium_id, name, description, formula_type,
			fixed_amount, unit_amounts_json, expression, is_active, created_by, created_at
		FROM quota_formulas WHERE id = ?
	`, id).Scan(
		&f.ID, &f.CondominiumID, &f.Name, &description, &formulaType,
		&fixed, &unitAmounts, &expr, &f.IsActive, &by, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get formula: %w", err)
	}

	f.Description = description.String
	f.FormulaType = rules.FormulaType(formulaType)
	f.FixedAmount = parseOptionalDecimal(fixed)
	if unitAmounts.Valid {
		if err := json.Unmarshal([]byte(unitAmounts.String), &f.UnitAmounts); err != nil {
			return nil, fmt.Errorf("failed to decode unit amounts of formula %s: %w", f.ID, err)
		}
	}
	f.Expression = expr.String
	f.CreatedBy = by.String
	f.CreatedAt = parseTime(createdAt)
	return &f, nil
}

// =============================================================================
// RULE STORE
// =============================================================================

const ruleColumns = `id, condominium_id, building_id, concept_id, formula_id, name, description,
	effective_from, effective_to, is_active, created_by, updated_by, update_reason, created_at, updated_at`

// SaveRule inserts or updates a generation rule.
func (s *Store) SaveRule(ctx context.Context, r rules.GenerationRule) error {
	var effectiveTo sql.NullString
	if r.Effective.To != nil {
		effectiveTo = sql.NullString{String: r.Effective.To.String(), Valid: true}
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO generation_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			building_id = excluded.building_id,
			concept_id = excluded.concept_id,
			formula_id = excluded.formula_id,
			name = excluded.name,
			description = excluded.description,
			effective_from = excluded.effective_from,
			effective_to = excluded.effective_to,
			is_active = excluded.is_active,
			updated_by = excluded.updated_by,
			update_reason = excluded.update_reason,
			updated_at = excluded.updated_at
	`,
		r.ID, r.CondominiumID, r.BuildingID, r.ConceptID, r.FormulaID, r.Name, nullString(r.Description),
		r.Effective.From.String(), effectiveTo, r.IsActive,
		nullString(r.CreatedBy), nullString(r.UpdatedBy), nullString(r.UpdateReason),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

// GetRule retrieves a generation rule by ID.
func (s *Store) GetRule(ctx context.Context, id string) (*rules.GenerationRule, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM generation_rules WHERE id = ?`, id)

	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRules returns a condominium's rules ordered by effective-from date.
func (s *Store) ListRules(ctx context.Context, condominiumID string) ([]rules.GenerationRule, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM generation_rules
		WHERE condominium_id = ?
		ORDER BY effective_from, id
	`, condominiumID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	out := []rules.GenerationRule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRule(row scanner) (rules.GenerationRule, error) {
	var (
		r                                    rules.GenerationRule
		buildingID, description, effectiveTo sql.NullString
		createdBy, updatedBy, reason         sql.NullString
		effectiveFrom, createdAt, updatedAt  string
	)
	err := row.Scan(
		&r.ID, &r.CondominiumID, &buildingID, &r.ConceptID, &r.FormulaID, &r.Name, &description,
		&effectiveFrom, &effectiveTo, &r.IsActive, &createdBy, &updatedBy, &reason, &createdAt, &updatedAt,
	)
	if err != nil {
		return r, wrapScan("rule", err)
	}

	r.BuildingID = optionalString(buildingID)
	r.Description = description.String
	r.Effective.From = parseDate(effectiveFrom)
	if effectiveTo.Valid {
		to := parseDate(effectiveTo.String)
		r.Effective.To = &to
	}
	r.CreatedBy = createdBy.String
	r.UpdatedBy = updatedBy.String
	r.UpdateReason = reason.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset deletes all data. Used when loading demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"generation_rules", "quota_formulas", "generation_logs", "quotas",
		"concept_assignments", "payment_concepts", "units", "buildings", "condominiums",
	}

	return s.atomic(ctx, func(q queryer) error {
		for _, table := range tables {
			if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to reset %s: %w", table, err)
			}
		}
		return nil
	})
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func optionalString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// encodeIDs stores a nil list as "[]".
func encodeIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	return string(b), err
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func optionalInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseOptionalDecimal(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid {
		return nil
	}
	d := generic.MustParseDecimal(ns.String)
	return &d
}

// timestampLayout is fixed width so that ORDER BY on the text column
// follows time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timestampLayout)
}

// parseTime also reads rows written with trimmed fractions.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseDate(s string) generic.TimePoint {
	tp, _ := generic.ParseDate(s)
	return tp
}

// wrapScan leaves sql.ErrNoRows matchable for the (nil, nil) getters.
func wrapScan(what string, err error) error {
	return fmt.Errorf("failed to scan %s: %w", what, err)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
