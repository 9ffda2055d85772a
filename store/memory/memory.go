// Package memory provides an in-memory implementation of quotas.TxStore
// and rules.Store, for tests and demos.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/quota-engine/generic"
	"github.com/warp/quota-engine/quotas"
	"github.com/warp/quota-engine/rules"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	d  *data
}

type data struct {
	condominiums    map[string]quotas.Condominium
	buildings       map[string]quotas.Building
	units           map[string]quotas.Unit
	concepts        map[string]quotas.PaymentConcept
	conceptOrder    []string
	assignments     map[string]quotas.Assignment
	assignmentOrder []string
	quotas          []quotas.Quota
	quotaKeys       map[quotaKey]bool
	logs            []quotas.GenerationLog
	formulas        map[string]rules.QuotaFormula
	rules           map[string]rules.GenerationRule
}

type quotaKey struct {
	ConceptID string
	UnitID    string
	Year      int
	Month     int
}

var (
	_ quotas.TxStore = (*Memory)(nil)
	_ rules.Store    = (*Memory)(nil)
)

func New() *Memory {
	return &Memory{d: newData()}
}

func newData() *data {
	return &data{
		condominiums: make(map[string]quotas.Condominium),
		buildings:    make(map[string]quotas.Building),
		units:        make(map[string]quotas.Unit),
		concepts:     make(map[string]quotas.PaymentConcept),
		assignments:  make(map[string]quotas.Assignment),
		quotaKeys:    make(map[quotaKey]bool),
		formulas:     make(map[string]rules.QuotaFormula),
		rules:        make(map[string]rules.GenerationRule),
	}
}

// clone copies every table. Row values are structs, so copying the maps and
// slices is enough for writes on the clone not to leak into the original.
func (d *data) clone() *data {
	c := newData()
	for k, v := range d.condominiums {
		c.condominiums[k] = v
	}
	for k, v := range d.buildings {
		c.buildings[k] = v
	}
	for k, v := range d.units {
		c.units[k] = v
	}
	for k, v := range d.concepts {
		c.concepts[k] = v
	}
	c.conceptOrder = append([]string(nil), d.conceptOrder...)
	for k, v := range d.assignments {
		c.assignments[k] = v
	}
	c.assignmentOrder = append([]string(nil), d.assignmentOrder...)
	c.quotas = append([]quotas.Quota(nil), d.quotas...)
	for k, v := range d.quotaKeys {
		c.quotaKeys[k] = v
	}
	c.logs = append([]quotas.GenerationLog(nil), d.logs...)
	for k, v := range d.formulas {
		c.formulas[k] = v
	}
	for k, v := range d.rules {
		c.rules[k] = v
	}
	return c
}

// WithTx runs fn against a private copy of the data and publishes the copy
// only if fn succeeds. The store stays locked until then: other callers
// wait for the transaction, and fn must only use the Store it is given.
func (m *Memory) WithTx(ctx context.Context, fn func(quotas.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staging := &Memory{d: m.d.clone()}
	if err := fn(staging); err != nil {
		return err
	}
	m.d = staging.d
	return nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) SaveCondominium(_ context.Context, c quotas.Condominium) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.condominiums[c.ID] = c
	return nil
}

func (m *Memory) GetCondominium(_ context.Context, id string) (*quotas.Condominium, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.d.condominiums[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *Memory) ListCondominiums(_ context.Context) ([]quotas.Condominium, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]quotas.Condominium, 0, len(m.d.condominiums))
	for _, c := range m.d.condominiums {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) SaveBuilding(_ context.Context, b quotas.Building) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.buildings[b.ID] = b
	return nil
}

func (m *Memory) GetBuilding(_ context.Context, id string) (*quotas.Building, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.d.buildings[id]; ok {
		return &b, nil
	}
	return nil, nil
}

func (m *Memory) SaveUnit(_ context.Context, u quotas.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.units[u.ID] = u
	return nil
}

func (m *Memory) GetUnit(_ context.Context, id string) (*quotas.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.d.units[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *Memory) ListUnitsByCondominium(_ context.Context, condominiumID string) ([]quotas.Unit, error) {
	return m.listUnits(func(u quotas.Unit) bool { return u.CondominiumID == condominiumID }), nil
}

func (m *Memory) ListUnitsByBuilding(_ context.Context, buildingID string) ([]quotas.Unit, error) {
	return m.listUnits(func(u quotas.Unit) bool { return u.BuildingID == buildingID }), nil
}

func (m *Memory) listUnits(match func(quotas.Unit) bool) []quotas.Unit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []quotas.Unit{}
	for _, u := range m.d.units {
		if match(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BuildingID != out[j].BuildingID {
			return out[i].BuildingID < out[j].BuildingID
		}
		return out[i].UnitNumber < out[j].UnitNumber
	})
	return out
}

// =============================================================================
// CONCEPTS & ASSIGNMENTS
// =============================================================================

func (m *Memory) SaveConcept(_ context.Context, c quotas.PaymentConcept) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.d.concepts[c.ID]; !ok {
		m.d.conceptOrder = append(m.d.conceptOrder, c.ID)
	}
	m.d.concepts[c.ID] = c
	return nil
}

func (m *Memory) GetConcept(_ context.Context, id string) (*quotas.PaymentConcept, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.d.concepts[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *Memory) ListActiveRecurringConcepts(_ context.Context) ([]quotas.PaymentConcept, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []quotas.PaymentConcept{}
	for _, id := range m.d.conceptOrder {
		c := m.d.concepts[id]
		if c.IsActive && c.IsRecurring {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) SaveAssignment(_ context.Context, a quotas.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.d.assignments[a.ID]; !ok {
		m.d.assignmentOrder = append(m.d.assignmentOrder, a.ID)
	}
	m.d.assignments[a.ID] = a
	return nil
}

func (m *Memory) GetAssignment(_ context.Context, id string) (*quotas.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.d.assignments[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (m *Memory) ListAssignments(_ context.Context, conceptID string) ([]quotas.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []quotas.Assignment{}
	for _, id := range m.d.assignmentOrder {
		if a := m.d.assignments[id]; a.ConceptID == conceptID {
			out = append(out, a)
		}
	}
	return out, nil
}

// =============================================================================
// QUOTAS & GENERATION LOGS
// =============================================================================

func (m *Memory) QuotaExistsForPeriod(_ context.Context, conceptID string, year, month int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.d.quotas {
		if q.ConceptID == conceptID && q.PeriodYear == year && q.PeriodMonth == month {
			return true, nil
		}
	}
	return false, nil
}

// InsertQuotas checks the whole batch before writing any of it.
func (m *Memory) InsertQuotas(_ context.Context, batch []quotas.Quota) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[quotaKey]bool, len(batch))
	for _, q := range batch {
		k := quotaKey{ConceptID: q.ConceptID, UnitID: q.UnitID, Year: q.PeriodYear, Month: q.PeriodMonth}
		if m.d.quotaKeys[k] || seen[k] {
			return generic.Conflict("Charges already exist for this period")
		}
		seen[k] = true
	}
	for _, q := range batch {
		m.d.quotaKeys[quotaKey{ConceptID: q.ConceptID, UnitID: q.UnitID, Year: q.PeriodYear, Month: q.PeriodMonth}] = true
		m.d.quotas = append(m.d.quotas, q)
	}
	return nil
}

func (m *Memory) ListQuotas(_ context.Context, conceptID string, year, month int) ([]quotas.Quota, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []quotas.Quota{}
	for _, q := range m.d.quotas {
		if q.ConceptID != conceptID {
			continue
		}
		if (year != 0 && q.PeriodYear != year) || (month != 0 && q.PeriodMonth != month) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (m *Memory) SaveGenerationLog(_ context.Context, log quotas.GenerationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.UnitsAffected = append([]string(nil), log.UnitsAffected...)
	log.RuleIDs = append([]string(nil), log.RuleIDs...)
	log.FormulaIDs = append([]string(nil), log.FormulaIDs...)
	m.d.logs = append(m.d.logs, log)
	return nil
}

func (m *Memory) ListGenerationLogs(_ context.Context, conceptID string) ([]quotas.GenerationLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []quotas.GenerationLog{}
	for i := len(m.d.logs) - 1; i >= 0; i-- {
		if l := m.d.logs[i]; conceptID == "" || l.ConceptID == conceptID {
			out = append(out, l)
		}
	}
	return out, nil
}

// =============================================================================
// FORMULAS & RULES
// =============================================================================

func (m *Memory) SaveFormula(_ context.Context, f rules.QuotaFormula) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.UnitAmounts != nil {
		amounts := make(map[string]decimal.Decimal, len(f.UnitAmounts))
		for k, v := range f.UnitAmounts {
			amounts[k] = v
		}
		f.UnitAmounts = amounts
	}
	m.d.formulas[f.ID] = f
	return nil
}

func (m *Memory) GetFormula(_ context.Context, id string) (*rules.QuotaFormula, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.d.formulas[id]; ok {
		return &f, nil
	}
	return nil, nil
}

func (m *Memory) SaveRule(_ context.Context, r rules.GenerationRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.rules[r.ID] = r
	return nil
}

func (m *Memory) GetRule(_ context.Context, id string) (*rules.GenerationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.d.rules[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *Memory) ListRules(_ context.Context, condominiumID string) ([]rules.GenerationRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []rules.GenerationRule{}
	for _, r := range m.d.rules {
		if r.CondominiumID == condominiumID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Effective.From.Equal(out[j].Effective.From) {
			return out[i].Effective.From.Before(out[j].Effective.From)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d = newData()
	return nil
}
