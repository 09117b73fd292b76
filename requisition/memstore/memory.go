// Package memstore provides an in-memory requisition.TxStore.
package memstore

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/consad/compras/requisition"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Material is the subset of a material needed to build list lines.
type Material struct {
	Description string
	Unit        string
	UnitPrice   decimal.Decimal
	Active      bool
}

type Memory struct {
	mu           sync.RWMutex
	periods      map[int64]requisition.Period
	materials    map[string]Material
	requisitions map[requisition.Key]requisition.Requisition

	// calls counts every store method invocation.
	calls int
}

func New() *Memory {
	return &Memory{
		periods:      make(map[int64]requisition.Period),
		materials:    make(map[string]Material),
		requisitions: make(map[requisition.Key]requisition.Requisition),
	}
}

// AddPeriod registers a period.
func (m *Memory) AddPeriod(p requisition.Period) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods[p.ID] = p
}

// AddMaterial registers a material.
func (m *Memory) AddMaterial(id string, mat Material) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.materials[id] = mat
}

// Requisitions returns a copy of every stored row.
func (m *Memory) Requisitions() []requisition.Requisition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]requisition.Requisition, 0, len(m.requisitions))
	for _, r := range m.requisitions {
		out = append(out, r)
	}
	return out
}

// Calls returns how many store methods have been invoked.
func (m *Memory) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

func (m *Memory) FindPeriod(ctx context.Context, id int64) (requisition.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findPeriodLocked(id)
}

func (m *Memory) ListActivePeriods(ctx context.Context) ([]requisition.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listActivePeriodsLocked(), nil
}

func (m *Memory) FindRequisition(ctx context.Context, key requisition.Key) (requisition.Requisition, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.findRequisitionLocked(key)
	return r, ok, nil
}

func (m *Memory) InsertRequisition(ctx context.Context, r requisition.Requisition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(r)
}

func (m *Memory) UpdateRequisition(ctx context.Context, r requisition.Requisition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateLocked(r)
	return nil
}

func (m *Memory) UpsertRequisition(ctx context.Context, r requisition.Requisition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLocked(r)
}

func (m *Memory) FindMaterial(ctx context.Context, id string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active, found := m.findMaterialLocked(id)
	return active, found, nil
}

func (m *Memory) ListLines(ctx context.Context, f requisition.Filter) ([]requisition.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLinesLocked(f), nil
}

func (m *Memory) DeleteRequisitions(ctx context.Context, materialID string, owner requisition.Owner) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(materialID, owner), nil
}

// =============================================================================
// LOCKED OPERATIONS - Shared by Memory and the transactional view
// =============================================================================

func (m *Memory) findPeriodLocked(id int64) (requisition.Period, error) {
	m.calls++
	p, ok := m.periods[id]
	if !ok {
		return requisition.Period{}, requisition.ErrPeriodNotFound
	}
	return p, nil
}

func (m *Memory) listActivePeriodsLocked() []requisition.Period {
	m.calls++
	var out []requisition.Period
	for _, p := range m.periods {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	return out
}

func (m *Memory) findRequisitionLocked(key requisition.Key) (requisition.Requisition, bool) {
	m.calls++
	r, ok := m.requisitions[key]
	return r, ok
}

func (m *Memory) insertLocked(r requisition.Requisition) error {
	m.calls++
	if _, exists := m.requisitions[r.Key]; exists {
		return ErrDuplicateKey
	}
	m.requisitions[r.Key] = r
	return nil
}

func (m *Memory) updateLocked(r requisition.Requisition) {
	m.calls++
	if existing, ok := m.requisitions[r.Key]; ok {
		m.requisitions[r.Key] = merge(existing, r)
	}
}

func (m *Memory) upsertLocked(r requisition.Requisition) error {
	m.calls++
	if existing, ok := m.requisitions[r.Key]; ok {
		m.requisitions[r.Key] = merge(existing, r)
		return nil
	}
	m.requisitions[r.Key] = r
	return nil
}

// merge applies an update: new quantity, comment only when given.
func merge(existing, r requisition.Requisition) requisition.Requisition {
	existing.Quantity = r.Quantity
	if r.Comment != nil {
		existing.Comment = r.Comment
	}
	return existing
}

func (m *Memory) findMaterialLocked(id string) (active, found bool) {
	m.calls++
	mat, ok := m.materials[id]
	return mat.Active, ok
}

func (m *Memory) listLinesLocked(f requisition.Filter) []requisition.Line {
	m.calls++
	var out []requisition.Line
	for k, r := range m.requisitions {
		if k.ZoneID != f.ZoneID || k.DepartmentID != f.DepartmentID || k.PeriodID != f.PeriodID {
			continue
		}
		mat := m.materials[k.MaterialID]
		out = append(out, requisition.Line{
			MaterialID:  k.MaterialID,
			PeriodID:    k.PeriodID,
			Description: mat.Description,
			Quantity:    r.Quantity,
			Unit:        mat.Unit,
			UnitPrice:   mat.UnitPrice,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialID < out[j].MaterialID })
	return out
}

func (m *Memory) deleteLocked(materialID string, owner requisition.Owner) int64 {
	m.calls++
	var n int64
	for k := range m.requisitions {
		if k.MaterialID == materialID && k.ZoneID == owner.ZoneID && k.DepartmentID == owner.DepartmentID {
			delete(m.requisitions, k)
			n++
		}
	}
	return n
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(requisition.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := maps.Clone(m.requisitions)

	if err := fn(&txView{parent: m}); err != nil {
		m.requisitions = snapshot
		return err
	}
	return nil
}

// txView runs operations while the parent lock is held by WithTx.
type txView struct {
	parent *Memory
}

func (tv *txView) FindPeriod(ctx context.Context, id int64) (requisition.Period, error) {
	return tv.parent.findPeriodLocked(id)
}

func (tv *txView) ListActivePeriods(ctx context.Context) ([]requisition.Period, error) {
	return tv.parent.listActivePeriodsLocked(), nil
}

func (tv *txView) FindRequisition(ctx context.Context, key requisition.Key) (requisition.Requisition, bool, error) {
	r, ok := tv.parent.findRequisitionLocked(key)
	return r, ok, nil
}

func (tv *txView) InsertRequisition(ctx context.Context, r requisition.Requisition) error {
	return tv.parent.insertLocked(r)
}

func (tv *txView) UpdateRequisition(ctx context.Context, r requisition.Requisition) error {
	tv.parent.updateLocked(r)
	return nil
}

func (tv *txView) FindMaterial(ctx context.Context, id string) (bool, bool, error) {
	active, found := tv.parent.findMaterialLocked(id)
	return active, found, nil
}

func (tv *txView) UpsertRequisition(ctx context.Context, r requisition.Requisition) error {
	return tv.parent.upsertLocked(r)
}

func (tv *txView) ListLines(ctx context.Context, f requisition.Filter) ([]requisition.Line, error) {
	return tv.parent.listLinesLocked(f), nil
}

func (tv *txView) DeleteRequisitions(ctx context.Context, materialID string, owner requisition.Owner) (int64, error) {
	return tv.parent.deleteLocked(materialID, owner), nil
}
