/*
Package requisition implements material requisitions for submission periods.

PURPOSE:
  A requisition is a requested quantity of one material, for one zone and
  department, within one submission period. This package holds the rules:
  when a period accepts submissions, how a submission becomes exactly one
  row, how rows are listed for display and how they are deleted.

KEY CONCEPTS IN THIS FILE (types.go):
  - Key: The natural key (material, zone, department, period)
  - Submission: A validated write request
  - Owner: The zone/department pair of the logged-in user
  - Line: One requisition joined with its material for display
  - Period: A submission window

INVARIANTS:
  1. At most one row per Key. Check and write always use the same Key value.
  2. Writes require the period to be active and now within [Start, End].
  3. Quantity is strictly >= 1 and is validated before the store is touched.
  4. Deletes are scoped to the caller's Owner, never to request payload.

SEE ALSO:
  - engine.go: Submit (upsert by natural key)
  - period.go: Gate (open/editable checks)
  - reader.go: List and Delete
  - catalog.go: Read-only reference tables
*/
package requisition

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// NATURAL KEY
// =============================================================================

// Key identifies a requisition row.
type Key struct {
	MaterialID   string
	ZoneID       int64
	DepartmentID int64
	PeriodID     int64
}

// Owner is the zone and department a session acts for.
type Owner struct {
	ZoneID       int64
	DepartmentID int64
}

// Submission is a request to set the quantity of a requisition.
type Submission struct {
	MaterialID string
	Quantity   decimal.Decimal
	PeriodID   int64
	Owner      Owner
	Comment    string
}

// Key returns the natural key of the submission.
func (s Submission) Key() Key {
	return Key{
		MaterialID:   s.MaterialID,
		ZoneID:       s.Owner.ZoneID,
		DepartmentID: s.Owner.DepartmentID,
		PeriodID:     s.PeriodID,
	}
}

// Requisition is a stored row.
type Requisition struct {
	Key
	Quantity     decimal.Decimal
	RegisteredAt time.Time
	Comment      *string
}

// =============================================================================
// LISTING
// =============================================================================

// Filter selects requisitions for one zone, department and period.
type Filter struct {
	ZoneID       int64
	DepartmentID int64
	PeriodID     int64
}

// Line is a requisition joined with its material.
type Line struct {
	MaterialID  string          `db:"id_material"`
	PeriodID    int64           `db:"id_periodo"`
	Description string          `db:"descripcion"`
	Quantity    decimal.Decimal `db:"cantidad"`
	Unit        string          `db:"unidad_medida"`
	UnitPrice   decimal.Decimal `db:"precio_unitario"`
}

// LineHeadings are the display headings for Line.Row.
var LineHeadings = []string{"Id", "Año", "Material", "Cantidad", "Unidad", "Precio Unitario"}

// Row renders the line for display. The unit price is formatted as money;
// every other value is stringified plainly.
func (l Line) Row() []string {
	return []string{
		l.MaterialID,
		strconv.FormatInt(l.PeriodID, 10),
		l.Description,
		l.Quantity.String(),
		l.Unit,
		FormatMoney(l.UnitPrice),
	}
}

// =============================================================================
// PERIOD
// =============================================================================

// Period is a submission window.
type Period struct {
	ID          int64     `db:"id_periodo"`
	Description string    `db:"descripcion"`
	Start       time.Time `db:"fecha_inicio"`
	End         time.Time `db:"fecha_fin"`
	Active      bool      `db:"activo"`
}

// Contains returns true if t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// OpenAt reports whether the period accepts submissions at t.
func (p Period) OpenAt(t time.Time) bool {
	return p.Active && p.Contains(t)
}

// EditableAt is the display flag: t falls strictly inside (Start, End).
func (p Period) EditableAt(t time.Time) bool {
	return p.Start.Before(t) && t.Before(p.End)
}

// PeriodView is a period with its display-only editable flag.
type PeriodView struct {
	Period
	Editable bool
}

// PeriodHeadings are the display headings for PeriodView.Row.
var PeriodHeadings = []string{"Id", "Nombre", "Inicio", "Fin", "Activo", "Editable"}

// Row renders the period for display with ISO-8601 dates.
func (v PeriodView) Row() []any {
	return []any{
		v.ID,
		v.Description,
		v.Start.Format(time.RFC3339),
		v.End.Format(time.RFC3339),
		v.Active,
		v.Editable,
	}
}
