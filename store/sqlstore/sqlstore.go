/*
Package sqlstore holds the SQL queries of the application.

PURPOSE:
  Implements requisition.TxStore, requisition.CatalogStore and
  session.Lookup over a store.Source. Queries are written once with "?"
  placeholders; the few dialect differences are isolated here:

    Token comparison:  MariaDB compares case-insensitively by default, so
                       the token is compared as BINARY there.
    Upsert:            ON CONFLICT ... DO UPDATE (SQLite, Postgres)
                       ON DUPLICATE KEY UPDATE   (MariaDB)

  A write naming a missing material, zone, department or period fails
  with requisition.ErrUnknownReference.

CONNECTION:
  Each call asks the Source for a connection. With a store.Connector an
  unreachable backend surfaces as store.ErrBackendUnavailable on that call
  and the next call tries again.

SEE ALSO:
  - store/schema.go: Table definitions
  - requisition/store.go: Interfaces implemented here
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/consad/compras/config"
	"github.com/consad/compras/requisition"
	"github.com/consad/compras/session"
	"github.com/consad/compras/store"
	"github.com/shopspring/decimal"
)

// Store implements the application's persistence interfaces.
type Store struct {
	src store.Source
}

// New creates a Store reading connections from src.
func New(src store.Source) *Store {
	return &Store{src: src}
}

func (s *Store) queries(ctx context.Context) (queries, error) {
	db, err := s.src.Conn(ctx)
	if err != nil {
		return queries{}, err
	}
	return queries{h: db.Handle, driver: db.Driver()}, nil
}

// =============================================================================
// requisition.Store
// =============================================================================

func (s *Store) FindPeriod(ctx context.Context, id int64) (requisition.Period, error) {
	q, err := s.queries(ctx)
	if err != nil {
		return requisition.Period{}, err
	}
	return q.FindPeriod(ctx, id)
}

func (s *Store) ListActivePeriods(ctx context.Context) ([]requisition.Period, error) {
	q, err := s.queries(ctx)
	if err != nil {
		return nil, err
	}
	return q.ListActivePeriods(ctx)
}

func (s *Store) FindRequisition(ctx context.Context, key requisition.Key) (requisition.Requisition, bool, error) {
	q, err := s.queries(ctx)
	if err != nil {
		return requisition.Requisition{}, false, err
	}
	return q.FindRequisition(ctx, key)
}

func (s *Store) InsertRequisition(ctx context.Context, r requisition.Requisition) error {
	q, err := s.queries(ctx)
	if err != nil {
		return err
	}
	return q.InsertRequisition(ctx, r)
}

func (s *Store) UpdateRequisition(ctx context.Context, r requisition.Requisition) error {
	q, err := s.queries(ctx)
	if err != nil {
		return err
	}
	return q.UpdateRequisition(ctx, r)
}

func (s *Store) FindMaterial(ctx context.Context, id string) (bool, bool, error) {
	q, err := s.queries(ctx)
	if err != nil {
		return false, false, err
	}
	return q.FindMaterial(ctx, id)
}

func (s *Store) UpsertRequisition(ctx context.Context, r requisition.Requisition) error {
	q, err := s.queries(ctx)
	if err != nil {
		return err
	}
	return q.UpsertRequisition(ctx, r)
}

func (s *Store) ListLines(ctx context.Context, f requisition.Filter) ([]requisition.Line, error) {
	q, err := s.queries(ctx)
	if err != nil {
		return nil, err
	}
	return q.ListLines(ctx, f)
}

func (s *Store) DeleteRequisitions(ctx context.Context, materialID string, owner requisition.Owner) (int64, error) {
	q, err := s.queries(ctx)
	if err != nil {
		return 0, err
	}
	return q.DeleteRequisitions(ctx, materialID, owner)
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(requisition.Store) error) error {
	db, err := s.src.Conn(ctx)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, func(h store.Handle) error {
		return fn(queries{h: h, driver: db.Driver()})
	})
}

// =============================================================================
// requisition.CatalogStore and session.Lookup
// =============================================================================

func (s *Store) Catalog(ctx context.Context, kind requisition.CatalogKind) (requisition.Table, error) {
	q, err := s.queries(ctx)
	if err != nil {
		return requisition.Table{}, err
	}
	return q.Catalog(ctx, kind)
}

func (s *Store) IdentitiesByToken(ctx context.Context, token string) ([]session.Identity, error) {
	q, err := s.queries(ctx)
	if err != nil {
		return nil, err
	}
	return q.IdentitiesByToken(ctx, token)
}

// =============================================================================
// QUERIES - One handle, one dialect
// =============================================================================

type queries struct {
	h      store.Handle
	driver config.Driver
}

const periodColumns = "id_periodo, descripcion, fecha_inicio, fecha_fin, activo"

func (q queries) FindPeriod(ctx context.Context, id int64) (requisition.Period, error) {
	var p requisition.Period
	err := q.h.Get(ctx, &p, "SELECT "+periodColumns+" FROM periodo WHERE id_periodo = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return requisition.Period{}, fmt.Errorf("%w: %d", requisition.ErrPeriodNotFound, id)
	}
	if err != nil {
		return requisition.Period{}, fmt.Errorf("find period %d: %w", id, err)
	}
	return p, nil
}

func (q queries) ListActivePeriods(ctx context.Context) ([]requisition.Period, error) {
	var periods []requisition.Period
	err := q.h.Select(ctx, &periods,
		"SELECT "+periodColumns+" FROM periodo WHERE activo = ? ORDER BY fecha_inicio DESC", true)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	return periods, nil
}

type requisitionRow struct {
	MaterialID   string          `db:"id_material"`
	ZoneID       int64           `db:"id_zona"`
	DepartmentID int64           `db:"id_departamento"`
	PeriodID     int64           `db:"id_periodo"`
	Quantity     decimal.Decimal `db:"cantidad"`
	RegisteredAt time.Time       `db:"fecha_registro"`
	Comment      sql.NullString  `db:"comentarios"`
}

func (r requisitionRow) toDomain() requisition.Requisition {
	out := requisition.Requisition{
		Key: requisition.Key{
			MaterialID:   r.MaterialID,
			ZoneID:       r.ZoneID,
			DepartmentID: r.DepartmentID,
			PeriodID:     r.PeriodID,
		},
		Quantity:     r.Quantity,
		RegisteredAt: r.RegisteredAt,
	}
	if r.Comment.Valid {
		c := r.Comment.String
		out.Comment = &c
	}
	return out
}

const keyWhere = "id_material = ? AND id_zona = ? AND id_departamento = ? AND id_periodo = ?"

func keyArgs(k requisition.Key) []any {
	return []any{k.MaterialID, k.ZoneID, k.DepartmentID, k.PeriodID}
}

func (q queries) FindRequisition(ctx context.Context, key requisition.Key) (requisition.Requisition, bool, error) {
	var row requisitionRow
	err := q.h.Get(ctx, &row, `SELECT id_material, id_zona, id_departamento, id_periodo,
		cantidad, fecha_registro, comentarios
		FROM solicitudes WHERE `+keyWhere, keyArgs(key)...)
	if errors.Is(err, sql.ErrNoRows) {
		return requisition.Requisition{}, false, nil
	}
	if err != nil {
		return requisition.Requisition{}, false, err
	}
	return row.toDomain(), true, nil
}

const insertRequisition = `INSERT INTO solicitudes
	(cantidad, id_material, id_zona, id_departamento, id_periodo, comentarios)
	VALUES (?, ?, ?, ?, ?, ?)`

func insertArgs(r requisition.Requisition) []any {
	return []any{r.Quantity, r.MaterialID, r.ZoneID, r.DepartmentID, r.PeriodID, r.Comment}
}

// writeErr wraps a failed write. Missing references become
// requisition.ErrUnknownReference.
func writeErr(op string, err error) error {
	if store.IsForeignKeyViolation(err) {
		return fmt.Errorf("%s: %w: %v", op, requisition.ErrUnknownReference, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (q queries) InsertRequisition(ctx context.Context, r requisition.Requisition) error {
	if _, err := q.h.Exec(ctx, insertRequisition, insertArgs(r)...); err != nil {
		return writeErr("insert requisition", err)
	}
	return nil
}

// A NULL comment keeps the stored one.
func (q queries) UpdateRequisition(ctx context.Context, r requisition.Requisition) error {
	args := append([]any{r.Quantity, r.Comment}, keyArgs(r.Key)...)
	_, err := q.h.Exec(ctx,
		"UPDATE solicitudes SET cantidad = ?, comentarios = COALESCE(?, comentarios) WHERE "+keyWhere,
		args...)
	if err != nil {
		return writeErr("update requisition", err)
	}
	return nil
}

func (q queries) UpsertRequisition(ctx context.Context, r requisition.Requisition) error {
	var stmt string
	switch q.driver {
	case config.DriverMariaDB:
		stmt = insertRequisition + ` ON DUPLICATE KEY UPDATE
			cantidad = VALUES(cantidad),
			comentarios = COALESCE(VALUES(comentarios), comentarios)`
	default:
		stmt = insertRequisition + ` ON CONFLICT (id_material, id_zona, id_departamento, id_periodo)
			DO UPDATE SET
			cantidad = excluded.cantidad,
			comentarios = COALESCE(excluded.comentarios, solicitudes.comentarios)`
	}

	if _, err := q.h.Exec(ctx, stmt, insertArgs(r)...); err != nil {
		return writeErr("upsert requisition", err)
	}
	return nil
}

func (q queries) FindMaterial(ctx context.Context, id string) (bool, bool, error) {
	var active bool
	err := q.h.Get(ctx, &active, "SELECT activo FROM materiales WHERE id_material = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("find material %q: %w", id, err)
	}
	return active, true, nil
}

func (q queries) ListLines(ctx context.Context, f requisition.Filter) ([]requisition.Line, error) {
	var lines []requisition.Line
	err := q.h.Select(ctx, &lines, `SELECT m.id_material, p.id_periodo, m.descripcion, s.cantidad,
		m.unidad_medida, m.precio_unitario
		FROM solicitudes AS s
		INNER JOIN departamento AS d ON d.id_departamento = s.id_departamento
		INNER JOIN zona AS z ON z.id_zona = s.id_zona
		INNER JOIN materiales AS m ON m.id_material = s.id_material
		INNER JOIN periodo AS p ON p.id_periodo = s.id_periodo
		WHERE z.id_zona = ? AND d.id_departamento = ? AND p.id_periodo = ?
		ORDER BY m.id_material`,
		f.ZoneID, f.DepartmentID, f.PeriodID)
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (q queries) DeleteRequisitions(ctx context.Context, materialID string, owner requisition.Owner) (int64, error) {
	res, err := q.h.Exec(ctx,
		"DELETE FROM solicitudes WHERE id_zona = ? AND id_departamento = ? AND id_material = ?",
		owner.ZoneID, owner.DepartmentID, materialID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// =============================================================================
// CATALOGS
// =============================================================================

const materialsQuery = `SELECT m.id_material, g.nombre, m.precio_unitario, m.unidad_medida, m.descripcion
	FROM materiales AS m
	INNER JOIN grupo AS g ON g.id_grupo = m.id_grupo`

var catalogQueries = map[requisition.CatalogKind]string{
	requisition.CatalogMaterials: materialsQuery + " ORDER BY m.id_material",
	requisition.CatalogCapture:   materialsQuery + " WHERE m.activo = ? ORDER BY m.id_material",
	requisition.CatalogGroups:    "SELECT id_grupo, nombre FROM grupo ORDER BY id_grupo",
	requisition.CatalogUsers: `SELECT u.id_usuario, u.nombre, d.nombre, z.nombre
		FROM usuarios AS u
		INNER JOIN departamento AS d ON d.id_departamento = u.id_departamento
		INNER JOIN zona AS z ON z.id_zona = u.id_zona
		ORDER BY u.id_usuario`,
	requisition.CatalogZones:       "SELECT id_zona, nombre, centro_gestor FROM zona ORDER BY id_zona",
	requisition.CatalogDepartments: "SELECT id_departamento, nombre, clave FROM departamento ORDER BY id_departamento",
	requisition.CatalogPeriods:     "SELECT " + periodColumns + " FROM periodo ORDER BY id_periodo",
}

func (q queries) Catalog(ctx context.Context, kind requisition.CatalogKind) (requisition.Table, error) {
	query, ok := catalogQueries[kind]
	if !ok {
		return requisition.Table{}, fmt.Errorf("%w: %q", requisition.ErrUnknownCatalog, kind)
	}

	var args []any
	if kind == requisition.CatalogCapture {
		args = append(args, true)
	}

	rs, err := q.h.Query(ctx, query, args...)
	if err != nil {
		return requisition.Table{}, err
	}
	return requisition.Table{Columns: rs.Columns, Rows: rs.Rows}, nil
}

// =============================================================================
// IDENTITY
// =============================================================================

type identityRow struct {
	UserID         int64  `db:"id_usuario"`
	UserName       string `db:"nombre"`
	ZoneID         int64  `db:"id_zona"`
	ZoneName       string `db:"zona"`
	DepartmentID   int64  `db:"id_departamento"`
	DepartmentName string `db:"departamento"`
}

func (q queries) IdentitiesByToken(ctx context.Context, token string) ([]session.Identity, error) {
	match := "u.token = ?"
	if q.driver == config.DriverMariaDB {
		match = "BINARY u.token = ?"
	}

	var rows []identityRow
	err := q.h.Select(ctx, &rows, `SELECT u.id_usuario, u.nombre, z.id_zona, z.nombre AS zona,
		d.id_departamento, d.nombre AS departamento
		FROM usuarios AS u
		INNER JOIN zona AS z ON z.id_zona = u.id_zona
		INNER JOIN departamento AS d ON d.id_departamento = u.id_departamento
		WHERE `+match, token)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}

	out := make([]session.Identity, 0, len(rows))
	for _, r := range rows {
		out = append(out, session.Identity(r))
	}
	return out, nil
}
