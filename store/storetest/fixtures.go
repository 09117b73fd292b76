// Package storetest provides database fixtures shared by tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/consad/compras/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Fixture identifiers.
const (
	ZoneNorth int64 = 1
	ZoneSouth int64 = 2

	DeptPurchasing  int64 = 10
	DeptMaintenance int64 = 20

	UserAna  int64 = 100
	UserLuis int64 = 101

	TokenAna  = "tok-Ana-7f3a"
	TokenLuis = "tok-Luis-91bc"

	GroupOffice int64 = 1

	MaterialPaper   = "MAT-001"
	MaterialToner   = "MAT-002"
	MaterialRetired = "MAT-099"

	PeriodOpen     int64 = 1
	PeriodClosed   int64 = 2
	PeriodInactive int64 = 3
	PeriodFuture   int64 = 4
)

type Zone struct {
	ID            int64
	Name          string
	Center        string
	ResponsibleID *int64
}

type Department struct {
	ID   int64
	Name string
	Key  string
}

type User struct {
	ID           int64
	Token        string
	Name         string
	ZoneID       int64
	DepartmentID int64
}

type Group struct {
	ID   int64
	Name string
}

type Material struct {
	ID             string
	GroupID        int64
	UnitPrice      decimal.Decimal
	Unit           string
	SAPDescription string
	Description    string
	Active         bool
}

type Period struct {
	ID          int64
	Description string
	Start       time.Time
	End         time.Time
	Active      bool
}

// Fixture is a complete set of reference data.
type Fixture struct {
	Zones       []Zone
	Departments []Department
	Users       []User
	Groups      []Group
	Materials   []Material
	Periods     []Period
}

// DefaultFixture returns reference data with periods placed around time.Now:
// one open, one already closed, one inactive and one in the future.
func DefaultFixture() Fixture {
	now := time.Now().UTC().Truncate(time.Second)

	return Fixture{
		Zones: []Zone{
			{ID: ZoneNorth, Name: "Zona Norte", Center: "CG-N01"},
			{ID: ZoneSouth, Name: "Zona Sur", Center: "CG-S01"},
		},
		Departments: []Department{
			{ID: DeptPurchasing, Name: "Compras", Key: "CMP"},
			{ID: DeptMaintenance, Name: "Mantenimiento", Key: "MNT"},
		},
		Users: []User{
			{ID: UserAna, Token: TokenAna, Name: "Ana", ZoneID: ZoneNorth, DepartmentID: DeptPurchasing},
			{ID: UserLuis, Token: TokenLuis, Name: "Luis", ZoneID: ZoneSouth, DepartmentID: DeptMaintenance},
		},
		Groups: []Group{{ID: GroupOffice, Name: "Papeleria"}},
		Materials: []Material{
			{ID: MaterialPaper, GroupID: GroupOffice, UnitPrice: decimal.RequireFromString("1234.5"),
				Unit: "CAJA", SAPDescription: "PAPEL BOND CARTA", Description: "Papel bond carta", Active: true},
			{ID: MaterialToner, GroupID: GroupOffice, UnitPrice: decimal.RequireFromString("89.9"),
				Unit: "PZA", SAPDescription: "TONER NEGRO", Description: "Toner negro", Active: true},
			{ID: MaterialRetired, GroupID: GroupOffice, UnitPrice: decimal.RequireFromString("10"),
				Unit: "PZA", SAPDescription: "CINTA MAQUINA", Description: "Cinta para maquina", Active: false},
		},
		Periods: []Period{
			{ID: PeriodOpen, Description: "Abierto", Start: now.Add(-24 * time.Hour), End: now.Add(24 * time.Hour), Active: true},
			{ID: PeriodClosed, Description: "Cerrado", Start: now.Add(-30 * 24 * time.Hour), End: now.Add(-24 * time.Hour), Active: true},
			{ID: PeriodInactive, Description: "Inactivo", Start: now.Add(-24 * time.Hour), End: now.Add(24 * time.Hour), Active: false},
			{ID: PeriodFuture, Description: "Futuro", Start: now.Add(7 * 24 * time.Hour), End: now.Add(14 * 24 * time.Hour), Active: true},
		},
	}
}

// NewSQLite opens an in-memory database with the schema applied.
func NewSQLite(t testing.TB) *store.DB {
	t.Helper()

	db, err := store.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.CreateSchema(context.Background()))
	return db
}

// Seed inserts every row of f.
func Seed(t testing.TB, db *store.DB, f Fixture) {
	t.Helper()
	ctx := context.Background()

	exec := func(query string, args ...any) {
		t.Helper()
		_, err := db.Exec(ctx, query, args...)
		require.NoError(t, err)
	}

	for _, z := range f.Zones {
		exec("INSERT INTO zona (id_zona, nombre, centro_gestor, id_responsable) VALUES (?, ?, ?, ?)",
			z.ID, z.Name, z.Center, z.ResponsibleID)
	}
	for _, d := range f.Departments {
		exec("INSERT INTO departamento (id_departamento, nombre, clave) VALUES (?, ?, ?)",
			d.ID, d.Name, d.Key)
	}
	for _, u := range f.Users {
		exec("INSERT INTO usuarios (id_usuario, token, nombre, id_zona, id_departamento) VALUES (?, ?, ?, ?, ?)",
			u.ID, u.Token, u.Name, u.ZoneID, u.DepartmentID)
	}
	for _, g := range f.Groups {
		exec("INSERT INTO grupo (id_grupo, nombre) VALUES (?, ?)", g.ID, g.Name)
	}
	for _, m := range f.Materials {
		exec(`INSERT INTO materiales
			(id_material, id_grupo, precio_unitario, unidad_medida, descripcion_sap, descripcion, activo)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.GroupID, m.UnitPrice, m.Unit, m.SAPDescription, m.Description, m.Active)
	}
	for _, p := range f.Periods {
		exec("INSERT INTO periodo (id_periodo, descripcion, fecha_inicio, fecha_fin, activo) VALUES (?, ?, ?, ?, ?)",
			p.ID, p.Description, p.Start, p.End, p.Active)
	}
}

// CountRequisitions returns the number of requisition rows.
func CountRequisitions(t testing.TB, db *store.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(context.Background(), &n, "SELECT COUNT(*) FROM solicitudes"))
	return n
}
