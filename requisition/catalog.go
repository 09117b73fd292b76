package requisition

import (
	"context"
	"fmt"
)

// CatalogKind names a read-only reference table.
type CatalogKind string

const (
	CatalogMaterials   CatalogKind = "materiales"
	CatalogGroups      CatalogKind = "grupos"
	CatalogUsers       CatalogKind = "usuarios"
	CatalogZones       CatalogKind = "zonas"
	CatalogDepartments CatalogKind = "departamentos"
	CatalogPeriods     CatalogKind = "periodos"

	// CatalogCapture lists the materials that can be requested.
	CatalogCapture CatalogKind = "capturar"
)

// Table is a tabular catalog. Rows is nil when the catalog is empty.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]any
}

// Empty reports the no-data signal.
func (t Table) Empty() bool { return t.Rows == nil }

type catalogDef struct {
	title   string
	columns []string
}

var catalogs = map[CatalogKind]catalogDef{
	CatalogMaterials:   {"Materiales", []string{"id", "Grupo", "Precio Unitario", "Unidad", "Descripción"}},
	CatalogGroups:      {"Grupos de Materiales", []string{"id", "Nombre"}},
	CatalogUsers:       {"Usuarios", []string{"id", "Nombre", "Departamento", "Zona"}},
	CatalogZones:       {"Zonas", []string{"id", "Nombre", "Centro Gestor"}},
	CatalogDepartments: {"Departamentos", []string{"id", "Nombre", "Clave"}},
	CatalogPeriods:     {"Periodos de apertura", []string{"id", "Nombre", "Fecha Inicial", "Fecha Final", "Activo"}},
	CatalogCapture:     {"Captura de solicitudes", []string{"id", "Grupo", "Precio Unitario", "Unidad", "Descripción"}},
}

// Catalog reads reference tables.
type Catalog struct {
	store CatalogStore
}

func NewCatalog(store CatalogStore) *Catalog {
	return &Catalog{store: store}
}

// Read returns the catalog with display title and headings.
func (c *Catalog) Read(ctx context.Context, kind CatalogKind) (Table, error) {
	def, ok := catalogs[kind]
	if !ok {
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownCatalog, kind)
	}

	t, err := c.store.Catalog(ctx, kind)
	if err != nil {
		return Table{}, fmt.Errorf("read catalog %s: %w", kind, err)
	}

	t.Title = def.title
	t.Columns = def.columns
	if len(t.Rows) == 0 {
		t.Rows = nil
	}
	return t, nil
}
