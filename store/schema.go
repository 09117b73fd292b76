package store

import (
	"context"
	"fmt"

	"github.com/consad/compras/config"
)

// =============================================================================
// SCHEMA - Idempotent DDL per dialect
// =============================================================================
//
// Tables keep the names used by the queries in sqlstore/. Referential
// integrity lives here: deleting a zone, department, group, material or
// period cascades to its dependent rows. zona.id_responsable is a weak
// back-reference to a user and has no constraint.
//
// Only creation is supported. There is no migration path.

type dialect struct {
	pk      string // integer primary key
	text    string // short indexed text
	decimal string
	ts      string
	boolean string
	now     string
}

var dialects = map[config.Driver]dialect{
	config.DriverSQLite: {
		pk: "INTEGER PRIMARY KEY", text: "TEXT", decimal: "DECIMAL(14,2)",
		ts: "TIMESTAMP", boolean: "BOOLEAN NOT NULL DEFAULT 1", now: "CURRENT_TIMESTAMP",
	},
	config.DriverMariaDB: {
		pk: "INTEGER PRIMARY KEY", text: "VARCHAR(255)", decimal: "DECIMAL(14,2)",
		ts: "DATETIME", boolean: "BOOLEAN NOT NULL DEFAULT TRUE", now: "CURRENT_TIMESTAMP",
	},
	config.DriverPostgres: {
		pk: "INTEGER PRIMARY KEY", text: "VARCHAR(255)", decimal: "NUMERIC(14,2)",
		ts: "TIMESTAMP", boolean: "BOOLEAN NOT NULL DEFAULT TRUE", now: "CURRENT_TIMESTAMP",
	},
}

func schemaFor(d dialect) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS zona (
			id_zona %s,
			nombre %s NOT NULL,
			centro_gestor %s NOT NULL,
			id_responsable INTEGER NULL
		)`, d.pk, d.text, d.text),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS departamento (
			id_departamento %s,
			nombre %s NOT NULL,
			clave %s NOT NULL
		)`, d.pk, d.text, d.text),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS usuarios (
			id_usuario %s,
			token %s NOT NULL UNIQUE,
			nombre %s NOT NULL,
			id_zona INTEGER NOT NULL,
			id_departamento INTEGER NOT NULL,
			FOREIGN KEY (id_zona) REFERENCES zona (id_zona) ON DELETE CASCADE,
			FOREIGN KEY (id_departamento) REFERENCES departamento (id_departamento) ON DELETE CASCADE
		)`, d.pk, d.text, d.text),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS grupo (
			id_grupo %s,
			nombre %s NOT NULL
		)`, d.pk, d.text),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS materiales (
			id_material %s PRIMARY KEY,
			id_grupo INTEGER NOT NULL,
			precio_unitario %s NOT NULL,
			unidad_medida %s NOT NULL,
			descripcion_sap %s NOT NULL,
			descripcion %s NOT NULL,
			activo %s,
			FOREIGN KEY (id_grupo) REFERENCES grupo (id_grupo) ON DELETE CASCADE
		)`, d.text, d.decimal, d.text, d.text, d.text, d.boolean),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS periodo (
			id_periodo %s,
			descripcion %s NOT NULL,
			fecha_inicio %s NOT NULL,
			fecha_fin %s NOT NULL,
			activo %s
		)`, d.pk, d.text, d.ts, d.ts, d.boolean),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS solicitudes (
			id_material %s NOT NULL,
			id_zona INTEGER NOT NULL,
			id_departamento INTEGER NOT NULL,
			id_periodo INTEGER NOT NULL,
			cantidad %s NOT NULL CHECK (cantidad >= 1),
			fecha_registro %s NOT NULL DEFAULT %s,
			comentarios %s NULL,
			PRIMARY KEY (id_material, id_zona, id_departamento, id_periodo),
			FOREIGN KEY (id_material) REFERENCES materiales (id_material) ON DELETE CASCADE,
			FOREIGN KEY (id_zona) REFERENCES zona (id_zona) ON DELETE CASCADE,
			FOREIGN KEY (id_departamento) REFERENCES departamento (id_departamento) ON DELETE CASCADE,
			FOREIGN KEY (id_periodo) REFERENCES periodo (id_periodo) ON DELETE CASCADE
		)`, d.text, d.decimal, d.ts, d.now, "TEXT"),
	}
}

// CreateSchema creates all tables that do not exist yet.
func (d *DB) CreateSchema(ctx context.Context) error {
	dl, ok := dialects[d.driver]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedBackend, d.driver)
	}

	for _, stmt := range schemaFor(dl) {
		if _, err := d.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
