package requisition

import "context"

// =============================================================================
// STORE - Persistence interface for periods and requisitions
// =============================================================================
//
// Implementations:
//   - store/sqlstore: SQLite, MariaDB and Postgres
//   - requisition/memstore: In-memory for testing

// Store handles persistence of requisitions and the periods they belong to.
type Store interface {
	// FindPeriod returns the period. ErrPeriodNotFound when absent.
	FindPeriod(ctx context.Context, id int64) (Period, error)

	// ListActivePeriods returns active periods ordered by start, newest first.
	ListActivePeriods(ctx context.Context) ([]Period, error)

	// FindRequisition returns the row for key. found is false when absent.
	FindRequisition(ctx context.Context, key Key) (r Requisition, found bool, err error)

	// InsertRequisition writes a new row.
	InsertRequisition(ctx context.Context, r Requisition) error

	// UpdateRequisition sets the quantity of the existing row r.Key. A nil
	// r.Comment keeps the stored comment.
	UpdateRequisition(ctx context.Context, r Requisition) error

	// UpsertRequisition inserts r, or updates it as UpdateRequisition does
	// when a row with the same key exists, in one statement.
	UpsertRequisition(ctx context.Context, r Requisition) error

	// FindMaterial reports whether the material exists and is active.
	FindMaterial(ctx context.Context, id string) (active, found bool, err error)

	// ListLines returns the rows matching f joined with their material.
	ListLines(ctx context.Context, f Filter) ([]Line, error)

	// DeleteRequisitions removes every row of owner for the material.
	DeleteRequisitions(ctx context.Context, materialID string, owner Owner) (int64, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// CatalogStore reads reference tables.
type CatalogStore interface {
	Catalog(ctx context.Context, kind CatalogKind) (Table, error)
}
