/*
Package store is the persistence adapter between the application and SQL backends.

PURPOSE:
  Opens a connection to the configured backend (SQLite, MariaDB or Postgres)
  and exposes one query surface for all of them. Queries are written with
  positional "?" placeholders; the adapter rebinds them to the backend's
  bind style (sqlx.Rebind), so "?" becomes "$1, $2, ..." on Postgres.

QUERY SURFACE (Handle):
  Query:  Untyped rows (RowSet) for tabular catalogs
  Select: Typed multi-row scan into a slice of structs (db tags)
  Get:    Typed single-row scan; sql.ErrNoRows when absent
  Exec:   Writes

CONNECTION FAILURES:
  A networked backend that cannot be reached yields ErrBackendUnavailable.
  The failure is logged and returned; it never terminates the process and is
  never confused with an empty result. Connector retries on the next call.

SQLITE FILE CHECK:
  Before opening an existing file, its first 16 bytes must be the SQLite
  magic header. This prevents treating an arbitrary file as a database.

SEE ALSO:
  - schema.go: DDL per dialect
  - sqlstore/: Queries used by the application
  - config/config.go: Backend variants
*/
package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/consad/compras/config"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBackendUnavailable is returned when the database cannot be reached.
	ErrBackendUnavailable = errors.New("database backend unavailable")

	// ErrNotSQLite is returned when the configured file is not a SQLite database.
	ErrNotSQLite = errors.New("file is not a SQLite database")

	// ErrUnsupportedBackend is returned for a nil or unknown Backend variant.
	ErrUnsupportedBackend = errors.New("unsupported database backend")
)

// IsForeignKeyViolation reports whether err is a driver error for a
// reference to a missing row.
func IsForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503" // foreign_key_violation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1452 // ER_NO_REFERENCED_ROW_2
	}
	return false
}

// PingTimeout bounds the connectivity check performed by Open.
var PingTimeout = 5 * time.Second

// =============================================================================
// HANDLE - Query surface shared by connections and transactions
// =============================================================================

// Handle runs "?"-placeholder queries against a connection or a transaction.
type Handle struct {
	ext sqlx.ExtContext
}

// Exec runs a statement that returns no rows.
func (h Handle) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return h.ext.ExecContext(ctx, h.ext.Rebind(query), args...)
}

// Select scans all rows into dest, a pointer to a slice.
func (h Handle) Select(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, h.ext, dest, h.ext.Rebind(query), args...)
}

// Get scans a single row into dest. Returns sql.ErrNoRows when there is none.
func (h Handle) Get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, h.ext, dest, h.ext.Rebind(query), args...)
}

// Query returns all rows as untyped values.
func (h Handle) Query(ctx context.Context, query string, args ...any) (*RowSet, error) {
	rows, err := h.ext.QueryxContext(ctx, h.ext.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rs := &RowSet{Columns: cols}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		rs.Rows = append(rs.Rows, values)
	}
	return rs, rows.Err()
}

// RowSet is an untyped query result.
type RowSet struct {
	Columns []string
	Rows    [][]any
}

// Empty reports whether the query matched no rows.
func (rs *RowSet) Empty() bool { return rs == nil || len(rs.Rows) == 0 }

// normalize makes driver values JSON-friendly and uniform across backends.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return x
	}
}

// =============================================================================
// DB - An open backend
// =============================================================================

// DB is an open connection to one backend.
type DB struct {
	Handle
	x      *sqlx.DB
	driver config.Driver
}

// Open connects to the backend and verifies connectivity.
func Open(ctx context.Context, backend config.Backend) (*DB, error) {
	driverName, dsn, err := dataSource(backend)
	if err != nil {
		return nil, err
	}

	x, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}

	if backend.Driver() == config.DriverSQLite {
		// One writer; also keeps ":memory:" databases on a single connection.
		x.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	if err := x.PingContext(pingCtx); err != nil {
		x.Close()
		log.Error().
			Err(err).
			Str("driver", string(backend.Driver())).
			Msg("error connecting to database")
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return &DB{Handle: Handle{ext: x}, x: x, driver: backend.Driver()}, nil
}

// OpenSQLite opens an embedded database at path. Use ":memory:" for tests.
func OpenSQLite(ctx context.Context, path string) (*DB, error) {
	return Open(ctx, config.SQLite{Path: path})
}

// Driver returns the backend discriminant.
func (d *DB) Driver() config.Driver { return d.driver }

// Conn implements Source.
func (d *DB) Conn(context.Context) (*DB, error) { return d, nil }

// Close closes the underlying connection.
func (d *DB) Close() error { return d.x.Close() }

// WithTx executes fn within a transaction.
// If fn returns error, the transaction is rolled back; otherwise it is committed.
func (d *DB) WithTx(ctx context.Context, fn func(Handle) error) error {
	tx, err := d.x.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(Handle{ext: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func dataSource(backend config.Backend) (driverName, dsn string, err error) {
	switch b := backend.(type) {
	case config.SQLite:
		if err := checkSQLiteFile(b.Path); err != nil {
			return "", "", err
		}
		return "sqlite3", b.Path + "?_foreign_keys=on&_busy_timeout=5000", nil

	case config.MariaDB:
		mc := mysql.NewConfig()
		mc.User = b.User
		mc.Passwd = b.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
		mc.DBName = b.Database
		mc.ParseTime = true
		return "mysql", mc.FormatDSN(), nil

	case config.Postgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			b.Host, b.Port, b.User, quoteDSN(b.Password), b.Database, b.SSLMode)
		return "postgres", dsn, nil

	default:
		return "", "", fmt.Errorf("%w: %T", ErrUnsupportedBackend, backend)
	}
}

// quoteDSN quotes a lib/pq keyword value when it contains spaces or quotes.
func quoteDSN(s string) string {
	if s == "" || strings.ContainsAny(s, ` '\`) {
		r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
		return "'" + r.Replace(s) + "'"
	}
	return s
}

// =============================================================================
// SQLITE FILE CHECK
// =============================================================================

var sqliteMagic = []byte("SQLite format 3\x00")

// sqliteHeaderSize is the size of the SQLite database header.
const sqliteHeaderSize = 100

// checkSQLiteFile rejects existing files that are not SQLite databases.
// A missing or zero-length file is a new database.
func checkSQLiteFile(path string) error {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}

	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrNotSQLite, path)
	}
	if fi.Size() == 0 {
		return nil
	}
	if fi.Size() < sqliteHeaderSize {
		return fmt.Errorf("%w: %s", ErrNotSQLite, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, len(sqliteMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("read header %s: %w", path, err)
	}
	if !bytes.Equal(header, sqliteMagic) {
		return fmt.Errorf("%w: %s", ErrNotSQLite, path)
	}
	return nil
}

// =============================================================================
// CONNECTOR - Lazy connection that survives an unavailable backend
// =============================================================================

// Source yields an open DB. Both *DB and *Connector implement it.
type Source interface {
	Conn(ctx context.Context) (*DB, error)
}

// Connector opens the backend on first use and keeps the connection.
// A failed attempt is not cached: the next call tries again. Concurrent
// callers share one attempt, and the lock is not held while it runs.
type Connector struct {
	backend config.Backend
	open    func(context.Context, config.Backend) (*DB, error)
	group   singleflight.Group

	mu sync.Mutex
	db *DB
}

// NewConnector creates a connector for backend without connecting.
func NewConnector(backend config.Backend) *Connector {
	return &Connector{backend: backend, open: Open}
}

// Conn returns the open DB, connecting if needed.
func (c *Connector) Conn(ctx context.Context) (*DB, error) {
	if db := c.current(); db != nil {
		return db, nil
	}

	v, err, _ := c.group.Do("open", func() (any, error) {
		if db := c.current(); db != nil {
			return db, nil
		}

		// Shared by every waiter; bounded by PingTimeout.
		db, err := c.open(context.WithoutCancel(ctx), c.backend)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.db = db
		c.mu.Unlock()
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*DB), nil
}

func (c *Connector) current() *DB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db
}

// Close closes the connection if one was opened.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
