//go:build integration

// Runs the SQL store against a real Postgres.
// Run with: go test -tags integration ./store/sqlstore/... -v

package sqlstore_test

import (
	"context"
	"testing"

	"github.com/consad/compras/config"
	"github.com/consad/compras/requisition"
	"github.com/consad/compras/store"
	"github.com/consad/compras/store/sqlstore"
	"github.com/consad/compras/store/storetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func newPostgres(t *testing.T) *store.DB {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("compras_test"),
		tcPostgres.WithUsername("compras"),
		tcPostgres.WithPassword("compras"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := store.Open(ctx, config.Postgres{
		Host:     host,
		Port:     port.Int(),
		User:     "compras",
		Password: "compras",
		Database: "compras_test",
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.CreateSchema(ctx))
	return db
}

func TestPostgres_SubmitListDelete(t *testing.T) {
	db := newPostgres(t)
	ctx := context.Background()

	// Seed writes "?" placeholders; the adapter rebinds them to "$n".
	storetest.Seed(t, db, storetest.DefaultFixture())
	s := sqlstore.New(db)

	ids, err := s.IdentitiesByToken(ctx, storetest.TokenAna)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	owner := ids[0].Owner()

	for _, atomic := range []bool{true, false} {
		engine := requisition.NewEngine(s, requisition.WithAtomicUpsert(atomic))
		sub := requisition.Submission{
			MaterialID: storetest.MaterialPaper,
			Quantity:   decimal.NewFromInt(5),
			PeriodID:   storetest.PeriodOpen,
			Owner:      owner,
		}
		require.NoError(t, engine.Submit(ctx, sub))
		require.NoError(t, engine.Submit(ctx, sub))
	}
	assert.Equal(t, 1, storetest.CountRequisitions(t, db))

	lines, err := requisition.NewReader(s).List(ctx, requisition.Filter{
		ZoneID: owner.ZoneID, DepartmentID: owner.DepartmentID, PeriodID: storetest.PeriodOpen,
	})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "1,234.50", lines[0].Row()[5])

	require.NoError(t, requisition.NewReader(s).Delete(ctx, storetest.MaterialPaper, owner))
	assert.Zero(t, storetest.CountRequisitions(t, db))
}

func TestPostgres_ActivePeriodsAndCatalogs(t *testing.T) {
	db := newPostgres(t)
	storetest.Seed(t, db, storetest.DefaultFixture())
	s := sqlstore.New(db)

	periods, err := s.ListActivePeriods(context.Background())
	require.NoError(t, err)
	assert.Len(t, periods, 3)

	table, err := s.Catalog(context.Background(), requisition.CatalogCapture)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
}
