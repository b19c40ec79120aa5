package helper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver for the sql.db and sqlx.db adapters
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

// Adapter types selectable through ADAPTER_TYPE.
const (
	AdapterPGXPool = "pgx.pool"
	AdapterSQLDB   = "sql.db"
	AdapterSQLXDB  = "sqlx.db"
)

const (
	postgresDSNEnv = "TEMPORAL_TEST_POSTGRES_DSN"
	adapterTypeEnv = "ADAPTER_TYPE"
)

// PostgresDSN returns the DSN of the postgres test database, or an empty string when none is configured.
func PostgresDSN() string {
	return os.Getenv(postgresDSNEnv)
}

// GivenPostgresDB returns a data layer DB on the postgres test database, using the adapter named by
// ADAPTER_TYPE (pgx.pool when unset). The test is skipped when TEMPORAL_TEST_POSTGRES_DSN is unset.
//
// Tables of every entity registered on the DB are dropped when the test ends.
func GivenPostgresDB(t testing.TB, options ...datalayer.Option) *datalayer.DB {
	t.Helper()

	dsn := PostgresDSN()
	if dsn == "" {
		t.Skipf("%s is not set", postgresDSNEnv)
	}

	var db *datalayer.DB

	switch adapterType := strings.ToLower(os.Getenv(adapterTypeEnv)); adapterType {
	case AdapterPGXPool, "":
		poolConfig, err := pgxpool.ParseConfig(dsn)
		require.NoError(t, err, "error parsing the postgres dsn in test setup")
		poolConfig.MaxConns = 10
		poolConfig.ConnConfig.ConnectTimeout = 5 * time.Second

		pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		require.NoError(t, err, "error connecting to DB pool in test setup")
		t.Cleanup(pool.Close)

		db, err = datalayer.NewDBFromPGXPool(pool, options...)
		require.NoError(t, err, "error creating the data layer DB in test setup")

	case AdapterSQLDB:
		sqlDB, err := sql.Open("postgres", dsn)
		require.NoError(t, err, "error opening postgres database in test setup")
		t.Cleanup(func() { _ = sqlDB.Close() })

		db, err = datalayer.NewDBFromSQLDB(sqlDB, datalayer.DialectPostgres, options...)
		require.NoError(t, err, "error creating the data layer DB in test setup")

	case AdapterSQLXDB:
		sqlxDB, err := sqlx.Open("postgres", dsn)
		require.NoError(t, err, "error opening postgres database through sqlx in test setup")
		t.Cleanup(func() { _ = sqlxDB.Close() })

		db, err = datalayer.NewDBFromSQLX(sqlxDB, datalayer.DialectPostgres, options...)
		require.NoError(t, err, "error creating the data layer DB in test setup")

	default:
		t.Fatalf("unsupported adapter type from env: %s", adapterType)
	}

	// Registered after the pool cleanup, so it runs before the pool is closed.
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for _, e := range db.Registry().Entities() {
			_ = db.Drop(ctx, e)
		}
	})

	return db
}

// UniqueName appends a random suffix to name, so tests sharing one postgres database do not collide.
func UniqueName(name string) string {
	return fmt.Sprintf("%s_%s", name, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
