package helper

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite" // driver import

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

const sqliteDriverName = "sqlite"

// SQLiteDSN returns a DSN for a database file in dir: WAL journal, immediate write locks, a busy
// timeout, and the sqlite time format so timestamps round-trip as text.
func SQLiteDSN(dir string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate&_time_format=sqlite",
		filepath.Join(dir, "test.db"),
	)
}

// OpenSQLite opens a fresh file-backed sqlite database that is closed when the test ends.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()

	return OpenSQLiteAt(t, t.TempDir())
}

// OpenSQLiteAt opens the database file SQLiteDSN places in dir.
func OpenSQLiteAt(t testing.TB, dir string) *sql.DB {
	t.Helper()

	db, err := sql.Open(sqliteDriverName, SQLiteDSN(dir))
	require.NoError(t, err, "error opening sqlite database in test setup")

	db.SetConnMaxLifetime(time.Minute)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// GivenSQLiteDB returns a data layer DB on a fresh sqlite database.
func GivenSQLiteDB(t testing.TB, options ...datalayer.Option) *datalayer.DB {
	t.Helper()

	db, err := datalayer.NewDBFromSQLDB(OpenSQLite(t), datalayer.DialectSQLite3, options...)
	require.NoError(t, err, "error creating the data layer DB in test setup")

	return db
}

// GivenSQLXSQLiteDB returns a data layer DB on a fresh sqlite database opened through sqlx.
func GivenSQLXSQLiteDB(t testing.TB, options ...datalayer.Option) *datalayer.DB {
	t.Helper()

	sqlxDB, err := sqlx.Open(sqliteDriverName, SQLiteDSN(t.TempDir()))
	require.NoError(t, err, "error opening sqlite database through sqlx in test setup")
	t.Cleanup(func() { _ = sqlxDB.Close() })

	db, err := datalayer.NewDBFromSQLX(sqlxDB, datalayer.DialectSQLite3, options...)
	require.NoError(t, err, "error creating the data layer DB in test setup")

	return db
}

// SteppingClock returns a clock which advances by one second on every call, starting at start.
func SteppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start.Add(-time.Second)

	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		current = current.Add(time.Second)

		return current
	}
}
