package datalayer_test

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/AntonStoeckl/temporal-history-go/datalayer"
	"github.com/AntonStoeckl/temporal-history-go/testutil/helper"
)

func givenPostgresMockDB(t *testing.T, options ...Option) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := NewDBFromSQLDB(sqlDB, DialectPostgres, options...)
	require.NoError(t, err)

	return db, mock
}

func Test_NewDB_When_Invalid_Input_Fails(t *testing.T) {
	// setup
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	// act
	_, nilErr := NewDBFromSQLDB(nil, DialectSQLite3)
	_, dialectErr := NewDBFromSQLDB(sqlDB, Dialect("oracle"))
	_, clockErr := NewDBFromSQLDB(sqlDB, DialectSQLite3, WithClock(nil))
	_, pgxErr := NewDBFromPGXPool(nil)

	// assert
	assert.ErrorIs(t, nilErr, ErrNilDatabaseConnection)
	assert.ErrorIs(t, dialectErr, ErrUnsupportedDialect)
	assert.ErrorIs(t, clockErr, ErrNilClock)
	assert.ErrorIs(t, pgxErr, ErrNilDatabaseConnection)
}

func Test_DDL_For_SQLite(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)

	// arrange
	users, err := db.Define("User", []Attribute{
		{Name: "name", Type: TypeString},
		{Name: "email", Type: TypeText, Unique: true, AllowNull: true},
		{Name: "score", Type: TypeFloat, AllowNull: true},
	}, EntityOptions{
		Timestamps: true,
		Indexes: []Index{
			{Fields: []string{"name"}},
			{Name: "user_email_unique", Fields: []string{"email"}, Type: "UNIQUE"},
		},
	})
	require.NoError(t, err)

	// act
	statements := db.DDL(users)

	// assert
	assert.Equal(t, []string{
		`CREATE TABLE IF NOT EXISTS "User" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "name" VARCHAR(255) NOT NULL, ` +
			`"email" TEXT UNIQUE, "score" REAL, "createdAt" TIMESTAMP NOT NULL, "updatedAt" TIMESTAMP NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS "User_name" ON "User" ("name")`,
		`CREATE UNIQUE INDEX IF NOT EXISTS "user_email_unique" ON "User" ("email")`,
	}, statements)
}

func Test_DDL_For_Postgres(t *testing.T) {
	// setup
	db, _ := givenPostgresMockDB(t)

	// arrange
	history, err := db.Define("UserHistory", []Attribute{
		{Name: "id", Type: TypeInteger},
		{Name: "payload", Type: TypeJSON, AllowNull: true},
		{Name: "shadowId", Type: TypeBigInt, PrimaryKey: true, AutoIncrement: true},
		{Name: "archivedAt", Type: TypeTimestamp, Default: NowDefault},
	}, EntityOptions{TableName: "user_history"})
	require.NoError(t, err)

	// act
	statements := db.DDL(history)

	// assert
	assert.Equal(t, []string{
		`CREATE TABLE IF NOT EXISTS "user_history" ("id" INTEGER NOT NULL, "payload" JSONB, ` +
			`"shadowId" BIGSERIAL PRIMARY KEY, "archivedAt" TIMESTAMPTZ NOT NULL)`,
	}, statements)
}

func Test_Sync_Runs_Sync_Hooks_Around_Table_Creation(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logHandler := helper.NewLogHandlerSpy(false)
	db, mock := givenPostgresMockDB(t, WithLogger(slog.New(logHandler)))
	_, err := db.Define("Tag", []Attribute{{Name: "name", Type: TypeText}}, EntityOptions{})
	require.NoError(t, err)

	// arrange
	var order []string
	require.NoError(t, db.AddSyncHook(BeforeSchemaSync, "before", func(context.Context, *DB) error {
		order = append(order, "before")
		return nil
	}))
	require.NoError(t, db.AddSyncHook(AfterSchemaSync, "after", func(context.Context, *DB) error {
		order = append(order, "after")
		return nil
	}))

	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "Tag"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "Tag" ("id" SERIAL PRIMARY KEY, "name" TEXT NOT NULL)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// act
	err = db.Sync(ctxWithTimeout, SyncOptions{Force: true})

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"before", "after"}, order)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, logHandler.HasInfoLogWithMessage("schema sync completed").WithAttribute("entity_count", "1").Assert())
	assert.True(t, logHandler.HasDebugLogWithMessagePrefix("executed sql for: ddl"))
}

func Test_Sync_When_Hook_Fails_Stops_Before_Creating_Tables(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, mock := givenPostgresMockDB(t)
	_, err := db.Define("Tag", []Attribute{{Name: "name", Type: TypeText}}, EntityOptions{})
	require.NoError(t, err)

	// arrange
	require.NoError(t, db.AddSyncHook(BeforeSchemaSync, "failing", func(context.Context, *DB) error {
		return errors.New("refused")
	}))

	// act
	err = db.Sync(ctxWithTimeout, SyncOptions{})

	// assert
	assert.ErrorIs(t, err, ErrSyncFailed)
	assert.ErrorIs(t, err, ErrHookFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_Drop_Removes_The_Table_But_Keeps_The_Entity(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, mock := givenPostgresMockDB(t)
	tag, err := db.Define("Tag", []Attribute{{Name: "name", Type: TypeText}}, EntityOptions{TableName: "tags"})
	require.NoError(t, err)

	// arrange
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "tags"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "tags"`)).WillReturnError(errors.New("locked"))

	// act
	err = db.Drop(ctxWithTimeout, tag)
	failedErr := db.Drop(ctxWithTimeout, tag)

	// assert
	require.NoError(t, err)
	assert.ErrorIs(t, failedErr, ErrExecFailed)
	_, found := db.Registry().Lookup("Tag")
	assert.True(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_SyncHooks_Are_Named_And_Removable(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)
	noop := func(context.Context, *DB) error { return nil }

	// act
	firstErr := db.AddSyncHook(BeforeSchemaSync, "mirror", noop)
	duplicateErr := db.AddSyncHook(BeforeSchemaSync, "mirror", noop)
	wrongEventErr := db.AddSyncHook(BeforeCreate, "mirror", noop)
	removed := db.RemoveSyncHook(BeforeSchemaSync, "mirror")

	// assert
	assert.NoError(t, firstErr)
	assert.ErrorIs(t, duplicateErr, ErrDuplicateHook)
	assert.ErrorIs(t, wrongEventErr, ErrInvalidHookEvent)
	assert.True(t, removed)
	assert.False(t, db.HasSyncHook(BeforeSchemaSync, "mirror"))
}

func Test_Create_On_Postgres_Reads_Generated_Key_With_Returning(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, mock := givenPostgresMockDB(t)
	tags, err := db.Define("Tag", []Attribute{{Name: "name", Type: TypeText}}, EntityOptions{})
	require.NoError(t, err)

	// arrange
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "Tag" ("name") VALUES ($1) RETURNING "id"`)).
		WithArgs("go").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectCommit()

	// act
	tag, err := tags.Create(ctxWithTimeout, Values{"name": "go"}, MutationOptions{})

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(7), tag.Get("id"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_BulkCreate_On_Postgres_Uses_One_Multi_Row_Insert(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, mock := givenPostgresMockDB(t)
	tags, err := db.Define("Tag", []Attribute{{Name: "name", Type: TypeText}}, EntityOptions{})
	require.NoError(t, err)

	// arrange
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "Tag" ("name") VALUES ($1), ($2) RETURNING "id"`)).
		WithArgs("go", "sql").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))
	mock.ExpectCommit()

	// act
	created, err := tags.BulkCreate(ctxWithTimeout, []Values{{"name": "go"}, {"name": "sql"}}, MutationOptions{})

	// assert
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, int64(2), created[1].Get("id"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func Test_Query_Failure_Rolls_Back_The_Implicit_Tx(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logHandler := helper.NewLogHandlerSpy(false)
	db, mock := givenPostgresMockDB(t, WithLogger(slog.New(logHandler)))
	tags, err := db.Define("Tag", []Attribute{{Name: "name", Type: TypeText}}, EntityOptions{})
	require.NoError(t, err)

	// arrange
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "Tag"`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	// act
	_, err = tags.Create(ctxWithTimeout, Values{"name": "go"}, MutationOptions{})

	// assert
	assert.ErrorIs(t, err, ErrQueryFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, logHandler.HasErrorLogWithMessage("database query execution failed").
		WithAttribute("error", "connection reset").
		Assert())
}
