package datalayer

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/AntonStoeckl/temporal-history-go/datalayer/internal/adapters"
)

// Dialect names the SQL flavor used for query building and DDL.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite3  Dialect = "sqlite3"
)

const (
	logMsgSQLExecuted        = "executed sql for: "
	logMsgOperation          = "datalayer operation: "
	logMsgBuildQueryFailed   = "failed to build sql query"
	logMsgDBQueryFailed      = "database query execution failed"
	logMsgDBExecFailed       = "database statement execution failed"
	logMsgCloseRowsFailed    = "failed to close database rows"
	logMsgRollbackFailed     = "failed to roll back transaction"
	logMsgEntityDefined      = "entity defined"
	logMsgEntityUnregistered = "entity unregistered"
	logMsgSyncCompleted      = "schema sync completed"
	logMsgHookFailed         = "lifecycle hook failed"
	logAttrError             = "error"
	logAttrQuery             = "query"
	logAttrDurationMS        = "duration_ms"
	logAttrEntity            = "entity"
	logAttrTable             = "table"
	logAttrHook              = "hook"
	logAttrEvent             = "event"
	logAttrEntityCount       = "entity_count"
	logAttrRowsAffected      = "rows_affected"
	logActionQuery           = "query"
	logActionInsert          = "insert"
	logActionUpdate          = "update"
	logActionDelete          = "delete"
	logActionDDL             = "ddl"
)

// Logger interface for SQL query logging, operational messages, warnings, and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ContextualLogger interface for context-aware logging with automatic trace correlation.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// DB is a handle on one database together with the entities defined on it.
type DB struct {
	adapter          adapters.DBAdapter
	dialect          Dialect
	builder          goqu.DialectWrapper
	registry         *Registry
	logger           Logger
	contextualLogger ContextualLogger
	clock            func() time.Time

	hooksMu   sync.RWMutex
	syncHooks map[HookEvent][]syncHook
}

// Option defines a functional option for configuring DB.
type Option func(*DB) error

// WithLogger sets the logger for the DB.
// Debug level receives every SQL statement with its duration, Info level receives definitions and syncs.
func WithLogger(logger Logger) Option {
	return func(db *DB) error {
		db.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger which takes precedence over the plain Logger.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(db *DB) error {
		db.contextualLogger = logger
		return nil
	}
}

// WithClock replaces the time source used for timestamp attributes and capture-time defaults.
func WithClock(clock func() time.Time) Option {
	return func(db *DB) error {
		if clock == nil {
			return ErrNilClock
		}

		db.clock = clock

		return nil
	}
}

// NewDBFromPGXPool creates a new DB using a pgx Pool with the postgres dialect.
func NewDBFromPGXPool(pool *pgxpool.Pool, options ...Option) (*DB, error) {
	if pool == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newDB(adapters.NewPGXAdapter(pool), DialectPostgres, options...)
}

// NewDBFromSQLDB creates a new DB using a sql.DB.
func NewDBFromSQLDB(db *sql.DB, dialect Dialect, options ...Option) (*DB, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newDB(adapters.NewSQLAdapter(db), dialect, options...)
}

// NewDBFromSQLX creates a new DB using a sqlx.DB.
func NewDBFromSQLX(db *sqlx.DB, dialect Dialect, options ...Option) (*DB, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newDB(adapters.NewSQLXAdapter(db), dialect, options...)
}

func newDB(adapter adapters.DBAdapter, dialect Dialect, options ...Option) (*DB, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite3 {
		return nil, ErrUnsupportedDialect
	}

	db := &DB{
		adapter:   adapter,
		dialect:   dialect,
		builder:   goqu.Dialect(string(dialect)),
		registry:  newRegistry(),
		clock:     time.Now,
		syncHooks: make(map[HookEvent][]syncHook),
	}

	for _, option := range options {
		if err := option(db); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// Dialect returns the SQL dialect of the DB.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Registry returns the entity registry of the DB.
func (db *DB) Registry() *Registry {
	return db.registry
}

// Entity returns the entity registered under name.
func (db *DB) Entity(name string) (*Entity, error) {
	e, ok := db.registry.Lookup(name)
	if !ok {
		return nil, errors.Join(ErrUnknownEntity, errors.New(name))
	}

	return e, nil
}

// Unregister removes an entity from the registry. Its table is left untouched.
func (db *DB) Unregister(ctx context.Context, name string) bool {
	removed := db.registry.Unregister(name)
	if removed {
		db.logInfo(ctx, logMsgEntityUnregistered, logAttrEntity, name)
	}

	return removed
}

// Now returns the current time of the DB clock, truncated to what every dialect can store.
func (db *DB) Now() time.Time {
	return db.clock().UTC().Truncate(time.Microsecond)
}
