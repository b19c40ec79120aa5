package config

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver for the sqlx path
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

var ErrConnectingFailed = errors.New("connecting to the database failed")

// Connection is an open data layer DB together with the handle that owns its connections.
type Connection struct {
	DB    *datalayer.DB
	close func()
}

// Close releases the underlying connection pool.
func (c *Connection) Close() {
	if c.close != nil {
		c.close()
	}
}

// Open connects according to the database section, verifies the connection and wraps it in a data layer DB.
//
// sqlite goes through database/sql, postgres through sqlx with lib/pq, and pgx through a pgxpool.
func Open(ctx context.Context, cfg Database, options ...datalayer.Option) (*Connection, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return openSQLDB(ctx, cfg, options)
	case DriverPostgres:
		return openSQLX(ctx, cfg, options)
	case DriverPGX:
		return openPGXPool(ctx, cfg, options)
	default:
		return nil, ErrUnsupportedDriver
	}
}

func openSQLDB(ctx context.Context, cfg Database, options []datalayer.Option) (*Connection, error) {
	sqlDB, err := sql.Open(DriverSQLite, cfg.DSN)
	if err != nil {
		return nil, errors.Join(ErrConnectingFailed, err)
	}
	configurePool(sqlDB, cfg)

	if err := pingWithTimeout(ctx, cfg, sqlDB.PingContext); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	db, err := datalayer.NewDBFromSQLDB(sqlDB, datalayer.DialectSQLite3, options...)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &Connection{DB: db, close: func() { _ = sqlDB.Close() }}, nil
}

func openSQLX(ctx context.Context, cfg Database, options []datalayer.Option) (*Connection, error) {
	sqlxDB, err := sqlx.Open(DriverPostgres, cfg.DSN)
	if err != nil {
		return nil, errors.Join(ErrConnectingFailed, err)
	}
	configurePool(sqlxDB.DB, cfg)

	if err := pingWithTimeout(ctx, cfg, sqlxDB.PingContext); err != nil {
		_ = sqlxDB.Close()
		return nil, err
	}

	db, err := datalayer.NewDBFromSQLX(sqlxDB, datalayer.DialectPostgres, options...)
	if err != nil {
		_ = sqlxDB.Close()
		return nil, err
	}

	return &Connection{DB: db, close: func() { _ = sqlxDB.Close() }}, nil
}

func openPGXPool(ctx context.Context, cfg Database, options []datalayer.Option) (*Connection, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Join(ErrConnectingFailed, err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns) //nolint:gosec
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(min(cfg.MaxIdleConns, cfg.MaxOpenConns)) //nolint:gosec
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Join(ErrConnectingFailed, err)
	}

	if err := pingWithTimeout(ctx, cfg, pool.Ping); err != nil {
		pool.Close()
		return nil, err
	}

	db, err := datalayer.NewDBFromPGXPool(pool, options...)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Connection{DB: db, close: pool.Close}, nil
}

func configurePool(db *sql.DB, cfg Database) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

func pingWithTimeout(ctx context.Context, cfg Database, ping func(context.Context) error) error {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	if err := ping(ctx); err != nil {
		return errors.Join(ErrConnectingFailed, err)
	}

	return nil
}
