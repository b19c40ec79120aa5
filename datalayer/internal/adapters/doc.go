// Package adapters provide database adapter implementations for the entity data layer.
//
// This package implements the adapter pattern to support multiple database libraries:
// pgx.Pool, sql.DB, and sqlx.DB. All adapters provide equivalent functionality through
// a common DBAdapter interface, allowing the data layer to work seamlessly with any
// supported database connection type.
//
// Every adapter can open a transaction. The returned TxAdapter exposes the same query
// surface, so statements issued from lifecycle hooks run on the caller's transaction.
package adapters
