// Package datalayer provides a small entity-mapping layer on top of a relational database.
//
// Entities are defined at runtime from typed attribute descriptors and registered in an explicit
// Registry owned by the DB handle. Instances are plain value maps with a before-image of the last
// persisted state, so lifecycle hooks can observe both the pending and the previous values.
//
// Every mutation runs as a pipeline of before hooks, one SQL statement, and after hooks inside a
// transaction: the caller's transaction when one is supplied through the options, otherwise an
// implicit one which the layer opens and commits itself. Hooks always receive the effective
// transaction, so statements they issue commit or roll back together with the mutation.
//
// SQL is built with goqu for the "postgres" and "sqlite3" dialects and executed through adapters
// for pgxpool.Pool, sql.DB, and sqlx.DB:
//
//	db, err := datalayer.NewDBFromSQLDB(sqlDB, datalayer.DialectSQLite3, datalayer.WithLogger(slog.Default()))
//	users, err := db.Define("User", []datalayer.Attribute{{Name: "name", Type: datalayer.TypeText}},
//		datalayer.EntityOptions{Timestamps: true})
//	err = db.Sync(ctx, datalayer.SyncOptions{})
//	user, err := users.Create(ctx, datalayer.Values{"name": "alice"}, datalayer.MutationOptions{})
//
// Relationships are metadata only: they drive FindAssociated but no database-level foreign keys
// are emitted.
package datalayer
