// Package temporal attaches an append-only audit trail to entities of the datalayer package.
//
// Every tracked ("origin") entity gets a derived "shadow" entity, named after the origin plus a suffix
// (default "History"), whose rows are snapshots of origin instances taken at mutation time.
// Shadow rows carry the copied origin values plus two owned fields:
//   - shadowId: auto-increment surrogate key
//   - archivedAt: the capture time
//
// Capture modes:
//   - CaptureDiff (default): before update and before destroy, the values the instance held before
//     the mutation are stored. Creation produces no snapshot.
//   - CaptureFull: after create, update, destroy and restore, the post-mutation values are stored.
//
// Set-based mutations (UpdateWhere, DestroyWhere) are captured by materializing the matching rows in
// the same transaction before the statement runs.
//
// Snapshots are written in the transaction of the triggering mutation, so a rollback discards them.
// In non-blocking mode the write is detached from the mutation and failures are reported to a
// FailureHandler instead of the caller.
//
// Shadow entities reject updates and deletes with ErrReadOnlyViolation.
//
// Common usage pattern:
//
//	db, _ := datalayer.NewDBFromPGXPool(pool)
//	users, _ := db.Define("User", []datalayer.Attribute{{Name: "name", Type: datalayer.TypeText}},
//		datalayer.EntityOptions{Timestamps: true})
//
//	if _, err := temporal.Attach(users, db, temporal.WithCaptureMode(temporal.CaptureFull)); err != nil {
//		// handle error
//	}
//
//	_ = db.Sync(ctx, datalayer.SyncOptions{})
//
//	history, _ := temporal.ShadowOf(db, users) // "UserHistory"
package temporal
