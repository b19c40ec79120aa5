package datalayer

import (
	"context"
	"errors"
	"time"

	"github.com/AntonStoeckl/temporal-history-go/datalayer/internal/adapters"
)

// withQueryer hands fn the queryer of tx, holding the transaction lock, or the plain connection.
func (db *DB) withQueryer(tx *Tx, fn func(q adapters.Queryer) error) error {
	if tx == nil {
		return fn(db.adapter)
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.done {
		return ErrTxDone
	}

	return fn(tx.adapter)
}

// queryRows executes a query and materializes every row as raw column values.
func (db *DB) queryRows(ctx context.Context, tx *Tx, sqlQuery string, args []any, columns int) ([][]any, error) {
	var result [][]any

	err := db.withQueryer(tx, func(q adapters.Queryer) error {
		start := time.Now()
		rows, queryErr := q.Query(ctx, sqlQuery, args...)
		db.logQueryWithDuration(ctx, sqlQuery, logActionQuery, time.Since(start))

		if queryErr != nil {
			db.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
			return errors.Join(ErrQueryFailed, queryErr)
		}
		defer db.closeRows(ctx, rows)

		for rows.Next() {
			raw := make([]any, columns)
			dest := make([]any, columns)
			for i := range raw {
				dest[i] = &raw[i]
			}

			if scanErr := rows.Scan(dest...); scanErr != nil {
				return errors.Join(ErrScanningRowFailed, scanErr)
			}

			result = append(result, raw)
		}

		if iterErr := rows.Err(); iterErr != nil {
			return errors.Join(ErrQueryFailed, iterErr)
		}

		return nil
	})

	return result, err
}

// execStatement executes a statement and returns the number of affected rows and the last insert id
// when the driver reports one.
func (db *DB) execStatement(
	ctx context.Context,
	tx *Tx,
	sqlQuery string,
	args []any,
	action string,
) (adapters.DBResult, error) {

	var result adapters.DBResult

	err := db.withQueryer(tx, func(q adapters.Queryer) error {
		start := time.Now()
		res, execErr := q.Exec(ctx, sqlQuery, args...)
		db.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

		if execErr != nil {
			db.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
			return errors.Join(ErrExecFailed, execErr)
		}

		result = res

		return nil
	})

	return result, err
}

// rowsAffected reads the affected row count, logging instead of failing when the driver cannot tell.
func (db *DB) rowsAffected(ctx context.Context, result adapters.DBResult) int64 {
	n, err := result.RowsAffected()
	if err != nil {
		db.logWarn(ctx, logMsgDBExecFailed, logAttrError, err.Error())
		return 0
	}

	return n
}

// closeRows safely closes database rows and logs any errors.
func (db *DB) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		db.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

// buildFailed logs and wraps a goqu build error.
func (db *DB) buildFailed(ctx context.Context, err error) error {
	db.logError(ctx, logMsgBuildQueryFailed, err)
	return errors.Join(ErrBuildingQueryFailed, err)
}
