package datalayer

import (
	"context"
	"math"
	"time"
)

// logQueryWithDuration logs SQL statements with execution time at debug level if a logger is configured.
func (db *DB) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	db.logDebug(ctx, logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
}

// logOperation logs operational information at info level if a logger is configured.
func (db *DB) logOperation(ctx context.Context, action string, args ...any) {
	db.logInfo(ctx, logMsgOperation+action, args...)
}

// logError logs error information at the error level if a logger is configured.
func (db *DB) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	switch {
	case db.contextualLogger != nil:
		db.contextualLogger.ErrorContext(ctx, message, allArgs...)
	case db.logger != nil:
		db.logger.Error(message, allArgs...)
	}
}

func (db *DB) logDebug(ctx context.Context, msg string, args ...any) {
	switch {
	case db.contextualLogger != nil:
		db.contextualLogger.DebugContext(ctx, msg, args...)
	case db.logger != nil:
		db.logger.Debug(msg, args...)
	}
}

func (db *DB) logInfo(ctx context.Context, msg string, args ...any) {
	switch {
	case db.contextualLogger != nil:
		db.contextualLogger.InfoContext(ctx, msg, args...)
	case db.logger != nil:
		db.logger.Info(msg, args...)
	}
}

func (db *DB) logWarn(ctx context.Context, msg string, args ...any) {
	switch {
	case db.contextualLogger != nil:
		db.contextualLogger.WarnContext(ctx, msg, args...)
	case db.logger != nil:
		db.logger.Warn(msg, args...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
