package datalayer

import (
	"context"

	"github.com/doug-martin/goqu/v9"
)

// BulkOptions control a set-based update or destroy.
// With IndividualHooks the rows are loaded and mutated one by one through the instance pipeline,
// and only the bulk hooks of the call itself fire around that.
type BulkOptions struct {
	Where           Where
	Values          Values
	Tx              *Tx
	IndividualHooks bool
	Silent          bool
	Force           bool
}

// UpdateWhere applies values to every row matching opts.Where and returns the affected row count.
// A call that would change nothing returns before any hook runs.
func (e *Entity) UpdateWhere(ctx context.Context, values Values, opts BulkOptions) (int64, error) {
	opts.Values = values.Clone()

	if len(opts.Values) == 0 && (opts.Silent || e.timestampAttribute(RoleUpdatedAt) == "") {
		return 0, nil
	}

	var affected int64

	err := e.db.pipeline(ctx, opts.Tx, func(tx *Tx) error {
		hookOpts := opts
		hookOpts.Tx = tx

		if err := e.runBulkHooks(ctx, BeforeBulkUpdate, &hookOpts); err != nil {
			return err
		}

		if hookOpts.IndividualHooks {
			n, err := e.updateIndividually(ctx, tx, hookOpts)
			if err != nil {
				return err
			}
			affected = n
		} else {
			n, err := e.updateSet(ctx, tx, hookOpts)
			if err != nil {
				return err
			}
			affected = n
		}

		return e.runBulkHooks(ctx, AfterBulkUpdate, &hookOpts)
	})

	return affected, err
}

func (e *Entity) updateIndividually(ctx context.Context, tx *Tx, opts BulkOptions) (int64, error) {
	instances, err := e.FindAll(ctx, opts.Where, FindOptions{Tx: tx})
	if err != nil {
		return 0, err
	}

	for _, inst := range instances {
		if err := e.Update(ctx, inst, opts.Values, MutationOptions{Tx: tx, Silent: opts.Silent}); err != nil {
			return 0, err
		}
	}

	return int64(len(instances)), nil
}

func (e *Entity) updateSet(ctx context.Context, tx *Tx, opts BulkOptions) (int64, error) {
	record := goqu.Record{}
	for field, value := range opts.Values {
		attr, ok := e.Attribute(field)
		if !ok {
			return 0, unknownAttribute(e, field)
		}

		if attr.Set != nil {
			value = attr.Set(value)
		}

		encoded, err := encodeValue(attr, normalizeValue(attr, value))
		if err != nil {
			return 0, err
		}
		record[field] = encoded
	}

	if updatedAt := e.timestampAttribute(RoleUpdatedAt); updatedAt != "" && !opts.Silent {
		record[updatedAt] = e.db.Now()
	}

	if len(record) == 0 {
		return 0, nil
	}

	conditions, err := e.conditions(opts.Where, false)
	if err != nil {
		return 0, err
	}

	sqlQuery, args, buildErr := e.db.builder.Update(e.TableName()).Prepared(true).
		Set(record).
		Where(conditions...).
		ToSQL()
	if buildErr != nil {
		return 0, e.db.buildFailed(ctx, buildErr)
	}

	result, execErr := e.db.execStatement(ctx, tx, sqlQuery, args, logActionUpdate)
	if execErr != nil {
		return 0, execErr
	}

	affected := e.db.rowsAffected(ctx, result)
	e.db.logOperation(ctx, logActionUpdate, logAttrEntity, e.name, logAttrRowsAffected, affected)

	return affected, nil
}

// DestroyWhere deletes every row matching opts.Where and returns the affected row count.
// Paranoid entities are soft deleted unless opts.Force is set.
func (e *Entity) DestroyWhere(ctx context.Context, opts BulkOptions) (int64, error) {
	var affected int64

	err := e.db.pipeline(ctx, opts.Tx, func(tx *Tx) error {
		hookOpts := opts
		hookOpts.Tx = tx

		if err := e.runBulkHooks(ctx, BeforeBulkDestroy, &hookOpts); err != nil {
			return err
		}

		if hookOpts.IndividualHooks {
			n, err := e.destroyIndividually(ctx, tx, hookOpts)
			if err != nil {
				return err
			}
			affected = n
		} else {
			n, err := e.destroySet(ctx, tx, hookOpts)
			if err != nil {
				return err
			}
			affected = n
		}

		return e.runBulkHooks(ctx, AfterBulkDestroy, &hookOpts)
	})

	return affected, err
}

func (e *Entity) destroyIndividually(ctx context.Context, tx *Tx, opts BulkOptions) (int64, error) {
	instances, err := e.FindAll(ctx, opts.Where, FindOptions{Tx: tx})
	if err != nil {
		return 0, err
	}

	for _, inst := range instances {
		if err := e.Destroy(ctx, inst, MutationOptions{Tx: tx, Silent: opts.Silent, Force: opts.Force}); err != nil {
			return 0, err
		}
	}

	return int64(len(instances)), nil
}

func (e *Entity) destroySet(ctx context.Context, tx *Tx, opts BulkOptions) (int64, error) {
	conditions, err := e.conditions(opts.Where, false)
	if err != nil {
		return 0, err
	}

	var (
		sqlQuery string
		args     []any
		buildErr error
	)

	if e.Paranoid() && !opts.Force {
		sqlQuery, args, buildErr = e.db.builder.Update(e.TableName()).Prepared(true).
			Set(goqu.Record{e.roleAttribute(RoleDeletedAt): e.db.Now()}).
			Where(conditions...).
			ToSQL()
	} else {
		sqlQuery, args, buildErr = e.db.builder.Delete(e.TableName()).Prepared(true).
			Where(conditions...).
			ToSQL()
	}

	if buildErr != nil {
		return 0, e.db.buildFailed(ctx, buildErr)
	}

	result, execErr := e.db.execStatement(ctx, tx, sqlQuery, args, logActionDelete)
	if execErr != nil {
		return 0, execErr
	}

	affected := e.db.rowsAffected(ctx, result)
	e.db.logOperation(ctx, logActionDelete, logAttrEntity, e.name, logAttrRowsAffected, affected)

	return affected, nil
}
