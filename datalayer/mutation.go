package datalayer

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
)

// MutationOptions control a single-instance mutation.
// Silent keeps updatedAt untouched, Force turns a paranoid destroy into a hard delete.
type MutationOptions struct {
	Tx     *Tx
	Silent bool
	Force  bool
}

// Create builds and inserts a new instance.
func (e *Entity) Create(ctx context.Context, values Values, opts MutationOptions) (*Instance, error) {
	inst := e.Build(values)
	if err := e.Save(ctx, inst, opts); err != nil {
		return nil, err
	}

	return inst, nil
}

// Update assigns values through the setters and saves the instance.
func (e *Entity) Update(ctx context.Context, inst *Instance, values Values, opts MutationOptions) error {
	for field, value := range values {
		if err := inst.Set(field, value); err != nil {
			return err
		}
	}

	return e.Save(ctx, inst, opts)
}

// Save inserts a new instance or writes the changed attributes of a persisted one.
// Saving a persisted instance without changes is a no-op and runs no hooks.
func (e *Entity) Save(ctx context.Context, inst *Instance, opts MutationOptions) error {
	if inst.entity != e {
		return ErrInstanceOfOtherEntity
	}

	if inst.isNew {
		return e.db.pipeline(ctx, opts.Tx, func(tx *Tx) error {
			return e.insertPipeline(ctx, tx, inst, opts)
		})
	}

	if len(inst.Changed()) == 0 {
		return nil
	}

	return e.db.pipeline(ctx, opts.Tx, func(tx *Tx) error {
		return e.updatePipeline(ctx, tx, inst, opts)
	})
}

func (e *Entity) insertPipeline(ctx context.Context, tx *Tx, inst *Instance, opts MutationOptions) error {
	hookOpts := opts
	hookOpts.Tx = tx

	e.applyCreateDefaults(inst)

	if err := e.runInstanceHooks(ctx, BeforeCreate, inst, &hookOpts); err != nil {
		return err
	}

	if err := e.insertRow(ctx, tx, inst); err != nil {
		return err
	}
	inst.isNew = false

	if err := e.runInstanceHooks(ctx, AfterCreate, inst, &hookOpts); err != nil {
		return err
	}

	inst.markPersisted()

	return nil
}

func (e *Entity) updatePipeline(ctx context.Context, tx *Tx, inst *Instance, opts MutationOptions) error {
	hookOpts := opts
	hookOpts.Tx = tx

	if updatedAt := e.timestampAttribute(RoleUpdatedAt); updatedAt != "" && !opts.Silent {
		inst.setRaw(updatedAt, e.db.Now())
	}

	if err := e.runInstanceHooks(ctx, BeforeUpdate, inst, &hookOpts); err != nil {
		return err
	}

	if err := e.updateRow(ctx, tx, inst, inst.Changed(), logActionUpdate); err != nil {
		return err
	}

	if err := e.runInstanceHooks(ctx, AfterUpdate, inst, &hookOpts); err != nil {
		return err
	}

	inst.markPersisted()

	return nil
}

// Destroy deletes the instance; paranoid entities are soft deleted unless opts.Force is set.
func (e *Entity) Destroy(ctx context.Context, inst *Instance, opts MutationOptions) error {
	if inst.entity != e {
		return ErrInstanceOfOtherEntity
	}

	return e.db.pipeline(ctx, opts.Tx, func(tx *Tx) error {
		hookOpts := opts
		hookOpts.Tx = tx

		if err := e.runInstanceHooks(ctx, BeforeDestroy, inst, &hookOpts); err != nil {
			return err
		}

		if e.Paranoid() && !opts.Force {
			deletedAt := e.roleAttribute(RoleDeletedAt)
			inst.setRaw(deletedAt, e.db.Now())
			if err := e.updateRow(ctx, tx, inst, []string{deletedAt}, logActionDelete); err != nil {
				return err
			}
		} else if err := e.deleteRow(ctx, tx, inst); err != nil {
			return err
		}

		if err := e.runInstanceHooks(ctx, AfterDestroy, inst, &hookOpts); err != nil {
			return err
		}

		inst.markPersisted()

		return nil
	})
}

// Restore clears the soft-delete marker of a paranoid instance.
func (e *Entity) Restore(ctx context.Context, inst *Instance, opts MutationOptions) error {
	if inst.entity != e {
		return ErrInstanceOfOtherEntity
	}

	if !e.Paranoid() {
		return errors.Join(ErrNotParanoid, fmt.Errorf("entity %q", e.name))
	}

	return e.db.pipeline(ctx, opts.Tx, func(tx *Tx) error {
		hookOpts := opts
		hookOpts.Tx = tx

		if err := e.runInstanceHooks(ctx, BeforeRestore, inst, &hookOpts); err != nil {
			return err
		}

		deletedAt := e.roleAttribute(RoleDeletedAt)
		inst.setRaw(deletedAt, nil)
		if err := e.updateRow(ctx, tx, inst, []string{deletedAt}, logActionUpdate); err != nil {
			return err
		}

		if err := e.runInstanceHooks(ctx, AfterRestore, inst, &hookOpts); err != nil {
			return err
		}

		inst.markPersisted()

		return nil
	})
}

// BulkCreate inserts all rows in one pipeline. No per-instance hooks run.
func (e *Entity) BulkCreate(ctx context.Context, rows []Values, opts MutationOptions) ([]*Instance, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	instances := make([]*Instance, 0, len(rows))
	for _, values := range rows {
		inst := e.Build(values)
		e.applyCreateDefaults(inst)
		instances = append(instances, inst)
	}

	err := e.db.pipeline(ctx, opts.Tx, func(tx *Tx) error {
		if e.db.dialect == DialectPostgres && uniformColumns(instances) {
			return e.insertRowsReturning(ctx, tx, instances)
		}

		// Without RETURNING the generated key is only known per statement.
		for _, inst := range instances {
			if err := e.insertRow(ctx, tx, inst); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, inst := range instances {
		inst.markPersisted()
	}

	return instances, nil
}

// applyCreateDefaults fills absent attributes from their defaults.
func (e *Entity) applyCreateDefaults(inst *Instance) {
	now := e.db.Now()

	for _, a := range e.attributes {
		if inst.loaded[a.Name] && inst.values[a.Name] != nil {
			continue
		}

		switch {
		case a.Role == RoleCreatedAt || a.Role == RoleUpdatedAt:
			if e.options.Timestamps || a.Default.Kind == DefaultNow {
				inst.setRaw(a.Name, now)
			}

		case a.Default.Kind == DefaultNow:
			inst.setRaw(a.Name, now)

		case a.Default.Kind == DefaultUUID:
			inst.setRaw(a.Name, uuid.Must(uuid.NewV7()).String())

		case a.Default.Kind == DefaultValue:
			inst.setRaw(a.Name, a.Default.Value)
		}
	}
}

// insertColumns returns the loaded attributes to insert, skipping an unset auto-increment key.
func (e *Entity) insertColumns(inst *Instance) []string {
	var cols []string
	for _, a := range e.attributes {
		if !inst.loaded[a.Name] {
			continue
		}

		if a.PrimaryKey && a.AutoIncrement && inst.values[a.Name] == nil {
			continue
		}

		cols = append(cols, a.Name)
	}

	return cols
}

func (e *Entity) encodedRow(inst *Instance, cols []string) ([]any, error) {
	vals := make([]any, 0, len(cols))
	for _, c := range cols {
		encoded, err := encodeValue(e.attr(c), inst.values[c])
		if err != nil {
			return nil, err
		}
		vals = append(vals, encoded)
	}

	return vals, nil
}

func (e *Entity) needsGeneratedKey(inst *Instance) bool {
	return inst.values[e.pk] == nil
}

func (e *Entity) insertRow(ctx context.Context, tx *Tx, inst *Instance) error {
	cols := e.insertColumns(inst)
	vals, err := e.encodedRow(inst, cols)
	if err != nil {
		return err
	}

	ds := e.db.builder.Insert(e.TableName()).Prepared(true)
	if len(cols) > 0 {
		ds = ds.Cols(columns(cols)...).Vals(vals)
	}

	if e.db.dialect == DialectPostgres && e.needsGeneratedKey(inst) {
		sqlQuery, args, buildErr := ds.Returning(goqu.C(e.pk)).ToSQL()
		if buildErr != nil {
			return e.db.buildFailed(ctx, buildErr)
		}

		rows, queryErr := e.db.queryRows(ctx, tx, sqlQuery, args, 1)
		if queryErr != nil {
			return queryErr
		}

		return e.assignGeneratedKeys([]*Instance{inst}, rows)
	}

	sqlQuery, args, buildErr := ds.ToSQL()
	if buildErr != nil {
		return e.db.buildFailed(ctx, buildErr)
	}

	result, execErr := e.db.execStatement(ctx, tx, sqlQuery, args, logActionInsert)
	if execErr != nil {
		return execErr
	}

	if e.needsGeneratedKey(inst) {
		id, idErr := result.LastInsertId()
		if idErr != nil {
			return errors.Join(ErrGeneratedKeyUnreadable, idErr)
		}
		inst.setRaw(e.pk, id)
	}

	return nil
}

func (e *Entity) insertRowsReturning(ctx context.Context, tx *Tx, instances []*Instance) error {
	cols := e.insertColumns(instances[0])

	rows := make([][]any, 0, len(instances))
	for _, inst := range instances {
		vals, err := e.encodedRow(inst, cols)
		if err != nil {
			return err
		}
		rows = append(rows, vals)
	}

	ds := e.db.builder.Insert(e.TableName()).Prepared(true).Cols(columns(cols)...)
	for _, vals := range rows {
		ds = ds.Vals(vals)
	}

	sqlQuery, args, buildErr := ds.Returning(goqu.C(e.pk)).ToSQL()
	if buildErr != nil {
		return e.db.buildFailed(ctx, buildErr)
	}

	keys, queryErr := e.db.queryRows(ctx, tx, sqlQuery, args, 1)
	if queryErr != nil {
		return queryErr
	}

	return e.assignGeneratedKeys(instances, keys)
}

func (e *Entity) assignGeneratedKeys(instances []*Instance, keys [][]any) error {
	if len(keys) != len(instances) {
		return errors.Join(ErrGeneratedKeyUnreadable, fmt.Errorf("got %d keys for %d rows", len(keys), len(instances)))
	}

	for i, inst := range instances {
		pk, err := decodeValue(e.attr(e.pk), keys[i][0])
		if err != nil {
			return errors.Join(ErrGeneratedKeyUnreadable, err)
		}
		inst.setRaw(e.pk, pk)
	}

	return nil
}

func (e *Entity) updateRow(ctx context.Context, tx *Tx, inst *Instance, fields []string, action string) error {
	if len(fields) == 0 {
		return nil
	}

	pk := inst.PrimaryKeyValue()
	if pk == nil {
		return ErrMissingPrimaryKey
	}

	record := goqu.Record{}
	for _, f := range fields {
		encoded, err := encodeValue(e.attr(f), inst.values[f])
		if err != nil {
			return err
		}
		record[f] = encoded
	}

	sqlQuery, args, buildErr := e.db.builder.Update(e.TableName()).Prepared(true).
		Set(record).
		Where(goqu.C(e.pk).Eq(pk)).
		ToSQL()
	if buildErr != nil {
		return e.db.buildFailed(ctx, buildErr)
	}

	_, err := e.db.execStatement(ctx, tx, sqlQuery, args, action)

	return err
}

func (e *Entity) deleteRow(ctx context.Context, tx *Tx, inst *Instance) error {
	pk := inst.PrimaryKeyValue()
	if pk == nil {
		return ErrMissingPrimaryKey
	}

	sqlQuery, args, buildErr := e.db.builder.Delete(e.TableName()).Prepared(true).
		Where(goqu.C(e.pk).Eq(pk)).
		ToSQL()
	if buildErr != nil {
		return e.db.buildFailed(ctx, buildErr)
	}

	_, err := e.db.execStatement(ctx, tx, sqlQuery, args, logActionDelete)

	return err
}

// uniformColumns reports whether all instances insert the same column set with a generated key.
func uniformColumns(instances []*Instance) bool {
	first := instances[0].entity.insertColumns(instances[0])
	if !instances[0].entity.needsGeneratedKey(instances[0]) {
		return false
	}

	for _, inst := range instances[1:] {
		cols := inst.entity.insertColumns(inst)
		if len(cols) != len(first) || !inst.entity.needsGeneratedKey(inst) {
			return false
		}

		for i := range cols {
			if cols[i] != first[i] {
				return false
			}
		}
	}

	return true
}
