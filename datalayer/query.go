package datalayer

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// Where is an equality predicate over attributes. Slice values match any element, nil matches NULL,
// and goqu.Op values (e.g. goqu.Op{"gt": 3}) express other comparisons.
type Where map[string]any

// Order sorts query results by one attribute.
type Order struct {
	Field string
	Desc  bool
}

// FindOptions shape a query. Fields is a projection; the primary key is always loaded.
// Unscoped includes soft-deleted rows of paranoid entities.
type FindOptions struct {
	Fields   []string
	Tx       *Tx
	Unscoped bool
	Order    []Order
	Limit    uint
}

// FindAll returns every instance matching where.
func (e *Entity) FindAll(ctx context.Context, where Where, opts FindOptions) ([]*Instance, error) {
	fields, err := e.projection(opts.Fields)
	if err != nil {
		return nil, err
	}

	conditions, err := e.conditions(where, opts.Unscoped)
	if err != nil {
		return nil, err
	}

	ds := e.db.builder.From(e.TableName()).Prepared(true).Select(columns(fields)...).Where(conditions...)

	if len(opts.Order) == 0 {
		ds = ds.Order(goqu.C(e.pk).Asc())
	}

	for _, o := range opts.Order {
		if !e.HasAttribute(o.Field) {
			return nil, unknownAttribute(e, o.Field)
		}

		if o.Desc {
			ds = ds.OrderAppend(goqu.C(o.Field).Desc())
		} else {
			ds = ds.OrderAppend(goqu.C(o.Field).Asc())
		}
	}

	if opts.Limit > 0 {
		ds = ds.Limit(opts.Limit)
	}

	sqlQuery, args, buildErr := ds.ToSQL()
	if buildErr != nil {
		return nil, e.db.buildFailed(ctx, buildErr)
	}

	rows, queryErr := e.db.queryRows(ctx, opts.Tx, sqlQuery, args, len(fields))
	if queryErr != nil {
		return nil, queryErr
	}

	instances := make([]*Instance, 0, len(rows))
	for _, raw := range rows {
		inst, decodeErr := e.instanceFromRow(fields, raw)
		if decodeErr != nil {
			return nil, decodeErr
		}

		instances = append(instances, inst)
	}

	return instances, nil
}

// FindOne returns the first instance matching where, or ErrNotFound.
func (e *Entity) FindOne(ctx context.Context, where Where, opts FindOptions) (*Instance, error) {
	opts.Limit = 1

	instances, err := e.FindAll(ctx, where, opts)
	if err != nil {
		return nil, err
	}

	if len(instances) == 0 {
		return nil, errors.Join(ErrNotFound, fmt.Errorf("entity %q", e.name))
	}

	return instances[0], nil
}

// FindByPK returns the instance with the given primary key value.
func (e *Entity) FindByPK(ctx context.Context, pk any, opts FindOptions) (*Instance, error) {
	return e.FindOne(ctx, Where{e.pk: pk}, opts)
}

// Count returns the number of rows matching where.
func (e *Entity) Count(ctx context.Context, where Where, opts FindOptions) (int64, error) {
	conditions, err := e.conditions(where, opts.Unscoped)
	if err != nil {
		return 0, err
	}

	sqlQuery, args, buildErr := e.db.builder.From(e.TableName()).Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(conditions...).
		ToSQL()
	if buildErr != nil {
		return 0, e.db.buildFailed(ctx, buildErr)
	}

	rows, queryErr := e.db.queryRows(ctx, opts.Tx, sqlQuery, args, 1)
	if queryErr != nil {
		return 0, queryErr
	}

	if len(rows) == 0 {
		return 0, nil
	}

	count, convErr := toInt64(rows[0][0])
	if convErr != nil {
		return 0, errors.Join(ErrScanningRowFailed, convErr)
	}

	return count, nil
}

// Reload fetches fields (all attributes when empty) of the instance from storage, ignoring the
// soft-delete scope, and overwrites them in both the current values and the before-image.
func (e *Entity) Reload(ctx context.Context, inst *Instance, fields []string, tx *Tx) error {
	if inst.entity != e {
		return ErrInstanceOfOtherEntity
	}

	pk := inst.PrimaryKeyValue()
	if pk == nil {
		return ErrMissingPrimaryKey
	}

	fresh, err := e.FindOne(ctx, Where{e.pk: pk}, FindOptions{Fields: fields, Tx: tx, Unscoped: true})
	if err != nil {
		return err
	}

	inst.refresh(fresh)

	return nil
}

// projection validates the requested fields and returns them in declaration order,
// always including the primary key.
func (e *Entity) projection(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return e.AttributeNames(), nil
	}

	want := make(map[string]bool, len(requested)+1)
	for _, f := range requested {
		if !e.HasAttribute(f) {
			return nil, unknownAttribute(e, f)
		}
		want[f] = true
	}
	want[e.pk] = true

	fields := make([]string, 0, len(want))
	for _, a := range e.attributes {
		if want[a.Name] {
			fields = append(fields, a.Name)
		}
	}

	return fields, nil
}

// conditions turns where into goqu expressions and adds the soft-delete scope.
func (e *Entity) conditions(where Where, unscoped bool) ([]exp.Expression, error) {
	var out []exp.Expression

	if len(where) > 0 {
		ex := goqu.Ex{}
		for field, value := range where {
			if !e.HasAttribute(field) {
				return nil, unknownAttribute(e, field)
			}

			encoded, err := encodeCondition(e.attr(field), value)
			if err != nil {
				return nil, err
			}

			ex[field] = encoded
		}
		out = append(out, ex)
	}

	if !unscoped && e.Paranoid() {
		out = append(out, goqu.C(e.roleAttribute(RoleDeletedAt)).IsNull())
	}

	return out, nil
}

// encodeCondition encodes scalar and slice condition values; operator maps pass through.
func encodeCondition(attr Attribute, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	if _, isOp := value.(goqu.Op); isOp {
		return value, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice && attr.Type != TypeJSON {
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			encoded, err := encodeValue(attr, normalizeValue(attr, rv.Index(i).Interface()))
			if err != nil {
				return nil, err
			}
			out = append(out, encoded)
		}

		return out, nil
	}

	return encodeValue(attr, normalizeValue(attr, value))
}

func columns(fields []string) []any {
	cols := make([]any, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, goqu.C(f))
	}

	return cols
}
