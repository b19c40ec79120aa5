package datalayer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SyncOptions control DB.Sync. Force drops every table before creating it.
type SyncOptions struct {
	Force bool
}

// Sync runs the BeforeSchemaSync hooks, creates the table and indexes of every registered entity
// in definition order, and runs the AfterSchemaSync hooks.
func (db *DB) Sync(ctx context.Context, opts SyncOptions) error {
	if err := db.runSyncHooks(ctx, BeforeSchemaSync); err != nil {
		return errors.Join(ErrSyncFailed, err)
	}

	entities := db.registry.Entities()
	for _, e := range entities {
		if err := db.syncEntity(ctx, e, opts); err != nil {
			return errors.Join(ErrSyncFailed, err)
		}
	}

	if err := db.runSyncHooks(ctx, AfterSchemaSync); err != nil {
		return errors.Join(ErrSyncFailed, err)
	}

	db.logInfo(ctx, logMsgSyncCompleted, logAttrEntityCount, len(entities))

	return nil
}

// SyncEntity creates the table and indexes of a single entity without running sync hooks.
func (db *DB) SyncEntity(ctx context.Context, e *Entity, opts SyncOptions) error {
	return db.syncEntity(ctx, e, opts)
}

func (db *DB) syncEntity(ctx context.Context, e *Entity, opts SyncOptions) error {
	var statements []string
	if opts.Force {
		statements = append(statements, db.dropTableStatement(e))
	}
	statements = append(statements, db.DDL(e)...)

	for _, stmt := range statements {
		if _, err := db.execStatement(ctx, nil, stmt, nil, logActionDDL); err != nil {
			return errors.Join(err, fmt.Errorf("entity %q", e.name))
		}
	}

	return nil
}

// Drop drops the table of the entity. The entity stays registered.
func (db *DB) Drop(ctx context.Context, e *Entity) error {
	if _, err := db.execStatement(ctx, nil, db.dropTableStatement(e), nil, logActionDDL); err != nil {
		return errors.Join(err, fmt.Errorf("entity %q", e.name))
	}

	return nil
}

// DDL returns the CREATE TABLE and CREATE INDEX statements for the entity.
// Defaults are applied by the layer on create and are not part of the table definition.
func (db *DB) DDL(e *Entity) []string {
	columnDefs := make([]string, 0, len(e.attributes))
	for _, a := range e.attributes {
		columnDefs = append(columnDefs, db.columnDefinition(a))
	}

	statements := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(e.TableName()), strings.Join(columnDefs, ", ")),
	}

	for _, idx := range e.options.Indexes {
		statements = append(statements, db.indexStatement(e, idx))
	}

	return statements
}

func (db *DB) dropTableStatement(e *Entity) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(e.TableName()))
}

func (db *DB) columnDefinition(a Attribute) string {
	var b strings.Builder
	b.WriteString(quoteIdent(a.Name))
	b.WriteByte(' ')

	if a.PrimaryKey && a.AutoIncrement {
		switch db.dialect {
		case DialectSQLite3:
			b.WriteString("INTEGER PRIMARY KEY AUTOINCREMENT")
		default:
			if a.Type == TypeBigInt {
				b.WriteString("BIGSERIAL PRIMARY KEY")
			} else {
				b.WriteString("SERIAL PRIMARY KEY")
			}
		}

		return b.String()
	}

	b.WriteString(db.columnType(a.Type))

	if a.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	} else if !a.AllowNull {
		b.WriteString(" NOT NULL")
	}

	if a.Unique && !a.PrimaryKey {
		b.WriteString(" UNIQUE")
	}

	return b.String()
}

func (db *DB) columnType(t StorageType) string {
	if db.dialect == DialectSQLite3 {
		switch t {
		case TypeInteger, TypeBigInt:
			return "INTEGER"
		case TypeBoolean:
			return "BOOLEAN"
		case TypeFloat:
			return "REAL"
		case TypeTimestamp:
			return "TIMESTAMP"
		case TypeString:
			return "VARCHAR(255)"
		default:
			return "TEXT"
		}
	}

	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeBigInt:
		return "BIGINT"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeFloat:
		return "DOUBLE PRECISION"
	case TypeTimestamp:
		return "TIMESTAMPTZ"
	case TypeString:
		return "VARCHAR(255)"
	case TypeJSON:
		return "JSONB"
	case TypeUUID:
		return "UUID"
	default:
		return "TEXT"
	}
}

func (db *DB) indexStatement(e *Entity, idx Index) string {
	name := idx.Name
	if name == "" {
		name = e.TableName() + "_" + strings.Join(idx.Fields, "_")
	}

	fields := make([]string, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		fields = append(fields, quoteIdent(f))
	}

	unique := ""
	if idx.IsUnique() {
		unique = "UNIQUE "
	}

	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, quoteIdent(name), quoteIdent(e.TableName()), strings.Join(fields, ", "))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
