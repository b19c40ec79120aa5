package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/temporal-history-go/config"
	"github.com/AntonStoeckl/temporal-history-go/datalayer"
	"github.com/AntonStoeckl/temporal-history-go/internal/schemafile"
	"github.com/AntonStoeckl/temporal-history-go/temporal"
)

var ErrNothingVersioned = errors.New("schema file does not flag any entity as versioned")

// NewDeriveCommand creates the derive command.
func NewDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	var dialect string

	cmd := &cobra.Command{
		Use:   "derive <schema-file>",
		Short: "Print the shadow schemas of the versioned entities",
		Long: `Derive the shadow entity of every entity flagged as versioned and print it as a
schema file (yaml, json) or as the DDL of the chosen dialect (sql).

No database connection is opened.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDerive(cmd, rootOpts, args[0], datalayer.Dialect(dialect))
		},
	}

	cmd.Flags().StringVar(&dialect, "dialect", string(datalayer.DialectSQLite3), "sql dialect (sqlite3|postgres)")

	return cmd
}

func runDerive(cmd *cobra.Command, opts *RootOptions, path string, dialect datalayer.Dialect) error {
	s, err := newSession(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	handle, err := offlineHandle(dialect)
	if err != nil {
		return err
	}
	defer func() { _ = handle.Close() }()

	db, err := datalayer.NewDBFromSQLDB(handle, dialect, s.db...)
	if err != nil {
		return err
	}

	_, shadows, err := defineVersioned(cmd.Context(), db, path, s)
	if err != nil {
		return err
	}

	if opts.Format == FormatSQL {
		return writeDDL(cmd.OutOrStdout(), db, shadows)
	}

	described := schemafile.File{}
	for _, shadow := range shadows {
		described.Entities = append(described.Entities, schemafile.Describe(shadow))
	}

	return write(cmd.OutOrStdout(), opts.Format, described)
}

// offlineHandle returns a database/sql handle of the dialect's driver. database/sql connects lazily and
// derive never issues a statement, so no connection is made.
func offlineHandle(dialect datalayer.Dialect) (*sql.DB, error) {
	switch dialect {
	case datalayer.DialectSQLite3:
		return sql.Open(config.DriverSQLite, ":memory:")
	case datalayer.DialectPostgres:
		return sql.Open(config.DriverPostgres, "")
	default:
		return nil, errors.Join(datalayer.ErrUnsupportedDialect, fmt.Errorf("dialect %q", dialect))
	}
}

// defineVersioned registers the entities of the schema file and attaches versioning to the flagged ones.
func defineVersioned(ctx context.Context, db *datalayer.DB, path string, s *session) ([]*datalayer.Entity, []*datalayer.Entity, error) {
	file, err := schemafile.Load(path)
	if err != nil {
		return nil, nil, err
	}

	names := file.Versioned()
	if len(names) == 0 {
		return nil, nil, errors.Join(ErrNothingVersioned, fmt.Errorf("file %q", path))
	}

	entities, err := file.Define(ctx, db)
	if err != nil {
		return nil, nil, err
	}

	shadows := make([]*datalayer.Entity, 0, len(names))
	for _, name := range names {
		origin, err := db.Entity(name)
		if err != nil {
			return nil, nil, err
		}

		if _, err := temporal.Attach(origin, db, s.temporal...); err != nil {
			return nil, nil, err
		}

		shadow, err := temporal.ShadowOf(db, origin)
		if err != nil {
			return nil, nil, err
		}

		shadows = append(shadows, shadow)
	}

	s.logger.DebugContext(ctx, "schema file loaded", "path", path, "entity_count", len(entities), "shadow_count", len(shadows))

	return entities, shadows, nil
}
