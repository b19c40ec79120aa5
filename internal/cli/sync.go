package cli

import (
	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/temporal-history-go/config"
	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

// SyncResult reports the tables a sync created.
type SyncResult struct {
	Driver  string   `yaml:"driver" json:"driver"`
	Forced  bool     `yaml:"forced" json:"forced"`
	Tables  []string `yaml:"tables" json:"tables"`
	Shadows []string `yaml:"shadows" json:"shadows"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync <schema-file>",
		Short: "Create the tables of all entities and their shadows",
		Long: `Register the entities of the schema file on the configured database, attach
versioning to the flagged ones and create every table that does not exist yet.

With --force every table is dropped and recreated. With --format sql the executed
DDL is printed instead of the summary.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts, args[0], force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "drop and recreate every table")

	return cmd
}

func runSync(cmd *cobra.Command, opts *RootOptions, path string, force bool) error {
	ctx := cmd.Context()

	s, err := newSession(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	conn, err := config.Open(ctx, s.cfg.Database, s.db...)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, shadows, err := defineVersioned(ctx, conn.DB, path, s)
	if err != nil {
		return err
	}

	if err := conn.DB.Sync(ctx, datalayer.SyncOptions{Force: force}); err != nil {
		return err
	}

	registered := conn.DB.Registry().Entities()
	if opts.Format == FormatSQL {
		return writeDDL(cmd.OutOrStdout(), conn.DB, registered)
	}

	result := SyncResult{Driver: s.cfg.Database.Driver, Forced: force}
	for _, e := range registered {
		result.Tables = append(result.Tables, e.TableName())
	}
	for _, shadow := range shadows {
		result.Shadows = append(result.Shadows, shadow.Name())
	}

	return write(cmd.OutOrStdout(), opts.Format, result)
}
