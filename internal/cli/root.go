// Package cli implements the shadowctl commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/AntonStoeckl/temporal-history-go/config"
	"github.com/AntonStoeckl/temporal-history-go/datalayer"
	"github.com/AntonStoeckl/temporal-history-go/oteladapters"
	"github.com/AntonStoeckl/temporal-history-go/temporal"
)

const instrumentationName = "shadowctl"

// Output formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatSQL  = "sql"
)

// ValidFormats are the accepted values of --format.
var ValidFormats = []string{FormatYAML, FormatJSON, FormatSQL}

var ErrInvalidFormat = errors.New("invalid output format")

// RootOptions holds the global flags of every command.
type RootOptions struct {
	ConfigDir     string
	Format        string
	Verbose       bool
	Observability bool
}

// NewRootCommand creates the shadowctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "shadowctl",
		Short: "Inspect and provision shadow history tables",
		Long: `shadowctl reads entity definitions from a YAML schema file, derives the shadow
entity of every versioned entity and prints or creates the resulting tables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return errors.Join(ErrInvalidFormat, fmt.Errorf("%q must be one of %v", opts.Format, ValidFormats))
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", ".", "directory holding config.yaml")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatYAML, "output format (yaml|json|sql)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log debug output to stderr")
	cmd.PersistentFlags().BoolVar(&opts.Observability, "otel", false, "report through the global OpenTelemetry providers")

	cmd.AddCommand(NewDeriveCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))

	return cmd
}

// session carries what every command needs after the flags are parsed.
type session struct {
	cfg      config.Config
	logger   *slog.Logger
	db       []datalayer.Option
	temporal []temporal.Option
}

func newSession(opts *RootOptions, stderr io.Writer) (*session, error) {
	cfg, err := config.Load(opts.ConfigDir)
	if err != nil {
		return nil, err
	}

	versioning, err := cfg.TemporalOptions()
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	s := &session{
		cfg:      cfg,
		logger:   logger,
		db:       []datalayer.Option{datalayer.WithLogger(logger)},
		temporal: append(versioning, temporal.WithLogger(logger)),
	}

	if opts.Observability {
		bridge := oteladapters.NewSlogBridgeLogger(instrumentationName, nil)
		s.db = append(s.db, datalayer.WithContextualLogger(bridge))
		s.temporal = append(
			s.temporal,
			temporal.WithContextualLogger(bridge),
			temporal.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter(instrumentationName))),
			temporal.WithTracing(oteladapters.NewTracingCollector(otel.Tracer(instrumentationName))),
		)
	}

	return s, nil
}
