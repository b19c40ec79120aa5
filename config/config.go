// Package config loads database and versioning settings from a config.yaml file and TEMPORAL_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/AntonStoeckl/temporal-history-go/temporal"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
)

const envPrefix = "TEMPORAL"

var (
	ErrReadingConfigFailed  = errors.New("reading config file failed")
	ErrDecodingConfigFailed = errors.New("decoding config failed")
	ErrUnsupportedDriver    = errors.New("unsupported database driver")
	ErrEmptyDSN             = errors.New("database dsn must not be empty")
)

// Database selects the driver and connection of the data layer.
type Database struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// Versioning holds the defaults applied to every entity the CLI versions.
type Versioning struct {
	Blocking             bool     `mapstructure:"blocking"`
	CaptureMode          string   `mapstructure:"capture_mode"`
	ShadowSuffix         string   `mapstructure:"shadow_suffix"`
	MirrorAssociations   bool     `mapstructure:"mirror_associations"`
	ExcludedFields       []string `mapstructure:"excluded_fields"`
	SkipIfSilentMutation bool     `mapstructure:"skip_if_silent_mutation"`
}

// Config is the complete configuration.
type Config struct {
	Database   Database   `mapstructure:"database"`
	Versioning Versioning `mapstructure:"versioning"`
}

// Default returns the configuration used when neither a file nor the environment sets a value.
func Default() Config {
	return Config{
		Database: Database{
			Driver:          DriverSQLite,
			DSN:             "file:temporal.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
			ConnectTimeout:  5 * time.Second,
		},
		Versioning: Versioning{
			Blocking:     true,
			CaptureMode:  temporal.CaptureDiff.String(),
			ShadowSuffix: "History",
		},
	}
}

// Load reads config.yaml from dir when present and applies TEMPORAL_* environment overrides,
// e.g. TEMPORAL_DATABASE_DSN or TEMPORAL_VERSIONING_CAPTURE_MODE.
func Load(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, errors.Join(ErrReadingConfigFailed, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Join(ErrDecodingConfigFailed, err)
	}

	if len(cfg.Versioning.ExcludedFields) == 0 {
		cfg.Versioning.ExcludedFields = nil
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults registers every key, which AutomaticEnv needs to pick up overrides during Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.connect_timeout", d.Database.ConnectTimeout)
	v.SetDefault("versioning.blocking", d.Versioning.Blocking)
	v.SetDefault("versioning.capture_mode", d.Versioning.CaptureMode)
	v.SetDefault("versioning.shadow_suffix", d.Versioning.ShadowSuffix)
	v.SetDefault("versioning.mirror_associations", d.Versioning.MirrorAssociations)
	v.SetDefault("versioning.excluded_fields", []string{})
	v.SetDefault("versioning.skip_if_silent_mutation", d.Versioning.SkipIfSilentMutation)
}

// Validate checks the database section. The versioning section is validated by TemporalOptions.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres, DriverPGX:
	default:
		return errors.Join(ErrUnsupportedDriver, fmt.Errorf("driver %q", c.Database.Driver))
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return ErrEmptyDSN
	}

	return nil
}

// TemporalOptions turns the versioning section into engine options.
func (c Config) TemporalOptions() ([]temporal.Option, error) {
	mode, err := temporal.ParseCaptureMode(c.Versioning.CaptureMode)
	if err != nil {
		return nil, err
	}

	options := []temporal.Option{
		temporal.WithBlocking(c.Versioning.Blocking),
		temporal.WithCaptureMode(mode),
		temporal.WithShadowSuffix(c.Versioning.ShadowSuffix),
		temporal.WithMirrorAssociations(c.Versioning.MirrorAssociations),
		temporal.WithSkipIfSilentMutation(c.Versioning.SkipIfSilentMutation),
	}

	if len(c.Versioning.ExcludedFields) > 0 {
		options = append(options, temporal.WithExcludedFields(c.Versioning.ExcludedFields...))
	}

	return options, nil
}
