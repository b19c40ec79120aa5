// Package schemafile reads entity definitions from YAML files and registers them on a datalayer.DB.
package schemafile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

var (
	ErrReadingSchemaFileFailed    = errors.New("reading schema file failed")
	ErrParsingSchemaFileFailed    = errors.New("parsing schema file failed")
	ErrInvalidSchemaFile          = errors.New("invalid schema file")
	ErrDefiningEntityFailed       = errors.New("defining entity failed")
	ErrDeclaringAssociationFailed = errors.New("declaring association failed")
)

// File is the content of one schema file.
type File struct {
	Entities []EntitySpec `yaml:"entities" json:"entities"`
}

// EntitySpec describes one entity. Options end up in datalayer.EntityOptions.Raw.
type EntitySpec struct {
	Name         string            `yaml:"name" json:"name"`
	Table        string            `yaml:"table,omitempty" json:"table,omitempty"`
	Timestamps   bool              `yaml:"timestamps,omitempty" json:"timestamps,omitempty"`
	Paranoid     bool              `yaml:"paranoid,omitempty" json:"paranoid,omitempty"`
	Versioned    bool              `yaml:"versioned,omitempty" json:"versioned,omitempty"`
	Options      map[string]any    `yaml:"options,omitempty" json:"options,omitempty"`
	Attributes   []AttributeSpec   `yaml:"attributes" json:"attributes"`
	Indexes      []IndexSpec       `yaml:"indexes,omitempty" json:"indexes,omitempty"`
	Associations []AssociationSpec `yaml:"associations,omitempty" json:"associations,omitempty"`
}

// AttributeSpec describes one attribute.
// Default is one of "now", "uuid" or "value"; a Value without Default implies "value".
type AttributeSpec struct {
	Name          string         `yaml:"name" json:"name"`
	Type          string         `yaml:"type,omitempty" json:"type,omitempty"`
	AllowNull     bool           `yaml:"allow_null,omitempty" json:"allow_null,omitempty"`
	PrimaryKey    bool           `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
	AutoIncrement bool           `yaml:"auto_increment,omitempty" json:"auto_increment,omitempty"`
	Unique        bool           `yaml:"unique,omitempty" json:"unique,omitempty"`
	Role          string         `yaml:"role,omitempty" json:"role,omitempty"`
	Default       string         `yaml:"default,omitempty" json:"default,omitempty"`
	Value         any            `yaml:"value,omitempty" json:"value,omitempty"`
	Extra         map[string]any `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// IndexSpec describes a secondary index.
type IndexSpec struct {
	Name   string   `yaml:"name,omitempty" json:"name,omitempty"`
	Fields []string `yaml:"fields" json:"fields"`
	Unique bool     `yaml:"unique,omitempty" json:"unique,omitempty"`
	Type   string   `yaml:"type,omitempty" json:"type,omitempty"`
}

// AssociationSpec describes a relationship declared from the enclosing entity.
// Kind is one of "has_one", "has_many", "belongs_to" or "belongs_to_many".
type AssociationSpec struct {
	Kind       string `yaml:"kind" json:"kind"`
	Target     string `yaml:"target" json:"target"`
	As         string `yaml:"as,omitempty" json:"as,omitempty"`
	ForeignKey string `yaml:"foreign_key,omitempty" json:"foreign_key,omitempty"`
	OtherKey   string `yaml:"other_key,omitempty" json:"other_key,omitempty"`
	SourceKey  string `yaml:"source_key,omitempty" json:"source_key,omitempty"`
	TargetKey  string `yaml:"target_key,omitempty" json:"target_key,omitempty"`
	Through    string `yaml:"through,omitempty" json:"through,omitempty"`
	OnDelete   string `yaml:"on_delete,omitempty" json:"on_delete,omitempty"`
	OnUpdate   string `yaml:"on_update,omitempty" json:"on_update,omitempty"`
}

const (
	defaultNow   = "now"
	defaultUUID  = "uuid"
	defaultValue = "value"
)

var associationKinds = map[string]datalayer.AssociationKind{
	"has_one":         datalayer.HasOne,
	"has_many":        datalayer.HasMany,
	"belongs_to":      datalayer.BelongsTo,
	"belongs_to_many": datalayer.BelongsToMany,
}

var attributeRoles = map[string]datalayer.AttributeRole{
	"created_at": datalayer.RoleCreatedAt,
	"updated_at": datalayer.RoleUpdatedAt,
	"deleted_at": datalayer.RoleDeletedAt,
}

var referentialActions = map[string]datalayer.ReferentialAction{
	"":          datalayer.ActionUnset,
	"cascade":   datalayer.ActionCascade,
	"set null":  datalayer.ActionSetNull,
	"restrict":  datalayer.ActionRestrict,
	"no action": datalayer.ActionNoAction,
}

// Load reads and parses the schema file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrReadingSchemaFileFailed, err)
	}

	return Parse(bytes.NewReader(data))
}

// Parse decodes a schema file and validates it. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var f File
	if err := decoder.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrParsingSchemaFileFailed, err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return &f, nil
}

// Validate checks names, types, defaults, roles, association kinds and referential actions.
// Association targets may name entities outside the file; Define resolves them on the DB.
func (f *File) Validate() error {
	if len(f.Entities) == 0 {
		return errors.Join(ErrInvalidSchemaFile, errors.New("no entities declared"))
	}

	seen := make(map[string]bool, len(f.Entities))
	for i, e := range f.Entities {
		if strings.TrimSpace(e.Name) == "" {
			return errors.Join(ErrInvalidSchemaFile, fmt.Errorf("entities[%d]: name is required", i))
		}

		if seen[e.Name] {
			return errors.Join(ErrInvalidSchemaFile, fmt.Errorf("entities[%d]: duplicate entity %q", i, e.Name))
		}
		seen[e.Name] = true

		if err := e.validate(); err != nil {
			return errors.Join(ErrInvalidSchemaFile, fmt.Errorf("entity %q: %w", e.Name, err))
		}
	}

	return nil
}

func (e EntitySpec) validate() error {
	for i, a := range e.Attributes {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("attributes[%d]: name is required", i)
		}

		if a.Type != "" && !datalayer.StorageType(a.Type).Valid() {
			return fmt.Errorf("attribute %q: unknown type %q", a.Name, a.Type)
		}

		switch a.Default {
		case "", defaultNow, defaultUUID, defaultValue:
		default:
			return fmt.Errorf("attribute %q: unknown default %q", a.Name, a.Default)
		}

		if _, ok := attributeRoles[a.Role]; a.Role != "" && !ok {
			return fmt.Errorf("attribute %q: unknown role %q", a.Name, a.Role)
		}
	}

	for i, idx := range e.Indexes {
		if len(idx.Fields) == 0 {
			return fmt.Errorf("indexes[%d]: fields are required", i)
		}
	}

	for i, assoc := range e.Associations {
		kind, ok := associationKinds[assoc.Kind]
		if !ok {
			return fmt.Errorf("associations[%d]: unknown kind %q", i, assoc.Kind)
		}

		if assoc.Target == "" {
			return fmt.Errorf("associations[%d]: target is required", i)
		}

		if kind == datalayer.BelongsToMany && assoc.Through == "" {
			return fmt.Errorf("associations[%d]: through is required for belongs_to_many", i)
		}

		for _, action := range []string{assoc.OnDelete, assoc.OnUpdate} {
			if _, ok := referentialActions[strings.ToLower(action)]; !ok {
				return fmt.Errorf("associations[%d]: unknown referential action %q", i, action)
			}
		}
	}

	return nil
}

// Versioned returns the names of the entities flagged for versioning, in file order.
func (f *File) Versioned() []string {
	names := make([]string, 0)
	for _, e := range f.Entities {
		if e.Versioned {
			names = append(names, e.Name)
		}
	}

	return names
}

// Define registers every entity of the file on db, then declares the associations.
// When anything fails, the entities registered by this call are unregistered again.
func (f *File) Define(ctx context.Context, db *datalayer.DB) ([]*datalayer.Entity, error) {
	defined := make([]*datalayer.Entity, 0, len(f.Entities))
	rollback := func() {
		for _, e := range defined {
			db.Unregister(ctx, e.Name())
		}
	}

	for _, spec := range f.Entities {
		attrs, opts := spec.definition()

		e, err := db.Define(spec.Name, attrs, opts)
		if err != nil {
			rollback()
			return nil, errors.Join(ErrDefiningEntityFailed, err)
		}

		defined = append(defined, e)
	}

	for i, spec := range f.Entities {
		for _, assoc := range spec.Associations {
			if err := declare(db, defined[i], assoc); err != nil {
				rollback()
				return nil, errors.Join(ErrDeclaringAssociationFailed, fmt.Errorf("entity %q: %w", spec.Name, err))
			}
		}
	}

	return defined, nil
}

func (e EntitySpec) definition() ([]datalayer.Attribute, datalayer.EntityOptions) {
	attrs := make([]datalayer.Attribute, 0, len(e.Attributes))
	for _, a := range e.Attributes {
		attrs = append(attrs, a.attribute())
	}

	opts := datalayer.EntityOptions{
		TableName:  e.Table,
		Timestamps: e.Timestamps,
		Paranoid:   e.Paranoid,
		Raw:        e.Options,
	}

	for _, idx := range e.Indexes {
		opts.Indexes = append(opts.Indexes, datalayer.Index{
			Name:   idx.Name,
			Fields: idx.Fields,
			Unique: idx.Unique,
			Type:   idx.Type,
		})
	}

	return attrs, opts
}

func (a AttributeSpec) attribute() datalayer.Attribute {
	attr := datalayer.Attribute{
		Name:          a.Name,
		Type:          datalayer.StorageType(a.Type),
		AllowNull:     a.AllowNull,
		PrimaryKey:    a.PrimaryKey,
		AutoIncrement: a.AutoIncrement,
		Unique:        a.Unique,
		Role:          attributeRoles[a.Role],
		Extra:         a.Extra,
	}

	switch {
	case a.Default == defaultNow:
		attr.Default = datalayer.NowDefault
	case a.Default == defaultUUID:
		attr.Default = datalayer.Default{Kind: datalayer.DefaultUUID}
	case a.Default == defaultValue || a.Value != nil:
		attr.Default = datalayer.ValueDefault(a.Value)
	}

	return attr
}

func declare(db *datalayer.DB, source *datalayer.Entity, spec AssociationSpec) error {
	target, err := db.Entity(spec.Target)
	if err != nil {
		return err
	}

	_, err = source.Declare(associationKinds[spec.Kind], target, datalayer.AssociationOptions{
		As:         spec.As,
		ForeignKey: spec.ForeignKey,
		OtherKey:   spec.OtherKey,
		SourceKey:  spec.SourceKey,
		TargetKey:  spec.TargetKey,
		Through:    spec.Through,
		OnDelete:   referentialActions[strings.ToLower(spec.OnDelete)],
		OnUpdate:   referentialActions[strings.ToLower(spec.OnUpdate)],
	})

	return err
}
