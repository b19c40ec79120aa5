package temporal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

const (
	// AttrShadowID is the surrogate key every shadow entity owns.
	AttrShadowID = "shadowId"

	// AttrArchivedAt holds the capture time of a snapshot.
	AttrArchivedAt = "archivedAt"
)

// identityOptionKeys are raw options that bind an entity definition to its own identity or behavior.
// They are never copied onto a shadow entity.
var identityOptionKeys = []string{
	"name",
	"tableName",
	"db",
	"connection",
	"uniqueKeys",
	"hasPrimaryKey",
	"hooks",
	"scopes",
	"defaultScope",
	"instanceMethods",
	"classMethods",
}

// Definition is an entity definition as handed to datalayer.DB.Define.
type Definition struct {
	Name       string
	Attributes []datalayer.Attribute
	Options    datalayer.EntityOptions
}

// DefinitionOf returns the definition of a registered entity, including the implicit attributes
// the data layer added.
func DefinitionOf(e *datalayer.Entity) Definition {
	return Definition{
		Name:       e.Name(),
		Attributes: e.Attributes(),
		Options:    e.Options(),
	}
}

// DeriveShadowSchema derives the shadow entity definition from an origin definition.
// It has no side effects, so it can be used to preview a shadow schema without registering anything.
func DeriveShadowSchema(origin Definition, options ...Option) (Definition, error) {
	cfg, err := newConfig(options...)
	if err != nil {
		return Definition{}, err
	}

	return deriveShadowSchema(origin, cfg)
}

func deriveShadowSchema(origin Definition, cfg *config) (Definition, error) {
	attributes := make([]datalayer.Attribute, 0, len(origin.Attributes)+2)

	for _, a := range origin.Attributes {
		if a.Name == AttrShadowID || a.Name == AttrArchivedAt {
			return Definition{}, errors.Join(ErrReservedAttributeName, fmt.Errorf("%s.%s", origin.Name, a.Name))
		}

		if cfg.excludedFields[a.Name] {
			continue
		}

		attributes = append(attributes, shadowAttribute(a))
	}

	if len(attributes) == 0 {
		return Definition{}, errors.Join(ErrEmptyShadowSchema, fmt.Errorf("entity %q", origin.Name))
	}

	attributes = append(
		attributes,
		datalayer.Attribute{Name: AttrShadowID, Type: datalayer.TypeBigInt, PrimaryKey: true, AutoIncrement: true, Unique: true},
		datalayer.Attribute{Name: AttrArchivedAt, Type: datalayer.TypeTimestamp, Default: datalayer.NowDefault},
	)

	return Definition{
		Name:       origin.Name + cfg.shadowSuffix,
		Attributes: attributes,
		Options:    shadowOptions(origin.Options, cfg),
	}, nil
}

// shadowAttribute strips the storage-identity markers and value transforms of an origin attribute.
// Timestamps the data layer maintains keep their type but lose a capture-time default, since a
// snapshot copies the origin's value.
func shadowAttribute(origin datalayer.Attribute) datalayer.Attribute {
	a := origin.Clone()
	a.PrimaryKey = false
	a.AutoIncrement = false
	a.Unique = false
	a.Set = nil
	a.Get = nil

	if a.Role == datalayer.RoleCreatedAt || a.Role == datalayer.RoleUpdatedAt {
		a.Type = datalayer.TypeTimestamp
		if a.Default.Kind == datalayer.DefaultNow {
			a.Default = datalayer.Default{}
		}
	}

	a.Role = datalayer.RoleNone

	return a
}

func shadowOptions(origin datalayer.EntityOptions, cfg *config) datalayer.EntityOptions {
	opts := datalayer.EntityOptions{
		Timestamps: false,
		Paranoid:   origin.Paranoid,
	}

	for _, idx := range origin.Indexes {
		if idx.IsUnique() || referencesExcluded(idx, cfg.excludedFields) {
			continue
		}

		copied := idx
		copied.Fields = append([]string(nil), idx.Fields...)
		if copied.Name != "" {
			copied.Name = copied.Name + "_" + strings.ToLower(cfg.shadowSuffix)
		}

		opts.Indexes = append(opts.Indexes, copied)
	}

	if len(origin.Raw) > 0 {
		opts.Raw = make(map[string]any, len(origin.Raw))
		for k, v := range origin.Raw {
			opts.Raw[k] = v
		}

		for _, k := range identityOptionKeys {
			delete(opts.Raw, k)
		}
	}

	return opts
}

func referencesExcluded(idx datalayer.Index, excluded map[string]bool) bool {
	for _, f := range idx.Fields {
		if excluded[f] {
			return true
		}
	}

	return false
}

// payloadFields are the shadow attributes copied from the origin, in declaration order.
func payloadFields(shadow Definition) []string {
	fields := make([]string, 0, len(shadow.Attributes))
	for _, a := range shadow.Attributes {
		if a.Name == AttrShadowID || a.Name == AttrArchivedAt {
			continue
		}

		fields = append(fields, a.Name)
	}

	return fields
}
