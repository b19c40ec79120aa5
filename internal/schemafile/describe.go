package schemafile

import (
	"strings"

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

// Describe renders a registered entity, including the attributes the data layer added implicitly,
// in schema file form. Hooks and value transforms have no file representation and are left out.
func Describe(e *datalayer.Entity) EntitySpec {
	opts := e.Options()

	spec := EntitySpec{
		Name:       e.Name(),
		Table:      opts.TableName,
		Timestamps: opts.Timestamps,
		Paranoid:   opts.Paranoid,
		Options:    opts.Raw,
	}

	for _, a := range e.Attributes() {
		spec.Attributes = append(spec.Attributes, describeAttribute(a))
	}

	for _, idx := range opts.Indexes {
		spec.Indexes = append(spec.Indexes, IndexSpec{
			Name:   idx.Name,
			Fields: idx.Fields,
			Unique: idx.Unique,
			Type:   idx.Type,
		})
	}

	for _, assoc := range e.Associations() {
		spec.Associations = append(spec.Associations, AssociationSpec{
			Kind:       kindName(assoc.Kind),
			Target:     assoc.Target.Name(),
			As:         assoc.Options.As,
			ForeignKey: assoc.Options.ForeignKey,
			OtherKey:   assoc.Options.OtherKey,
			SourceKey:  assoc.Options.SourceKey,
			TargetKey:  assoc.Options.TargetKey,
			Through:    assoc.Options.Through,
			OnDelete:   strings.ToLower(string(assoc.Options.OnDelete)),
			OnUpdate:   strings.ToLower(string(assoc.Options.OnUpdate)),
		})
	}

	return spec
}

func describeAttribute(a datalayer.Attribute) AttributeSpec {
	spec := AttributeSpec{
		Name:          a.Name,
		Type:          string(a.Type),
		AllowNull:     a.AllowNull,
		PrimaryKey:    a.PrimaryKey,
		AutoIncrement: a.AutoIncrement,
		Unique:        a.Unique,
		Extra:         a.Extra,
	}

	for name, role := range attributeRoles {
		if role == a.Role {
			spec.Role = name
		}
	}

	switch a.Default.Kind {
	case datalayer.DefaultNow:
		spec.Default = defaultNow
	case datalayer.DefaultUUID:
		spec.Default = defaultUUID
	case datalayer.DefaultValue:
		spec.Default = defaultValue
		spec.Value = a.Default.Value
	}

	return spec
}

func kindName(kind datalayer.AssociationKind) string {
	for name, k := range associationKinds {
		if k == kind {
			return name
		}
	}

	return kind.String()
}
