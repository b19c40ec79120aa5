package datalayer

import (
	"strings"
)

// StorageType is the logical column type of an attribute.
type StorageType string

const (
	TypeInteger   StorageType = "integer"
	TypeBigInt    StorageType = "bigint"
	TypeText      StorageType = "text"
	TypeString    StorageType = "string"
	TypeBoolean   StorageType = "boolean"
	TypeFloat     StorageType = "float"
	TypeTimestamp StorageType = "timestamp"
	TypeJSON      StorageType = "json"
	TypeUUID      StorageType = "uuid"
)

// Valid reports whether t is one of the known storage types.
func (t StorageType) Valid() bool {
	switch t {
	case TypeInteger, TypeBigInt, TypeText, TypeString, TypeBoolean, TypeFloat, TypeTimestamp, TypeJSON, TypeUUID:
		return true
	default:
		return false
	}
}

// DefaultKind selects how a missing attribute value is filled on create.
type DefaultKind int

const (
	DefaultNone DefaultKind = iota
	DefaultNow
	DefaultValue
	DefaultUUID
)

// Default describes the value used when an attribute is absent on create.
type Default struct {
	Kind  DefaultKind
	Value any
}

// NowDefault is the capture-time default.
var NowDefault = Default{Kind: DefaultNow}

// ValueDefault returns a constant default.
func ValueDefault(v any) Default {
	return Default{Kind: DefaultValue, Value: v}
}

// AttributeRole marks the attributes the layer maintains itself.
type AttributeRole int

const (
	RoleNone AttributeRole = iota
	RoleCreatedAt
	RoleUpdatedAt
	RoleDeletedAt
)

// ValueTransform converts a value on assignment (Set) or on read (Get).
type ValueTransform func(value any) any

// Attribute describes one field of an entity.
// Extra carries extension keys the layer does not interpret.
type Attribute struct {
	Name          string
	Type          StorageType
	AllowNull     bool
	Default       Default
	PrimaryKey    bool
	AutoIncrement bool
	Unique        bool
	Role          AttributeRole
	Set           ValueTransform
	Get           ValueTransform
	Extra         map[string]any
}

// HasDefault reports whether the attribute carries any default.
func (a Attribute) HasDefault() bool {
	return a.Default.Kind != DefaultNone
}

// Clone returns a copy of the attribute whose Extra map can be modified independently.
func (a Attribute) Clone() Attribute {
	c := a
	if a.Extra != nil {
		c.Extra = make(map[string]any, len(a.Extra))
		for k, v := range a.Extra {
			c.Extra[k] = v
		}
	}

	return c
}

// Index is a secondary index declaration.
type Index struct {
	Name   string
	Fields []string
	Unique bool
	Type   string
}

// IsUnique reports whether the index enforces uniqueness, either by flag or by its type.
func (i Index) IsUnique() bool {
	return i.Unique || strings.EqualFold(i.Type, "unique")
}

// HookSpec declares a hook together with the entity definition.
// Exactly one of Fn and Bulk is used, depending on Event.
type HookSpec struct {
	Event HookEvent
	Name  string
	Fn    InstanceHookFunc
	Bulk  BulkHookFunc
}

// EntityOptions are table-level options of an entity.
// Raw is a passthrough map for options the layer does not interpret.
type EntityOptions struct {
	TableName  string
	Timestamps bool
	Paranoid   bool
	Indexes    []Index
	Hooks      []HookSpec
	Raw        map[string]any
}

const (
	attrNameID        = "id"
	attrNameCreatedAt = "createdAt"
	attrNameUpdatedAt = "updatedAt"
	attrNameDeletedAt = "deletedAt"
)

// normalizeAttributes validates the declared attributes and adds the implicit ones:
// an auto-increment "id" primary key when none is declared and the timestamp attributes.
func normalizeAttributes(attrs []Attribute, opts EntityOptions) ([]Attribute, string, error) {
	seen := make(map[string]bool, len(attrs)+4)
	out := make([]Attribute, 0, len(attrs)+4)
	pk := ""

	for _, a := range attrs {
		if a.Name == "" {
			return nil, "", ErrEmptyAttributeName
		}

		if seen[a.Name] {
			return nil, "", ErrDuplicateAttribute
		}

		if a.Type == "" {
			a.Type = TypeText
		}

		if a.PrimaryKey {
			if pk != "" {
				return nil, "", ErrCompositePrimaryKey
			}
			pk = a.Name
		}

		seen[a.Name] = true
		out = append(out, a.Clone())
	}

	if pk == "" {
		if seen[attrNameID] {
			return nil, "", ErrDuplicateAttribute
		}

		id := Attribute{Name: attrNameID, Type: TypeInteger, PrimaryKey: true, AutoIncrement: true}
		out = append([]Attribute{id}, out...)
		pk = attrNameID
		seen[attrNameID] = true
	}

	if opts.Timestamps {
		for _, ts := range []Attribute{
			{Name: attrNameCreatedAt, Type: TypeTimestamp, Default: NowDefault, Role: RoleCreatedAt},
			{Name: attrNameUpdatedAt, Type: TypeTimestamp, Default: NowDefault, Role: RoleUpdatedAt},
		} {
			if !seen[ts.Name] {
				out = append(out, ts)
				seen[ts.Name] = true
			}
		}

		if opts.Paranoid && !seen[attrNameDeletedAt] {
			out = append(out, Attribute{Name: attrNameDeletedAt, Type: TypeTimestamp, AllowNull: true, Role: RoleDeletedAt})
		}
	}

	return out, pk, nil
}

// cloneOptions copies the options so later modifications by the caller do not leak in.
func cloneOptions(opts EntityOptions) EntityOptions {
	c := opts
	c.Indexes = make([]Index, 0, len(opts.Indexes))
	for _, idx := range opts.Indexes {
		idx.Fields = append([]string(nil), idx.Fields...)
		c.Indexes = append(c.Indexes, idx)
	}

	c.Hooks = append([]HookSpec(nil), opts.Hooks...)

	if opts.Raw != nil {
		c.Raw = make(map[string]any, len(opts.Raw))
		for k, v := range opts.Raw {
			c.Raw[k] = v
		}
	}

	return c
}
