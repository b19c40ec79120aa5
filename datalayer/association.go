package datalayer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// AssociationKind is the cardinality of a relationship.
type AssociationKind int

const (
	HasOne AssociationKind = iota
	HasMany
	BelongsTo
	BelongsToMany
)

func (k AssociationKind) String() string {
	switch k {
	case HasOne:
		return "hasOne"
	case HasMany:
		return "hasMany"
	case BelongsTo:
		return "belongsTo"
	case BelongsToMany:
		return "belongsToMany"
	default:
		return fmt.Sprintf("AssociationKind(%d)", int(k))
	}
}

// ReferentialAction is the declared reaction to a deleted or re-keyed parent row.
type ReferentialAction string

const (
	ActionUnset    ReferentialAction = ""
	ActionCascade  ReferentialAction = "CASCADE"
	ActionSetNull  ReferentialAction = "SET NULL"
	ActionRestrict ReferentialAction = "RESTRICT"
	ActionNoAction ReferentialAction = "NO ACTION"
)

// AssociationOptions describe a relationship.
//
// For HasOne and HasMany, ForeignKey is the target attribute pointing at SourceKey of the source.
// For BelongsTo, ForeignKey is the source attribute pointing at TargetKey of the target.
// For BelongsToMany, Through names the join entity, ForeignKey is its column pointing at SourceKey
// and OtherKey its column pointing at TargetKey.
// KeyAttributes optionally declares the addressable key set of the source side. Every key attribute
// must name an attribute of the source entity. The set is descriptive and not used to resolve rows.
type AssociationOptions struct {
	As            string
	ForeignKey    string
	OtherKey      string
	SourceKey     string
	TargetKey     string
	Through       string
	OnDelete      ReferentialAction
	OnUpdate      ReferentialAction
	KeyAttributes []Attribute
	Extra         map[string]any
}

// Clone returns a deep copy of the options.
func (o AssociationOptions) Clone() AssociationOptions {
	c := o
	c.KeyAttributes = make([]Attribute, 0, len(o.KeyAttributes))
	for _, a := range o.KeyAttributes {
		c.KeyAttributes = append(c.KeyAttributes, a.Clone())
	}

	if o.Extra != nil {
		c.Extra = make(map[string]any, len(o.Extra))
		for k, v := range o.Extra {
			c.Extra[k] = v
		}
	}

	return c
}

// Association is a declared relationship from Source to Target.
type Association struct {
	Kind    AssociationKind
	Source  *Entity
	Target  *Entity
	Options AssociationOptions
}

// HasOne declares that one target row points at the source through ForeignKey.
func (e *Entity) HasOne(target *Entity, opts AssociationOptions) (*Association, error) {
	return e.associate(HasOne, target, opts)
}

// HasMany declares that many target rows point at the source through ForeignKey.
func (e *Entity) HasMany(target *Entity, opts AssociationOptions) (*Association, error) {
	return e.associate(HasMany, target, opts)
}

// BelongsTo declares that the source points at one target row through ForeignKey.
func (e *Entity) BelongsTo(target *Entity, opts AssociationOptions) (*Association, error) {
	return e.associate(BelongsTo, target, opts)
}

// BelongsToMany declares a many-to-many relationship through a join entity.
func (e *Entity) BelongsToMany(target *Entity, opts AssociationOptions) (*Association, error) {
	return e.associate(BelongsToMany, target, opts)
}

// Declare declares an association of the given kind.
func (e *Entity) Declare(kind AssociationKind, target *Entity, opts AssociationOptions) (*Association, error) {
	return e.associate(kind, target, opts)
}

func (e *Entity) associate(kind AssociationKind, target *Entity, opts AssociationOptions) (*Association, error) {
	if target == nil {
		return nil, ErrNilTargetEntity
	}

	opts = opts.Clone()
	for _, a := range opts.KeyAttributes {
		if !e.HasAttribute(a.Name) {
			return nil, errors.Join(ErrUnknownKeyAttribute, fmt.Errorf("%s.%s", e.name, a.Name))
		}
	}

	if opts.As == "" {
		opts.As = target.name
	}

	switch kind {
	case HasOne, HasMany:
		if opts.ForeignKey == "" {
			opts.ForeignKey = lowerFirst(e.name) + "Id"
		}
		if opts.SourceKey == "" {
			opts.SourceKey = e.pk
		}
	case BelongsTo:
		if opts.ForeignKey == "" {
			opts.ForeignKey = lowerFirst(opts.As) + "Id"
		}
		if opts.TargetKey == "" {
			opts.TargetKey = target.pk
		}
	case BelongsToMany:
		if opts.Through == "" {
			return nil, ErrThroughEntityRequired
		}
		if opts.ForeignKey == "" {
			opts.ForeignKey = lowerFirst(e.name) + "Id"
		}
		if opts.OtherKey == "" {
			opts.OtherKey = lowerFirst(target.name) + "Id"
		}
		if opts.SourceKey == "" {
			opts.SourceKey = e.pk
		}
		if opts.TargetKey == "" {
			opts.TargetKey = target.pk
		}
	}

	assoc := &Association{Kind: kind, Source: e, Target: target, Options: opts}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, existing := range e.associations {
		if existing.Options.As == opts.As {
			e.associations[i] = assoc
			return assoc, nil
		}
	}

	e.associations = append(e.associations, assoc)

	return assoc, nil
}

// Associations returns the declared associations in declaration order.
func (e *Entity) Associations() []*Association {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return append([]*Association(nil), e.associations...)
}

// Association returns the association declared under the alias.
func (e *Entity) Association(as string) (*Association, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, a := range e.associations {
		if a.Options.As == as {
			return a, true
		}
	}

	return nil, false
}

// FindAssociated loads the target instances related to inst through the association named as.
func (e *Entity) FindAssociated(ctx context.Context, inst *Instance, as string, opts FindOptions) ([]*Instance, error) {
	if inst.entity != e {
		return nil, ErrInstanceOfOtherEntity
	}

	assoc, ok := e.Association(as)
	if !ok {
		return nil, errors.Join(ErrUnknownAssociation, fmt.Errorf("%s.%s", e.name, as))
	}

	o := assoc.Options
	target := assoc.Target

	switch assoc.Kind {
	case HasOne, HasMany:
		key, err := e.associationKey(ctx, inst, o.SourceKey, opts.Tx)
		if err != nil || key == nil {
			return nil, err
		}

		if assoc.Kind == HasOne {
			opts.Limit = 1
		}

		return target.FindAll(ctx, Where{o.ForeignKey: key}, opts)

	case BelongsTo:
		key, err := e.associationKey(ctx, inst, o.ForeignKey, opts.Tx)
		if err != nil || key == nil {
			return nil, err
		}

		opts.Limit = 1

		return target.FindAll(ctx, Where{o.TargetKey: key}, opts)

	default:
		return e.findThrough(ctx, inst, assoc, opts)
	}
}

func (e *Entity) findThrough(ctx context.Context, inst *Instance, assoc *Association, opts FindOptions) ([]*Instance, error) {
	o := assoc.Options

	through, err := e.db.Entity(o.Through)
	if err != nil {
		return nil, err
	}

	key, err := e.associationKey(ctx, inst, o.SourceKey, opts.Tx)
	if err != nil || key == nil {
		return nil, err
	}

	links, err := through.FindAll(ctx, Where{o.ForeignKey: key}, FindOptions{Fields: []string{o.OtherKey}, Tx: opts.Tx})
	if err != nil {
		return nil, err
	}

	var ids []any
	for _, link := range links {
		if v := link.values[o.OtherKey]; v != nil {
			ids = append(ids, v)
		}
	}

	if len(ids) == 0 {
		return []*Instance{}, nil
	}

	return assoc.Target.FindAll(ctx, Where{o.TargetKey: ids}, opts)
}

// associationKey returns the value of field on inst, loading it when the instance is partial.
func (e *Entity) associationKey(ctx context.Context, inst *Instance, field string, tx *Tx) (any, error) {
	if !e.HasAttribute(field) {
		return nil, unknownAttribute(e, field)
	}

	if !inst.loaded[field] {
		if err := e.Reload(ctx, inst, []string{field}, tx); err != nil {
			return nil, err
		}
	}

	return inst.values[field], nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}

	return strings.ToLower(s[:1]) + s[1:]
}
