package datalayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Entity is a registered entity type: its attributes, table options, hooks, and associations.
// Attributes and options are fixed once defined.
type Entity struct {
	db         *DB
	name       string
	attributes []Attribute
	byName     map[string]int
	options    EntityOptions
	pk         string

	mu           sync.RWMutex
	hooks        map[HookEvent][]entityHook
	associations []*Association
	annotations  map[string]any
}

// Define registers a new entity on the DB.
func (db *DB) Define(name string, attrs []Attribute, opts EntityOptions) (*Entity, error) {
	if name == "" {
		return nil, ErrEmptyEntityName
	}

	normalized, pk, err := normalizeAttributes(attrs, opts)
	if err != nil {
		return nil, errors.Join(err, fmt.Errorf("entity %q", name))
	}

	for _, a := range normalized {
		if !a.Type.Valid() {
			return nil, errors.Join(ErrUnknownAttribute, fmt.Errorf("entity %q attribute %q has type %q", name, a.Name, a.Type))
		}
	}

	opts = cloneOptions(opts)
	if opts.TableName == "" {
		opts.TableName = name
	}

	e := &Entity{
		db:          db,
		name:        name,
		attributes:  normalized,
		byName:      make(map[string]int, len(normalized)),
		options:     opts,
		pk:          pk,
		hooks:       make(map[HookEvent][]entityHook),
		annotations: make(map[string]any),
	}

	for i, a := range normalized {
		e.byName[a.Name] = i
	}

	for _, spec := range opts.Hooks {
		var hookErr error
		if spec.Event.IsBulkEvent() {
			hookErr = e.AddBulkHook(spec.Event, spec.Name, spec.Bulk)
		} else {
			hookErr = e.AddHook(spec.Event, spec.Name, spec.Fn)
		}

		if hookErr != nil {
			return nil, errors.Join(hookErr, fmt.Errorf("entity %q", name))
		}
	}

	if err := db.registry.add(e); err != nil {
		return nil, errors.Join(err, fmt.Errorf("entity %q", name))
	}

	db.logInfo(context.Background(), logMsgEntityDefined, logAttrEntity, name, logAttrTable, opts.TableName)

	return e, nil
}

// DB returns the handle the entity is registered on.
func (e *Entity) DB() *DB {
	return e.db
}

// Name returns the entity name.
func (e *Entity) Name() string {
	return e.name
}

// TableName returns the table backing the entity.
func (e *Entity) TableName() string {
	return e.options.TableName
}

// PrimaryKey returns the name of the primary key attribute.
func (e *Entity) PrimaryKey() string {
	return e.pk
}

// Attributes returns copies of the attribute descriptors in declaration order.
func (e *Entity) Attributes() []Attribute {
	out := make([]Attribute, 0, len(e.attributes))
	for _, a := range e.attributes {
		out = append(out, a.Clone())
	}

	return out
}

// AttributeNames returns the attribute names in declaration order.
func (e *Entity) AttributeNames() []string {
	out := make([]string, 0, len(e.attributes))
	for _, a := range e.attributes {
		out = append(out, a.Name)
	}

	return out
}

// Attribute returns the descriptor of the named attribute.
func (e *Entity) Attribute(name string) (Attribute, bool) {
	i, ok := e.byName[name]
	if !ok {
		return Attribute{}, false
	}

	return e.attributes[i].Clone(), true
}

// HasAttribute reports whether the entity declares the attribute.
func (e *Entity) HasAttribute(name string) bool {
	_, ok := e.byName[name]
	return ok
}

// Options returns a copy of the entity options.
func (e *Entity) Options() EntityOptions {
	return cloneOptions(e.options)
}

// Paranoid reports whether destroy is a soft delete. This needs timestamps.
func (e *Entity) Paranoid() bool {
	return e.options.Paranoid && e.options.Timestamps && e.roleAttribute(RoleDeletedAt) != ""
}

// Annotate attaches an opaque value to the entity, used by extensions to keep per-entity state.
func (e *Entity) Annotate(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.annotations[key] = value
}

// Annotation returns a value stored with Annotate.
func (e *Entity) Annotation(key string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.annotations[key]

	return v, ok
}

func (e *Entity) roleAttribute(role AttributeRole) string {
	for _, a := range e.attributes {
		if a.Role == role {
			return a.Name
		}
	}

	return ""
}

// timestampAttribute returns the attribute the layer maintains for role, or "" when timestamps are off.
func (e *Entity) timestampAttribute(role AttributeRole) string {
	if !e.options.Timestamps {
		return ""
	}

	return e.roleAttribute(role)
}

func (e *Entity) attr(name string) Attribute {
	return e.attributes[e.byName[name]]
}

func unknownAttribute(e *Entity, field string) error {
	return errors.Join(ErrUnknownAttribute, fmt.Errorf("%s.%s", e.name, field))
}
