package datalayer

import "reflect"

// Values maps attribute names to values.
type Values map[string]any

// Clone returns a shallow copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}

	return out
}

// Instance is one row of an entity, either built in memory or loaded from storage.
// Previous holds the values as of the last load or save, which is the before-image of the
// mutation currently running. An Instance is not safe for concurrent use.
type Instance struct {
	entity   *Entity
	values   Values
	previous Values
	loaded   map[string]bool
	isNew    bool
}

// Build creates an unsaved instance. Setters run once per supplied attribute; keys which are
// not attributes of the entity are ignored.
func (e *Entity) Build(values Values) *Instance {
	inst := &Instance{
		entity:   e,
		values:   make(Values, len(values)),
		previous: make(Values),
		loaded:   make(map[string]bool, len(values)),
		isNew:    true,
	}

	for _, a := range e.attributes {
		if v, ok := values[a.Name]; ok {
			inst.assign(a, v)
		}
	}

	return inst
}

func (e *Entity) instanceFromRow(fields []string, raw []any) (*Instance, error) {
	inst := &Instance{
		entity:   e,
		values:   make(Values, len(fields)),
		previous: make(Values, len(fields)),
		loaded:   make(map[string]bool, len(fields)),
	}

	for i, field := range fields {
		v, err := decodeValue(e.attr(field), raw[i])
		if err != nil {
			return nil, err
		}

		inst.values[field] = v
		inst.previous[field] = v
		inst.loaded[field] = true
	}

	return inst, nil
}

// Entity returns the entity the instance belongs to.
func (i *Instance) Entity() *Entity {
	return i.entity
}

// IsNew reports whether the instance was never persisted.
func (i *Instance) IsNew() bool {
	return i.isNew
}

// Get returns the value of field after the attribute's getter.
func (i *Instance) Get(field string) any {
	v := i.values[field]
	if idx, ok := i.entity.byName[field]; ok && i.entity.attributes[idx].Get != nil {
		return i.entity.attributes[idx].Get(v)
	}

	return v
}

// Raw returns the stored value of field without the getter.
func (i *Instance) Raw(field string) (any, bool) {
	v, ok := i.values[field]
	return v, ok
}

// Set assigns a value through the attribute's setter.
func (i *Instance) Set(field string, value any) error {
	idx, ok := i.entity.byName[field]
	if !ok {
		return unknownAttribute(i.entity, field)
	}

	i.assign(i.entity.attributes[idx], value)

	return nil
}

func (i *Instance) assign(a Attribute, value any) {
	if a.Set != nil {
		value = a.Set(value)
	}

	i.values[a.Name] = normalizeValue(a, value)
	i.loaded[a.Name] = true
}

// setRaw stores a value the layer computed itself, bypassing the setter.
func (i *Instance) setRaw(field string, value any) {
	i.values[field] = normalizeValue(i.entity.attr(field), value)
	i.loaded[field] = true
}

// Values returns a copy of the current values.
func (i *Instance) Values() Values {
	return i.values.Clone()
}

// Previous returns a copy of the values as of the last load or save.
func (i *Instance) Previous() Values {
	return i.previous.Clone()
}

// Loaded reports whether field is materialized on the instance.
func (i *Instance) Loaded(field string) bool {
	return i.loaded[field]
}

// LoadedFields returns the materialized attribute names in declaration order.
func (i *Instance) LoadedFields() []string {
	out := make([]string, 0, len(i.loaded))
	for _, a := range i.entity.attributes {
		if i.loaded[a.Name] {
			out = append(out, a.Name)
		}
	}

	return out
}

// MissingFields returns the attribute names which are not materialized, in declaration order.
func (i *Instance) MissingFields() []string {
	var out []string
	for _, a := range i.entity.attributes {
		if !i.loaded[a.Name] {
			out = append(out, a.Name)
		}
	}

	return out
}

// PrimaryKeyValue returns the persisted primary key, falling back to the current value.
func (i *Instance) PrimaryKeyValue() any {
	if v, ok := i.previous[i.entity.pk]; ok && v != nil {
		return v
	}

	return i.values[i.entity.pk]
}

// Changed returns the attributes whose value differs from the before-image, in declaration order.
func (i *Instance) Changed() []string {
	var out []string
	for _, a := range i.entity.attributes {
		if !i.loaded[a.Name] {
			continue
		}

		prev, had := i.previous[a.Name]
		if !had || !reflect.DeepEqual(prev, i.values[a.Name]) {
			out = append(out, a.Name)
		}
	}

	return out
}

// refresh overwrites the fields other materialized, in the current values and the before-image.
func (i *Instance) refresh(other *Instance) {
	for field := range other.loaded {
		i.values[field] = other.values[field]
		i.previous[field] = other.values[field]
		i.loaded[field] = true
	}
}

// markPersisted makes the current values the new before-image.
func (i *Instance) markPersisted() {
	i.isNew = false
	i.previous = i.values.Clone()
}
