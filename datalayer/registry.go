package datalayer

import "sync"

// Registry holds the entities defined on one DB handle in definition order.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	entities map[string]*Entity
}

func newRegistry() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// Lookup returns the entity registered under name.
func (r *Registry) Lookup(name string) (*Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[name]

	return e, ok
}

// Entities returns a snapshot of all registered entities in definition order.
func (r *Registry) Entities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entities[name])
	}

	return out
}

// Len returns the number of registered entities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// Unregister removes the entity registered under name and reports whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entities[name]; !ok {
		return false
	}

	delete(r.entities, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return true
}

func (r *Registry) add(e *Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entities[e.name]; ok {
		return ErrEntityAlreadyDefined
	}

	r.entities[e.name] = e
	r.order = append(r.order, e.name)

	return nil
}
