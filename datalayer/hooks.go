package datalayer

import (
	"context"
	"errors"
	"fmt"
)

// HookEvent identifies a point in a mutation or schema-sync pipeline.
type HookEvent int

const (
	BeforeCreate HookEvent = iota
	AfterCreate
	BeforeUpdate
	AfterUpdate
	BeforeDestroy
	AfterDestroy
	BeforeRestore
	AfterRestore
	BeforeBulkUpdate
	AfterBulkUpdate
	BeforeBulkDestroy
	AfterBulkDestroy
	BeforeSchemaSync
	AfterSchemaSync
)

var hookEventNames = map[HookEvent]string{
	BeforeCreate:      "beforeCreate",
	AfterCreate:       "afterCreate",
	BeforeUpdate:      "beforeUpdate",
	AfterUpdate:       "afterUpdate",
	BeforeDestroy:     "beforeDestroy",
	AfterDestroy:      "afterDestroy",
	BeforeRestore:     "beforeRestore",
	AfterRestore:      "afterRestore",
	BeforeBulkUpdate:  "beforeBulkUpdate",
	AfterBulkUpdate:   "afterBulkUpdate",
	BeforeBulkDestroy: "beforeBulkDestroy",
	AfterBulkDestroy:  "afterBulkDestroy",
	BeforeSchemaSync:  "beforeSchemaSync",
	AfterSchemaSync:   "afterSchemaSync",
}

func (e HookEvent) String() string {
	if name, ok := hookEventNames[e]; ok {
		return name
	}

	return fmt.Sprintf("HookEvent(%d)", int(e))
}

// IsInstanceEvent reports whether hooks for e receive a single instance.
func (e HookEvent) IsInstanceEvent() bool {
	return e >= BeforeCreate && e <= AfterRestore
}

// IsBulkEvent reports whether hooks for e receive bulk options.
func (e HookEvent) IsBulkEvent() bool {
	return e >= BeforeBulkUpdate && e <= AfterBulkDestroy
}

// IsSyncEvent reports whether e belongs to the schema-sync pipeline of the DB.
func (e HookEvent) IsSyncEvent() bool {
	return e == BeforeSchemaSync || e == AfterSchemaSync
}

// InstanceHookFunc is called for single-instance lifecycle events.
// opts.Tx is always the effective transaction of the mutation.
type InstanceHookFunc func(ctx context.Context, instance *Instance, opts *MutationOptions) error

// BulkHookFunc is called for set-based update and destroy.
type BulkHookFunc func(ctx context.Context, opts *BulkOptions) error

// SyncHookFunc is called around DB.Sync.
type SyncHookFunc func(ctx context.Context, db *DB) error

type entityHook struct {
	name     string
	instance InstanceHookFunc
	bulk     BulkHookFunc
}

type syncHook struct {
	name string
	fn   SyncHookFunc
}

// AddHook registers an instance hook under a name unique for the event.
func (e *Entity) AddHook(event HookEvent, name string, fn InstanceHookFunc) error {
	if !event.IsInstanceEvent() {
		return ErrInvalidHookEvent
	}

	if fn == nil {
		return ErrNilHook
	}

	return e.addHook(event, entityHook{name: name, instance: fn})
}

// AddBulkHook registers a bulk hook under a name unique for the event.
func (e *Entity) AddBulkHook(event HookEvent, name string, fn BulkHookFunc) error {
	if !event.IsBulkEvent() {
		return ErrInvalidHookEvent
	}

	if fn == nil {
		return ErrNilHook
	}

	return e.addHook(event, entityHook{name: name, bulk: fn})
}

func (e *Entity) addHook(event HookEvent, hook entityHook) error {
	if hook.name == "" {
		return ErrEmptyHookName
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, h := range e.hooks[event] {
		if h.name == hook.name {
			return errors.Join(ErrDuplicateHook, fmt.Errorf("%s on %s: %s", event, e.name, hook.name))
		}
	}

	e.hooks[event] = append(e.hooks[event], hook)

	return nil
}

// RemoveHook removes the named hook from the event and reports whether it was registered.
func (e *Entity) RemoveHook(event HookEvent, name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	hooks := e.hooks[event]
	for i, h := range hooks {
		if h.name == name {
			e.hooks[event] = append(hooks[:i:i], hooks[i+1:]...)
			return true
		}
	}

	return false
}

// HasHook reports whether a hook with the name is registered for the event.
func (e *Entity) HasHook(event HookEvent, name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, h := range e.hooks[event] {
		if h.name == name {
			return true
		}
	}

	return false
}

// HookNames lists the registered hook names for the event in execution order.
func (e *Entity) HookNames(event HookEvent) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.hooks[event]))
	for _, h := range e.hooks[event] {
		names = append(names, h.name)
	}

	return names
}

func (e *Entity) snapshotHooks(event HookEvent) []entityHook {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return append([]entityHook(nil), e.hooks[event]...)
}

func (e *Entity) runInstanceHooks(ctx context.Context, event HookEvent, inst *Instance, opts *MutationOptions) error {
	for _, h := range e.snapshotHooks(event) {
		if err := h.instance(ctx, inst, opts); err != nil {
			e.db.logError(ctx, logMsgHookFailed, err, logAttrEntity, e.name, logAttrEvent, event.String(), logAttrHook, h.name)
			return errors.Join(ErrHookFailed, err)
		}
	}

	return nil
}

func (e *Entity) runBulkHooks(ctx context.Context, event HookEvent, opts *BulkOptions) error {
	for _, h := range e.snapshotHooks(event) {
		if err := h.bulk(ctx, opts); err != nil {
			e.db.logError(ctx, logMsgHookFailed, err, logAttrEntity, e.name, logAttrEvent, event.String(), logAttrHook, h.name)
			return errors.Join(ErrHookFailed, err)
		}
	}

	return nil
}

// AddSyncHook registers a schema-sync hook under a name unique for the event.
func (db *DB) AddSyncHook(event HookEvent, name string, fn SyncHookFunc) error {
	if !event.IsSyncEvent() {
		return ErrInvalidHookEvent
	}

	if name == "" {
		return ErrEmptyHookName
	}

	if fn == nil {
		return ErrNilHook
	}

	db.hooksMu.Lock()
	defer db.hooksMu.Unlock()

	for _, h := range db.syncHooks[event] {
		if h.name == name {
			return errors.Join(ErrDuplicateHook, fmt.Errorf("%s: %s", event, name))
		}
	}

	db.syncHooks[event] = append(db.syncHooks[event], syncHook{name: name, fn: fn})

	return nil
}

// RemoveSyncHook removes the named schema-sync hook and reports whether it was registered.
func (db *DB) RemoveSyncHook(event HookEvent, name string) bool {
	db.hooksMu.Lock()
	defer db.hooksMu.Unlock()

	hooks := db.syncHooks[event]
	for i, h := range hooks {
		if h.name == name {
			db.syncHooks[event] = append(hooks[:i:i], hooks[i+1:]...)
			return true
		}
	}

	return false
}

// HasSyncHook reports whether a schema-sync hook with the name is registered for the event.
func (db *DB) HasSyncHook(event HookEvent, name string) bool {
	db.hooksMu.RLock()
	defer db.hooksMu.RUnlock()

	for _, h := range db.syncHooks[event] {
		if h.name == name {
			return true
		}
	}

	return false
}

func (db *DB) runSyncHooks(ctx context.Context, event HookEvent) error {
	db.hooksMu.RLock()
	hooks := append([]syncHook(nil), db.syncHooks[event]...)
	db.hooksMu.RUnlock()

	for _, h := range hooks {
		if err := h.fn(ctx, db); err != nil {
			db.logError(ctx, logMsgHookFailed, err, logAttrEvent, event.String(), logAttrHook, h.name)
			return errors.Join(ErrHookFailed, err)
		}
	}

	return nil
}
