package temporal

import (
	"context"
	"errors"
	"fmt"

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

const (
	annotationVersioning = "temporal.versioning"
	annotationShadowOf   = "temporal.shadowOf"
)

// versioning is the state attached to a versioned origin entity.
type versioning struct {
	shadow  *datalayer.Entity
	cfg     *config
	pending *sequencer
}

func versioningOf(e *datalayer.Entity) (*versioning, bool) {
	v, ok := e.Annotation(annotationVersioning)
	if !ok {
		return nil, false
	}

	typed, ok := v.(*versioning)

	return typed, ok
}

func isShadow(e *datalayer.Entity) bool {
	_, ok := e.Annotation(annotationShadowOf)
	return ok
}

// Attach registers the shadow entity of origin on db and wires snapshot capturing into the origin's
// lifecycle. It returns the origin entity.
//
// Registration is all or nothing: on failure neither the shadow entity nor any hook stays registered.
func Attach(origin *datalayer.Entity, db *datalayer.DB, options ...Option) (*datalayer.Entity, error) {
	if origin == nil {
		return nil, ErrNilOriginEntity
	}

	if db == nil {
		return nil, ErrNilDatabase
	}

	if registered, ok := db.Registry().Lookup(origin.Name()); !ok || registered != origin {
		return nil, errors.Join(ErrOriginNotRegistered, fmt.Errorf("entity %q", origin.Name()))
	}

	if _, ok := versioningOf(origin); ok {
		return nil, errors.Join(ErrAlreadyVersioned, fmt.Errorf("entity %q", origin.Name()))
	}

	if isShadow(origin) {
		return nil, errors.Join(ErrShadowOfShadow, fmt.Errorf("entity %q", origin.Name()))
	}

	cfg, err := newConfig(options...)
	if err != nil {
		return nil, err
	}

	def, err := deriveShadowSchema(DefinitionOf(origin), cfg)
	if err != nil {
		return nil, err
	}

	shadow, err := db.Define(def.Name, def.Attributes, def.Options)
	if err != nil {
		return nil, errors.Join(ErrRegisteringShadowFailed, err)
	}

	v := &versioning{shadow: shadow, cfg: cfg, pending: newSequencer()}
	writer := &snapshotWriter{
		origin:  origin,
		shadow:  shadow,
		fields:  payloadFields(def),
		cfg:     cfg,
		pending: v.pending,
	}

	attached := &hookSet{}
	rollback := func(cause error) error {
		attached.detach()
		db.Unregister(context.Background(), shadow.Name())

		return errors.Join(ErrAttachingHookFailed, cause)
	}

	if err := (readOnlyGuard{shadow: shadow.Name()}).attach(shadow, attached); err != nil {
		return nil, rollback(err)
	}

	if err := (hookRegistrar{writer: writer, cfg: cfg}).register(origin, attached); err != nil {
		return nil, rollback(err)
	}

	if cfg.mirrorAssociations {
		if err := installAssociationMirror(db, cfg); err != nil {
			return nil, rollback(err)
		}
	}

	shadow.Annotate(annotationShadowOf, origin.Name())
	origin.Annotate(annotationVersioning, v)

	cfg.logInfo(
		context.Background(),
		logMsgVersioningAttached,
		logAttrEntity, origin.Name(),
		logAttrShadow, shadow.Name(),
		logAttrMode, cfg.captureMode.String(),
		logAttrBlocking, cfg.blocking,
		logAttrTransition, fmt.Sprintf("%v", capturedTransitions(cfg.captureMode)),
	)

	return origin, nil
}

// ShadowOf returns the shadow entity registered for origin.
func ShadowOf(db *datalayer.DB, origin *datalayer.Entity) (*datalayer.Entity, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	if origin == nil {
		return nil, ErrNilOriginEntity
	}

	v, ok := versioningOf(origin)
	if !ok {
		return nil, errors.Join(ErrNotVersioned, fmt.Errorf("entity %q", origin.Name()))
	}

	if registered, found := db.Registry().Lookup(v.shadow.Name()); !found || registered != v.shadow {
		return nil, errors.Join(ErrNotVersioned, fmt.Errorf("shadow %q is not registered", v.shadow.Name()))
	}

	return v.shadow, nil
}

// IsShadow reports whether e is a shadow entity registered by Attach.
func IsShadow(e *datalayer.Entity) bool {
	return e != nil && isShadow(e)
}

// WaitForPendingSnapshots blocks until every detached snapshot write of origin has settled or ctx is done.
// Blocking-mode versioning never has pending writes.
func WaitForPendingSnapshots(ctx context.Context, origin *datalayer.Entity) error {
	if origin == nil {
		return ErrNilOriginEntity
	}

	v, ok := versioningOf(origin)
	if !ok {
		return errors.Join(ErrNotVersioned, fmt.Errorf("entity %q", origin.Name()))
	}

	return v.pending.Wait(ctx)
}
