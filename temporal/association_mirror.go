package temporal

import (
	"context"
	"errors"
	"fmt"

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

const syncHookAssociationMirror = "temporal.associationMirror"

// associationMirror replicates the relationships of versioned entities onto their shadows.
// It runs once at the next schema sync, when every entity it may reference is registered.
type associationMirror struct {
	cfg *config
}

// installAssociationMirror registers the one-shot sync hook pair, replacing an earlier installation.
func installAssociationMirror(db *datalayer.DB, cfg *config) error {
	uninstallAssociationMirror(db)

	m := associationMirror{cfg: cfg}

	if err := db.AddSyncHook(datalayer.BeforeSchemaSync, syncHookAssociationMirror, m.mirror); err != nil {
		return err
	}

	if err := db.AddSyncHook(datalayer.AfterSchemaSync, syncHookAssociationMirror, m.uninstall); err != nil {
		db.RemoveSyncHook(datalayer.BeforeSchemaSync, syncHookAssociationMirror)
		return err
	}

	return nil
}

func uninstallAssociationMirror(db *datalayer.DB) {
	db.RemoveSyncHook(datalayer.BeforeSchemaSync, syncHookAssociationMirror)
	db.RemoveSyncHook(datalayer.AfterSchemaSync, syncHookAssociationMirror)
}

func (m associationMirror) uninstall(_ context.Context, db *datalayer.DB) error {
	uninstallAssociationMirror(db)
	return nil
}

// mirror declares, for every versioned entity with mirroring enabled, its relationships on the
// shadow, then links origin and shadow. Declarations are keyed by alias, so a second pass
// redeclares the same associations.
func (m associationMirror) mirror(ctx context.Context, db *datalayer.DB) error {
	count := 0

	for _, origin := range db.Registry().Entities() {
		v, ok := versioningOf(origin)
		if !ok || !v.cfg.mirrorAssociations {
			continue
		}

		for _, assoc := range origin.Associations() {
			if isShadow(assoc.Target) {
				continue
			}

			opts, ok := mirroredOptions(assoc, v.shadow)
			if !ok {
				continue
			}

			if _, err := v.shadow.Declare(assoc.Kind, assoc.Target, opts); err != nil {
				return errors.Join(err, fmt.Errorf("mirroring %s.%s onto %s", origin.Name(), assoc.Options.As, v.shadow.Name()))
			}
			count++
		}

		linked, err := linkOriginAndShadow(origin, v.shadow)
		if err != nil {
			return err
		}
		count += linked
	}

	m.cfg.logInfo(ctx, logMsgAssociationsMirrored, logAttrAssociationCount, count)

	return nil
}

// mirroredOptions copies the options of an origin association for the shadow. Referential actions
// become NO ACTION, since a snapshot must outlive changes to the rows it references.
// Associations keyed by a column the shadow does not carry are not mirrored.
func mirroredOptions(assoc *datalayer.Association, shadow *datalayer.Entity) (datalayer.AssociationOptions, bool) {
	opts := assoc.Options.Clone()
	opts.OnDelete = datalayer.ActionNoAction
	opts.OnUpdate = datalayer.ActionNoAction

	switch assoc.Kind {
	case datalayer.BelongsTo:
		return opts, shadow.HasAttribute(opts.ForeignKey)

	case datalayer.BelongsToMany:
		originKey, ok := assoc.Source.Attribute(opts.SourceKey)
		if !ok || !shadow.HasAttribute(opts.SourceKey) {
			return opts, false
		}

		surrogate, _ := shadow.Attribute(AttrShadowID)
		surrogate.PrimaryKey = false
		originKey.AutoIncrement = false
		opts.KeyAttributes = []datalayer.Attribute{surrogate, originKey}

		return opts, true

	default:
		return opts, shadow.HasAttribute(opts.SourceKey)
	}
}

// linkOriginAndShadow declares origin has-many shadow and shadow belongs-to origin,
// both keyed by the copy of the origin's primary key.
func linkOriginAndShadow(origin, shadow *datalayer.Entity) (int, error) {
	pk := origin.PrimaryKey()
	if !shadow.HasAttribute(pk) {
		return 0, nil
	}

	if _, err := origin.HasMany(shadow, datalayer.AssociationOptions{
		As:         shadow.Name(),
		ForeignKey: pk,
		SourceKey:  pk,
		OnDelete:   datalayer.ActionNoAction,
		OnUpdate:   datalayer.ActionNoAction,
	}); err != nil {
		return 0, err
	}

	if _, err := shadow.BelongsTo(origin, datalayer.AssociationOptions{
		As:         origin.Name(),
		ForeignKey: pk,
		TargetKey:  pk,
		OnDelete:   datalayer.ActionNoAction,
		OnUpdate:   datalayer.ActionNoAction,
	}); err != nil {
		return 0, err
	}

	return 2, nil
}
