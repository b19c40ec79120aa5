package helper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

// Fixtures are the entities shared by the integration suites: users own creations twice
// (creator and updater), a creation has one event, and creations and tags are linked many-to-many.
type Fixtures struct {
	User        *datalayer.Entity
	Creation    *datalayer.Entity
	Tag         *datalayer.Entity
	Event       *datalayer.Entity
	CreationTag *datalayer.Entity
}

// All returns the fixture entities in definition order.
func (f Fixtures) All() []*datalayer.Entity {
	return []*datalayer.Entity{f.User, f.Creation, f.Tag, f.Event, f.CreationTag}
}

// GivenFixtureEntities defines the fixture entities with timestamps, optionally paranoid.
func GivenFixtureEntities(t testing.TB, db *datalayer.DB, paranoid bool) Fixtures {
	t.Helper()

	opts := datalayer.EntityOptions{Timestamps: true, Paranoid: paranoid}
	define := func(name string, attrs ...datalayer.Attribute) *datalayer.Entity {
		e, err := db.Define(name, attrs, opts)
		require.NoError(t, err, "error defining fixture entity %s", name)

		return e
	}

	text := func(name string) datalayer.Attribute {
		return datalayer.Attribute{Name: name, Type: datalayer.TypeText, AllowNull: true}
	}

	integer := func(name string) datalayer.Attribute {
		return datalayer.Attribute{Name: name, Type: datalayer.TypeInteger, AllowNull: true}
	}

	return Fixtures{
		User:        define("User", text("name")),
		Creation:    define("Creation", text("name"), integer("user"), integer("user2")),
		Tag:         define("Tag", text("name")),
		Event:       define("Event", text("name"), integer("creation")),
		CreationTag: define("CreationTag", integer("creation"), integer("tag")),
	}
}

// GivenFixtureAssociations declares the relationships between the fixture entities.
func GivenFixtureAssociations(t testing.TB, f Fixtures) {
	t.Helper()

	declare := func(_ *datalayer.Association, err error) {
		require.NoError(t, err, "error declaring fixture association")
	}

	declare(f.User.HasMany(f.Creation, datalayer.AssociationOptions{ForeignKey: "user", As: "creatorCreations"}))
	declare(f.User.HasMany(f.Creation, datalayer.AssociationOptions{ForeignKey: "user2", As: "updatorCreations"}))
	declare(f.Creation.BelongsTo(f.User, datalayer.AssociationOptions{ForeignKey: "user", As: "createUser"}))
	declare(f.Creation.BelongsTo(f.User, datalayer.AssociationOptions{ForeignKey: "user2", As: "updateUser"}))
	declare(f.Event.BelongsTo(f.Creation, datalayer.AssociationOptions{ForeignKey: "creation"}))
	declare(f.Creation.HasOne(f.Event, datalayer.AssociationOptions{ForeignKey: "creation"}))
	declare(f.Tag.BelongsToMany(f.Creation, datalayer.AssociationOptions{
		Through: f.CreationTag.Name(), ForeignKey: "tag", OtherKey: "creation",
	}))
	declare(f.Creation.BelongsToMany(f.Tag, datalayer.AssociationOptions{
		Through: f.CreationTag.Name(), ForeignKey: "creation", OtherKey: "tag",
	}))
}

// GivenSyncedSchema creates all registered tables, dropping existing ones first.
func GivenSyncedSchema(t testing.TB, ctx context.Context, db *datalayer.DB) { //nolint:revive
	t.Helper()

	require.NoError(t, db.Sync(ctx, datalayer.SyncOptions{Force: true}), "error syncing schema in test setup")
}

// GivenInstance creates an instance of e with values.
func GivenInstance(t testing.TB, ctx context.Context, e *datalayer.Entity, values datalayer.Values) *datalayer.Instance { //nolint:revive
	t.Helper()

	inst, err := e.Create(ctx, values, datalayer.MutationOptions{})
	require.NoError(t, err, "error creating %s in test setup", e.Name())

	return inst
}

// CountRows returns the number of rows of e matching where, including soft-deleted ones.
func CountRows(t testing.TB, ctx context.Context, e *datalayer.Entity, where datalayer.Where) int64 { //nolint:revive
	t.Helper()

	n, err := e.Count(ctx, where, datalayer.FindOptions{Unscoped: true})
	require.NoError(t, err, "error counting %s rows", e.Name())

	return n
}
