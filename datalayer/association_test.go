package datalayer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/AntonStoeckl/temporal-history-go/datalayer"
	"github.com/AntonStoeckl/temporal-history-go/testutil/helper"
)

type associationScenario struct {
	f        helper.Fixtures
	alice    *Instance
	bob      *Instance
	creation *Instance
	event    *Instance
	tags     []*Instance
}

func givenAssociationScenario(t *testing.T, ctx context.Context) associationScenario { //nolint:revive
	t.Helper()

	db := helper.GivenSQLiteDB(t)
	f := helper.GivenFixtureEntities(t, db, false)
	helper.GivenFixtureAssociations(t, f)
	helper.GivenSyncedSchema(t, ctx, db)

	s := associationScenario{f: f}
	s.alice = helper.GivenInstance(t, ctx, f.User, Values{"name": "alice"})
	s.bob = helper.GivenInstance(t, ctx, f.User, Values{"name": "bob"})
	s.creation = helper.GivenInstance(t, ctx, f.Creation, Values{
		"name":  "first",
		"user":  s.alice.Get("id"),
		"user2": s.bob.Get("id"),
	})
	s.event = helper.GivenInstance(t, ctx, f.Event, Values{"name": "published", "creation": s.creation.Get("id")})

	for _, name := range []string{"go", "sql"} {
		tag := helper.GivenInstance(t, ctx, f.Tag, Values{"name": name})
		helper.GivenInstance(t, ctx, f.CreationTag, Values{"creation": s.creation.Get("id"), "tag": tag.Get("id")})
		s.tags = append(s.tags, tag)
	}

	return s
}

func Test_FindAssociated_HasMany_Follows_The_Declared_ForeignKey(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := givenAssociationScenario(t, ctxWithTimeout)

	// act
	aliceCreated, err1 := s.f.User.FindAssociated(ctxWithTimeout, s.alice, "creatorCreations", FindOptions{})
	aliceUpdated, err2 := s.f.User.FindAssociated(ctxWithTimeout, s.alice, "updatorCreations", FindOptions{})
	bobUpdated, err3 := s.f.User.FindAssociated(ctxWithTimeout, s.bob, "updatorCreations", FindOptions{})

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.NoError(t, err3)
	require.Len(t, aliceCreated, 1)
	assert.Equal(t, "first", aliceCreated[0].Get("name"))
	assert.Empty(t, aliceUpdated)
	require.Len(t, bobUpdated, 1)
}

func Test_FindAssociated_BelongsTo_And_HasOne(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := givenAssociationScenario(t, ctxWithTimeout)

	// act
	creator, err1 := s.f.Creation.FindAssociated(ctxWithTimeout, s.creation, "createUser", FindOptions{})
	updater, err2 := s.f.Creation.FindAssociated(ctxWithTimeout, s.creation, "updateUser", FindOptions{})
	event, err3 := s.f.Creation.FindAssociated(ctxWithTimeout, s.creation, "Event", FindOptions{})
	parent, err4 := s.f.Event.FindAssociated(ctxWithTimeout, s.event, "Creation", FindOptions{})

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.NoError(t, err3)
	require.NoError(t, err4)
	require.Len(t, creator, 1)
	assert.Equal(t, "alice", creator[0].Get("name"))
	require.Len(t, updater, 1)
	assert.Equal(t, "bob", updater[0].Get("name"))
	require.Len(t, event, 1)
	assert.Equal(t, "published", event[0].Get("name"))
	require.Len(t, parent, 1)
	assert.Equal(t, s.creation.Get("id"), parent[0].Get("id"))
}

func Test_FindAssociated_BelongsToMany_Uses_The_Join_Entity(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := givenAssociationScenario(t, ctxWithTimeout)

	// act
	tags, err1 := s.f.Creation.FindAssociated(ctxWithTimeout, s.creation, "Tag", FindOptions{})
	creations, err2 := s.f.Tag.FindAssociated(ctxWithTimeout, s.tags[1], "Creation", FindOptions{})

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Len(t, tags, 2)
	assert.Equal(t, "go", tags[0].Get("name"))
	assert.Equal(t, "sql", tags[1].Get("name"))
	require.Len(t, creations, 1)
	assert.Equal(t, "first", creations[0].Get("name"))
}

func Test_FindAssociated_When_Partial_Instance_Loads_The_Key(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := givenAssociationScenario(t, ctxWithTimeout)
	partial, err := s.f.Creation.FindByPK(ctxWithTimeout, s.creation.Get("id"), FindOptions{Fields: []string{"name"}})
	require.NoError(t, err)
	require.False(t, partial.Loaded("user"))

	// act
	creator, err := s.f.Creation.FindAssociated(ctxWithTimeout, partial, "createUser", FindOptions{})

	// assert
	require.NoError(t, err)
	require.Len(t, creator, 1)
	assert.Equal(t, "alice", creator[0].Get("name"))
	assert.True(t, partial.Loaded("user"))
}

func Test_Declare_When_Alias_Exists_Replaces_The_Association(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)
	f := helper.GivenFixtureEntities(t, db, false)
	helper.GivenFixtureAssociations(t, f)
	before := len(f.User.Associations())

	// act
	replaced, err := f.User.HasMany(f.Creation, AssociationOptions{
		As:         "creatorCreations",
		ForeignKey: "user",
		OnDelete:   ActionNoAction,
	})

	// assert
	require.NoError(t, err)
	assert.Len(t, f.User.Associations(), before)

	found, ok := f.User.Association("creatorCreations")
	require.True(t, ok)
	assert.Same(t, replaced, found)
	assert.Equal(t, ActionNoAction, found.Options.OnDelete)
}

func Test_Declare_Fills_Default_Keys(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)
	f := helper.GivenFixtureEntities(t, db, false)

	// act
	hasMany, err1 := f.User.HasMany(f.Creation, AssociationOptions{})
	belongsTo, err2 := f.Creation.BelongsTo(f.User, AssociationOptions{As: "Owner"})
	belongsToMany, err3 := f.Creation.BelongsToMany(f.Tag, AssociationOptions{Through: "CreationTag"})

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.NoError(t, err3)

	assert.Equal(t, "Creation", hasMany.Options.As)
	assert.Equal(t, "userId", hasMany.Options.ForeignKey)
	assert.Equal(t, "id", hasMany.Options.SourceKey)
	assert.Equal(t, "hasMany", hasMany.Kind.String())

	assert.Equal(t, "ownerId", belongsTo.Options.ForeignKey)
	assert.Equal(t, "id", belongsTo.Options.TargetKey)

	assert.Equal(t, "creationId", belongsToMany.Options.ForeignKey)
	assert.Equal(t, "tagId", belongsToMany.Options.OtherKey)
}

func Test_Declare_When_Invalid_Fails(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)
	f := helper.GivenFixtureEntities(t, db, false)

	// act
	_, errThrough := f.Creation.BelongsToMany(f.Tag, AssociationOptions{})
	_, errNil := f.Creation.HasOne(nil, AssociationOptions{})
	_, errUnknown := f.Creation.FindAssociated(context.Background(), f.Creation.Build(Values{}), "nope", FindOptions{})
	_, errKey := f.Creation.HasMany(f.Tag, AssociationOptions{As: "keyed", KeyAttributes: []Attribute{{Name: "missing"}}})

	// assert
	assert.ErrorIs(t, errThrough, ErrThroughEntityRequired)
	assert.ErrorIs(t, errNil, ErrNilTargetEntity)
	assert.ErrorIs(t, errUnknown, ErrUnknownAssociation)
	assert.ErrorIs(t, errKey, ErrUnknownKeyAttribute)
	_, declared := f.Creation.Association("keyed")
	assert.False(t, declared)
}

func Test_AssociationOptions_Clone_Is_Deep(t *testing.T) {
	// setup
	original := AssociationOptions{
		KeyAttributes: []Attribute{{Name: "id", PrimaryKey: true, Extra: map[string]any{"k": 1}}},
		Extra:         map[string]any{"scope": "x"},
	}

	// act
	clone := original.Clone()
	clone.KeyAttributes[0].PrimaryKey = false
	clone.KeyAttributes[0].Extra["k"] = 2
	clone.Extra["scope"] = "y"

	// assert
	assert.True(t, original.KeyAttributes[0].PrimaryKey)
	assert.Equal(t, 1, original.KeyAttributes[0].Extra["k"])
	assert.Equal(t, "x", original.Extra["scope"])
}
