package datalayer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/AntonStoeckl/temporal-history-go/datalayer"
	"github.com/AntonStoeckl/temporal-history-go/testutil/helper"
)

func Test_Define_When_NoPrimaryKeyDeclared_AddsAutoIncrementID(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)

	// act
	users, err := db.Define("User", []Attribute{{Name: "name", Type: TypeText}}, EntityOptions{})

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, users.AttributeNames())
	assert.Equal(t, "id", users.PrimaryKey())

	id, ok := users.Attribute("id")
	assert.True(t, ok)
	assert.True(t, id.PrimaryKey)
	assert.True(t, id.AutoIncrement)
	assert.Equal(t, TypeInteger, id.Type)
}

func Test_Define_When_TimestampsAndParanoid_AddsRoleAttributes(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)

	// act
	users, err := db.Define(
		"User",
		[]Attribute{{Name: "name", Type: TypeText}},
		EntityOptions{Timestamps: true, Paranoid: true},
	)

	// assert
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "createdAt", "updatedAt", "deletedAt"}, users.AttributeNames())
	assert.True(t, users.Paranoid())

	createdAt, _ := users.Attribute("createdAt")
	assert.Equal(t, RoleCreatedAt, createdAt.Role)
	assert.Equal(t, DefaultNow, createdAt.Default.Kind)
	assert.False(t, createdAt.AllowNull)

	deletedAt, _ := users.Attribute("deletedAt")
	assert.Equal(t, RoleDeletedAt, deletedAt.Role)
	assert.True(t, deletedAt.AllowNull)
}

func Test_Define_When_ParanoidWithoutTimestamps_IsNotParanoid(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)

	// act
	users, err := db.Define("User", []Attribute{{Name: "name"}}, EntityOptions{Paranoid: true})

	// assert
	require.NoError(t, err)
	assert.False(t, users.Paranoid())
	assert.False(t, users.HasAttribute("deletedAt"))
}

func Test_Define_When_DeclaredPrimaryKey_KeepsIt(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)

	// act
	tokens, err := db.Define("Token", []Attribute{
		{Name: "token", Type: TypeUUID, PrimaryKey: true, Default: Default{Kind: DefaultUUID}},
		{Name: "owner", Type: TypeText},
	}, EntityOptions{})

	// assert
	require.NoError(t, err)
	assert.Equal(t, "token", tokens.PrimaryKey())
	assert.Equal(t, []string{"token", "owner"}, tokens.AttributeNames())
}

func Test_Define_When_InvalidDefinitions_Fails(t *testing.T) {
	testCases := []struct {
		name        string
		entityName  string
		attrs       []Attribute
		expectedErr error
	}{
		{name: "empty entity name", entityName: "", attrs: []Attribute{{Name: "a"}}, expectedErr: ErrEmptyEntityName},
		{name: "empty attribute name", entityName: "E", attrs: []Attribute{{Name: ""}}, expectedErr: ErrEmptyAttributeName},
		{name: "duplicate attribute", entityName: "E", attrs: []Attribute{{Name: "a"}, {Name: "a"}}, expectedErr: ErrDuplicateAttribute},
		{
			name:        "two primary keys",
			entityName:  "E",
			attrs:       []Attribute{{Name: "a", PrimaryKey: true}, {Name: "b", PrimaryKey: true}},
			expectedErr: ErrCompositePrimaryKey,
		},
		{name: "unknown type", entityName: "E", attrs: []Attribute{{Name: "a", Type: "money"}}, expectedErr: ErrUnknownAttribute},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			db := helper.GivenSQLiteDB(t)

			// act
			_, err := db.Define(tc.entityName, tc.attrs, EntityOptions{})

			// assert
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.Equal(t, 0, db.Registry().Len())
		})
	}
}

func Test_Define_When_NameAlreadyRegistered_Fails(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)
	_, err := db.Define("User", []Attribute{{Name: "name"}}, EntityOptions{})
	require.NoError(t, err)

	// act
	_, err = db.Define("User", []Attribute{{Name: "other"}}, EntityOptions{})

	// assert
	assert.ErrorIs(t, err, ErrEntityAlreadyDefined)
}

func Test_Registry_Keeps_DefinitionOrder_And_Unregisters(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)
	f := helper.GivenFixtureEntities(t, db, false)

	// act
	removed := db.Unregister(context.Background(), "Tag")
	removedTwice := db.Unregister(context.Background(), "Tag")

	// assert
	assert.True(t, removed)
	assert.False(t, removedTwice)

	names := make([]string, 0)
	for _, e := range db.Registry().Entities() {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"User", "Creation", "Event", "CreationTag"}, names)

	_, err := db.Entity("Tag")
	assert.ErrorIs(t, err, ErrUnknownEntity)

	found, err := db.Entity("User")
	assert.NoError(t, err)
	assert.Same(t, f.User, found)
}

func Test_Options_Are_Copied_On_Define(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)
	opts := EntityOptions{
		Indexes: []Index{{Name: "by_name", Fields: []string{"name"}}},
		Raw:     map[string]any{"comment": "users"},
	}

	// act
	users, err := db.Define("User", []Attribute{{Name: "name"}}, opts)
	opts.Indexes[0].Fields[0] = "changed"
	opts.Raw["comment"] = "changed"

	// assert
	require.NoError(t, err)
	assert.Equal(t, "User", users.TableName())
	assert.Equal(t, []string{"name"}, users.Options().Indexes[0].Fields)
	assert.Equal(t, "users", users.Options().Raw["comment"])
}

func Test_Annotations_Are_Stored_Per_Entity(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)
	f := helper.GivenFixtureEntities(t, db, false)

	// act
	f.User.Annotate("marker", 42)

	// assert
	v, ok := f.User.Annotation("marker")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = f.Tag.Annotation("marker")
	assert.False(t, ok)
}
