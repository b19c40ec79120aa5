package temporal_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
	. "github.com/AntonStoeckl/temporal-history-go/temporal"
	"github.com/AntonStoeckl/temporal-history-go/testutil/helper"
)

func givenUserEntity(t *testing.T, db *datalayer.DB, opts datalayer.EntityOptions) *datalayer.Entity {
	t.Helper()

	users, err := db.Define("User", []datalayer.Attribute{{Name: "name", Type: datalayer.TypeText}}, opts)
	require.NoError(t, err)

	return users
}

func Test_Attach_Registers_The_Shadow_Entity(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)
	users := givenUserEntity(t, db, datalayer.EntityOptions{Timestamps: true, Paranoid: true})

	// act
	returned, err := Attach(users, db)

	// assert
	require.NoError(t, err)
	assert.Same(t, users, returned)

	shadow, found := db.Registry().Lookup("UserHistory")
	require.True(t, found)
	assert.Equal(t, "UserHistory", shadow.TableName())
	assert.Equal(t, AttrShadowID, shadow.PrimaryKey())
	assert.Equal(t, []string{"id", "name", "createdAt", "updatedAt", "deletedAt", AttrShadowID, AttrArchivedAt}, shadow.AttributeNames())
	assert.False(t, shadow.Paranoid())
	assert.True(t, IsShadow(shadow))
	assert.False(t, IsShadow(users))

	resolved, err := ShadowOf(db, users)
	require.NoError(t, err)
	assert.Same(t, shadow, resolved)
}

func Test_Attach_Wires_The_Hooks_Of_The_Capture_Mode(t *testing.T) {
	testCases := []struct {
		name             string
		mode             CaptureMode
		withSnapshotHook []datalayer.HookEvent
		withoutHooks     []datalayer.HookEvent
	}{
		{
			name:             "diff",
			mode:             CaptureDiff,
			withSnapshotHook: []datalayer.HookEvent{datalayer.BeforeUpdate, datalayer.BeforeDestroy},
			withoutHooks:     []datalayer.HookEvent{datalayer.AfterCreate, datalayer.AfterUpdate, datalayer.AfterDestroy, datalayer.AfterRestore},
		},
		{
			name:             "full",
			mode:             CaptureFull,
			withSnapshotHook: []datalayer.HookEvent{datalayer.AfterCreate, datalayer.AfterUpdate, datalayer.AfterDestroy, datalayer.AfterRestore},
			withoutHooks:     []datalayer.HookEvent{datalayer.BeforeUpdate},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			db := helper.GivenSQLiteDB(t)
			users := givenUserEntity(t, db, datalayer.EntityOptions{Timestamps: true})

			// act
			_, err := Attach(users, db, WithCaptureMode(tc.mode))

			// assert
			require.NoError(t, err)
			for _, event := range tc.withSnapshotHook {
				assert.True(t, users.HasHook(event, "temporal.snapshot"), event.String())
			}
			for _, event := range tc.withoutHooks {
				assert.Empty(t, users.HookNames(event), event.String())
			}
			assert.True(t, users.HasHook(datalayer.BeforeBulkUpdate, "temporal.bulkSnapshot"))
			assert.True(t, users.HasHook(datalayer.BeforeBulkDestroy, "temporal.bulkSnapshot"))

			shadow, err := ShadowOf(db, users)
			require.NoError(t, err)
			for _, event := range []datalayer.HookEvent{
				datalayer.BeforeUpdate, datalayer.BeforeDestroy, datalayer.BeforeBulkUpdate, datalayer.BeforeBulkDestroy,
			} {
				assert.True(t, shadow.HasHook(event, "temporal.readOnlyGuard"), event.String())
			}
		})
	}
}

func Test_Attach_When_Invalid_Input_Fails(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)
	otherDB := helper.GivenSQLiteDB(t)
	users := givenUserEntity(t, db, datalayer.EntityOptions{})
	foreign := givenUserEntity(t, otherDB, datalayer.EntityOptions{})
	tags, err := db.Define("Tag", []datalayer.Attribute{{Name: "name"}}, datalayer.EntityOptions{})
	require.NoError(t, err)
	_, err = Attach(users, db)
	require.NoError(t, err)
	shadow, err := ShadowOf(db, users)
	require.NoError(t, err)

	// act
	_, nilOriginErr := Attach(nil, db)
	_, nilDBErr := Attach(tags, nil)
	_, foreignErr := Attach(foreign, db)
	_, twiceErr := Attach(users, db)
	_, shadowErr := Attach(shadow, db)
	_, suffixErr := Attach(tags, db, WithShadowSuffix(""))
	_, handlerErr := Attach(tags, db, WithFailureHandler(nil))
	_, clockErr := Attach(tags, db, WithClock(nil))
	_, notVersionedErr := ShadowOf(db, tags)

	// assert
	assert.ErrorIs(t, nilOriginErr, ErrNilOriginEntity)
	assert.ErrorIs(t, nilDBErr, ErrNilDatabase)
	assert.ErrorIs(t, foreignErr, ErrOriginNotRegistered)
	assert.ErrorIs(t, twiceErr, ErrAlreadyVersioned)
	assert.ErrorIs(t, shadowErr, ErrShadowOfShadow)
	assert.ErrorIs(t, suffixErr, ErrEmptyShadowSuffix)
	assert.ErrorIs(t, handlerErr, ErrNilFailureHandler)
	assert.ErrorIs(t, clockErr, ErrNilClock)
	assert.ErrorIs(t, notVersionedErr, ErrNotVersioned)
	_, found := db.Registry().Lookup("TagHistory")
	assert.False(t, found, "failed registrations must not leave a shadow entity behind")
}

func Test_Attach_When_The_Shadow_Name_Is_Taken_Fails_Without_Attaching_Hooks(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)
	users := givenUserEntity(t, db, datalayer.EntityOptions{})
	_, err := db.Define("UserHistory", []datalayer.Attribute{{Name: "name"}}, datalayer.EntityOptions{})
	require.NoError(t, err)

	// act
	_, err = Attach(users, db)

	// assert
	assert.ErrorIs(t, err, ErrRegisteringShadowFailed)
	assert.ErrorIs(t, err, datalayer.ErrEntityAlreadyDefined)
	assert.Empty(t, users.HookNames(datalayer.BeforeUpdate))
	assert.Empty(t, users.HookNames(datalayer.BeforeBulkUpdate))
}

func Test_Attach_When_A_Hook_Cannot_Be_Attached_Rolls_Back_The_Registration(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := helper.GivenSQLiteDB(t)
	users := givenUserEntity(t, db, datalayer.EntityOptions{})
	noop := func(context.Context, *datalayer.Instance, *datalayer.MutationOptions) error { return nil }
	require.NoError(t, users.AddHook(datalayer.BeforeDestroy, "temporal.snapshot", noop))

	// act
	_, err := Attach(users, db)

	// assert
	assert.ErrorIs(t, err, ErrAttachingHookFailed)
	assert.ErrorIs(t, err, datalayer.ErrDuplicateHook)
	_, found := db.Registry().Lookup("UserHistory")
	assert.False(t, found)
	assert.Empty(t, users.HookNames(datalayer.BeforeUpdate))
	assert.Equal(t, []string{"temporal.snapshot"}, users.HookNames(datalayer.BeforeDestroy))
	_, err = ShadowOf(db, users)
	assert.ErrorIs(t, err, ErrNotVersioned)

	// arrange
	require.True(t, users.RemoveHook(datalayer.BeforeDestroy, "temporal.snapshot"))

	// act
	_, err = Attach(users, db)

	// assert
	require.NoError(t, err)
	helper.GivenSyncedSchema(t, ctxWithTimeout, db)
}

func Test_Attach_Does_Not_Disturb_Origin_Hooks_And_Setters(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := helper.GivenSQLiteDB(t)

	// arrange
	setterCalls := 0
	var ownHookCalls []string
	users, err := db.Define("User", []datalayer.Attribute{{
		Name: "name",
		Type: datalayer.TypeText,
		Set: func(v any) any {
			setterCalls++
			return "~" + v.(string)
		},
	}}, datalayer.EntityOptions{
		Timestamps: true,
		Hooks: []datalayer.HookSpec{{
			Event: datalayer.BeforeUpdate,
			Name:  "own",
			Fn: func(_ context.Context, inst *datalayer.Instance, _ *datalayer.MutationOptions) error {
				ownHookCalls = append(ownHookCalls, inst.Get("name").(string))
				return nil
			},
		}},
	})
	require.NoError(t, err)
	_, err = Attach(users, db, WithCaptureMode(CaptureFull))
	require.NoError(t, err)
	history, err := ShadowOf(db, users)
	require.NoError(t, err)
	helper.GivenSyncedSchema(t, ctxWithTimeout, db)

	// act
	user := helper.GivenInstance(t, ctxWithTimeout, users, datalayer.Values{"name": "alice"})
	err = users.Update(ctxWithTimeout, user, datalayer.Values{"name": "bob"}, datalayer.MutationOptions{})

	// assert
	require.NoError(t, err)
	assert.Equal(t, 2, setterCalls)
	assert.Equal(t, []string{"~bob"}, ownHookCalls)
	assert.Equal(t, []string{"own"}, users.HookNames(datalayer.BeforeUpdate))
	rows := historyOf(t, ctxWithTimeout, history, user.Get("id"))
	require.Len(t, rows, 2)
	assert.Equal(t, "~alice", rows[0].Get("name"))
	assert.Equal(t, "~bob", rows[1].Get("name"))
}

func Test_Attach_With_Custom_Suffix(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := helper.GivenSQLiteDB(t)
	users := givenUserEntity(t, db, datalayer.EntityOptions{Timestamps: true})

	// act
	_, err := Attach(users, db, WithShadowSuffix("_Hist"), WithCaptureMode(CaptureFull))

	// assert
	require.NoError(t, err)
	history, found := db.Registry().Lookup("User_Hist")
	require.True(t, found)
	helper.GivenSyncedSchema(t, ctxWithTimeout, db)

	user := helper.GivenInstance(t, ctxWithTimeout, users, datalayer.Values{"name": "alice"})
	require.NoError(t, users.Destroy(ctxWithTimeout, user, datalayer.MutationOptions{}))
	assert.Equal(t, int64(2), helper.CountRows(t, ctxWithTimeout, history, datalayer.Where{"id": user.Get("id")}))
}

func Test_Attach_Logs_The_Registration(t *testing.T) {
	// setup
	db := helper.GivenSQLiteDB(t)
	users := givenUserEntity(t, db, datalayer.EntityOptions{})
	logHandler := helper.NewLogHandlerSpy(false)

	// act
	_, err := Attach(users, db, WithLogger(slog.New(logHandler)), WithBlocking(false))

	// assert
	require.NoError(t, err)
	assert.True(t, logHandler.HasInfoLogWithMessage("versioning attached").
		WithAttribute("entity", "User").
		WithAttribute("shadow", "UserHistory").
		WithAttribute("mode", "diff").
		WithAttribute("blocking", "false").
		Assert())
}

func Test_Attach_Prefers_The_Contextual_Logger(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db := helper.GivenSQLiteDB(t)
	users := givenUserEntity(t, db, datalayer.EntityOptions{})
	plainHandler := helper.NewLogHandlerSpy(false)
	contextualHandler := helper.NewLogHandlerSpy(false)

	// act
	_, err := Attach(
		users,
		db,
		WithLogger(slog.New(plainHandler)),
		WithContextualLogger(slog.New(contextualHandler)),
		WithCaptureMode(CaptureFull),
	)
	require.NoError(t, err)
	helper.GivenSyncedSchema(t, ctxWithTimeout, db)
	helper.GivenInstance(t, ctxWithTimeout, users, datalayer.Values{"name": "alice"})

	// assert
	assert.Equal(t, 0, plainHandler.GetRecordCount())
	assert.True(t, contextualHandler.HasDebugLogWithMessage("snapshot captured").
		WithAttribute("entity", "User").
		WithAttribute("transition", "create").
		WithDurationMS().
		Assert())
}
