package temporal

import "errors"

var (
	// ErrNilOriginEntity is returned when Attach is called without an origin entity.
	ErrNilOriginEntity = errors.New("origin entity must not be nil")

	// ErrNilDatabase is returned when Attach is called without a data layer handle.
	ErrNilDatabase = errors.New("data layer handle must not be nil")

	// ErrOriginNotRegistered is returned when the origin entity is not registered on the given handle.
	ErrOriginNotRegistered = errors.New("origin entity is not registered on this data layer handle")

	// ErrAlreadyVersioned is returned when versioning is attached twice to the same origin entity.
	ErrAlreadyVersioned = errors.New("versioning is already attached to this entity")

	// ErrShadowOfShadow is returned when versioning is attached to a shadow entity.
	ErrShadowOfShadow = errors.New("versioning cannot be attached to a shadow entity")

	// ErrNotVersioned is returned by ShadowOf for entities without attached versioning.
	ErrNotVersioned = errors.New("versioning is not attached to this entity")

	// ErrEmptyShadowSuffix is returned when an empty shadow suffix is configured.
	ErrEmptyShadowSuffix = errors.New("shadow suffix must not be empty")

	// ErrUnknownCaptureMode is returned for capture modes other than CaptureDiff and CaptureFull.
	ErrUnknownCaptureMode = errors.New("unknown capture mode")

	// ErrNilFailureHandler is returned when a nil failure handler is configured.
	ErrNilFailureHandler = errors.New("failure handler must not be nil")

	// ErrNilClock is returned when a nil clock is configured.
	ErrNilClock = errors.New("clock must not be nil")

	// ErrEmptyShadowSchema is returned when no origin attribute is left for the shadow entity.
	ErrEmptyShadowSchema = errors.New("shadow schema has no attributes left after exclusions")

	// ErrReservedAttributeName is returned when the origin declares an attribute the shadow owns.
	ErrReservedAttributeName = errors.New("origin attribute name is reserved for the shadow entity")

	// ErrRegisteringShadowFailed is returned when the data layer rejects the shadow entity.
	ErrRegisteringShadowFailed = errors.New("registering the shadow entity failed")

	// ErrAttachingHookFailed is returned when a lifecycle hook cannot be attached.
	ErrAttachingHookFailed = errors.New("attaching a lifecycle hook failed")

	// ErrSnapshotWriteFailed is returned when a snapshot cannot be persisted.
	ErrSnapshotWriteFailed = errors.New("writing the snapshot failed")

	// ErrReloadFailed is returned when the fields missing on a partially loaded instance cannot be loaded.
	ErrReloadFailed = errors.New("loading missing fields for the snapshot failed")

	// ErrBulkMaterializationFailed is returned when the rows matched by a bulk mutation cannot be loaded.
	ErrBulkMaterializationFailed = errors.New("materializing the rows of a bulk mutation failed")

	// ErrSnapshotDiscarded settles a detached snapshot whose transaction was rolled back.
	ErrSnapshotDiscarded = errors.New("snapshot discarded because its transaction was rolled back")

	// ErrReadOnlyViolation is returned for every update or delete attempted on a shadow entity.
	ErrReadOnlyViolation = errors.New("this is a read-only history entity, modifications are not allowed")
)
