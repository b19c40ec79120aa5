package datalayer

import "errors"

var (
	ErrNilDatabaseConnection  = errors.New("database connection must not be nil")
	ErrUnsupportedDialect     = errors.New("unsupported sql dialect")
	ErrEmptyEntityName        = errors.New("entity name must not be empty")
	ErrEntityAlreadyDefined   = errors.New("entity is already defined")
	ErrUnknownEntity          = errors.New("unknown entity")
	ErrEmptyAttributeName     = errors.New("attribute name must not be empty")
	ErrDuplicateAttribute     = errors.New("duplicate attribute name")
	ErrCompositePrimaryKey    = errors.New("only a single primary key attribute is supported")
	ErrUnknownAttribute       = errors.New("unknown attribute")
	ErrInvalidHookEvent       = errors.New("hook event is not valid for this kind of hook")
	ErrEmptyHookName          = errors.New("hook name must not be empty")
	ErrDuplicateHook          = errors.New("a hook with this name is already registered for the event")
	ErrNilHook                = errors.New("hook function must not be nil")
	ErrNotFound               = errors.New("no matching row found")
	ErrNotParanoid            = errors.New("entity is not paranoid, restore is not available")
	ErrMissingPrimaryKey      = errors.New("instance has no primary key value")
	ErrInstanceOfOtherEntity  = errors.New("instance belongs to a different entity")
	ErrUnknownAssociation     = errors.New("unknown association")
	ErrThroughEntityRequired  = errors.New("belongs-to-many requires a through entity")
	ErrNilTargetEntity        = errors.New("association target must not be nil")
	ErrUnknownKeyAttribute    = errors.New("association key attribute is not an attribute of the source entity")
	ErrTxDone                 = errors.New("transaction has already been committed or rolled back")
	ErrBuildingQueryFailed    = errors.New("building sql query failed")
	ErrQueryFailed            = errors.New("database query failed")
	ErrExecFailed             = errors.New("database statement execution failed")
	ErrScanningRowFailed      = errors.New("scanning database row failed")
	ErrDecodingValueFailed    = errors.New("decoding column value failed")
	ErrEncodingValueFailed    = errors.New("encoding attribute value failed")
	ErrBeginTxFailed          = errors.New("beginning transaction failed")
	ErrCommitTxFailed         = errors.New("committing transaction failed")
	ErrRollbackTxFailed       = errors.New("rolling back transaction failed")
	ErrHookFailed             = errors.New("lifecycle hook failed")
	ErrSyncFailed             = errors.New("schema sync failed")
	ErrGeneratedKeyUnreadable = errors.New("reading generated primary key failed")
	ErrNilClock               = errors.New("clock must not be nil")
)
