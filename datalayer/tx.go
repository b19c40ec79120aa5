package datalayer

import (
	"context"
	"errors"
	"sync"

	"github.com/AntonStoeckl/temporal-history-go/datalayer/internal/adapters"
)

// Tx is a database transaction. Statements on one Tx are serialized, so it may be shared
// with work running on other goroutines.
type Tx struct {
	db            *DB
	adapter       adapters.TxAdapter
	implicit      bool
	mu            sync.Mutex
	done          bool
	committed     bool
	beforeCommit  []func(ctx context.Context)
	afterCommit   []func()
	afterRollback []func()
}

// Begin opens a transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	return db.begin(ctx, false)
}

func (db *DB) begin(ctx context.Context, implicit bool) (*Tx, error) {
	txAdapter, err := db.adapter.Begin(ctx)
	if err != nil {
		db.logError(ctx, logMsgDBExecFailed, err)
		return nil, errors.Join(ErrBeginTxFailed, err)
	}

	return &Tx{db: db, adapter: txAdapter, implicit: implicit}, nil
}

// Transaction runs fn inside a new transaction and commits when fn returns nil, otherwise rolls back.
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	if fnErr := fn(ctx, tx); fnErr != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			db.logWarn(ctx, logMsgRollbackFailed, logAttrError, rbErr.Error())
		}

		return fnErr
	}

	return tx.Commit(ctx)
}

// Implicit reports whether the layer opened this transaction for a single mutation pipeline.
func (tx *Tx) Implicit() bool {
	return tx.implicit
}

// Done reports whether the transaction was already committed or rolled back.
func (tx *Tx) Done() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	return tx.done
}

// BeforeCommit registers fn to run when Commit is called, before the transaction commits.
// fn may still use the transaction. Callbacks registered on a finished transaction are dropped.
func (tx *Tx) BeforeCommit(fn func(ctx context.Context)) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if !tx.done {
		tx.beforeCommit = append(tx.beforeCommit, fn)
	}
}

// AfterCommit registers fn to run once the transaction committed successfully.
// Callbacks are dropped on rollback. On an already committed transaction fn runs immediately.
func (tx *Tx) AfterCommit(fn func()) {
	tx.mu.Lock()
	if !tx.done {
		tx.afterCommit = append(tx.afterCommit, fn)
		tx.mu.Unlock()

		return
	}
	committed := tx.committed
	tx.mu.Unlock()

	if committed {
		fn()
	}
}

// AfterRollback registers fn to run once the transaction was rolled back or failed to commit.
// On an already rolled back transaction fn runs immediately.
func (tx *Tx) AfterRollback(fn func()) {
	tx.mu.Lock()
	if !tx.done {
		tx.afterRollback = append(tx.afterRollback, fn)
		tx.mu.Unlock()

		return
	}
	committed := tx.committed
	tx.mu.Unlock()

	if !committed {
		fn()
	}
}

// Commit runs the before-commit callbacks, commits the transaction and runs the after-commit callbacks.
func (tx *Tx) Commit(ctx context.Context) error {
	for {
		tx.mu.Lock()
		if tx.done {
			tx.mu.Unlock()
			return ErrTxDone
		}

		beforeCommit := tx.beforeCommit
		tx.beforeCommit = nil
		if len(beforeCommit) == 0 {
			break
		}
		tx.mu.Unlock()

		for _, fn := range beforeCommit {
			fn(ctx)
		}
	}

	tx.done = true
	onCommit, onRollback := tx.afterCommit, tx.afterRollback
	tx.afterCommit, tx.afterRollback = nil, nil
	err := tx.adapter.Commit(ctx)
	tx.committed = err == nil
	tx.mu.Unlock()

	if err != nil {
		tx.db.logError(ctx, logMsgDBExecFailed, err)
		runCallbacks(onRollback)

		return errors.Join(ErrCommitTxFailed, err)
	}

	runCallbacks(onCommit)

	return nil
}

// Rollback aborts the transaction and runs the after-rollback callbacks.
func (tx *Tx) Rollback(ctx context.Context) error {
	tx.mu.Lock()
	if tx.done {
		tx.mu.Unlock()
		return ErrTxDone
	}

	tx.done = true
	onRollback := tx.afterRollback
	tx.beforeCommit, tx.afterCommit, tx.afterRollback = nil, nil, nil
	err := tx.adapter.Rollback(ctx)
	tx.mu.Unlock()

	runCallbacks(onRollback)

	if err != nil {
		return errors.Join(ErrRollbackTxFailed, err)
	}

	return nil
}

func runCallbacks(callbacks []func()) {
	for _, fn := range callbacks {
		fn()
	}
}

// pipeline runs fn in the caller's transaction or, when none is given, in an implicit one.
func (db *DB) pipeline(ctx context.Context, tx *Tx, fn func(tx *Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	implicitTx, err := db.begin(ctx, true)
	if err != nil {
		return err
	}

	if fnErr := fn(implicitTx); fnErr != nil {
		if rbErr := implicitTx.Rollback(ctx); rbErr != nil {
			db.logWarn(ctx, logMsgRollbackFailed, logAttrError, rbErr.Error())
		}

		return fnErr
	}

	return implicitTx.Commit(ctx)
}
