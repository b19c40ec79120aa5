package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

// snapshotWriter composes snapshot payloads of one origin entity and persists them into its shadow.
type snapshotWriter struct {
	origin  *datalayer.Entity
	shadow  *datalayer.Entity
	fields  []string
	cfg     *config
	pending *sequencer
}

// captureJob carries the observability state of one capture from composition to settlement.
type captureJob struct {
	transition  Transition
	primaryKeys []any
	labels      map[string]string
	span        SpanContext
	start       time.Time
}

func (w *snapshotWriter) now() time.Time {
	if w.cfg.clock != nil {
		return w.cfg.clock()
	}

	return w.origin.DB().Now()
}

func (w *snapshotWriter) begin(ctx context.Context, spanName string, transition Transition) (context.Context, *captureJob) {
	labels := w.cfg.captureLabels(w.origin.Name(), transition)
	spanCtx, span := w.cfg.startTraceSpan(ctx, spanName, labels)

	return spanCtx, &captureJob{transition: transition, labels: labels, span: span, start: time.Now()}
}

// capture snapshots one instance. The payload is composed right away, inside the mutation's
// transaction; only the insert is detached in non-blocking mode.
func (w *snapshotWriter) capture(
	ctx context.Context,
	transition Transition,
	img image,
	inst *datalayer.Instance,
	opts *datalayer.MutationOptions,
) *Task[*datalayer.Instance] {
	ctx, job := w.begin(ctx, spanNameCapture, transition)
	job.primaryKeys = []any{inst.PrimaryKeyValue()}

	payload, err := w.compose(ctx, inst, img, opts.Tx)
	if err != nil {
		w.settle(ctx, job, 0, err)
		return settledTask[*datalayer.Instance](nil, err)
	}

	return persist(ctx, w, job, 1, opts.Tx, func(ctx context.Context, tx *datalayer.Tx) (*datalayer.Instance, error) {
		created, createErr := w.shadow.Create(ctx, payload, datalayer.MutationOptions{Tx: tx})
		if createErr != nil {
			return nil, errors.Join(ErrSnapshotWriteFailed, createErr)
		}

		return created, nil
	})
}

// captureBatch snapshots every row a pending set-based mutation is going to touch,
// as read inside the mutation's transaction before its statement runs.
func (w *snapshotWriter) captureBatch(
	ctx context.Context,
	transition Transition,
	opts *datalayer.BulkOptions,
) *Task[[]*datalayer.Instance] {
	ctx, job := w.begin(ctx, spanNameCaptureBatch, transition)

	rows, err := w.origin.FindAll(ctx, opts.Where, datalayer.FindOptions{Tx: opts.Tx})
	if err != nil {
		err = errors.Join(ErrBulkMaterializationFailed, err)
		w.settle(ctx, job, 0, err)

		return settledTask[[]*datalayer.Instance](nil, err)
	}

	payloads := make([]datalayer.Values, 0, len(rows))
	for _, row := range rows {
		job.primaryKeys = append(job.primaryKeys, row.PrimaryKeyValue())
		payloads = append(payloads, w.payload(row.Values()))
	}

	w.cfg.recordValue(ctx, metricSnapshotBatch, float64(len(rows)), job.labels)

	if len(payloads) == 0 {
		w.settle(ctx, job, 0, nil)
		return settledTask[[]*datalayer.Instance](nil, nil)
	}

	return persist(ctx, w, job, len(payloads), opts.Tx, func(ctx context.Context, tx *datalayer.Tx) ([]*datalayer.Instance, error) {
		created, createErr := w.shadow.BulkCreate(ctx, payloads, datalayer.MutationOptions{Tx: tx})
		if createErr != nil {
			return nil, errors.Join(ErrSnapshotWriteFailed, createErr)
		}

		return created, nil
	})
}

// persist runs write in the mutation's transaction, or detaches it in non-blocking mode.
// A detached write joins a transaction the caller supplied, and committing that transaction waits for it.
// When the data layer opened the transaction for this single mutation, the write starts after its commit
// and is discarded on rollback.
func persist[T any](
	ctx context.Context,
	w *snapshotWriter,
	job *captureJob,
	rows int,
	tx *datalayer.Tx,
	write func(ctx context.Context, tx *datalayer.Tx) (T, error),
) *Task[T] {
	if w.cfg.blocking {
		result, err := write(ctx, tx)
		w.settle(ctx, job, rows, err)

		return settledTask(result, err)
	}

	detached := context.WithoutCancel(ctx)
	task := newTask[T]()

	run := func(tx *datalayer.Tx) {
		w.pending.Go(w.sequenceKeys(job.primaryKeys), func() {
			result, err := write(detached, tx)
			w.settle(detached, job, rows, err)
			task.settle(result, err)
		})
	}

	if tx == nil {
		run(nil)
		return task
	}

	if !tx.Implicit() {
		tx.BeforeCommit(func(ctx context.Context) {
			_, _ = task.Await(ctx)
		})
		run(tx)

		return task
	}

	tx.AfterCommit(func() { run(nil) })
	tx.AfterRollback(func() {
		w.discard(detached, job)

		var zero T
		task.settle(zero, ErrSnapshotDiscarded)
	})

	return task
}

// settle records the outcome of a capture and hands failures of non-blocking captures to the failure handler.
func (w *snapshotWriter) settle(ctx context.Context, job *captureJob, rows int, err error) {
	w.cfg.observeCapture(ctx, job.span, job.labels, rows, time.Since(job.start), err)

	if err == nil || w.cfg.blocking {
		return
	}

	w.cfg.reportFailure(ctx, SnapshotFailure{
		Entity:      w.origin.Name(),
		Shadow:      w.shadow.Name(),
		Transition:  job.transition,
		PrimaryKeys: job.primaryKeys,
		Err:         err,
	})
}

func (w *snapshotWriter) discard(ctx context.Context, job *captureJob) {
	w.cfg.finishTraceSpan(job.span, statusError, map[string]string{labelErrorType: errorType(ErrSnapshotDiscarded)})
	w.cfg.logDebug(
		ctx,
		logMsgSnapshotDiscarded,
		logAttrEntity, w.origin.Name(),
		logAttrTransition, job.transition.String(),
	)
}

// compose returns the payload of one instance: the selected image, completed by the fields
// the instance never materialized, read from storage in the same transaction.
func (w *snapshotWriter) compose(
	ctx context.Context,
	inst *datalayer.Instance,
	img image,
	tx *datalayer.Tx,
) (datalayer.Values, error) {
	source := inst.Values()
	if img == beforeImage {
		source = inst.Previous()
	}

	var missing []string
	for _, f := range w.fields {
		if _, ok := source[f]; !ok {
			missing = append(missing, f)
		}
	}

	if len(missing) > 0 {
		pk := inst.PrimaryKeyValue()
		if pk == nil {
			return nil, errors.Join(ErrReloadFailed, datalayer.ErrMissingPrimaryKey)
		}

		fresh, err := w.origin.FindOne(
			ctx,
			datalayer.Where{w.origin.PrimaryKey(): pk},
			datalayer.FindOptions{Fields: missing, Tx: tx, Unscoped: true},
		)
		if err != nil {
			return nil, errors.Join(ErrReloadFailed, err)
		}

		for _, f := range missing {
			source[f], _ = fresh.Raw(f)
		}
	}

	return w.payload(source), nil
}

// prefetch materializes the missing payload fields on an instance that is about to be hard deleted,
// since the after-image can no longer be completed from storage once the row is gone.
func (w *snapshotWriter) prefetch(ctx context.Context, inst *datalayer.Instance, opts *datalayer.MutationOptions) error {
	if w.origin.Paranoid() && !opts.Force {
		return nil
	}

	wanted := make(map[string]bool, len(w.fields))
	for _, f := range w.fields {
		wanted[f] = true
	}

	var missing []string
	for _, f := range inst.MissingFields() {
		if wanted[f] {
			missing = append(missing, f)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	if err := w.origin.Reload(ctx, inst, missing, opts.Tx); err != nil {
		return errors.Join(ErrReloadFailed, err)
	}

	return nil
}

func (w *snapshotWriter) payload(source datalayer.Values) datalayer.Values {
	payload := make(datalayer.Values, len(w.fields)+1)
	for _, f := range w.fields {
		payload[f] = source[f]
	}
	payload[AttrArchivedAt] = w.now()

	return payload
}

func (w *snapshotWriter) sequenceKeys(primaryKeys []any) []string {
	keys := make([]string, 0, len(primaryKeys))
	for _, pk := range primaryKeys {
		keys = append(keys, fmt.Sprintf("%s:%v", w.origin.Name(), pk))
	}

	return keys
}
