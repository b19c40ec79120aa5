package temporal

import (
	"context"

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

const (
	hookNameSnapshot     = "temporal.snapshot"
	hookNameBulkSnapshot = "temporal.bulkSnapshot"
	hookNamePrefetch     = "temporal.prefetch"
)

type attachedHook struct {
	entity *datalayer.Entity
	event  datalayer.HookEvent
	name   string
}

// hookSet remembers the hooks attached during one registration.
type hookSet struct {
	hooks []attachedHook
}

func (s *hookSet) add(e *datalayer.Entity, event datalayer.HookEvent, name string) {
	s.hooks = append(s.hooks, attachedHook{entity: e, event: event, name: name})
}

// detach removes the remembered hooks in reverse order.
func (s *hookSet) detach() {
	for i := len(s.hooks) - 1; i >= 0; i-- {
		h := s.hooks[i]
		h.entity.RemoveHook(h.event, h.name)
	}

	s.hooks = nil
}

// hookRegistrar wires the snapshot writer into the lifecycle of the origin entity.
type hookRegistrar struct {
	writer *snapshotWriter
	cfg    *config
}

func (r hookRegistrar) register(origin *datalayer.Entity, attached *hookSet) error {
	for _, ic := range intercepts[r.cfg.captureMode] {
		if err := origin.AddHook(ic.event, hookNameSnapshot, r.instanceHook(ic)); err != nil {
			return err
		}
		attached.add(origin, ic.event, hookNameSnapshot)
	}

	if r.cfg.captureMode == CaptureFull {
		if err := origin.AddHook(datalayer.BeforeDestroy, hookNamePrefetch, r.prefetchHook); err != nil {
			return err
		}
		attached.add(origin, datalayer.BeforeDestroy, hookNamePrefetch)
	}

	for _, bi := range bulkIntercepts {
		if err := origin.AddBulkHook(bi.event, hookNameBulkSnapshot, r.bulkHook(bi)); err != nil {
			return err
		}
		attached.add(origin, bi.event, hookNameBulkSnapshot)
	}

	return nil
}

func (r hookRegistrar) instanceHook(ic intercept) datalayer.InstanceHookFunc {
	return func(ctx context.Context, inst *datalayer.Instance, opts *datalayer.MutationOptions) error {
		if r.cfg.skipIfSilentMutation && opts.Silent {
			return nil
		}

		return awaitIfBlocking(ctx, r.cfg, r.writer.capture(ctx, ic.transition, ic.image, inst, opts))
	}
}

// bulkHook skips calls running the per-row hooks, since those capture every row themselves.
func (r hookRegistrar) bulkHook(bi bulkIntercept) datalayer.BulkHookFunc {
	return func(ctx context.Context, opts *datalayer.BulkOptions) error {
		if opts.IndividualHooks {
			return nil
		}

		if r.cfg.skipIfSilentMutation && opts.Silent {
			return nil
		}

		return awaitIfBlocking(ctx, r.cfg, r.writer.captureBatch(ctx, bi.transition, opts))
	}
}

func (r hookRegistrar) prefetchHook(ctx context.Context, inst *datalayer.Instance, opts *datalayer.MutationOptions) error {
	if r.cfg.skipIfSilentMutation && opts.Silent {
		return nil
	}

	err := r.writer.prefetch(ctx, inst, opts)
	if err == nil || r.cfg.blocking {
		return err
	}

	r.cfg.reportFailure(ctx, SnapshotFailure{
		Entity:      r.writer.origin.Name(),
		Shadow:      r.writer.shadow.Name(),
		Transition:  TransitionDestroy,
		PrimaryKeys: []any{inst.PrimaryKeyValue()},
		Err:         err,
	})

	return nil
}

// awaitIfBlocking makes the mutation wait for its snapshot in blocking mode.
// Detached snapshots report their failures through the failure handler.
func awaitIfBlocking[T any](ctx context.Context, cfg *config, task *Task[T]) error {
	if !cfg.blocking {
		return nil
	}

	_, err := task.Await(ctx)

	return err
}
