package temporal

import (
	"context"
	"errors"
	"fmt"

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

const hookNameReadOnlyGuard = "temporal.readOnlyGuard"

var guardedInstanceEvents = []datalayer.HookEvent{datalayer.BeforeUpdate, datalayer.BeforeDestroy}

var guardedBulkEvents = []datalayer.HookEvent{datalayer.BeforeBulkUpdate, datalayer.BeforeBulkDestroy}

// readOnlyGuard rejects every update and delete issued against a shadow entity before any statement runs.
type readOnlyGuard struct {
	shadow string
}

func (g readOnlyGuard) rejectInstance(_ context.Context, _ *datalayer.Instance, _ *datalayer.MutationOptions) error {
	return errors.Join(ErrReadOnlyViolation, fmt.Errorf("entity %q", g.shadow))
}

func (g readOnlyGuard) rejectBulk(_ context.Context, _ *datalayer.BulkOptions) error {
	return errors.Join(ErrReadOnlyViolation, fmt.Errorf("entity %q", g.shadow))
}

// attach registers the guard on the shadow and reports what it attached, so that a failed
// registration can be undone.
func (g readOnlyGuard) attach(shadow *datalayer.Entity, attached *hookSet) error {
	for _, event := range guardedInstanceEvents {
		if err := shadow.AddHook(event, hookNameReadOnlyGuard, g.rejectInstance); err != nil {
			return err
		}
		attached.add(shadow, event, hookNameReadOnlyGuard)
	}

	for _, event := range guardedBulkEvents {
		if err := shadow.AddBulkHook(event, hookNameReadOnlyGuard, g.rejectBulk); err != nil {
			return err
		}
		attached.add(shadow, event, hookNameReadOnlyGuard)
	}

	return nil
}
