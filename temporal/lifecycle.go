package temporal

import (
	"fmt"

	"github.com/AntonStoeckl/temporal-history-go/datalayer"
)

// Transition is a state change of an origin instance:
// Unversioned -(create)-> Live -(update)*-> Live -(destroy)-> Deleted -(restore)-> Live.
type Transition int

const (
	TransitionCreate Transition = iota
	TransitionUpdate
	TransitionDestroy
	TransitionRestore
)

func (t Transition) String() string {
	switch t {
	case TransitionCreate:
		return "create"
	case TransitionUpdate:
		return "update"
	case TransitionDestroy:
		return "destroy"
	case TransitionRestore:
		return "restore"
	default:
		return fmt.Sprintf("Transition(%d)", int(t))
	}
}

// image selects which values of an instance a snapshot copies.
type image int

const (
	// beforeImage is the state as of the last load or save, i.e. before the running mutation.
	beforeImage image = iota

	// afterImage is the state after the running mutation was applied.
	afterImage
)

// intercept binds a lifecycle event of the origin entity to the transition it captures.
type intercept struct {
	event      datalayer.HookEvent
	transition Transition
	image      image
}

// bulkIntercept binds a set-based event of the origin entity to the transition it captures.
type bulkIntercept struct {
	event      datalayer.HookEvent
	transition Transition
}

// intercepts lists, per capture mode, which transitions produce a snapshot and when.
// Diff snapshots the before-image of update and destroy, so a creation produces none.
// Full snapshots the after-image of every transition.
var intercepts = map[CaptureMode][]intercept{
	CaptureDiff: {
		{event: datalayer.BeforeUpdate, transition: TransitionUpdate, image: beforeImage},
		{event: datalayer.BeforeDestroy, transition: TransitionDestroy, image: beforeImage},
	},
	CaptureFull: {
		{event: datalayer.AfterCreate, transition: TransitionCreate, image: afterImage},
		{event: datalayer.AfterUpdate, transition: TransitionUpdate, image: afterImage},
		{event: datalayer.AfterDestroy, transition: TransitionDestroy, image: afterImage},
		{event: datalayer.AfterRestore, transition: TransitionRestore, image: afterImage},
	},
}

// bulkIntercepts apply to both capture modes: the rows are materialized before the statement runs.
var bulkIntercepts = []bulkIntercept{
	{event: datalayer.BeforeBulkUpdate, transition: TransitionUpdate},
	{event: datalayer.BeforeBulkDestroy, transition: TransitionDestroy},
}

// capturedTransitions returns the transitions which produce a snapshot in mode.
func capturedTransitions(mode CaptureMode) []Transition {
	out := make([]Transition, 0, len(intercepts[mode]))
	for _, ic := range intercepts[mode] {
		out = append(out, ic.transition)
	}

	return out
}
