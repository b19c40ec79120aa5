package temporal

import (
	"context"
	"sync"
)

// Task is the pending result of a snapshot write.
// Blocking captures return settled tasks; detached captures settle once their write ran or was discarded.
type Task[T any] struct {
	done   chan struct{}
	once   sync.Once
	result T
	err    error
}

func newTask[T any]() *Task[T] {
	return &Task[T]{done: make(chan struct{})}
}

func settledTask[T any](result T, err error) *Task[T] {
	t := newTask[T]()
	t.settle(result, err)

	return t
}

// settle stores the outcome. Only the first call has an effect.
func (t *Task[T]) settle(result T, err error) {
	t.once.Do(func() {
		t.result = result
		t.err = err
		close(t.done)
	})
}

// Done is closed once the task has settled.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Await blocks until the task settled or ctx is done.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
