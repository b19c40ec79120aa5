package temporal

import (
	"context"
	"sync"
)

// sequencer runs detached writes on their own goroutines while keeping the writes for one key in
// submission order. A write keyed by several rows waits for the latest write of each of them.
type sequencer struct {
	mu      sync.Mutex
	tails   map[string]chan struct{}
	pending int
	idle    chan struct{} // closed while no job is pending
}

func newSequencer() *sequencer {
	idle := make(chan struct{})
	close(idle)

	return &sequencer{tails: make(map[string]chan struct{}), idle: idle}
}

// Go schedules fn after every earlier job sharing one of keys.
func (s *sequencer) Go(keys []string, fn func()) {
	done := make(chan struct{})

	s.mu.Lock()
	predecessors := make([]chan struct{}, 0, len(keys))
	for _, k := range keys {
		if tail, ok := s.tails[k]; ok {
			predecessors = append(predecessors, tail)
		}
		s.tails[k] = done
	}
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
	s.mu.Unlock()

	go func() {
		for _, p := range predecessors {
			<-p
		}

		fn()

		s.mu.Lock()
		close(done)
		for _, k := range keys {
			if s.tails[k] == done {
				delete(s.tails, k)
			}
		}
		s.pending--
		if s.pending == 0 {
			close(s.idle)
		}
		s.mu.Unlock()
	}()
}

// Wait blocks until no job is pending or ctx is done.
func (s *sequencer) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle, pending := s.idle, s.pending
	s.mu.Unlock()

	if pending == 0 {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
