package temporal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Sequencer_Runs_Jobs_Of_One_Key_In_Submission_Order(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := newSequencer()

	// arrange
	var mu sync.Mutex
	var order []int
	release := make(chan struct{})

	// act
	s.Go([]string{"User:1"}, func() {
		<-release
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	})
	for i := 2; i <= 5; i++ {
		i := i
		s.Go([]string{"User:1"}, func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	close(release)

	// assert
	require.NoError(t, s.Wait(ctxWithTimeout))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, order)
}

func Test_Sequencer_Waits_For_Every_Key_Of_A_Batch(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s := newSequencer()

	// arrange
	releaseFirst := make(chan struct{})
	firstDone := false
	var batchSawFirstDone bool

	// act
	s.Go([]string{"User:1"}, func() {
		<-releaseFirst
		firstDone = true
	})
	s.Go([]string{"User:2"}, func() {})
	s.Go([]string{"User:1", "User:2"}, func() {
		batchSawFirstDone = firstDone
	})
	close(releaseFirst)

	// assert
	require.NoError(t, s.Wait(ctxWithTimeout))
	assert.True(t, batchSawFirstDone)
}

func Test_Sequencer_Wait_Respects_The_Context(t *testing.T) {
	// setup
	s := newSequencer()
	release := make(chan struct{})
	s.Go([]string{"User:1"}, func() { <-release })

	// act
	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Wait(shortCtx)

	// assert
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// act
	close(release)
	ctxWithTimeout, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()

	// assert
	assert.NoError(t, s.Wait(ctxWithTimeout))
}

func Test_Sequencer_Wait_Rearms_For_Later_Jobs(t *testing.T) {
	// setup
	s := newSequencer()
	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	err := s.Wait(cancelledCtx)

	// assert
	assert.NoError(t, err)

	// arrange
	release := make(chan struct{})
	s.Go([]string{"User:1"}, func() { <-release })

	// act
	err = s.Wait(cancelledCtx)

	// assert
	assert.ErrorIs(t, err, context.Canceled)

	// act
	close(release)
	ctxWithTimeout, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()

	// assert
	require.NoError(t, s.Wait(ctxWithTimeout))

	// arrange
	releaseAgain := make(chan struct{})
	s.Go([]string{"User:2"}, func() { <-releaseAgain })

	// act
	err = s.Wait(cancelledCtx)

	// assert
	assert.ErrorIs(t, err, context.Canceled)
	close(releaseAgain)
	assert.NoError(t, s.Wait(ctxWithTimeout))
}

func Test_Task_Settles_Once(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task := newTask[int]()

	// act
	task.settle(1, nil)
	task.settle(2, errors.New("ignored"))
	result, err := task.Await(ctxWithTimeout)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 1, result)

	select {
	case <-task.Done():
	default:
		t.Fatal("task must be done after settling")
	}
}

func Test_Task_Await_Respects_The_Context(t *testing.T) {
	// setup
	task := newTask[string]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	result, err := task.Await(ctx)

	// assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result)
}
