package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both backends are plain MutexQueues here: AdaptiveQueue only depends
// on the Scheduler interface, so exercising the switch logic does not
// require the real lock-free backend (which would create an import
// cycle from this package's test back through pkg/lockfree).

func TestAdaptiveQueueStartsOnMutexBackend(t *testing.T) {
	q := NewAdaptiveQueue(NewMutexQueue(), NewMutexQueue(), 100, time.Second)
	assert.Equal(t, KindMutex, q.ActiveKind())

	require.NoError(t, q.Schedule(newTestJob("a")))
	got, err := q.TryNextJob()
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name())
}

func TestAdaptiveQueueSwitchesAfterContentionThreshold(t *testing.T) {
	q := NewAdaptiveQueue(NewMutexQueue(), NewMutexQueue(), 3, time.Minute)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Schedule(newTestJob("x")))
	}
	assert.Equal(t, KindLockFree, q.ActiveKind())
}

func TestAdaptiveQueueDrainsPendingJobsOnSwitch(t *testing.T) {
	q := NewAdaptiveQueue(NewMutexQueue(), NewMutexQueue(), 2, time.Minute)
	require.NoError(t, q.Schedule(newTestJob("a")))
	require.NoError(t, q.Schedule(newTestJob("b")))
	// Threshold crossed by the second Schedule call; everything
	// enqueued before the switch must still be retrievable afterward.
	assert.Equal(t, KindLockFree, q.ActiveKind())
	assert.Equal(t, 2, q.Size())
}

func TestAdaptiveQueueNeverSwitchesBack(t *testing.T) {
	q := NewAdaptiveQueue(NewMutexQueue(), NewMutexQueue(), 1, time.Minute)
	require.NoError(t, q.Schedule(newTestJob("a")))
	assert.Equal(t, KindLockFree, q.ActiveKind())

	time.Sleep(5 * time.Millisecond)
	_, _ = q.TryNextJob()
	assert.Equal(t, KindLockFree, q.ActiveKind())
}

// TestAdaptiveQueueConcurrentScheduleRacesSwitchWithoutLosingJobs fires
// many Schedule calls from concurrent goroutines while the contention
// threshold trips mid-flight. Every job must still be retrievable
// afterward regardless of which backend it landed on first: a job
// scheduled onto mutexBackend just before the drain must be drained,
// and one arriving just after must route straight to the already-flipped
// lock-free backend, never both or neither.
func TestAdaptiveQueueConcurrentScheduleRacesSwitchWithoutLosingJobs(t *testing.T) {
	const n = 500
	q := NewAdaptiveQueue(NewMutexQueue(), NewMutexQueue(), 4, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, q.Schedule(newTestJob("job")))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, q.Size())

	drained := 0
	for {
		_, err := q.TryNextJob()
		if err != nil {
			break
		}
		drained++
	}
	assert.Equal(t, n, drained)
}

func TestAdaptiveQueueStopStopsBothBackends(t *testing.T) {
	mutexBackend := NewMutexQueue()
	lockFreeBackend := NewMutexQueue()
	q := NewAdaptiveQueue(mutexBackend, lockFreeBackend, 100, time.Second)
	q.Stop()

	err := mutexBackend.Schedule(newTestJob("a"))
	assert.Error(t, err)
	err = lockFreeBackend.Schedule(newTestJob("b"))
	assert.Error(t, err)
}
