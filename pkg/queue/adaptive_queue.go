package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskforge/taskforge/pkg/job"
)

// AdaptiveQueue starts on a mutex backend and switches, at most once,
// to a lock-free backend once contention crosses a threshold, per
// spec.md §4.2.4 and the Open Question it resolves: the switch is
// one-way (lock-free never reverts to mutex) because a queue busy
// enough to justify the lock-free backend's per-op overhead rarely
// becomes quiet again during a pool's lifetime, and reverting would
// require draining one backend into the other under a tighter lock
// than either backend normally needs.
//
// Both backends are supplied by the caller (pool.Builder) rather than
// constructed here: pkg/lockfree imports pkg/queue for the Scheduler
// contract, so pkg/queue cannot import pkg/lockfree back without a
// cycle. AdaptiveQueue only needs the Scheduler interface, so it never
// has to.
type AdaptiveQueue struct {
	mutexBackend    Scheduler
	lockFreeBackend Scheduler

	// active is 0 for mutexBackend, 1 for lockFreeBackend.
	active atomic.Int32

	contentionThreshold int64
	sampleWindow        time.Duration

	// switchMu serializes every routing decision (Schedule/NextJob/
	// NextJobWait) against the drain-then-flip sequence: the switch
	// holds the write lock across both drainToLockFree and the
	// active.Store, so no caller can observe active still 0 and enqueue
	// onto mutexBackend after the drain has already run past it.
	switchMu sync.RWMutex
	switched atomic.Bool

	sampleMu   sync.Mutex
	waiters    int64
	lastSample time.Time
}

// NewAdaptiveQueue wires an AdaptiveQueue over the two backends,
// switching to lockFree once the number of Schedule/NextJob/NextJobWait
// calls within one sampleWindow reaches contentionThreshold. Every such
// call is counted, whether or not it actually contended with another;
// lock waits and failed CAS attempts are not measured.
func NewAdaptiveQueue(mutexBackend, lockFreeBackend Scheduler, contentionThreshold int64, sampleWindow time.Duration) *AdaptiveQueue {
	if contentionThreshold <= 0 {
		contentionThreshold = 8
	}
	if sampleWindow <= 0 {
		sampleWindow = 100 * time.Millisecond
	}
	return &AdaptiveQueue{
		mutexBackend:        mutexBackend,
		lockFreeBackend:     lockFreeBackend,
		contentionThreshold: contentionThreshold,
		sampleWindow:        sampleWindow,
		lastSample:          time.Now(),
	}
}

var _ Scheduler = (*AdaptiveQueue)(nil)

func (q *AdaptiveQueue) current() Scheduler {
	if q.active.Load() == 1 {
		return q.lockFreeBackend
	}
	return q.mutexBackend
}

// recordContention counts one access within the sample window
// (concurrent or not) and flips to the lock-free backend the first
// time the count reaches contentionThreshold. Jobs already enqueued on the mutex
// backend are drained into the lock-free one so nothing submitted
// before the switch is lost. The drain and the active flip happen
// under switchMu's write lock, so any Schedule/NextJob/NextJobWait
// call already past recordContention is either fully serialized
// before the drain starts (and so gets drained) or blocks until after
// active is flipped (and so routes straight to the lock-free backend)
// — there is no window where a caller can enqueue onto mutexBackend
// after drainToLockFree has already run past it.
func (q *AdaptiveQueue) recordContention() {
	if q.switched.Load() {
		return
	}

	q.sampleMu.Lock()
	now := time.Now()
	if now.Sub(q.lastSample) > q.sampleWindow {
		q.waiters = 0
		q.lastSample = now
	}
	q.waiters++
	shouldSwitch := q.waiters >= q.contentionThreshold
	q.sampleMu.Unlock()

	if shouldSwitch && q.switched.CompareAndSwap(false, true) {
		q.switchMu.Lock()
		q.drainToLockFree()
		q.active.Store(1)
		q.switchMu.Unlock()
	}
}

func (q *AdaptiveQueue) drainToLockFree() {
	for {
		j, err := q.mutexBackend.TryNextJob()
		if err != nil {
			return
		}
		_ = q.lockFreeBackend.Schedule(j)
	}
}

func (q *AdaptiveQueue) Schedule(j job.Job) error {
	q.recordContention()
	q.switchMu.RLock()
	defer q.switchMu.RUnlock()
	return q.current().Schedule(j)
}

func (q *AdaptiveQueue) NextJob() (job.Job, error) {
	q.recordContention()
	q.switchMu.RLock()
	defer q.switchMu.RUnlock()
	return q.current().NextJob()
}

func (q *AdaptiveQueue) NextJobWait(timeout time.Duration) (job.Job, error) {
	q.recordContention()
	q.switchMu.RLock()
	defer q.switchMu.RUnlock()
	return q.current().NextJobWait(timeout)
}

func (q *AdaptiveQueue) TryNextJob() (job.Job, error) {
	q.switchMu.RLock()
	defer q.switchMu.RUnlock()
	return q.current().TryNextJob()
}

func (q *AdaptiveQueue) Empty() bool {
	return q.mutexBackend.Empty() && q.lockFreeBackend.Empty()
}

func (q *AdaptiveQueue) Size() int {
	return q.mutexBackend.Size() + q.lockFreeBackend.Size()
}

func (q *AdaptiveQueue) Capabilities() Capabilities {
	return q.current().Capabilities()
}

// Stop stops both backends, whichever is active or not.
func (q *AdaptiveQueue) Stop() {
	q.mutexBackend.Stop()
	q.lockFreeBackend.Stop()
}

// ActiveKind reports which backend is currently serving requests.
func (q *AdaptiveQueue) ActiveKind() Kind {
	if q.active.Load() == 1 {
		return KindLockFree
	}
	return KindMutex
}
