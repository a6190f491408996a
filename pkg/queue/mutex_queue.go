package queue

import (
	"sync"
	"time"

	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/taskerr"
)

// MutexQueue is a mutex+condvar FIFO, the direct generalization of the
// teacher's channel-based Pool.taskCh: here the buffering and blocking
// semantics are made explicit instead of delegated to a Go channel, so
// that Bound/Overflow policies (see policy.go) and an exact Size() can
// be implemented on top of the same primitive.
//
// capabilities.ExactSize is always true: the queue is a plain
// sync.Mutex-guarded slice, so Size() is a length read under the lock.
type MutexQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    []job.Job
	bound    int // 0 means unbounded
	stopped  bool
}

var _ Scheduler = (*MutexQueue)(nil)

// NewMutexQueue creates an unbounded MutexQueue.
func NewMutexQueue() *MutexQueue {
	return NewBoundedMutexQueue(0)
}

// NewBoundedMutexQueue creates a MutexQueue that rejects Schedule once
// it holds bound jobs. bound <= 0 means unbounded.
func NewBoundedMutexQueue(bound int) *MutexQueue {
	q := &MutexQueue{bound: bound}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

func (q *MutexQueue) isFull() bool {
	return q.bound > 0 && len(q.items) >= q.bound
}

// Schedule enqueues a single job, following the Reject overflow policy
// when bounded: full and not stopped yields taskerr.ErrQueueFull.
func (q *MutexQueue) Schedule(j job.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return taskerr.ErrQueueStopped
	}
	if q.isFull() {
		return taskerr.ErrQueueFull
	}
	q.items = append(q.items, j)
	q.notEmpty.Signal()
	return nil
}

// ScheduleBatch enqueues all-or-none under the queue's bound: if there
// is not room for every job, none are enqueued and
// taskerr.ErrQueueFull is returned. This matches spec.md §4.2.1's
// "Batch enqueue atomically pushes all or none (under policy Reject)".
func (q *MutexQueue) ScheduleBatch(jobs []job.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return taskerr.ErrQueueStopped
	}
	if q.bound > 0 && len(q.items)+len(jobs) > q.bound {
		return taskerr.ErrQueueFull
	}
	q.items = append(q.items, jobs...)
	q.notEmpty.Broadcast()
	return nil
}

// NextJob blocks until a job is available or the queue is stopped.
func (q *MutexQueue) NextJob() (job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.stopped {
		q.notEmpty.Wait()
	}
	return q.popLocked()
}

// NextJobWait blocks for at most timeout for a job to arrive.
func (q *MutexQueue) NextJobWait(timeout time.Duration) (job.Job, error) {
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.stopped {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, taskerr.ErrQueueEmpty
		}
		woke := make(chan struct{})
		timer := time.AfterFunc(remaining, func() {
			q.mu.Lock()
			q.notEmpty.Broadcast()
			q.mu.Unlock()
			close(woke)
		})
		q.notEmpty.Wait()
		timer.Stop()
		select {
		case <-woke:
		default:
		}
	}
	return q.popLocked()
}

// TryNextJob returns immediately: a job if one is queued, otherwise
// taskerr.ErrQueueEmpty (even if the queue was stopped).
func (q *MutexQueue) TryNextJob() (job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, taskerr.ErrQueueEmpty
	}
	return q.popLocked()
}

// popLocked must be called with q.mu held.
func (q *MutexQueue) popLocked() (job.Job, error) {
	if len(q.items) == 0 {
		return nil, taskerr.ErrQueueEmpty
	}
	j := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return j, nil
}

func (q *MutexQueue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

func (q *MutexQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *MutexQueue) Capabilities() Capabilities {
	return Capabilities{
		ExactSize:            true,
		AtomicEmptyCheck:     true,
		LockFree:             false,
		WaitFree:             false,
		SupportsBatch:        true,
		SupportsBlockingWait: true,
		SupportsStop:         true,
	}
}

// Stop is idempotent: it marks the queue stopped and wakes every
// blocked dequeuer, which then observe taskerr.ErrQueueEmpty.
func (q *MutexQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	q.notEmpty.Broadcast()
}
