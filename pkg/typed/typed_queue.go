// Package typed implements the priority-typed queue and worker layer
// (spec.md §4.6/§4.7): a TypedJobQueue dequeues strictly in priority
// order (RealTime before Batch before Background), AgingTypedQueue
// adds wait-time-driven priority promotion on top, and TypedWorker/
// TypedPool restrict a worker set to a fixed subset of priorities —
// cross-type stealing is forbidden, per spec.md §9's design note.
package typed

import (
	"sync"

	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/taskerr"
)

// TypedJobQueue holds one FIFO slice per job.Type and always serves
// the highest-priority non-empty one first, per spec.md §4.6's
// "priority-ordered dequeue" contract.
type TypedJobQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	lanes    map[job.Type][]job.Job
	order    []job.Type
	stopped  bool
}

// NewTypedJobQueue creates an empty TypedJobQueue serving job.AllTypes
// in their declared (highest-priority-first) order.
func NewTypedJobQueue() *TypedJobQueue {
	q := &TypedJobQueue{
		lanes: make(map[job.Type][]job.Job, len(job.AllTypes)),
		order: append([]job.Type(nil), job.AllTypes...),
	}
	for _, t := range job.AllTypes {
		q.lanes[t] = nil
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Schedule enqueues j onto its Priority() lane.
func (q *TypedJobQueue) Schedule(j job.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return taskerr.ErrQueueStopped
	}
	q.lanes[j.Priority()] = append(q.lanes[j.Priority()], j)
	q.notEmpty.Signal()
	return nil
}

// popLocked must be called with q.mu held; it scans lanes in priority
// order and pops the first non-empty one.
func (q *TypedJobQueue) popLocked() (job.Job, bool) {
	for _, t := range q.order {
		lane := q.lanes[t]
		if len(lane) == 0 {
			continue
		}
		j := lane[0]
		lane[0] = nil
		q.lanes[t] = lane[1:]
		return j, true
	}
	return nil, false
}

// NextJob blocks until any lane has a job or the queue stops.
func (q *TypedJobQueue) NextJob() (job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if j, ok := q.popLocked(); ok {
			return j, nil
		}
		if q.stopped {
			return nil, taskerr.ErrQueueEmpty
		}
		q.notEmpty.Wait()
	}
}

// NextJobFrom is NextJob restricted to a subset of priorities, used by
// a TypedWorker assigned only some of the lanes.
func (q *TypedJobQueue) NextJobFrom(allowed []job.Type) (job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for _, t := range allowed {
			lane := q.lanes[t]
			if len(lane) > 0 {
				j := lane[0]
				lane[0] = nil
				q.lanes[t] = lane[1:]
				return j, nil
			}
		}
		if q.stopped {
			return nil, taskerr.ErrQueueEmpty
		}
		q.notEmpty.Wait()
	}
}

// TryNextJobFrom is the non-blocking variant of NextJobFrom.
func (q *TypedJobQueue) TryNextJobFrom(allowed []job.Type) (job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range allowed {
		lane := q.lanes[t]
		if len(lane) > 0 {
			j := lane[0]
			lane[0] = nil
			q.lanes[t] = lane[1:]
			return j, nil
		}
	}
	return nil, taskerr.ErrQueueEmpty
}

// Empty reports whether every lane is empty.
func (q *TypedJobQueue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, lane := range q.lanes {
		if len(lane) > 0 {
			return false
		}
	}
	return true
}

// Size is the total job count across every lane.
func (q *TypedJobQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, lane := range q.lanes {
		n += len(lane)
	}
	return n
}

// LaneSize reports the job count for a single priority.
func (q *TypedJobQueue) LaneSize(t job.Type) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes[t])
}

// Stop is idempotent and wakes every blocked dequeuer.
func (q *TypedJobQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	q.notEmpty.Broadcast()
}
