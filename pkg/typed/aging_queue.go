package typed

import (
	"sync"
	"time"

	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/taskerr"
)

// agedEntry pairs a job with the instant it was enqueued, so
// AgingTypedQueue can compute how long it has waited.
type agedEntry struct {
	j          job.Job
	enqueuedAt time.Time
}

// AgingTypedQueue is a TypedJobQueue variant where a job's *effective*
// priority improves the longer it waits, per spec.md §4.7: every
// agingInterval a job spends queued promotes its effective priority by
// one level, capped at RealTime, preventing Background starvation
// under sustained RealTime/Batch load.
type AgingTypedQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	lanes    map[job.Type][]agedEntry
	stopped  bool

	agingInterval time.Duration
	maxPromotions int
}

// NewAgingTypedQueue creates an AgingTypedQueue that promotes a
// waiting job's effective priority once per agingInterval, up to
// maxPromotions levels (0 disables aging entirely, behaving exactly
// like TypedJobQueue).
func NewAgingTypedQueue(agingInterval time.Duration, maxPromotions int) *AgingTypedQueue {
	q := &AgingTypedQueue{
		lanes:         make(map[job.Type][]agedEntry, len(job.AllTypes)),
		agingInterval: agingInterval,
		maxPromotions: maxPromotions,
	}
	for _, t := range job.AllTypes {
		q.lanes[t] = nil
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

func (q *AgingTypedQueue) Schedule(j job.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return taskerr.ErrQueueStopped
	}
	q.lanes[j.Priority()] = append(q.lanes[j.Priority()], agedEntry{j: j, enqueuedAt: time.Now()})
	q.notEmpty.Signal()
	return nil
}

// effectivePriority computes the aged priority of a job that has
// waited for waited: each agingInterval knocks one off the numeric
// priority (lower is higher priority), floored at RealTime.
func (q *AgingTypedQueue) effectivePriority(base job.Type, waited time.Duration) int {
	if q.agingInterval <= 0 || q.maxPromotions <= 0 {
		return int(base)
	}
	promotions := int(waited / q.agingInterval)
	if promotions > q.maxPromotions {
		promotions = q.maxPromotions
	}
	eff := int(base) - promotions
	if eff < int(job.RealTime) {
		eff = int(job.RealTime)
	}
	return eff
}

// popLocked must be called with q.mu held. It picks, across every
// lane's head entry, the one with the best (lowest) effective
// priority, breaking ties by whichever has waited longest.
func (q *AgingTypedQueue) popLocked() (job.Job, bool) {
	now := time.Now()

	bestType := job.Type(-1)
	bestEff := int(^uint(0) >> 1)
	var bestWait time.Duration

	for _, t := range job.AllTypes {
		lane := q.lanes[t]
		if len(lane) == 0 {
			continue
		}
		head := lane[0]
		waited := now.Sub(head.enqueuedAt)
		eff := q.effectivePriority(t, waited)

		if eff < bestEff || (eff == bestEff && waited > bestWait) {
			bestEff = eff
			bestType = t
			bestWait = waited
		}
	}

	if bestType == -1 {
		return nil, false
	}
	lane := q.lanes[bestType]
	j := lane[0].j
	lane[0] = agedEntry{}
	q.lanes[bestType] = lane[1:]
	return j, true
}

// NextJob blocks until a job is available (by effective priority) or
// the queue stops.
func (q *AgingTypedQueue) NextJob() (job.Job, error) {
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

// TryNextJob is the non-blocking variant of NextJob.
func (q *AgingTypedQueue) TryNextJob() (job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.popLocked(); ok {
		return j, nil
	}
	return nil, taskerr.ErrQueueEmpty
}

// Empty reports whether every lane is empty.
func (q *AgingTypedQueue) Empty() bool {
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
func (q *AgingTypedQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, lane := range q.lanes {
		n += len(lane)
	}
	return n
}

// Stop is idempotent and wakes every blocked dequeuer.
func (q *AgingTypedQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.stopped = true
	q.notEmpty.Broadcast()
}
