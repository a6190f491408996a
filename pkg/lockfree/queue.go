package lockfree

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/queue"
	"github.com/taskforge/taskforge/pkg/taskerr"
)

// node is one link in the Michael–Scott queue: a permanent dummy node
// sits at head at all times (spec.md invariant I2), and payload lives
// in the node *after* head (extracted on dequeue before the old head
// is retired, invariant I3).
type node struct {
	next atomic.Pointer[node]
	job  job.Job
}

// Queue is a lock-free MPMC FIFO: Michael & Scott's two-lock-free
// linked-list algorithm with hazard-pointer reclamation in place of
// the original paper's unbounded-memory assumption. See spec.md
// §4.2.2 for the enqueue/dequeue pseudocode this follows line for
// line, and the package doc in hazard.go for why hazard pointers are
// used despite Go's GC.
type Queue struct {
	head    atomic.Pointer[node]
	tail    atomic.Pointer[node]
	domain  *Domain[node]
	size    atomic.Int64
	stopped atomic.Bool
	stopCh  chan struct{}
	stopOne sync.Once
	wake    chan struct{}
}

var _ queue.Scheduler = (*Queue)(nil)

// New creates an empty lock-free queue with its permanent dummy node.
func New() *Queue {
	dummy := &node{}
	q := &Queue{
		domain: NewDomain[node](),
		stopCh: make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
	q.head.Store(dummy)
	q.tail.Store(dummy)
	return q
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Schedule CASes the incoming node onto tail.next, helping advance a
// lagging tail from any racing producer before retrying, exactly as
// spec.md's enqueue pseudocode describes.
func (q *Queue) Schedule(j job.Job) error {
	if q.stopped.Load() {
		return taskerr.ErrQueueStopped
	}
	n := &node{job: j}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				q.tail.CompareAndSwap(tail, n)
				q.size.Add(1)
				q.signal()
				return nil
			}
		} else {
			q.tail.CompareAndSwap(tail, next)
		}
	}
}

// TryNextJob implements spec.md's dequeue pseudocode: two hazard
// pointers (head, head.next) are acquired and re-verified before any
// CAS, so a concurrent reclamation scan can never observe this
// goroutine's in-flight reference as unprotected.
func (q *Queue) TryNextJob() (job.Job, error) {
	h, err := q.domain.Acquire()
	if err != nil {
		return nil, err
	}
	defer h.Release()

	for {
		head := q.head.Load()
		h.Protect(0, head)
		if head != q.head.Load() {
			continue
		}

		tail := q.tail.Load()
		next := head.next.Load()
		h.Protect(1, next)
		if head != q.head.Load() {
			continue
		}

		if next == nil {
			return nil, taskerr.ErrQueueEmpty
		}
		if head == tail {
			// Tail lagged behind a completed enqueue; help it along.
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		val := next.job
		if q.head.CompareAndSwap(head, next) {
			q.size.Add(-1)
			h.Retire(head)
			return val, nil
		}
	}
}

// NextJob blocks until a job is available or the queue stops.
func (q *Queue) NextJob() (job.Job, error) {
	for {
		j, err := q.TryNextJob()
		if err == nil {
			return j, nil
		}
		if q.stopped.Load() {
			return nil, taskerr.ErrQueueEmpty
		}
		select {
		case <-q.wake:
		case <-q.stopCh:
		}
	}
}

// NextJobWait blocks for at most timeout.
func (q *Queue) NextJobWait(timeout time.Duration) (job.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		j, err := q.TryNextJob()
		if err == nil {
			return j, nil
		}
		if q.stopped.Load() {
			return nil, taskerr.ErrQueueEmpty
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, taskerr.ErrQueueEmpty
		}
		timer := time.NewTimer(remaining)
		select {
		case <-q.wake:
			timer.Stop()
		case <-q.stopCh:
			timer.Stop()
		case <-timer.C:
			return nil, taskerr.ErrQueueEmpty
		}
	}
}

// Empty is a snapshot, not a linearization point: concurrent enqueues
// or dequeues may change the answer immediately after this returns.
func (q *Queue) Empty() bool {
	head := q.head.Load()
	return head.next.Load() == nil
}

// Size is approximate for the same reason Empty is: spec.md requires
// exact sizing only from MutexQueue.
func (q *Queue) Size() int {
	n := q.size.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

func (q *Queue) Capabilities() queue.Capabilities {
	return queue.Capabilities{
		ExactSize:            false,
		AtomicEmptyCheck:     false,
		LockFree:             true,
		WaitFree:             false,
		SupportsBatch:        false,
		SupportsBlockingWait: true,
		SupportsStop:         true,
	}
}

// Stop is idempotent and wakes every blocked dequeuer.
func (q *Queue) Stop() {
	q.stopped.Store(true)
	q.stopOne.Do(func() { close(q.stopCh) })
}
