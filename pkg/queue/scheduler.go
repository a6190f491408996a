// Package queue defines the Scheduler contract shared by every queue
// implementation (mutex-based, lock-free, policy-composed, adaptive)
// and the mutex-based reference implementation, MutexQueue.
package queue

import (
	"time"

	"github.com/taskforge/taskforge/pkg/job"
)

// Capabilities describes what a Scheduler implementation can promise,
// per spec.md's "Queue (base contract)": implementations differ in
// whether Size is exact, whether Empty is atomic, and whether they are
// lock-free/wait-free.
type Capabilities struct {
	ExactSize            bool
	AtomicEmptyCheck     bool
	LockFree             bool
	WaitFree             bool
	SupportsBatch        bool
	SupportsBlockingWait bool
	SupportsStop         bool
}

// Scheduler is the base queue contract every implementation satisfies:
// Schedule enqueues, NextJob/TryNextJob dequeue (blocking and
// non-blocking respectively), and Stop idempotently unblocks every
// blocked dequeuer.
type Scheduler interface {
	// Schedule enqueues a job. It fails with taskerr.ErrQueueStopped
	// if the queue has been stopped, or taskerr.ErrQueueFull if the
	// queue is bounded, full, and its overflow policy is Reject.
	Schedule(j job.Job) error

	// NextJob blocks until a job is available or the queue stops,
	// whichever happens first.
	NextJob() (job.Job, error)

	// NextJobWait is NextJob with an explicit wait timeout, matching
	// spec.md's "wait_for_work(timeout)": on the deadline elapsing
	// with no job and no stop, it returns taskerr.ErrQueueEmpty.
	NextJobWait(timeout time.Duration) (job.Job, error)

	// TryNextJob is the non-blocking variant: it returns immediately
	// with taskerr.ErrQueueEmpty if nothing is queued.
	TryNextJob() (job.Job, error)

	// Empty reports whether the queue currently holds no jobs. For
	// lock-free/adaptive implementations this is a snapshot, not a
	// linearization point.
	Empty() bool

	// Size returns the current job count. Exact for MutexQueue;
	// approximate (Capabilities.ExactSize == false) otherwise.
	Size() int

	// Capabilities reports this implementation's guarantees.
	Capabilities() Capabilities

	// Stop is idempotent and wakes every blocked dequeuer; once no job
	// remains, NextJob and NextJobWait return taskerr.ErrQueueEmpty.
	// Subsequent Schedule calls fail with taskerr.ErrQueueStopped.
	Stop()
}

// Kind names a Scheduler implementation, used by pool.Builder.WithQueue
// and by AdaptiveQueue to report which backend is currently active.
type Kind int

const (
	KindMutex Kind = iota
	KindLockFree
	KindPolicy
	KindAdaptive
)

func (k Kind) String() string {
	switch k {
	case KindMutex:
		return "mutex"
	case KindLockFree:
		return "lockfree"
	case KindPolicy:
		return "policy"
	case KindAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}
