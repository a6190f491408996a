package queue

import (
	"sync"
	"time"

	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/taskerr"
)

// BoundPolicy answers capacity questions for a PolicyQueue. It is a
// small, object-safe interface (spec.md's "three category tags" are
// expressed here as Go interfaces rather than generic type parameters,
// since the dispatch cost is dominated by the underlying queue
// primitive, not by the policy call, per spec.md §9).
type BoundPolicy interface {
	// IsFull reports whether cur items already fill the bound.
	IsFull(cur int) bool
	// RemainingCapacity is informational; unbounded policies return -1.
	RemainingCapacity(cur int) int
}

// Unbounded never rejects on capacity.
type Unbounded struct{}

func (Unbounded) IsFull(int) bool              { return false }
func (Unbounded) RemainingCapacity(int) int    { return -1 }

// Bounded rejects once cur reaches a fixed limit N.
type Bounded struct{ N int }

func (b Bounded) IsFull(cur int) bool           { return cur >= b.N }
func (b Bounded) RemainingCapacity(cur int) int { return b.N - cur }

// DynamicBounded is a Bounded policy whose limit can be read and
// changed concurrently — used by the Expand overflow policy, and by
// an operator adjusting capacity at runtime.
type DynamicBounded struct {
	mu    sync.Mutex
	limit int // <= 0 means unbounded
}

// NewDynamicBounded creates a DynamicBounded with the given initial
// limit (<= 0 for unbounded).
func NewDynamicBounded(limit int) *DynamicBounded {
	return &DynamicBounded{limit: limit}
}

func (d *DynamicBounded) IsFull(cur int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limit > 0 && cur >= d.limit
}

func (d *DynamicBounded) RemainingCapacity(cur int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.limit <= 0 {
		return -1
	}
	return d.limit - cur
}

// Grow increases the limit by delta, used by the Expand overflow
// policy when it decides to accept an incoming job anyway.
func (d *DynamicBounded) Grow(delta int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.limit > 0 {
		d.limit += delta
	}
}

// OverflowDecision is the result of applying an OverflowPolicy to a
// full queue.
type OverflowDecision int

const (
	// OverflowReject fails the incoming Schedule call.
	OverflowReject OverflowDecision = iota
	// OverflowDropOldest pops the current head before accepting the
	// incoming job.
	OverflowDropOldest
	// OverflowDropNewest silently discards the incoming job; Schedule
	// still reports success, matching "drop the incoming" semantics
	// (the caller asked to enqueue and was told it succeeded, on the
	// understanding that overflow jobs are expendable under this
	// policy).
	OverflowDropNewest
	// OverflowExpand grows the bound to admit the incoming job.
	OverflowExpand
	// OverflowBlock waits for space; callers implementing this variant
	// loop on IsFull rather than returning a single decision.
	OverflowBlock
)

// OverflowPolicy decides what happens when BoundPolicy.IsFull is true
// at Schedule time.
type OverflowPolicy interface {
	Decide() OverflowDecision
}

// Reject always rejects.
type Reject struct{}

func (Reject) Decide() OverflowDecision { return OverflowReject }

// DropOldest evicts the queue head to make room.
type DropOldest struct{}

func (DropOldest) Decide() OverflowDecision { return OverflowDropOldest }

// DropNewest discards the incoming job.
type DropNewest struct{}

func (DropNewest) Decide() OverflowDecision { return OverflowDropNewest }

// Expand grows a DynamicBounded's limit by Step to admit the job.
type Expand struct{ Step int }

func (Expand) Decide() OverflowDecision { return OverflowExpand }

// Block waits for space, re-checking every millisecond until a dequeue
// frees room or the queue stops. PolicyQueue.Schedule does not consult
// BlockTimeout; the wait has no deadline.
type Block struct{ BlockTimeout int64 } // nanoseconds; not consulted by PolicyQueue

func (Block) Decide() OverflowDecision { return OverflowBlock }

// PolicyQueue composes a MutexQueue with an explicit BoundPolicy and
// OverflowPolicy, giving the Sync×Bound×Overflow parametrization from
// spec.md §3/§4.2.3 a concrete Go shape: MutexQueue already supplies
// the Sync primitive (lock + condvar), so PolicyQueue layers bound
// checks and overflow handling on top of it rather than re-implementing
// push/pop.
type PolicyQueue struct {
	q        *MutexQueue
	bound    BoundPolicy
	overflow OverflowPolicy
}

var _ Scheduler = (*PolicyQueue)(nil)

// NewPolicyQueue builds a PolicyQueue over a fresh unbounded
// MutexQueue, with the given bound and overflow policies governing
// admission.
func NewPolicyQueue(bound BoundPolicy, overflow OverflowPolicy) *PolicyQueue {
	return &PolicyQueue{
		q:        NewMutexQueue(),
		bound:    bound,
		overflow: overflow,
	}
}

// dynamicBound is satisfied only by *DynamicBounded; Schedule type-
// asserts against it to support the Expand overflow decision without
// widening BoundPolicy's interface for every other implementation.
type dynamicBound interface {
	Grow(delta int)
}

// Schedule enqueues j, applying the overflow policy when the bound
// policy reports the queue full.
func (p *PolicyQueue) Schedule(j job.Job) error {
	for {
		p.q.mu.Lock()
		cur := len(p.q.items)
		stopped := p.q.stopped
		full := p.bound.IsFull(cur)
		p.q.mu.Unlock()

		if stopped {
			return taskerr.ErrQueueStopped
		}
		if !full {
			return p.q.Schedule(j)
		}

		switch p.overflow.Decide() {
		case OverflowReject:
			return taskerr.ErrQueueFull
		case OverflowDropNewest:
			return nil
		case OverflowDropOldest:
			p.q.mu.Lock()
			if len(p.q.items) > 0 {
				p.q.items[0] = nil
				p.q.items = p.q.items[1:]
			}
			p.q.mu.Unlock()
			return p.q.Schedule(j)
		case OverflowExpand:
			if step, ok := p.overflow.(Expand); ok {
				if dyn, ok := p.bound.(dynamicBound); ok {
					dyn.Grow(maxInt(step.Step, 1))
				}
			}
			return p.q.Schedule(j)
		case OverflowBlock:
			// Wait briefly for a dequeue to free space, then re-check.
			time.Sleep(time.Millisecond)
			continue
		default:
			return taskerr.ErrQueueFull
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (p *PolicyQueue) NextJob() (job.Job, error)                      { return p.q.NextJob() }
func (p *PolicyQueue) NextJobWait(timeout time.Duration) (job.Job, error) { return p.q.NextJobWait(timeout) }
func (p *PolicyQueue) TryNextJob() (job.Job, error)                   { return p.q.TryNextJob() }
func (p *PolicyQueue) Empty() bool                                    { return p.q.Empty() }
func (p *PolicyQueue) Size() int                                      { return p.q.Size() }
func (p *PolicyQueue) Stop()                                          { p.q.Stop() }

func (p *PolicyQueue) Capabilities() Capabilities {
	caps := p.q.Capabilities()
	if _, ok := p.bound.(*DynamicBounded); ok {
		caps.ExactSize = true
	}
	return caps
}
