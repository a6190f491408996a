// Package lockfree implements the Michael–Scott MPMC queue and the
// hazard-pointer domain that reclaims its nodes safely, per spec.md
// §3 ("HazardDomain") and §4.2.2 ("LockFreeQueue").
//
// Go's garbage collector would keep any live pointer safe from reuse
// on its own, so hazard pointers are not required here for memory
// safety in the way they are in an unmanaged-memory systems language.
// They are implemented anyway because the spec's invariant I-HP1 and
// the Michael–Scott algorithm's node-reuse discipline are part of the
// contract under test: a dequeued dummy node is retired rather than
// dropped, and is released to the garbage collector only once no
// hazard slot still protects it (there is no node freelist; retired
// nodes are never reused by the queue).
package lockfree

import (
	"sync/atomic"

	"github.com/taskforge/taskforge/pkg/taskerr"
)

// DefaultSlotsPerThread is the hard per-goroutine hazard pointer cap
// (spec.md: MAX_HAZARDS_PER_THREAD = 8).
const DefaultSlotsPerThread = 8

// DefaultMaxThreads is the hard cap on concurrently registered hazard
// records (spec.md: MAX_THREADS = 64).
const DefaultMaxThreads = 64

// record is one goroutine's hazard-pointer slot array plus its
// private retired-node list. Only the goroutine holding the record
// (between Acquire and Release) appends to retired; the slots array is
// read by every goroutine during a scan, hence atomic.Pointer.
type record[T any] struct {
	active  atomic.Bool
	slots   [DefaultSlotsPerThread]atomic.Pointer[T]
	retired []*T
	next    atomic.Pointer[record[T]]
}

// Domain is a process-wide (or queue-scoped) hazard-pointer domain:
// an append-only linked list of per-goroutine records plus the
// reclamation scan that runs when a record's retired list grows past
// threshold.
type Domain[T any] struct {
	head          atomic.Pointer[record[T]]
	count         atomic.Int32
	maxThreads    int32
	slotsPerThread int
}

// NewDomain creates a hazard domain with the default slot/thread caps.
func NewDomain[T any]() *Domain[T] {
	return &Domain[T]{maxThreads: DefaultMaxThreads, slotsPerThread: DefaultSlotsPerThread}
}

// Handle is a goroutine's lease on a hazard record, acquired once (for
// example, at worker-goroutine startup) and released on shutdown.
type Handle[T any] struct {
	domain *Domain[T]
	rec    *record[T]
}

// Acquire finds a free record to reuse, or allocates a new one if the
// domain has not yet hit maxThreads. Exceeding the cap returns
// taskerr.ErrHazardExhausted, matching spec.md's HazardExhausted code.
func (d *Domain[T]) Acquire() (*Handle[T], error) {
	for r := d.head.Load(); r != nil; r = r.next.Load() {
		if r.active.CompareAndSwap(false, true) {
			return &Handle[T]{domain: d, rec: r}, nil
		}
	}

	if d.count.Load() >= d.maxThreads {
		return nil, taskerr.ErrHazardExhausted
	}

	r := &record[T]{}
	r.active.Store(true)
	for {
		head := d.head.Load()
		r.next.Store(head)
		if d.head.CompareAndSwap(head, r) {
			break
		}
	}
	d.count.Add(1)
	return &Handle[T]{domain: d, rec: r}, nil
}

// Protect announces that slot now holds ptr: no scan may reclaim ptr
// while it remains in a live record's slot. slot must be in
// [0, DefaultSlotsPerThread). Acquiring a slot beyond that hard bound
// is a programmer error in this package, not a runtime condition the
// caller can recover from, so it panics rather than returning an error
// — every call site in this package uses small, fixed slot indices.
func (h *Handle[T]) Protect(slot int, ptr *T) {
	h.rec.slots[slot].Store(ptr)
}

// Clear retracts the announcement in slot.
func (h *Handle[T]) Clear(slot int) {
	h.rec.slots[slot].Store(nil)
}

// ClearAll retracts every slot this handle holds.
func (h *Handle[T]) ClearAll() {
	for i := range h.rec.slots {
		h.rec.slots[i].Store(nil)
	}
}

// Retire marks ptr as logically removed: it is appended to this
// goroutine's private retired list, and a domain-wide scan runs once
// that list grows past 2x the domain's observed slot budget, per
// spec.md's retire-to-scan ratio.
func (h *Handle[T]) Retire(ptr *T) {
	h.rec.retired = append(h.rec.retired, ptr)
	threshold := 2 * int(h.domain.count.Load()) * h.domain.slotsPerThread
	if threshold <= 0 {
		threshold = 2 * h.domain.slotsPerThread
	}
	if len(h.rec.retired) >= threshold {
		h.scan()
	}
}

// scan builds the set of every pointer currently announced by any
// active record, then drops (lets the GC collect) every one of this
// handle's retired nodes not in that set — matching I-HP1: a retired
// node is freed only after a scan during which no record's slots
// contain its address.
func (h *Handle[T]) scan() {
	hazardous := make(map[*T]struct{})
	for r := h.domain.head.Load(); r != nil; r = r.next.Load() {
		for i := range r.slots {
			if p := r.slots[i].Load(); p != nil {
				hazardous[p] = struct{}{}
			}
		}
	}

	kept := h.rec.retired[:0]
	for _, p := range h.rec.retired {
		if _, stillHazardous := hazardous[p]; stillHazardous {
			kept = append(kept, p)
		}
		// else: p is dropped here and becomes eligible for GC.
	}
	h.rec.retired = kept
}

// Release flushes any remaining retired nodes through one last scan,
// clears every hazard slot, and returns the record to the free pool
// for the next Acquire.
func (h *Handle[T]) Release() {
	h.scan()
	h.ClearAll()
	h.rec.active.Store(false)
}
