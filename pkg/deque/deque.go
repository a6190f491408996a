// Package deque implements a Chase–Lev work-stealing deque: the
// owning goroutine pushes and pops its own bottom end (LIFO, for cache
// locality on the most recently queued job), while any number of
// thief goroutines steal from the top end (FIFO), per spec.md §4.3.
package deque

import (
	"sync/atomic"

	"github.com/taskforge/taskforge/pkg/job"
)

// ringBuffer is a fixed-capacity circular buffer; Deque replaces it
// with a doubled copy when PushBottom finds it full.
type ringBuffer struct {
	mask int64 // capacity-1; capacity is always a power of two
	data []job.Job
}

func newRingBuffer(capacity int64) *ringBuffer {
	return &ringBuffer{mask: capacity - 1, data: make([]job.Job, capacity)}
}

func (b *ringBuffer) get(i int64) job.Job {
	return b.data[i&b.mask]
}

func (b *ringBuffer) put(i int64, v job.Job) {
	b.data[i&b.mask] = v
}

// grow copies the live range [t, b) into a buffer of twice the
// capacity, preserving logical indices.
func (b *ringBuffer) grow(t, bIdx int64) *ringBuffer {
	nb := newRingBuffer((b.mask + 1) * 2)
	for i := t; i < bIdx; i++ {
		nb.put(i, b.get(i))
	}
	return nb
}

// Deque is a single-owner, multi-thief work-stealing deque. The zero
// value is not usable; construct with New.
type Deque struct {
	bottom atomic.Int64
	top    atomic.Int64
	buf    atomic.Pointer[ringBuffer]
}

// DefaultInitialCapacity is the starting buffer size, doubled on
// overflow as PushBottom requires.
const DefaultInitialCapacity = 32

// New creates an empty deque with DefaultInitialCapacity slots.
func New() *Deque {
	d := &Deque{}
	d.buf.Store(newRingBuffer(DefaultInitialCapacity))
	return d
}

// PushBottom is owner-only: calling it from more than one goroutine
// concurrently is undefined, per the Chase–Lev contract.
func (d *Deque) PushBottom(v job.Job) {
	b := d.bottom.Load()
	t := d.top.Load()
	buf := d.buf.Load()

	if b-t >= buf.mask { // mask == capacity-1; reserve one slot of slack
		buf = buf.grow(t, b)
		d.buf.Store(buf)
	}

	buf.put(b, v)
	d.bottom.Store(b + 1)
}

// PopBottom is owner-only. It races a concurrent thief for the last
// remaining element via a CAS on top, per spec.md's correctness rules.
func (d *Deque) PopBottom() (job.Job, bool) {
	b := d.bottom.Load() - 1
	buf := d.buf.Load()
	d.bottom.Store(b)
	t := d.top.Load()

	if t > b {
		// Deque was already empty; restore bottom.
		d.bottom.Store(b + 1)
		return nil, false
	}

	v := buf.get(b)
	if t == b {
		// Last element: race a thief for it.
		if !d.top.CompareAndSwap(t, t+1) {
			d.bottom.Store(b + 1)
			return nil, false
		}
		d.bottom.Store(b + 1)
		return v, true
	}
	return v, true
}

// StealTop may be called from any goroutine. On CAS failure (another
// thief or the owner's PopBottom won the race) it returns ok == false;
// callers are expected to back off and retry a different victim or the
// same one, per spec.md's worker idle loop.
func (d *Deque) StealTop() (job.Job, bool) {
	t := d.top.Load()
	b := d.bottom.Load()
	if t >= b {
		return nil, false
	}

	buf := d.buf.Load()
	v := buf.get(t)
	if !d.top.CompareAndSwap(t, t+1) {
		return nil, false
	}
	return v, true
}

// Len is an approximate size, useful for steal-victim heuristics; it
// is not a linearization point under concurrent push/pop/steal.
func (d *Deque) Len() int {
	n := d.bottom.Load() - d.top.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}
