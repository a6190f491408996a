package resilience

import (
	"sync/atomic"
	"time"
)

// SlidingWindow is a lock-free bucketed counter over a trailing time
// window: time is divided into numBuckets fixed-width slices, each
// with its own atomic counter; Add attributes to the current bucket
// and Sum discards buckets that have aged out of the window. This is
// the generic rate-counting primitive spec.md names separately from
// FailureWindow (which specializes it to success/failure pairs).
type SlidingWindow struct {
	buckets    []atomic.Int64
	bucketTime []atomic.Int64 // unix-nano bucket start, 0 means unused
	width      time.Duration
	numBuckets int64
}

// NewSlidingWindow creates a window spanning duration, split into
// numBuckets equal slices (a larger numBuckets gives finer recency
// granularity at the cost of more atomics touched per Sum).
func NewSlidingWindow(duration time.Duration, numBuckets int) *SlidingWindow {
	if numBuckets < 1 {
		numBuckets = 1
	}
	return &SlidingWindow{
		buckets:    make([]atomic.Int64, numBuckets),
		bucketTime: make([]atomic.Int64, numBuckets),
		width:      duration / time.Duration(numBuckets),
		numBuckets: int64(numBuckets),
	}
}

func (w *SlidingWindow) bucketIndex(now time.Time) (idx int64, start int64) {
	slot := now.UnixNano() / int64(w.width)
	return slot % w.numBuckets, slot * int64(w.width)
}

// Add increments the bucket for the current instant by delta,
// resetting it first if it has rolled over from a stale window.
func (w *SlidingWindow) Add(delta int64) {
	idx, start := w.bucketIndex(time.Now())
	if w.bucketTime[idx].Swap(start) != start {
		w.buckets[idx].Store(0)
	}
	w.buckets[idx].Add(delta)
}

// Sum totals every bucket whose start still falls within the window
// trailing now, discarding stale ones without mutating them (a
// concurrent Add will reset them lazily on next use).
func (w *SlidingWindow) Sum() int64 {
	now := time.Now()
	cutoff := now.Add(-w.width * time.Duration(w.numBuckets)).UnixNano()
	var total int64
	for i := range w.buckets {
		if w.bucketTime[i].Load() >= cutoff {
			total += w.buckets[i].Load()
		}
	}
	return total
}

// Rate returns Sum() divided by the window's total duration, in
// events per second.
func (w *SlidingWindow) Rate() float64 {
	totalWidth := w.width * time.Duration(w.numBuckets)
	if totalWidth <= 0 {
		return 0
	}
	return float64(w.Sum()) / totalWidth.Seconds()
}
