package resilience

import (
	"sync"
	"time"
)

// TokenBucket is a non-blocking rate limiter: tokens refill
// continuously at refillPerSec and TryAcquire succeeds only if enough
// have accumulated at the instant of the call, per spec.md §4.10 /
// I-TB1.
type TokenBucket struct {
	mu          sync.Mutex
	capacity    float64
	tokens      float64
	refillPerSec float64
	lastRefill  time.Time
}

// NewTokenBucket creates a bucket starting full.
func NewTokenBucket(capacity, refillPerSec float64) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPerSec: refillPerSec,
		lastRefill:   time.Now(),
	}
}

// refillLocked must be called with mu held.
func (b *TokenBucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillPerSec
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// TryAcquire refills by elapsed time, then succeeds only if tokens >=
// n, atomically with the refill.
func (b *TokenBucket) TryAcquire(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// Available reports the current token count, after applying any
// refill owed since the last call.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

// WaitDuration reports how long a caller wanting n tokens would need
// to sleep, given the current shortfall and refill rate. TryAcquire
// itself never blocks; a caller that wants to wait sleeps for this
// duration and retries, per spec.md §5.
func (b *TokenBucket) WaitDuration(n float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= n || b.refillPerSec <= 0 {
		return 0
	}
	shortfall := n - b.tokens
	return time.Duration(shortfall / b.refillPerSec * float64(time.Second))
}
