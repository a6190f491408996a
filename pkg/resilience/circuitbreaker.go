package resilience

import (
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// State is a CircuitBreaker's discriminant, per spec.md §4.8.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds a CircuitBreaker's thresholds, per spec.md §3.
type BreakerConfig struct {
	FailureThreshold     int
	SuccessThreshold     int
	Timeout              time.Duration
	FailureRateThreshold float64
	HalfOpenMax          int64
	WindowDuration       time.Duration
	WindowBuckets        int
}

// DefaultBreakerConfig returns sane defaults for a breaker guarding a
// pool's submission path.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:     5,
		SuccessThreshold:     2,
		Timeout:              30 * time.Second,
		FailureRateThreshold: 0.5,
		HalfOpenMax:          1,
		WindowDuration:       10 * time.Second,
		WindowBuckets:        10,
	}
}

// CircuitBreaker is the closed/open/half-open guard from spec.md §4.8.
// All state transitions happen under a single mutex so that the
// (state, opened-at, half-open trial count) tuple always advances as
// one atomic step — simpler to reason about than a packed atomic word,
// and the breaker sits on the submission path, not the per-job hot
// loop, so the extra lock is not on a throughput-critical path.
type CircuitBreaker struct {
	mu                sync.Mutex
	state             State
	openedAt          time.Time
	window            *FailureWindow
	cfg               BreakerConfig
	halfOpenSem       *semaphore.Weighted
	halfOpenSuccesses int
}

// NewCircuitBreaker creates a breaker starting Closed.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.HalfOpenMax < 1 {
		cfg.HalfOpenMax = 1
	}
	return &CircuitBreaker{
		state:  Closed,
		window: NewFailureWindow(cfg.WindowDuration, cfg.WindowBuckets),
		cfg:    cfg,
	}
}

// AllowRequest reports whether a request may proceed, transitioning
// Open -> HalfOpen on the first call after the timeout elapses
// (spec.md invariant I-CB1: never allows while Open and still within
// timeout) and capping concurrent HalfOpen trials at HalfOpenMax.
func (b *CircuitBreaker) AllowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) < b.cfg.Timeout {
			return false
		}
		b.state = HalfOpen
		b.halfOpenSuccesses = 0
		b.halfOpenSem = semaphore.NewWeighted(b.cfg.HalfOpenMax)
		return b.halfOpenSem.TryAcquire(1)
	case HalfOpen:
		if b.halfOpenSem == nil {
			b.halfOpenSem = semaphore.NewWeighted(b.cfg.HalfOpenMax)
		}
		return b.halfOpenSem.TryAcquire(1)
	default:
		return false
	}
}

// RecordSuccess registers a successful call. In HalfOpen, releases the
// trial slot this caller presumably held and, after SuccessThreshold
// consecutive successes, closes the breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.window.RecordSuccess()
	if b.state == HalfOpen {
		if b.halfOpenSem != nil {
			b.halfOpenSem.Release(1)
		}
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.window.Reset()
		}
	}
}

// RecordFailure registers a failed call. In Closed, opens the breaker
// once the failure count reaches FailureThreshold, or once the window
// holds at least FailureThreshold calls and the failure rate reaches
// FailureRateThreshold. In HalfOpen, a single failure reopens it
// immediately (invariant I-CB3) before any further request is admitted.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.window.RecordFailure()
	switch b.state {
	case Closed:
		total := b.window.Failures() + b.window.Successes()
		if int(b.window.Failures()) >= b.cfg.FailureThreshold ||
			(total >= int64(b.cfg.FailureThreshold) && b.window.FailureRate() >= b.cfg.FailureRateThreshold) {
			b.state = Open
			b.openedAt = time.Now()
		}
	case HalfOpen:
		if b.halfOpenSem != nil {
			b.halfOpenSem.Release(1)
		}
		b.state = Open
		b.openedAt = time.Now()
	}
}

// State reports the breaker's current discriminant.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
