package resilience

import (
	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/taskerr"
)

// PoolPolicy is the open-ended hook set a Pool runs at each stage of a
// job's life, per spec.md §4.5's "policy chain": OnEnqueue may reject
// submission outright (e.g. a circuit breaker), OnJobStart observes
// dispatch, and OnJobComplete observes the terminal outcome. Unlike
// the closed sets in this package (queue Kind, CircuitBreaker State),
// the set of policies is open, so this is a plain interface rather
// than a tagged enum, per spec.md §9.
type PoolPolicy interface {
	// OnEnqueue runs before a job is placed on the queue. A non-nil
	// error short-circuits submission: the job is never queued, and
	// no later policy in the chain runs.
	OnEnqueue(j job.Job) error
	// OnJobStart runs on the worker, immediately before Execute.
	OnJobStart(j job.Job)
	// OnJobComplete runs on the worker, immediately after Execute
	// returns (or a recovered panic is converted to an error).
	OnJobComplete(j job.Job, success bool, err error)
}

// Chain runs a list of PoolPolicy in registration order, short-
// circuiting OnEnqueue on the first error — exactly spec.md §4.5's
// "any policy returning an error from on_enqueue short-circuits
// submission".
type Chain struct {
	policies []PoolPolicy
}

// NewChain builds a Chain over policies, run in the given order.
func NewChain(policies ...PoolPolicy) *Chain {
	return &Chain{policies: policies}
}

// Add appends a policy to the end of the chain.
func (c *Chain) Add(p PoolPolicy) {
	c.policies = append(c.policies, p)
}

func (c *Chain) OnEnqueue(j job.Job) error {
	for _, p := range c.policies {
		if err := p.OnEnqueue(j); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) OnJobStart(j job.Job) {
	for _, p := range c.policies {
		p.OnJobStart(j)
	}
}

func (c *Chain) OnJobComplete(j job.Job, success bool, err error) {
	for _, p := range c.policies {
		p.OnJobComplete(j, success, err)
	}
}

// CircuitBreakerPolicy adapts a CircuitBreaker to PoolPolicy: OnEnqueue
// consults AllowRequest, OnJobComplete feeds RecordSuccess/RecordFailure.
type CircuitBreakerPolicy struct {
	Breaker *CircuitBreaker
}

var _ PoolPolicy = (*CircuitBreakerPolicy)(nil)

func (p *CircuitBreakerPolicy) OnEnqueue(job.Job) error {
	if !p.Breaker.AllowRequest() {
		if p.Breaker.State() == HalfOpen {
			return taskerr.ErrCircuitHalfOpen
		}
		return taskerr.ErrCircuitOpen
	}
	return nil
}

func (p *CircuitBreakerPolicy) OnJobStart(job.Job) {}

func (p *CircuitBreakerPolicy) OnJobComplete(_ job.Job, success bool, _ error) {
	if success {
		p.Breaker.RecordSuccess()
	} else {
		p.Breaker.RecordFailure()
	}
}

// RateLimitPolicy adapts a TokenBucket to PoolPolicy: OnEnqueue
// rejects submission with taskerr.ErrQueueFull once the bucket is
// dry, modeling "the pool is saturated" rather than a dedicated
// rate-limit error code, since spec.md's taxonomy has no separate code
// for it.
type RateLimitPolicy struct {
	Bucket *TokenBucket
}

var _ PoolPolicy = (*RateLimitPolicy)(nil)

func (p *RateLimitPolicy) OnEnqueue(job.Job) error {
	if !p.Bucket.TryAcquire(1) {
		return taskerr.ErrQueueFull
	}
	return nil
}

func (p *RateLimitPolicy) OnJobStart(job.Job)                    {}
func (p *RateLimitPolicy) OnJobComplete(job.Job, bool, error)     {}
