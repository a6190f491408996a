package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/taskforge/taskforge/pkg/future"
	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/taskerr"
)

// RetryPolicy wraps a job with exponential-backoff retry, per spec.md
// §4.10. Attempts run n = 1..MaxAttempts; the delay before attempt n+1
// is min(MaxBackoff, InitialBackoff * Multiplier^(n-1)), jittered by
// +/- Jitter (a fraction in [0,1]).
//
// Retries happen inside the wrapped job's Execute — the same worker
// goroutine sleeps between attempts — rather than by re-submitting to
// the pool's queue, since the spec requires only that later attempts
// observe the computed delay, and an in-process retry is simpler than
// threading resubmission through the pool. Spec.md's Open Question on
// whether retries should respect the pool's shutdown signal mid-backoff
// is resolved here as documented in §9: RetryOn governs which errors
// are retried, and the job's CancelToken is checked at the start of
// each attempt, aborting the retry loop with taskerr.ErrOperationCancelled
// if it fires mid-backoff.
type RetryPolicy struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	Multiplier      float64
	Jitter          float64
	RetryOn         func(info *taskerr.ErrorInfo) bool
}

// DefaultRetryPolicy makes up to 3 attempts (2 retries) on any
// failure, with a doubling backoff starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
		RetryOn:        func(*taskerr.ErrorInfo) bool { return true },
	}
}

// Delay computes the backoff before retrying attempt n (1-indexed:
// the delay before the 2nd attempt is Delay(1)).
func (r RetryPolicy) Delay(n int) time.Duration {
	base := float64(r.InitialBackoff) * pow(r.Multiplier, n-1)
	if max := float64(r.MaxBackoff); max > 0 && base > max {
		base = max
	}
	if r.Jitter > 0 {
		spread := base * r.Jitter
		base += (rand.Float64()*2 - 1) * spread
		if base < 0 {
			base = 0
		}
	}
	return time.Duration(base)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// retryingJob wraps an inner job.Job, re-running Execute on failure
// per the owning RetryPolicy.
type retryingJob struct {
	inner  job.Job
	policy RetryPolicy
}

var _ job.Job = (*retryingJob)(nil)

// Wrap returns a Job that retries inner according to r. The future
// eventually fulfilled by a pool running the returned job reflects
// only the final attempt's outcome, per spec.md §4.11.
func (r RetryPolicy) Wrap(inner job.Job) job.Job {
	return &retryingJob{inner: inner, policy: r}
}

func (j *retryingJob) ID() uint64                     { return j.inner.ID() }
func (j *retryingJob) Name() string                    { return j.inner.Name() }
func (j *retryingJob) Priority() job.Type              { return j.inner.Priority() }
func (j *retryingJob) CancelToken() *future.CancelToken { return j.inner.CancelToken() }

func (j *retryingJob) Execute(ctx context.Context) error {
	max := j.policy.MaxAttempts
	if max < 1 {
		max = 1
	}

	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		if token := j.inner.CancelToken(); token != nil && token.IsCancelled() {
			return taskerr.ErrOperationCancelled
		}

		lastErr = j.inner.Execute(ctx)
		if lastErr == nil {
			return nil
		}

		info, ok := lastErr.(*taskerr.ErrorInfo)
		if !ok {
			info = taskerr.Wrap(taskerr.JobExecutionFailed, j.inner.Name(), lastErr)
		}
		if attempt == max || (j.policy.RetryOn != nil && !j.policy.RetryOn(info)) {
			return lastErr
		}

		delay := j.policy.Delay(attempt)
		timer := time.NewTimer(delay)
		token := j.inner.CancelToken()
		var tokenDone <-chan struct{}
		if token != nil {
			tokenDone = token.Done()
		}
		select {
		case <-timer.C:
		case <-tokenDone:
			timer.Stop()
			return taskerr.ErrOperationCancelled
		case <-ctx.Done():
			timer.Stop()
			if token != nil && token.IsCancelled() {
				return taskerr.ErrOperationCancelled
			}
			return ctx.Err()
		}
	}
	return lastErr
}
