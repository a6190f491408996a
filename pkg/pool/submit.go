package pool

import (
	"context"

	"github.com/taskforge/taskforge/pkg/future"
	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/resilience"
	"github.com/taskforge/taskforge/pkg/taskerr"
)

// SubmitOptions carries the cross-cutting, per-submission knobs from
// spec.md §4.1/§4.10: a cancel token, the typed-queue priority, and an
// optional retry wrapper applied before the job ever reaches the
// queue.
type SubmitOptions struct {
	CancelToken *future.CancelToken
	Priority    job.Type
	Retry       *resilience.RetryPolicy
}

func (p *Pool) enqueue(ctx context.Context, j job.Job) error {
	if !p.started.Load() {
		return taskerr.ErrQueueStopped
	}
	if p.policy != nil {
		if err := p.policy.OnEnqueue(j); err != nil {
			return err
		}
	}
	p.metrics.JobSubmitted()
	p.metrics.QueueDepth(p.queue.Size())

	if err := p.queue.Schedule(j); err != nil {
		return err
	}

	// If the caller's context is cancelled before a worker ever
	// dispatches this job, propagate it through the job's own token so
	// Future.Get observes cancellation instead of hanging until the
	// job is eventually picked up and executed.
	if ctx != nil && j.CancelToken() != nil {
		go func() {
			select {
			case <-ctx.Done():
				j.CancelToken().Cancel()
			case <-j.CancelToken().Done():
			}
		}()
	}
	return nil
}

// Submit enqueues j and returns a Future resolved once a worker runs
// it. The future's value is always nil; callers wanting a typed result
// use SubmitFunc instead, per spec.md §4.1's job/result separation.
func (p *Pool) Submit(ctx context.Context, j job.Job, opts SubmitOptions) (*future.Future[any], error) {
	if opts.Retry != nil {
		j = opts.Retry.Wrap(j)
	}

	f := future.New[any](j.CancelToken())
	p.registerCompletion(j.ID(), func(err error) { f.Complete(nil, err) })

	if err := p.enqueue(ctx, j); err != nil {
		return nil, err
	}
	return f, nil
}

// SubmitFunc wraps fn in a CallbackJob and returns a Future[T] carrying
// its typed result, the idiomatic stand-in for spec.md's
// Future<T>-returning submit overload.
func SubmitFunc[T any](p *Pool, ctx context.Context, fn func(context.Context) (T, error), opts SubmitOptions) (*future.Future[T], error) {
	token := opts.CancelToken
	if token == nil {
		token = future.NewCancelToken()
	}

	var result T
	builder := job.NewBuilder().Priority(opts.Priority).CancelToken(token).Work(func(ctx context.Context) error {
		v, err := fn(ctx)
		result = v
		return err
	})
	j := builder.Build()

	var wrapped job.Job = j
	if opts.Retry != nil {
		wrapped = opts.Retry.Wrap(wrapped)
	}

	f := future.New[T](token)
	p.registerCompletion(j.ID(), func(err error) { f.Complete(result, err) })

	if err := p.enqueue(ctx, wrapped); err != nil {
		return nil, err
	}
	return f, nil
}

// SubmitBatch enqueues every job and returns one Future per job, in
// the same order. If any job fails to enqueue (e.g. a bounded queue's
// Reject policy), the jobs already scheduled are left queued — this is
// a best-effort batch, not the MutexQueue.ScheduleBatch all-or-none
// guarantee, since policy (breaker, rate limiter) may reject a subset
// independently of capacity.
func (p *Pool) SubmitBatch(ctx context.Context, jobs []job.Job, opts SubmitOptions) ([]*future.Future[any], error) {
	futures := make([]*future.Future[any], 0, len(jobs))
	for _, j := range jobs {
		f, err := p.Submit(ctx, j, opts)
		if err != nil {
			return futures, err
		}
		futures = append(futures, f)
	}
	return futures, nil
}

// WhenAll blocks until every future in fs resolves (or ctx is done),
// returning each one's value in order. The first error encountered
// (including ctx's) is returned alongside whatever values had already
// resolved.
func WhenAll[T any](ctx context.Context, fs []*future.Future[T]) ([]T, error) {
	values := make([]T, len(fs))
	for i, f := range fs {
		v, err := f.Get(ctx)
		values[i] = v
		if err != nil {
			return values, err
		}
	}
	return values, nil
}

// WhenAny blocks until the first of fs resolves (or ctx is done),
// returning its index and value.
func WhenAny[T any](ctx context.Context, fs []*future.Future[T]) (int, T, error) {
	cases := make(chan int, len(fs))
	for i, f := range fs {
		i, f := i, f
		go func() {
			select {
			case <-f.Done():
				cases <- i
			case <-ctx.Done():
			}
		}()
	}

	var zero T
	select {
	case i := <-cases:
		v, err := fs[i].Get(ctx)
		return i, v, err
	case <-ctx.Done():
		return -1, zero, ctx.Err()
	}
}
