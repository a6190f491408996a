package future

import (
	"context"
	"sync"
	"time"

	"github.com/taskforge/taskforge/pkg/taskerr"
)

// Future is a one-shot, thread-safe handle to a pending job's result.
// The job side calls Complete exactly once; any number of consumers
// may call Get/GetFor/IsReady concurrently.
//
// Dropping a Future does not cancel the underlying job — the consumer
// must call Cancel explicitly. This mirrors spec.md's documented
// choice to avoid coupling a future's lifetime to the job's lifetime.
type Future[T any] struct {
	mu     sync.Mutex
	ready  bool
	value  T
	err    error
	done   chan struct{}
	token  *CancelToken
}

// New creates a Future backed by the given cancellation token. Passing
// nil is valid; Cancel then has no effect and the future can only ever
// resolve via Complete.
func New[T any](token *CancelToken) *Future[T] {
	return &Future[T]{
		done:  make(chan struct{}),
		token: token,
	}
}

// Complete writes the result slot exactly once and wakes all waiters.
// Calling Complete a second time is a no-op: the first writer wins.
func (f *Future[T]) Complete(value T, err error) {
	f.mu.Lock()
	if f.ready {
		f.mu.Unlock()
		return
	}
	f.value = value
	f.err = err
	f.ready = true
	f.mu.Unlock()
	close(f.done)
}

// IsReady reports whether the future has resolved (successfully or
// not), without blocking.
func (f *Future[T]) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Cancel requests cancellation of the underlying job via the shared
// CancelToken. It does not itself resolve the future: a pending Get or
// GetFor observes the token and returns taskerr.ErrOperationCancelled,
// while the future stays unresolved until Complete is called with
// whatever the job's Execute returned.
func (f *Future[T]) Cancel() {
	if f.token != nil {
		f.token.Cancel()
	}
}

// Get blocks until the future resolves or ctx is done. A cancelled
// token observed before resolution yields ErrOperationCancelled.
//
// f.done is always checked ahead of (and again right before honoring)
// cancelDone: Cancel and a concurrent, already-in-flight Complete race
// independently of Get, so if the job finished resolving the future at
// essentially the same moment an external caller cancelled it, Get
// still prefers the real result over a stale-feeling cancellation.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	var cancelDone <-chan struct{}
	if f.token != nil {
		cancelDone = f.token.Done()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-cancelDone:
		select {
		case <-f.done:
			return f.value, f.err
		default:
		}
		var zero T
		return zero, taskerr.ErrOperationCancelled
	case <-ctx.Done():
		var zero T
		return zero, taskerr.Wrap(taskerr.Timeout, "future.Get: context done", ctx.Err())
	}
}

// GetFor blocks up to timeout for resolution. On timeout it returns
// taskerr.ErrTimeout without mutating any state, so a later call may
// still observe the eventual result. See Get's doc comment for why
// f.done is checked ahead of and again right before cancelDone.
func (f *Future[T]) GetFor(timeout time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	var cancelDone <-chan struct{}
	if f.token != nil {
		cancelDone = f.token.Done()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-cancelDone:
		select {
		case <-f.done:
			return f.value, f.err
		default:
		}
		var zero T
		return zero, taskerr.ErrOperationCancelled
	case <-ctx.Done():
		var zero T
		return zero, taskerr.ErrTimeout
	}
}

// Done returns a channel closed once the future resolves, so it can be
// combined with other futures in a select-based fan-in (see WhenAll /
// WhenAny in pkg/pool).
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Token returns the future's associated cancellation token, or nil.
func (f *Future[T]) Token() *CancelToken {
	return f.token
}
