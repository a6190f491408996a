package future

import "sync/atomic"

// CancelToken is a shared, reference-counted cancellation flag. It may
// be cloned (by copying the pointer) onto a job and onto the future
// returned for that job; calling Cancel on any copy is observed by all
// holders.
//
// Cancellation is cooperative: setting the flag does not interrupt a
// job already executing. Code that wants to respond to cancellation
// must poll IsCancelled or select on Done().
type CancelToken struct {
	cancelled atomic.Bool
	done      chan struct{}
	closeOnce atomic.Bool
}

// NewCancelToken creates a fresh, non-cancelled token.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel sets the cancellation flag and wakes any goroutine blocked on
// Done(). Idempotent: a second call is a no-op.
func (t *CancelToken) Cancel() {
	if t.cancelled.CompareAndSwap(false, true) {
		if t.closeOnce.CompareAndSwap(false, true) {
			close(t.done)
		}
	}
}

// IsCancelled reports whether Cancel has been called.
func (t *CancelToken) IsCancelled() bool {
	return t.cancelled.Load()
}

// Done returns a channel that is closed when the token is cancelled,
// suitable for use in a select alongside other wait conditions.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}
