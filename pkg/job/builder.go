package job

import (
	"context"

	"github.com/taskforge/taskforge/pkg/future"
)

// Builder composes a Job from a name, a work closure, and optional
// cross-cutting fields (priority, cancel token, on-error hook).
// Chaining produces an immutable Job handle: there is no inheritance,
// only composition, per spec.md §4.1.
type Builder struct {
	name    string
	work    func(ctx context.Context) error
	token   *future.CancelToken
	onError OnErrorFunc
	prio    Type
}

// NewBuilder starts a fresh JobBuilder with the default priority
// (Batch) and no cancel token or error hook.
func NewBuilder() *Builder {
	return &Builder{prio: Batch}
}

// Name sets the job's diagnostic name.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// Work sets the closure executed by the job. Required before Build.
func (b *Builder) Work(fn func(ctx context.Context) error) *Builder {
	b.work = fn
	return b
}

// OnError attaches a hook invoked once, after Execute returns a
// non-nil error.
func (b *Builder) OnError(fn OnErrorFunc) *Builder {
	b.onError = fn
	return b
}

// CancelToken attaches a shared cooperative-cancellation token.
func (b *Builder) CancelToken(token *future.CancelToken) *Builder {
	b.token = token
	return b
}

// Priority sets which typed sub-queue the job is scheduled into when
// submitted through a typed pool.
func (b *Builder) Priority(p Type) *Builder {
	b.prio = p
	return b
}

// Build finalizes the job. It panics if Work was never called, since a
// job with no body is a programmer error, not a runtime condition —
// callers construct builders with literal, compile-time-known chains.
func (b *Builder) Build() *CallbackJob {
	if b.work == nil {
		panic("job: Builder.Build called without Work")
	}
	return &CallbackJob{
		id:      nextJobID(),
		name:    b.name,
		work:    b.work,
		token:   b.token,
		onError: b.onError,
		prio:    b.prio,
	}
}
