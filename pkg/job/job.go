// Package job defines the unit-of-work abstraction submitted to a
// pool: the Job interface, a closure-backed CallbackJob, and the
// fluent JobBuilder used to compose one.
package job

import (
	"context"
	"sync/atomic"

	"github.com/taskforge/taskforge/pkg/future"
	"github.com/taskforge/taskforge/pkg/taskerr"
)

// Type is the scheduling priority of a job. Lower numeric value means
// higher priority, matching spec.md's "lower numeric variant = higher
// priority" ordering.
type Type int

const (
	RealTime Type = iota
	Batch
	Background
)

func (t Type) String() string {
	switch t {
	case RealTime:
		return "RealTime"
	case Batch:
		return "Batch"
	case Background:
		return "Background"
	default:
		return "Unknown"
	}
}

// AllTypes lists every built-in priority in descending-priority order,
// used by callers that enumerate sub-queues (pkg/typed).
var AllTypes = []Type{RealTime, Batch, Background}

var nextID uint64

// nextJobID hands out a monotonic, process-wide job identifier. It is
// the Go equivalent of spec.md's "id: u64 (monotonic, process-wide)".
func nextJobID() uint64 {
	return atomic.AddUint64(&nextID, 1)
}

// Job is the object-safe, composition-only unit of work described by
// spec.md §4.1. Implementations are expected to be immutable once
// built; JobBuilder is the only supported constructor for the built-in
// CallbackJob.
type Job interface {
	// ID is the monotonic, process-wide job identifier.
	ID() uint64
	// Name is a diagnostic label, not required to be unique.
	Name() string
	// Priority selects which typed sub-queue the job lands in when
	// scheduled through pkg/typed; pkg/queue-only pools ignore it.
	Priority() Type
	// CancelToken is the job's cooperative cancellation flag, or nil
	// if none was attached.
	CancelToken() *future.CancelToken
	// Execute runs the job body. It may block briefly. A non-nil
	// return is surfaced to the caller's Future as-is; workers convert
	// recovered panics to a taskerr.ErrorInfo with code
	// JobExecutionFailed before this boundary is ever crossed back to
	// user code.
	Execute(ctx context.Context) error
}

// OnErrorFunc observes a job's terminal error, called at most once
// per job, after Execute returns a non-nil error. A panic recovered by
// the worker does not reach the hook.
type OnErrorFunc func(info *taskerr.ErrorInfo)

// CallbackJob is the built-in Job implementation backing JobBuilder:
// a named closure plus the optional cross-cutting fields from
// spec.md's Job data model (priority, cancel token, on-error hook).
// Retry wrapping is layered on top by pkg/resilience.RetryPolicy,
// not stored here.
type CallbackJob struct {
	id      uint64
	name    string
	work    func(ctx context.Context) error
	token   *future.CancelToken
	onError OnErrorFunc
	prio    Type
}

var _ Job = (*CallbackJob)(nil)

func (j *CallbackJob) ID() uint64                        { return j.id }
func (j *CallbackJob) Name() string                       { return j.name }
func (j *CallbackJob) Priority() Type                      { return j.prio }
func (j *CallbackJob) CancelToken() *future.CancelToken    { return j.token }

// Execute runs the wrapped closure and fires the on-error hook (if any)
// when it fails.
func (j *CallbackJob) Execute(ctx context.Context) error {
	err := j.work(ctx)
	if err != nil && j.onError != nil {
		info, ok := err.(*taskerr.ErrorInfo)
		if !ok {
			info = taskerr.Wrap(taskerr.JobExecutionFailed, j.name, err)
		}
		j.onError(info)
	}
	return err
}
