package pool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/taskforge/taskforge/pkg/deque"
	"github.com/taskforge/taskforge/pkg/future"
	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/taskerr"
)

// Worker is one run-loop goroutine: dequeue (own deque first, then the
// pool's shared queue, then a steal attempt) -> execute -> record
// metrics -> fulfil the submitter's future. This generalizes the
// teacher's internal/worker.Worker, which only ever reads from a
// single shared taskCh, to spec.md §4.3's owner-deque-plus-steal loop.
type Worker struct {
	id   int
	pool *Pool

	local  *deque.Deque // nil when work-stealing is disabled
	nodeID int          // NUMA node, -1 when topology is not tracked

	busyNs atomic.Int64
	idleNs atomic.Int64

	cancel *future.CancelToken
	done   chan struct{}
}

func newWorker(id int, p *Pool, stealingEnabled bool) *Worker {
	w := &Worker{
		id:     id,
		pool:   p,
		cancel: future.NewCancelToken(),
		done:   make(chan struct{}),
		nodeID: -1,
	}
	if stealingEnabled {
		w.local = deque.New()
	}
	return w
}

// run is the worker's main loop. It exits at the top of the next
// iteration once cancel fires, even if work is still queued, and exits
// once the pool is stopped and no job is immediately available.
func (w *Worker) run() {
	defer close(w.done)

	idleSince := time.Now()
	for {
		if w.cancel.IsCancelled() {
			return
		}

		j, ok := w.nextJob()
		if !ok {
			select {
			case <-w.cancel.Done():
				return
			case <-w.pool.stopped():
				return
			case <-time.After(w.pool.idlePollInterval()):
			}
			continue
		}
		w.idleNs.Add(int64(time.Since(idleSince)))

		w.execute(j)
		idleSince = time.Now() // the next idle span starts after this job
	}
}

// nextJob tries, in order: this worker's own deque (LIFO, cache-warm),
// the pool's shared queue (non-blocking), then stealing from a
// sibling's deque top (FIFO), per spec.md §4.3's idle-worker loop.
func (w *Worker) nextJob() (job.Job, bool) {
	if w.local != nil {
		if j, ok := w.local.PopBottom(); ok {
			return j, true
		}
	}

	if j, err := w.pool.queue.TryNextJob(); err == nil {
		return j, true
	}

	if w.local != nil {
		if j, ok := w.pool.stealFrom(w); ok {
			return j, true
		}
	}

	return nil, false
}

// execute runs j, recovering a panic into a JobExecutionFailed error,
// and resolves whatever future the pool registered for it.
func (w *Worker) execute(j job.Job) {
	start := time.Now()

	w.pool.runPolicyOnStart(j)

	err := func() (execErr error) {
		defer func() {
			if r := recover(); r != nil {
				execErr = taskerr.New(taskerr.JobExecutionFailed, panicMessage(r))
			}
		}()
		ctx := context.Background()
		if token := j.CancelToken(); token != nil {
			var cancel context.CancelFunc
			ctx, cancel = context.WithCancel(ctx)
			defer cancel()
			go func() {
				select {
				case <-token.Done():
					cancel()
				case <-ctx.Done():
				}
			}()
		}
		return j.Execute(ctx)
	}()

	duration := time.Since(start)
	w.busyNs.Add(int64(duration))
	w.pool.runPolicyOnComplete(j, err == nil, err)
	w.pool.resolve(j.ID(), err, duration)
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "worker panic"
}

// utilisation is this worker's busy fraction since it started: a
// value in [0,1].
func (w *Worker) utilisation() float64 {
	busy := w.busyNs.Load()
	idle := w.idleNs.Load()
	total := busy + idle
	if total == 0 {
		return 0
	}
	return float64(busy) / float64(total)
}

// stop cancels the worker's run loop and waits for it to exit.
func (w *Worker) stop() {
	w.cancel.Cancel()
	<-w.done
}
