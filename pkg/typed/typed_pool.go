package typed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskforge/taskforge/pkg/deque"
	"github.com/taskforge/taskforge/pkg/future"
	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/taskerr"
)

// MetricsRecorder is the narrow hook TypedPool calls on the
// submit/start/complete path, mirroring pkg/pool.MetricsRecorder so
// internal/metrics can serve both pools without TypedPool importing
// pkg/pool just for the interface shape.
type MetricsRecorder interface {
	JobSubmitted()
	JobStarted()
	JobCompleted(success bool, duration time.Duration)
	QueueDepth(n int)
	WorkerCount(n int)
}

type noopMetrics struct{}

func (noopMetrics) JobSubmitted()                    {}
func (noopMetrics) JobStarted()                      {}
func (noopMetrics) JobCompleted(bool, time.Duration) {}
func (noopMetrics) QueueDepth(int)                   {}
func (noopMetrics) WorkerCount(int)                  {}

// GroupSpec assigns a fixed worker count to a fixed subset of
// priorities. A TypedPool is built from one or more GroupSpecs; per
// spec.md §9's design note, a worker in one group never steals from a
// worker in another group, even when its own group's lanes are empty
// and a sibling group is backlogged — cross-type stealing is
// forbidden because a RealTime-only worker stealing a Background job
// (or vice versa) would defeat the isolation typed pools exist to
// provide.
type GroupSpec struct {
	Types   []job.Type
	Workers int
}

// typedWorker is a Worker restricted to a GroupSpec's priorities: it
// dequeues only from its own group's lanes and its own deque, and
// steals only from siblings in the same group.
type typedWorker struct {
	id     int
	group  *group
	local  *deque.Deque
	cancel *future.CancelToken
	done   chan struct{}
	busyNs atomic.Int64
	idleNs atomic.Int64
}

// utilisation is this worker's busy fraction since it started: a
// value in [0,1]. Mirrors pkg/pool.Worker.utilisation.
func (w *typedWorker) utilisation() float64 {
	busy := w.busyNs.Load()
	idle := w.idleNs.Load()
	total := busy + idle
	if total == 0 {
		return 0
	}
	return float64(busy) / float64(total)
}

type group struct {
	types   []job.Type
	workers []*typedWorker
	stolen  bool
}

// TypedPool is the L4 restricted pool: a shared TypedJobQueue plus one
// or more priority-restricted worker groups, per spec.md §4.7.
type TypedPool struct {
	name    string
	queue   *TypedJobQueue
	groups  []*group
	wg      sync.WaitGroup
	pending map[uint64]func(error)
	pendMu  sync.Mutex
	stopped chan struct{}
	once    sync.Once
	metrics MetricsRecorder
}

// NewTypedPool builds (but does not start) a TypedPool over the given
// group specs, sharing one TypedJobQueue.
func NewTypedPool(name string, specs []GroupSpec, allowStealing bool) *TypedPool {
	p := &TypedPool{
		name:    name,
		queue:   NewTypedJobQueue(),
		pending: make(map[uint64]func(error)),
		stopped: make(chan struct{}),
		metrics: noopMetrics{},
	}
	for _, spec := range specs {
		g := &group{types: spec.Types, stolen: allowStealing}
		for i := 0; i < spec.Workers; i++ {
			w := &typedWorker{id: i, group: g, cancel: future.NewCancelToken(), done: make(chan struct{})}
			if allowStealing {
				w.local = deque.New()
			}
			g.workers = append(g.workers, w)
		}
		p.groups = append(p.groups, g)
	}
	return p
}

// WithMetrics installs rec as the pool's metrics sink. Must be called
// before Start.
func (p *TypedPool) WithMetrics(rec MetricsRecorder) *TypedPool {
	if rec != nil {
		p.metrics = rec
	}
	return p
}

// Start launches every group's workers.
func (p *TypedPool) Start() {
	var count int
	for _, g := range p.groups {
		for _, w := range g.workers {
			count++
			p.wg.Add(1)
			go func(w *typedWorker) {
				defer p.wg.Done()
				p.runWorker(w)
			}(w)
		}
	}
	p.metrics.WorkerCount(count)
}

func (p *TypedPool) runWorker(w *typedWorker) {
	defer close(w.done)
	idleSince := time.Now()
	for {
		if w.cancel.IsCancelled() {
			return
		}

		j, ok := p.nextFor(w)
		if !ok {
			select {
			case <-w.cancel.Done():
				return
			case <-p.stopped:
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		w.idleNs.Add(int64(time.Since(idleSince)))
		p.execute(w, j)
		idleSince = time.Now()
		p.metrics.QueueDepth(p.queue.Size())
	}
}

// nextFor tries the worker's own deque, then the shared queue's lanes
// restricted to this worker's group, then stealing from a sibling in
// the *same group only*.
func (p *TypedPool) nextFor(w *typedWorker) (job.Job, bool) {
	if w.local != nil {
		if j, ok := w.local.PopBottom(); ok {
			return j, true
		}
	}
	if j, err := p.queue.TryNextJobFrom(w.group.types); err == nil {
		return j, true
	}
	if w.local != nil {
		for _, sibling := range w.group.workers {
			if sibling == w || sibling.local == nil {
				continue
			}
			if j, ok := sibling.local.StealTop(); ok {
				return j, true
			}
		}
	}
	return nil, false
}

func (p *TypedPool) execute(w *typedWorker, j job.Job) {
	start := time.Now()
	p.metrics.JobStarted()
	err := func() (execErr error) {
		defer func() {
			if r := recover(); r != nil {
				if e, ok := r.(error); ok {
					execErr = taskerr.Wrap(taskerr.JobExecutionFailed, j.Name(), e)
				} else {
					execErr = taskerr.New(taskerr.JobExecutionFailed, "typed worker panic")
				}
			}
		}()
		return j.Execute(context.Background())
	}()
	duration := time.Since(start)
	w.busyNs.Add(int64(duration))
	p.metrics.JobCompleted(err == nil, duration)

	p.pendMu.Lock()
	fn, ok := p.pending[j.ID()]
	if ok {
		delete(p.pending, j.ID())
	}
	p.pendMu.Unlock()
	if ok {
		fn(err)
	}
}

// Submit enqueues j on the shared TypedJobQueue (landing in the lane
// matching j.Priority()) and returns a Future resolved once whichever
// group serves that priority runs it.
func (p *TypedPool) Submit(j job.Job) (*future.Future[any], error) {
	f := future.New[any](j.CancelToken())
	p.pendMu.Lock()
	p.pending[j.ID()] = func(err error) { f.Complete(nil, err) }
	p.pendMu.Unlock()

	if err := p.queue.Schedule(j); err != nil {
		return nil, err
	}
	p.metrics.JobSubmitted()
	p.metrics.QueueDepth(p.queue.Size())
	return f, nil
}

// Utilisation is the mean busy fraction across every worker in every
// group, mirroring pkg/pool.Pool.Utilisation.
func (p *TypedPool) Utilisation() float64 {
	var sum float64
	var n int
	for _, g := range p.groups {
		for _, w := range g.workers {
			sum += w.utilisation()
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Stop stops the shared queue and every group's workers, then waits
// for them to exit.
func (p *TypedPool) Stop() {
	p.once.Do(func() {
		close(p.stopped)
		p.queue.Stop()
		for _, g := range p.groups {
			for _, w := range g.workers {
				w.cancel.Cancel()
			}
		}
		p.wg.Wait()
	})
}
