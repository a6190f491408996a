// Package pool is the L3 runtime layer: Worker run loops, the Pool
// that owns them alongside a queue and policy chain, and the
// NUMA-aware variant. It generalizes the teacher's internal/worker
// and internal/controller packages (fixed goroutine count, shared
// channel, WaitGroup-joined shutdown) to spec.md §4.4's fuller
// contract: pluggable queue backend, optional work-stealing, a policy
// chain, and an optional autoscaler.
package pool

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/queue"
	"github.com/taskforge/taskforge/pkg/resilience"
	"github.com/taskforge/taskforge/pkg/taskerr"
)

// MetricsRecorder is the narrow hook Pool calls into on the
// submit/start/complete/resize path. internal/metrics implements this
// against Prometheus collectors; pool itself only depends on the
// interface, avoiding an import of internal/metrics (which in turn
// imports pool to construct its collectors).
type MetricsRecorder interface {
	JobSubmitted()
	JobStarted()
	JobCompleted(success bool, duration time.Duration)
	QueueDepth(n int)
	WorkerCount(n int)
	CircuitBreakerState(state resilience.State)
}

type noopMetrics struct{}

func (noopMetrics) JobSubmitted()                        {}
func (noopMetrics) JobStarted()                          {}
func (noopMetrics) JobCompleted(bool, time.Duration)     {}
func (noopMetrics) QueueDepth(int)                       {}
func (noopMetrics) WorkerCount(int)                      {}
func (noopMetrics) CircuitBreakerState(resilience.State) {}


// Pool owns a fixed-or-autoscaled set of Workers draining a shared
// Scheduler, running an optional PoolPolicy chain on every job, per
// spec.md §4.4.
type Pool struct {
	name string
	log  *slog.Logger

	queue   queue.Scheduler
	policy  resilience.PoolPolicy
	breaker *resilience.CircuitBreaker
	metrics MetricsRecorder

	stealingEnabled bool
	idlePoll        time.Duration

	mu      sync.Mutex
	workers []*Worker
	nextID  int

	pending   map[uint64]func(error)
	pendingMu sync.Mutex

	started atomic.Bool
	stopCh  chan struct{}
	stopOne sync.Once
	wg      sync.WaitGroup

	autoscaler *resilience.Autoscaler

	numa         *Topology
	workerTarget int
}

var _ resilience.PoolController = (*Pool)(nil)

func newPool(name string, q queue.Scheduler, policy resilience.PoolPolicy, breaker *resilience.CircuitBreaker, metrics MetricsRecorder, stealingEnabled bool, idlePoll time.Duration) *Pool {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Pool{
		name:            name,
		log:             slog.Default().With("pool", name),
		queue:           q,
		policy:          policy,
		breaker:         breaker,
		metrics:         metrics,
		stealingEnabled: stealingEnabled,
		idlePoll:        idlePoll,
		pending:         make(map[uint64]func(error)),
		stopCh:          make(chan struct{}),
	}
}

// Start launches n worker goroutines. Returns taskerr.ErrAlreadyRunning
// if already started, or taskerr.ErrNoWorkers if n <= 0.
func (p *Pool) Start(n int) error {
	if n <= 0 {
		return taskerr.ErrNoWorkers
	}
	if !p.started.CompareAndSwap(false, true) {
		return taskerr.ErrAlreadyRunning
	}

	p.mu.Lock()
	for i := 0; i < n; i++ {
		p.spawnLocked()
	}
	p.mu.Unlock()

	p.metrics.WorkerCount(n)
	if p.autoscaler != nil {
		p.autoscaler.Start()
	}
	p.log.Info("pool started", "workers", n)
	return nil
}

// spawnLocked must be called with p.mu held.
func (p *Pool) spawnLocked() {
	w := newWorker(p.nextID, p, p.stealingEnabled)
	if p.numa != nil && len(p.numa.Nodes) > 0 {
		w.nodeID = p.numa.Nodes[p.nextID%len(p.numa.Nodes)].ID
	}
	p.nextID++
	p.workers = append(p.workers, w)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		w.run()
	}()
}

func (p *Pool) idlePollInterval() time.Duration {
	if p.idlePoll <= 0 {
		return 20 * time.Millisecond
	}
	return p.idlePoll
}

func (p *Pool) stopped() <-chan struct{} {
	return p.stopCh
}

// stealFrom tries every sibling worker (excluding self), closest NUMA
// distance first, and attempts one StealTop each. spec.md §4.3 leaves
// victim selection unspecified beyond "some selection strategy";
// candidates are shuffled before the distance sort so siblings at
// equal distance (including the non-NUMA case, where all distances
// are equal) are tried in random order rather than a fixed bias that
// would create a thundering herd under many idle workers. When the
// pool is NUMA-aware (spec.md §4.12), ordering by the node's own
// Distance table — rather than a binary same-node/any-node split —
// prefers a two-hop-away node over a four-hop-away one whenever the
// topology reports more than two nodes.
func (p *Pool) stealFrom(self *Worker) (job.Job, bool) {
	p.mu.Lock()
	workers := append([]*Worker(nil), p.workers...)
	p.mu.Unlock()

	candidates := make([]*Worker, 0, len(workers))
	for _, w := range workers {
		if w != self && w.local != nil {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	if p.numa != nil && len(p.numa.Nodes) > 0 {
		dist := nodeDistances(p.numa, self.nodeID)
		sort.SliceStable(candidates, func(i, j int) bool {
			return dist[candidates[i].nodeID] < dist[candidates[j].nodeID]
		})
	}

	for _, victim := range candidates {
		if j, ok := victim.local.StealTop(); ok {
			return j, true
		}
	}
	return nil, false
}

// nodeDistances returns nodeID's distance table, or nil if nodeID
// isn't in topo (e.g. NUMA detection disabled for this worker) — a nil
// map makes every lookup return 0, so the distance sort degrades to a
// no-op and stealFrom falls back to the shuffled order above.
func nodeDistances(topo *Topology, nodeID int) map[int]int {
	for _, n := range topo.Nodes {
		if n.ID == nodeID {
			return n.Distance
		}
	}
	return nil
}

func (p *Pool) runPolicyOnStart(j job.Job) {
	p.metrics.JobStarted()
	if p.policy != nil {
		p.policy.OnJobStart(j)
	}
}

func (p *Pool) runPolicyOnComplete(j job.Job, success bool, err error) {
	if p.policy != nil {
		p.policy.OnJobComplete(j, success, err)
	}
	if p.breaker != nil {
		p.metrics.CircuitBreakerState(p.breaker.State())
	}
}

func (p *Pool) registerCompletion(id uint64, fn func(error)) {
	p.pendingMu.Lock()
	p.pending[id] = fn
	p.pendingMu.Unlock()
}

func (p *Pool) resolve(id uint64, err error, duration time.Duration) {
	p.pendingMu.Lock()
	fn, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.pendingMu.Unlock()

	p.metrics.JobCompleted(err == nil, duration)
	if ok {
		fn(err)
	}
}

// --- resilience.PoolController -------------------------------------------------

// WorkerCount reports the current number of live workers.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Utilisation is the mean busy fraction across all workers, per
// spec.md §4.9's autoscaler input.
func (p *Pool) Utilisation() float64 {
	p.mu.Lock()
	workers := append([]*Worker(nil), p.workers...)
	p.mu.Unlock()

	if len(workers) == 0 {
		return 0
	}
	var sum float64
	for _, w := range workers {
		sum += w.utilisation()
	}
	return sum / float64(len(workers))
}

// QueueSize exposes the shared queue's depth.
func (p *Pool) QueueSize() int {
	return p.queue.Size()
}

// AddWorkers spawns n additional worker goroutines.
func (p *Pool) AddWorkers(n int) error {
	if n <= 0 {
		return nil
	}
	p.mu.Lock()
	for i := 0; i < n; i++ {
		p.spawnLocked()
	}
	count := len(p.workers)
	p.mu.Unlock()
	p.metrics.WorkerCount(count)
	return nil
}

// RemoveWorkers stops the n oldest workers (the first n in start
// order), whether or not they are idle; a busy worker is not passed
// over for an idle one. Any job a removed worker is mid-Execute on
// still runs to completion before RemoveWorkers returns; removal only
// stops that worker from picking up further work.
func (p *Pool) RemoveWorkers(n int) error {
	if n <= 0 {
		return nil
	}
	p.mu.Lock()
	if n > len(p.workers) {
		n = len(p.workers)
	}
	victims := append([]*Worker(nil), p.workers[:n]...)
	p.workers = p.workers[n:]
	count := len(p.workers)
	p.mu.Unlock()

	for _, w := range victims {
		w.stop()
	}
	p.metrics.WorkerCount(count)
	return nil
}

// Stop transitions the pool to Stopping. If immediate is false, it
// waits for the queue to drain and every worker to finish its current
// job before returning (graceful shutdown, per spec.md §4.4); if true,
// it cancels every worker's run loop right away, abandoning queued
// jobs (their futures resolve with taskerr.ErrQueueStopped). A job
// already mid-Execute still runs to completion: Stop waits for every
// worker to return either way.
func (p *Pool) Stop(immediate bool) error {
	var stopErr error
	p.stopOne.Do(func() {
		close(p.stopCh)
		p.queue.Stop()

		if p.autoscaler != nil {
			p.autoscaler.Stop()
		}

		p.mu.Lock()
		workers := append([]*Worker(nil), p.workers...)
		p.mu.Unlock()

		if immediate {
			for _, w := range workers {
				w.cancel.Cancel()
			}
		}

		p.wg.Wait()

		p.pendingMu.Lock()
		for id, fn := range p.pending {
			delete(p.pending, id)
			fn(taskerr.ErrQueueStopped)
		}
		p.pendingMu.Unlock()
	})
	return stopErr
}

// Name is the pool's diagnostic label, set at construction.
func (p *Pool) Name() string { return p.name }

func (p *Pool) String() string {
	return fmt.Sprintf("pool(%s, workers=%d)", p.name, p.WorkerCount())
}
