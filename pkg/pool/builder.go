package pool

import (
	"time"

	"github.com/taskforge/taskforge/pkg/lockfree"
	"github.com/taskforge/taskforge/pkg/queue"
	"github.com/taskforge/taskforge/pkg/resilience"
	"github.com/taskforge/taskforge/pkg/taskerr"
)

// StealConfig governs whether workers carry a per-owner Chase–Lev
// deque and steal from each other when idle, per spec.md §4.3.
type StealConfig struct {
	Enabled          bool
	IdlePollInterval time.Duration
}

// MetricsLevel selects how much the pool instruments itself through
// the built-in counting MetricsRecorder. Callers wanting Prometheus
// export wire internal/metrics's recorder via WithMetricsRecorder
// instead, which supersedes whatever level was requested here.
type MetricsLevel int

const (
	MetricsNone MetricsLevel = iota
	MetricsBasic
	MetricsDetailed
)

// Builder assembles a Pool. The zero value is not usable; start with
// NewBuilder, matching the teacher's BuildCLI-style fluent
// constructors.
type Builder struct {
	name string

	workers int

	queueKind      queue.Kind
	adaptiveBound  int
	policy         resilience.PoolPolicy
	breakerCfg     *resilience.BreakerConfig
	autoscalerCfg  *resilience.AutoscalerConfig
	steal          StealConfig
	metricsLevel   MetricsLevel
	metricsRec     MetricsRecorder
	numaAware      bool
}

// NewBuilder starts a fresh Builder for a pool named name (used only
// for logging and String()).
func NewBuilder(name string) *Builder {
	return &Builder{
		name:      name,
		workers:   1,
		queueKind: queue.KindMutex,
		steal:     StealConfig{IdlePollInterval: 20 * time.Millisecond},
	}
}

// Workers sets the initial worker count.
func (b *Builder) Workers(n int) *Builder {
	b.workers = n
	return b
}

// WithQueue selects the Scheduler backend. KindAdaptive builds both a
// MutexQueue and a lockfree.Queue and wraps them in a
// queue.AdaptiveQueue.
func (b *Builder) WithQueue(kind queue.Kind) *Builder {
	b.queueKind = kind
	return b
}

// WithPolicy installs a custom PoolPolicy, run alongside (before) any
// breaker policy WithCircuitBreaker installs.
func (b *Builder) WithPolicy(p resilience.PoolPolicy) *Builder {
	b.policy = p
	return b
}

// WithCircuitBreaker wraps submission in a CircuitBreakerPolicy built
// from cfg.
func (b *Builder) WithCircuitBreaker(cfg resilience.BreakerConfig) *Builder {
	b.breakerCfg = &cfg
	return b
}

// WithAutoscaler attaches an Autoscaler sampling this pool's
// utilisation on cfg's cadence.
func (b *Builder) WithAutoscaler(cfg resilience.AutoscalerConfig) *Builder {
	b.autoscalerCfg = &cfg
	return b
}

// WithWorkStealing enables per-worker deques and sibling stealing.
func (b *Builder) WithWorkStealing(cfg StealConfig) *Builder {
	b.steal = cfg
	return b
}

// WithMetrics selects the built-in counting recorder's verbosity.
func (b *Builder) WithMetrics(level MetricsLevel) *Builder {
	b.metricsLevel = level
	return b
}

// WithMetricsRecorder installs a custom MetricsRecorder (e.g.
// internal/metrics's Prometheus-backed collector), superseding
// WithMetrics.
func (b *Builder) WithMetricsRecorder(r MetricsRecorder) *Builder {
	b.metricsRec = r
	return b
}

// WithNuma marks the pool NUMA-aware: stealing prefers same-node
// victims before falling back to any-node, per spec.md §4.12.
func (b *Builder) WithNuma(aware bool) *Builder {
	b.numaAware = aware
	return b
}

func (b *Builder) buildQueue() queue.Scheduler {
	switch b.queueKind {
	case queue.KindLockFree:
		return lockfree.New()
	case queue.KindAdaptive:
		return queue.NewAdaptiveQueue(queue.NewMutexQueue(), lockfree.New(), 8, 100*time.Millisecond)
	default:
		return queue.NewMutexQueue()
	}
}

func (b *Builder) buildMetrics() MetricsRecorder {
	if b.metricsRec != nil {
		return b.metricsRec
	}
	switch b.metricsLevel {
	case MetricsNone:
		return noopMetrics{}
	default:
		return newCountingMetrics()
	}
}

// Build assembles the Pool without starting its workers.
func (b *Builder) Build() (*Pool, error) {
	if b.workers <= 0 {
		return nil, taskerr.ErrNoWorkers
	}

	q := b.buildQueue()

	var policy resilience.PoolPolicy
	chain := resilience.NewChain()
	used := false
	if b.policy != nil {
		chain.Add(b.policy)
		used = true
	}

	var breaker *resilience.CircuitBreaker
	if b.breakerCfg != nil {
		breaker = resilience.NewCircuitBreaker(*b.breakerCfg)
		chain.Add(&resilience.CircuitBreakerPolicy{Breaker: breaker})
		used = true
	}
	if used {
		policy = chain
	}

	metrics := b.buildMetrics()

	var numa *Topology
	if b.numaAware {
		numa = DetectTopology()
	}

	p := newPool(b.name, q, policy, breaker, metrics, b.steal.Enabled, b.steal.IdlePollInterval)
	p.numa = numa

	if b.autoscalerCfg != nil {
		p.autoscaler = resilience.NewAutoscaler(p, *b.autoscalerCfg)
	}

	p.workerTarget = b.workers
	return p, nil
}

// BuildAndStart is Build followed by Start(workers).
func (b *Builder) BuildAndStart() (*Pool, error) {
	p, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := p.Start(p.workerTarget); err != nil {
		return nil, err
	}
	return p, nil
}
