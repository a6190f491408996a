package resilience

import (
	"sync"
	"time"
)

// PoolController is the subset of Pool's surface the Autoscaler needs
// to observe load and resize the worker set, per spec.md §4.9. It is
// a narrow interface rather than a dependency on pkg/pool directly, so
// pkg/pool can depend on pkg/resilience without a import cycle back.
type PoolController interface {
	WorkerCount() int
	Utilisation() float64
	QueueSize() int
	AddWorkers(n int) error
	RemoveWorkers(n int) error
}

// AutoscalerConfig holds the sampling cadence and scaling thresholds.
type AutoscalerConfig struct {
	SampleInterval     time.Duration
	ScaleUpThreshold   float64
	ScaleDownThreshold float64
	// QueueLagThreshold is the queued-jobs-per-worker ratio
	// (QueueSize/WorkerCount) that alone is enough to count a sample as
	// overloaded, per spec.md §4.9's queue-lag signal: a pool can be
	// backlogged even while every worker reports low busy-fraction, if
	// jobs are short but arriving faster than workers drain them.
	QueueLagThreshold float64
	CoolUp            int
	CoolDown          int
	MinWorkers        int
	MaxWorkers        int
	ScaleStep         int
}

// DefaultAutoscalerConfig is a conservative starting point: scale up
// past 80% utilisation or 4 queued jobs per worker, down below 20%
// utilisation with an empty queue, two consecutive samples either way,
// one worker at a time.
func DefaultAutoscalerConfig() AutoscalerConfig {
	return AutoscalerConfig{
		SampleInterval:     time.Second,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.2,
		QueueLagThreshold:  4.0,
		CoolUp:             2,
		CoolDown:           2,
		MinWorkers:         1,
		MaxWorkers:         64,
		ScaleStep:          1,
	}
}

// Direction names a ScalingDecision's outcome.
type Direction int

const (
	None Direction = iota
	ScaleUp
	ScaleDown
)

func (d Direction) String() string {
	switch d {
	case ScaleUp:
		return "scale_up"
	case ScaleDown:
		return "scale_down"
	default:
		return "none"
	}
}

// ScalingDecision is emitted on every sample for observability, per
// spec.md §4.9, whether or not it actually changed the worker count.
type ScalingDecision struct {
	Direction Direction
	Target    int
	Reason    string
}

// Autoscaler is a background observer that samples a PoolController's
// utilisation and queue lag on a ticker, growing or shrinking the
// worker set once enough consecutive samples cross a threshold. It
// generalizes the teacher's Controller pattern of owning a dedicated
// goroutine per concern (dispatch/result/timeout/snapshot loops in
// ChuLiYu/raft-recovery's internal/controller.Controller) down to a
// single autoscale loop.
type Autoscaler struct {
	cfg       AutoscalerConfig
	ctrl      PoolController
	decisions chan ScalingDecision

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	upStreak   int
	downStreak int
}

// NewAutoscaler creates an autoscaler bound to ctrl. Decisions is a
// best-effort observability channel; sends are non-blocking, so a
// slow consumer simply misses some decisions rather than stalling the
// sampling loop.
func NewAutoscaler(ctrl PoolController, cfg AutoscalerConfig) *Autoscaler {
	return &Autoscaler{
		cfg:       cfg,
		ctrl:      ctrl,
		decisions: make(chan ScalingDecision, 16),
	}
}

// Decisions returns the channel ScalingDecision values are published
// on. Safe to range over concurrently with Start/Stop.
func (a *Autoscaler) Decisions() <-chan ScalingDecision {
	return a.decisions
}

// Start launches the sampling goroutine. Calling Start twice without
// an intervening Stop is a no-op.
func (a *Autoscaler) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.loop(a.stopCh, a.doneCh)
}

// Stop signals the sampling goroutine to exit and waits for it.
// Idempotent.
func (a *Autoscaler) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	stopCh := a.stopCh
	doneCh := a.doneCh
	a.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (a *Autoscaler) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(a.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			a.sample()
		}
	}
}

func (a *Autoscaler) sample() {
	util := a.ctrl.Utilisation()
	workers := a.ctrl.WorkerCount()
	queueSize := a.ctrl.QueueSize()

	divisor := workers
	if divisor <= 0 {
		divisor = 1
	}
	queueLag := float64(queueSize) / float64(divisor)
	laggy := queueLag >= a.cfg.QueueLagThreshold

	decision := ScalingDecision{Direction: None, Target: workers}

	switch {
	case util >= a.cfg.ScaleUpThreshold || laggy:
		a.upStreak++
		a.downStreak = 0
	case util <= a.cfg.ScaleDownThreshold && queueSize == 0:
		a.downStreak++
		a.upStreak = 0
	default:
		a.upStreak = 0
		a.downStreak = 0
	}

	switch {
	case a.upStreak >= a.cfg.CoolUp && workers < a.cfg.MaxWorkers:
		step := a.cfg.ScaleStep
		if workers+step > a.cfg.MaxWorkers {
			step = a.cfg.MaxWorkers - workers
		}
		reason := "utilisation sustained above scale-up threshold"
		if laggy {
			reason = "queue lag sustained above per-worker threshold"
		}
		if err := a.ctrl.AddWorkers(step); err == nil {
			decision = ScalingDecision{Direction: ScaleUp, Target: workers + step, Reason: reason}
		}
		a.upStreak = 0
	case a.downStreak >= a.cfg.CoolDown && workers > a.cfg.MinWorkers:
		step := a.cfg.ScaleStep
		if workers-step < a.cfg.MinWorkers {
			step = workers - a.cfg.MinWorkers
		}
		if err := a.ctrl.RemoveWorkers(step); err == nil {
			decision = ScalingDecision{Direction: ScaleDown, Target: workers - step, Reason: "utilisation sustained below scale-down threshold with an empty queue"}
		}
		a.downStreak = 0
	}

	select {
	case a.decisions <- decision:
	default:
	}
}
