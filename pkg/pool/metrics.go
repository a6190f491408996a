package pool

import (
	"sync/atomic"
	"time"

	"github.com/taskforge/taskforge/pkg/resilience"
)

// countingMetrics is the built-in MetricsRecorder used when a Builder
// requests MetricsBasic/MetricsDetailed without installing a custom
// recorder. It keeps plain atomic counters; internal/metrics provides
// the Prometheus-backed alternative for production export.
type countingMetrics struct {
	submitted  atomic.Int64
	started    atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
	queueDepth atomic.Int64
	workers    atomic.Int64
	lastState  atomic.Int32
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{}
}

func (m *countingMetrics) JobSubmitted() { m.submitted.Add(1) }
func (m *countingMetrics) JobStarted()   { m.started.Add(1) }

func (m *countingMetrics) JobCompleted(success bool, _ time.Duration) {
	m.completed.Add(1)
	if !success {
		m.failed.Add(1)
	}
}

func (m *countingMetrics) QueueDepth(n int)  { m.queueDepth.Store(int64(n)) }
func (m *countingMetrics) WorkerCount(n int) { m.workers.Store(int64(n)) }

func (m *countingMetrics) CircuitBreakerState(state resilience.State) {
	m.lastState.Store(int32(state))
}

// Snapshot is a point-in-time read of every counter, used by tests.
type Snapshot struct {
	Submitted, Started, Completed, Failed int64
	QueueDepth, Workers                   int64
}

func (m *countingMetrics) Snapshot() Snapshot {
	return Snapshot{
		Submitted:  m.submitted.Load(),
		Started:    m.started.Load(),
		Completed:  m.completed.Load(),
		Failed:     m.failed.Load(),
		QueueDepth: m.queueDepth.Load(),
		Workers:    m.workers.Load(),
	}
}
