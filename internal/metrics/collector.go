// Package metrics exposes pool/queue/breaker runtime state as
// Prometheus metrics, following the teacher's internal/metrics
// constructor-registers-everything idiom, re-pointed from the
// teacher's raft/job-recovery vocabulary (jobs_enqueued_total,
// recovery_time_seconds, ...) at spec.md's task-execution-runtime
// vocabulary (tasks_submitted_total, circuit_breaker_state, ...).
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskforge/taskforge/pkg/pool"
	"github.com/taskforge/taskforge/pkg/resilience"
	"github.com/taskforge/taskforge/pkg/typed"
)

// Collector implements pool.MetricsRecorder against Prometheus
// collectors, for callers that want scrape-able metrics instead of
// (or in addition to) the pool package's built-in atomic counters. Its
// method set also happens to satisfy typed.MetricsRecorder, so one
// Collector can back both an L3 pool.Pool and an L4 typed.TypedPool
// sharing the same pool name's labels.
type Collector struct {
	tasksSubmitted prometheus.Counter
	tasksStarted   prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	jobLatency     prometheus.Histogram
	queueDepth     prometheus.Gauge
	workerPoolSize prometheus.Gauge
	circuitBreaker prometheus.Gauge
}

var _ pool.MetricsRecorder = (*Collector)(nil)
var _ typed.MetricsRecorder = (*Collector)(nil)

// NewCollector builds and registers a fresh Collector against the
// default Prometheus registry, naming series after the pool name so
// multiple pools can be scraped from one process.
func NewCollector(poolName string) *Collector {
	labels := prometheus.Labels{"pool": poolName}

	c := &Collector{
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "tasks_submitted_total",
			Help:        "Total number of jobs submitted to the pool.",
			ConstLabels: labels,
		}),
		tasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "tasks_executed_total",
			Help:        "Total number of jobs a worker began executing.",
			ConstLabels: labels,
		}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "tasks_completed_total",
			Help:        "Total number of jobs that finished, successfully or not.",
			ConstLabels: labels,
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "tasks_failed_total",
			Help:        "Total number of jobs that finished with a non-nil error.",
			ConstLabels: labels,
		}),
		jobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "job_latency_seconds",
			Help:        "Job execution latency in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "queue_depth",
			Help:        "Current number of jobs waiting on the pool's queue.",
			ConstLabels: labels,
		}),
		workerPoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "worker_pool_size",
			Help:        "Current number of live worker goroutines.",
			ConstLabels: labels,
		}),
		circuitBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "circuit_breaker_state",
			Help:        "Circuit breaker state: 0=closed, 1=open, 2=half_open.",
			ConstLabels: labels,
		}),
	}

	prometheus.MustRegister(
		c.tasksSubmitted,
		c.tasksStarted,
		c.tasksCompleted,
		c.tasksFailed,
		c.jobLatency,
		c.queueDepth,
		c.workerPoolSize,
		c.circuitBreaker,
	)

	return c
}

func (c *Collector) JobSubmitted() { c.tasksSubmitted.Inc() }
func (c *Collector) JobStarted()   { c.tasksStarted.Inc() }

func (c *Collector) JobCompleted(success bool, duration time.Duration) {
	c.tasksCompleted.Inc()
	if !success {
		c.tasksFailed.Inc()
	}
	c.jobLatency.Observe(duration.Seconds())
}

func (c *Collector) QueueDepth(n int)  { c.queueDepth.Set(float64(n)) }
func (c *Collector) WorkerCount(n int) { c.workerPoolSize.Set(float64(n)) }

func (c *Collector) CircuitBreakerState(state resilience.State) {
	c.circuitBreaker.Set(float64(state))
}

// StartServer serves /metrics on port, exactly like the teacher's
// metrics.StartServer helper.
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
}
