// Command demo builds a pool directly through the builder API (no
// config file) and drives a small mixed workload across it, printing
// progress the way the teacher's cmd/demo prints WAL/snapshot status —
// here the signal is queue depth, worker count, and circuit breaker
// state instead of recovered-job counts.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/pool"
	"github.com/taskforge/taskforge/pkg/queue"
	"github.com/taskforge/taskforge/pkg/resilience"
)

func main() {
	breakerCfg := resilience.DefaultBreakerConfig()
	breakerCfg.FailureThreshold = 5
	breakerCfg.Timeout = 2 * time.Second

	ascfg := resilience.DefaultAutoscalerConfig()
	ascfg.MinWorkers = 2
	ascfg.MaxWorkers = 16

	p, err := pool.NewBuilder("demo").
		Workers(4).
		WithQueue(queue.KindAdaptive).
		WithWorkStealing(pool.StealConfig{Enabled: true, IdlePollInterval: 10 * time.Millisecond}).
		WithCircuitBreaker(breakerCfg).
		WithAutoscaler(ascfg).
		WithNuma(true).
		BuildAndStart()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start pool: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ pool started (4 workers, adaptive queue, work stealing, circuit breaker, autoscaler)")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	stop := make(chan struct{})
	go driveWorkload(p, stop)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	fmt.Println("⚡ submitting a mixed success/failure workload, press Ctrl+C to stop")
	for {
		select {
		case <-sigCh:
			fmt.Println("\nreceived shutdown signal, draining and stopping...")
			close(stop)
			if err := p.Stop(false); err != nil {
				fmt.Fprintf(os.Stderr, "stop error: %v\n", err)
			}
			fmt.Println("✓ pool stopped")
			return
		case <-ticker.C:
			fmt.Printf("📊 workers=%d utilisation=%.2f queue=%d\n", p.WorkerCount(), p.Utilisation(), p.QueueSize())
		}
	}
}

var errSimulated = errors.New("simulated failure")

// driveWorkload submits a continuous stream of jobs, roughly 1 in 5 of
// which fails, enough to exercise the circuit breaker's trip/half-open
// cycle and give the autoscaler sustained load to react to.
func driveWorkload(p *pool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			j := job.NewBuilder().Name("demo-unit").Work(func(ctx context.Context) error {
				time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
				if rand.Intn(5) == 0 {
					return errSimulated
				}
				return nil
			}).Build()
			_, _ = p.Submit(context.Background(), j, pool.SubmitOptions{})
		}
	}
}
