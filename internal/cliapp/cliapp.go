// Package cliapp builds the taskforge command-line tool, following
// the teacher's internal/cli.BuildCLI()/sub-command idiom. The
// distributed `run --mode master|worker` flags are dropped: this
// runtime has no cross-process IPC (Non-goal), so there is only one
// in-process `run` command.
package cliapp

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taskforge/taskforge/internal/metrics"
	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/pool"
	"github.com/taskforge/taskforge/pkg/queue"
	"github.com/taskforge/taskforge/pkg/resilience"
)

// RuntimeConfig is the YAML schema for `taskforge run -c <file>`,
// generalizing the teacher's Config (worker/wal/snapshot/metrics
// sections) to pool sizing, queue kind, circuit breaker, autoscaler,
// rate limiter, and metrics port.
type RuntimeConfig struct {
	Pool struct {
		Name         string `yaml:"name"`
		Workers      int    `yaml:"workers"`
		Queue        string `yaml:"queue"` // mutex | lockfree | adaptive
		WorkStealing bool   `yaml:"work_stealing"`
	} `yaml:"pool"`

	CircuitBreaker struct {
		Enabled          bool    `yaml:"enabled"`
		FailureThreshold int     `yaml:"failure_threshold"`
		SuccessThreshold int     `yaml:"success_threshold"`
		TimeoutSeconds   int     `yaml:"timeout_seconds"`
		FailureRate      float64 `yaml:"failure_rate_threshold"`
	} `yaml:"circuit_breaker"`

	Autoscaler struct {
		Enabled    bool `yaml:"enabled"`
		MinWorkers int  `yaml:"min_workers"`
		MaxWorkers int  `yaml:"max_workers"`
	} `yaml:"autoscaler"`

	RateLimiter struct {
		Enabled       bool    `yaml:"enabled"`
		RatePerSecond float64 `yaml:"rate_per_second"`
		Burst         int64   `yaml:"burst"`
	} `yaml:"rate_limiter"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

var configFile string

// BuildCLI assembles the root `taskforge` command.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "taskforge",
		Short:   "taskforge: a generic, in-process task-execution runtime",
		Version: "0.1.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildBenchCommand())

	return rootCmd
}

func loadConfig(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg RuntimeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return &cfg, nil
}

func queueKindFromString(s string) queue.Kind {
	switch s {
	case "lockfree":
		return queue.KindLockFree
	case "adaptive":
		return queue.KindAdaptive
	default:
		return queue.KindMutex
	}
}

// buildPool assembles a *pool.Pool from a RuntimeConfig, wiring the
// circuit breaker, autoscaler, and rate limiter policies the config
// enables.
func buildPool(cfg *RuntimeConfig) (*pool.Pool, *metrics.Collector, error) {
	b := pool.NewBuilder(cfg.Pool.Name).
		Workers(cfg.Pool.Workers).
		WithQueue(queueKindFromString(cfg.Pool.Queue)).
		WithWorkStealing(pool.StealConfig{Enabled: cfg.Pool.WorkStealing, IdlePollInterval: 20 * time.Millisecond})

	if cfg.CircuitBreaker.Enabled {
		breakerCfg := resilience.DefaultBreakerConfig()
		breakerCfg.FailureThreshold = cfg.CircuitBreaker.FailureThreshold
		breakerCfg.SuccessThreshold = cfg.CircuitBreaker.SuccessThreshold
		breakerCfg.Timeout = time.Duration(cfg.CircuitBreaker.TimeoutSeconds) * time.Second
		if cfg.CircuitBreaker.FailureRate > 0 {
			breakerCfg.FailureRateThreshold = cfg.CircuitBreaker.FailureRate
		}
		b = b.WithCircuitBreaker(breakerCfg)
	}

	if cfg.RateLimiter.Enabled {
		bucket := resilience.NewTokenBucket(float64(cfg.RateLimiter.Burst), cfg.RateLimiter.RatePerSecond)
		b = b.WithPolicy(&resilience.RateLimitPolicy{Bucket: bucket})
	}

	if cfg.Autoscaler.Enabled {
		ascfg := resilience.DefaultAutoscalerConfig()
		ascfg.MinWorkers = cfg.Autoscaler.MinWorkers
		ascfg.MaxWorkers = cfg.Autoscaler.MaxWorkers
		b = b.WithAutoscaler(ascfg)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Pool.Name)
		b = b.WithMetricsRecorder(collector)
	}

	p, err := b.BuildAndStart()
	return p, collector, err
}

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a pool from a config file and feed it a demo workload",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystem()
		},
	}
	return cmd
}

func runSystem() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	p, collector, err := buildPool(cfg)
	if err != nil {
		return fmt.Errorf("failed to start pool: %w", err)
	}

	if collector != nil {
		go func() {
			log.Printf("starting metrics server on :%d\n", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				slog.Default().Error("metrics server stopped", "error", err)
			}
		}()
	}

	stopDemo := make(chan struct{})
	go demoWorkload(p, stopDemo)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("received shutdown signal, stopping gracefully...")
	close(stopDemo)
	return p.Stop(false)
}

// demoWorkload continuously submits no-op jobs, standing in for the
// teacher's enqueue-from-file command — this runtime has no external
// job source, so `run` just keeps the pool busy until a signal arrives.
func demoWorkload(p *pool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			j := job.NewBuilder().Name("demo").Work(func(ctx context.Context) error {
				return nil
			}).Build()
			_, _ = p.Submit(context.Background(), j, pool.SubmitOptions{})
		}
	}
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the pool configuration a config file would build",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
	return cmd
}

func showStatus() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	fmt.Println("taskforge runtime configuration")
	fmt.Printf("  config file:     %s\n", configFile)
	fmt.Printf("  pool name:       %s\n", cfg.Pool.Name)
	fmt.Printf("  workers:         %d\n", cfg.Pool.Workers)
	fmt.Printf("  queue kind:      %s\n", cfg.Pool.Queue)
	fmt.Printf("  work stealing:   %t\n", cfg.Pool.WorkStealing)
	fmt.Printf("  circuit breaker: %t\n", cfg.CircuitBreaker.Enabled)
	fmt.Printf("  autoscaler:      %t (min=%d max=%d)\n", cfg.Autoscaler.Enabled, cfg.Autoscaler.MinWorkers, cfg.Autoscaler.MaxWorkers)
	fmt.Printf("  rate limiter:    %t (rate=%.1f/s burst=%d)\n", cfg.RateLimiter.Enabled, cfg.RateLimiter.RatePerSecond, cfg.RateLimiter.Burst)
	if cfg.Metrics.Enabled {
		fmt.Printf("  metrics:         enabled on :%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Println("  metrics:         disabled")
	}
	return nil
}

func buildBenchCommand() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive the throughput scenario: submit N no-op jobs and report elapsed time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(n)
		},
	}
	cmd.Flags().IntVar(&n, "n", 10000, "number of jobs to submit")
	return cmd
}

func runBench(n int) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	p, _, err := buildPool(cfg)
	if err != nil {
		return fmt.Errorf("failed to start pool: %w", err)
	}
	defer p.Stop(false)

	start := time.Now()
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		j := job.NewBuilder().Name("bench").Work(func(ctx context.Context) error {
			done <- struct{}{}
			return nil
		}).Build()
		if _, err := p.Submit(context.Background(), j, pool.SubmitOptions{}); err != nil {
			return fmt.Errorf("submit failed after %d jobs: %w", i, err)
		}
	}
	for i := 0; i < n; i++ {
		<-done
	}
	elapsed := time.Since(start)

	fmt.Printf("submitted and completed %d jobs in %s (%.0f jobs/sec)\n", n, elapsed, float64(n)/elapsed.Seconds())
	return nil
}
