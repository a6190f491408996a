package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taskforge/taskforge/pkg/future"
	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/queue"
	"github.com/taskforge/taskforge/pkg/taskerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRejectsZeroWorkers(t *testing.T) {
	p, err := NewBuilder("t").Workers(1).Build()
	require.NoError(t, err)
	err = p.Start(0)
	assert.ErrorIs(t, err, taskerr.ErrNoWorkers)
}

func TestStartTwiceReturnsAlreadyRunning(t *testing.T) {
	p, err := NewBuilder("t").Workers(2).BuildAndStart()
	require.NoError(t, err)
	defer p.Stop(true)

	err = p.Start(1)
	assert.ErrorIs(t, err, taskerr.ErrAlreadyRunning)
}

func TestSubmitBeforeStartReturnsQueueStopped(t *testing.T) {
	p, err := NewBuilder("t").Workers(1).Build()
	require.NoError(t, err)

	j := job.NewBuilder().Work(func(ctx context.Context) error { return nil }).Build()
	_, err = p.Submit(context.Background(), j, SubmitOptions{})
	assert.ErrorIs(t, err, taskerr.ErrQueueStopped)
}

func TestSubmitRunsJobAndResolvesFuture(t *testing.T) {
	p, err := NewBuilder("t").Workers(2).BuildAndStart()
	require.NoError(t, err)
	defer p.Stop(false)

	var ran atomic.Bool
	j := job.NewBuilder().Name("unit").Work(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}).Build()

	f, err := p.Submit(context.Background(), j, SubmitOptions{})
	require.NoError(t, err)

	_, err = f.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestSubmitPropagatesJobError(t *testing.T) {
	p, err := NewBuilder("t").Workers(1).BuildAndStart()
	require.NoError(t, err)
	defer p.Stop(false)

	boom := errors.New("boom")
	j := job.NewBuilder().Work(func(ctx context.Context) error { return boom }).Build()

	f, err := p.Submit(context.Background(), j, SubmitOptions{})
	require.NoError(t, err)

	_, err = f.Get(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSubmitFuncReturnsTypedResult(t *testing.T) {
	p, err := NewBuilder("t").Workers(2).BuildAndStart()
	require.NoError(t, err)
	defer p.Stop(false)

	f, err := SubmitFunc(p, context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	}, SubmitOptions{})
	require.NoError(t, err)

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestHighConcurrencyThroughput(t *testing.T) {
	p, err := NewBuilder("throughput").
		Workers(8).
		WithWorkStealing(StealConfig{Enabled: true, IdlePollInterval: 5 * time.Millisecond}).
		BuildAndStart()
	require.NoError(t, err)
	defer p.Stop(false)

	const n = 10000
	var completed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		j := job.NewBuilder().Work(func(ctx context.Context) error {
			completed.Add(1)
			return nil
		}).Build()
		f, err := p.Submit(context.Background(), j, SubmitOptions{})
		require.NoError(t, err)
		go func() {
			defer wg.Done()
			_, _ = f.Get(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(n), completed.Load())
}

func TestSubmitBatchReturnsOneFuturePerJob(t *testing.T) {
	p, err := NewBuilder("t").Workers(2).BuildAndStart()
	require.NoError(t, err)
	defer p.Stop(false)

	jobs := make([]job.Job, 5)
	for i := range jobs {
		jobs[i] = job.NewBuilder().Work(func(ctx context.Context) error { return nil }).Build()
	}
	futures, err := p.SubmitBatch(context.Background(), jobs, SubmitOptions{})
	require.NoError(t, err)
	assert.Len(t, futures, 5)

	for _, f := range futures {
		_, err := f.Get(context.Background())
		require.NoError(t, err)
	}
}

func TestWhenAllCollectsEveryValue(t *testing.T) {
	p, err := NewBuilder("t").Workers(4).BuildAndStart()
	require.NoError(t, err)
	defer p.Stop(false)

	results := make([]*future.Future[int], 0, 3)
	for i := 0; i < 3; i++ {
		n := i
		f, err := SubmitFunc(p, context.Background(), func(ctx context.Context) (int, error) {
			return n * n, nil
		}, SubmitOptions{})
		require.NoError(t, err)
		results = append(results, f)
	}

	values, err := WhenAll(context.Background(), results)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 4}, values)
}

func TestWhenAnyResolvesFirstCompletion(t *testing.T) {
	p, err := NewBuilder("t").Workers(4).BuildAndStart()
	require.NoError(t, err)
	defer p.Stop(false)

	slow, err := SubmitFunc(p, context.Background(), func(ctx context.Context) (int, error) {
		time.Sleep(100 * time.Millisecond)
		return 1, nil
	}, SubmitOptions{})
	require.NoError(t, err)

	fast, err := SubmitFunc(p, context.Background(), func(ctx context.Context) (int, error) {
		return 2, nil
	}, SubmitOptions{})
	require.NoError(t, err)

	idx, v, err := WhenAny(context.Background(), []*future.Future[int]{slow, fast})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 2, v)
}

func TestGracefulStopDrainsQueuedJobs(t *testing.T) {
	p, err := NewBuilder("t").Workers(1).BuildAndStart()
	require.NoError(t, err)

	var completed atomic.Int64
	const n = 20
	for i := 0; i < n; i++ {
		j := job.NewBuilder().Work(func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			completed.Add(1)
			return nil
		}).Build()
		_, err := p.Submit(context.Background(), j, SubmitOptions{})
		require.NoError(t, err)
	}

	require.NoError(t, p.Stop(false))
	assert.Equal(t, int64(n), completed.Load())
}

func TestImmediateStopResolvesPendingWithQueueStopped(t *testing.T) {
	p, err := NewBuilder("t").Workers(1).BuildAndStart()
	require.NoError(t, err)

	var started = make(chan struct{})
	blocker := job.NewBuilder().Work(func(ctx context.Context) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return nil
	}).Build()

	_, err = p.Submit(context.Background(), blocker, SubmitOptions{})
	require.NoError(t, err)
	<-started

	var queued []job.Job
	for i := 0; i < 5; i++ {
		queued = append(queued, job.NewBuilder().Work(func(ctx context.Context) error { return nil }).Build())
	}
	futures, err := p.SubmitBatch(context.Background(), queued, SubmitOptions{})
	require.NoError(t, err)

	require.NoError(t, p.Stop(true))

	for _, f := range futures {
		_, err := f.Get(context.Background())
		assert.ErrorIs(t, err, taskerr.ErrQueueStopped)
	}
}

func TestWorkerCountAndUtilisationReflectLoad(t *testing.T) {
	p, err := NewBuilder("t").Workers(3).BuildAndStart()
	require.NoError(t, err)
	defer p.Stop(false)

	assert.Equal(t, 3, p.WorkerCount())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		j := job.NewBuilder().Work(func(ctx context.Context) error {
			time.Sleep(2 * time.Millisecond)
			return nil
		}).Build()
		f, err := p.Submit(context.Background(), j, SubmitOptions{})
		require.NoError(t, err)
		go func() { defer wg.Done(); _, _ = f.Get(context.Background()) }()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, p.Utilisation(), 0.0)
}

func TestAddAndRemoveWorkers(t *testing.T) {
	p, err := NewBuilder("t").Workers(2).BuildAndStart()
	require.NoError(t, err)
	defer p.Stop(true)

	require.NoError(t, p.AddWorkers(3))
	assert.Equal(t, 5, p.WorkerCount())

	require.NoError(t, p.RemoveWorkers(2))
	assert.Equal(t, 3, p.WorkerCount())
}

func TestQueueSizeReflectsAdaptiveQueueBacking(t *testing.T) {
	p, err := NewBuilder("t").Workers(1).WithQueue(queue.KindAdaptive).Build()
	require.NoError(t, err)
	require.NoError(t, p.Start(1))
	defer p.Stop(true)

	assert.Equal(t, 0, p.QueueSize())
}
