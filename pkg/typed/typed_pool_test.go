package typed

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taskforge/taskforge/pkg/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedPoolExecutesSubmittedJob(t *testing.T) {
	p := NewTypedPool("test", []GroupSpec{{Types: job.AllTypes, Workers: 2}}, true)
	p.Start()
	defer p.Stop()

	var ran atomic.Bool
	j := job.NewBuilder().Name("unit").Work(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}).Build()

	f, err := p.Submit(j)
	require.NoError(t, err)

	_, err = f.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestTypedPoolRestrictsWorkerGroupToItsTypes(t *testing.T) {
	p := NewTypedPool("restricted", []GroupSpec{
		{Types: []job.Type{job.RealTime}, Workers: 1},
		{Types: []job.Type{job.Background}, Workers: 1},
	}, true)
	p.Start()
	defer p.Stop()

	var rtRan, bgRan atomic.Bool
	rt := job.NewBuilder().Name("rt").Priority(job.RealTime).Work(func(ctx context.Context) error {
		rtRan.Store(true)
		return nil
	}).Build()
	bg := job.NewBuilder().Name("bg").Priority(job.Background).Work(func(ctx context.Context) error {
		bgRan.Store(true)
		return nil
	}).Build()

	fRt, err := p.Submit(rt)
	require.NoError(t, err)
	fBg, err := p.Submit(bg)
	require.NoError(t, err)

	_, err = fRt.Get(context.Background())
	require.NoError(t, err)
	_, err = fBg.Get(context.Background())
	require.NoError(t, err)

	assert.True(t, rtRan.Load())
	assert.True(t, bgRan.Load())
}

func TestTypedPoolConcurrentSubmitAllComplete(t *testing.T) {
	p := NewTypedPool("concurrent", []GroupSpec{{Types: job.AllTypes, Workers: 4}}, true)
	p.Start()
	defer p.Stop()

	const n = 200
	var wg sync.WaitGroup
	var completed atomic.Int64
	for i := 0; i < n; i++ {
		wg.Add(1)
		j := job.NewBuilder().Name("x").Work(func(ctx context.Context) error {
			completed.Add(1)
			return nil
		}).Build()
		f, err := p.Submit(j)
		require.NoError(t, err)
		go func() {
			defer wg.Done()
			_, _ = f.Get(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(n), completed.Load())
}

func TestTypedPoolStopIsIdempotentAndDrainsWorkers(t *testing.T) {
	p := NewTypedPool("stoppable", []GroupSpec{{Types: job.AllTypes, Workers: 2}}, false)
	p.Start()

	assert.NotPanics(t, func() {
		p.Stop()
		p.Stop()
	})
}

type fakeTypedMetrics struct {
	submitted atomic.Int64
	started   atomic.Int64
	completed atomic.Int64
}

func (m *fakeTypedMetrics) JobSubmitted()                    { m.submitted.Add(1) }
func (m *fakeTypedMetrics) JobStarted()                      { m.started.Add(1) }
func (m *fakeTypedMetrics) JobCompleted(bool, time.Duration) { m.completed.Add(1) }
func (m *fakeTypedMetrics) QueueDepth(int)                   {}
func (m *fakeTypedMetrics) WorkerCount(int)                  {}

func TestTypedPoolRecordsMetricsAndUtilisation(t *testing.T) {
	rec := &fakeTypedMetrics{}
	p := NewTypedPool("metrics", []GroupSpec{{Types: job.AllTypes, Workers: 1}}, false).WithMetrics(rec)
	p.Start()
	defer p.Stop()

	j := job.NewBuilder().Work(func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}).Build()
	f, err := p.Submit(j)
	require.NoError(t, err)
	_, err = f.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), rec.submitted.Load())
	assert.Equal(t, int64(1), rec.started.Load())
	assert.Equal(t, int64(1), rec.completed.Load())
	assert.Greater(t, p.Utilisation(), 0.0)
}
