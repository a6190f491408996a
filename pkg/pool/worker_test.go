package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskforge/taskforge/pkg/future"
	"github.com/taskforge/taskforge/pkg/job"
	"github.com/taskforge/taskforge/pkg/taskerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRecoversPanicIntoJobExecutionFailed(t *testing.T) {
	p, err := NewBuilder("t").Workers(1).BuildAndStart()
	require.NoError(t, err)
	defer p.Stop(true)

	j := job.NewBuilder().Work(func(ctx context.Context) error {
		panic("boom")
	}).Build()

	f, err := p.Submit(context.Background(), j, SubmitOptions{})
	require.NoError(t, err)

	_, err = f.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, taskerr.ErrJobExecutionFailed))
}

func TestExecuteRecoversNonErrorPanicValue(t *testing.T) {
	p, err := NewBuilder("t").Workers(1).BuildAndStart()
	require.NoError(t, err)
	defer p.Stop(true)

	j := job.NewBuilder().Work(func(ctx context.Context) error {
		panic(42)
	}).Build()

	f, err := p.Submit(context.Background(), j, SubmitOptions{})
	require.NoError(t, err)

	_, err = f.Get(context.Background())
	require.Error(t, err)
}

func TestWorkerCancelTokenAbortsWaitingJob(t *testing.T) {
	p, err := NewBuilder("t").Workers(1).BuildAndStart()
	require.NoError(t, err)
	defer p.Stop(true)

	token := future.NewCancelToken()
	started := make(chan struct{})
	j := job.NewBuilder().CancelToken(token).Work(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}).Build()

	f, err := p.Submit(context.Background(), j, SubmitOptions{})
	require.NoError(t, err)
	<-started

	token.Cancel()

	_, err = f.Get(context.Background())
	assert.Error(t, err)
}

func TestWorkerUtilisationIsZeroBeforeAnyWork(t *testing.T) {
	w := newWorker(0, nil, false)
	assert.Equal(t, 0.0, w.utilisation())
}

func TestWorkerUtilisationReflectsBusyIdleSplit(t *testing.T) {
	w := newWorker(0, nil, false)
	w.busyNs.Store(int64(3 * time.Second))
	w.idleNs.Store(int64(1 * time.Second))
	assert.InDelta(t, 0.75, w.utilisation(), 0.0001)
}
