package job

import (
	"context"
	"errors"
	"testing"

	"github.com/taskforge/taskforge/pkg/future"
	"github.com/taskforge/taskforge/pkg/taskerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderBuildsCallbackJob(t *testing.T) {
	token := future.NewCancelToken()
	j := NewBuilder().
		Name("unit").
		Priority(RealTime).
		CancelToken(token).
		Work(func(ctx context.Context) error { return nil }).
		Build()

	assert.Equal(t, "unit", j.Name())
	assert.Equal(t, RealTime, j.Priority())
	assert.Equal(t, token, j.CancelToken())
	assert.NotZero(t, j.ID())
}

func TestBuilderDefaultsToBatchPriority(t *testing.T) {
	j := NewBuilder().Work(func(ctx context.Context) error { return nil }).Build()
	assert.Equal(t, Batch, j.Priority())
}

func TestBuilderPanicsWithoutWork(t *testing.T) {
	assert.Panics(t, func() {
		NewBuilder().Name("no-op").Build()
	})
}

func TestJobIDsAreMonotonicAndUnique(t *testing.T) {
	a := NewBuilder().Work(func(ctx context.Context) error { return nil }).Build()
	b := NewBuilder().Work(func(ctx context.Context) error { return nil }).Build()
	assert.Less(t, a.ID(), b.ID())
}

func TestExecuteReturnsWorkError(t *testing.T) {
	boom := errors.New("boom")
	j := NewBuilder().Work(func(ctx context.Context) error { return boom }).Build()
	err := j.Execute(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestExecuteInvokesOnErrorHook(t *testing.T) {
	var captured *taskerr.ErrorInfo
	j := NewBuilder().
		Name("failing").
		Work(func(ctx context.Context) error { return errors.New("bad") }).
		OnError(func(info *taskerr.ErrorInfo) { captured = info }).
		Build()

	err := j.Execute(context.Background())
	require.Error(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, taskerr.JobExecutionFailed, captured.Code)
}

func TestExecuteSkipsOnErrorHookOnSuccess(t *testing.T) {
	called := false
	j := NewBuilder().
		Work(func(ctx context.Context) error { return nil }).
		OnError(func(info *taskerr.ErrorInfo) { called = true }).
		Build()

	err := j.Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, called)
}

func TestTypeStringAndAllTypesOrder(t *testing.T) {
	assert.Equal(t, "RealTime", RealTime.String())
	assert.Equal(t, "Batch", Batch.String())
	assert.Equal(t, "Background", Background.String())
	assert.Equal(t, []Type{RealTime, Batch, Background}, AllTypes)
}
