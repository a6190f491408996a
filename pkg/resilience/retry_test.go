package resilience

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

func TestRetryPolicyDelayDoublesAndCapsAtMax(t *testing.T) {
	r := RetryPolicy{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 25 * time.Millisecond, Multiplier: 2, Jitter: 0}
	assert.Equal(t, 10*time.Millisecond, r.Delay(1))
	assert.Equal(t, 20*time.Millisecond, r.Delay(2))
	assert.Equal(t, 25*time.Millisecond, r.Delay(3)) // would be 40ms, capped at 25ms
}

func TestRetryPolicyWrapRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	inner := job.NewBuilder().Name("flaky").Work(func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}).Build()

	r := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1, RetryOn: func(*taskerr.ErrorInfo) bool { return true }}
	wrapped := r.Wrap(inner)

	err := wrapped.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	inner := job.NewBuilder().Name("always-fails").Work(func(ctx context.Context) error {
		attempts++
		return errors.New("permanent")
	}).Build()

	r := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1, RetryOn: func(*taskerr.ErrorInfo) bool { return true }}
	wrapped := r.Wrap(inner)

	err := wrapped.Execute(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyRetryOnFalseStopsImmediately(t *testing.T) {
	attempts := 0
	inner := job.NewBuilder().Name("non-retryable").Work(func(ctx context.Context) error {
		attempts++
		return errors.New("do not retry")
	}).Build()

	r := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Millisecond, RetryOn: func(*taskerr.ErrorInfo) bool { return false }}
	wrapped := r.Wrap(inner)

	err := wrapped.Execute(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicyRespectsCancelTokenBetweenAttempts(t *testing.T) {
	cancelToken := future.NewCancelToken()

	attempts := 0
	inner := job.NewBuilder().Name("cancellable").CancelToken(cancelToken).Work(func(ctx context.Context) error {
		attempts++
		cancelToken.Cancel()
		return errors.New("fails then cancelled")
	}).Build()

	r := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Millisecond, RetryOn: func(*taskerr.ErrorInfo) bool { return true }}
	wrapped := r.Wrap(inner)

	err := wrapped.Execute(context.Background())
	assert.ErrorIs(t, err, taskerr.ErrOperationCancelled)
	assert.Equal(t, 1, attempts)
}
