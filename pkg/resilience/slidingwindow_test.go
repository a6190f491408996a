package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindowAccumulatesWithinWindow(t *testing.T) {
	w := NewSlidingWindow(time.Second, 10)
	w.Add(1)
	w.Add(2)
	w.Add(3)
	assert.Equal(t, int64(6), w.Sum())
}

func TestSlidingWindowDiscardsStaleBuckets(t *testing.T) {
	w := NewSlidingWindow(30*time.Millisecond, 3)
	w.Add(5)
	assert.Equal(t, int64(5), w.Sum())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int64(0), w.Sum())
}

func TestSlidingWindowRate(t *testing.T) {
	w := NewSlidingWindow(time.Second, 10)
	w.Add(10)
	assert.InDelta(t, 10.0, w.Rate(), 0.5)
}

func TestFailureWindowRateAndReset(t *testing.T) {
	w := NewFailureWindow(time.Second, 10)
	w.RecordSuccess()
	w.RecordSuccess()
	w.RecordFailure()

	assert.Equal(t, int64(1), w.Failures())
	assert.Equal(t, int64(2), w.Successes())
	assert.InDelta(t, 1.0/3.0, w.FailureRate(), 0.01)

	w.Reset()
	assert.Equal(t, int64(0), w.Failures())
	assert.Equal(t, int64(0), w.Successes())
	assert.Equal(t, 0.0, w.FailureRate())
}
