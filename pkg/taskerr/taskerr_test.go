package taskerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorInfoError(t *testing.T) {
	e := New(QueueFull, "queue is full")
	assert.Equal(t, "QueueFull: queue is full", e.Error())

	wrapped := Wrap(JobExecutionFailed, "boom", errors.New("underlying"))
	assert.Equal(t, "JobExecutionFailed: boom: underlying", wrapped.Error())
}

func TestErrorInfoUnwrap(t *testing.T) {
	source := errors.New("root cause")
	wrapped := Wrap(Timeout, "deadline", source)
	assert.Equal(t, source, errors.Unwrap(wrapped))
}

func TestErrorInfoIsMatchesByCode(t *testing.T) {
	a := New(CircuitOpen, "first message")
	b := New(CircuitOpen, "second message")
	assert.True(t, errors.Is(a, b))

	c := New(CircuitHalfOpen, "other code")
	assert.False(t, errors.Is(a, c))
}

func TestSentinelsMatchViaErrorsIs(t *testing.T) {
	wrapped := Wrap(QueueStopped, "enqueue after stop", nil)
	assert.True(t, errors.Is(wrapped, ErrQueueStopped))
	assert.False(t, errors.Is(wrapped, ErrQueueFull))
}

func TestCodeStringUnknown(t *testing.T) {
	assert.Equal(t, "InvalidArgument", InvalidArgument.String())
	assert.Contains(t, Code(999).String(), "Code(999)")
}
