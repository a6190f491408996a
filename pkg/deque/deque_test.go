package deque

import (
	"context"
	"sync"
	"testing"

	"github.com/taskforge/taskforge/pkg/job"
	"github.com/stretchr/testify/assert"
)

func newTestJob(name string) job.Job {
	return job.NewBuilder().Name(name).Work(func(ctx context.Context) error { return nil }).Build()
}

func TestPushBottomPopBottomLIFO(t *testing.T) {
	d := New()
	a := newTestJob("a")
	b := newTestJob("b")
	d.PushBottom(a)
	d.PushBottom(b)

	v, ok := d.PopBottom()
	assert.True(t, ok)
	assert.Equal(t, b, v)

	v, ok = d.PopBottom()
	assert.True(t, ok)
	assert.Equal(t, a, v)

	_, ok = d.PopBottom()
	assert.False(t, ok)
}

func TestStealTopFIFO(t *testing.T) {
	d := New()
	a := newTestJob("a")
	b := newTestJob("b")
	d.PushBottom(a)
	d.PushBottom(b)

	v, ok := d.StealTop()
	assert.True(t, ok)
	assert.Equal(t, a, v)
}

func TestStealTopOnEmptyFails(t *testing.T) {
	d := New()
	_, ok := d.StealTop()
	assert.False(t, ok)
}

func TestGrowBeyondInitialCapacity(t *testing.T) {
	d := New()
	for i := 0; i < DefaultInitialCapacity*4; i++ {
		d.PushBottom(newTestJob("x"))
	}
	assert.Equal(t, DefaultInitialCapacity*4, d.Len())

	count := 0
	for {
		if _, ok := d.PopBottom(); !ok {
			break
		}
		count++
	}
	assert.Equal(t, DefaultInitialCapacity*4, count)
}

func TestConcurrentOwnerAndThievesConserveCount(t *testing.T) {
	d := New()
	const n = 2000
	for i := 0; i < n; i++ {
		d.PushBottom(newTestJob("x"))
	}

	var mu sync.Mutex
	popped := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := d.StealTop(); ok {
					mu.Lock()
					popped++
					mu.Unlock()
				} else if d.Len() <= 0 {
					return
				}
			}
		}()
	}

	for {
		if _, ok := d.PopBottom(); ok {
			mu.Lock()
			popped++
			mu.Unlock()
		} else if d.Len() <= 0 {
			break
		}
	}
	wg.Wait()

	assert.Equal(t, n, popped)
}
