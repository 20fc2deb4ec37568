package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolRequiresProcessor(t *testing.T) {
	_, err := NewPool[int](1, 1, nil)
	assert.ErrorIs(t, err, ErrNilProcessor)
}

func TestPoolProcessesSubmittedItems(t *testing.T) {
	var mu sync.Mutex
	var got []int

	p, err := NewPool(2, 16, func(_ context.Context, item int) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, item)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(i))
	}
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 5)

	submitted, processed, failed := p.Stats()
	assert.Equal(t, int64(5), submitted)
	assert.Equal(t, int64(5), processed)
	assert.Equal(t, int64(0), failed)
}

func TestPoolCountsFailures(t *testing.T) {
	p, err := NewPool(1, 4, func(_ context.Context, item int) error {
		if item%2 == 1 {
			return errors.New("odd item")
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(i))
	}
	p.Stop()

	_, processed, failed := p.Stats()
	assert.Equal(t, int64(2), processed)
	assert.Equal(t, int64(2), failed)
}

func TestSubmitAfterStop(t *testing.T) {
	p, err := NewPool(1, 1, func(context.Context, int) error { return nil })
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	p.Stop()

	assert.ErrorIs(t, p.Submit(1), ErrStopped)
}

func TestSubmitFullQueue(t *testing.T) {
	// Never started: nothing drains the queue.
	p, err := NewPool(1, 1, func(context.Context, int) error { return nil })
	require.NoError(t, err)

	require.NoError(t, p.Submit(1))
	assert.ErrorIs(t, p.Submit(2), ErrQueueFull)
}

func TestStartTwice(t *testing.T) {
	p, err := NewPool(1, 1, func(context.Context, int) error { return nil })
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))
	p.Stop()
}

func TestConcurrentSubmitAndStop(t *testing.T) {
	// Submitters race against Stop; every Submit must either enqueue or
	// return an error, never send on the closed channel.
	p, err := NewPool(2, 8, func(context.Context, int) error { return nil })
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				switch err := p.Submit(i); {
				case err == nil:
				case errors.Is(err, ErrQueueFull):
					// workers still draining, keep going
				case errors.Is(err, ErrStopped):
					return
				default:
					t.Errorf("unexpected submit error: %v", err)
					return
				}
			}
		}()
	}
	p.Stop()
	wg.Wait()
}

func TestDefaultsApplied(t *testing.T) {
	p, err := NewPool(0, 0, func(context.Context, int) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 4, p.workers)
	assert.Equal(t, 256, cap(p.workChan))
}
