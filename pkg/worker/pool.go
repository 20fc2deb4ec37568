// Package worker provides a generic worker pool for concurrent task
// processing with bounded queueing.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNilProcessor is returned when a pool is created without a processor
var ErrNilProcessor = errors.New("worker: processor must not be nil")

// ErrQueueFull is returned by Submit when the work queue is saturated
var ErrQueueFull = errors.New("worker: queue full")

// ErrStopped is returned by Submit after the pool has stopped
var ErrStopped = errors.New("worker: pool stopped")

// Pool processes work items of type T on a fixed set of goroutines.
type Pool[T any] struct {
	workers   int
	processor func(context.Context, T) error

	workChan chan T
	wg       sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	// Statistics (atomic)
	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a pool with the given concurrency and queue size.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error) (*Pool[T], error) {
	if processor == nil {
		return nil, ErrNilProcessor
	}
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Pool[T]{
		workers:   workers,
		processor: processor,
		workChan:  make(chan T, queueSize),
	}, nil
}

// Start launches the worker goroutines.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if p.started {
		return errors.New("worker: pool already started")
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-p.workChan:
					if !ok {
						return
					}
					if err := p.processor(ctx, item); err != nil {
						p.failed.Add(1)
					} else {
						p.processed.Add(1)
					}
				}
			}
		}()
	}
	return nil
}

// Submit queues a work item without blocking. The lock is held across
// the send so Stop cannot close the channel mid-submit; the send is
// non-blocking, so the critical section stays short.
func (p *Pool[T]) Submit(item T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.workChan <- item:
		p.submitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight work to finish. The
// channel is closed under the lifecycle lock, mutually exclusive with
// any in-progress Submit.
func (p *Pool[T]) Stop() {
	p.lifecycleMu.Lock()
	if p.stopped || !p.started {
		p.stopped = true
		p.lifecycleMu.Unlock()
		return
	}
	p.stopped = true
	close(p.workChan)
	p.lifecycleMu.Unlock()

	p.wg.Wait()
}

// Stats returns submitted, processed and failed counts.
func (p *Pool[T]) Stats() (submitted, processed, failed int64) {
	return p.submitted.Load(), p.processed.Load(), p.failed.Load()
}
