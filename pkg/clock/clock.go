// Package clock provides an injectable time source so components that
// measure elapsed time can be tested deterministically. Elapsed-time
// calculations go through Since, which uses Go's monotonic clock on the
// system implementation and is therefore immune to wall-clock adjustment.
package clock

import (
	"sync"
	"time"
)

// Clock is the time capability injected into components that need
// current time or elapsed-time measurement.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// System returns the real clock backed by the runtime's monotonic source.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time                  { return time.Now() }
func (systemClock) Since(t time.Time) time.Duration { return time.Since(t) }

// Simulated is a manually advanced clock for tests. The zero value is not
// usable; construct with NewSimulated.
type Simulated struct {
	mu  sync.Mutex
	now time.Time
}

// NewSimulated creates a simulated clock starting at the given instant.
func NewSimulated(start time.Time) *Simulated {
	return &Simulated{now: start}
}

// Now returns the simulated current time.
func (s *Simulated) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Since returns the simulated elapsed time since t.
func (s *Simulated) Since(t time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now.Sub(t)
}

// Advance moves the simulated clock forward by d.
func (s *Simulated) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

// Set moves the simulated clock to the given instant.
func (s *Simulated) Set(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = t
}
