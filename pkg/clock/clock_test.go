package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemClock(t *testing.T) {
	clk := System()
	start := clk.Now()
	assert.False(t, start.IsZero())
	assert.GreaterOrEqual(t, clk.Since(start), time.Duration(0))
}

func TestSimulatedClock(t *testing.T) {
	start := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	clk := NewSimulated(start)

	assert.Equal(t, start, clk.Now())
	assert.Equal(t, time.Duration(0), clk.Since(start))

	clk.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clk.Now())
	assert.Equal(t, 90*time.Second, clk.Since(start))

	later := start.Add(time.Hour)
	clk.Set(later)
	assert.Equal(t, later, clk.Now())
	assert.Equal(t, time.Hour, clk.Since(start))
}
