package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakyip/sortengine/errors"
	"github.com/zakyip/sortengine/parcel"
	"github.com/zakyip/sortengine/pkg/clock"
)

var testWindow = Window{
	MinWait:          1 * time.Second,
	MaxWait:          30 * time.Second,
	ExceptionChuteID: "EXC",
}

func newTestQueue(t *testing.T, opts ...Option) (*Queue, *clock.Simulated) {
	t.Helper()
	clk := clock.NewSimulated(time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC))
	q, err := NewQueue(testWindow, append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	return q, clk
}

func TestNewQueueRejectsInvalidWindow(t *testing.T) {
	tests := []struct {
		name   string
		window Window
	}{
		{name: "negative min wait", window: Window{MinWait: -time.Second, MaxWait: time.Second, ExceptionChuteID: "EXC"}},
		{name: "zero max wait", window: Window{MinWait: 0, MaxWait: 0, ExceptionChuteID: "EXC"}},
		{name: "min at max", window: Window{MinWait: 5 * time.Second, MaxWait: 5 * time.Second, ExceptionChuteID: "EXC"}},
		{name: "missing exception chute", window: Window{MinWait: time.Second, MaxWait: time.Minute}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewQueue(tt.window)
			assert.ErrorIs(t, err, errors.ErrInvalidWindow)
		})
	}
}

func TestEnqueueAssignsGapFreeSequence(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for i, id := range []string{"1001", "1002", "1003"} {
		p, err := q.Enqueue(ctx, id, "", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), p.SequenceNumber)
		assert.Equal(t, id, p.ParcelID)
	}
	assert.Equal(t, 3, q.Depth())
}

func TestEnqueueRejectsDuplicateInFlight(t *testing.T) {
	q, clk := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "1001", "", nil)
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, "1001", "", nil)
	assert.ErrorIs(t, err, errors.ErrDuplicateParcel)

	// Once bound and removed, the id may be admitted again.
	clk.Advance(2 * time.Second)
	_, err = q.BindReading(ctx, parcel.DwsReading{Weight: 100})
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, "1001", "", nil)
	assert.NoError(t, err)
}

func TestEnqueueRejectsEmptyID(t *testing.T) {
	q, _ := newTestQueue(t)

	_, err := q.Enqueue(context.Background(), "", "", nil)
	assert.Error(t, err)
}

func TestBindReadingPicksOldestEligible(t *testing.T) {
	q, clk := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "1001", "", nil)
	require.NoError(t, err)
	clk.Advance(500 * time.Millisecond)
	_, err = q.Enqueue(ctx, "1002", "", nil)
	require.NoError(t, err)

	// Both past MinWait: binding is FIFO by admission order.
	clk.Advance(2 * time.Second)
	reading := parcel.DwsReading{Barcode: "SF123", Weight: 1500}
	bound, err := q.BindReading(ctx, reading)
	require.NoError(t, err)
	assert.Equal(t, "1001", bound.ParcelID)
	require.NotNil(t, bound.Reading)
	assert.Equal(t, 1500.0, bound.Reading.Weight)
	assert.Equal(t, "SF123", bound.Barcode, "advisory barcode is copied onto the parcel")
	assert.Equal(t, 1, q.Depth())

	bound, err = q.BindReading(ctx, parcel.DwsReading{Weight: 200})
	require.NoError(t, err)
	assert.Equal(t, "1002", bound.ParcelID)
	assert.Equal(t, 0, q.Depth())
}

func TestBindReadingSkipsTooYoungParcels(t *testing.T) {
	q, clk := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "1001", "", nil)
	require.NoError(t, err)

	// The only pending parcel is younger than MinWait: the reading is
	// assumed to belong to a previous parcel and goes unmatched.
	clk.Advance(500 * time.Millisecond)
	_, err = q.BindReading(ctx, parcel.DwsReading{Weight: 100})
	assert.ErrorIs(t, err, errors.ErrNoEligibleParcel)
	assert.Equal(t, 1, q.Depth(), "unmatched reading must not consume the parcel")

	clk.Advance(600 * time.Millisecond)
	bound, err := q.BindReading(ctx, parcel.DwsReading{Weight: 100})
	require.NoError(t, err)
	assert.Equal(t, "1001", bound.ParcelID)
}

func TestBindReadingEmptyQueue(t *testing.T) {
	q, _ := newTestQueue(t)

	_, err := q.BindReading(context.Background(), parcel.DwsReading{Weight: 100})
	assert.ErrorIs(t, err, errors.ErrNoEligibleParcel)
}

func TestBindReadingKeepsExistingBarcode(t *testing.T) {
	q, clk := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "1001", "", map[string]string{"source": "upstream"})
	require.NoError(t, err)
	clk.Advance(2 * time.Second)

	bound, err := q.BindReading(ctx, parcel.DwsReading{Barcode: "SF999"})
	require.NoError(t, err)
	assert.Equal(t, "SF999", bound.Barcode)
}

func TestScanOnceEvictsOnlyExpired(t *testing.T) {
	var timedOut []parcel.Parcel
	q, clk := newTestQueue(t, WithTimeoutHandler(func(expired []parcel.Parcel) {
		timedOut = append(timedOut, expired...)
	}))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "1001", "", nil)
	require.NoError(t, err)
	clk.Advance(20 * time.Second)
	_, err = q.Enqueue(ctx, "1002", "", nil)
	require.NoError(t, err)

	// 1001 is now 31s old, 1002 only 11s.
	clk.Advance(11 * time.Second)
	assert.Equal(t, 1, q.ScanOnce())

	require.Len(t, timedOut, 1)
	assert.Equal(t, "1001", timedOut[0].ParcelID)
	assert.Equal(t, 1, q.Depth())

	// An expired parcel can never be bound afterwards.
	_, err = q.BindReading(ctx, parcel.DwsReading{Weight: 100})
	require.NoError(t, err)
	assert.Equal(t, 0, q.Depth())
}

func TestScanOnceExactBoundaryNotExpired(t *testing.T) {
	q, clk := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "1001", "", nil)
	require.NoError(t, err)

	clk.Advance(testWindow.MaxWait)
	assert.Equal(t, 0, q.ScanOnce(), "age equal to MaxWait is still inside the window")

	clk.Advance(time.Millisecond)
	assert.Equal(t, 1, q.ScanOnce())
}

func TestStartStopLifecycle(t *testing.T) {
	q, _ := newTestQueue(t, WithScanInterval(10*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, q.Start(ctx))
	assert.ErrorIs(t, q.Start(ctx), errors.ErrAlreadyStarted)

	require.NoError(t, q.Stop(time.Second))
}

func TestStopWithoutStart(t *testing.T) {
	q, _ := newTestQueue(t)
	assert.ErrorIs(t, q.Stop(time.Second), errors.ErrNotStarted)
}

func TestEnqueueHonorsContextCancellation(t *testing.T) {
	q, _ := newTestQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Enqueue(ctx, "1001", "", nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = q.BindReading(ctx, parcel.DwsReading{})
	assert.ErrorIs(t, err, context.Canceled)
}
