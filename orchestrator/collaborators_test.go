package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zakyip/sortengine/errors"
	"github.com/zakyip/sortengine/parcel"
	"github.com/zakyip/sortengine/pkg/retry"
)

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestBreakerResolverPassesThrough(t *testing.T) {
	inner := &fakeResolver{response: ChuteResponse{ChuteID: "A07"}}
	br := NewBreakerResolver(inner, "test", fastRetry())

	resp, err := br.RequestChute(context.Background(), parcel.Parcel{ParcelID: "1001"}, parcel.DwsReading{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "A07", resp.ChuteID)
	assert.Equal(t, 1, inner.calls)
}

func TestBreakerResolverRetriesTransientFailures(t *testing.T) {
	inner := &fakeResolver{err: fmt.Errorf("upstream unreachable")}
	br := NewBreakerResolver(inner, "test", fastRetry())

	_, err := br.RequestChute(context.Background(), parcel.Parcel{ParcelID: "1001"}, parcel.DwsReading{}, nil)
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestBreakerResolverOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &fakeResolver{err: fmt.Errorf("upstream unreachable")}
	br := NewBreakerResolver(inner, "test", fastRetry())

	ctx := context.Background()
	p := parcel.Parcel{ParcelID: "1001"}

	// Drive the breaker past its failure threshold.
	for i := 0; i < 3; i++ {
		_, err := br.RequestChute(ctx, p, parcel.DwsReading{}, nil)
		require.Error(t, err)
	}
	callsWhenOpen := inner.calls

	// Open circuit: the inner resolver is no longer reached and the
	// caller sees a non-retryable circuit error immediately.
	_, err := br.RequestChute(ctx, p, parcel.DwsReading{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)
	assert.Equal(t, callsWhenOpen, inner.calls)
}
