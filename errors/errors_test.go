package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapFormatsContext(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(base, "natsclient", "Connect", "dial broker")

	require.Error(t, err)
	assert.Equal(t, "natsclient.Connect: dial broker failed: connection refused", err.Error())
	assert.ErrorIs(t, err, base)

	assert.NoError(t, Wrap(nil, "c", "m", "a"))
}

func TestWrapClassification(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{name: "transient", wrap: WrapTransient, class: ErrorTransient},
		{name: "invalid", wrap: WrapInvalid, class: ErrorInvalid},
		{name: "fatal", wrap: WrapFatal, class: ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wrap(base, "component", "Method", "do thing")
			require.Error(t, err)

			var ce *ClassifiedError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.class, ce.Class)
			assert.Equal(t, "component", ce.Component)
			assert.ErrorIs(t, err, base)

			assert.NoError(t, tt.wrap(nil, "c", "m", "a"))
		})
	}
}

func TestClassifyChecks(t *testing.T) {
	assert.True(t, IsTransient(WrapTransient(errors.New("x"), "c", "m", "a")))
	assert.False(t, IsTransient(WrapInvalid(errors.New("x"), "c", "m", "a")))

	assert.True(t, IsInvalid(WrapInvalid(errors.New("x"), "c", "m", "a")))
	assert.True(t, IsFatal(WrapFatal(errors.New("x"), "c", "m", "a")))

	assert.False(t, IsTransient(nil))
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsFatal(nil))
}

func TestSentinelClassification(t *testing.T) {
	// Unwrapped sentinels classify by their nature.
	assert.True(t, IsTransient(ErrConnectionLost))
	assert.True(t, IsTransient(ErrCircuitOpen))
	assert.True(t, IsInvalid(ErrInvalidWindow))
	assert.True(t, IsInvalid(fmt.Errorf("load: %w", ErrInvalidExpression)))
	assert.True(t, IsFatal(ErrMissingConfig))
}

func TestTransientPatternHeuristic(t *testing.T) {
	assert.True(t, IsTransient(errors.New("dial tcp: i/o timeout")))
	assert.True(t, IsTransient(errors.New("service unavailable")))
	assert.False(t, IsTransient(errors.New("parse failure")))
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(errors.New("mystery")))
	assert.Equal(t, ErrorInvalid, Classify(ErrInvalidWindow))
	assert.Equal(t, ErrorFatal, Classify(WrapFatal(errors.New("x"), "c", "m", "a")))
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(9).String())
}
