package correlation

import (
	"fmt"
	"time"

	"github.com/zakyip/sortengine/errors"
)

// Window is the per-deployment correlation timing configuration,
// immutable at runtime. Readings arriving before MinWait has elapsed
// since a parcel's admission are assumed to belong to the previous,
// still-pending parcel; parcels exceeding MaxWait without a reading are
// classified Timeout and routed to the exception chute.
type Window struct {
	MinWait          time.Duration
	MaxWait          time.Duration
	ExceptionChuteID string
}

// Validate rejects windows that can never bind a reading.
func (w Window) Validate() error {
	if w.MinWait < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: MinWait %v is negative", errors.ErrInvalidWindow, w.MinWait),
			"correlation.Window", "Validate", "check bounds")
	}
	if w.MaxWait <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: MaxWait %v must be positive", errors.ErrInvalidWindow, w.MaxWait),
			"correlation.Window", "Validate", "check bounds")
	}
	if w.MinWait >= w.MaxWait {
		return errors.WrapInvalid(
			fmt.Errorf("%w: MinWait %v must be below MaxWait %v", errors.ErrInvalidWindow, w.MinWait, w.MaxWait),
			"correlation.Window", "Validate", "check bounds")
	}
	if w.ExceptionChuteID == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: exception chute id is required", errors.ErrInvalidWindow),
			"correlation.Window", "Validate", "check exception chute")
	}
	return nil
}
