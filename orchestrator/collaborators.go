package orchestrator

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/zakyip/sortengine/errors"
	"github.com/zakyip/sortengine/parcel"
	"github.com/zakyip/sortengine/pkg/retry"
)

// SorterClient delivers chute instructions to the physical sorter. The
// transport behind it (TCP, MQTT, HTTP) is a device-adapter concern.
type SorterClient interface {
	// SendChuteNumber instructs the sorter to divert the parcel.
	// A false return without error means the sorter refused the
	// instruction.
	SendChuteNumber(ctx context.Context, parcelID, chuteID string) (bool, error)
}

// ChuteResponse is the external resolver's answer, with the raw payload
// retained for audit.
type ChuteResponse struct {
	ChuteID string
	Payload string
}

// ChuteResolver asks an external system for a chute in ApiDriven mode.
type ChuteResolver interface {
	RequestChute(ctx context.Context, p parcel.Parcel, reading parcel.DwsReading, ocr *parcel.OcrData) (ChuteResponse, error)
}

// CommunicationRecord is one audited exchange with a collaborator.
type CommunicationRecord struct {
	ParcelID  string
	Direction string // "outbound" or "inbound"
	Channel   string // "sorter", "resolver"
	Payload   string
	At        time.Time
}

// Recorder persists communication records for audit. Implementations
// must tolerate being called concurrently.
type Recorder interface {
	RecordCommunication(ctx context.Context, rec CommunicationRecord) error
}

// breakerResolver wraps a ChuteResolver with a circuit breaker and
// bounded retries so a failing external system cannot stall decisioning.
type breakerResolver struct {
	inner   ChuteResolver
	breaker *gobreaker.CircuitBreaker
	retry   retry.Config
}

// NewBreakerResolver guards resolver calls with a circuit breaker
// (half-open probing after cooldown) and the given retry policy.
func NewBreakerResolver(inner ChuteResolver, name string, retryCfg retry.Config) ChuteResolver {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &breakerResolver{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		retry:   retryCfg,
	}
}

func (br *breakerResolver) RequestChute(ctx context.Context, p parcel.Parcel, reading parcel.DwsReading, ocr *parcel.OcrData) (ChuteResponse, error) {
	return retry.DoWithResult(ctx, br.retry, func() (ChuteResponse, error) {
		result, err := br.breaker.Execute(func() (any, error) {
			return br.inner.RequestChute(ctx, p, reading, ocr)
		})
		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return ChuteResponse{}, retry.NonRetryable(errors.ErrCircuitOpen)
			}
			return ChuteResponse{}, err
		}
		return result.(ChuteResponse), nil
	})
}
