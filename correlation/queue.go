package correlation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zakyip/sortengine/errors"
	"github.com/zakyip/sortengine/metric"
	"github.com/zakyip/sortengine/parcel"
	"github.com/zakyip/sortengine/pkg/clock"
)

// pendingParcel is one admitted parcel awaiting its DWS reading.
// admittedAt carries the monotonic reading of the injected clock; all
// elapsed-time checks go through clock.Since, never wall arithmetic.
type pendingParcel struct {
	parcel     parcel.Parcel
	admittedAt time.Time
}

// TimeoutHandler receives parcels evicted by the timeout scan. The
// handler runs outside the queue lock.
type TimeoutHandler func(expired []parcel.Parcel)

// Queue is the FIFO admission queue of parcels awaiting measurement.
// It is the single writer of SequenceNumber, which makes belt order
// gap-free. All mutation of the pending set happens under one mutex.
type Queue struct {
	window Window
	clk    clock.Clock
	logger *slog.Logger
	core   *metric.Metrics // nil disables metrics

	mu      sync.Mutex
	pending []*pendingParcel // ordered by SequenceNumber
	nextSeq int64
	byID    map[string]struct{}

	onTimeout TimeoutHandler

	scanInterval time.Duration
	shutdown     chan struct{}
	done         chan struct{}
	startMu      sync.Mutex
	started      bool
}

// Option configures a Queue
type Option func(*Queue)

// WithClock injects the time source (defaults to the system clock)
func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clk = c }
}

// WithLogger injects a structured logger
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithCoreMetrics wires the shared platform metrics
func WithCoreMetrics(m *metric.Metrics) Option {
	return func(q *Queue) { q.core = m }
}

// WithScanInterval sets the timeout-scan period (default 1s)
func WithScanInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.scanInterval = d
		}
	}
}

// WithTimeoutHandler registers the handler invoked with parcels evicted
// by the timeout scan
func WithTimeoutHandler(h TimeoutHandler) Option {
	return func(q *Queue) { q.onTimeout = h }
}

// NewQueue creates a correlation queue for the given window.
func NewQueue(window Window, opts ...Option) (*Queue, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	q := &Queue{
		window:       window,
		clk:          clock.System(),
		logger:       slog.Default(),
		byID:         make(map[string]struct{}),
		scanInterval: time.Second,
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Enqueue admits a parcel and stamps the next sequence number. The
// parcel id must be unique while the parcel is in flight.
func (q *Queue) Enqueue(ctx context.Context, id, cartNumber string, metadata map[string]string) (parcel.Parcel, error) {
	if err := ctx.Err(); err != nil {
		return parcel.Parcel{}, err
	}
	if id == "" {
		return parcel.Parcel{}, errors.WrapInvalid(
			fmt.Errorf("parcel id is required"), "correlation.Queue", "Enqueue", "validate parcel")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.byID[id]; exists {
		return parcel.Parcel{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrDuplicateParcel, id),
			"correlation.Queue", "Enqueue", "admit parcel")
	}

	q.nextSeq++
	now := q.clk.Now()
	p := parcel.Parcel{
		ParcelID:       id,
		SequenceNumber: q.nextSeq,
		CartNumber:     cartNumber,
		CreatedAt:      now,
		Metadata:       metadata,
	}

	q.pending = append(q.pending, &pendingParcel{parcel: p, admittedAt: now})
	q.byID[id] = struct{}{}

	if q.core != nil {
		q.core.ParcelsAdmitted.Inc()
		q.core.QueueDepth.Set(float64(len(q.pending)))
	}
	q.logger.Debug("parcel admitted",
		"parcel_id", id,
		"sequence", p.SequenceNumber,
		"queue_depth", len(q.pending))

	return p, nil
}

// BindReading binds an uncorrelated DWS reading to the oldest eligible
// pending parcel. Eligible means the parcel has aged past the window's
// minimum wait; younger parcels are skipped because an early reading is
// assumed to belong to a previous, still-resolving parcel. The bound
// parcel is removed from the pending set and returned for decisioning.
func (q *Queue) BindReading(ctx context.Context, reading parcel.DwsReading) (parcel.Parcel, error) {
	if err := ctx.Err(); err != nil {
		return parcel.Parcel{}, err
	}

	q.mu.Lock()
	for i, pp := range q.pending {
		if q.clk.Since(pp.admittedAt) < q.window.MinWait {
			// Forward scan: everything after this parcel is younger
			break
		}

		bound := pp.parcel
		bound.Reading = &reading
		if bound.Barcode == "" && reading.Barcode != "" {
			// Advisory only; never used to select the parcel
			bound.Barcode = reading.Barcode
		}

		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		delete(q.byID, bound.ParcelID)
		depth := len(q.pending)
		q.mu.Unlock()

		if q.core != nil {
			q.core.ReadingsBound.Inc()
			q.core.QueueDepth.Set(float64(depth))
		}
		q.logger.Debug("reading bound",
			"parcel_id", bound.ParcelID,
			"sequence", bound.SequenceNumber,
			"barcode", reading.Barcode)
		return bound, nil
	}
	q.mu.Unlock()

	if q.core != nil {
		q.core.ReadingsUnmatched.Inc()
	}
	q.logger.Error("no eligible pending parcel for DWS reading",
		"barcode", reading.Barcode,
		"weight", reading.Weight)
	return parcel.Parcel{}, errors.WrapInvalid(
		errors.ErrNoEligibleParcel, "correlation.Queue", "BindReading", "match reading")
}

// evictExpired removes every pending parcel whose age exceeds the
// window's maximum wait and returns them. Runs entirely under the lock
// shared with Enqueue and BindReading, so an evicted parcel can never be
// bound by a late reading afterwards.
func (q *Queue) evictExpired() []parcel.Parcel {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expired []parcel.Parcel
	remaining := q.pending[:0]
	for _, pp := range q.pending {
		if q.clk.Since(pp.admittedAt) > q.window.MaxWait {
			expired = append(expired, pp.parcel)
			delete(q.byID, pp.parcel.ParcelID)
			continue
		}
		remaining = append(remaining, pp)
	}
	q.pending = remaining

	if len(expired) > 0 {
		if q.core != nil {
			q.core.ParcelsTimedOut.Add(float64(len(expired)))
			q.core.QueueDepth.Set(float64(len(q.pending)))
		}
		for _, p := range expired {
			q.logger.Warn("parcel exceeded matching window",
				"parcel_id", p.ParcelID,
				"sequence", p.SequenceNumber)
		}
	}
	return expired
}

// ScanOnce runs a single timeout pass, invoking the timeout handler
// outside the lock. Exposed for deterministic tests; Start drives it
// periodically in production.
func (q *Queue) ScanOnce() int {
	expired := q.evictExpired()
	if len(expired) > 0 && q.onTimeout != nil {
		q.onTimeout(expired)
	}
	return len(expired)
}

// Start launches the periodic timeout scan.
func (q *Queue) Start(ctx context.Context) error {
	q.startMu.Lock()
	defer q.startMu.Unlock()
	if q.started {
		return errors.ErrAlreadyStarted
	}
	q.started = true

	go func() {
		defer close(q.done)
		ticker := time.NewTicker(q.scanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.shutdown:
				return
			case <-ticker.C:
				q.ScanOnce()
			}
		}
	}()
	return nil
}

// Stop halts the timeout scan, waiting up to timeout for the scanner to
// exit. Pending parcels stay in the queue.
func (q *Queue) Stop(timeout time.Duration) error {
	q.startMu.Lock()
	defer q.startMu.Unlock()
	if !q.started {
		return errors.ErrNotStarted
	}
	close(q.shutdown)

	select {
	case <-q.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("correlation.Queue.Stop: timeout scan did not exit within %v", timeout)
	}
}

// Depth returns the number of parcels awaiting a reading.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Window returns the queue's correlation window.
func (q *Queue) Window() Window {
	return q.window
}
