// Package lifecycle tracks per-parcel sortation progress. Each tracked
// parcel holds a current-stage register and an append-only log of
// lifecycle nodes forming the audit trail; the log is never mutated,
// only appended. The tracker also computes the affected set for
// lost-parcel correction: parcels created after a lost parcel and before
// its loss was detected, whose belt position is no longer trustworthy.
package lifecycle

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/zakyip/sortengine/errors"
	"github.com/zakyip/sortengine/metric"
	"github.com/zakyip/sortengine/parcel"
	"github.com/zakyip/sortengine/pkg/clock"
)

type record struct {
	parcelID  string
	createdAt time.Time
	stage     parcel.LifecycleStage
	log       []parcel.LifecycleNode
}

// Transition is the notification value published on every stage change.
type Transition struct {
	ParcelID    string
	From        parcel.LifecycleStage
	To          parcel.LifecycleStage
	At          time.Time
	Description string
}

// Tracker holds the stage register for every in-flight parcel. It owns
// back-references only; parcel ownership stays with the correlation
// queue until binding and with the orchestrator afterwards.
type Tracker struct {
	clk    clock.Clock
	logger *slog.Logger
	core   *metric.Metrics // nil disables metrics

	mu      sync.RWMutex
	records map[string]*record
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock injects the time source (defaults to the system clock)
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clk = c }
}

// WithLogger injects a structured logger
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithCoreMetrics wires the shared platform metrics
func WithCoreMetrics(m *metric.Metrics) Option {
	return func(t *Tracker) { t.core = m }
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		clk:     clock.System(),
		logger:  slog.Default(),
		records: make(map[string]*record),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track registers a newly admitted parcel at the Created stage.
func (t *Tracker) Track(parcelID string, createdAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.records[parcelID]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrDuplicateParcel, parcelID),
			"lifecycle.Tracker", "Track", "register parcel")
	}

	t.records[parcelID] = &record{
		parcelID:  parcelID,
		createdAt: createdAt,
		stage:     parcel.StageCreated,
		log: []parcel.LifecycleNode{{
			EventTime: createdAt,
			Stage:     parcel.StageCreated,
		}},
	}

	if t.core != nil {
		t.core.LifecycleTransitions.WithLabelValues(parcel.StageCreated.String()).Inc()
	}
	return nil
}

// Transition moves a parcel to the next stage, appending an immutable
// node to its log. Forward-only ordering is enforced; Timeout, Lost and
// Error are accepted from any non-terminal stage.
func (t *Tracker) Transition(parcelID string, next parcel.LifecycleStage, description string) (Transition, error) {
	t.mu.Lock()
	rec, exists := t.records[parcelID]
	if !exists {
		t.mu.Unlock()
		return Transition{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrParcelUnknown, parcelID),
			"lifecycle.Tracker", "Transition", "locate parcel")
	}

	if !rec.stage.CanTransitionTo(next) {
		from := rec.stage
		t.mu.Unlock()
		if from.IsTerminal() {
			return Transition{}, errors.WrapInvalid(
				fmt.Errorf("%w: %s is %s", errors.ErrParcelTerminal, parcelID, from),
				"lifecycle.Tracker", "Transition", "validate transition")
		}
		return Transition{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s cannot move %s -> %s", errors.ErrStageRegression, parcelID, from, next),
			"lifecycle.Tracker", "Transition", "validate transition")
	}

	now := t.clk.Now()
	tr := Transition{
		ParcelID:    parcelID,
		From:        rec.stage,
		To:          next,
		At:          now,
		Description: description,
	}
	rec.stage = next
	rec.log = append(rec.log, parcel.LifecycleNode{
		EventTime:   now,
		Stage:       next,
		Description: description,
	})
	t.mu.Unlock()

	if t.core != nil {
		t.core.LifecycleTransitions.WithLabelValues(next.String()).Inc()
	}
	t.logger.Debug("lifecycle transition",
		"parcel_id", parcelID,
		"from", tr.From.String(),
		"to", next.String())
	return tr, nil
}

// AppendNote appends a node at the parcel's current stage without
// changing it. Used to record corrective actions on the audit trail.
func (t *Tracker) AppendNote(parcelID, description string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, exists := t.records[parcelID]
	if !exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrParcelUnknown, parcelID),
			"lifecycle.Tracker", "AppendNote", "locate parcel")
	}
	rec.log = append(rec.log, parcel.LifecycleNode{
		EventTime:   t.clk.Now(),
		Stage:       rec.stage,
		Description: description,
	})
	return nil
}

// Stage returns the parcel's current stage.
func (t *Tracker) Stage(parcelID string) (parcel.LifecycleStage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, exists := t.records[parcelID]
	if !exists {
		return 0, false
	}
	return rec.stage, true
}

// History returns a copy of the parcel's append-only node log.
func (t *Tracker) History(parcelID string) ([]parcel.LifecycleNode, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, exists := t.records[parcelID]
	if !exists {
		return nil, false
	}
	nodes := make([]parcel.LifecycleNode, len(rec.log))
	copy(nodes, rec.log)
	return nodes, true
}

// CreatedAt returns the parcel's admission time.
func (t *Tracker) CreatedAt(parcelID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, exists := t.records[parcelID]
	if !exists {
		return time.Time{}, false
	}
	return rec.createdAt, true
}

// Remove destroys a parcel's tracking state. Called once the terminal
// stage is reached and its notification has been emitted; no parcel
// state survives this boundary.
func (t *Tracker) Remove(parcelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, parcelID)
}

// InFlight returns the number of tracked parcels.
func (t *Tracker) InFlight() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// AffectedByLoss snapshots the parcels whose belt position became
// ambiguous when a parcel created at lostCreatedAt was lost: parcels
// created inside (lostCreatedAt, detectedAt] that have not yet reached
// Landed or any terminal stage. The snapshot is taken atomically with
// respect to new admissions; results are ordered by creation time.
func (t *Tracker) AffectedByLoss(lostCreatedAt, detectedAt time.Time) []string {
	t.mu.RLock()
	type affected struct {
		id        string
		createdAt time.Time
	}
	var hits []affected
	for id, rec := range t.records {
		if !rec.createdAt.After(lostCreatedAt) || rec.createdAt.After(detectedAt) {
			continue
		}
		if rec.stage >= parcel.StageLanded {
			continue
		}
		hits = append(hits, affected{id: id, createdAt: rec.createdAt})
	}
	t.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].createdAt.Before(hits[j].createdAt) })

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids
}
