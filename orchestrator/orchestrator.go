package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zakyip/sortengine/errors"
	"github.com/zakyip/sortengine/lifecycle"
	"github.com/zakyip/sortengine/metric"
	"github.com/zakyip/sortengine/parcel"
	"github.com/zakyip/sortengine/pkg/clock"
	"github.com/zakyip/sortengine/pkg/fanout"
	"github.com/zakyip/sortengine/rule"
)

// Orchestrator consumes correlated parcels and produces chute decisions.
type Orchestrator struct {
	mode           parcel.SortingMode
	exceptionChute string
	autoChutes     []string

	evaluator *rule.Evaluator
	tracker   *lifecycle.Tracker
	sorter    SorterClient
	resolver  ChuteResolver // nil unless ApiDriven
	recorder  Recorder      // nil disables audit records

	decisions *fanout.Dispatcher[parcel.ChuteDecision]
	clk       clock.Clock
	logger    *slog.Logger
	core      *metric.Metrics
	pickChute func(n int) int

	mu     sync.Mutex
	issued map[string]parcel.ChuteDecision // in-flight decisions by parcel id
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock injects the time source
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clk = c }
}

// WithLogger injects a structured logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithCoreMetrics wires the shared platform metrics
func WithCoreMetrics(m *metric.Metrics) Option {
	return func(o *Orchestrator) { o.core = m }
}

// WithResolver sets the external chute resolver for ApiDriven mode
func WithResolver(r ChuteResolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithRecorder sets the communication audit recorder
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithAutoChutes sets the chute set drawn from in AutoResponse mode
func WithAutoChutes(chutes []string) Option {
	return func(o *Orchestrator) { o.autoChutes = chutes }
}

// WithChutePicker overrides the random draw, for deterministic tests
func WithChutePicker(pick func(n int) int) Option {
	return func(o *Orchestrator) { o.pickChute = pick }
}

// New creates an orchestrator for the given mode. The exception chute
// receives every parcel that cannot be decided normally.
func New(mode parcel.SortingMode, exceptionChute string, evaluator *rule.Evaluator,
	tracker *lifecycle.Tracker, sorter SorterClient, opts ...Option) (*Orchestrator, error) {

	if !mode.Valid() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown sorting mode %q", errors.ErrInvalidConfig, mode),
			"orchestrator", "New", "validate mode")
	}
	if exceptionChute == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: exception chute is required", errors.ErrInvalidConfig),
			"orchestrator", "New", "validate exception chute")
	}

	o := &Orchestrator{
		mode:           mode,
		exceptionChute: exceptionChute,
		evaluator:      evaluator,
		tracker:        tracker,
		sorter:         sorter,
		clk:            clock.System(),
		logger:         slog.Default(),
		pickChute:      rand.Intn,
		issued:         make(map[string]parcel.ChuteDecision),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.decisions = fanout.New[parcel.ChuteDecision](o.logger)

	if o.mode == parcel.ModeApiDriven && o.resolver == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: ApiDriven mode requires a resolver", errors.ErrMissingConfig),
			"orchestrator", "New", "validate resolver")
	}
	if o.mode == parcel.ModeAutoResponse && len(o.autoChutes) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: AutoResponse mode requires a chute set", errors.ErrMissingConfig),
			"orchestrator", "New", "validate chute set")
	}
	return o, nil
}

// OnDecision subscribes a handler to every emitted chute decision.
// Handlers run with per-handler fault isolation.
func (o *Orchestrator) OnDecision(name string, h fanout.Handler[parcel.ChuteDecision]) {
	o.decisions.Subscribe(name, h)
}

// Decide resolves a chute for a correlated parcel, transitions its
// lifecycle, instructs the sorter, and emits the decision. Failures
// never leave the parcel undecided: every error path falls back to the
// exception chute.
func (o *Orchestrator) Decide(ctx context.Context, p parcel.Parcel, ocr *parcel.OcrData) (parcel.ChuteDecision, error) {
	if p.Reading == nil {
		return parcel.ChuteDecision{}, errors.WrapInvalid(
			fmt.Errorf("parcel %s has no bound reading", p.ParcelID),
			"orchestrator", "Decide", "validate parcel")
	}

	started := o.clk.Now()
	if _, err := o.tracker.Transition(p.ParcelID, parcel.StageDwsReceived, ""); err != nil {
		return parcel.ChuteDecision{}, err
	}

	// Lost-parcel correction may already have rerouted this parcel while
	// it was still pending; the override outlives the normal decision
	// path, so the rule evaluation is skipped entirely.
	if prior, ok := o.exceptionOverride(p.ParcelID); ok {
		if _, err := o.tracker.Transition(p.ParcelID, parcel.StageChuteAssigned, prior.ChuteID); err != nil {
			return parcel.ChuteDecision{}, err
		}
		o.logger.Info("decision pinned to exception chute by loss correction",
			"parcel_id", p.ParcelID,
			"chute_id", prior.ChuteID)
		return prior, nil
	}

	var (
		chuteID   string
		ruleID    string
		source    parcel.DecisionSource
		outcome   = "ok"
		decideErr error
	)

	switch o.mode {
	case parcel.ModeRuleBased:
		source = parcel.SourceRuleBased
		result, matched := o.evaluator.Evaluate(rule.MatchContext{
			Barcode: p.Barcode,
			Reading: p.Reading,
			Ocr:     ocr,
		})
		if matched {
			chuteID = result.TargetChute
			ruleID = result.Rule.RuleID
			if o.core != nil {
				o.core.RuleHits.WithLabelValues(ruleID).Inc()
			}
		} else {
			chuteID = o.exceptionChute
			outcome = "no_match"
		}

	case parcel.ModeAutoResponse:
		source = parcel.SourceAutoResponse
		chuteID = o.autoChutes[o.pickChute(len(o.autoChutes))]

	case parcel.ModeApiDriven:
		source = parcel.SourceApiDriven
		chuteID, decideErr = o.resolveExternally(ctx, p, ocr)
		if decideErr != nil {
			chuteID = o.exceptionChute
			outcome = "resolver_failed"
			o.logger.Error("chute resolution failed, routing to exception chute",
				"parcel_id", p.ParcelID,
				"error", decideErr)
		}
	}

	decision := parcel.ChuteDecision{
		DecisionID:    uuid.NewString(),
		ParcelID:      p.ParcelID,
		ChuteID:       chuteID,
		Source:        source,
		MatchedRuleID: ruleID,
		DecidedAt:     o.clk.Now(),
	}

	if _, err := o.tracker.Transition(p.ParcelID, parcel.StageChuteAssigned, chuteID); err != nil {
		return parcel.ChuteDecision{}, err
	}

	o.mu.Lock()
	if prior, ok := o.issued[p.ParcelID]; ok && prior.Source == parcel.SourceException {
		// A loss correction raced in while deciding; the override wins.
		o.mu.Unlock()
		return prior, nil
	}
	o.issued[p.ParcelID] = decision
	o.mu.Unlock()

	o.instructSorter(ctx, decision)
	o.emit(decision, outcome)

	if o.core != nil {
		o.core.DecisionDuration.Observe(o.clk.Since(started).Seconds())
	}
	return decision, nil
}

// resolveExternally performs the blocking ApiDriven call. The parcel is
// moved to ApiRequested first so the audit trail shows the outbound
// request even when the collaborator fails.
func (o *Orchestrator) resolveExternally(ctx context.Context, p parcel.Parcel, ocr *parcel.OcrData) (string, error) {
	if _, err := o.tracker.Transition(p.ParcelID, parcel.StageApiRequested, ""); err != nil {
		return "", err
	}

	o.record(ctx, CommunicationRecord{
		ParcelID:  p.ParcelID,
		Direction: "outbound",
		Channel:   "resolver",
		Payload:   encodeResolverRequest(p),
		At:        o.clk.Now(),
	})

	resp, err := o.resolver.RequestChute(ctx, p, *p.Reading, ocr)
	if err != nil {
		return "", errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrResolverFailed, err),
			"orchestrator", "resolveExternally", "request chute")
	}

	o.record(ctx, CommunicationRecord{
		ParcelID:  p.ParcelID,
		Direction: "inbound",
		Channel:   "resolver",
		Payload:   resp.Payload,
		At:        o.clk.Now(),
	})

	if resp.ChuteID == "" {
		return "", errors.WrapTransient(
			fmt.Errorf("%w: empty chute in response", errors.ErrResolverFailed),
			"orchestrator", "resolveExternally", "validate response")
	}
	return resp.ChuteID, nil
}

// HandleTimeouts processes parcels evicted by the correlation queue's
// timeout scan: each is transitioned to Timeout, routed to the exception
// chute, and destroyed once the decision is emitted. Timeout is terminal,
// so no in-memory state survives it. Wire this as the queue's timeout
// handler.
func (o *Orchestrator) HandleTimeouts(ctx context.Context, expired []parcel.Parcel) {
	for _, p := range expired {
		if _, err := o.tracker.Transition(p.ParcelID, parcel.StageTimeout, "matching window exceeded"); err != nil {
			o.logger.Error("timeout transition failed", "parcel_id", p.ParcelID, "error", err)
			continue
		}

		decision := parcel.ChuteDecision{
			DecisionID: uuid.NewString(),
			ParcelID:   p.ParcelID,
			ChuteID:    o.exceptionChute,
			Source:     parcel.SourceException,
			DecidedAt:  o.clk.Now(),
		}
		o.instructSorter(ctx, decision)
		o.emit(decision, "timeout")
		o.forget(p.ParcelID)
	}
}

// HandleLanded records a physical landing reported by the sorter.
func (o *Orchestrator) HandleLanded(parcelID string) error {
	_, err := o.tracker.Transition(parcelID, parcel.StageLanded, "")
	return err
}

// HandleCompleted finalizes a parcel and destroys its in-memory state.
func (o *Orchestrator) HandleCompleted(parcelID string) error {
	if _, err := o.tracker.Transition(parcelID, parcel.StageCompleted, ""); err != nil {
		return err
	}
	o.forget(parcelID)
	return nil
}

// HandleFailed records a non-success terminal outcome reported by the
// sorter (belt timeout or execution error) and destroys in-memory state.
func (o *Orchestrator) HandleFailed(parcelID string, terminal parcel.LifecycleStage, reason string) error {
	if terminal != parcel.StageTimeout && terminal != parcel.StageError {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s is not a failure stage", errors.ErrStageRegression, terminal),
			"orchestrator", "HandleFailed", "validate stage")
	}
	if _, err := o.tracker.Transition(parcelID, terminal, reason); err != nil {
		return err
	}
	o.forget(parcelID)
	return nil
}

// HandleLost applies lost-parcel correction. Every parcel created after
// the lost one and before the loss was detected, not yet landed, has its
// decision overridden to the exception chute: the lost parcel broke the
// belt sequence, so their measured positions can no longer be trusted.
// Returns the affected parcel ids for the outbound loss notification.
func (o *Orchestrator) HandleLost(ctx context.Context, parcelID string, detectedAt time.Time) ([]string, error) {
	lostCreatedAt, ok := o.tracker.CreatedAt(parcelID)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrParcelUnknown, parcelID),
			"orchestrator", "HandleLost", "locate lost parcel")
	}

	// Short critical-section snapshot; per-parcel updates follow outside it.
	affected := o.tracker.AffectedByLoss(lostCreatedAt, detectedAt)

	if _, err := o.tracker.Transition(parcelID, parcel.StageLost, "reported lost by sorter"); err != nil {
		o.logger.Error("lost transition failed", "parcel_id", parcelID, "error", err)
	}
	if o.core != nil {
		o.core.ParcelsLost.Inc()
	}

	corrected := make([]string, 0, len(affected))
	for _, id := range affected {
		if err := o.correctAffected(ctx, id, parcelID); err != nil {
			o.logger.Error("lost-parcel correction not applied",
				"parcel_id", id,
				"lost_parcel_id", parcelID,
				"error", err)
			continue
		}
		corrected = append(corrected, id)
	}

	o.forget(parcelID)
	return corrected, nil
}

// correctAffected overrides one neighbor's decision to the exception
// chute and records the correction on its audit trail.
func (o *Orchestrator) correctAffected(ctx context.Context, parcelID, lostParcelID string) error {
	stage, ok := o.tracker.Stage(parcelID)
	if !ok {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrParcelUnknown, parcelID),
			"orchestrator", "correctAffected", "locate parcel")
	}
	if stage >= parcel.StageLanded {
		// Already physically resolved; recorded, never retried.
		_ = o.tracker.AppendNote(parcelID,
			fmt.Sprintf("lost-parcel correction skipped, already %s (lost: %s)", stage, lostParcelID))
		return errors.WrapInvalid(errors.ErrCorrectionTooLate,
			"orchestrator", "correctAffected", "apply correction")
	}

	decision := parcel.ChuteDecision{
		DecisionID: uuid.NewString(),
		ParcelID:   parcelID,
		ChuteID:    o.exceptionChute,
		Source:     parcel.SourceException,
		DecidedAt:  o.clk.Now(),
	}

	o.mu.Lock()
	o.issued[parcelID] = decision
	o.mu.Unlock()

	if err := o.tracker.AppendNote(parcelID,
		fmt.Sprintf("decision overridden to exception chute, neighbor %s lost", lostParcelID)); err != nil {
		return err
	}

	o.instructSorter(ctx, decision)
	o.emit(decision, "lost_correction")
	return nil
}

// exceptionOverride returns a standing exception-chute override for the
// parcel, left by lost-parcel correction before its decision ran. Only
// correctAffected issues decisions with an Exception source, so the
// source alone identifies a correction.
func (o *Orchestrator) exceptionOverride(parcelID string) (parcel.ChuteDecision, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.issued[parcelID]
	if !ok || d.Source != parcel.SourceException {
		return parcel.ChuteDecision{}, false
	}
	return d, true
}

// IssuedDecision returns the current decision for an in-flight parcel.
func (o *Orchestrator) IssuedDecision(parcelID string) (parcel.ChuteDecision, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.issued[parcelID]
	return d, ok
}

func (o *Orchestrator) forget(parcelID string) {
	o.mu.Lock()
	delete(o.issued, parcelID)
	o.mu.Unlock()
	o.tracker.Remove(parcelID)
}

func (o *Orchestrator) instructSorter(ctx context.Context, d parcel.ChuteDecision) {
	if o.sorter == nil {
		return
	}
	accepted, err := o.sorter.SendChuteNumber(ctx, d.ParcelID, d.ChuteID)
	if err != nil {
		o.logger.Error("sorter instruction failed",
			"parcel_id", d.ParcelID,
			"chute_id", d.ChuteID,
			"error", err)
		return
	}
	if !accepted {
		o.logger.Error("sorter rejected chute instruction",
			"parcel_id", d.ParcelID,
			"chute_id", d.ChuteID)
		return
	}
	o.record(ctx, CommunicationRecord{
		ParcelID:  d.ParcelID,
		Direction: "outbound",
		Channel:   "sorter",
		Payload:   fmt.Sprintf(`{"ParcelId":%q,"ChuteId":%q}`, d.ParcelID, d.ChuteID),
		At:        o.clk.Now(),
	})
}

func (o *Orchestrator) emit(d parcel.ChuteDecision, outcome string) {
	if o.core != nil {
		o.core.DecisionsTotal.WithLabelValues(string(d.Source), outcome).Inc()
	}
	o.decisions.Publish(d)
}

func (o *Orchestrator) record(ctx context.Context, rec CommunicationRecord) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordCommunication(ctx, rec); err != nil {
		o.logger.Error("communication record failed",
			"parcel_id", rec.ParcelID,
			"channel", rec.Channel,
			"error", err)
	}
}

func encodeResolverRequest(p parcel.Parcel) string {
	payload := map[string]any{
		"ParcelId": p.ParcelID,
		"Barcode":  p.Barcode,
	}
	if p.Reading != nil {
		payload["Weight"] = p.Reading.Weight
		payload["Volume"] = p.Reading.Volume
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(data)
}
