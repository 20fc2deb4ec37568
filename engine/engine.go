package engine

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/zakyip/sortengine/component"
	"github.com/zakyip/sortengine/config"
	"github.com/zakyip/sortengine/correlation"
	"github.com/zakyip/sortengine/errors"
	"github.com/zakyip/sortengine/input"
	"github.com/zakyip/sortengine/lifecycle"
	"github.com/zakyip/sortengine/metric"
	"github.com/zakyip/sortengine/natsclient"
	"github.com/zakyip/sortengine/orchestrator"
	"github.com/zakyip/sortengine/output"
	"github.com/zakyip/sortengine/output/wsfeed"
	"github.com/zakyip/sortengine/parcel"
	"github.com/zakyip/sortengine/pkg/clock"
	"github.com/zakyip/sortengine/pkg/retry"
	"github.com/zakyip/sortengine/pkg/worker"
	"github.com/zakyip/sortengine/rule"
	"github.com/zakyip/sortengine/storage/audit"
	"github.com/zakyip/sortengine/wire"
)

// decideJob carries one bound parcel through the decision worker pool.
type decideJob struct {
	parcel parcel.Parcel
	ocr    *parcel.OcrData
}

// Engine owns every component of the sortation pipeline.
type Engine struct {
	safe     *config.SafeConfig
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	core     *metric.Metrics
	clk      clock.Clock

	client    *natsclient.Client
	evaluator *rule.Evaluator
	loader    *rule.Loader
	tracker   *lifecycle.Tracker
	queue     *correlation.Queue
	orch      *orchestrator.Orchestrator
	pool      *worker.Pool[decideJob]
	recorder  *audit.Recorder

	managed     []*component.Managed
	watchCancel context.CancelFunc
	started     bool
}

// Option customizes engine construction.
type Option func(*Engine)

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRegistry sets the metrics registry
func WithRegistry(r *metric.MetricsRegistry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithClock sets the time source for the queue, tracker and orchestrator
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clk = c }
}

// New validates the configuration and creates an unstarted engine.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: config is required", errors.ErrMissingConfig),
			"engine", "New", "validate config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		safe:   config.NewSafeConfig(cfg.Clone()),
		logger: slog.Default(),
		clk:    clock.System(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = metric.NewMetricsRegistry()
	}
	e.core = e.registry.CoreMetrics()
	e.evaluator = rule.NewEvaluator(e.logger)
	e.loader = rule.NewLoader(e.logger)
	return e, nil
}

// lifecycleFuncs adapts start/stop closures to the component contract.
type lifecycleFuncs struct {
	start func(ctx context.Context) error
	stop  func(timeout time.Duration) error
}

func (l lifecycleFuncs) Start(ctx context.Context) error  { return l.start(ctx) }
func (l lifecycleFuncs) Stop(timeout time.Duration) error { return l.stop(timeout) }

// track starts a component and registers it for reverse-order shutdown.
func (e *Engine) track(ctx context.Context, name string, c component.Lifecycle) error {
	m := &component.Managed{Name: name, Component: c}
	if err := c.Start(ctx); err != nil {
		m.State = component.StateFailed
		m.LastError = err
		return errors.Wrap(err, "engine", "Start", fmt.Sprintf("start %s", name))
	}
	m.State = component.StateStarted
	e.managed = append(e.managed, m)
	e.logger.Info("component started", "component", name)
	return nil
}

// Start brings the pipeline up in dependency order. On any failure the
// components already running are stopped in reverse before returning.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		return errors.Wrap(errors.ErrAlreadyStarted, "engine", "Start", "start engine")
	}

	if err := e.start(ctx); err != nil {
		e.stopManaged(10 * time.Second)
		return err
	}
	e.started = true
	cfg := e.safe.Get()
	e.logger.Info("sortation engine running",
		"mode", cfg.Sorting.Mode,
		"min_wait", cfg.Correlation.Window().MinWait,
		"max_wait", cfg.Correlation.Window().MaxWait)
	return nil
}

func (e *Engine) start(ctx context.Context) error {
	cfg := e.safe.Get()

	if cfg.Metrics.Enabled {
		srv := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, e.registry)
		err := e.track(ctx, "metrics_server", lifecycleFuncs{
			start: func(context.Context) error { return srv.Start() },
			stop:  srv.Stop,
		})
		if err != nil {
			return err
		}
	}

	reconnectWait := 2 * time.Second
	if cfg.NATS.ReconnectWait != "" {
		if d, err := time.ParseDuration(cfg.NATS.ReconnectWait); err == nil {
			reconnectWait = d
		}
	}
	e.client = natsclient.New(cfg.NATS.URL,
		natsclient.WithLogger(e.logger),
		natsclient.WithCoreMetrics(e.core),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(reconnectWait))
	err := e.track(ctx, "nats", lifecycleFuncs{
		start: e.client.Connect,
		stop:  func(time.Duration) error { e.client.Close(); return nil },
	})
	if err != nil {
		return err
	}

	// Audit is best effort: a stream that cannot be created must not
	// keep parcels from sorting.
	if rec, recErr := audit.NewRecorder(ctx, e.client.JetStream()); recErr != nil {
		e.logger.Warn("communication audit disabled", "error", recErr)
	} else {
		e.recorder = rec
	}

	if err := e.loadRules(ctx); err != nil {
		return err
	}

	e.tracker = lifecycle.NewTracker(
		lifecycle.WithClock(e.clk),
		lifecycle.WithLogger(e.logger),
		lifecycle.WithCoreMetrics(e.core))

	publisher := output.NewPublisher(e.client, cfg.Subjects.ChuteAssignment, e.clk, e.logger)

	orchOpts := []orchestrator.Option{
		orchestrator.WithClock(e.clk),
		orchestrator.WithLogger(e.logger),
		orchestrator.WithCoreMetrics(e.core),
	}
	if e.recorder != nil {
		orchOpts = append(orchOpts, orchestrator.WithRecorder(e.recorder))
	}
	switch cfg.Sorting.Mode {
	case parcel.ModeAutoResponse:
		orchOpts = append(orchOpts, orchestrator.WithAutoChutes(cfg.Sorting.AutoChutes))
	case parcel.ModeApiDriven:
		resolver := orchestrator.NewBreakerResolver(
			output.NewNATSResolver(e.client, cfg.Subjects.ChuteRequest),
			"chute_resolver", retry.DefaultConfig())
		orchOpts = append(orchOpts, orchestrator.WithResolver(resolver))
	}
	e.orch, err = orchestrator.New(cfg.Sorting.Mode, cfg.Correlation.ExceptionChuteID,
		e.evaluator, e.tracker, publisher, orchOpts...)
	if err != nil {
		return err
	}

	if cfg.Feed.Enabled {
		feed := wsfeed.New(cfg.Feed.Port, cfg.Feed.Path, e.logger)
		if err := e.track(ctx, "live_feed", feed); err != nil {
			return err
		}
		e.orch.OnDecision("live_feed", feed.Broadcast)
	}

	e.queue, err = correlation.NewQueue(cfg.Correlation.Window(),
		correlation.WithClock(e.clk),
		correlation.WithLogger(e.logger),
		correlation.WithCoreMetrics(e.core),
		correlation.WithScanInterval(cfg.Correlation.ScanInterval()),
		correlation.WithTimeoutHandler(func(expired []parcel.Parcel) {
			e.orch.HandleTimeouts(context.Background(), expired)
		}))
	if err != nil {
		return err
	}
	if err := e.track(ctx, "correlation_queue", e.queue); err != nil {
		return err
	}

	e.pool, err = worker.NewPool(cfg.Sorting.DecisionWorkers, 0, e.processDecision)
	if err != nil {
		return err
	}
	err = e.track(ctx, "decision_pool", lifecycleFuncs{
		start: e.pool.Start,
		stop:  func(time.Duration) error { e.pool.Stop(); return nil },
	})
	if err != nil {
		return err
	}

	ingress := input.NewIngress(e.client,
		input.Subjects{
			ParcelDetected:   cfg.Subjects.ParcelDetected,
			DwsReading:       cfg.Subjects.DwsReading,
			SortingCompleted: cfg.Subjects.SortingCompleted,
		},
		input.Handlers{
			OnParcelDetected:   e.onParcelDetected,
			OnDwsReading:       e.onDwsReading,
			OnSortingCompleted: e.onSortingCompleted,
		},
		e.logger)
	return e.track(ctx, "ingress", ingress)
}

// loadRules builds a rule snapshot from the active configuration and,
// when a KV bucket is configured, starts the hot-reload watcher.
func (e *Engine) loadRules(ctx context.Context) error {
	cfg := e.safe.Get()

	var (
		snapshot *rule.Snapshot
		loadErrs []rule.LoadError
	)
	switch {
	case cfg.Rules.File != "":
		var err error
		snapshot, loadErrs, err = e.loader.LoadFile(cfg.Rules.File)
		if err != nil {
			return err
		}
	default:
		snapshot, loadErrs = e.loader.Load(cfg.Rules.Inline)
	}
	for _, le := range loadErrs {
		e.logger.Warn("sorting rule rejected", "rule_id", le.RuleID, "error", le.Err)
	}
	e.evaluator.Swap(snapshot)
	e.logger.Info("sorting rules loaded", "rules", snapshot.Len(), "rejected", len(loadErrs))

	if cfg.Rules.KVBucket == "" || e.watchCancel != nil {
		return nil
	}
	kv, err := e.client.KeyValue(ctx, cfg.Rules.KVBucket)
	if err != nil {
		return errors.Wrap(err, "engine", "loadRules", "open rule bucket")
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	e.watchCancel = cancel
	go func() {
		if err := e.loader.Watch(watchCtx, kv, cfg.Rules.KVKey, e.evaluator); err != nil &&
			!stderrors.Is(err, context.Canceled) {
			e.logger.Error("rule watcher exited", "error", err)
		}
	}()
	return nil
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() *config.Config {
	return e.safe.Get()
}

// UpdateConfig is the configuration reload hook: it validates and
// atomically swaps the active configuration, then reloads the sorting
// rules from it while the engine is running. Structural settings (NATS
// connection, subjects, ports, sorting mode) take effect on the next
// start.
func (e *Engine) UpdateConfig(cfg *config.Config) error {
	if err := e.safe.Update(cfg); err != nil {
		return err
	}
	if e.started {
		return e.loadRules(context.Background())
	}
	return nil
}

// Stop shuts the pipeline down in reverse start order.
func (e *Engine) Stop(timeout time.Duration) error {
	if !e.started {
		return nil
	}
	e.started = false

	if e.watchCancel != nil {
		e.watchCancel()
		e.watchCancel = nil
	}
	return e.stopManaged(timeout)
}

func (e *Engine) stopManaged(timeout time.Duration) error {
	var firstErr error
	for i := len(e.managed) - 1; i >= 0; i-- {
		m := e.managed[i]
		if m.State != component.StateStarted {
			continue
		}
		if err := m.Component.Stop(timeout); err != nil {
			m.State = component.StateFailed
			m.LastError = err
			e.logger.Error("component stop failed", "component", m.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.State = component.StateStopped
		e.logger.Info("component stopped", "component", m.Name)
	}
	e.managed = nil
	return firstErr
}

// Run starts the engine and blocks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return e.Stop(30 * time.Second)
}

func (e *Engine) onParcelDetected(ctx context.Context, msg wire.ParcelDetected) {
	id := strconv.FormatInt(msg.ParcelId, 10)
	p, err := e.queue.Enqueue(ctx, id, msg.Metadata["CartNumber"], msg.Metadata)
	if err != nil {
		e.logger.Error("parcel admission failed", "parcel_id", id, "error", err)
		return
	}
	if err := e.tracker.Track(p.ParcelID, p.CreatedAt); err != nil {
		e.logger.Error("lifecycle tracking failed", "parcel_id", id, "error", err)
	}
}

func (e *Engine) onDwsReading(ctx context.Context, msg wire.DwsReading) {
	reading := parcel.DwsReading{
		Barcode:   msg.Barcode,
		Weight:    msg.Weight,
		Length:    msg.Length,
		Width:     msg.Width,
		Height:    msg.Height,
		Volume:    msg.Volume,
		ScannedAt: msg.MeasuredAt,
	}
	if reading.Volume == 0 {
		reading.Volume = msg.Length * msg.Width * msg.Height
	}
	var ocr *parcel.OcrData
	if len(msg.Ocr) > 0 {
		ocr = &parcel.OcrData{Fields: msg.Ocr}
	}

	p, err := e.queue.BindReading(ctx, reading)
	if err != nil {
		// Unmatched readings are already counted and logged by the queue.
		return
	}

	job := decideJob{parcel: p, ocr: ocr}
	if err := e.pool.Submit(job); err != nil {
		// A saturated pool must not strand a bound parcel.
		e.logger.Warn("decision pool saturated, deciding inline",
			"parcel_id", p.ParcelID, "error", err)
		_ = e.processDecision(ctx, job)
	}
}

func (e *Engine) processDecision(ctx context.Context, job decideJob) error {
	if _, err := e.orch.Decide(ctx, job.parcel, job.ocr); err != nil {
		e.logger.Error("chute decision failed", "parcel_id", job.parcel.ParcelID, "error", err)
		return err
	}
	return nil
}

func (e *Engine) onSortingCompleted(ctx context.Context, msg wire.SortingCompleted) {
	id := strconv.FormatInt(msg.ParcelId, 10)
	reason := msg.FailureReason
	if reason == "" {
		reason = msg.FinalStatus.String()
	}

	switch msg.FinalStatus {
	case wire.StatusSuccess:
		if err := e.orch.HandleLanded(id); err != nil {
			e.logger.Error("landing not recorded", "parcel_id", id, "error", err)
			return
		}
		if err := e.orch.HandleCompleted(id); err != nil {
			e.logger.Error("completion not recorded", "parcel_id", id, "error", err)
		}

	case wire.StatusTimeout:
		if err := e.orch.HandleFailed(id, parcel.StageTimeout, reason); err != nil {
			e.logger.Error("sorter timeout not recorded", "parcel_id", id, "error", err)
		}

	case wire.StatusLost:
		detectedAt := msg.CompletedAt
		if detectedAt.IsZero() {
			detectedAt = e.clk.Now()
		}
		corrected, err := e.orch.HandleLost(ctx, id, detectedAt)
		if err != nil {
			e.logger.Error("lost-parcel handling failed", "parcel_id", id, "error", err)
			return
		}
		e.publishLostNotice(msg.ParcelId, detectedAt, corrected)

	case wire.StatusExecutionError:
		if err := e.orch.HandleFailed(id, parcel.StageError, reason); err != nil {
			e.logger.Error("sorter error not recorded", "parcel_id", id, "error", err)
		}

	default:
		e.logger.Error("unknown final status dropped",
			"parcel_id", id, "final_status", int(msg.FinalStatus))
	}
}

func (e *Engine) publishLostNotice(lostID int64, detectedAt time.Time, corrected []string) {
	notice := wire.LostParcelNotice{
		ParcelId:   lostID,
		DetectedAt: detectedAt,
	}
	for _, id := range corrected {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		notice.CorrectedParcelIds = append(notice.CorrectedParcelIds, n)
	}

	data, err := json.Marshal(notice)
	if err != nil {
		e.logger.Error("lost notice encode failed", "parcel_id", lostID, "error", err)
		return
	}
	if err := e.client.Publish(e.safe.Get().Subjects.ParcelLost, data); err != nil {
		e.logger.Error("lost notice publish failed", "parcel_id", lostID, "error", err)
	}
}
