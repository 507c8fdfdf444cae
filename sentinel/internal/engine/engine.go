// Package engine wires the buffer, detectors, correlator, responder and
// alert dispatcher into the event processing pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/alerts"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/anomaly"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/breaker"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/buffer"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/delivery"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/incidents"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/metrics"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/patterns"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/responder"
)

// Detector inspects one event that is already in the buffer. Pattern
// matchers and anomaly heuristics both satisfy it.
type Detector interface {
	Name() string
	Detect(e models.SecurityEvent) ([]models.ThreatIndicator, error)
}

type Config struct {
	Buffer    buffer.Config    `mapstructure:"buffer"`
	Anomaly   anomaly.Config   `mapstructure:"anomaly"`
	Breaker   breaker.Config   `mapstructure:"breaker"`
	Alerts    alerts.Config    `mapstructure:"alerts"`
	Responder responder.Config `mapstructure:"responder"`
	// Notifications configures the incident notice queue.
	Notifications delivery.Config `mapstructure:"notifications"`

	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	MaintenanceBackoff  time.Duration `mapstructure:"maintenance_backoff"`
	// UnhealthyAfter is the number of consecutive failed maintenance passes
	// that mark the engine unhealthy.
	UnhealthyAfter int `mapstructure:"unhealthy_after"`

	IndicatorTTL      time.Duration `mapstructure:"indicator_ttl"`
	IndicatorCapacity int           `mapstructure:"indicator_capacity"`
	// IncidentRelevance is how far back rescoring looks at indicators.
	IncidentRelevance time.Duration `mapstructure:"incident_relevance"`

	// ConsumeWorkers is the number of goroutines Consume runs.
	ConsumeWorkers int `mapstructure:"consume_workers"`
}

func DefaultConfig() Config {
	return Config{
		Buffer:              buffer.DefaultConfig(),
		Anomaly:             anomaly.DefaultConfig(),
		Breaker:             breaker.DefaultConfig(),
		Alerts:              alerts.DefaultConfig(),
		Responder:           responder.DefaultConfig(),
		Notifications:       delivery.DefaultConfig(),
		MaintenanceInterval: 60 * time.Second,
		MaintenanceBackoff:  5 * time.Second,
		UnhealthyAfter:      3,
		IndicatorTTL:        24 * time.Hour,
		IndicatorCapacity:   10000,
		IncidentRelevance:   24 * time.Hour,
		ConsumeWorkers:      4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = d.MaintenanceInterval
	}
	if c.MaintenanceBackoff <= 0 {
		c.MaintenanceBackoff = d.MaintenanceBackoff
	}
	if c.UnhealthyAfter <= 0 {
		c.UnhealthyAfter = d.UnhealthyAfter
	}
	if c.IndicatorTTL <= 0 {
		c.IndicatorTTL = d.IndicatorTTL
	}
	if c.IndicatorCapacity <= 0 {
		c.IndicatorCapacity = d.IndicatorCapacity
	}
	if c.IncidentRelevance <= 0 {
		c.IncidentRelevance = d.IncidentRelevance
	}
	if c.ConsumeWorkers <= 0 {
		c.ConsumeWorkers = d.ConsumeWorkers
	}
	return c
}

// Dependencies are the collaborators an Engine talks to. Nil fields get
// in-process defaults.
type Dependencies struct {
	// Patterns defaults to patterns.Defaults().
	Patterns []models.ActivityPattern
	// Detectors are appended after the pattern matchers and heuristics.
	Detectors  []Detector
	Sink       alerts.Sink
	Suppressor alerts.Suppressor
	Executor   responder.Executor
	Archive    incidents.Archive
	Notifier   incidents.Notifier
	Logger     *logging.Logger
	Clock      func() time.Time
	// OnUnhealthy is called when maintenance has failed UnhealthyAfter times
	// in a row.
	OnUnhealthy func(consecutiveFailures int)
}

// Engine is the correlation engine. Create one with New; it is safe for
// concurrent use.
type Engine struct {
	cfg         Config
	logger      *logging.Logger
	now         func() time.Time
	onUnhealthy func(int)

	index      *buffer.Index
	detectors  []Detector
	correlator *incidents.Correlator
	dispatcher *alerts.Dispatcher
	responder  *responder.Responder
	notices    *delivery.Queue[incidents.Notice]
	indicators *registry

	// mu guards closed; ProcessEvent holds it shared while registering
	// with inflight.
	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup

	startOnce sync.Once
	cancel    context.CancelFunc
	loopDone  chan struct{}

	healthy             atomic.Bool
	consecutiveFailures atomic.Int32

	startedAt         time.Time
	eventsProcessed   atomic.Uint64
	eventsRejected    atomic.Uint64
	threatsDetected   atomic.Uint64
	incidentsCreated  atomic.Uint64
	incidentsResolved atomic.Uint64
	maintenanceRuns   atomic.Uint64
	maintenanceFails  atomic.Uint64
}

// New builds an engine from cfg and deps. Call Start to begin background
// delivery and maintenance.
func New(cfg Config, deps Dependencies) (*Engine, error) {
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	pats := deps.Patterns
	if pats == nil {
		pats = patterns.Defaults()
	}
	for i := range pats {
		if err := pats[i].Validate(); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pats[i].ID, err)
		}
	}

	index, err := buffer.New(cfg.Buffer, logger)
	if err != nil {
		return nil, err
	}
	reg, err := newRegistry(cfg.IndicatorCapacity)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         cfg,
		logger:      logger.Component("engine"),
		now:         now,
		onUnhealthy: deps.OnUnhealthy,
		index:       index,
		indicators:  reg,
		loopDone:    make(chan struct{}),
		startedAt:   now(),
	}
	e.healthy.Store(true)
	metrics.Healthy.Set(1)

	for _, m := range patterns.NewMatchers(pats, index) {
		e.detectors = append(e.detectors, m)
	}
	for _, h := range anomaly.Heuristics(cfg.Anomaly, index) {
		e.detectors = append(e.detectors, h)
	}
	e.detectors = append(e.detectors, deps.Detectors...)

	corrOpts := []incidents.Option{incidents.WithClock(now)}
	if deps.Archive != nil {
		corrOpts = append(corrOpts, incidents.WithArchive(deps.Archive))
	}
	e.correlator = incidents.NewCorrelator(logger, corrOpts...)

	sink := deps.Sink
	if sink == nil {
		sink = alerts.NewLogSink(logger)
	}
	e.dispatcher = alerts.NewDispatcher(cfg.Alerts, sink, deps.Suppressor, logger, alerts.WithClock(now))

	exec := deps.Executor
	if exec == nil {
		exec = responder.NewNoopExecutor(logger)
	}
	br := breaker.New(cfg.Breaker, now)
	e.responder = responder.New(cfg.Responder, br, exec, e.correlator,
		patterns.AutoBlockTypes(pats), logger, responder.WithClock(now))

	notifier := deps.Notifier
	if notifier == nil {
		notifier = incidents.NotifierFunc(func(context.Context, incidents.Notice) error { return nil })
	}
	e.notices = delivery.New[incidents.Notice]("incidents", cfg.Notifications, notifier.Notify, nil, logger)

	e.logger.Info("engine created",
		"patterns", len(pats),
		"detectors", len(e.detectors))
	return e, nil
}

// Start launches the delivery workers and the maintenance loop. Delivery
// workers run until Stop drains them. The maintenance loop stops when ctx is
// canceled or Stop is called, so a daemon passes a context that shutdown
// signals do not cancel and lets Stop end it after in-flight events.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.dispatcher.Start(ctx)
		e.responder.Start(ctx)
		e.notices.Start(ctx)

		loopCtx, cancel := context.WithCancel(ctx)
		e.cancel = cancel
		go e.maintenanceLoop(loopCtx)
	})
}

// Stop rejects new events, waits for in-flight ones, stops maintenance and
// drains the delivery queues until ctx expires.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight events: %w", ctx.Err())
	}

	if e.cancel != nil {
		e.cancel()
		select {
		case <-e.loopDone:
		case <-ctx.Done():
			return fmt.Errorf("waiting for maintenance loop: %w", ctx.Err())
		}
	}

	err := errors.Join(
		e.dispatcher.Close(ctx),
		e.responder.Close(ctx),
		e.notices.Close(ctx),
	)
	e.logger.Info("engine stopped",
		"events_processed", e.eventsProcessed.Load(),
		"active_incidents", e.correlator.Len())
	return err
}

// ProcessEvent buffers the event, runs every detector and feeds the
// resulting indicators through correlation, alerting and response. It
// returns the indicators raised by this event.
func (e *Engine) ProcessEvent(ctx context.Context, event models.SecurityEvent) ([]models.ThreatIndicator, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, models.ErrEngineStopped
	}
	e.inflight.Add(1)
	e.mu.RUnlock()
	defer e.inflight.Done()

	start := time.Now()
	if event.ID == "" {
		event.ID = uuid.Must(uuid.NewV7()).String()
	}
	if err := event.Validate(); err != nil {
		e.eventsRejected.Add(1)
		metrics.EventsTotal.WithLabelValues(string(event.Type), "rejected").Inc()
		e.logger.DebugContext(ctx, "event rejected",
			logging.EventID(event.ID),
			logging.Error(err))
		return nil, err
	}

	e.index.Record(event)
	e.responder.Observe(event)

	found := e.detect(ctx, event)
	for i := range found {
		found[i].ID = uuid.Must(uuid.NewV7()).String()
		e.handle(ctx, found[i])
	}

	e.eventsProcessed.Add(1)
	metrics.EventsTotal.WithLabelValues(string(event.Type), "processed").Inc()
	metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	return found, nil
}

// detect runs all detectors concurrently. Output keeps detector order so a
// given buffer state always yields the same indicator sequence.
func (e *Engine) detect(ctx context.Context, event models.SecurityEvent) []models.ThreatIndicator {
	results := make([][]models.ThreatIndicator, len(e.detectors))
	var wg sync.WaitGroup
	for i, d := range e.detectors {
		wg.Add(1)
		go func(i int, d Detector) {
			defer wg.Done()
			results[i] = e.runDetector(ctx, d, event)
		}(i, d)
	}
	wg.Wait()

	var out []models.ThreatIndicator
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (e *Engine) runDetector(ctx context.Context, d Detector, event models.SecurityEvent) (found []models.ThreatIndicator) {
	defer func() {
		if r := recover(); r != nil {
			metrics.DetectorErrors.WithLabelValues(d.Name()).Inc()
			e.logger.ErrorContext(ctx, "detector panicked",
				"detector", d.Name(),
				logging.EventID(event.ID),
				"panic", fmt.Sprint(r))
			found = nil
		}
	}()

	found, err := d.Detect(event)
	if err != nil {
		metrics.DetectorErrors.WithLabelValues(d.Name()).Inc()
		e.logger.WarnContext(ctx, "detector failed",
			"detector", d.Name(),
			logging.EventID(event.ID),
			logging.Error(err))
		return nil
	}
	return found
}

func (e *Engine) handle(ctx context.Context, ind models.ThreatIndicator) {
	e.threatsDetected.Add(1)
	metrics.ThreatsDetected.WithLabelValues(ind.Source, string(ind.Category)).Inc()
	e.indicators.add(ind)

	out := e.correlator.Handle(ind)
	if out.Created {
		e.incidentsCreated.Add(1)
		e.notify(ctx, incidents.NoticeCreated, out.Incident)
	}

	decision := e.dispatcher.Dispatch(ctx, out.Incident, ind)
	actions := e.responder.Respond(ctx, out.Incident.ID, ind)

	e.logger.InfoContext(ctx, "threat detected",
		logging.IndicatorID(ind.ID),
		logging.IncidentID(out.Incident.ID),
		logging.Category(string(ind.Category)),
		logging.Confidence(ind.Confidence),
		"source", ind.Source,
		"alert", string(decision),
		"actions", len(actions))
}

func (e *Engine) notify(ctx context.Context, kind incidents.NoticeKind, inc models.SecurityIncident) {
	if err := e.notices.Submit(incidents.Notice{Kind: kind, Incident: inc}); err != nil {
		e.logger.WarnContext(ctx, "incident notice dropped",
			logging.IncidentID(inc.ID),
			logging.Error(err))
	}
}

// ListActiveIncidents returns open and investigating incidents, highest
// risk first.
func (e *Engine) ListActiveIncidents() []models.SecurityIncident {
	return e.correlator.List()
}

// ListThreatIndicators returns up to limit recent indicators, most recently
// seen first. limit <= 0 returns all tracked indicators.
func (e *Engine) ListThreatIndicators(limit int) []models.ThreatIndicator {
	return e.indicators.list(limit)
}

// GetIncident returns an active incident.
func (e *Engine) GetIncident(id string) (models.SecurityIncident, error) {
	return e.correlator.Get(id)
}

// ResolveIncident closes an active incident. resolution must be "resolved"
// or "false_positive".
func (e *Engine) ResolveIncident(ctx context.Context, id string, resolution string, notes *string) error {
	status, err := models.ParseResolution(resolution)
	if err != nil {
		return err
	}
	inc, err := e.correlator.Resolve(ctx, id, status, notes)
	if err != nil {
		return err
	}
	e.incidentsResolved.Add(1)
	e.notify(ctx, incidents.NoticeResolved, inc)
	return nil
}

// InvestigateIncident moves an open incident to investigating.
func (e *Engine) InvestigateIncident(id string) error {
	return e.correlator.Investigate(id)
}

// IsBlocked reports whether an automated block is in force for address.
func (e *Engine) IsBlocked(address string) bool {
	return e.responder.IsBlocked(address)
}

// Healthy is false after UnhealthyAfter consecutive failed maintenance
// passes, until a pass succeeds.
func (e *Engine) Healthy() bool {
	return e.healthy.Load()
}

// Flush waits until queued alerts, actions and notices have been attempted.
func (e *Engine) Flush(ctx context.Context) error {
	return errors.Join(
		e.dispatcher.Flush(ctx),
		e.responder.Flush(ctx),
		e.notices.Flush(ctx),
	)
}

func (e *Engine) Stats() models.EngineStatistics {
	as := e.dispatcher.Stats()
	return models.EngineStatistics{
		EventsProcessed:     e.eventsProcessed.Load(),
		EventsRejected:      e.eventsRejected.Load(),
		ThreatsDetected:     e.threatsDetected.Load(),
		IncidentsCreated:    e.incidentsCreated.Load(),
		IncidentsResolved:   e.incidentsResolved.Load(),
		AlertsSent:          as.Sent,
		AlertsSuppressed:    as.Suppressed,
		AutomatedBlocks:     e.responder.Executed(),
		ActiveIncidents:     e.correlator.Len(),
		TrackedIndicators:   e.indicators.len(),
		PendingRetries:      as.Pending + e.responder.Pending() + e.notices.Pending(),
		BufferedKeys:        e.index.Keys(),
		MaintenanceRuns:     e.maintenanceRuns.Load(),
		MaintenanceFailures: e.maintenanceFails.Load(),
		Healthy:             e.healthy.Load(),
		StartedAt:           e.startedAt,
	}
}
