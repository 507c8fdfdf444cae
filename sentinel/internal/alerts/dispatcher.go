package alerts

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/delivery"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/metrics"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// Decision is what Dispatch did with an indicator.
type Decision string

const (
	DecisionNone       Decision = "none"
	DecisionSuppressed Decision = "suppressed"
	DecisionAlert      Decision = "alert"
	DecisionEscalate   Decision = "escalate"
)

type Config struct {
	SuppressionWindow time.Duration   `mapstructure:"suppression_window"`
	Queue             delivery.Config `mapstructure:"queue"`
}

func DefaultConfig() Config {
	return Config{
		SuppressionWindow: 5 * time.Minute,
		Queue:             delivery.DefaultConfig(),
	}
}

// Stats counts dispatcher outcomes.
type Stats struct {
	Sent         uint64
	Suppressed   uint64
	Failed       uint64
	DeadLettered uint64
	Pending      int
}

// Dispatcher decides whether an indicator is worth an alert and hands the
// alert to the delivery queue.
type Dispatcher struct {
	cfg        Config
	sink       Sink
	suppressor Suppressor
	queue      *delivery.Queue[Alert]
	logger     *logging.Logger
	now        func() time.Time

	sent       atomic.Uint64
	suppressed atomic.Uint64
}

type Option func(*Dispatcher)

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher. A nil suppressor means an in-memory one.
func NewDispatcher(cfg Config, sink Sink, suppressor Suppressor, logger *logging.Logger, opts ...Option) *Dispatcher {
	if cfg.SuppressionWindow <= 0 {
		cfg.SuppressionWindow = DefaultConfig().SuppressionWindow
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger.Component("alerts"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if suppressor == nil {
		suppressor = NewMemorySuppressor(d.now)
	}
	d.suppressor = suppressor
	d.queue = delivery.New[Alert]("alerts", cfg.Queue, d.send, d.observe, logger)
	return d
}

func (d *Dispatcher) send(ctx context.Context, a Alert) error {
	return d.sink.Send(ctx, a)
}

func (d *Dispatcher) observe(a Alert, attempt int, err error) {
	if err != nil {
		metrics.AlertsTotal.WithLabelValues(string(a.Kind), "failed").Inc()
		d.logger.Warn("alert delivery failed",
			"alert_id", a.ID,
			logging.IncidentID(a.IncidentID),
			logging.Attempt(attempt),
			logging.Error(err))
		return
	}
	d.sent.Add(1)
	metrics.AlertsTotal.WithLabelValues(string(a.Kind), "sent").Inc()
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Dispatch evaluates ind in the context of the incident it was merged into.
// Suppressor errors fail open so an outage never hides an alert.
func (d *Dispatcher) Dispatch(ctx context.Context, inc models.SecurityIncident, ind models.ThreatIndicator) Decision {
	kind, ok := Classify(ind.Confidence, ind.Thresholds)
	if !ok {
		return DecisionNone
	}

	key := SuppressionKey(inc.ID, string(ind.Category), kind)
	allowed, err := d.suppressor.Allow(ctx, key, d.cfg.SuppressionWindow)
	if err != nil {
		d.logger.WarnContext(ctx, "suppression check failed, sending anyway",
			logging.IncidentID(inc.ID),
			logging.Error(err))
		allowed = true
	}
	if !allowed {
		d.suppressed.Add(1)
		metrics.AlertsSuppressed.Inc()
		return DecisionSuppressed
	}

	alert := Alert{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Kind:       kind,
		IncidentID: inc.ID,
		Title:      inc.Title,
		Category:   ind.Category,
		Level:      ind.Level,
		Confidence: ind.Confidence,
		RiskScore:  inc.RiskScore,
		Indicator:  ind,
		CreatedAt:  d.now(),
	}
	if err := d.queue.Submit(alert); err != nil {
		d.logger.WarnContext(ctx, "alert dropped",
			logging.IncidentID(inc.ID),
			logging.Error(err))
		return DecisionNone
	}

	if kind == KindEscalation {
		return DecisionEscalate
	}
	return DecisionAlert
}

// RetryPending re-submits failed alerts. Called by the maintenance loop.
func (d *Dispatcher) RetryPending() int {
	return d.queue.RetryPending()
}

// Sweep expires suppression entries.
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	return d.suppressor.Sweep(ctx)
}

func (d *Dispatcher) Flush(ctx context.Context) error {
	return d.queue.Flush(ctx)
}

func (d *Dispatcher) Close(ctx context.Context) error {
	return d.queue.Close(ctx)
}

func (d *Dispatcher) Stats() Stats {
	qs := d.queue.Stats()
	return Stats{
		Sent:         d.sent.Load(),
		Suppressed:   d.suppressed.Load(),
		Failed:       qs.Failed,
		DeadLettered: qs.DeadLettered,
		Pending:      qs.Pending,
	}
}
