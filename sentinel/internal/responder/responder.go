// Package responder issues automated address blocks for incidents whose
// indicators allow it.
package responder

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/breaker"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/delivery"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/metrics"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// ActionRequest asks an Executor to carry out one automated action.
type ActionRequest struct {
	ID          string            `json:"id"`
	Type        models.ActionType `json:"type"`
	Target      string            `json:"target"`
	IncidentID  string            `json:"incident_id"`
	IndicatorID string            `json:"indicator_id"`
	Reason      string            `json:"reason"`
	Duration    time.Duration     `json:"duration"`
	RequestedAt time.Time         `json:"requested_at"`
}

// Executor performs actions against the protected infrastructure.
type Executor interface {
	Execute(ctx context.Context, req ActionRequest) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req ActionRequest) error

func (f ExecutorFunc) Execute(ctx context.Context, req ActionRequest) error {
	return f(ctx, req)
}

// NoopExecutor only logs requests.
type NoopExecutor struct {
	logger *logging.Logger
}

func NewNoopExecutor(logger *logging.Logger) *NoopExecutor {
	if logger == nil {
		logger = logging.Default()
	}
	return &NoopExecutor{logger: logger.Component("noop-executor")}
}

func (e *NoopExecutor) Execute(ctx context.Context, req ActionRequest) error {
	e.logger.InfoContext(ctx, "automated action requested",
		"action", string(req.Type),
		"target", req.Target,
		logging.IncidentID(req.IncidentID))
	return nil
}

// Recorder stores the outcome of each action attempt on its incident.
type Recorder interface {
	RecordAction(incidentID string, action models.AutomatedAction) error
}

type Config struct {
	// BlockDuration is how long a blocked address stays blocked and how long
	// repeat requests for it are ignored.
	BlockDuration time.Duration   `mapstructure:"block_duration"`
	Queue         delivery.Config `mapstructure:"queue"`
}

func DefaultConfig() Config {
	return Config{
		BlockDuration: time.Hour,
		Queue:         delivery.DefaultConfig(),
	}
}

type block struct {
	until    time.Time
	executed bool
}

// Responder feeds the breaker from observed events and turns auto-block
// indicators into block requests.
type Responder struct {
	cfg       Config
	breaker   *breaker.Breaker
	exec      Executor
	recorder  Recorder
	autoTypes map[models.EventType]bool
	queue     *delivery.Queue[ActionRequest]
	logger    *logging.Logger
	now       func() time.Time

	mu     sync.Mutex
	blocks map[string]*block

	executed atomic.Uint64
}

type Option func(*Responder)

func WithClock(now func() time.Time) Option {
	return func(r *Responder) { r.now = now }
}

// New creates a responder. autoTypes are the event types belonging to
// auto-block patterns; only they feed the breaker.
func New(cfg Config, br *breaker.Breaker, exec Executor, recorder Recorder, autoTypes map[models.EventType]bool, logger *logging.Logger, opts ...Option) *Responder {
	def := DefaultConfig()
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = def.BlockDuration
	}
	if cfg.Queue.MaxAttempts <= 0 {
		cfg.Queue.MaxAttempts = def.Queue.MaxAttempts
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Responder{
		cfg:       cfg,
		breaker:   br,
		exec:      exec,
		recorder:  recorder,
		autoTypes: autoTypes,
		logger:    logger.Component("responder"),
		now:       time.Now,
		blocks:    make(map[string]*block),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = delivery.New[ActionRequest]("actions", cfg.Queue, r.execute, r.observe, logger)
	return r
}

func (r *Responder) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Observe updates the breaker for the event's source address. Events with
// no outcome say nothing about success and are ignored.
func (r *Responder) Observe(e models.SecurityEvent) {
	if !r.autoTypes[e.Type] || e.Outcome == "" {
		return
	}
	addr := canonicalAddr(e.SourceAddress)
	if r.breaker.Evaluate(addr, e.Outcome == models.OutcomeSuccess) {
		r.logger.Warn("breaker opened",
			logging.IP(addr),
			logging.EventType(string(e.Type)))
	}
}

// Respond queues a block for every address in ind that qualifies and
// returns the queued requests.
func (r *Responder) Respond(ctx context.Context, incidentID string, ind models.ThreatIndicator) []ActionRequest {
	if !ind.AutoBlock {
		return nil
	}
	th := ind.Thresholds.WithDefaults()
	confident := ind.Confidence >= th.AutoBlock

	var out []ActionRequest
	for _, entity := range ind.AffectedEntities {
		addr, err := netip.ParseAddr(entity)
		if err != nil {
			continue
		}
		target := addr.String()

		tripped := r.breaker.IsOpen(target)
		if !tripped && !confident {
			continue
		}
		if !r.claim(target) {
			continue
		}

		reason := fmt.Sprintf("%s confidence %.2f", ind.Source, ind.Confidence)
		if tripped {
			reason = fmt.Sprintf("%s, breaker open", reason)
		}
		req := ActionRequest{
			ID:          uuid.Must(uuid.NewV7()).String(),
			Type:        models.ActionBlockAddress,
			Target:      target,
			IncidentID:  incidentID,
			IndicatorID: ind.ID,
			Reason:      reason,
			Duration:    r.cfg.BlockDuration,
			RequestedAt: r.now(),
		}
		if err := r.queue.Submit(req); err != nil {
			r.release(target)
			r.logger.WarnContext(ctx, "block request dropped",
				logging.IP(target),
				logging.Error(err))
			continue
		}
		r.logger.InfoContext(ctx, "block requested",
			logging.IP(target),
			logging.IncidentID(incidentID),
			logging.Confidence(ind.Confidence))
		out = append(out, req)
	}
	return out
}

// claim reserves target for one block period.
func (r *Responder) claim(target string) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.blocks[target]; ok && now.Before(b.until) {
		return false
	}
	r.blocks[target] = &block{until: now.Add(r.cfg.BlockDuration)}
	return true
}

func (r *Responder) release(target string) {
	r.mu.Lock()
	delete(r.blocks, target)
	r.mu.Unlock()
}

func (r *Responder) execute(ctx context.Context, req ActionRequest) error {
	return r.exec.Execute(ctx, req)
}

func (r *Responder) observe(req ActionRequest, attempt int, err error) {
	action := models.AutomatedAction{
		ID:        req.ID,
		Type:      req.Type,
		Target:    req.Target,
		Status:    models.ActionExecuted,
		Reason:    req.Reason,
		Attempt:   attempt,
		Timestamp: r.now(),
	}
	if err != nil {
		action.Status = models.ActionFailed
		action.Error = err.Error()
	}
	metrics.AutomatedActions.WithLabelValues(string(req.Type), string(action.Status)).Inc()

	switch {
	case err == nil:
		r.executed.Add(1)
		r.mu.Lock()
		if b, ok := r.blocks[req.Target]; ok {
			b.executed = true
		}
		r.mu.Unlock()
	case attempt >= r.cfg.Queue.MaxAttempts:
		// Given up: let a later indicator try again.
		r.release(req.Target)
	}

	if r.recorder == nil {
		return
	}
	if rerr := r.recorder.RecordAction(req.IncidentID, action); rerr != nil {
		// The incident may have been resolved while the action was in flight.
		r.logger.Debug("action not recorded",
			logging.IncidentID(req.IncidentID),
			logging.Error(rerr))
	}
}

// IsBlocked reports whether a block for addr has been executed and has not
// yet expired.
func (r *Responder) IsBlocked(addr string) bool {
	addr = canonicalAddr(addr)
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blocks[addr]
	return ok && b.executed && now.Before(b.until)
}

// canonicalAddr returns the canonical text form of an IP address so that
// breaker and block keys agree however the address was written. Anything
// that does not parse is returned unchanged.
func canonicalAddr(s string) string {
	if p, err := netip.ParseAddr(s); err == nil {
		return p.String()
	}
	return s
}

// Sweep drops expired blocks and idle breaker keys.
func (r *Responder) Sweep() int {
	now := r.now()
	r.mu.Lock()
	removed := 0
	for addr, b := range r.blocks {
		if !now.Before(b.until) {
			delete(r.blocks, addr)
			removed++
		}
	}
	r.mu.Unlock()
	return removed + r.breaker.Sweep()
}

func (r *Responder) RetryPending() int {
	return r.queue.RetryPending()
}

func (r *Responder) Pending() int {
	return r.queue.Pending()
}

// Executed is the number of successful actions.
func (r *Responder) Executed() uint64 {
	return r.executed.Load()
}

func (r *Responder) Flush(ctx context.Context) error {
	return r.queue.Flush(ctx)
}

func (r *Responder) Close(ctx context.Context) error {
	return r.queue.Close(ctx)
}
