package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/metrics"
)

// maintenanceLoop runs one pass per interval. Passes never overlap.
func (e *Engine) maintenanceLoop(ctx context.Context) {
	defer close(e.loopDone)

	ticker := time.NewTicker(e.cfg.MaintenanceInterval)
	defer ticker.Stop()

	e.logger.Info("maintenance loop started", "interval", e.cfg.MaintenanceInterval.String())
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("maintenance loop stopped")
			return
		case <-ticker.C:
			if err := e.RunMaintenance(ctx); err != nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(e.cfg.MaintenanceBackoff):
				}
			}
		}
	}
}

// RunMaintenance performs one maintenance pass: buffer eviction, incident
// rescoring, indicator pruning, delivery retries and sweeps. A panic in any
// step fails the pass rather than the process.
func (e *Engine) RunMaintenance(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("maintenance panic: %v", r)
		}
		e.recordPass(ctx, err, time.Since(start))
	}()

	now := e.now()

	evicted := e.index.EvictExpired(now)
	rescored := e.correlator.Rescore(now, e.cfg.IncidentRelevance)
	pruned := e.indicators.prune(now.Add(-e.cfg.IndicatorTTL))

	retried := e.dispatcher.RetryPending() +
		e.responder.RetryPending() +
		e.notices.RetryPending()

	var errs []error
	swept, serr := e.dispatcher.Sweep(ctx)
	if serr != nil {
		errs = append(errs, fmt.Errorf("suppression sweep: %w", serr))
	}
	swept += e.responder.Sweep()

	e.logger.Debug("maintenance pass",
		"events_evicted", evicted.Events,
		"keys_evicted", evicted.Keys,
		"incidents_rescored", rescored,
		"indicators_pruned", pruned,
		"deliveries_retried", retried,
		"entries_swept", swept)
	return errors.Join(errs...)
}

func (e *Engine) recordPass(ctx context.Context, err error, took time.Duration) {
	e.maintenanceRuns.Add(1)
	metrics.MaintenanceDuration.Observe(took.Seconds())

	if err == nil {
		metrics.MaintenanceRuns.WithLabelValues("success").Inc()
		e.consecutiveFailures.Store(0)
		if !e.healthy.Swap(true) {
			metrics.Healthy.Set(1)
			e.logger.InfoContext(ctx, "engine healthy again")
		}
		return
	}

	e.maintenanceFails.Add(1)
	metrics.MaintenanceRuns.WithLabelValues("failure").Inc()
	n := int(e.consecutiveFailures.Add(1))
	e.logger.ErrorContext(ctx, "maintenance pass failed",
		"consecutive_failures", n,
		logging.Duration(took),
		logging.Error(err))

	if n == e.cfg.UnhealthyAfter {
		e.healthy.Store(false)
		metrics.Healthy.Set(0)
		if e.onUnhealthy != nil {
			e.onUnhealthy(n)
		}
	}
}
