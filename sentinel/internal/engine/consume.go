package engine

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// EventSource produces security events. The channel is closed when the
// source is exhausted or ctx is done.
type EventSource interface {
	Events(ctx context.Context) (<-chan models.SecurityEvent, error)
}

// Consume feeds events from src into ProcessEvent with ConsumeWorkers
// goroutines. It returns nil when the source is exhausted, ctx.Err() when
// canceled and ErrEngineStopped once the engine stops.
func (e *Engine) Consume(ctx context.Context, src EventSource) error {
	events, err := src.Events(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.ConsumeWorkers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if _, err := e.ProcessEvent(gctx, ev); err != nil {
						if errors.Is(err, models.ErrEngineStopped) {
							return err
						}
						e.logger.WarnContext(gctx, "event dropped",
							logging.EventID(ev.ID),
							logging.Error(err))
					}
				}
			}
		})
	}
	return g.Wait()
}
