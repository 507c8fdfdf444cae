package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/common/messaging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/metrics"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// Subscriber is an engine.EventSource fed by a NATS queue subscription.
type Subscriber struct {
	client  messaging.Subscriber
	subject string
	queue   string
	buffer  int
	logger  *logging.Logger
}

// NewSubscriber subscribes to the security event subject within queue. An
// empty queue uses the shared sentinel worker group.
func NewSubscriber(client messaging.Subscriber, queue string, buffer int, logger *logging.Logger) *Subscriber {
	if queue == "" {
		queue = messaging.QueueSentinelWorkers
	}
	if buffer < 0 {
		buffer = 0
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Subscriber{
		client:  client,
		subject: messaging.SubjectSecurityEvents,
		queue:   queue,
		buffer:  buffer,
		logger:  logger.Component("nats-source"),
	}
}

// Events subscribes and returns a channel closed once ctx is done. A full
// channel applies back-pressure to the subscription handler.
func (s *Subscriber) Events(ctx context.Context) (<-chan models.SecurityEvent, error) {
	out := make(chan models.SecurityEvent, s.buffer)

	var mu sync.RWMutex
	closed := false

	handler := func(hctx context.Context, msg *messaging.Message) error {
		var ev models.SecurityEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			metrics.EventsTotal.WithLabelValues("unknown", "malformed").Inc()
			s.logger.WarnContext(hctx, "discarding malformed event",
				"subject", msg.Subject,
				logging.Error(err))
			return nil
		}

		mu.RLock()
		defer mu.RUnlock()
		if closed {
			return nil
		}
		select {
		case out <- ev:
		case <-ctx.Done():
		}
		return nil
	}

	sub, err := s.client.QueueSubscribe(s.subject, s.queue, handler)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	s.logger.Info("subscribed to security events",
		"subject", s.subject,
		"queue", s.queue)

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("failed to unsubscribe",
				"subject", sub.Subject(),
				logging.Error(err))
		}
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}
