// Package nats connects the engine to NATS: security events come in on a
// queue subscription, alerts, block requests and incident notices go out as
// JSON messages.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/common/messaging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/alerts"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/incidents"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/responder"
)

const sourceName = "telhawk-sentinel"

// publish marshals data to JSON and publishes it with sentinel headers.
func publish(ctx context.Context, client messaging.Publisher, subject string, data any) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return client.PublishMsg(ctx, &messaging.Message{
		Subject:  subject,
		Data:     bytes,
		Metadata: headers(ctx),
	})
}

func headers(ctx context.Context) map[string]string {
	h := map[string]string{
		messaging.HeaderContentType: "application/json",
		messaging.HeaderSource:      sourceName,
	}
	if id := logging.TraceID(ctx); id != "" {
		h[messaging.HeaderTraceID] = id
	}
	return h
}

// AlertPublisher is an alerts.Sink that publishes alerts and escalations on
// separate subjects.
type AlertPublisher struct {
	client messaging.Publisher
}

var _ alerts.Sink = (*AlertPublisher)(nil)

func NewAlertPublisher(client messaging.Publisher) *AlertPublisher {
	return &AlertPublisher{client: client}
}

func (p *AlertPublisher) Send(ctx context.Context, a alerts.Alert) error {
	subject := messaging.SubjectAlertsRaised
	if a.Kind == alerts.KindEscalation {
		subject = messaging.SubjectAlertsEscalated
	}
	return publish(ctx, p.client, subject, a)
}

// ActionAck is the reply an edge responder sends for a block request.
type ActionAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ActionPublisher is a responder.Executor that sends block requests to the
// edge. With RequireAck the request waits for an ActionAck and a missing or
// negative reply fails the attempt.
type ActionPublisher struct {
	client     messaging.Publisher
	requireAck bool
	timeout    time.Duration
}

var _ responder.Executor = (*ActionPublisher)(nil)

func NewActionPublisher(client messaging.Publisher, requireAck bool, timeout time.Duration) *ActionPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ActionPublisher{client: client, requireAck: requireAck, timeout: timeout}
}

func (p *ActionPublisher) Execute(ctx context.Context, req responder.ActionRequest) error {
	if !p.requireAck {
		return publish(ctx, p.client, messaging.SubjectActionsBlock, req)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}
	reply, err := p.client.Request(ctx, messaging.SubjectActionsBlock, data, p.timeout)
	if err != nil {
		return fmt.Errorf("block %s: %w", req.Target, err)
	}

	var ack ActionAck
	if err := json.Unmarshal(reply.Data, &ack); err != nil {
		return fmt.Errorf("block %s: invalid ack: %w", req.Target, err)
	}
	if !ack.OK {
		return fmt.Errorf("block %s rejected: %s", req.Target, ack.Error)
	}
	return nil
}

// IncidentPublisher is an incidents.Notifier.
type IncidentPublisher struct {
	client messaging.Publisher
}

var _ incidents.Notifier = (*IncidentPublisher)(nil)

func NewIncidentPublisher(client messaging.Publisher) *IncidentPublisher {
	return &IncidentPublisher{client: client}
}

func (p *IncidentPublisher) Notify(ctx context.Context, n incidents.Notice) error {
	switch n.Kind {
	case incidents.NoticeCreated:
		return publish(ctx, p.client, messaging.SubjectIncidentsCreated, n.Incident)
	case incidents.NoticeResolved:
		return publish(ctx, p.client, messaging.SubjectIncidentsResolved, n.Incident)
	}
	return fmt.Errorf("unknown incident notice %q", n.Kind)
}
