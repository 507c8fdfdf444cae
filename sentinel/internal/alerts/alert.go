// Package alerts turns threat indicators into alerts and escalations and
// delivers them to a Sink without blocking event processing.
package alerts

import (
	"context"
	"time"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// Kind distinguishes routine alerts from escalations.
type Kind string

const (
	KindAlert      Kind = "alert"
	KindEscalation Kind = "escalation"
)

// Alert is what a Sink receives.
type Alert struct {
	ID         string                 `json:"id"`
	Kind       Kind                   `json:"kind"`
	IncidentID string                 `json:"incident_id"`
	Title      string                 `json:"title"`
	Category   models.ThreatCategory  `json:"category"`
	Level      models.ThreatLevel     `json:"level"`
	Confidence float64                `json:"confidence"`
	RiskScore  int                    `json:"risk_score"`
	Indicator  models.ThreatIndicator `json:"indicator"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Sink delivers alerts to whatever notifies humans.
type Sink interface {
	Send(ctx context.Context, alert Alert) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, alert Alert) error

func (f SinkFunc) Send(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}

// LogSink writes alerts to the log. Used when no transport is configured.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger.Component("alert-sink")}
}

func (s *LogSink) Send(ctx context.Context, a Alert) error {
	log := s.logger.InfoContext
	if a.Kind == KindEscalation {
		log = s.logger.WarnContext
	}
	log(ctx, "security alert",
		"alert_id", a.ID,
		"kind", string(a.Kind),
		logging.IncidentID(a.IncidentID),
		logging.Category(string(a.Category)),
		"level", a.Level.String(),
		logging.Confidence(a.Confidence),
		"risk_score", a.RiskScore,
		"title", a.Title)
	return nil
}

// Classify maps a confidence onto an alert kind using t. ok is false when
// the confidence is below the alert threshold.
func Classify(confidence float64, t models.Thresholds) (kind Kind, ok bool) {
	t = t.WithDefaults()
	switch {
	case confidence >= t.Escalate:
		return KindEscalation, true
	case confidence >= t.Alert:
		return KindAlert, true
	}
	return "", false
}
