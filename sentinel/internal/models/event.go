// Package models holds the data model shared by every sentinel component.
package models

import "time"

// EventType is the closed set of security event kinds the engine understands.
type EventType string

const (
	EventLoginSuccess     EventType = "auth.login.success"
	EventLoginFailed      EventType = "auth.login.failed"
	EventLogout           EventType = "auth.logout"
	EventPasswordReset    EventType = "auth.password.reset"
	EventMFAFailed        EventType = "auth.mfa.failed"
	EventAPIKeyValidated  EventType = "apikey.validated"
	EventAPIKeyInvalid    EventType = "apikey.invalid"
	EventRateLimited      EventType = "ratelimit.exceeded"
	EventDataAccess       EventType = "data.access"
	EventDataExport       EventType = "data.export"
	EventPermissionDenied EventType = "permission.denied"
)

// EventTypes lists every known EventType.
func EventTypes() []EventType {
	return []EventType{
		EventLoginSuccess, EventLoginFailed, EventLogout, EventPasswordReset,
		EventMFAFailed, EventAPIKeyValidated, EventAPIKeyInvalid, EventRateLimited,
		EventDataAccess, EventDataExport, EventPermissionDenied,
	}
}

func (t EventType) IsValid() bool {
	switch t {
	case EventLoginSuccess, EventLoginFailed, EventLogout, EventPasswordReset,
		EventMFAFailed, EventAPIKeyValidated, EventAPIKeyInvalid, EventRateLimited,
		EventDataAccess, EventDataExport, EventPermissionDenied:
		return true
	}
	return false
}

// Outcome is the result of the action an event describes.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

func (o Outcome) IsValid() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

// SecurityEvent is an immutable record of a security-relevant action.
type SecurityEvent struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	Timestamp     time.Time      `json:"timestamp"`
	ActorID       string         `json:"actor_id"`
	SourceAddress string         `json:"source_address"`
	SourceCountry string         `json:"source_country,omitempty"`
	Outcome       Outcome        `json:"outcome,omitempty"`
	Service       string         `json:"service,omitempty"`
	RiskScore     *float64       `json:"risk_score,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Validate rejects events the engine cannot group or order.
func (e SecurityEvent) Validate() error {
	switch {
	case e.ActorID == "":
		return &ValidationError{Field: "actor_id", Reason: "is required"}
	case e.SourceAddress == "":
		return &ValidationError{Field: "source_address", Reason: "is required"}
	case !e.Type.IsValid():
		return &ValidationError{Field: "type", Reason: "unknown event type " + string(e.Type)}
	case e.Timestamp.IsZero():
		return &ValidationError{Field: "timestamp", Reason: "is required"}
	case e.Outcome != "" && !e.Outcome.IsValid():
		return &ValidationError{Field: "outcome", Reason: "must be success or failure"}
	case e.RiskScore != nil && (*e.RiskScore < 0 || *e.RiskScore > 1):
		return &ValidationError{Field: "risk_score", Reason: "must be within [0,1]"}
	}
	return nil
}
