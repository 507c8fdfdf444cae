package logging

import (
	"log/slog"
	"time"
)

// Field names shared by every sentinel component.
const (
	FieldService    = "service"
	FieldComponent  = "component"
	FieldTraceID    = "trace_id"
	FieldActor      = "actor_id"
	FieldIP         = "ip"
	FieldEventID    = "event_id"
	FieldEventType  = "event_type"
	FieldIncidentID = "incident_id"
	FieldIndicator  = "indicator_id"
	FieldCategory   = "category"
	FieldPatternID  = "pattern_id"
	FieldConfidence = "confidence"
	FieldDuration   = "duration_ms"
	FieldAttempt    = "attempt"
	FieldError      = "error"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func Actor(id string) slog.Attr {
	return slog.String(FieldActor, id)
}

func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

func IncidentID(id string) slog.Attr {
	return slog.String(FieldIncidentID, id)
}

func IndicatorID(id string) slog.Attr {
	return slog.String(FieldIndicator, id)
}

func Category(c string) slog.Attr {
	return slog.String(FieldCategory, c)
}

func PatternID(id string) slog.Attr {
	return slog.String(FieldPatternID, id)
}

func Confidence(c float64) slog.Attr {
	return slog.Float64(FieldConfidence, c)
}

func Attempt(n int) slog.Attr {
	return slog.Int(FieldAttempt, n)
}

// Duration returns a slog attribute for d in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error. A nil error yields an empty value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
