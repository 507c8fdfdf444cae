package models

import "time"

// EngineStatistics is a point-in-time snapshot of engine counters.
type EngineStatistics struct {
	EventsProcessed     uint64    `json:"events_processed"`
	EventsRejected      uint64    `json:"events_rejected"`
	ThreatsDetected     uint64    `json:"threats_detected"`
	IncidentsCreated    uint64    `json:"incidents_created"`
	IncidentsResolved   uint64    `json:"incidents_resolved"`
	AlertsSent          uint64    `json:"alerts_sent"`
	AlertsSuppressed    uint64    `json:"alerts_suppressed"`
	AutomatedBlocks     uint64    `json:"automated_blocks"`
	ActiveIncidents     int       `json:"active_incidents"`
	TrackedIndicators   int       `json:"tracked_indicators"`
	PendingRetries      int       `json:"pending_retries"`
	BufferedKeys        int       `json:"buffered_keys"`
	MaintenanceRuns     uint64    `json:"maintenance_runs"`
	MaintenanceFailures uint64    `json:"maintenance_failures"`
	Healthy             bool      `json:"healthy"`
	StartedAt           time.Time `json:"started_at"`
}
