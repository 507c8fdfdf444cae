package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event processing
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_sentinel_events_total",
			Help: "Total number of security events submitted to the engine",
		},
		[]string{"type", "status"},
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telhawk_sentinel_processing_duration_seconds",
			Help:    "Duration of ProcessEvent in seconds",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		},
	)

	DetectorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_sentinel_detector_errors_total",
			Help: "Total number of failed or panicking pattern and heuristic checks",
		},
		[]string{"detector"},
	)

	// Event buffer index
	BufferKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "telhawk_sentinel_buffer_keys",
			Help: "Number of grouping keys held per buffer dimension",
		},
		[]string{"dimension"},
	)

	BufferKeysEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_sentinel_buffer_keys_evicted_total",
			Help: "Grouping keys dropped by the LRU bound or TTL eviction",
		},
		[]string{"dimension", "reason"},
	)

	BufferEventsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_sentinel_buffer_events_evicted_total",
			Help: "Buffered events dropped by TTL eviction",
		},
	)

	// Detection and correlation
	ThreatsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_sentinel_threats_detected_total",
			Help: "Threat indicators emitted",
		},
		[]string{"source", "category"},
	)

	IncidentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_sentinel_incidents_created_total",
			Help: "Incidents opened",
		},
		[]string{"category"},
	)

	IncidentsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_sentinel_incidents_resolved_total",
			Help: "Incidents closed, by resolution",
		},
		[]string{"resolution"},
	)

	ActiveIncidents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telhawk_sentinel_active_incidents",
			Help: "Incidents currently open or under investigation",
		},
	)

	// Alerting and response
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_sentinel_alerts_total",
			Help: "Alert delivery attempts by kind and status",
		},
		[]string{"kind", "status"},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_sentinel_alerts_suppressed_total",
			Help: "Alerts dropped by the suppression window",
		},
	)

	AutomatedActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_sentinel_automated_actions_total",
			Help: "Automated response attempts by type and status",
		},
		[]string{"type", "status"},
	)

	BreakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_sentinel_breaker_trips_total",
			Help: "Circuit breakers opened",
		},
	)

	PendingDeliveries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "telhawk_sentinel_pending_deliveries",
			Help: "Deliveries waiting for a maintenance retry",
		},
		[]string{"queue"},
	)

	DeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_sentinel_dead_lettered_total",
			Help: "Deliveries abandoned after exhausting retries",
		},
		[]string{"queue"},
	)

	// Maintenance loop
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_sentinel_maintenance_runs_total",
			Help: "Maintenance passes by status",
		},
		[]string{"status"},
	)

	MaintenanceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telhawk_sentinel_maintenance_duration_seconds",
			Help:    "Duration of maintenance passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	Healthy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telhawk_sentinel_healthy",
			Help: "1 while the maintenance loop is healthy, 0 after repeated failures",
		},
	)
)
