package messaging

// Subjects follow {product}.{domain}.{action}.
const (
	// SubjectSecurityEvents carries SecurityEvent JSON produced by the
	// authentication, API-gateway and data-access layers.
	SubjectSecurityEvents = "sentinel.events.security"

	SubjectAlertsRaised    = "sentinel.alerts.raised"
	SubjectAlertsEscalated = "sentinel.alerts.escalated"

	SubjectIncidentsCreated  = "sentinel.incidents.created"
	SubjectIncidentsResolved = "sentinel.incidents.resolved"

	// SubjectActionsBlock carries IP-block requests for the edge responder.
	SubjectActionsBlock = "sentinel.actions.block"
)

// QueueSentinelWorkers is the queue group shared by engine replicas so each
// event is correlated once.
const QueueSentinelWorkers = "sentinel-workers"

// HealthSubject is pinged by CheckClientHealth.
const HealthSubject = "_HEALTH.sentinel"
