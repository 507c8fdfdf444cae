package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoResponders is returned by Request when nobody listens on the subject.
// Health checks treat it as success since the round trip to the broker worked.
var ErrNoResponders = errors.New("no responders available")

// HealthStatus represents the health state of a messaging connection.
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// Healthy reports whether the status represents a usable connection.
func (s HealthStatus) Healthy() bool {
	return s.Connected && s.Error == ""
}

// CheckClientHealth verifies connectivity and measures a round trip.
func CheckClientHealth(ctx context.Context, client Client) HealthStatus {
	status := HealthStatus{}
	if client == nil {
		status.Error = "client is nil"
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	start := time.Now()
	_, err := client.Request(ctx, HealthSubject, []byte("ping"), 2*time.Second)
	status.Latency = time.Since(start)

	if err != nil && !errors.Is(err, ErrNoResponders) {
		status.Error = fmt.Sprintf("health check failed: %v", err)
	}
	return status
}
