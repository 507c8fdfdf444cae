package logging

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		name  string
		attr  slog.Attr
		key   string
		value string
	}{
		{"service", Service("sentinel"), FieldService, "sentinel"},
		{"actor", Actor("user-1"), FieldActor, "user-1"},
		{"ip", IP("203.0.113.7"), FieldIP, "203.0.113.7"},
		{"event id", EventID("e-1"), FieldEventID, "e-1"},
		{"event type", EventType("auth.login.failed"), FieldEventType, "auth.login.failed"},
		{"incident id", IncidentID("i-1"), FieldIncidentID, "i-1"},
		{"indicator id", IndicatorID("t-1"), FieldIndicator, "t-1"},
		{"category", Category("brute_force"), FieldCategory, "brute_force"},
		{"pattern id", PatternID("brute_force"), FieldPatternID, "brute_force"},
		{"error", Error(errors.New("boom")), FieldError, "boom"},
		{"nil error", Error(nil), FieldError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.value, tt.attr.Value.String())
		})
	}
}

func TestNumericFieldHelpers(t *testing.T) {
	d := Duration(1500 * time.Millisecond)
	assert.Equal(t, FieldDuration, d.Key)
	assert.Equal(t, int64(1500), d.Value.Int64())

	c := Confidence(0.75)
	assert.Equal(t, FieldConfidence, c.Key)
	assert.InDelta(t, 0.75, c.Value.Float64(), 1e-9)

	a := Attempt(3)
	assert.Equal(t, FieldAttempt, a.Key)
	assert.Equal(t, int64(3), a.Value.Int64())
}
