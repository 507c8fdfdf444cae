package responder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/breaker"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/delivery"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

type fakeExecutor struct {
	mu   sync.Mutex
	reqs []ActionRequest
	fail atomic.Bool
}

func (e *fakeExecutor) Execute(_ context.Context, req ActionRequest) error {
	if e.fail.Load() {
		return errors.New("firewall unreachable")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
	return nil
}

func (e *fakeExecutor) targets() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, r := range e.reqs {
		out = append(out, r.Target)
	}
	return out
}

type fakeRecorder struct {
	mu      sync.Mutex
	actions map[string][]models.AutomatedAction
}

func (r *fakeRecorder) RecordAction(id string, a models.AutomatedAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.actions == nil {
		r.actions = make(map[string][]models.AutomatedAction)
	}
	r.actions[id] = append(r.actions[id], a)
	return nil
}

func (r *fakeRecorder) get(id string) []models.AutomatedAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AutomatedAction(nil), r.actions[id]...)
}

type fixture struct {
	r    *Responder
	exec *fakeExecutor
	rec  *fakeRecorder
	now  *time.Time
}

func newFixture(t *testing.T, maxAttempts int) *fixture {
	t.Helper()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	f := &fixture{exec: &fakeExecutor{}, rec: &fakeRecorder{}, now: &now}
	br := breaker.New(breaker.Config{Threshold: 5, Timeout: time.Minute}, clock)
	auto := map[models.EventType]bool{models.EventLoginFailed: true, models.EventLoginSuccess: true}
	cfg := Config{BlockDuration: time.Hour, Queue: delivery.Config{Workers: 1, MaxAttempts: maxAttempts}}
	f.r = New(cfg, br, f.exec, f.rec, auto, logging.Discard(), WithClock(clock))
	f.r.Start(context.Background())
	t.Cleanup(func() { _ = f.r.Close(context.Background()) })
	return f
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.r.Flush(ctx))
}

func blockIndicator(conf float64, entities ...string) models.ThreatIndicator {
	return models.ThreatIndicator{
		ID:               "ind-1",
		Source:           "brute_force",
		Category:         models.CategoryBruteForce,
		Level:            models.LevelHigh,
		Confidence:       conf,
		AffectedEntities: entities,
		Thresholds:       models.Thresholds{Alert: 0.7, Escalate: 0.9, AutoBlock: 0.9},
		AutoBlock:        true,
	}
}

func failedLogin(addr string) models.SecurityEvent {
	return models.SecurityEvent{
		ID:            "e",
		Type:          models.EventLoginFailed,
		ActorID:       "alice",
		SourceAddress: addr,
		Outcome:       models.OutcomeFailure,
		Timestamp:     time.Now(),
	}
}

func TestResponder_BlocksOnHighConfidence(t *testing.T) {
	f := newFixture(t, 3)

	reqs := f.r.Respond(context.Background(), "inc-1", blockIndicator(0.95, "alice", "192.168.1.100"))
	require.Len(t, reqs, 1)
	assert.Equal(t, "192.168.1.100", reqs[0].Target)
	assert.Equal(t, models.ActionBlockAddress, reqs[0].Type)
	f.flush(t)

	assert.Equal(t, []string{"192.168.1.100"}, f.exec.targets())
	assert.True(t, f.r.IsBlocked("192.168.1.100"))
	assert.False(t, f.r.IsBlocked("alice"))

	actions := f.rec.get("inc-1")
	require.Len(t, actions, 1)
	assert.Equal(t, models.ActionExecuted, actions[0].Status)
	assert.Equal(t, 1, actions[0].Attempt)
	assert.Equal(t, uint64(1), f.r.Executed())
}

func TestResponder_LowConfidenceNeedsOpenBreaker(t *testing.T) {
	f := newFixture(t, 3)
	ind := blockIndicator(0.6, "10.0.0.5")

	assert.Empty(t, f.r.Respond(context.Background(), "inc-1", ind))

	for i := 0; i < 5; i++ {
		f.r.Observe(failedLogin("10.0.0.5"))
	}
	reqs := f.r.Respond(context.Background(), "inc-1", ind)
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Reason, "breaker open")
}

func TestResponder_BreakerKeysUseCanonicalAddress(t *testing.T) {
	tests := []struct {
		name     string
		observed string
		entity   string
		target   string
	}{
		{"ipv4", "10.0.0.9", "10.0.0.9", "10.0.0.9"},
		{"ipv6 upper case", "2001:DB8::1", "2001:DB8::1", "2001:db8::1"},
		{"ipv6 expanded", "2001:0db8:0000:0000:0000:0000:0000:0001", "2001:db8::1", "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 3)
			for i := 0; i < 5; i++ {
				f.r.Observe(failedLogin(tt.observed))
			}
			assert.True(t, f.r.breaker.IsOpen(tt.target))

			reqs := f.r.Respond(context.Background(), "inc-1", blockIndicator(0.6, tt.entity))
			require.Len(t, reqs, 1)
			assert.Equal(t, tt.target, reqs[0].Target)
			f.flush(t)

			assert.True(t, f.r.IsBlocked(tt.observed))
			assert.True(t, f.r.IsBlocked(tt.target))
		})
	}
}

func TestResponder_SkipsNonAutoBlockIndicators(t *testing.T) {
	f := newFixture(t, 3)
	ind := blockIndicator(0.99, "10.0.0.5")
	ind.AutoBlock = false
	assert.Empty(t, f.r.Respond(context.Background(), "inc-1", ind))
}

func TestResponder_ObserveIgnoresOtherTypesAndMissingOutcome(t *testing.T) {
	f := newFixture(t, 3)

	for i := 0; i < 10; i++ {
		e := failedLogin("10.0.0.9")
		e.Type = models.EventDataAccess
		f.r.Observe(e)

		e = failedLogin("10.0.0.9")
		e.Outcome = ""
		f.r.Observe(e)
	}
	assert.False(t, f.r.breaker.IsOpen("10.0.0.9"))

	for i := 0; i < 4; i++ {
		f.r.Observe(failedLogin("10.0.0.9"))
	}
	ok := failedLogin("10.0.0.9")
	ok.Outcome = models.OutcomeSuccess
	f.r.Observe(ok)
	f.r.Observe(failedLogin("10.0.0.9"))
	assert.False(t, f.r.breaker.IsOpen("10.0.0.9"), "success resets the count")
}

func TestResponder_OneBlockPerAddressPerPeriod(t *testing.T) {
	f := newFixture(t, 3)
	ind := blockIndicator(0.95, "10.0.0.1", "10.0.0.2")

	assert.Len(t, f.r.Respond(context.Background(), "inc-1", ind), 2)
	assert.Empty(t, f.r.Respond(context.Background(), "inc-1", ind))
	f.flush(t)

	*f.now = f.now.Add(time.Hour + time.Second)
	assert.False(t, f.r.IsBlocked("10.0.0.1"), "block expired")
	assert.Equal(t, 2, f.r.Sweep())
	assert.Len(t, f.r.Respond(context.Background(), "inc-1", ind), 2)
}

func TestResponder_FailedActionsAreRecordedAndReleased(t *testing.T) {
	f := newFixture(t, 2)
	f.exec.fail.Store(true)
	ind := blockIndicator(0.95, "10.0.0.1")

	require.Len(t, f.r.Respond(context.Background(), "inc-1", ind), 1)
	f.flush(t)
	assert.Equal(t, 1, f.r.Pending())
	assert.False(t, f.r.IsBlocked("10.0.0.1"))

	f.r.RetryPending()
	f.flush(t)

	actions := f.rec.get("inc-1")
	require.Len(t, actions, 2)
	for i, a := range actions {
		assert.Equal(t, models.ActionFailed, a.Status)
		assert.Equal(t, i+1, a.Attempt)
		assert.NotEmpty(t, a.Error)
	}

	f.exec.fail.Store(false)
	assert.Len(t, f.r.Respond(context.Background(), "inc-1", ind), 1, "abandoned block can be requested again")
}
