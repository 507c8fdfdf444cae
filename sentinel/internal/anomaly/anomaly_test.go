package anomaly

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/buffer"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

var day0 = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

type fixture struct {
	idx *buffer.Index
	seq int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	idx, err := buffer.New(buffer.Config{TTL: 90 * 24 * time.Hour}, logging.Discard())
	require.NoError(t, err)
	return &fixture{idx: idx}
}

func (f *fixture) login(actor, country string, at time.Time) models.SecurityEvent {
	f.seq++
	e := models.SecurityEvent{
		ID:            fmt.Sprintf("ev-%d", f.seq),
		Type:          models.EventLoginSuccess,
		Timestamp:     at,
		ActorID:       actor,
		SourceAddress: "192.0.2.10",
		SourceCountry: country,
		Outcome:       models.OutcomeSuccess,
	}
	f.idx.Record(e)
	return e
}

// business-hours history: one login per day at 09:00-10:59 UTC.
func (f *fixture) seedHistory(actor, country string, days int) {
	for d := 0; d < days; d++ {
		f.login(actor, country, day0.AddDate(0, 0, d).Add(time.Duration(9+d%2)*time.Hour))
	}
}

func byName(hs []Heuristic, name string) Heuristic {
	for _, h := range hs {
		if h.Name() == name {
			return h
		}
	}
	return nil
}

func TestGeo_NewCountryThenKnown(t *testing.T) {
	f := newFixture(t)
	geo := byName(Heuristics(Config{}, f.idx), "anomaly:geo")
	f.seedHistory("U2", "US", 20)

	first := f.login("U2", "RU", day0.AddDate(0, 0, 21).Add(9*time.Hour))
	got, err := geo.Detect(first)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.CategorySuspiciousLogin, got[0].Category)
	assert.Equal(t, models.LevelMedium, got[0].Level)
	assert.InDelta(t, 0.6, got[0].Confidence, 1e-9)
	assert.Equal(t, []string{"U2", "192.0.2.10"}, got[0].AffectedEntities)
	assert.Equal(t, []string{"US"}, got[0].Metadata["known_countries"])

	second := f.login("U2", "RU", day0.AddDate(0, 0, 21).Add(10*time.Hour))
	got, err = geo.Detect(second)
	require.NoError(t, err)
	assert.Empty(t, got, "RU is now part of the history")
}

func TestGeo_NoPriorCountry(t *testing.T) {
	f := newFixture(t)
	geo := byName(Heuristics(Config{}, f.idx), "anomaly:geo")

	got, err := geo.Detect(f.login("U3", "FR", day0))
	require.NoError(t, err)
	assert.Empty(t, got)

	f.seedHistory("U4", "", 5)
	got, err = geo.Detect(f.login("U4", "FR", day0.AddDate(0, 1, 0)))
	require.NoError(t, err)
	assert.Empty(t, got, "history without countries gives no baseline")
}

func TestGeo_MissingCountryIgnored(t *testing.T) {
	f := newFixture(t)
	geo := byName(Heuristics(Config{}, f.idx), "anomaly:geo")
	f.seedHistory("U2", "US", 5)

	got, err := geo.Detect(f.login("U2", "", day0.AddDate(0, 1, 0)))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTiming_RareHour(t *testing.T) {
	f := newFixture(t)
	timing := byName(Heuristics(Config{}, f.idx), "anomaly:timing")
	f.seedHistory("U2", "US", 20)

	got, err := timing.Detect(f.login("U2", "US", day0.AddDate(0, 0, 21).Add(3*time.Hour)))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.CategoryUnusualPattern, got[0].Category)
	assert.Equal(t, models.LevelLow, got[0].Level)
	assert.InDelta(t, 0.4, got[0].Confidence, 1e-9)
	assert.Equal(t, 3, got[0].Metadata["hour"])
}

func TestTiming_UsualHour(t *testing.T) {
	f := newFixture(t)
	timing := byName(Heuristics(Config{}, f.idx), "anomaly:timing")
	f.seedHistory("U2", "US", 20)

	got, err := timing.Detect(f.login("U2", "US", day0.AddDate(0, 0, 21).Add(9*time.Hour)))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTiming_InsufficientHistory(t *testing.T) {
	f := newFixture(t)
	timing := byName(Heuristics(Config{}, f.idx), "anomaly:timing")
	f.seedHistory("U2", "US", 9)

	got, err := timing.Detect(f.login("U2", "US", day0.AddDate(0, 0, 21).Add(3*time.Hour)))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVolume(t *testing.T) {
	f := newFixture(t)
	volume := byName(Heuristics(Config{}, f.idx), "anomaly:volume")
	f.seedHistory("U5", "US", 20)

	start := day0.AddDate(0, 1, 0)
	var last models.SecurityEvent
	var fired []int
	for i := 1; i <= 55; i++ {
		f.seq++
		last = models.SecurityEvent{
			ID:            fmt.Sprintf("da-%d", i),
			Type:          models.EventDataAccess,
			Timestamp:     start.Add(time.Duration(i) * 30 * time.Second),
			ActorID:       "U5",
			SourceAddress: "192.0.2.10",
			Outcome:       models.OutcomeSuccess,
		}
		f.idx.Record(last)
		got, err := volume.Detect(last)
		require.NoError(t, err)
		if len(got) > 0 {
			fired = append(fired, i)
		}
	}
	require.NotEmpty(t, fired)
	assert.Equal(t, 51, fired[0], "fires once the count exceeds the ceiling")

	got, err := volume.Detect(last)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 55, got[0].Count)
	assert.InDelta(t, 0.7, got[0].Confidence, 1e-9)
	assert.Equal(t, models.LevelMedium, got[0].Level)
}

func TestVolume_RequiresHistory(t *testing.T) {
	f := newFixture(t)
	volume := byName(Heuristics(Config{VolumeCeiling: 2, VolumeMinHistory: 50}, f.idx), "anomaly:volume")

	var last models.SecurityEvent
	for i := 0; i < 10; i++ {
		last = f.login("U6", "US", day0.Add(time.Duration(i)*time.Minute))
	}
	got, err := volume.Detect(last)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{GeoConfidence: 0.55}.withDefaults()
	assert.Equal(t, 0.55, cfg.GeoConfidence)
	assert.Equal(t, 100, cfg.TimingHistory)
	assert.Equal(t, time.Hour, cfg.VolumeWindow)
	assert.Equal(t, models.DefaultThresholds(), cfg.Thresholds)
}
