// Package anomaly implements the statistical heuristics that flag actor
// behaviour deviating from its own recent history.
package anomaly

import (
	"time"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/buffer"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// Config tunes the heuristics. Zero fields take DefaultConfig values.
type Config struct {
	TimingHistory      int     `mapstructure:"timing_history"`
	TimingMinHistory   int     `mapstructure:"timing_min_history"`
	TimingRareFraction float64 `mapstructure:"timing_rare_fraction"`
	TimingConfidence   float64 `mapstructure:"timing_confidence"`

	GeoHistory    int     `mapstructure:"geo_history"`
	GeoConfidence float64 `mapstructure:"geo_confidence"`

	VolumeWindow     time.Duration `mapstructure:"volume_window"`
	VolumeCeiling    int           `mapstructure:"volume_ceiling"`
	VolumeMinHistory int           `mapstructure:"volume_min_history"`
	VolumeConfidence float64       `mapstructure:"volume_confidence"`

	// Thresholds are attached to every anomaly indicator.
	Thresholds models.Thresholds `mapstructure:"thresholds"`
}

func DefaultConfig() Config {
	return Config{
		TimingHistory:      100,
		TimingMinHistory:   10,
		TimingRareFraction: 0.05,
		TimingConfidence:   0.4,
		GeoHistory:         50,
		GeoConfidence:      0.6,
		VolumeWindow:       time.Hour,
		VolumeCeiling:      50,
		VolumeMinHistory:   20,
		VolumeConfidence:   0.7,
		Thresholds:         models.DefaultThresholds(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TimingHistory <= 0 {
		c.TimingHistory = d.TimingHistory
	}
	if c.TimingMinHistory <= 0 {
		c.TimingMinHistory = d.TimingMinHistory
	}
	if c.TimingRareFraction <= 0 {
		c.TimingRareFraction = d.TimingRareFraction
	}
	if c.TimingConfidence <= 0 {
		c.TimingConfidence = d.TimingConfidence
	}
	if c.GeoHistory <= 0 {
		c.GeoHistory = d.GeoHistory
	}
	if c.GeoConfidence <= 0 {
		c.GeoConfidence = d.GeoConfidence
	}
	if c.VolumeWindow <= 0 {
		c.VolumeWindow = d.VolumeWindow
	}
	if c.VolumeCeiling <= 0 {
		c.VolumeCeiling = d.VolumeCeiling
	}
	if c.VolumeMinHistory <= 0 {
		c.VolumeMinHistory = d.VolumeMinHistory
	}
	if c.VolumeConfidence <= 0 {
		c.VolumeConfidence = d.VolumeConfidence
	}
	c.Thresholds = c.Thresholds.WithDefaults()
	return c
}

// Heuristic is a single anomaly check. Implementations read the buffer and
// never mutate shared state.
type Heuristic interface {
	Name() string
	Detect(e models.SecurityEvent) ([]models.ThreatIndicator, error)
}

// Heuristics returns the timing, geographic and volume checks.
func Heuristics(cfg Config, reader buffer.Reader) []Heuristic {
	cfg = cfg.withDefaults()
	return []Heuristic{
		&Timing{cfg: cfg, reader: reader},
		&Geo{cfg: cfg, reader: reader},
		&Volume{cfg: cfg, reader: reader},
	}
}

// history returns up to n of the actor's most recent events other than e.
func history(reader buffer.Reader, e models.SecurityEvent, n int) []models.SecurityEvent {
	recent := reader.Recent(buffer.DimensionActor, e.ActorID, n+1)
	out := make([]models.SecurityEvent, 0, len(recent))
	for _, h := range recent {
		if h.ID == e.ID {
			continue
		}
		out = append(out, h)
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

func indicator(cfg Config, source string, category models.ThreatCategory, level models.ThreatLevel,
	confidence float64, e models.SecurityEvent, description string, metadata map[string]any,
) models.ThreatIndicator {
	entities := []string{e.ActorID}
	if e.SourceAddress != "" {
		entities = append(entities, e.SourceAddress)
	}
	return models.ThreatIndicator{
		Source:           source,
		Category:         category,
		Level:            level,
		Confidence:       models.Clamp01(confidence),
		Description:      description,
		AffectedEntities: entities,
		EventIDs:         []string{e.ID},
		Count:            1,
		FirstSeen:        e.Timestamp,
		LastSeen:         e.Timestamp,
		Thresholds:       cfg.Thresholds,
		Metadata:         metadata,
	}
}
