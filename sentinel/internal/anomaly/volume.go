package anomaly

import (
	"fmt"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/buffer"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// Volume flags an actor producing more same-type events in the volume
// window than the ceiling allows.
type Volume struct {
	cfg    Config
	reader buffer.Reader
}

func (h *Volume) Name() string { return "anomaly:volume" }

func (h *Volume) Detect(e models.SecurityEvent) ([]models.ThreatIndicator, error) {
	if len(history(h.reader, e, h.cfg.VolumeMinHistory)) < h.cfg.VolumeMinHistory {
		return nil, nil
	}

	count := 0
	window := h.reader.Window(buffer.DimensionActor, e.ActorID, e.Timestamp.Add(-h.cfg.VolumeWindow), e.Timestamp)
	for _, w := range window {
		if w.Type == e.Type {
			count++
		}
	}
	if count <= h.cfg.VolumeCeiling {
		return nil, nil
	}

	ind := indicator(h.cfg, h.Name(), models.CategoryUnusualPattern, models.LevelMedium, h.cfg.VolumeConfidence, e,
		fmt.Sprintf("%s produced %d %s events within %s", e.ActorID, count, e.Type, h.cfg.VolumeWindow),
		map[string]any{"event_type": string(e.Type), "count": count, "ceiling": h.cfg.VolumeCeiling})
	ind.Count = count
	return []models.ThreatIndicator{ind}, nil
}
