package anomaly

import (
	"fmt"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/buffer"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// Timing flags activity in an hour of day (UTC) the actor rarely uses.
type Timing struct {
	cfg    Config
	reader buffer.Reader
}

func (h *Timing) Name() string { return "anomaly:timing" }

func (h *Timing) Detect(e models.SecurityEvent) ([]models.ThreatIndicator, error) {
	past := history(h.reader, e, h.cfg.TimingHistory)
	if len(past) < h.cfg.TimingMinHistory {
		return nil, nil
	}

	hour := e.Timestamp.UTC().Hour()
	inBucket := 0
	for _, p := range past {
		if p.Timestamp.UTC().Hour() == hour {
			inBucket++
		}
	}

	fraction := float64(inBucket) / float64(len(past))
	if fraction >= h.cfg.TimingRareFraction {
		return nil, nil
	}

	ind := indicator(h.cfg, h.Name(), models.CategoryUnusualPattern, models.LevelLow, h.cfg.TimingConfidence, e,
		fmt.Sprintf("activity for %s at %02d:00 UTC, an hour holding %.1f%% of %d recent events",
			e.ActorID, hour, fraction*100, len(past)),
		map[string]any{"hour": hour, "hour_fraction": fraction, "history": len(past)})
	return []models.ThreatIndicator{ind}, nil
}
