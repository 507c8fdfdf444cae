package anomaly

import (
	"fmt"
	"sort"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/buffer"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// Geo flags an event from a country absent from the actor's recent history.
type Geo struct {
	cfg    Config
	reader buffer.Reader
}

func (h *Geo) Name() string { return "anomaly:geo" }

func (h *Geo) Detect(e models.SecurityEvent) ([]models.ThreatIndicator, error) {
	if e.SourceCountry == "" {
		return nil, nil
	}

	known := make(map[string]struct{})
	for _, p := range history(h.reader, e, h.cfg.GeoHistory) {
		if p.SourceCountry != "" {
			known[p.SourceCountry] = struct{}{}
		}
	}
	if len(known) == 0 {
		return nil, nil
	}
	if _, ok := known[e.SourceCountry]; ok {
		return nil, nil
	}

	countries := make([]string, 0, len(known))
	for c := range known {
		countries = append(countries, c)
	}
	sort.Strings(countries)

	ind := indicator(h.cfg, h.Name(), models.CategorySuspiciousLogin, models.LevelMedium, h.cfg.GeoConfidence, e,
		fmt.Sprintf("%s seen from new country %s", e.ActorID, e.SourceCountry),
		map[string]any{"country": e.SourceCountry, "known_countries": countries})
	return []models.ThreatIndicator{ind}, nil
}
