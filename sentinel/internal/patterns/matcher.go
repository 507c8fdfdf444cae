// Package patterns evaluates configured activity patterns against the event
// buffer index.
package patterns

import (
	"fmt"
	"slices"
	"time"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/buffer"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

const (
	// burstSpan is the span under which matched events earn the burst boost.
	burstSpan  = 60 * time.Second
	burstBoost = 1.2
	// maxEventIDs caps the contributing event ids carried on an indicator.
	maxEventIDs = 10
)

// Matcher evaluates one pattern. It only reads the buffer and holds no
// state of its own, so identical inputs always give identical output.
type Matcher struct {
	pattern models.ActivityPattern
	reader  buffer.Reader
}

func NewMatcher(p models.ActivityPattern, reader buffer.Reader) *Matcher {
	p.Thresholds = p.Thresholds.WithDefaults()
	return &Matcher{pattern: p, reader: reader}
}

// NewMatchers builds one matcher per pattern.
func NewMatchers(ps []models.ActivityPattern, reader buffer.Reader) []*Matcher {
	out := make([]*Matcher, 0, len(ps))
	for _, p := range ps {
		out = append(out, NewMatcher(p, reader))
	}
	return out
}

func (m *Matcher) Name() string {
	return "pattern:" + m.pattern.ID
}

func (m *Matcher) Pattern() models.ActivityPattern {
	return m.pattern
}

// Detect returns at most one indicator: the pattern firing on e. The event
// must already be recorded in the buffer.
func (m *Matcher) Detect(e models.SecurityEvent) ([]models.ThreatIndicator, error) {
	p := m.pattern
	if !p.Covers(e.Type) {
		return nil, nil
	}

	matched := m.candidates(e)
	if len(matched) < p.MinOccurrences {
		return nil, nil
	}
	return []models.ThreatIndicator{m.indicator(matched)}, nil
}

// candidates unions the grouping dimensions over [ts-window, ts], dedupes by
// event id and applies the type and outcome filters. Result is oldest first.
func (m *Matcher) candidates(e models.SecurityEvent) []models.SecurityEvent {
	p := m.pattern
	from := e.Timestamp.Add(-p.Window)
	to := e.Timestamp

	var dims []buffer.Dimension
	if p.Grouping.SameActor {
		dims = append(dims, buffer.DimensionActor)
	}
	if p.Grouping.SameAddress {
		dims = append(dims, buffer.DimensionAddress)
	}
	if p.Grouping.SameService {
		dims = append(dims, buffer.DimensionService)
	}

	seen := make(map[string]struct{})
	var out []models.SecurityEvent
	for _, dim := range dims {
		key := dim.Key(e)
		if key == "" {
			continue
		}
		for _, c := range m.reader.Window(dim, key, from, to) {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			if !p.Covers(c.Type) {
				continue
			}
			if p.Outcome != "" && c.Outcome != p.Outcome {
				continue
			}
			out = append(out, c)
		}
	}

	slices.SortStableFunc(out, func(a, b models.SecurityEvent) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

func (m *Matcher) indicator(matched []models.SecurityEvent) models.ThreatIndicator {
	p := m.pattern
	first := matched[0].Timestamp
	last := matched[len(matched)-1].Timestamp

	tail := matched[max(0, len(matched)-maxEventIDs):]
	eventIDs := make([]string, len(tail))
	for i, e := range tail {
		eventIDs[i] = e.ID
	}

	return models.ThreatIndicator{
		Source:           p.ID,
		Category:         p.Category,
		Level:            p.Level,
		Confidence:       Confidence(len(matched), p.MinOccurrences, last.Sub(first)),
		Description:      fmt.Sprintf("%s: %d matching events within %s", displayName(p), len(matched), p.Window),
		AffectedEntities: entities(matched),
		EventIDs:         eventIDs,
		Count:            len(matched),
		FirstSeen:        first,
		LastSeen:         last,
		Thresholds:       p.Thresholds,
		AutoBlock:        p.AutoBlock,
		Metadata: map[string]any{
			"pattern_id":      p.ID,
			"window_seconds":  int(p.Window.Seconds()),
			"min_occurrences": p.MinOccurrences,
		},
	}
}

// Confidence is count/(min*2) capped at 1, boosted by 1.2 when the matches
// landed within a minute.
func Confidence(count, minOccurrences int, span time.Duration) float64 {
	if minOccurrences < 1 {
		minOccurrences = 1
	}
	c := min(1.0, float64(count)/float64(minOccurrences*2))
	if span < burstSpan {
		c = min(1.0, c*burstBoost)
	}
	return models.Clamp01(c)
}

// entities lists distinct actors, then addresses, then services, each in
// first-seen order.
func entities(events []models.SecurityEvent) []string {
	var actors, addrs, services []string
	seen := make(map[string]struct{})
	add := func(dst *[]string, v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		*dst = append(*dst, v)
	}
	for _, e := range events {
		add(&actors, e.ActorID)
		add(&addrs, e.SourceAddress)
		add(&services, e.Service)
	}
	out := append(actors, addrs...)
	return append(out, services...)
}

func displayName(p models.ActivityPattern) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
