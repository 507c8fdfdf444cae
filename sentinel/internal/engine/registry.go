package engine

import (
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// registry remembers recently emitted indicators for ListThreatIndicators.
// It is bounded by capacity (least recently emitted dropped first) and by
// TTL on LastSeen, applied during maintenance.
type registry struct {
	cache *lru.Cache[string, models.ThreatIndicator]
}

func newRegistry(capacity int) (*registry, error) {
	cache, err := lru.New[string, models.ThreatIndicator](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create indicator registry: %w", err)
	}
	return &registry{cache: cache}, nil
}

func (r *registry) add(ind models.ThreatIndicator) {
	r.cache.Add(ind.ID, ind)
}

// list returns up to limit indicators, most recently seen first. A
// non-positive limit returns everything.
func (r *registry) list(limit int) []models.ThreatIndicator {
	out := r.cache.Values()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// prune drops indicators last seen before cutoff.
func (r *registry) prune(cutoff time.Time) int {
	removed := 0
	for _, id := range r.cache.Keys() {
		ind, ok := r.cache.Peek(id)
		if ok && ind.LastSeen.Before(cutoff) {
			r.cache.Remove(id)
			removed++
		}
	}
	return removed
}

func (r *registry) len() int {
	return r.cache.Len()
}
