// Package incidents correlates threat indicators into security incidents and
// manages their lifecycle.
package incidents

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/metrics"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// Outcome reports what Handle did with an indicator.
type Outcome struct {
	Incident models.SecurityIncident
	Created  bool
}

// Correlator owns the active incident set. All mutations are serialized by
// one mutex; the archive is called after the lock is released.
type Correlator struct {
	mu     sync.Mutex
	active map[string]*models.SecurityIncident

	archive Archive
	now     func() time.Time
	logger  *logging.Logger
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

// WithArchive sets where resolved incidents are written.
func WithArchive(a Archive) Option {
	return func(c *Correlator) { c.archive = a }
}

func NewCorrelator(logger *logging.Logger, opts ...Option) *Correlator {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Correlator{
		active:  make(map[string]*models.SecurityIncident),
		archive: NewMemoryArchive(0),
		now:     time.Now,
		logger:  logger.Component("incidents"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle merges ind into the most recently updated active incident sharing
// its category and at least one entity, or opens a new incident.
func (c *Correlator) Handle(ind models.ThreatIndicator) Outcome {
	actors, addrs := splitEntities(ind.AffectedEntities)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if inc := c.findMatch(ind.Category, actors, addrs); inc != nil {
		inc.Indicators = append(inc.Indicators, ind)
		inc.AffectedActors = union(inc.AffectedActors, actors)
		inc.AffectedAddresses = union(inc.AffectedAddresses, addrs)
		if !inc.HasCategory(ind.Category) {
			inc.Categories = append(inc.Categories, ind.Category)
		}
		c.score(inc, inc.Indicators)
		inc.UpdatedAt = now
		return Outcome{Incident: inc.Clone()}
	}

	inc := &models.SecurityIncident{
		ID:                uuid.Must(uuid.NewV7()).String(),
		Title:             title(ind),
		Categories:        []models.ThreatCategory{ind.Category},
		Status:            models.StatusOpen,
		AffectedActors:    actors,
		AffectedAddresses: addrs,
		Indicators:        []models.ThreatIndicator{ind},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	c.score(inc, inc.Indicators)
	c.active[inc.ID] = inc

	metrics.IncidentsCreated.WithLabelValues(string(ind.Category)).Inc()
	metrics.ActiveIncidents.Set(float64(len(c.active)))
	c.logger.Info("incident opened",
		logging.IncidentID(inc.ID),
		logging.Category(string(ind.Category)),
		"risk_score", inc.RiskScore)
	return Outcome{Incident: inc.Clone(), Created: true}
}

// findMatch must be called with c.mu held.
func (c *Correlator) findMatch(category models.ThreatCategory, actors, addrs []string) *models.SecurityIncident {
	var best *models.SecurityIncident
	for _, inc := range c.active {
		if !inc.HasCategory(category) {
			continue
		}
		if !overlaps(inc.AffectedActors, actors) && !overlaps(inc.AffectedAddresses, addrs) {
			continue
		}
		if best == nil || inc.UpdatedAt.After(best.UpdatedAt) ||
			(inc.UpdatedAt.Equal(best.UpdatedAt) && inc.ID > best.ID) {
			best = inc
		}
	}
	return best
}

func (c *Correlator) score(inc *models.SecurityIncident, over []models.ThreatIndicator) {
	inc.RiskScore = RiskScore(over)
	inc.Confidence = Confidence(over)
	inc.Level = MaxLevel(inc.Indicators)
}

// Investigate moves an open incident to investigating. It is a no-op for an
// incident already under investigation.
func (c *Correlator) Investigate(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	inc, ok := c.active[id]
	if !ok {
		return &models.NotFoundError{Kind: "incident", ID: id}
	}
	switch inc.Status {
	case models.StatusOpen:
		inc.Status = models.StatusInvestigating
		inc.UpdatedAt = c.now()
		return nil
	case models.StatusInvestigating:
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, inc.Status, models.StatusInvestigating)
}

// Resolve closes an incident with resolution (resolved or false_positive),
// removes it from the active set and archives it. Archive failures are
// logged; the incident stays resolved.
func (c *Correlator) Resolve(ctx context.Context, id string, resolution models.IncidentStatus, notes *string) (models.SecurityIncident, error) {
	if !resolution.IsTerminal() {
		return models.SecurityIncident{}, &models.ValidationError{Field: "resolution", Reason: "must be resolved or false_positive"}
	}

	c.mu.Lock()
	inc, ok := c.active[id]
	if !ok {
		c.mu.Unlock()
		return models.SecurityIncident{}, &models.NotFoundError{Kind: "incident", ID: id}
	}
	now := c.now()
	inc.Status = resolution
	inc.ResolvedAt = &now
	inc.UpdatedAt = now
	if notes != nil {
		inc.Notes = *notes
	}
	delete(c.active, id)
	remaining := len(c.active)
	snapshot := inc.Clone()
	c.mu.Unlock()

	metrics.IncidentsResolved.WithLabelValues(string(resolution)).Inc()
	metrics.ActiveIncidents.Set(float64(remaining))
	c.logger.InfoContext(ctx, "incident closed",
		logging.IncidentID(id),
		"resolution", string(resolution))

	if c.archive != nil {
		if err := c.archive.Store(ctx, snapshot); err != nil {
			c.logger.ErrorContext(ctx, "failed to archive incident",
				logging.IncidentID(id),
				logging.Error(err))
		}
	}
	return snapshot, nil
}

// RecordAction appends to an active incident's automated-action log.
func (c *Correlator) RecordAction(id string, action models.AutomatedAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	inc, ok := c.active[id]
	if !ok {
		return &models.NotFoundError{Kind: "incident", ID: id}
	}
	inc.Actions = append(inc.Actions, action)
	inc.UpdatedAt = c.now()
	return nil
}

// Rescore recomputes risk and confidence of every active incident over the
// indicators last seen within relevance of now. Incidents whose indicators
// have all aged out decay to zero but stay active until resolved.
func (c *Correlator) Rescore(now time.Time, relevance time.Duration) int {
	cutoff := now.Add(-relevance)

	c.mu.Lock()
	defer c.mu.Unlock()

	changed := 0
	for _, inc := range c.active {
		relevant := make([]models.ThreatIndicator, 0, len(inc.Indicators))
		for _, ind := range inc.Indicators {
			if !ind.LastSeen.Before(cutoff) {
				relevant = append(relevant, ind)
			}
		}
		risk, conf := inc.RiskScore, inc.Confidence
		c.score(inc, relevant)
		if inc.RiskScore != risk || inc.Confidence != conf {
			changed++
		}
	}
	return changed
}

// Get returns a snapshot of an active incident.
func (c *Correlator) Get(id string) (models.SecurityIncident, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inc, ok := c.active[id]
	if !ok {
		return models.SecurityIncident{}, &models.NotFoundError{Kind: "incident", ID: id}
	}
	return inc.Clone(), nil
}

// List returns snapshots of active incidents, highest risk first.
func (c *Correlator) List() []models.SecurityIncident {
	c.mu.Lock()
	out := make([]models.SecurityIncident, 0, len(c.active))
	for _, inc := range c.active {
		out = append(out, inc.Clone())
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// splitEntities separates IP addresses from actor ids.
func splitEntities(entities []string) (actors, addrs []string) {
	for _, e := range entities {
		if e == "" {
			continue
		}
		if _, err := netip.ParseAddr(e); err == nil {
			if !slices.Contains(addrs, e) {
				addrs = append(addrs, e)
			}
			continue
		}
		if !slices.Contains(actors, e) {
			actors = append(actors, e)
		}
	}
	return actors, addrs
}

func overlaps(a, b []string) bool {
	for _, v := range b {
		if slices.Contains(a, v) {
			return true
		}
	}
	return false
}

func union(dst, src []string) []string {
	for _, v := range src {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

func title(ind models.ThreatIndicator) string {
	if len(ind.AffectedEntities) == 0 {
		return ind.Category.Title() + " activity"
	}
	return fmt.Sprintf("%s activity involving %s", ind.Category.Title(), ind.AffectedEntities[0])
}
