package models

import (
	"fmt"
	"time"
)

// Grouping selects the buffer dimensions a pattern counts events along.
type Grouping struct {
	SameActor   bool `json:"same_actor" yaml:"same_actor"`
	SameAddress bool `json:"same_address" yaml:"same_address"`
	SameService bool `json:"same_service" yaml:"same_service"`
}

func (g Grouping) Any() bool {
	return g.SameActor || g.SameAddress || g.SameService
}

// ActivityPattern is a rule that fires once MinOccurrences matching events
// fall inside Window along its grouping dimensions.
type ActivityPattern struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description,omitempty" yaml:"description"`
	EventTypes     []EventType    `json:"event_types" yaml:"event_types"`
	Window         time.Duration  `json:"window" yaml:"window"`
	MinOccurrences int            `json:"min_occurrences" yaml:"min_occurrences"`
	Grouping       Grouping       `json:"grouping" yaml:"grouping"`
	Outcome        Outcome        `json:"outcome,omitempty" yaml:"outcome"`
	Category       ThreatCategory `json:"category" yaml:"category"`
	Level          ThreatLevel    `json:"level" yaml:"level"`
	Thresholds     Thresholds     `json:"thresholds" yaml:"thresholds"`
	AutoBlock      bool           `json:"auto_block" yaml:"auto_block"`
}

// Covers reports whether events of type t can trigger the pattern.
func (p ActivityPattern) Covers(t EventType) bool {
	for _, et := range p.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Validate checks a pattern loaded from configuration.
func (p ActivityPattern) Validate() error {
	field := func(name, reason string) error {
		return &ValidationError{Field: "pattern " + p.ID + ": " + name, Reason: reason}
	}

	if p.ID == "" {
		return &ValidationError{Field: "pattern.id", Reason: "is required"}
	}
	if len(p.EventTypes) == 0 {
		return field("event_types", "at least one event type is required")
	}
	for _, et := range p.EventTypes {
		if !et.IsValid() {
			return field("event_types", fmt.Sprintf("unknown event type %q", et))
		}
	}
	if p.Window <= 0 {
		return field("window", "must be positive")
	}
	if p.MinOccurrences < 1 {
		return field("min_occurrences", "must be at least 1")
	}
	if !p.Grouping.Any() {
		return field("grouping", "at least one grouping dimension is required")
	}
	if p.Outcome != "" && !p.Outcome.IsValid() {
		return field("outcome", "must be success or failure")
	}
	if !p.Category.IsValid() {
		return field("category", fmt.Sprintf("unknown category %q", p.Category))
	}
	if !p.Level.IsValid() {
		return field("level", "must be low, medium, high or critical")
	}
	t := p.Thresholds.WithDefaults()
	if t.Alert > 1 || t.Escalate > 1 || t.AutoBlock > 1 || t.Alert < 0 || t.Escalate < 0 || t.AutoBlock < 0 {
		return field("thresholds", "must be within [0,1]")
	}
	if t.Escalate < t.Alert {
		return field("thresholds", "escalate must not be below alert")
	}
	return nil
}
