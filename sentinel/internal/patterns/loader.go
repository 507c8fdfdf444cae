package patterns

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// File is the on-disk pattern catalogue.
//
//	include_defaults: true
//	patterns:
//	  - id: brute_force
//	    event_types: [auth.login.failed]
//	    window: 15m
//	    min_occurrences: 5
//	    grouping: {same_actor: true, same_address: true}
//	    outcome: failure
//	    category: brute_force
//	    level: high
//	    auto_block: true
type File struct {
	IncludeDefaults bool                     `yaml:"include_defaults"`
	Patterns        []models.ActivityPattern `yaml:"patterns"`
}

// Load returns the built-in catalogue when path is empty, otherwise the
// patterns in path. With include_defaults set, file patterns replace
// built-ins of the same id and the rest are kept.
func Load(path string) ([]models.ActivityPattern, error) {
	if path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}
	ps, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return ps, nil
}

// Parse decodes and validates a pattern catalogue.
func Parse(data []byte) ([]models.ActivityPattern, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse patterns: %w", err)
	}

	seen := make(map[string]bool, len(f.Patterns))
	for _, p := range f.Patterns {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, &models.ValidationError{Field: "pattern " + p.ID, Reason: "duplicate id"}
		}
		seen[p.ID] = true
	}

	if !f.IncludeDefaults {
		if len(f.Patterns) == 0 {
			return nil, &models.ValidationError{Field: "patterns", Reason: "no patterns defined"}
		}
		return f.Patterns, nil
	}

	merged := make([]models.ActivityPattern, 0, len(f.Patterns)+len(Defaults()))
	for _, d := range Defaults() {
		if !seen[d.ID] {
			merged = append(merged, d)
		}
	}
	return append(merged, f.Patterns...), nil
}

// Marshal renders patterns in the File format.
func Marshal(ps []models.ActivityPattern) ([]byte, error) {
	return yaml.Marshal(File{Patterns: ps})
}

// AutoBlockTypes returns the event types covered by auto-block patterns.
func AutoBlockTypes(ps []models.ActivityPattern) map[models.EventType]bool {
	out := make(map[models.EventType]bool)
	for _, p := range ps {
		if !p.AutoBlock {
			continue
		}
		for _, t := range p.EventTypes {
			out[t] = true
		}
	}
	return out
}
