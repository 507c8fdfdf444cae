package models

import (
	"slices"
	"time"
)

// IncidentStatus tracks the incident lifecycle:
// open -> investigating -> {resolved, false_positive}.
type IncidentStatus string

const (
	StatusOpen          IncidentStatus = "open"
	StatusInvestigating IncidentStatus = "investigating"
	StatusResolved      IncidentStatus = "resolved"
	StatusFalsePositive IncidentStatus = "false_positive"
)

func (s IncidentStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusFalsePositive
}

// ParseResolution validates the status an incident may be closed with.
func ParseResolution(s string) (IncidentStatus, error) {
	switch IncidentStatus(s) {
	case StatusResolved, StatusFalsePositive:
		return IncidentStatus(s), nil
	}
	return "", &ValidationError{Field: "resolution", Reason: "must be resolved or false_positive"}
}

// ActionType names an automated response.
type ActionType string

const ActionBlockAddress ActionType = "block_address"

// ActionStatus is the outcome of one automated-action attempt.
type ActionStatus string

const (
	ActionExecuted ActionStatus = "executed"
	ActionFailed   ActionStatus = "failed"
)

// AutomatedAction is an entry in an incident's response log.
type AutomatedAction struct {
	ID        string       `json:"id"`
	Type      ActionType   `json:"type"`
	Target    string       `json:"target"`
	Status    ActionStatus `json:"status"`
	Reason    string       `json:"reason"`
	Attempt   int          `json:"attempt"`
	Error     string       `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// SecurityIncident groups correlated indicators about the same attack.
type SecurityIncident struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Level             ThreatLevel       `json:"level"`
	Categories        []ThreatCategory  `json:"categories"`
	Status            IncidentStatus    `json:"status"`
	AffectedActors    []string          `json:"affected_actors"`
	AffectedAddresses []string          `json:"affected_addresses"`
	Indicators        []ThreatIndicator `json:"indicators"`
	RiskScore         int               `json:"risk_score"`
	Confidence        float64           `json:"confidence"`
	Actions           []AutomatedAction `json:"actions,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	ResolvedAt        *time.Time        `json:"resolved_at,omitempty"`
}

// HasCategory reports whether any indicator of category c is attached.
func (i *SecurityIncident) HasCategory(c ThreatCategory) bool {
	return slices.Contains(i.Categories, c)
}

// Clone returns a copy whose slices can be handed to callers. Indicators are
// immutable and shared.
func (i *SecurityIncident) Clone() SecurityIncident {
	out := *i
	out.Categories = slices.Clone(i.Categories)
	out.AffectedActors = slices.Clone(i.AffectedActors)
	out.AffectedAddresses = slices.Clone(i.AffectedAddresses)
	out.Indicators = slices.Clone(i.Indicators)
	out.Actions = slices.Clone(i.Actions)
	if i.ResolvedAt != nil {
		t := *i.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}
