package models

import (
	"fmt"
	"strings"
	"time"
)

// ThreatCategory classifies what kind of attack an indicator points at.
type ThreatCategory string

const (
	CategoryBruteForce          ThreatCategory = "brute_force"
	CategoryCredentialStuffing  ThreatCategory = "credential_stuffing"
	CategoryAPIAbuse            ThreatCategory = "api_abuse"
	CategorySuspiciousLogin     ThreatCategory = "suspicious_login"
	CategoryUnusualPattern      ThreatCategory = "unusual_pattern"
	CategoryPrivilegeEscalation ThreatCategory = "privilege_escalation"
	CategoryDataExfiltration    ThreatCategory = "data_exfiltration"
	CategoryRateLimitAbuse      ThreatCategory = "rate_limit_abuse"
)

func (c ThreatCategory) IsValid() bool {
	switch c {
	case CategoryBruteForce, CategoryCredentialStuffing, CategoryAPIAbuse,
		CategorySuspiciousLogin, CategoryUnusualPattern, CategoryPrivilegeEscalation,
		CategoryDataExfiltration, CategoryRateLimitAbuse:
		return true
	}
	return false
}

// Title renders the category for incident titles, e.g. "Brute Force".
func (c ThreatCategory) Title() string {
	words := strings.Split(string(c), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		if w == "api" {
			words[i] = "API"
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ThreatLevel is an ordered severity. The zero value is invalid.
type ThreatLevel int

const (
	LevelLow ThreatLevel = iota + 1
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l ThreatLevel) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	}
	return fmt.Sprintf("ThreatLevel(%d)", int(l))
}

func (l ThreatLevel) IsValid() bool {
	return l >= LevelLow && l <= LevelCritical
}

// Multiplier scales an incident's base risk by severity.
func (l ThreatLevel) Multiplier() float64 {
	switch l {
	case LevelLow:
		return 0.5
	case LevelMedium:
		return 1.0
	case LevelHigh:
		return 1.5
	case LevelCritical:
		return 2.0
	}
	return 0
}

// ParseThreatLevel accepts the lowercase level names.
func ParseThreatLevel(s string) (ThreatLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return LevelLow, nil
	case "medium":
		return LevelMedium, nil
	case "high":
		return LevelHigh, nil
	case "critical":
		return LevelCritical, nil
	}
	return 0, fmt.Errorf("unknown threat level %q", s)
}

func (l ThreatLevel) MarshalText() ([]byte, error) {
	if !l.IsValid() {
		return nil, fmt.Errorf("invalid threat level %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *ThreatLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseThreatLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Thresholds are the confidence cut-offs that drive alerting and response.
type Thresholds struct {
	Alert     float64 `json:"alert" yaml:"alert" mapstructure:"alert"`
	Escalate  float64 `json:"escalate" yaml:"escalate" mapstructure:"escalate"`
	AutoBlock float64 `json:"auto_block" yaml:"auto_block" mapstructure:"auto_block"`
}

// DefaultThresholds are applied wherever a pattern leaves a threshold unset.
func DefaultThresholds() Thresholds {
	return Thresholds{Alert: 0.7, Escalate: 0.9, AutoBlock: 0.9}
}

// WithDefaults fills zero thresholds from DefaultThresholds.
func (t Thresholds) WithDefaults() Thresholds {
	d := DefaultThresholds()
	if t.Alert == 0 {
		t.Alert = d.Alert
	}
	if t.Escalate == 0 {
		t.Escalate = d.Escalate
	}
	if t.AutoBlock == 0 {
		t.AutoBlock = d.AutoBlock
	}
	return t
}

// ThreatIndicator is a detection signal. It is never modified once emitted.
type ThreatIndicator struct {
	ID string `json:"id"`
	// Source is the pattern id or heuristic name that produced the indicator.
	Source           string         `json:"source"`
	Category         ThreatCategory `json:"category"`
	Level            ThreatLevel    `json:"level"`
	Confidence       float64        `json:"confidence"`
	Description      string         `json:"description"`
	AffectedEntities []string       `json:"affected_entities"`
	EventIDs         []string       `json:"event_ids"`
	Count            int            `json:"count"`
	FirstSeen        time.Time      `json:"first_seen"`
	LastSeen         time.Time      `json:"last_seen"`
	Thresholds       Thresholds     `json:"thresholds"`
	AutoBlock        bool           `json:"auto_block"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Clamp01 restricts v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
