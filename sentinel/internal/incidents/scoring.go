package incidents

import (
	"math"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

const (
	maxRisk           = 100
	perIndicatorRisk  = 5
	maxIndicatorRisk  = 20
	perIndicatorBoost = 0.05
	maxIndicatorBoost = 0.2
)

// RiskScore is round(maxConfidence*100*levelMultiplier) plus 5 per indicator
// (at most 20), capped at 100. The level is the highest among indicators.
func RiskScore(indicators []models.ThreatIndicator) int {
	if len(indicators) == 0 {
		return 0
	}
	var maxConf float64
	maxLevel := models.LevelLow
	for _, ind := range indicators {
		maxConf = max(maxConf, ind.Confidence)
		maxLevel = max(maxLevel, ind.Level)
	}
	base := int(math.Round(models.Clamp01(maxConf) * 100 * maxLevel.Multiplier()))
	bonus := min(maxIndicatorRisk, len(indicators)*perIndicatorRisk)
	return max(0, min(maxRisk, base+bonus))
}

// Confidence is the mean indicator confidence plus 0.05 per indicator (at
// most 0.2), capped at 1.
func Confidence(indicators []models.ThreatIndicator) float64 {
	if len(indicators) == 0 {
		return 0
	}
	var sum float64
	for _, ind := range indicators {
		sum += ind.Confidence
	}
	avg := sum / float64(len(indicators))
	boost := min(maxIndicatorBoost, float64(len(indicators))*perIndicatorBoost)
	return models.Clamp01(avg + boost)
}

// MaxLevel returns the highest indicator level, LevelLow when empty.
func MaxLevel(indicators []models.ThreatIndicator) models.ThreatLevel {
	level := models.LevelLow
	for _, ind := range indicators {
		level = max(level, ind.Level)
	}
	return level
}
