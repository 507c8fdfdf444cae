package patterns

import (
	"time"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// Defaults returns the built-in pattern catalogue.
func Defaults() []models.ActivityPattern {
	return []models.ActivityPattern{
		{
			ID:             "brute_force",
			Name:           "Brute force login",
			Description:    "Repeated failed logins for one account or from one address",
			EventTypes:     []models.EventType{models.EventLoginFailed},
			Window:         15 * time.Minute,
			MinOccurrences: 5,
			Grouping:       models.Grouping{SameActor: true, SameAddress: true},
			Outcome:        models.OutcomeFailure,
			Category:       models.CategoryBruteForce,
			Level:          models.LevelHigh,
			Thresholds:     models.Thresholds{Alert: 0.7, Escalate: 0.9, AutoBlock: 0.9},
			AutoBlock:      true,
		},
		{
			ID:             "credential_stuffing",
			Name:           "Credential stuffing",
			Description:    "Many failed logins across accounts from one address",
			EventTypes:     []models.EventType{models.EventLoginFailed},
			Window:         10 * time.Minute,
			MinOccurrences: 10,
			Grouping:       models.Grouping{SameAddress: true},
			Outcome:        models.OutcomeFailure,
			Category:       models.CategoryCredentialStuffing,
			Level:          models.LevelHigh,
			Thresholds:     models.Thresholds{Alert: 0.7, Escalate: 0.9, AutoBlock: 0.85},
			AutoBlock:      true,
		},
		{
			ID:             "api_abuse",
			Name:           "API key abuse",
			Description:    "Invalid API keys presented repeatedly from one address",
			EventTypes:     []models.EventType{models.EventAPIKeyInvalid},
			Window:         5 * time.Minute,
			MinOccurrences: 20,
			Grouping:       models.Grouping{SameAddress: true},
			Category:       models.CategoryAPIAbuse,
			Level:          models.LevelMedium,
			Thresholds:     models.Thresholds{Alert: 0.7, Escalate: 0.9, AutoBlock: 0.9},
			AutoBlock:      true,
		},
		{
			ID:             "rate_limit_abuse",
			Name:           "Rate limit abuse",
			Description:    "Sustained rate-limit violations from one address",
			EventTypes:     []models.EventType{models.EventRateLimited},
			Window:         5 * time.Minute,
			MinOccurrences: 20,
			Grouping:       models.Grouping{SameAddress: true},
			Category:       models.CategoryRateLimitAbuse,
			Level:          models.LevelMedium,
			Thresholds:     models.Thresholds{Alert: 0.7, Escalate: 0.9, AutoBlock: 0.95},
			AutoBlock:      true,
		},
		{
			ID:             "privilege_escalation",
			Name:           "Privilege escalation attempts",
			Description:    "Repeated permission denials for one account",
			EventTypes:     []models.EventType{models.EventPermissionDenied},
			Window:         10 * time.Minute,
			MinOccurrences: 5,
			Grouping:       models.Grouping{SameActor: true},
			Category:       models.CategoryPrivilegeEscalation,
			Level:          models.LevelMedium,
		},
		{
			ID:             "data_exfiltration",
			Name:           "Bulk data access",
			Description:    "Unusually many export or access events for one account",
			EventTypes:     []models.EventType{models.EventDataExport, models.EventDataAccess},
			Window:         time.Hour,
			MinOccurrences: 100,
			Grouping:       models.Grouping{SameActor: true},
			Category:       models.CategoryDataExfiltration,
			Level:          models.LevelHigh,
		},
		{
			ID:             "mfa_fatigue",
			Name:           "MFA fatigue",
			Description:    "Repeated MFA failures for one account",
			EventTypes:     []models.EventType{models.EventMFAFailed},
			Window:         10 * time.Minute,
			MinOccurrences: 5,
			Grouping:       models.Grouping{SameActor: true},
			Category:       models.CategorySuspiciousLogin,
			Level:          models.LevelMedium,
		},
	}
}
