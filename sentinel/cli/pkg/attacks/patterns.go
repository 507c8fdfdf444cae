package attacks

import (
	"fmt"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// BruteForce repeats failed logins for one account from one address.
type BruteForce struct{}

func (a *BruteForce) Name() string { return "brute-force" }

func (a *BruteForce) Description() string {
	return "Password guessing: repeated failed logins against one account from one address"
}

func (a *BruteForce) DefaultParams() map[string]interface{} {
	return map[string]interface{}{
		"attempts":    20,
		"target-user": "admin",
		"source-ip":   "",
	}
}

func (a *BruteForce) Generate(cfg *Config) ([]models.SecurityEvent, error) {
	attempts := GetIntParam(cfg, "attempts", 20)
	if attempts <= 0 {
		return nil, fmt.Errorf("attempts must be positive, got %d", attempts)
	}
	user := GetParam(cfg, "target-user", "admin")
	ip := GetParam(cfg, "source-ip", "")
	if ip == "" {
		ip = cfg.Faker().IPv4Address()
	}

	events := make([]models.SecurityEvent, 0, attempts)
	for i := 0; i < attempts; i++ {
		ev := newEvent(cfg, models.EventLoginFailed, eventTime(cfg, i, attempts))
		ev.ActorID = user
		ev.SourceAddress = ip
		ev.Outcome = models.OutcomeFailure
		ev.Service = "auth"
		ev.Metadata = map[string]any{"user_agent": cfg.Faker().UserAgent()}
		events = append(events, ev)
	}
	return events, nil
}

// CredentialStuffing tries many distinct accounts from one address.
type CredentialStuffing struct{}

func (a *CredentialStuffing) Name() string { return "credential-stuffing" }

func (a *CredentialStuffing) Description() string {
	return "Credential stuffing: failed logins across many accounts from one address"
}

func (a *CredentialStuffing) DefaultParams() map[string]interface{} {
	return map[string]interface{}{
		"accounts":  30,
		"source-ip": "",
	}
}

func (a *CredentialStuffing) Generate(cfg *Config) ([]models.SecurityEvent, error) {
	accounts := GetIntParam(cfg, "accounts", 30)
	if accounts <= 0 {
		return nil, fmt.Errorf("accounts must be positive, got %d", accounts)
	}
	ip := GetParam(cfg, "source-ip", "")
	if ip == "" {
		ip = cfg.Faker().IPv4Address()
	}

	events := make([]models.SecurityEvent, 0, accounts)
	for i := 0; i < accounts; i++ {
		ev := newEvent(cfg, models.EventLoginFailed, eventTime(cfg, i, accounts))
		ev.ActorID = fmt.Sprintf("%s%d", cfg.Faker().Username(), i)
		ev.SourceAddress = ip
		ev.Outcome = models.OutcomeFailure
		ev.Service = "auth"
		events = append(events, ev)
	}
	return events, nil
}

// GeoHop builds a login history from a home country, then logs in from a
// different country.
type GeoHop struct{}

func (a *GeoHop) Name() string { return "geo-hop" }

func (a *GeoHop) Description() string {
	return "Impossible travel: an account with a stable login country suddenly logs in from elsewhere"
}

func (a *GeoHop) DefaultParams() map[string]interface{} {
	return map[string]interface{}{
		"actor":          "",
		"baseline":       12,
		"home-country":   "US",
		"remote-country": "RU",
	}
}

func (a *GeoHop) Generate(cfg *Config) ([]models.SecurityEvent, error) {
	baseline := GetIntParam(cfg, "baseline", 12)
	if baseline <= 0 {
		return nil, fmt.Errorf("baseline must be positive, got %d", baseline)
	}
	home := GetParam(cfg, "home-country", "US")
	remote := GetParam(cfg, "remote-country", "RU")
	if home == remote {
		return nil, fmt.Errorf("home-country and remote-country must differ")
	}
	actor := GetParam(cfg, "actor", "")
	if actor == "" {
		actor = cfg.Faker().Username()
	}
	homeIP := cfg.Faker().IPv4Address()

	total := baseline + 1
	events := make([]models.SecurityEvent, 0, total)
	for i := 0; i < baseline; i++ {
		ev := newEvent(cfg, models.EventLoginSuccess, eventTime(cfg, i, total))
		ev.ActorID = actor
		ev.SourceAddress = homeIP
		ev.SourceCountry = home
		ev.Outcome = models.OutcomeSuccess
		ev.Service = "auth"
		events = append(events, ev)
	}

	hop := newEvent(cfg, models.EventLoginSuccess, cfg.Now)
	hop.ActorID = actor
	hop.SourceAddress = cfg.Faker().IPv4Address()
	hop.SourceCountry = remote
	hop.Outcome = models.OutcomeSuccess
	hop.Service = "auth"
	return append(events, hop), nil
}

// APIAbuse presents invalid API keys in bulk from one address.
type APIAbuse struct{}

func (a *APIAbuse) Name() string { return "api-abuse" }

func (a *APIAbuse) Description() string {
	return "API key abuse: a burst of invalid API keys from one address"
}

func (a *APIAbuse) DefaultParams() map[string]interface{} {
	return map[string]interface{}{
		"requests":  40,
		"source-ip": "",
		"service":   "public-api",
	}
}

func (a *APIAbuse) Generate(cfg *Config) ([]models.SecurityEvent, error) {
	requests := GetIntParam(cfg, "requests", 40)
	if requests <= 0 {
		return nil, fmt.Errorf("requests must be positive, got %d", requests)
	}
	ip := GetParam(cfg, "source-ip", "")
	if ip == "" {
		ip = cfg.Faker().IPv4Address()
	}
	service := GetParam(cfg, "service", "public-api")

	events := make([]models.SecurityEvent, 0, requests)
	for i := 0; i < requests; i++ {
		ev := newEvent(cfg, models.EventAPIKeyInvalid, eventTime(cfg, i, requests))
		ev.ActorID = "apikey:" + cfg.Faker().LetterN(8)
		ev.SourceAddress = ip
		ev.Outcome = models.OutcomeFailure
		ev.Service = service
		ev.Metadata = map[string]any{"path": cfg.Faker().URL()}
		events = append(events, ev)
	}
	return events, nil
}
