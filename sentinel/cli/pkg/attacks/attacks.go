// Package attacks generates synthetic security event streams that imitate
// common attacks, for replaying through the engine.
package attacks

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// Config controls a single generation run.
type Config struct {
	// Now is the timestamp of the last generated event.
	Now time.Time
	// TimeSpread is how far back from Now the events are spread.
	TimeSpread time.Duration
	// Seed makes output reproducible; 0 picks a random seed.
	Seed   int64
	Params map[string]interface{}

	faker *gofakeit.Faker
}

// Faker returns the generator seeded from cfg.Seed.
func (c *Config) Faker() *gofakeit.Faker {
	if c.faker == nil {
		c.faker = gofakeit.New(c.Seed)
	}
	return c.faker
}

// Pattern is a named attack generator.
type Pattern interface {
	Name() string
	Description() string
	DefaultParams() map[string]interface{}
	Generate(cfg *Config) ([]models.SecurityEvent, error)
}

// Registry holds every registered pattern by name.
var Registry = make(map[string]Pattern)

func Register(p Pattern) {
	Registry[p.Name()] = p
}

func Get(name string) (Pattern, bool) {
	p, ok := Registry[name]
	return p, ok
}

// List returns the registered names in sorted order.
func List() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func init() {
	Register(&BruteForce{})
	Register(&CredentialStuffing{})
	Register(&GeoHop{})
	Register(&APIAbuse{})
}

// Generate runs the named pattern with its defaults overlaid by params.
func Generate(name string, cfg *Config) ([]models.SecurityEvent, error) {
	p, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown attack %q (available: %v)", name, List())
	}
	merged := p.DefaultParams()
	for k, v := range cfg.Params {
		merged[k] = v
	}
	run := *cfg
	run.Params = merged
	if run.Now.IsZero() {
		run.Now = time.Now().UTC()
	}
	if run.TimeSpread <= 0 {
		run.TimeSpread = 5 * time.Minute
	}

	events, err := p.Generate(&run)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", name, err)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

// GetParam returns cfg.Params[key] if it holds a T, else def.
func GetParam[T any](cfg *Config, key string, def T) T {
	if cfg.Params == nil {
		return def
	}
	if v, ok := cfg.Params[key].(T); ok {
		return v
	}
	return def
}

// GetIntParam is GetParam for ints that also accepts numeric strings, as
// passed on the command line.
func GetIntParam(cfg *Config, key string, def int) int {
	if cfg.Params == nil {
		return def
	}
	switch v := cfg.Params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// eventTime places event index of total evenly across the spread ending at
// cfg.Now, with up to 40% jitter of the interval.
func eventTime(cfg *Config, index, total int) time.Time {
	if total <= 0 {
		return cfg.Now
	}
	interval := float64(cfg.TimeSpread) / float64(total)
	offset := time.Duration(float64(index+1)*interval + (cfg.Faker().Float64()*2-1)*interval*0.4)
	if offset < 0 {
		offset = 0
	}
	if offset > cfg.TimeSpread {
		offset = cfg.TimeSpread
	}
	return cfg.Now.Add(-(cfg.TimeSpread - offset))
}

func newEvent(cfg *Config, typ models.EventType, ts time.Time) models.SecurityEvent {
	return models.SecurityEvent{
		ID:        cfg.Faker().UUID(),
		Type:      typ,
		Timestamp: ts,
	}
}
