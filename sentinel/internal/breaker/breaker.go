// Package breaker implements a keyed failure counter that opens after a
// threshold of consecutive failures and closes again after a timeout.
//
// There is no half-open probe: an open key stays open until its reset time,
// then the next check closes it with a zeroed counter.
package breaker

import (
	"sort"
	"sync"
	"time"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/metrics"
)

// Config controls when a key opens and for how long.
type Config struct {
	Threshold int           `mapstructure:"threshold"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// IdleTTL drops closed keys untouched for this long during Sweep.
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

func DefaultConfig() Config {
	return Config{Threshold: 5, Timeout: 60 * time.Second, IdleTTL: time.Hour}
}

// State is the breaker state for one key.
type State struct {
	Failures  int       `json:"failures"`
	Open      bool      `json:"open"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Breaker tracks State per key. Safe for concurrent use.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	states map[string]*State
}

// New creates a breaker. Zero config values fall back to DefaultConfig; now
// may be nil to use time.Now.
func New(cfg Config, now func() time.Time) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{cfg: cfg, now: now, states: make(map[string]*State)}
}

// Evaluate records an outcome for key and reports whether this call opened
// the breaker. A success zeroes the failure counter; it does not close an
// open key early.
func (b *Breaker) Evaluate(key string, success bool) (opened bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	st := b.state(key, now)
	st.UpdatedAt = now

	if success {
		st.Failures = 0
		return false
	}
	if st.Open {
		return false
	}

	st.Failures++
	if st.Failures >= b.cfg.Threshold {
		st.Open = true
		st.ResetAt = now.Add(b.cfg.Timeout)
		metrics.BreakerTrips.Inc()
		return true
	}
	return false
}

// IsOpen reports whether key is open, closing it if its timeout elapsed.
func (b *Breaker) IsOpen(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[key]
	if !ok {
		return false
	}
	b.expire(st, b.now())
	return st.Open
}

// State returns a copy of key's state.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[key]
	if !ok {
		return State{}
	}
	b.expire(st, b.now())
	return *st
}

// OpenKeys lists currently open keys in sorted order.
func (b *Breaker) OpenKeys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var out []string
	for key, st := range b.states {
		b.expire(st, now)
		if st.Open {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// Sweep closes expired keys and forgets closed keys idle longer than
// IdleTTL. It returns the number of keys removed.
func (b *Breaker) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	removed := 0
	for key, st := range b.states {
		b.expire(st, now)
		if !st.Open && now.Sub(st.UpdatedAt) >= b.cfg.IdleTTL {
			delete(b.states, key)
			removed++
		}
	}
	return removed
}

func (b *Breaker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.states)
}

// state must be called with b.mu held.
func (b *Breaker) state(key string, now time.Time) *State {
	st, ok := b.states[key]
	if !ok {
		st = &State{}
		b.states[key] = st
	}
	b.expire(st, now)
	return st
}

func (b *Breaker) expire(st *State, now time.Time) {
	if st.Open && !now.Before(st.ResetAt) {
		st.Open = false
		st.Failures = 0
		st.ResetAt = time.Time{}
	}
}
