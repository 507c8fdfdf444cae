// Package buffer keeps recent security events indexed by actor, source
// address and service so detectors can look back over a window cheaply.
package buffer

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/telhawk-systems/telhawk-sentinel/common/logging"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/metrics"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
)

// Dimension is a grouping key kind.
type Dimension int

const (
	DimensionActor Dimension = iota
	DimensionAddress
	DimensionService
)

var dimensions = [...]Dimension{DimensionActor, DimensionAddress, DimensionService}

func (d Dimension) String() string {
	switch d {
	case DimensionActor:
		return "actor"
	case DimensionAddress:
		return "address"
	case DimensionService:
		return "service"
	}
	return fmt.Sprintf("Dimension(%d)", int(d))
}

// Key returns the value of dimension d for e; "" means e is not indexed there.
func (d Dimension) Key(e models.SecurityEvent) string {
	switch d {
	case DimensionActor:
		return e.ActorID
	case DimensionAddress:
		return e.SourceAddress
	case DimensionService:
		return e.Service
	}
	return ""
}

// Reader is the read-only view detectors get.
type Reader interface {
	// Window returns events for key with from <= timestamp <= to, oldest first.
	Window(dim Dimension, key string, from, to time.Time) []models.SecurityEvent
	// Recent returns up to n newest events for key, oldest first.
	Recent(dim Dimension, key string, n int) []models.SecurityEvent
}

// Config bounds the index.
type Config struct {
	// Capacity is the per-key event limit.
	Capacity int `mapstructure:"capacity"`
	// TTL is the maximum age of buffered events.
	TTL time.Duration `mapstructure:"ttl"`
	// MaxKeys is the LRU bound on keys per dimension.
	MaxKeys int `mapstructure:"max_keys"`
}

// DefaultConfig holds 1000 events or 24h per key and 10k keys per dimension.
func DefaultConfig() Config {
	return Config{Capacity: 1000, TTL: 24 * time.Hour, MaxKeys: 10000}
}

// Index is the event buffer index. It is safe for concurrent use: each
// key's ring has its own lock, the key maps are LRU caches.
type Index struct {
	cfg    Config
	logger *logging.Logger
	spaces [len(dimensions)]*keyspace
}

type keyspace struct {
	dim Dimension
	// mu makes get-or-create-and-insert and remove-if-empty atomic; the
	// cache itself is already synchronized.
	mu    sync.Mutex
	rings *lru.Cache[string, *Ring]
}

// New builds an index. Non-positive config values fall back to defaults.
func New(cfg Config, logger *logging.Logger) (*Index, error) {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = def.MaxKeys
	}
	if logger == nil {
		logger = logging.Default()
	}

	idx := &Index{cfg: cfg, logger: logger.Component("buffer")}
	for _, dim := range dimensions {
		cache, err := lru.New[string, *Ring](cfg.MaxKeys)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s key cache: %w", dim, err)
		}
		idx.spaces[dim] = &keyspace{dim: dim, rings: cache}
	}
	return idx, nil
}

func (idx *Index) Config() Config {
	return idx.cfg
}

// Record inserts e into every dimension it has a key for.
func (idx *Index) Record(e models.SecurityEvent) {
	for _, ks := range idx.spaces {
		key := ks.dim.Key(e)
		if key == "" {
			continue
		}
		ks.insert(key, e, idx.cfg)
	}
}

// insert finds or creates the ring for key and inserts e under ks.mu, so
// Evict never sees a freshly created ring while it is still empty.
func (ks *keyspace) insert(key string, e models.SecurityEvent, cfg Config) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	r, ok := ks.rings.Get(key)
	if !ok {
		r = NewRing(cfg.Capacity, cfg.TTL)
		if evicted := ks.rings.Add(key, r); evicted {
			metrics.BufferKeysEvicted.WithLabelValues(ks.dim.String(), "lru").Inc()
		}
	}
	r.Insert(e)
}

func (idx *Index) Window(dim Dimension, key string, from, to time.Time) []models.SecurityEvent {
	if r := idx.peek(dim, key); r != nil {
		return r.Between(from, to)
	}
	return nil
}

func (idx *Index) Recent(dim Dimension, key string, n int) []models.SecurityEvent {
	if r := idx.peek(dim, key); r != nil {
		return r.Recent(n)
	}
	return nil
}

// Len returns the number of buffered events for key.
func (idx *Index) Len(dim Dimension, key string) int {
	if r := idx.peek(dim, key); r != nil {
		return r.Len()
	}
	return 0
}

func (idx *Index) peek(dim Dimension, key string) *Ring {
	if int(dim) < 0 || int(dim) >= len(idx.spaces) || key == "" {
		return nil
	}
	r, _ := idx.spaces[dim].rings.Peek(key)
	return r
}

// EvictResult summarizes one TTL eviction pass.
type EvictResult struct {
	Events int
	Keys   int
}

// Evict drops events older than cutoff and removes keys left empty.
func (idx *Index) Evict(cutoff time.Time) EvictResult {
	var res EvictResult
	for _, ks := range idx.spaces {
		for _, key := range ks.rings.Keys() {
			r, ok := ks.rings.Peek(key)
			if !ok {
				continue
			}
			res.Events += r.EvictBefore(cutoff)

			ks.mu.Lock()
			// The key may have been dropped and recreated since the peek.
			if cur, ok := ks.rings.Peek(key); ok && cur == r && r.Len() == 0 {
				ks.rings.Remove(key)
				res.Keys++
				metrics.BufferKeysEvicted.WithLabelValues(ks.dim.String(), "ttl").Inc()
			}
			ks.mu.Unlock()
		}
		metrics.BufferKeys.WithLabelValues(ks.dim.String()).Set(float64(ks.rings.Len()))
	}
	metrics.BufferEventsEvicted.Add(float64(res.Events))
	if res.Events > 0 || res.Keys > 0 {
		idx.logger.Debug("buffer eviction",
			"events", res.Events,
			"keys", res.Keys,
			"cutoff", cutoff)
	}
	return res
}

// EvictExpired applies the configured TTL relative to now.
func (idx *Index) EvictExpired(now time.Time) EvictResult {
	return idx.Evict(now.Add(-idx.cfg.TTL))
}

// Keys returns the number of tracked keys across all dimensions.
func (idx *Index) Keys() int {
	n := 0
	for _, ks := range idx.spaces {
		n += ks.rings.Len()
	}
	return n
}

// KeysIn returns the number of tracked keys for dim.
func (idx *Index) KeysIn(dim Dimension) int {
	if int(dim) < 0 || int(dim) >= len(idx.spaces) {
		return 0
	}
	return idx.spaces[dim].rings.Len()
}
