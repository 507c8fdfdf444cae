package alerts

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Suppressor decides whether an alert key has already fired within a window.
type Suppressor interface {
	// Allow records key and reports true only for the first call within ttl.
	Allow(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Sweep drops expired keys and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// SuppressionKey builds the key alerts are deduplicated on. Escalations have
// their own slot so a rising incident is escalated even after a routine alert.
func SuppressionKey(incidentID, category string, kind Kind) string {
	return incidentID + "|" + category + "|" + string(kind)
}

// RedisSuppressor keeps suppression state in Redis so that several sentinel
// instances share one window.
type RedisSuppressor struct {
	redis  *redis.Client
	prefix string
}

func NewRedisSuppressor(client *redis.Client, prefix string) *RedisSuppressor {
	if prefix == "" {
		prefix = "sentinel:suppression"
	}
	return &RedisSuppressor{redis: client, prefix: prefix}
}

func (s *RedisSuppressor) Allow(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.redisKey(key), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set suppression: %w", err)
	}
	return ok, nil
}

// Sweep is a no-op; Redis expires keys itself.
func (s *RedisSuppressor) Sweep(context.Context) (int, error) {
	return 0, nil
}

// Ping checks connectivity, used at startup.
func (s *RedisSuppressor) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *RedisSuppressor) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, hashKey(key))
}

func hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", hash[:8])
}

// MemorySuppressor is the single-instance Suppressor.
type MemorySuppressor struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemorySuppressor(now func() time.Time) *MemorySuppressor {
	if now == nil {
		now = time.Now
	}
	return &MemorySuppressor{expires: make(map[string]time.Time), now: now}
}

func (s *MemorySuppressor) Allow(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if exp, ok := s.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.expires[key] = now.Add(ttl)
	return true, nil
}

func (s *MemorySuppressor) Sweep(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for k, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, k)
			removed++
		}
	}
	return removed, nil
}

func (s *MemorySuppressor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}
