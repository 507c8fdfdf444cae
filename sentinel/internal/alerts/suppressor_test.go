package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisSuppressor_AllowOncePerWindow(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := NewRedisSuppressor(client, "")
	ctx := context.Background()
	key := SuppressionKey("inc-1", "brute_force", KindAlert)

	ok, err := s.Allow(ctx, key, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Allow(ctx, key, 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second alert within the window is suppressed")

	other, err := s.Allow(ctx, SuppressionKey("inc-1", "api_abuse", KindAlert), 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, other, "different category is independent")

	mr.FastForward(5*time.Minute + time.Second)
	ok, err = s.Allow(ctx, key, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "window expired")
}

func TestRedisSuppressor_KeysAreHashedUnderPrefix(t *testing.T) {
	mr, client := setupTestRedis(t)
	s := NewRedisSuppressor(client, "test:sup")

	_, err := s.Allow(context.Background(), "inc-9|api_abuse", time.Minute)
	require.NoError(t, err)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, "test:sup:"+hashKey("inc-9|api_abuse"), keys[0])
	assert.Equal(t, time.Minute, mr.TTL(keys[0]))
}

func TestRedisSuppressor_ErrorWhenUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	s := NewRedisSuppressor(client, "")
	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	_, err = s.Allow(context.Background(), "k", time.Minute)
	assert.Error(t, err)
	assert.Error(t, s.Ping(context.Background()))
}

func TestMemorySuppressor(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemorySuppressor(func() time.Time { return now })
	ctx := context.Background()

	ok, _ := s.Allow(ctx, "k", time.Minute)
	assert.True(t, ok)
	ok, _ = s.Allow(ctx, "k", time.Minute)
	assert.False(t, ok)

	now = now.Add(30 * time.Second)
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, s.Len())

	now = now.Add(31 * time.Second)
	n, _ = s.Sweep(ctx)
	assert.Equal(t, 1, n)
	assert.Zero(t, s.Len())

	ok, _ = s.Allow(ctx, "k", time.Minute)
	assert.True(t, ok)
}
