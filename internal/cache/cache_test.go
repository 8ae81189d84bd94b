package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/cache"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/config"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/diversity"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
)

func setupCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.New(client, time.Hour, 10*time.Minute, logger.NewNop()), mr
}

func TestHashCache(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)

	_, ok, err := c.Lookup(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	id := uuid.New()
	require.NoError(t, c.Remember(ctx, "abc", id))

	got, ok, err := c.Lookup(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, got)
	assert.Equal(t, time.Hour, mr.TTL("social-scheduler:dedup:hash:abc"))

	mr.FastForward(2 * time.Hour)
	_, ok, err = c.Lookup(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashCache_CorruptEntryIsMiss(t *testing.T) {
	c, mr := setupCache(t)
	require.NoError(t, mr.Set("social-scheduler:dedup:hash:bad", "not-a-uuid"))

	_, ok, err := c.Lookup(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotCache(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)
	day := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)

	_, ok, err := c.GetSnapshot(ctx, day)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := diversity.Snapshot{
		Day:                  "2026-06-02",
		FilledSlots:          4,
		PlatformDistribution: map[domain.Platform]int{domain.PlatformReddit: 2, domain.PlatformImgur: 2},
		Score:                81,
		Alerts:               []diversity.Alert{},
	}
	require.NoError(t, c.SetSnapshot(ctx, day, &snap))
	assert.Equal(t, 10*time.Minute, mr.TTL("social-scheduler:diversity:2026-06-02"))

	got, ok, err := c.GetSnapshot(ctx, day)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 81, got.Score)
	assert.Equal(t, 2, got.PlatformDistribution[domain.PlatformImgur])

	require.NoError(t, c.InvalidateDay(ctx, day))
	assert.False(t, mr.Exists("social-scheduler:diversity:2026-06-02"))
}

func TestFlush_LeavesForeignKeys(t *testing.T) {
	ctx := context.Background()
	c, mr := setupCache(t)
	for i := range 150 {
		require.NoError(t, c.Remember(ctx, uuid.NewString(), uuid.New()), i)
	}
	require.NoError(t, mr.Set("other:key", "1"))

	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(150), n)
	assert.True(t, mr.Exists("other:key"))
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := cache.NewClient(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = cache.NewClient(config.RedisConfig{Address: mr.Addr()})
	require.Error(t, err)
}
