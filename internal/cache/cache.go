package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/diversity"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
)

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "social-scheduler"

const scanBatchSize = 100

// Cache implements dedup.HashCache, diversity.SnapshotCache and
// schedule.Invalidator on one Redis client.
type Cache struct {
	client       *redis.Client
	dedupTTL     time.Duration
	diversityTTL time.Duration
	logger       logger.Logger
}

// New creates a cache over client with the given key lifetimes.
func New(client *redis.Client, dedupTTL, diversityTTL time.Duration, log logger.Logger) *Cache {
	return &Cache{
		client:       client,
		dedupTTL:     dedupTTL,
		diversityTTL: diversityTTL,
		logger:       log,
	}
}

func hashKey(hash string) string {
	return fmt.Sprintf("%s:dedup:hash:%s", KeyPrefix, hash)
}

func diversityKey(day time.Time) string {
	return fmt.Sprintf("%s:diversity:%s", KeyPrefix, domain.DayKey(day))
}

// Lookup returns the content id stored for hash, if any.
func (c *Cache) Lookup(ctx context.Context, hash string) (uuid.UUID, bool, error) {
	val, err := c.client.Get(ctx, hashKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("get hash: %w", err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		// A corrupt entry is treated as a miss and replaced on the next write.
		c.logger.Warn("Discarding unparseable hash cache entry",
			logger.String("redis_key", hashKey(hash)),
			logger.Error(err),
		)
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

// Remember stores hash -> id for the dedup TTL.
func (c *Cache) Remember(ctx context.Context, hash string, id uuid.UUID) error {
	if err := c.client.Set(ctx, hashKey(hash), id.String(), c.dedupTTL).Err(); err != nil {
		return fmt.Errorf("set hash: %w", err)
	}
	return nil
}

func (c *Cache) GetSnapshot(ctx context.Context, day time.Time) (*diversity.Snapshot, bool, error) {
	raw, err := c.client.Get(ctx, diversityKey(day)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get snapshot: %w", err)
	}
	var snap diversity.Snapshot
	if err = json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, true, nil
}

func (c *Cache) SetSnapshot(ctx context.Context, day time.Time, snap *diversity.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err = c.client.Set(ctx, diversityKey(day), raw, c.diversityTTL).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

// InvalidateDay drops the cached snapshot for day.
func (c *Cache) InvalidateDay(ctx context.Context, day time.Time) error {
	if err := c.client.Del(ctx, diversityKey(day)).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Flush removes every key under KeyPrefix and returns how many were deleted.
// SCAN is used so unrelated keys in the same database survive.
func (c *Cache) Flush(ctx context.Context) (int64, error) {
	pattern := KeyPrefix + ":*"
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan keys: %w", err)
		}
		if len(keys) > 0 {
			n, delErr := c.client.Del(ctx, keys...).Result()
			if delErr != nil {
				return deleted, fmt.Errorf("delete keys: %w", delErr)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Info("Cache flushed",
		logger.String("pattern", pattern),
		logger.Int64("deleted_count", deleted),
	)
	return deleted, nil
}

// Ping reports whether Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
