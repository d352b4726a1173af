package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kiranshivaraju/logsweep/pkg/models"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	SetWindowStatus(ctx context.Context, runID uuid.UUID, windowID int, status models.WindowStatus, ttl time.Duration) error
	GetWindowStatus(ctx context.Context, runID uuid.UUID, windowID int) (models.WindowStatus, bool, error)
	AddRunCounter(ctx context.Context, runID uuid.UUID, status models.WindowStatus, delta int64, ttl time.Duration) (int64, error)
	RunCounters(ctx context.Context, runID uuid.UUID) (map[models.WindowStatus]int64, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) SetWindowStatus(ctx context.Context, runID uuid.UUID, windowID int, status models.WindowStatus, ttl time.Duration) error {
	return c.client.Set(ctx, WindowStatusKey(runID, windowID), string(status), ttl).Err()
}

func (c *RedisCache) GetWindowStatus(ctx context.Context, runID uuid.UUID, windowID int) (models.WindowStatus, bool, error) {
	val, err := c.client.Get(ctx, WindowStatusKey(runID, windowID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return models.WindowStatus(val), true, nil
}

// AddRunCounter moves the count of a run's windows in status by delta and
// refreshes the key's expiry.
func (c *RedisCache) AddRunCounter(ctx context.Context, runID uuid.UUID, status models.WindowStatus, delta int64, ttl time.Duration) (int64, error) {
	key := RunCounterKey(runID, status)
	pipe := c.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RunCounters reads the terminal-status counters of a run. Missing counters
// are reported as zero.
func (c *RedisCache) RunCounters(ctx context.Context, runID uuid.UUID) (map[models.WindowStatus]int64, error) {
	statuses := []models.WindowStatus{models.WindowStatusCompleted, models.WindowStatusError}
	keys := make([]string, len(statuses))
	for i, s := range statuses {
		keys[i] = RunCounterKey(runID, s)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	counts := make(map[models.WindowStatus]int64, len(statuses))
	for i, s := range statuses {
		counts[s] = 0
		if str, ok := vals[i].(string); ok {
			n, err := strconv.ParseInt(str, 10, 64)
			if err != nil {
				return nil, err
			}
			counts[s] = n
		}
	}
	return counts, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
