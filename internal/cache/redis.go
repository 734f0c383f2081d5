package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/admissions/services/pipeline/config"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TimelineTTL bounds how long a projected timeline stays cached. Entries
// are keyed by application version, so a stale read after a transition is
// impossible; the TTL only reclaims space.
const TimelineTTL = 24 * time.Hour

// DocumentTypesTTL bounds the catalog cache. The catalog changes rarely
// and a short window after an admin edit is acceptable.
const DocumentTypesTTL = 10 * time.Minute

// ErrMiss is returned by Get when the key is absent or the cache is off.
var ErrMiss = errors.New("cache miss")

// RedisCache stores JSON-encoded values in Redis. A disabled cache is a
// valid instance: Get always misses and Set is a no-op.
type RedisCache struct {
	client  *redis.Client
	enabled bool
}

// NewRedisCache connects to Redis, or returns a disabled cache when the
// config turns caching off.
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{client: client, enabled: true}, nil
}

// Get loads the JSON value stored under key into value.
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	if !c.enabled {
		return ErrMiss
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return errors.Wrap(err, "failed to read key from Redis")
	}

	if err := json.Unmarshal(data, value); err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}
	return nil
}

// Set stores value under key as JSON with the given expiration.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.enabled {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return errors.Wrap(err, "failed to write key to Redis")
	}
	return nil
}

// TimelineKey builds the cache key for one application's projected
// timeline. The version component makes entries self-invalidating: every
// committed transition bumps the version and abandons the old entry.
func TimelineKey(applicationID uuid.UUID, version int) string {
	return fmt.Sprintf("timeline:%s:%d", applicationID.String(), version)
}

// DocumentTypesKey is the cache key for the document type catalog.
func DocumentTypesKey() string {
	return "document-types:catalog"
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
