// Package rediscache shares the health snapshot between replicas through Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notaspider/comick-source-api/internal/health"
)

// DefaultKey is the Redis key holding the snapshot.
const DefaultKey = "sourceapi:health:snapshot"

// cmdable is the subset of the go-redis client the cache uses.
type cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// Cache implements health.Cache on Redis. The key expires with the TTL so
// replicas agree on staleness without coordination.
type Cache struct {
	client cmdable
	key    string
	ttl    time.Duration
}

// New connects to Redis and verifies the connection with a PING.
func New(ctx context.Context, cfg Config) (*Cache, *redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, cfg.Key, cfg.TTL), client, nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(client cmdable, key string, ttl time.Duration) *Cache {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = health.DefaultTTL
	}
	return &Cache{client: client, key: key, ttl: ttl}
}

// Get loads the snapshot. A missing key is a miss, not an error.
func (c *Cache) Get(ctx context.Context) (health.Snapshot, bool, error) {
	b, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return health.Snapshot{}, false, nil
		}
		return health.Snapshot{}, false, fmt.Errorf("redis get snapshot: %w", err)
	}
	if len(b) == 0 {
		return health.Snapshot{}, false, nil
	}
	var snap health.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return health.Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// Set stores the snapshot with the cache TTL as key expiry.
func (c *Cache) Set(ctx context.Context, snapshot health.Snapshot) error {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

// Invalidate deletes the snapshot key.
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("redis del snapshot: %w", err)
	}
	return nil
}

// IsStale applies the TTL to the snapshot timestamp.
func (c *Cache) IsStale(snapshot health.Snapshot, now time.Time) bool {
	return health.IsStale(snapshot, now, c.ttl)
}
