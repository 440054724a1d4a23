package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"honeypot-lab/internal/config"
	"honeypot-lab/pkg/logger"
)

// Cache key prefixes used by the honeypot
const (
	KeyRateLimitPrefix = "rate_limit:"
	KeyCallbackPrefix  = "callback:last:"
)

// RedisCache wraps the Redis client with typed operations
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *logger.Logger
}

// NewRedis creates a new Redis client and verifies the connection
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*RedisCache, error) {
	log = log.WithComponent("redis")
	log.Info().Str("addr", cfg.Addr()).Msg("connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Info().Msg("connected to Redis successfully")

	return NewFromClient(client, cfg.KeyPrefix, log), nil
}

// NewFromClient wraps an existing client. Used by tests against miniredis.
func NewFromClient(client *redis.Client, keyPrefix string, log *logger.Logger) *RedisCache {
	return &RedisCache{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    log,
	}
}

// Client returns the underlying Redis client
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Ping checks the connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	c.logger.Info().Msg("closing Redis connection")
	return c.client.Close()
}

func (c *RedisCache) key(k string) string {
	return c.keyPrefix + k
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, c.key(key)).Result()
}

// SetJSON marshals and stores a value in cache
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// GetJSON retrieves and unmarshals a JSON value from cache
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// AcquireInterval claims the next interval slot for id. It returns false
// while a previous claim is still live, so at most one call per interval
// succeeds across every instance sharing the Redis.
func (c *RedisCache) AcquireInterval(ctx context.Context, id string, interval time.Duration) (bool, error) {
	if interval <= 0 {
		return true, nil
	}
	ok, err := c.client.SetNX(ctx, c.key(KeyRateLimitPrefix+id), time.Now().UnixMilli(), interval).Result()
	if err != nil {
		return false, fmt.Errorf("acquire interval for %s: %w", id, err)
	}
	return ok, nil
}

// RememberCallback records the last intelligence report sent for a session
func (c *RedisCache) RememberCallback(ctx context.Context, sessionID string, report any, ttl time.Duration) error {
	return c.SetJSON(ctx, KeyCallbackPrefix+sessionID, report, ttl)
}

// LastCallback loads the last intelligence report recorded for a session
func (c *RedisCache) LastCallback(ctx context.Context, sessionID string, dest any) error {
	err := c.GetJSON(ctx, KeyCallbackPrefix+sessionID, dest)
	if err == redis.Nil {
		return ErrNotFound
	}
	return err
}
