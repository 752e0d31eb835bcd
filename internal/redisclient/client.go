package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireWOLock takes the per-work-order mutation lock. Snapshot builds and
// auto-reserve passes serialize on it so two callers can't interleave
// requirement writes for the same work order.
func (c *Client) AcquireWOLock(ctx context.Context, woID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:wo:%s", woID), "1", ttl).Result()
}

// ReleaseWOLock releases the per-work-order mutation lock
func (c *Client) ReleaseWOLock(ctx context.Context, woID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:wo:%s", woID)).Err()
}

// SetIdempotencyKey stores a serialized response under an idempotency key
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// GetIdempotencyKey returns the stored response for an idempotency key,
// or nil when the key is unseen
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}
