package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter shares windows between API replicas.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter connects to redisURL and checks the connection.
func NewRedisCounter(redisURL string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCounterWithClient(client), nil
}

func NewRedisCounterWithClient(client *redis.Client) *RedisCounter {
	return &RedisCounter{
		client: client,
		prefix: "ratelimit:",
	}
}

func (c *RedisCounter) key(name string) string {
	return c.prefix + name
}

// Increment runs INCR and EXPIRE NX in one MULTI/EXEC round trip. NX only
// sets a TTL on a key that has none, so the first hit starts the window and
// a key that lost its TTL gets one back.
func (c *RedisCounter) Increment(ctx context.Context, name string, window time.Duration) (int64, error) {
	key := c.key(name)
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}

func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
