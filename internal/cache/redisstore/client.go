// Package redisstore wraps the Redis operations the result cache uses.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/raster-clip/internal/core/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Client struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     32,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get returns ok=false for a missing key.
func (c *Client) Get(ctx context.Context, key string) (val []byte, ok bool, err error) {
	start := time.Now()
	val, err = c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveCacheOp("get", nil, time.Since(start).Seconds())
		return nil, false, nil
	}
	observability.ObserveCacheOp("get", err, time.Since(start).Seconds())
	if err != nil {
		return nil, false, fmt.Errorf("redis GET %q: %w", key, err)
	}
	return val, true, nil
}

func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, val, ttl).Err()
	observability.ObserveCacheOp("set", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SET %q: %w", key, err)
	}
	return nil
}

// Del removes keys and reports how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	start := time.Now()
	n, err := c.rdb.Del(ctx, keys...).Result()
	observability.ObserveCacheOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return int(n), nil
}

// AddToSets adds member to every set in sets and resets each set's TTL to
// ttl, in one pipeline. With a single TTL for all members the set outlives
// every member it holds.
func (c *Client) AddToSets(ctx context.Context, member string, ttl time.Duration, sets ...string) error {
	if len(sets) == 0 {
		return nil
	}
	start := time.Now()
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, s := range sets {
			p.SAdd(ctx, s, member)
			if ttl > 0 {
				p.Expire(ctx, s, ttl)
			}
		}
		return nil
	})
	observability.ObserveCacheOp("sadd", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SADD %d sets (pipeline): %w", len(sets), err)
	}
	return nil
}

func (c *Client) Members(ctx context.Context, set string) ([]string, error) {
	start := time.Now()
	out, err := c.rdb.SMembers(ctx, set).Result()
	observability.ObserveCacheOp("smembers", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS %q: %w", set, err)
	}
	return out, nil
}

// Union returns the members of all sets, without duplicates.
func (c *Client) Union(ctx context.Context, sets ...string) ([]string, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	start := time.Now()
	out, err := c.rdb.SUnion(ctx, sets...).Result()
	observability.ObserveCacheOp("sunion", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis SUNION %d sets: %w", len(sets), err)
	}
	return out, nil
}

// RemoveFromSets removes members from each of sets in one pipeline.
func (c *Client) RemoveFromSets(ctx context.Context, members []string, sets ...string) error {
	if len(members) == 0 || len(sets) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	start := time.Now()
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, s := range sets {
			p.SRem(ctx, s, args...)
		}
		return nil
	})
	observability.ObserveCacheOp("srem", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis SREM %d sets (pipeline): %w", len(sets), err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
