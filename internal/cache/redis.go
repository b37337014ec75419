// Package cache provides a Redis read-through layer in front of collaborators
// that would otherwise round-trip Postgres or a broker REST call on every
// detector scan: the baseline provider and the market-regime check (§4.8 #10).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps redis.Client with the JSON get/set pattern used throughout
// this package.
type Client struct {
	rdb *redis.Client
}

// NewClient dials addr (host:port) and verifies connectivity with a 5s ping.
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connecting to redis at %s: %w", addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Set stores value as JSON under key with the given expiration.
func (c *Client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshaling %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, b, expiration).Err()
}

// Get decodes the JSON value stored at key into dest. Returns redis.Nil
// (unwrapped, callers should check errors.Is(err, redis.Nil)) on a cache miss.
func (c *Client) Get(ctx context.Context, key string, dest any) error {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
