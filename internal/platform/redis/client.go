// Package redis opens the connection that backs the version cache.
package redis

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"custodian/internal/platform/config"
)

// ClientName tags every connection in CLIENT LIST.
const ClientName = "custodian-version-cache"

// Client is the version cache connection. Health tracks pool wait timeouts
// between checks so an exhausted pool degrades /healthz before lookups pile up.
type Client struct {
	*redis.Client
	addr         string
	seenTimeouts atomic.Uint32
}

// Options maps cfg onto go-redis options. Zero durations and sizes keep the
// go-redis defaults. Commands honour the caller's context deadline, which for
// cache lookups is the request deadline.
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.ClientName = ClientName
	opts.ContextTimeoutEnabled = true
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// New connects and pings. It returns nil, nil when no URL is configured,
// which leaves the version cache disabled.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &Client{Client: client, addr: opts.Addr}, nil
}

// Health pings Redis and fails if connection pool waits timed out since the
// previous check.
func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", c.addr, err)
	}
	timeouts := c.PoolStats().Timeouts
	if prev := c.seenTimeouts.Swap(timeouts); timeouts > prev {
		return fmt.Errorf("redis %s: %d pool waits timed out since last check", c.addr, timeouts-prev)
	}
	return nil
}
