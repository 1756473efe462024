// Package redis opens the client behind the applied-change dedup store.
package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"budgetPilot/pkg/config"

	"github.com/redis/go-redis/v9"
)

const (
	defaultDialTimeout = 2 * time.Second
	defaultIOTimeout   = 500 * time.Millisecond
	// spare connections beyond one per queue worker, for the ping and admin calls
	spareConns = 2
)

// Options maps the redis settings onto client options. Every queue worker
// does one lookup and one write per execution, so the pool is sized to the
// worker count unless REDIS_POOL_SIZE says otherwise.
func Options(cfg config.RedisConfig, workers int) *redis.Options {
	pool := cfg.PoolSize
	if pool <= 0 {
		pool = workers + spareConns
	}
	io := cfg.Timeout
	if io <= 0 {
		io = defaultIOTimeout
	}

	return &redis.Options{
		Addr:                  net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password:              cfg.RedisPassword,
		DB:                    cfg.RedisDB,
		DialTimeout:           defaultDialTimeout,
		ReadTimeout:           io,
		WriteTimeout:          io,
		ContextTimeoutEnabled: true,
		MaxRetries:            1,
		PoolSize:              pool,
		MinIdleConns:          min(workers, pool),
	}
}

// NewRedisClient connects and pings. It returns (nil, nil) when no host is
// configured; the dedup layer is then left out.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, workers int) (*redis.Client, error) {
	if cfg.RedisHost == "" {
		return nil, nil
	}

	client := redis.NewClient(Options(cfg, workers))

	ctx, cancel := context.WithTimeout(ctx, defaultDialTimeout+time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", client.Options().Addr, err)
	}
	return client, nil
}

func CloseRedisClient(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
