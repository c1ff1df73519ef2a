package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lcastro/eventcore/internal/infrastructure/config"
	"github.com/lcastro/eventcore/pkg/retry"
)

// NewClient connects to redis and verifies the connection, retrying the
// initial ping through the same backoff executor the event handlers use.
// Network errors (refused connections while redis is still starting) retry;
// anything else, such as a bad password, fails the boot immediately.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	opts := retry.Options{
		Context:       "redis connect",
		MaxRetries:    cfg.ConnectRetries,
		InitialDelay:  cfg.ConnectRetryDelay,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = time.Second
	}

	if err := retry.Do(ctx, opts, func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}
