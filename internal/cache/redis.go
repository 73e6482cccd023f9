package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cardamage/internal/config"
)

var ErrDisabled = errors.New("redis not configured")

// NewRedisClient returns nil, ErrDisabled when no address is configured so
// callers can run without Redis.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, ErrDisabled
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// Probe adapts a client to the health check's Ping(ctx) error shape. A nil
// client reports ErrDisabled.
type Probe struct {
	Client *redis.Client
}

func (p Probe) Ping(ctx context.Context) error {
	if p.Client == nil {
		return ErrDisabled
	}
	return p.Client.Ping(ctx).Err()
}
