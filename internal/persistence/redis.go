package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-ledger/internal/config"
)

var errRedisNotConfigured = errors.New("redis client not configured")

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration. An
// unreachable server is logged, not fatal: the ledger does not depend on it.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.Addr == "" {
		logger.Warn("REDIS_ADDR empty; event relay disabled")
		return &Redis{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Enabled reports whether a client is configured.
func (r *Redis) Enabled() bool {
	return r != nil && r.Client != nil
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errRedisNotConfigured
	}
	return r.Client.Ping(ctx).Err()
}

// Publish sends message on channel.
func (r *Redis) Publish(ctx context.Context, channel string, message []byte) error {
	if r == nil || r.Client == nil {
		return errRedisNotConfigured
	}
	return r.Client.Publish(ctx, channel, message).Err()
}

// SetHash writes fields into the hash at key.
func (r *Redis) SetHash(ctx context.Context, key string, fields map[string]any) error {
	if r == nil || r.Client == nil {
		return errRedisNotConfigured
	}
	return r.Client.HSet(ctx, key, fields).Err()
}
