package redislock

import (
	"github.com/pulseform/pulseform/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewClient returns a redis client when an address is configured, nil otherwise.
// Services that take the Locker treat nil as "fall back to in-process locking".
func NewClient(cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Info("redis not configured, distributed locking disabled")
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

// Module provides the redis client and locker.
var Module = fx.Module("redislock",
	fx.Provide(NewClient),
	fx.Provide(NewLocker),
)
