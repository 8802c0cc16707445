package lock

import (
	"context"

	"github.com/apipatb/earning-sub011/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func provide(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Locker {
	if !cfg.RedisEnabled() {
		log.Info("redis not configured, using in-process segment locks")
		return NewLocalLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Info("using redis segment locks", zap.String("addr", cfg.RedisAddr))
	return NewRedisLocker(client)
}

var Module = fx.Module("lock",
	fx.Provide(provide),
)
