package keylock

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/formmetrics/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("keylock",
	fx.Provide(NewRedisClient),
	fx.Provide(Provide),
)

// NewRedisClient returns nil when REDIS_ADDR is unset.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func Provide(client *redis.Client, log *zap.Logger) Locker {
	if client == nil {
		log.Info("keylock using in-process locker")
		return NewLocalLocker()
	}
	log.Info("keylock using redis locker")
	return NewRedisLocker(client, "formmetrics:lock:")
}
