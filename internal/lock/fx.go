package lock

import (
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/classbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(NewFromConfig),
)

// NewFromConfig returns a nil Locker when no redis address is configured.
// Callers treat a nil locker as "proceed without the lock".
func NewFromConfig(cfg config.Config, log *zap.Logger) *Locker {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Warn("redis addr not configured, distributed locking disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewLocker(client)
}
