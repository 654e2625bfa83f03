package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/cashapp/internal/config"
)

// NewClient builds the shared Redis client backing the ERP Facade's
// per-customer posting lock and the Communicator's per-recipient token
// bucket (spec.md §4.2, §4.5).
func NewClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
