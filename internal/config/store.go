package config

import (
	"context"

	"github.com/redis/go-redis/v9"

	"couplesync/backend/internal/storage"
)

// OpenStore builds the configured store. The memory driver is only useful for
// local demos; both roles must run in the same process to see each other.
func (c *Config) OpenStore(ctx context.Context) (storage.Backend, error) {
	if c.Store.Driver == "memory" {
		return storage.NewMemoryStorage(nil, c.LeaseTTL), nil
	}
	return storage.OpenRedis(ctx, &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}, c.Redis.Prefix, c.LeaseTTL)
}
