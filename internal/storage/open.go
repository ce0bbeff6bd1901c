package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend is a Storage that also owns lease expiry and a connection.
type Backend interface {
	Storage
	Reaper
	Close() error
}

// OpenRedis connects and pings before returning the store.
func OpenRedis(ctx context.Context, opts *redis.Options, prefix string, leaseTTL time.Duration) (*Service, error) {
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect redis at %s: %w", opts.Addr, err)
	}
	svc := NewStorageService(rdb, prefix, leaseTTL)
	svc.ownsClient = true
	return svc, nil
}

// ReadOnce returns the current value at path without keeping a subscription.
func ReadOnce(ctx context.Context, s Storage, path string) (Snapshot, error) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once sync.Once
		snap Snapshot
	)
	err := s.Subscribe(sctx, path, func(got Snapshot) {
		once.Do(func() { snap = got })
	})
	return snap, err
}
