package storage

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"couplesync/backend/internal/logging"
)

// leaseRecord is the fallback kept in the "<prefix>leases" hash, one entry per path.
type leaseRecord struct {
	Path  string          `json:"path"`
	Owner string          `json:"owner"`
	Value json.RawMessage `json:"value"`
}

// redisLease is keyed by path: a record has exactly one writer, so a client
// that restarts after a crash takes over the lease its previous run left behind.
type redisLease struct {
	s     *Service
	path  string
	owner string
}

func (s *Service) leasesKey() string           { return s.Prefix + "leases" }
func (s *Service) aliveKey(path string) string { return s.Prefix + "lease:" + path }

// OnDisconnectWrite registers a lease on path, replacing any earlier
// registration for the same path.
func (s *Service) OnDisconnectWrite(ctx context.Context, path string, value any) (Lease, error) {
	if _, _, err := splitPath(path); err != nil {
		return nil, err
	}
	l := &redisLease{s: s, path: path, owner: uuid.New().String()}
	if err := l.put(ctx, l.s.Redis, value); err != nil {
		return nil, err
	}
	return l, nil
}

// txPipeliner is satisfied by both *redis.Client and *redis.Tx.
type txPipeliner interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

func (l *redisLease) put(ctx context.Context, c txPipeliner, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	rec, err := json.Marshal(leaseRecord{Path: l.path, Owner: l.owner, Value: raw})
	if err != nil {
		return err
	}
	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, l.s.leasesKey(), l.path, rec)
		pipe.Set(ctx, l.s.aliveKey(l.path), l.owner, l.s.LeaseTTL)
		return nil
	})
	return err
}

// owned runs fn inside a WATCH on the lease hash if this lease is still the
// registered one for its path.
func (l *redisLease) owned(ctx context.Context, fn func(tx *redis.Tx) error) (bool, error) {
	mine := false
	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, l.s.leasesKey(), l.path).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var rec leaseRecord
		if err := json.Unmarshal(raw, &rec); err != nil || rec.Owner != l.owner {
			return nil
		}
		mine = true
		return fn(tx)
	}
	for i := 0; i < maxPatchAttempts; i++ {
		mine = false
		err := l.s.Redis.Watch(ctx, txf, l.s.leasesKey())
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return mine, err
	}
	return false, fmt.Errorf("storage: lease %s: %w", l.path, redis.TxFailedErr)
}

// Renew fails with ErrLeaseReleased once the entry for the path is gone or
// belongs to a newer registration.
func (l *redisLease) Renew(ctx context.Context, value any) error {
	mine, err := l.owned(ctx, func(tx *redis.Tx) error {
		return l.put(ctx, tx, value)
	})
	if err != nil {
		return err
	}
	if !mine {
		return ErrLeaseReleased
	}
	return nil
}

// Release leaves a newer registration for the same path alone.
func (l *redisLease) Release(ctx context.Context) error {
	_, err := l.owned(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, l.s.aliveKey(l.path))
			pipe.HDel(ctx, l.s.leasesKey(), l.path)
			return nil
		})
		return err
	})
	return err
}

// Reap fires the fallback of every lease whose alive key has expired. Removing
// the hash entry is the claim: when several reapers race, only the one whose
// HDEL removed the entry writes the fallback.
func (s *Service) Reap(ctx context.Context) (int, error) {
	all, err := s.Redis.HGetAll(ctx, s.leasesKey()).Result()
	if err != nil {
		return 0, err
	}

	fired := 0
	var errs []error
	for path, raw := range all {
		alive, err := s.Redis.Exists(ctx, s.aliveKey(path)).Result()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if alive > 0 {
			continue
		}
		claimed, err := s.Redis.HDel(ctx, s.leasesKey(), path).Result()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if claimed == 0 {
			continue
		}

		var rec leaseRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			logging.Warn().Err(err).Str("lease", path).Msg("dropping unreadable lease")
			continue
		}
		if err := s.writeRaw(ctx, rec.Path, rec.Value); err != nil {
			errs = append(errs, err)
			continue
		}
		logging.Debug().Str("path", rec.Path).Msg("lease expired, fallback written")
		fired++
	}
	return fired, errors.Join(errs...)
}
