package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"couplesync/backend/internal/logging"
)

const maxPatchAttempts = 5

// Service is the Redis-backed Storage. A record at "p/q/r" is field "r" of the
// hash "<prefix>p/q"; every mutation is announced on "<prefix>changes" so each
// client can re-read the paths it subscribed to.
type Service struct {
	Redis    *redis.Client
	Prefix   string
	LeaseTTL time.Duration

	keys *keyGen

	mu      sync.Mutex
	subs    map[int]*redisSub
	nextSub int
	cancel  context.CancelFunc
	done    chan struct{}

	ownsClient bool
}

type redisSub struct {
	path string
	fn   func(Snapshot)
	// serializes deliveries so a subscriber never sees an older read after a newer one
	mu sync.Mutex
}

// NewStorageService wraps an already connected client.
func NewStorageService(rdb *redis.Client, prefix string, leaseTTL time.Duration) *Service {
	return &Service{
		Redis:    rdb,
		Prefix:   prefix,
		LeaseTTL: leaseTTL,
		keys:     newKeyGen(time.Now),
		subs:     make(map[int]*redisSub),
	}
}

func (s *Service) key(collection string) string { return s.Prefix + collection }
func (s *Service) changesChannel() string       { return s.Prefix + "changes" }

func (s *Service) Write(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.writeRaw(ctx, path, data)
}

func (s *Service) writeRaw(ctx context.Context, path string, data []byte) error {
	parent, field, err := splitPath(path)
	if err != nil {
		return err
	}
	_, err = s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(parent), field, data)
		pipe.Publish(ctx, s.changesChannel(), path)
		return nil
	})
	return err
}

func (s *Service) Patch(ctx context.Context, path string, fields map[string]any) error {
	parent, field, err := splitPath(path)
	if err != nil {
		return err
	}
	key := s.key(parent)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, field).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		merged, err := mergeFields(raw, fields)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, merged)
			pipe.Publish(ctx, s.changesChannel(), path)
			return nil
		})
		return err
	}

	// Optimistic read-merge-write; another writer touching the same hash forces a retry.
	for i := 0; i < maxPatchAttempts; i++ {
		err := s.Redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("storage: patch %s: %w", path, redis.TxFailedErr)
}

func (s *Service) Append(ctx context.Context, path string, value any) (string, error) {
	if err := validatePath(path); err != nil {
		return "", err
	}
	key := s.keys.next()
	if err := s.Write(ctx, path+"/"+key, value); err != nil {
		return "", err
	}
	return key, nil
}

// Delete removes the record at path and, if path is a collection, all its children.
func (s *Service) Delete(ctx context.Context, path string) error {
	parent, field, err := splitPath(path)
	if err != nil {
		return err
	}
	_, err = s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.key(parent), field)
		pipe.Del(ctx, s.key(path))
		pipe.Publish(ctx, s.changesChannel(), path)
		return nil
	})
	return err
}

func (s *Service) read(ctx context.Context, path string) (Snapshot, error) {
	snap := Snapshot{Path: path}

	children, err := s.Redis.HGetAll(ctx, s.key(path)).Result()
	if err != nil {
		return snap, err
	}
	if len(children) > 0 {
		snap.Children = make(map[string]json.RawMessage, len(children))
		for k, v := range children {
			snap.Children[k] = json.RawMessage(v)
		}
		return snap, nil
	}

	parent, field, err := splitPath(path)
	if err != nil {
		return snap, nil
	}
	raw, err := s.Redis.HGet(ctx, s.key(parent), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	snap.Value = raw
	return snap, nil
}

// Subscribe registers fn and delivers the current value before returning when
// the store is reachable. Only an invalid path is an error. The change listener
// is started on first use and runs until Close.
func (s *Service) Subscribe(ctx context.Context, path string, fn func(Snapshot)) error {
	if err := validatePath(path); err != nil {
		return err
	}
	sub := &redisSub{path: path, fn: fn}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	if s.cancel == nil {
		lctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.listen(lctx)
	}
	s.mu.Unlock()

	context.AfterFunc(ctx, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	})

	// The subscription stays registered when the first read fails; the listener
	// replays it once the connection is back.
	if err := s.deliver(ctx, sub); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("initial store read failed, waiting for reconnect")
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, sub *redisSub) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	snap, err := s.read(ctx, sub.path)
	if err != nil {
		return fmt.Errorf("storage: read %s: %w", sub.path, err)
	}
	sub.fn(snap)
	return nil
}

// listen follows the change channel. A (re)subscription means updates may have
// been missed while disconnected, so every subscriber gets a full replay.
func (s *Service) listen(ctx context.Context) {
	defer close(s.done)

	pubsub := s.Redis.Subscribe(ctx, s.changesChannel())
	defer pubsub.Close()

	ch := pubsub.ChannelWithSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			switch msg := m.(type) {
			case *redis.Subscription:
				if msg.Kind == "subscribe" {
					s.deliverMatching(ctx, func(string) bool { return true })
				}
			case *redis.Message:
				changed := msg.Payload
				s.deliverMatching(ctx, func(sub string) bool { return related(sub, changed) })
			}
		}
	}
}

func (s *Service) deliverMatching(ctx context.Context, match func(string) bool) {
	s.mu.Lock()
	targets := make([]*redisSub, 0, len(s.subs))
	for _, sub := range s.subs {
		if match(sub.path) {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		if err := s.deliver(ctx, sub); err != nil {
			logging.Warn().Err(err).Str("path", sub.path).Msg("store delivery failed")
		}
	}
}

// Close stops the change listener. The Redis client is closed only when it was
// dialed by OpenRedis.
func (s *Service) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	if s.ownsClient {
		return s.Redis.Close()
	}
	return nil
}
