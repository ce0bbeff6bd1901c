package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// ErrLeaseReleased is returned when renewing a lease that was released or fired.
var ErrLeaseReleased = errors.New("storage: lease released")

// MemoryStorage is an in-process Storage with the same semantics as the Redis
// implementation. Subscribers are called synchronously on the writer's goroutine.
type MemoryStorage struct {
	mu       sync.Mutex
	now      func() time.Time
	leaseTTL time.Duration
	keys     *keyGen

	records map[string]map[string][]byte
	subs    map[int]*memorySub
	nextSub int

	leases    map[string]*memoryLease
	nextLease int
}

type memorySub struct {
	path string
	fn   func(Snapshot)
}

// NewMemoryStorage creates an empty store. now drives lease expiry; nil means time.Now.
func NewMemoryStorage(now func() time.Time, leaseTTL time.Duration) *MemoryStorage {
	if now == nil {
		now = time.Now
	}
	return &MemoryStorage{
		now:      now,
		leaseTTL: leaseTTL,
		keys:     newKeyGen(now),
		records:  make(map[string]map[string][]byte),
		subs:     make(map[int]*memorySub),
		leases:   make(map[string]*memoryLease),
	}
}

func (s *MemoryStorage) Write(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.writeRaw(path, data)
}

func (s *MemoryStorage) writeRaw(path string, data []byte) error {
	parent, key, err := splitPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	coll, ok := s.records[parent]
	if !ok {
		coll = make(map[string][]byte)
		s.records[parent] = coll
	}
	coll[key] = data
	s.mu.Unlock()

	s.changed(path)
	return nil
}

func (s *MemoryStorage) Patch(ctx context.Context, path string, fields map[string]any) error {
	parent, key, err := splitPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	raw, ok := s.records[parent][key]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	merged, err := mergeFields(raw, fields)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.records[parent][key] = merged
	s.mu.Unlock()

	s.changed(path)
	return nil
}

func (s *MemoryStorage) Append(ctx context.Context, path string, value any) (string, error) {
	if err := validatePath(path); err != nil {
		return "", err
	}
	key := s.keys.next()
	if err := s.Write(ctx, path+"/"+key, value); err != nil {
		return "", err
	}
	return key, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, path string) error {
	parent, key, err := splitPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if coll, ok := s.records[parent]; ok {
		delete(coll, key)
		if len(coll) == 0 {
			delete(s.records, parent)
		}
	}
	for p := range s.records {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(s.records, p)
		}
	}
	s.mu.Unlock()

	s.changed(path)
	return nil
}

func (s *MemoryStorage) Subscribe(ctx context.Context, path string, fn func(Snapshot)) error {
	if err := validatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &memorySub{path: path, fn: fn}
	s.mu.Unlock()

	context.AfterFunc(ctx, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	})

	fn(s.read(path))
	return nil
}

// read must be called without s.mu held.
func (s *MemoryStorage) read(path string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Path: path}
	if coll, ok := s.records[path]; ok && len(coll) > 0 {
		snap.Children = make(map[string]json.RawMessage, len(coll))
		for k, v := range coll {
			snap.Children[k] = append(json.RawMessage(nil), v...)
		}
		return snap
	}
	if parent, key, err := splitPath(path); err == nil {
		if v, ok := s.records[parent][key]; ok {
			snap.Value = append(json.RawMessage(nil), v...)
		}
	}
	return snap
}

func (s *MemoryStorage) changed(path string) {
	s.mu.Lock()
	var targets []*memorySub
	for _, sub := range s.subs {
		if related(sub.path, path) {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		sub.fn(s.read(sub.path))
	}
}

// memoryLease is one registration of a path. A newer registration of the same
// path replaces it, after which Renew fails and Release does nothing.
type memoryLease struct {
	s       *MemoryStorage
	id      int
	path    string
	value   []byte
	expires time.Time
}

func (s *MemoryStorage) OnDisconnectWrite(ctx context.Context, path string, value any) (Lease, error) {
	if _, _, err := splitPath(path); err != nil {
		return nil, err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	l := &memoryLease{s: s, id: s.nextLease, path: path, value: data, expires: s.now().Add(s.leaseTTL)}
	s.nextLease++
	s.leases[path] = l
	s.mu.Unlock()
	return l, nil
}

// current must be called with s.mu held.
func (l *memoryLease) current() bool {
	cur, ok := l.s.leases[l.path]
	return ok && cur.id == l.id
}

func (l *memoryLease) Renew(ctx context.Context, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if !l.current() {
		return ErrLeaseReleased
	}
	l.value = data
	l.expires = l.s.now().Add(l.s.leaseTTL)
	return nil
}

func (l *memoryLease) Release(ctx context.Context) error {
	l.s.mu.Lock()
	if l.current() {
		delete(l.s.leases, l.path)
	}
	l.s.mu.Unlock()
	return nil
}

// Reap fires every lease whose TTL has elapsed.
func (s *MemoryStorage) Reap(ctx context.Context) (int, error) {
	now := s.now()
	return s.fire(func(l *memoryLease) bool { return !now.Before(l.expires) })
}

// Disconnect simulates an unclean connection drop: every held lease fires.
func (s *MemoryStorage) Disconnect(ctx context.Context) (int, error) {
	return s.fire(func(*memoryLease) bool { return true })
}

func (s *MemoryStorage) fire(expired func(*memoryLease) bool) (int, error) {
	s.mu.Lock()
	var due []*memoryLease
	for path, l := range s.leases {
		if expired(l) {
			due = append(due, l)
			delete(s.leases, path)
		}
	}
	s.mu.Unlock()

	var errs []error
	for _, l := range due {
		if err := s.writeRaw(l.path, l.value); err != nil {
			errs = append(errs, err)
		}
	}
	return len(due) - len(errs), errors.Join(errs...)
}

// Close drops every subscription. Held leases stay registered until reaped.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = make(map[int]*memorySub)
	return nil
}
