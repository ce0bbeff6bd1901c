// Package capsule implements time capsules: messages that stay hidden until
// their unlock time.
//
// The unlock time is checked by the client only. The store accepts any write,
// so the lock holds between two cooperating clients and no further.
package capsule

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"couplesync/backend/internal/countdown"
	"couplesync/backend/internal/localization"
	"couplesync/backend/internal/logging"
	"couplesync/backend/internal/models"
	"couplesync/backend/internal/notify"
	"couplesync/backend/internal/storage"
	"couplesync/backend/internal/transition"
)

var (
	ErrEmptyMessage = errors.New("capsule: message is empty")
	ErrUnlockInPast = errors.New("capsule: unlock time must be in the future")
	ErrStillLocked  = errors.New("capsule: still locked")
	ErrNotFound     = errors.New("capsule: not found")
)

type Config struct {
	Self  models.Role
	Paths models.Paths
}

// Store holds the latest capsule snapshot. Owned by the session loop.
type Store struct {
	cfg   Config
	store storage.Storage
	now   func() time.Time
	emit  notify.Emitter
	texts localization.Texts
	log   zerolog.Logger

	capsules map[string]models.TimeCapsule
	unlocked map[string]*transition.Notifier[bool]
}

func NewStore(cfg Config, store storage.Storage, now func() time.Time, emit notify.Emitter, texts localization.Texts) *Store {
	return &Store{
		cfg:      cfg,
		store:    store,
		now:      now,
		emit:     emit,
		texts:    texts,
		log:      logging.Component("capsule").With().Str("role", cfg.Self.String()).Logger(),
		capsules: make(map[string]models.TimeCapsule),
		unlocked: make(map[string]*transition.Notifier[bool]),
	}
}

func (s *Store) Path() string { return s.cfg.Paths.Capsules() }

// Create seals a new capsule. unlockAt must lie strictly after now.
func (s *Store) Create(ctx context.Context, message string, unlockAt time.Time) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrEmptyMessage
	}
	now := s.now()
	if !unlockAt.After(now) {
		return ErrUnlockInPast
	}
	c := models.TimeCapsule{
		Message:   message,
		From:      s.cfg.Self,
		CreatedAt: models.Millis(now),
		UnlockAt:  models.Millis(unlockAt),
	}
	if _, err := s.store.Append(ctx, s.Path(), c); err != nil {
		storage.LogFailure(s.log, "append", s.Path(), err)
	}
	return nil
}

// Open marks an unlocked capsule as opened. Opening twice is a no-op.
func (s *Store) Open(ctx context.Context, id string) error {
	c, ok := s.capsules[id]
	if !ok {
		return ErrNotFound
	}
	if c.Opened {
		return nil
	}
	if !c.Unlocked(s.now()) {
		return ErrStillLocked
	}
	path := s.cfg.Paths.Capsule(id)
	if err := s.store.Patch(ctx, path, map[string]any{"opened": true}); err != nil {
		storage.LogFailure(s.log, "patch", path, err)
	}
	c.Opened = true
	s.capsules[id] = c
	return nil
}

// Delete removes a capsule for both participants.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, ok := s.capsules[id]; !ok {
		return ErrNotFound
	}
	path := s.cfg.Paths.Capsule(id)
	if err := s.store.Delete(ctx, path); err != nil {
		storage.LogFailure(s.log, "delete", path, err)
	}
	delete(s.capsules, id)
	delete(s.unlocked, id)
	return nil
}

// HandleSnapshot replaces the local capsule set.
func (s *Store) HandleSnapshot(snap storage.Snapshot) {
	decoded, skipped := storage.DecodeChildren[models.TimeCapsule](snap)
	if skipped > 0 {
		s.log.Debug().Int("skipped", skipped).Msg("ignoring unreadable capsules")
	}
	for id, c := range decoded {
		c.ID = id
		decoded[id] = c
		if _, ok := s.unlocked[id]; !ok {
			s.unlocked[id] = transition.New(lockedToUnlocked, s.fireUnlocked(id))
		}
	}
	for id := range s.unlocked {
		if _, ok := decoded[id]; !ok {
			delete(s.unlocked, id)
		}
	}
	s.capsules = decoded
	s.Tick()
}

// Tick re-evaluates unlock state; a capsule that unlocks while observed
// notifies once.
func (s *Store) Tick() {
	now := s.now()
	for id, c := range s.capsules {
		s.unlocked[id].Observe(c.Unlocked(now))
	}
}

func lockedToUnlocked(prev, next bool) bool { return !prev && next }

func (s *Store) fireUnlocked(id string) transition.Fire[bool] {
	return func(bool, bool) {
		c, ok := s.capsules[id]
		if !ok || c.Opened {
			return
		}
		name := s.texts.Get("role_" + c.From.String())
		s.emit.Emit(notify.KindCapsule, s.texts.Get("capsule_unlocked_title"), s.texts.Format("capsule_unlocked_body", name))
	}
}

// View is one capsule as the UI renders it. Message is empty while hidden.
type View struct {
	ID        string             `json:"id"`
	From      models.Role        `json:"from"`
	CreatedAt int64              `json:"createdAt"`
	UnlockAt  int64              `json:"unlockAt"`
	Opened    bool               `json:"opened"`
	Unlocked  bool               `json:"unlocked"`
	Message   string             `json:"message,omitempty"`
	Remaining countdown.Duration `json:"remaining"`
	Label     string             `json:"label"`
}

// Views lists every capsule sorted by unlock time, earliest first.
func (s *Store) Views() []View {
	now := s.now()
	out := make([]View, 0, len(s.capsules))
	for _, c := range s.capsules {
		v := View{
			ID:        c.ID,
			From:      c.From,
			CreatedAt: c.CreatedAt,
			UnlockAt:  c.UnlockAt,
			Opened:    c.Opened,
			Unlocked:  c.Unlocked(now),
		}
		if c.Visible(now) {
			v.Message = c.Message
		} else {
			v.Remaining = countdown.Until(models.FromMillis(c.UnlockAt), now)
			v.Label = s.texts.Format("capsule_locked", v.Remaining.String())
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnlockAt != out[j].UnlockAt {
			return out[i].UnlockAt < out[j].UnlockAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}
