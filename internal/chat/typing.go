package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"couplesync/backend/internal/logging"
	"couplesync/backend/internal/models"
	"couplesync/backend/internal/storage"
)

// Timer is the part of *time.Timer the typing debounce needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. The session supplies one that runs f on its
// own loop; tests supply a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

// RealAfterFunc wraps time.AfterFunc.
func RealAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type TypingConfig struct {
	Self     models.Role
	Paths    models.Paths
	Debounce time.Duration
}

// Typing publishes the local typing flag and mirrors the partner's.
type Typing struct {
	cfg   TypingConfig
	store storage.Storage
	after AfterFunc
	log   zerolog.Logger

	active bool
	timer  Timer
	gen    uint64

	partner bool
}

func NewTyping(cfg TypingConfig, store storage.Storage, after AfterFunc) *Typing {
	if after == nil {
		after = RealAfterFunc
	}
	return &Typing{
		cfg:   cfg,
		store: store,
		after: after,
		log:   logging.Component("typing").With().Str("role", cfg.Self.String()).Logger(),
	}
}

func (t *Typing) PartnerPath() string { return t.cfg.Paths.Typing(t.cfg.Self.Other()) }

func (t *Typing) selfPath() string { return t.cfg.Paths.Typing(t.cfg.Self) }

// Input records local keystroke activity. The flag is written true only on
// the idle->typing edge; the debounce timer restarts on every call.
func (t *Typing) Input(ctx context.Context) {
	if !t.active {
		t.active = true
		t.write(ctx, true)
	}
	t.stopTimer()
	gen := t.gen
	t.timer = t.after(t.cfg.Debounce, func() { t.expire(ctx, gen) })
}

// Clear cancels the debounce and writes false immediately.
func (t *Typing) Clear(ctx context.Context) {
	t.stopTimer()
	t.active = false
	t.write(ctx, false)
}

// Active reports whether the local flag is currently true.
func (t *Typing) Active() bool { return t.active }

func (t *Typing) expire(ctx context.Context, gen uint64) {
	if gen != t.gen || !t.active {
		return
	}
	t.timer = nil
	t.active = false
	t.write(ctx, false)
}

func (t *Typing) stopTimer() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Typing) write(ctx context.Context, v bool) {
	if err := t.store.Write(ctx, t.selfPath(), models.TypingFlag{Value: v}); err != nil {
		storage.LogFailure(t.log, "write", t.selfPath(), err)
	}
}

// HandlePartner mirrors the partner's flag as delivered. A missing or
// unreadable record reads as not typing.
func (t *Typing) HandlePartner(snap storage.Snapshot) {
	var flag models.TypingFlag
	if err := snap.Decode(&flag); err != nil {
		t.partner = false
		return
	}
	t.partner = flag.Value
}

func (t *Typing) PartnerTyping() bool { return t.partner }
