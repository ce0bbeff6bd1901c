// Package chathub runs one participant's synchronization session.
//
// A Session owns every engine component and drives them from a single
// goroutine (Run). Store deliveries, timer expiries and local actions are all
// posted into one ordered mailbox; no component state is touched anywhere
// else, so the components themselves need no locking.
package chathub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"couplesync/backend/internal/capsule"
	"couplesync/backend/internal/chat"
	"couplesync/backend/internal/countdown"
	"couplesync/backend/internal/localization"
	"couplesync/backend/internal/logging"
	"couplesync/backend/internal/models"
	"couplesync/backend/internal/notify"
	"couplesync/backend/internal/presence"
	"couplesync/backend/internal/storage"
	"couplesync/backend/internal/todo"
	"couplesync/backend/internal/transition"
)

// ErrClosed is returned by actions submitted after Run has returned.
var ErrClosed = errors.New("session closed")

const stopTimeout = 5 * time.Second

type Config struct {
	Role   models.Role
	RoomID string

	RetentionWindow      time.Duration
	LivenessThreshold    time.Duration
	TypingDebounce       time.Duration
	HeartbeatInterval    time.Duration
	PresencePollInterval time.Duration
	SweepInterval        time.Duration
	CountdownTick        time.Duration

	CycleLengthDays  int
	MaxMessageLength int

	MoodPolicy MoodPolicy
}

// DefaultConfig returns the stock timings for role.
func DefaultConfig(role models.Role) Config {
	return Config{
		Role:                 role,
		RoomID:               models.DefaultRoomID,
		RetentionWindow:      24 * time.Hour,
		LivenessThreshold:    60 * time.Second,
		TypingDebounce:       1200 * time.Millisecond,
		HeartbeatInterval:    30 * time.Second,
		PresencePollInterval: 60 * time.Second,
		SweepInterval:        60 * time.Second,
		CountdownTick:        60 * time.Second,
		CycleLengthDays:      28,
		MaxMessageLength:     1000,
	}
}

// withDefaults fills every zero field from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig(c.Role)
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&c.RetentionWindow, d.RetentionWindow)
	fill(&c.LivenessThreshold, d.LivenessThreshold)
	fill(&c.TypingDebounce, d.TypingDebounce)
	fill(&c.HeartbeatInterval, d.HeartbeatInterval)
	fill(&c.PresencePollInterval, d.PresencePollInterval)
	fill(&c.SweepInterval, d.SweepInterval)
	fill(&c.CountdownTick, d.CountdownTick)
	if c.RoomID == "" {
		c.RoomID = d.RoomID
	}
	if c.CycleLengthDays <= 0 {
		c.CycleLengthDays = d.CycleLengthDays
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = d.MaxMessageLength
	}
	if c.MoodPolicy == nil {
		c.MoodPolicy = NegativeMoods()
	}
	return c
}

// Option customises a Session, mostly for tests.
type Option func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

type Session struct {
	cfg   Config
	paths models.Paths
	store storage.Storage
	now   func() time.Time
	emit  notify.Emitter
	texts localization.Texts
	log   zerolog.Logger

	presence *presence.Tracker
	channel  *chat.Channel
	typing   *chat.Typing
	capsules *capsule.Store
	todos    *todo.List

	partnerMood   *models.MoodRecord
	partnerStatus *models.StatusRecord
	myMood        *models.MoodRecord
	myStatus      *models.StatusRecord
	anniversary   *models.AnniversaryAnchor
	cycle         *models.CycleAnchor

	moodEdge   *transition.Notifier[string]
	statusEdge *transition.Notifier[string]

	mailbox *mailbox
	ctx     context.Context
	done    chan struct{}
	running atomic.Bool

	view      atomic.Pointer[View]
	mu        sync.Mutex
	listeners []ViewListener
}

func NewSession(cfg Config, store storage.Storage, sink notify.Notifier, texts localization.Texts, opts ...Option) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:     cfg,
		paths:   models.NewPaths(cfg.RoomID),
		store:   store,
		now:     time.Now,
		texts:   texts,
		log:     logging.Component("session").With().Str("role", cfg.Role.String()).Logger(),
		mailbox: newMailbox(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.emit = notify.Emitter{Sink: sink, Now: s.now}

	self := cfg.Role
	s.presence = presence.NewTracker(presence.Config{
		Self:              self,
		Paths:             s.paths,
		LivenessThreshold: cfg.LivenessThreshold,
	}, store, s.now, s.emit, texts)
	s.typing = chat.NewTyping(chat.TypingConfig{
		Self:     self,
		Paths:    s.paths,
		Debounce: cfg.TypingDebounce,
	}, store, s.afterFunc)
	s.channel = chat.NewChannel(chat.Config{
		Self:            self,
		Paths:           s.paths,
		RetentionWindow: cfg.RetentionWindow,
		MaxLength:       cfg.MaxMessageLength,
	}, store, s.now, s.emit, texts, s.typing)
	s.capsules = capsule.NewStore(capsule.Config{Self: self, Paths: s.paths}, store, s.now, s.emit, texts)
	s.todos = todo.NewList(todo.Config{Self: self, Paths: s.paths}, store, s.now)

	s.moodEdge = transition.New(transition.Filter[string](cfg.MoodPolicy), s.notifyMood)
	s.statusEdge = transition.New(nil, s.notifyStatus)

	s.view.Store(&View{Role: self, Partner: self.Other(), RoomID: s.paths.Room})
	return s
}

// afterFunc runs f on the loop once d has elapsed.
func (s *Session) afterFunc(d time.Duration, f func()) chat.Timer {
	return time.AfterFunc(d, func() { s.mailbox.post(f) })
}

// Serve makes the session a suture service.
func (s *Session) Serve(ctx context.Context) error {
	return s.Run(ctx)
}

func (s *Session) String() string {
	return "session/" + s.cfg.Role.String()
}

// Run publishes presence, subscribes to the room and processes events until
// ctx is done. It may be called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}
	defer close(s.done)
	s.ctx = ctx

	s.presence.Start(ctx)

	subs := []struct {
		path   string
		handle func(storage.Snapshot)
	}{
		{s.presence.PartnerPath(), s.presence.HandleSnapshot},
		{s.typing.PartnerPath(), s.typing.HandlePartner},
		{s.paths.Mood(s.cfg.Role.Other()), s.handlePartnerMood},
		{s.paths.Status(s.cfg.Role.Other()), s.handlePartnerStatus},
		{s.paths.Mood(s.cfg.Role), s.handleMyMood},
		{s.paths.Status(s.cfg.Role), s.handleMyStatus},
		{s.channel.Path(), func(snap storage.Snapshot) { s.channel.HandleSnapshot(s.ctx, snap) }},
		{s.capsules.Path(), s.capsules.HandleSnapshot},
		{s.todos.Path(), s.todos.HandleSnapshot},
		{s.paths.Anniversary(), s.handleAnniversary},
		{s.paths.Cycle(), s.handleCycle},
	}
	for _, sub := range subs {
		handle := sub.handle
		err := s.store.Subscribe(ctx, sub.path, func(snap storage.Snapshot) {
			s.mailbox.post(func() { handle(snap) })
		})
		if errors.Is(err, storage.ErrInvalidPath) {
			return fmt.Errorf("subscribe %s: %w", sub.path, err)
		}
		if err != nil {
			storage.LogFailure(s.log, "subscribe", sub.path, err)
		}
	}
	s.log.Info().Str("room", s.paths.Room).Msg("session started")

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(s.cfg.PresencePollInterval)
	defer poll.Stop()
	sweep := time.NewTicker(s.cfg.SweepInterval)
	defer sweep.Stop()
	tick := time.NewTicker(s.cfg.CountdownTick)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown(ctx)
			return ctx.Err()
		case <-s.mailbox.signal:
			s.process()
		case <-heartbeat.C:
			s.presence.Heartbeat(ctx)
		case <-poll.C:
			s.presence.Refresh()
			s.publishView()
		case <-sweep.C:
			s.channel.Sweep(ctx)
			s.publishView()
		case <-tick.C:
			s.capsules.Tick()
			s.publishView()
		}
	}
}

func (s *Session) process() {
	events := s.mailbox.drain()
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		ev()
	}
	s.publishView()
}

func (s *Session) shutdown(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if s.typing.Active() {
		s.typing.Clear(stopCtx)
	}
	s.presence.Stop(stopCtx)
	s.log.Info().Msg("session stopped")
}

// Do runs fn on the loop and waits for its result.
func (s *Session) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	result := make(chan error, 1)
	s.mailbox.post(func() { result <- fn(s.ctx) })
	select {
	case err := <-result:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Send(ctx context.Context, text string) error {
	return s.Do(ctx, func(ctx context.Context) error { return s.channel.Send(ctx, text) })
}

func (s *Session) SendImage(ctx context.Context, ref string) error {
	return s.Do(ctx, func(ctx context.Context) error { return s.channel.SendImage(ctx, ref) })
}

func (s *Session) SendEmergency(ctx context.Context, text string) error {
	return s.Do(ctx, func(ctx context.Context) error { return s.channel.SendEmergency(ctx, text) })
}

// TypingInput reports a local keystroke.
func (s *Session) TypingInput(ctx context.Context) error {
	return s.Do(ctx, func(ctx context.Context) error {
		s.typing.Input(ctx)
		return nil
	})
}

// SetMood publishes mood and timestamp as one record.
func (s *Session) SetMood(ctx context.Context, value string) error {
	mood, err := ParseMood(value)
	if err != nil {
		return err
	}
	return s.Do(ctx, func(ctx context.Context) error {
		rec := models.MoodRecord{Value: mood, Timestamp: models.Millis(s.now())}
		s.write(ctx, s.paths.Mood(s.cfg.Role), rec)
		s.myMood = &rec
		return nil
	})
}

// SetStatus publishes a free-text status. An empty status clears it.
func (s *Session) SetStatus(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > maxStatusLength {
		return fmt.Errorf("%w: limit %d", ErrStatusTooLong, maxStatusLength)
	}
	return s.Do(ctx, func(ctx context.Context) error {
		rec := models.StatusRecord{Value: text, Timestamp: models.Millis(s.now())}
		s.write(ctx, s.paths.Status(s.cfg.Role), rec)
		s.myStatus = &rec
		return nil
	})
}

func (s *Session) CreateCapsule(ctx context.Context, message string, unlockAt time.Time) error {
	return s.Do(ctx, func(ctx context.Context) error { return s.capsules.Create(ctx, message, unlockAt) })
}

func (s *Session) OpenCapsule(ctx context.Context, id string) error {
	return s.Do(ctx, func(ctx context.Context) error { return s.capsules.Open(ctx, id) })
}

func (s *Session) DeleteCapsule(ctx context.Context, id string) error {
	return s.Do(ctx, func(ctx context.Context) error { return s.capsules.Delete(ctx, id) })
}

func (s *Session) AddTodo(ctx context.Context, title string, dueAt *time.Time) error {
	return s.Do(ctx, func(ctx context.Context) error { return s.todos.Add(ctx, title, dueAt) })
}

func (s *Session) ToggleTodo(ctx context.Context, id string) error {
	return s.Do(ctx, func(ctx context.Context) error { return s.todos.Toggle(ctx, id) })
}

func (s *Session) DeleteTodo(ctx context.Context, id string) error {
	return s.Do(ctx, func(ctx context.Context) error { return s.todos.Delete(ctx, id) })
}

// SetAnniversary stores the relationship start date and posts a system line.
func (s *Session) SetAnniversary(ctx context.Context, start time.Time) error {
	if start.After(s.now()) {
		return ErrAnchorInFuture
	}
	return s.Do(ctx, func(ctx context.Context) error {
		anchor := models.AnniversaryAnchor{StartDate: models.Millis(start), SetBy: s.cfg.Role}
		s.write(ctx, s.paths.Anniversary(), anchor)
		s.anniversary = &anchor
		return s.channel.SendSystem(ctx, s.texts.Format("system_anniversary_set", s.roleName(s.cfg.Role), start.Format(time.DateOnly)))
	})
}

// SetCycle stores the first day of the current cycle.
func (s *Session) SetCycle(ctx context.Context, start time.Time) error {
	if start.After(s.now()) {
		return ErrAnchorInFuture
	}
	return s.Do(ctx, func(ctx context.Context) error {
		anchor := models.CycleAnchor{StartDate: models.Millis(start), SetBy: s.cfg.Role}
		s.write(ctx, s.paths.Cycle(), anchor)
		s.cycle = &anchor
		return s.channel.SendSystem(ctx, s.texts.Format("system_cycle_set", s.roleName(s.cfg.Role), start.Format(time.DateOnly)))
	})
}

func (s *Session) write(ctx context.Context, path string, value any) {
	if err := s.store.Write(ctx, path, value); err != nil {
		storage.LogFailure(s.log, "write", path, err)
	}
}

func (s *Session) handlePartnerMood(snap storage.Snapshot) {
	var rec models.MoodRecord
	if err := snap.Decode(&rec); err != nil {
		s.partnerMood = nil
		return
	}
	s.partnerMood = &rec
	s.moodEdge.Observe(rec.Value)
}

func (s *Session) handlePartnerStatus(snap storage.Snapshot) {
	var rec models.StatusRecord
	if err := snap.Decode(&rec); err != nil {
		s.partnerStatus = nil
		return
	}
	s.partnerStatus = &rec
	s.statusEdge.Observe(rec.Value)
}

func (s *Session) handleMyMood(snap storage.Snapshot) {
	var rec models.MoodRecord
	if err := snap.Decode(&rec); err != nil {
		return
	}
	s.myMood = &rec
}

func (s *Session) handleMyStatus(snap storage.Snapshot) {
	var rec models.StatusRecord
	if err := snap.Decode(&rec); err != nil {
		return
	}
	s.myStatus = &rec
}

func (s *Session) handleAnniversary(snap storage.Snapshot) {
	var anchor models.AnniversaryAnchor
	if err := snap.Decode(&anchor); err != nil {
		s.anniversary = nil
		return
	}
	s.anniversary = &anchor
}

func (s *Session) handleCycle(snap storage.Snapshot) {
	var anchor models.CycleAnchor
	if err := snap.Decode(&anchor); err != nil {
		s.cycle = nil
		return
	}
	s.cycle = &anchor
}

func (s *Session) roleName(r models.Role) string {
	return s.texts.Get("role_" + r.String())
}

func (s *Session) notifyMood(_, next string) {
	name := s.roleName(s.cfg.Role.Other())
	s.emit.Emit(notify.KindMood, s.texts.Get("partner_mood_title"), s.texts.Format("partner_mood_body", name, s.texts.Get("mood_"+next)))
}

func (s *Session) notifyStatus(_, next string) {
	name := s.roleName(s.cfg.Role.Other())
	s.emit.Emit(notify.KindStatus, s.texts.Get("partner_status_title"), s.texts.Format("partner_status_body", name, next))
}

// AddListener registers l for every future View. Safe from any goroutine.
func (s *Session) AddListener(l ViewListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// View returns the latest published view.
func (s *Session) View() View {
	return *s.view.Load()
}

func (s *Session) publishView() {
	v := s.buildView()
	s.view.Store(&v)

	s.mu.Lock()
	listeners := append([]ViewListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l.OnView(v)
	}
}

func (s *Session) buildView() View {
	now := s.now()
	self, partner := s.cfg.Role, s.cfg.Role.Other()
	online, known := s.presence.PartnerOnline()

	v := View{
		Role:          self,
		Partner:       partner,
		RoomID:        s.paths.Room,
		PartnerOnline: online,
		PartnerKnown:  known,
		PartnerTyping: s.typing.PartnerTyping(),
		PartnerMood:   clone(s.partnerMood),
		PartnerStatus: clone(s.partnerStatus),
		MyMood:        clone(s.myMood),
		MyStatus:      clone(s.myStatus),
		Unread:        s.channel.Unread(),
		Capsules:      s.capsules.Views(),
		UpdatedAt:     models.Millis(now),
	}
	if rec := s.presence.Partner(); rec != nil {
		v.PartnerLastSeen = rec.LastHeartbeat
	}

	msgs := s.channel.Messages()
	v.Messages = make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		v.Messages = append(v.Messages, MessageView{
			ID:            m.ID,
			Message:       m,
			Mine:          m.Sender == self,
			ReadByPartner: m.ReadByRole(partner),
		})
	}

	items := s.todos.Items()
	v.Todos = make([]TodoView, 0, len(items))
	for _, item := range items {
		v.Todos = append(v.Todos, TodoView{ID: item.ID, Todo: item})
	}

	if a := s.anniversary; a != nil {
		start := models.FromMillis(a.StartDate)
		elapsed := countdown.Since(start, now)
		total := countdown.TotalDays(start, now)
		v.Anniversary = &AnniversaryView{
			AnniversaryAnchor: *a,
			Elapsed:           elapsed,
			TotalDays:         total,
			Label:             s.texts.Format("countdown_together", elapsed.String(), total),
		}
	}
	if c := s.cycle; c != nil {
		day := countdown.CycleDay(models.FromMillis(c.StartDate), now, s.cfg.CycleLengthDays)
		v.Cycle = &CycleView{
			CycleAnchor: *c,
			Day:         day,
			Length:      s.cfg.CycleLengthDays,
			Label:       s.texts.Format("countdown_cycle_day", day, s.cfg.CycleLengthDays),
		}
	}
	return v
}

func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
