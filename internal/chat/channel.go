// Package chat implements the shared message log and the typing indicator.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"couplesync/backend/internal/localization"
	"couplesync/backend/internal/logging"
	"couplesync/backend/internal/metrics"
	"couplesync/backend/internal/models"
	"couplesync/backend/internal/notify"
	"couplesync/backend/internal/storage"
	"couplesync/backend/internal/transition"
)

var (
	ErrEmptyMessage   = errors.New("chat: message is empty")
	ErrMessageTooLong = errors.New("chat: message too long")
	ErrEmptyImageRef  = errors.New("chat: image reference is empty")
)

type Config struct {
	Self            models.Role
	Paths           models.Paths
	RetentionWindow time.Duration
	MaxLength       int
}

// Channel keeps the latest sorted copy of the log and writes this client's
// read receipts. Owned by the session loop.
type Channel struct {
	cfg    Config
	store  storage.Storage
	now    func() time.Time
	emit   notify.Emitter
	texts  localization.Texts
	typing *Typing
	log    zerolog.Logger

	messages  []models.Message
	receipted *transition.Once[string]
}

// NewChannel creates a Channel. typing may be nil; when set, every send clears it.
func NewChannel(cfg Config, store storage.Storage, now func() time.Time, emit notify.Emitter, texts localization.Texts, typing *Typing) *Channel {
	return &Channel{
		cfg:       cfg,
		store:     store,
		now:       now,
		emit:      emit,
		texts:     texts,
		typing:    typing,
		log:       logging.Component("chat").With().Str("role", cfg.Self.String()).Logger(),
		receipted: transition.NewOnce[string](),
	}
}

func (c *Channel) Path() string { return c.cfg.Paths.Messages() }

func (c *Channel) validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if c.cfg.MaxLength > 0 && utf8.RuneCountInString(text) > c.cfg.MaxLength {
		return "", fmt.Errorf("%w: %d characters, limit %d", ErrMessageTooLong, utf8.RuneCountInString(text), c.cfg.MaxLength)
	}
	return text, nil
}

// Send appends a chat message.
func (c *Channel) Send(ctx context.Context, text string) error {
	text, err := c.validateText(text)
	if err != nil {
		return err
	}
	c.append(ctx, models.Message{Kind: models.KindChat, Text: text})
	return nil
}

// SendImage appends a message referring to an uploaded image.
func (c *Channel) SendImage(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ErrEmptyImageRef
	}
	c.append(ctx, models.Message{Kind: models.KindImage, ImageRef: ref})
	return nil
}

// SendEmergency appends a message the partner is alerted about with priority.
func (c *Channel) SendEmergency(ctx context.Context, text string) error {
	text, err := c.validateText(text)
	if err != nil {
		return err
	}
	c.append(ctx, models.Message{Kind: models.KindEmergency, Text: text})
	return nil
}

// SendSystem appends an informational line, e.g. "anniversary changed".
// System messages are receipted like any other but never notify.
func (c *Channel) SendSystem(ctx context.Context, text string) error {
	text, err := c.validateText(text)
	if err != nil {
		return err
	}
	c.append(ctx, models.Message{Kind: models.KindSystem, Text: text})
	return nil
}

func (c *Channel) append(ctx context.Context, msg models.Message) {
	now := models.Millis(c.now())
	msg.Sender = c.cfg.Self
	msg.Timestamp = now
	msg.ReadBy = map[models.Role]int64{c.cfg.Self: now}

	if c.typing != nil {
		c.typing.Clear(ctx)
	}
	if _, err := c.store.Append(ctx, c.Path(), msg); err != nil {
		storage.LogFailure(c.log, "append", c.Path(), err)
	}
}

// HandleSnapshot replaces the local copy of the log. Every partner message this
// client has not read yet gets exactly one read-receipt patch and one arrival
// notification, however often the same log is delivered.
func (c *Channel) HandleSnapshot(ctx context.Context, snap storage.Snapshot) {
	decoded, skipped := storage.DecodeChildren[models.Message](snap)
	if skipped > 0 {
		c.log.Debug().Int("skipped", skipped).Msg("ignoring unreadable messages")
	}

	msgs := make([]models.Message, 0, len(decoded))
	for id, m := range decoded {
		m.ID = id
		msgs = append(msgs, m)
	}
	sortMessages(msgs)

	now := models.Millis(c.now())
	self := c.cfg.Self
	for i := range msgs {
		m := &msgs[i]
		if m.Sender == self || m.ReadByRole(self) || !c.receipted.First(m.ID) {
			continue
		}
		path := c.cfg.Paths.Message(m.ID)
		if err := c.store.Patch(ctx, path, map[string]any{"readBy/" + self.String(): now}); err != nil {
			storage.LogFailure(c.log, "patch", path, err)
		} else {
			metrics.ReadReceipts.Inc()
		}
		if m.ReadBy == nil {
			m.ReadBy = make(map[models.Role]int64, 2)
		}
		m.ReadBy[self] = now
		c.notifyArrival(*m)
	}

	c.receipted.Prune(func(id string) bool {
		_, ok := decoded[id]
		return ok
	})
	c.messages = msgs
}

func (c *Channel) notifyArrival(m models.Message) {
	name := c.texts.Get("role_" + m.Sender.String())
	switch m.Kind {
	case models.KindSystem:
		return
	case models.KindImage:
		c.emit.Emit(notify.KindMessage, c.texts.Get("new_image_title"), c.texts.Format("new_image_body", name))
	case models.KindEmergency:
		c.emit.Emit(notify.KindEmergency, c.texts.Get("emergency_title"), m.Text)
	default:
		c.emit.Emit(notify.KindMessage, c.texts.Get("new_message_title"), m.Text)
	}
}

// Sweep deletes every message older than the retention window and returns how
// many deletes were issued. Concurrent sweeps from both clients are harmless.
func (c *Channel) Sweep(ctx context.Context) int {
	cutoff := models.Millis(c.now()) - c.cfg.RetentionWindow.Milliseconds()
	kept := c.messages[:0:0]
	deleted := 0
	for _, m := range c.messages {
		if m.Timestamp >= cutoff {
			kept = append(kept, m)
			continue
		}
		path := c.cfg.Paths.Message(m.ID)
		if err := c.store.Delete(ctx, path); err != nil {
			storage.LogFailure(c.log, "delete", path, err)
			kept = append(kept, m)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		metrics.RetentionDeleted.Add(float64(deleted))
		c.log.Info().Int("deleted", deleted).Msg("retention sweep")
	}
	c.messages = kept
	return deleted
}

// Messages returns the log sorted by timestamp, oldest first.
func (c *Channel) Messages() []models.Message {
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Unread counts partner messages that still lack this client's receipt.
func (c *Channel) Unread() int {
	n := 0
	for _, m := range c.messages {
		if m.Sender != c.cfg.Self && !m.ReadByRole(c.cfg.Self) {
			n++
		}
	}
	return n
}

// sortMessages orders by client timestamp; keys break ties since they are
// time-sortable too.
func sortMessages(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].ID < msgs[j].ID
	})
}
