// Package todo is the shared checklist. Either participant may add, check off
// or delete any entry; concurrent edits to one entry are last-writer-wins.
package todo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"couplesync/backend/internal/logging"
	"couplesync/backend/internal/models"
	"couplesync/backend/internal/storage"
)

var (
	ErrEmptyTitle = errors.New("todo: title is empty")
	ErrNotFound   = errors.New("todo: not found")
)

type Config struct {
	Self  models.Role
	Paths models.Paths
}

type List struct {
	cfg   Config
	store storage.Storage
	now   func() time.Time
	log   zerolog.Logger

	items map[string]models.Todo
}

func NewList(cfg Config, store storage.Storage, now func() time.Time) *List {
	return &List{
		cfg:   cfg,
		store: store,
		now:   now,
		log:   logging.Component("todo").With().Str("role", cfg.Self.String()).Logger(),
		items: make(map[string]models.Todo),
	}
}

func (l *List) Path() string { return l.cfg.Paths.Todos() }

// Add creates an open entry. dueAt may be nil.
func (l *List) Add(ctx context.Context, title string, dueAt *time.Time) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	item := models.Todo{
		Title:     title,
		CreatedBy: l.cfg.Self,
		CreatedAt: models.Millis(l.now()),
	}
	if dueAt != nil {
		ms := models.Millis(*dueAt)
		item.DueAt = &ms
	}
	if _, err := l.store.Append(ctx, l.Path(), item); err != nil {
		storage.LogFailure(l.log, "append", l.Path(), err)
	}
	return nil
}

// Toggle checks an open entry off or reopens a done one.
func (l *List) Toggle(ctx context.Context, id string) error {
	item, ok := l.items[id]
	if !ok {
		return ErrNotFound
	}
	var doneAt any
	if item.Done() {
		item.DoneAt = nil
	} else {
		ms := models.Millis(l.now())
		item.DoneAt = &ms
		doneAt = ms
	}
	path := l.cfg.Paths.Todo(id)
	if err := l.store.Patch(ctx, path, map[string]any{"doneAt": doneAt}); err != nil {
		storage.LogFailure(l.log, "patch", path, err)
	}
	l.items[id] = item
	return nil
}

func (l *List) Delete(ctx context.Context, id string) error {
	if _, ok := l.items[id]; !ok {
		return ErrNotFound
	}
	path := l.cfg.Paths.Todo(id)
	if err := l.store.Delete(ctx, path); err != nil {
		storage.LogFailure(l.log, "delete", path, err)
	}
	delete(l.items, id)
	return nil
}

func (l *List) HandleSnapshot(snap storage.Snapshot) {
	decoded, skipped := storage.DecodeChildren[models.Todo](snap)
	if skipped > 0 {
		l.log.Debug().Int("skipped", skipped).Msg("ignoring unreadable todos")
	}
	for id, item := range decoded {
		item.ID = id
		decoded[id] = item
	}
	l.items = decoded
}

// Items returns open entries first, ordered by due date (undated last), then
// done entries, most recently finished first.
func (l *List) Items() []models.Todo {
	out := make([]models.Todo, 0, len(l.items))
	for _, item := range l.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Done() != b.Done() {
			return !a.Done()
		}
		if a.Done() {
			if *a.DoneAt != *b.DoneAt {
				return *a.DoneAt > *b.DoneAt
			}
			return a.ID < b.ID
		}
		switch {
		case a.DueAt != nil && b.DueAt == nil:
			return true
		case a.DueAt == nil && b.DueAt != nil:
			return false
		case a.DueAt != nil && *a.DueAt != *b.DueAt:
			return *a.DueAt < *b.DueAt
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})
	return out
}
