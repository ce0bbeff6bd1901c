// Package notify delivers best-effort notifications about partner activity.
// A sink never returns an error to the engine and never blocks it.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"couplesync/backend/internal/logging"
	"couplesync/backend/internal/metrics"
)

// Kind identifies which transition produced a notification.
type Kind string

const (
	KindPresence  Kind = "presence"
	KindMood      Kind = "mood"
	KindStatus    Kind = "status"
	KindMessage   Kind = "message"
	KindEmergency Kind = "emergency"
	KindCapsule   Kind = "capsule"
)

type Notification struct {
	Kind  Kind      `json:"kind"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	At    time.Time `json:"at"`
}

// Notifier is a notification sink.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// PermissionRequester is implemented by sinks that must be granted before they
// deliver anything. Until then Notify is a no-op.
type PermissionRequester interface {
	RequestPermission(ctx context.Context) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Discard drops everything.
var Discard Notifier = NotifierFunc(func(context.Context, Notification) {})

// Fanout delivers to every sink in order.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, n Notification) {
	metrics.Notifications.WithLabelValues(string(n.Kind)).Inc()
	for _, sink := range f {
		sink.Notify(ctx, n)
	}
}

// RequestPermissions asks every sink that needs it, each in its own goroutine.
// Denials are logged; the sink simply stays silent.
func (f Fanout) RequestPermissions(ctx context.Context) {
	for _, sink := range f {
		pr, ok := sink.(PermissionRequester)
		if !ok {
			continue
		}
		go func() {
			if err := pr.RequestPermission(ctx); err != nil {
				logging.Warn().Err(err).Msg("notification permission denied")
			}
		}()
	}
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Log zerolog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{Log: logging.Component("notify")}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) {
	l.Log.Info().Str("kind", string(n.Kind)).Str("title", n.Title).Msg(n.Body)
}

// Recorder keeps every notification in memory. Used by tests and the admin CLI.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	r.all = append(r.all, n)
	r.mu.Unlock()
}

// All returns a copy of everything recorded so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// OfKind returns the recorded notifications with the given kind.
func (r *Recorder) OfKind(k Kind) []Notification {
	var out []Notification
	for _, n := range r.All() {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

// Emitter stamps notifications produced by engine components and hands them
// to a sink.
type Emitter struct {
	Sink Notifier
	Now  func() time.Time
}

func (e Emitter) Emit(kind Kind, title, body string) {
	if e.Sink == nil {
		return
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	e.Sink.Notify(context.Background(), Notification{Kind: kind, Title: title, Body: body, At: now()})
}
