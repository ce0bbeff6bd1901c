package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"couplesync/backend/internal/logging"
	"couplesync/backend/internal/metrics"
	"couplesync/backend/internal/notify"
)

const breakerName = "telegram"

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Dialer connects to the bot API. The default is NewBotAPI, which also checks
// the token with getMe.
type Dialer func(token string) (Sender, error)

func botDialer(token string) (Sender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return bot, nil
}

// ErrNoChat is returned by RequestPermission when no destination chat is configured.
var ErrNoChat = errors.New("telegram: chat id not configured")

type Config struct {
	Token         string
	ChatID        int64
	RatePerMinute int
}

// Notifier forwards notifications to one Telegram chat.
// Sends go through a circuit breaker and a token bucket and run on their own
// goroutine, so Notify never blocks the caller.
type Notifier struct {
	cfg     Config
	dial    Dialer
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[tgbotapi.Message]

	mu     sync.RWMutex
	sender Sender

	wg sync.WaitGroup
}

func NewNotifier(cfg Config) *Notifier {
	return NewNotifierWithDialer(cfg, botDialer)
}

func NewNotifierWithDialer(cfg Config, dial Dialer) *Notifier {
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[tgbotapi.Message](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Notifier{
		cfg:     cfg,
		dial:    dial,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		cb:      cb,
	}
}

// RequestPermission connects to the bot API. Until it succeeds Notify drops
// everything.
func (n *Notifier) RequestPermission(ctx context.Context) error {
	if n.cfg.ChatID == 0 {
		return ErrNoChat
	}
	sender, err := n.dial(n.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram: connect: %w", err)
	}
	n.mu.Lock()
	n.sender = sender
	n.mu.Unlock()
	logging.Info().Int64("chat_id", n.cfg.ChatID).Msg("telegram notifications enabled")
	return nil
}

// Granted reports whether RequestPermission has succeeded.
func (n *Notifier) Granted() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sender != nil
}

func (n *Notifier) Notify(_ context.Context, note notify.Notification) {
	n.mu.RLock()
	sender := n.sender
	n.mu.RUnlock()
	if sender == nil {
		metrics.NotificationsDropped.WithLabelValues(breakerName, "not_granted").Inc()
		return
	}
	if !n.limiter.Allow() {
		metrics.NotificationsDropped.WithLabelValues(breakerName, "rate_limited").Inc()
		logging.Debug().Str("kind", string(note.Kind)).Msg("telegram notification rate limited")
		return
	}

	msg := tgbotapi.NewMessage(n.cfg.ChatID, format(note))
	msg.ParseMode = tgbotapi.ModeHTML

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		_, err := n.cb.Execute(func() (tgbotapi.Message, error) {
			return sender.Send(msg)
		})
		if err == nil {
			return
		}
		reason := "send_failed"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			reason = "circuit_open"
		}
		metrics.NotificationsDropped.WithLabelValues(breakerName, reason).Inc()
		logging.Warn().Err(err).Str("kind", string(note.Kind)).Msg("telegram notification failed")
	}()
}

// Wait blocks until in-flight sends finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func format(note notify.Notification) string {
	return "<b>" + tgbotapi.EscapeText(tgbotapi.ModeHTML, note.Title) + "</b>\n" +
		tgbotapi.EscapeText(tgbotapi.ModeHTML, note.Body)
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
