package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"couplesync/backend/internal/notify"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func dialerFor(s Sender) Dialer {
	return func(string) (Sender, error) { return s, nil }
}

func TestNotifier_DropsUntilGranted(t *testing.T) {
	// Arrange
	sender := new(MockSender)
	n := NewNotifierWithDialer(Config{Token: "t", ChatID: 42}, dialerFor(sender))

	// Act
	n.Notify(context.Background(), notify.Notification{Title: "hi", Body: "there"})
	n.Wait()

	// Assert
	assert.False(t, n.Granted())
	sender.AssertNotCalled(t, "Send", mock.Anything)
}

func TestNotifier_SendsAfterPermission(t *testing.T) {
	// Arrange
	sender := new(MockSender)
	sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 42 && msg.Text == "<b>Mood &amp; more</b>\nB is sad"
	})).Return(tgbotapi.Message{}, nil).Once()
	n := NewNotifierWithDialer(Config{Token: "t", ChatID: 42}, dialerFor(sender))

	// Act
	require.NoError(t, n.RequestPermission(context.Background()))
	n.Notify(context.Background(), notify.Notification{Kind: notify.KindMood, Title: "Mood & more", Body: "B is sad"})
	n.Wait()

	// Assert
	sender.AssertExpectations(t)
}

func TestNotifier_RequestPermissionFailures(t *testing.T) {
	n := NewNotifierWithDialer(Config{Token: "t"}, dialerFor(new(MockSender)))
	assert.ErrorIs(t, n.RequestPermission(context.Background()), ErrNoChat)

	boom := errors.New("unauthorized")
	n = NewNotifierWithDialer(Config{Token: "t", ChatID: 1}, func(string) (Sender, error) { return nil, boom })
	assert.ErrorIs(t, n.RequestPermission(context.Background()), boom)
	assert.False(t, n.Granted())
}

func TestNotifier_RateLimited(t *testing.T) {
	// Arrange: burst of one per minute.
	sender := new(MockSender)
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil)
	n := NewNotifierWithDialer(Config{Token: "t", ChatID: 7, RatePerMinute: 1}, dialerFor(sender))
	require.NoError(t, n.RequestPermission(context.Background()))

	// Act
	for i := 0; i < 3; i++ {
		n.Notify(context.Background(), notify.Notification{Title: "x"})
	}
	n.Wait()

	// Assert
	sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestNotifier_BreakerOpensAfterFailures(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("502"))
	n := NewNotifierWithDialer(Config{Token: "t", ChatID: 7, RatePerMinute: 100}, dialerFor(sender))
	require.NoError(t, n.RequestPermission(context.Background()))

	for i := 0; i < 8; i++ {
		n.Notify(context.Background(), notify.Notification{Title: "x"})
		n.Wait()
	}

	sender.AssertNumberOfCalls(t, "Send", 5)
}
