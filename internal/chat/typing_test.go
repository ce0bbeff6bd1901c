package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"couplesync/backend/internal/chat"
	"couplesync/backend/internal/models"
	"couplesync/backend/internal/testfixtures"
)

const debounce = 1200 * time.Millisecond

func newTyping(store *testfixtures.MockStorage, clock *testfixtures.Clock) *chat.Typing {
	after := func(d time.Duration, f func()) chat.Timer { return clock.AfterFunc(d, f) }
	return chat.NewTyping(chat.TypingConfig{Self: models.RoleA, Paths: paths, Debounce: debounce}, store, after)
}

func typingWrites(store *testfixtures.MockStorage) []bool {
	var out []bool
	for _, call := range store.Calls {
		if call.Method == "Write" {
			out = append(out, call.Arguments.Get(2).(models.TypingFlag).Value)
		}
	}
	return out
}

func TestTyping_DebounceRestartsOnInput(t *testing.T) {
	// Arrange
	clock := testfixtures.NewClock(time.Time{})
	store := new(testfixtures.MockStorage)
	store.On("Write", mock.Anything, "rooms/room/typing/A", mock.Anything).Return(nil)
	typing := newTyping(store, clock)
	ctx := context.Background()

	// Act: keystrokes every second keep the flag up.
	typing.Input(ctx)
	clock.Advance(time.Second)
	typing.Input(ctx)
	clock.Advance(time.Second)
	typing.Input(ctx)

	// Assert
	assert.Equal(t, []bool{true}, typingWrites(store))
	assert.True(t, typing.Active())

	clock.Advance(debounce)
	assert.Equal(t, []bool{true, false}, typingWrites(store))
	assert.False(t, typing.Active())
	assert.Zero(t, clock.Pending())
}

func TestTyping_ClearCancelsTimer(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	store := new(testfixtures.MockStorage)
	store.On("Write", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	typing := newTyping(store, clock)
	ctx := context.Background()

	typing.Input(ctx)
	typing.Clear(ctx)
	clock.Advance(5 * time.Second)

	assert.Equal(t, []bool{true, false}, typingWrites(store))
}

func TestTyping_SendClearsFlag(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	store := new(testfixtures.MockStorage)
	store.On("Write", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	store.On("Append", mock.Anything, mock.Anything, mock.Anything).Return("k", nil)
	typing := newTyping(store, clock)
	emit, _ := testfixtures.Emitter(clock)
	channel := chat.NewChannel(chat.Config{Self: models.RoleA, Paths: paths}, store, clock.Now, emit, testfixtures.Texts(), typing)
	ctx := context.Background()

	typing.Input(ctx)
	require.NoError(t, channel.Send(ctx, "done typing"))
	clock.Advance(debounce)

	assert.Equal(t, []bool{true, false}, typingWrites(store))
}

func TestTyping_PartnerIsLevelTriggered(t *testing.T) {
	typing := newTyping(new(testfixtures.MockStorage), testfixtures.NewClock(time.Time{}))
	path := typing.PartnerPath()
	assert.Equal(t, "rooms/room/typing/B", path)

	typing.HandlePartner(testfixtures.RecordSnapshot(t, path, models.TypingFlag{Value: true}))
	assert.True(t, typing.PartnerTyping())
	typing.HandlePartner(testfixtures.RecordSnapshot(t, path, models.TypingFlag{Value: true}))
	assert.True(t, typing.PartnerTyping())
	typing.HandlePartner(testfixtures.RecordSnapshot(t, path, models.TypingFlag{Value: false}))
	assert.False(t, typing.PartnerTyping())

	typing.HandlePartner(testfixtures.RecordSnapshot(t, path, models.TypingFlag{Value: true}))
	typing.HandlePartner(testfixtures.CollectionSnapshot(t, path, nil))
	assert.False(t, typing.PartnerTyping(), "deleted flag reads as idle")
}
