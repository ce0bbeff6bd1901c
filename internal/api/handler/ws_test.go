package handler_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"couplesync/backend/internal/api/handler"
	"couplesync/backend/internal/chathub"
	"couplesync/backend/internal/models"
	"couplesync/backend/internal/notify"
)

func dial(t *testing.T, hub *handler.Hub, s *MockSession) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(handler.NewHandler(s, hub).Router())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) handler.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env handler.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHub_LatestViewSentOnConnect(t *testing.T) {
	hub := handler.NewHub()
	hub.OnView(chathub.View{Role: models.RoleB, Unread: 1})

	conn := dial(t, hub, new(MockSession))

	env := readFrame(t, conn)
	assert.Equal(t, handler.FrameView, env.Type)
	require.NotNil(t, env.View)
	assert.Equal(t, models.RoleB, env.View.Role)
}

func TestHub_BroadcastsViewsAndNotifications(t *testing.T) {
	hub := handler.NewHub()
	conn := dial(t, hub, new(MockSession))

	hub.OnView(chathub.View{Unread: 3})
	hub.Notify(context.Background(), notify.Notification{Kind: notify.KindMood, Title: "Partner A", Body: "sad"})

	env := readFrame(t, conn)
	assert.Equal(t, handler.FrameView, env.Type)
	assert.Equal(t, 3, env.View.Unread)

	env = readFrame(t, conn)
	assert.Equal(t, handler.FrameNotification, env.Type)
	require.NotNil(t, env.Notification)
	assert.Equal(t, notify.KindMood, env.Notification.Kind)
}

func TestHub_CommandsReachSession(t *testing.T) {
	hub := handler.NewHub()
	s := new(MockSession)
	typed := make(chan struct{}, 1)
	s.On("TypingInput", mock.Anything).Return(nil).Run(func(mock.Arguments) { typed <- struct{}{} })
	conn := dial(t, hub, s)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing"}`)))
	select {
	case <-typed:
	case <-time.After(2 * time.Second):
		t.Fatal("typing command not delivered")
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	env := readFrame(t, conn)
	assert.Equal(t, handler.FrameError, env.Type)
	assert.Contains(t, env.Error, "dance")
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := handler.NewHub()
	conn := dial(t, hub, new(MockSession))

	hub.Close()

	assert.Equal(t, 0, hub.Len())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
