package handler

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"couplesync/backend/internal/chathub"
	"couplesync/backend/internal/logging"
	"couplesync/backend/internal/metrics"
	"couplesync/backend/internal/notify"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
	commandTimeout = 5 * time.Second
)

// Frame types sent to UI clients.
const (
	FrameView         = "view"
	FrameNotification = "notification"
	FrameError        = "error"
)

// Envelope is one websocket frame sent to a UI client.
type Envelope struct {
	Type         string               `json:"type"`
	View         *chathub.View        `json:"view,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// Command is one frame received from a UI client.
type Command struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub fans view snapshots and notifications out to connected UI clients. It is
// both a chathub.ViewListener and a notify.Notifier; neither call blocks.
type Hub struct {
	// OnCommand handles frames sent by clients.
	OnCommand func(ctx context.Context, cmd Command) error

	mu      sync.Mutex
	clients map[string]*wsClient
	latest  []byte
	closed  bool
	log     zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*wsClient),
		log:     logging.Component("ws"),
	}
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) OnView(v chathub.View) {
	frame, err := json.Marshal(Envelope{Type: FrameView, View: &v})
	if err != nil {
		h.log.Error().Err(err).Msg("encode view")
		return
	}
	h.mu.Lock()
	h.latest = frame
	h.mu.Unlock()
	h.broadcast(frame)
}

func (h *Hub) Notify(_ context.Context, n notify.Notification) {
	frame, err := json.Marshal(Envelope{Type: FrameNotification, Notification: &n})
	if err != nil {
		h.log.Error().Err(err).Msg("encode notification")
		return
	}
	h.broadcast(frame)
}

// broadcast drops any client whose buffer is full rather than waiting on it.
func (h *Hub) broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.log.Warn().Str("client", id).Msg("client too slow, disconnecting")
			metrics.NotificationsDropped.WithLabelValues("ws", "slow_client").Inc()
			h.removeLocked(c)
		}
	}
}

func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	metrics.UIClients.Set(float64(len(h.clients)))
	if h.latest != nil {
		c.send <- h.latest
	}
	return true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *wsClient) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	metrics.UIClients.Set(float64(len(h.clients)))
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, c := range h.clients {
		h.removeLocked(c)
	}
}

// ServeWebSocket upgrades the connection and streams frames until the client
// goes away. The latest view is sent first.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h.Hub,
	}
	if !h.Hub.register(client) {
		conn.Close()
		return
	}
	h.log.Debug().Str("client", client.id).Msg("ui client connected")

	go client.writePump()
	client.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug().Err(err).Str("client", c.id).Msg("read failed")
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.reply(err)
			continue
		}
		if c.hub.OnCommand == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		err = c.hub.OnCommand(ctx, cmd)
		cancel()
		if err != nil {
			c.reply(err)
		}
	}
}

// reply sends an error frame to this client only.
func (c *wsClient) reply(err error) {
	frame, _ := json.Marshal(Envelope{Type: FrameError, Error: err.Error()})
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if _, ok := c.hub.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
