// Package handler is the local UI surface: a small JSON API over the session
// plus a websocket that streams view snapshots and notifications.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"couplesync/backend/internal/capsule"
	"couplesync/backend/internal/chat"
	"couplesync/backend/internal/chathub"
	"couplesync/backend/internal/logging"
	"couplesync/backend/internal/todo"
)

// Session is the part of chathub.Session the UI drives.
type Session interface {
	View() chathub.View
	Send(ctx context.Context, text string) error
	SendImage(ctx context.Context, ref string) error
	SendEmergency(ctx context.Context, text string) error
	TypingInput(ctx context.Context) error
	SetMood(ctx context.Context, value string) error
	SetStatus(ctx context.Context, text string) error
	CreateCapsule(ctx context.Context, message string, unlockAt time.Time) error
	OpenCapsule(ctx context.Context, id string) error
	DeleteCapsule(ctx context.Context, id string) error
	AddTodo(ctx context.Context, title string, dueAt *time.Time) error
	ToggleTodo(ctx context.Context, id string) error
	DeleteTodo(ctx context.Context, id string) error
	SetAnniversary(ctx context.Context, start time.Time) error
	SetCycle(ctx context.Context, start time.Time) error
}

type Handler struct {
	Session Session
	Hub     *Hub
	log     zerolog.Logger
}

func NewHandler(session Session, hub *Hub) *Handler {
	h := &Handler{Session: session, Hub: hub, log: logging.Component("api")}
	hub.OnCommand = h.handleCommand
	return h
}

// Router builds the gin engine with every route registered exactly once.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/api")
	api.GET("/state", h.GetState)
	api.POST("/messages", h.PostMessage)
	api.POST("/messages/image", h.PostImage)
	api.POST("/messages/emergency", h.PostEmergency)
	api.POST("/typing", h.PostTyping)
	api.PUT("/mood", h.PutMood)
	api.PUT("/status", h.PutStatus)
	api.POST("/capsules", h.PostCapsule)
	api.POST("/capsules/:id/open", h.OpenCapsule)
	api.DELETE("/capsules/:id", h.DeleteCapsule)
	api.POST("/todos", h.PostTodo)
	api.POST("/todos/:id/toggle", h.ToggleTodo)
	api.DELETE("/todos/:id", h.DeleteTodo)
	api.PUT("/anniversary", h.PutAnniversary)
	api.PUT("/cycle", h.PutCycle)
	return r
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": h.Hub.Len()})
}

func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.Session.View())
}

// statusFor maps engine errors to HTTP status codes. Anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMessageTooLong),
		errors.Is(err, chat.ErrEmptyImageRef),
		errors.Is(err, chathub.ErrUnknownMood),
		errors.Is(err, chathub.ErrStatusTooLong),
		errors.Is(err, chathub.ErrAnchorInFuture),
		errors.Is(err, capsule.ErrEmptyMessage),
		errors.Is(err, capsule.ErrUnlockInPast),
		errors.Is(err, todo.ErrEmptyTitle):
		return http.StatusBadRequest
	case errors.Is(err, capsule.ErrNotFound), errors.Is(err, todo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, capsule.ErrStillLocked):
		return http.StatusConflict
	case errors.Is(err, chathub.ErrClosed), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respond writes 204 on success or the mapped error.
func (h *Handler) respond(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
