package handler

import (
	"time"

	"github.com/gin-gonic/gin"
)

type textRequest struct {
	Text string `json:"text"`
}

type imageRequest struct {
	Ref string `json:"ref" binding:"required"`
}

type moodRequest struct {
	Mood string `json:"mood" binding:"required"`
}

type capsuleRequest struct {
	Message  string    `json:"message"`
	UnlockAt time.Time `json:"unlockAt" binding:"required"`
}

type todoRequest struct {
	Title string     `json:"title"`
	DueAt *time.Time `json:"dueAt"`
}

type anchorRequest struct {
	Start time.Time `json:"start" binding:"required"`
}

func (h *Handler) PostMessage(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, h.Session.Send(c.Request.Context(), req.Text))
}

func (h *Handler) PostImage(c *gin.Context) {
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, h.Session.SendImage(c.Request.Context(), req.Ref))
}

func (h *Handler) PostEmergency(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, h.Session.SendEmergency(c.Request.Context(), req.Text))
}

func (h *Handler) PostTyping(c *gin.Context) {
	h.respond(c, h.Session.TypingInput(c.Request.Context()))
}

func (h *Handler) PutMood(c *gin.Context) {
	var req moodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, h.Session.SetMood(c.Request.Context(), req.Mood))
}

// PutStatus accepts an empty text, which clears the status line.
func (h *Handler) PutStatus(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, h.Session.SetStatus(c.Request.Context(), req.Text))
}

func (h *Handler) PostCapsule(c *gin.Context) {
	var req capsuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, h.Session.CreateCapsule(c.Request.Context(), req.Message, req.UnlockAt))
}

func (h *Handler) OpenCapsule(c *gin.Context) {
	h.respond(c, h.Session.OpenCapsule(c.Request.Context(), c.Param("id")))
}

func (h *Handler) DeleteCapsule(c *gin.Context) {
	h.respond(c, h.Session.DeleteCapsule(c.Request.Context(), c.Param("id")))
}

func (h *Handler) PostTodo(c *gin.Context) {
	var req todoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, h.Session.AddTodo(c.Request.Context(), req.Title, req.DueAt))
}

func (h *Handler) ToggleTodo(c *gin.Context) {
	h.respond(c, h.Session.ToggleTodo(c.Request.Context(), c.Param("id")))
}

func (h *Handler) DeleteTodo(c *gin.Context) {
	h.respond(c, h.Session.DeleteTodo(c.Request.Context(), c.Param("id")))
}

func (h *Handler) PutAnniversary(c *gin.Context) {
	var req anchorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, h.Session.SetAnniversary(c.Request.Context(), req.Start))
}

func (h *Handler) PutCycle(c *gin.Context) {
	var req anchorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, h.Session.SetCycle(c.Request.Context(), req.Start))
}
