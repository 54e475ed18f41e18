package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type transferRequest struct {
	CounselorID string `json:"counselor_id" binding:"required"`
	Reason      string `json:"reason"`
}

type messageRequest struct {
	Content string `json:"content"`
}

// OpenRoom returns the student's room, 201 when it was just created.
func (h *Handler) OpenRoom(c *gin.Context) {
	room, created, err := h.Chat.OpenRoom(c.Request.Context(), actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, room)
}

func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.Chat.ListRooms(c.Request.Context(), actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *Handler) ClaimRoom(c *gin.Context) {
	room, err := h.Chat.ClaimRoom(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) TransferRoom(c *gin.Context) {
	var req transferRequest
	if !h.bind(c, &req) {
		return
	}
	room, err := h.Chat.TransferRoom(c.Request.Context(), actor(c), c.Param("id"), req.CounselorID, req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) DeleteRoom(c *gin.Context) {
	if err := h.Chat.DeleteRoom(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListMessages(c *gin.Context) {
	msgs, err := h.Chat.ListMessages(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req messageRequest
	if !h.bind(c, &req) {
		return
	}
	msg, err := h.Chat.SendMessage(c.Request.Context(), actor(c), c.Param("id"), req.Content)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) MarkMessageRead(c *gin.Context) {
	msg, err := h.Chat.MarkRead(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	if err := h.Chat.DeleteMessage(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
